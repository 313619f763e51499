package chatter

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/EPecherkin/catty-bills/bills"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	PHOTO_DIR         = "photos"
	DEFAULT_PHOTO_EXT = ".jpg"
	BOOKKEEPING_TIME  = 10 * time.Second
)

// photoKey names a stored photo:
// photos/photo_{chat}_{YYYYMMDD_HHMMSS}_{micro}_{message}{ext}. The message
// row id keeps concurrent downloads of one chat apart.
func photoKey(chatID int64, messageID uint, at time.Time, remotePath string) string {
	ext := path.Ext(remotePath)
	if ext == "" {
		ext = DEFAULT_PHOTO_EXT
	}
	return fmt.Sprintf("%s/photo_%d_%s_%06d_%d%s", PHOTO_DIR, chatID, at.Format("20060102_150405"), at.Nanosecond()/1000, messageID, ext)
}

func (chatter *Chatter) goDownloadPhoto(message *db.TelegramMessage, user *db.User) {
	lgr := chatter.deps.Logger.With(logger.MESSAGE_ID, message.ID).With(logger.TELEGRAM_CHAT_ID, message.ChatID)
	defer func() {
		if err := recover(); err != nil {
			lgr.With(logger.ERROR, err).Error("panic in goDownloadPhoto")
		}
		chatter.wg.Done()
	}()

	ctx, cancel := context.WithTimeout(chatter.root, chatter.opts.DownloadTimeout)
	defer cancel()

	started := time.Now()
	key, absPath, err := chatter.downloadPhoto(ctx, message)
	chatter.opts.Metrics.ObserveDownload(time.Since(started), err)
	if err != nil {
		lgr.With(logger.ERROR, err).Error("Failed to download photo")
		bctx, bcancel := chatter.bookkeepingContext()
		defer bcancel()
		chatter.markFailed(bctx, message, err)
		chatter.reply(bctx, message.ChatID, ERROR_REPLY)
		return
	}
	lgr = lgr.With(logger.FILE_PATH, absPath)
	lgr.Info("Photo downloaded")

	bill, err := chatter.linkBill(ctx, message, user, key)
	if err != nil {
		lgr.With(logger.ERROR, err).Error("Failed to open bill for photo")
		bctx, bcancel := chatter.bookkeepingContext()
		defer bcancel()
		chatter.reply(bctx, message.ChatID, ERROR_REPLY)
		return
	}
	chatter.opts.Metrics.BillCreated()
	lgr.With(logger.BILL_ID, bill.ID).Info("Opened bill for photo")
	chatter.reply(ctx, message.ChatID, photoStoredReply(filepath.Base(absPath), bill.ID))
}

// downloadPhoto stores the photo in the upload root and records its path
// on the message.
func (chatter *Chatter) downloadPhoto(ctx context.Context, message *db.TelegramMessage) (string, string, error) {
	if message.FileID == nil || *message.FileID == "" {
		return "", "", errors.New("photo message has no file id")
	}

	download, err := chatter.msgc.Download(ctx, *message.FileID)
	if err != nil {
		return "", "", fmt.Errorf("downloading telegram file: %w", err)
	}
	defer func() { _ = download.Body.Close() }()

	key := photoKey(message.ChatID, message.ID, time.Now(), download.RemotePath)
	absPath, err := chatter.services.Store.Save(ctx, key, download.Body, download.ContentType)
	if err != nil {
		return "", "", fmt.Errorf("storing photo: %w", err)
	}

	if err := chatter.deps.DBC.WithContext(ctx).Model(message).Update("file_path", absPath).Error; err != nil {
		return "", "", fmt.Errorf("recording file path: %w", errors.WithStack(err))
	}
	return key, absPath, nil
}

// linkBill opens a pending bill for the stored photo and links the message to it.
func (chatter *Chatter) linkBill(ctx context.Context, message *db.TelegramMessage, user *db.User, key string) (*db.Bill, error) {
	var bill *db.Bill
	err := chatter.deps.DBC.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bill, err = chatter.services.Bills.WithTx(tx).Create(ctx, bills.NewBill{
			UserID:   user.ID,
			BillDate: message.SentAt,
			ImageURL: &key,
		})
		if err != nil {
			return err
		}
		if err := tx.Model(message).Update("bill_id", bill.ID).Error; err != nil {
			return fmt.Errorf("linking message to bill: %w", errors.WithStack(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

func (chatter *Chatter) markFailed(ctx context.Context, message *db.TelegramMessage, cause error) {
	changes := map[string]any{"status": db.MessageStatusFailed, "error_message": cause.Error()}
	if err := chatter.deps.DBC.WithContext(ctx).Model(message).Updates(changes).Error; err != nil {
		chatter.deps.Logger.With(logger.MESSAGE_ID, message.ID).With(logger.ERROR, errors.WithStack(err)).Error("Failed to mark message as failed")
	}
}

// bookkeepingContext outlives an expired download context so failures can still be recorded.
func (chatter *Chatter) bookkeepingContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(chatter.root), BOOKKEEPING_TIME)
}
