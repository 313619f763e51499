// Package chatter turns inbound Telegram updates into stored chat messages,
// replies to the sender and attaches received receipt photos to new bills.
package chatter

import (
	"context"
	"sync"
	"time"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/bills"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/files"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/messenger/base"
	"github.com/EPecherkin/catty-bills/metrics"
	"github.com/EPecherkin/catty-bills/users"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm/clause"
)

const DOWNLOAD_TIMEOUT = 60 * time.Second

type Outcome string

const (
	OutcomeStored    Outcome = "stored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeCallback  Outcome = "callback"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

type Services struct {
	Users *users.Service
	Bills *bills.Service
	Store *files.Store
}

type Options struct {
	DownloadTimeout time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

type Chatter struct {
	msgc     base.Client
	services Services
	opts     Options

	// root outlives single requests, background downloads derive from it
	root context.Context
	wg   sync.WaitGroup

	deps deps.Deps
}

func NewChatter(ctx context.Context, msgc base.Client, services Services, opts Options, deps deps.Deps) *Chatter {
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = DOWNLOAD_TIMEOUT
	}
	deps = deps.WithCaller("chatter")
	deps.Logger.Debug("Creating chatter")
	return &Chatter{
		msgc:     msgc,
		services: services,
		opts:     opts,
		root:     ctx,
		deps:     deps,
	}
}

// Wait blocks until every background download has finished.
func (chatter *Chatter) Wait() {
	chatter.wg.Wait()
}

// Handle adapts HandleUpdate to the polling receiver.
func (chatter *Chatter) Handle(ctx context.Context, update tgbotapi.Update) error {
	_, err := chatter.HandleUpdate(ctx, update)
	return err
}

// HandleUpdate stores one update and reacts to it. Redelivered messages
// are recognized by chat and message id and produce OutcomeDuplicate.
func (chatter *Chatter) HandleUpdate(ctx context.Context, update tgbotapi.Update) (Outcome, error) {
	lgr := chatter.deps.Logger.With(logger.TELEGRAM_UPDATE_ID, update.UpdateID)

	var (
		outcome     Outcome
		messageType = "unknown"
		err         error
	)
	switch {
	case update.Message != nil:
		messageType, outcome, err = chatter.handleMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		messageType, outcome, err = chatter.handleMessage(ctx, update.EditedMessage)
	case update.CallbackQuery != nil:
		messageType, outcome = "callback", OutcomeCallback
		chatter.handleCallback(ctx, update.CallbackQuery)
	default:
		outcome, err = OutcomeRejected, apperr.New(apperr.InvalidPayload, "update carries no message")
	}

	if err != nil && outcome == "" {
		outcome = OutcomeFailed
		if apperr.Is(err, apperr.InvalidPayload) {
			outcome = OutcomeRejected
		}
	}
	chatter.opts.Metrics.ObserveUpdate(messageType, string(outcome))
	if err != nil {
		lgr.With(logger.ERROR, err).Warn("Failed to handle update")
	}
	return outcome, err
}

func (chatter *Chatter) handleMessage(ctx context.Context, message *tgbotapi.Message) (string, Outcome, error) {
	if err := validateMessage(message); err != nil {
		return "unknown", "", err
	}
	chatID := message.Chat.ID
	lgr := chatter.deps.Logger.With(logger.TELEGRAM_CHAT_ID, chatID).With(logger.TELEGRAM_MESSAGE_ID, message.MessageID)

	user, err := chatter.services.Users.GetOrCreate(ctx, chatID)
	if err != nil {
		return "unknown", "", err
	}

	kind := classify(message)
	row := &db.TelegramMessage{
		TelegramMessageID: int64(message.MessageID),
		ChatID:            chatID,
		MessageType:       kind.Type,
		Content:           kind.Content,
		FileID:            kind.FileID,
		Status:            db.MessageStatusSent,
		UserID:            user.ExternalID,
		SentAt:            sentAt(message),
	}
	res := chatter.deps.DBC.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}, {Name: "telegram_message_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return string(kind.Type), "", apperr.FromDB(res.Error, "telegram message")
	}
	if res.RowsAffected == 0 {
		lgr.Debug("Duplicate telegram message skipped")
		return string(kind.Type), OutcomeDuplicate, nil
	}
	lgr = lgr.With(logger.MESSAGE_ID, row.ID)
	lgr.With("type", kind.Type).Debug("Stored telegram message")

	switch {
	case message.Text != "":
		chatter.reply(ctx, chatID, textReply(message.Text))
	case kind.Type == db.MessageTypePhoto:
		chatter.reply(ctx, chatID, photoReceivedReply(message.Caption))
		chatter.wg.Add(1)
		go chatter.goDownloadPhoto(row, user)
	}
	return string(kind.Type), OutcomeStored, nil
}

func (chatter *Chatter) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	lgr := chatter.deps.Logger.With("callback_id", query.ID).With("data", query.Data)
	if query.From != nil {
		lgr = lgr.With(logger.TELEGRAM_CHAT_ID, query.From.ID)
	}
	lgr.Info("Callback query received")

	if err := chatter.msgc.AnswerCallback(ctx, query.ID, ""); err != nil {
		lgr.With(logger.ERROR, err).Warn("Failed to answer callback query")
	}
}

// reply failures never fail the update, the message is already stored
func (chatter *Chatter) reply(ctx context.Context, chatID int64, text string) {
	if err := chatter.msgc.SendText(ctx, chatID, text); err != nil {
		chatter.deps.Logger.With(logger.TELEGRAM_CHAT_ID, chatID).With(logger.ERROR, err).Warn("Failed to send reply")
	}
}

func sentAt(message *tgbotapi.Message) time.Time {
	if message.Date == 0 {
		return time.Now().UTC()
	}
	return message.Time().UTC()
}
