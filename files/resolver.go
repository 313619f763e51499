package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/pkg/errors"
)

type FileInfo struct {
	Path        string    `json:"file_path"`
	Name        string    `json:"file_name"`
	Size        int64     `json:"file_size"`
	ContentType string    `json:"file_type"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
	Exists      bool      `json:"exists"`
}

// Resolver maps stored paths and entity ids to files inside the upload
// root. Nothing outside the root is ever returned.
type Resolver struct {
	root string
	deps deps.Deps
}

func NewResolver(root string, deps deps.Deps) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving upload dir: %w", errors.WithStack(err))
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", errors.WithStack(err))
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Resolver{root: abs, deps: deps.WithCaller("files.Resolver")}, nil
}

func (resolver *Resolver) Root() string {
	return resolver.root
}

// SafePath returns the absolute, symlink-free form of path, or Forbidden
// when it leaves the upload root. Relative paths are taken from the root.
func (resolver *Resolver) SafePath(path string) (string, error) {
	if path == "" {
		return "", apperr.New(apperr.InvalidPayload, "file path is empty")
	}
	candidate := filepath.FromSlash(path)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(resolver.root, candidate)
	}
	candidate = filepath.Clean(candidate)
	if real, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = real
	}

	rel, err := filepath.Rel(resolver.root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		resolver.deps.Logger.With(logger.FILE_PATH, path).Warn("Access outside upload dir denied")
		return "", apperr.New(apperr.Forbidden, "access denied: file outside uploads directory")
	}
	return candidate, nil
}

// Info describes the file at path. A missing file is reported with Exists=false.
func (resolver *Resolver) Info(path string) (*FileInfo, error) {
	safe, err := resolver.SafePath(path)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{Path: safe, Name: filepath.Base(safe), ContentType: ContentType(safe)}
	stat, err := os.Stat(safe)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, apperr.Wrap(apperr.Internal, errors.WithStack(err), "getting file info")
	}
	if stat.IsDir() {
		return info, nil
	}
	info.Exists = true
	info.Size = stat.Size()
	// ctime isn't portable, mtime stands in for it
	info.CreatedAt = stat.ModTime()
	info.ModifiedAt = stat.ModTime()
	return info, nil
}

// Existing is Info that fails with NotFound when the file is absent.
func (resolver *Resolver) Existing(path string) (*FileInfo, error) {
	info, err := resolver.Info(path)
	if err != nil {
		return nil, err
	}
	if !info.Exists {
		return nil, apperr.New(apperr.NotFound, "file not found on disk")
	}
	return info, nil
}

// ByMessage returns the file downloaded for a chat message.
func (resolver *Resolver) ByMessage(ctx context.Context, messageID uint) (*FileInfo, error) {
	var message db.TelegramMessage
	if err := resolver.deps.DBC.WithContext(ctx).First(&message, messageID).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("message %d", messageID))
	}
	if message.FilePath == nil || *message.FilePath == "" {
		return nil, apperr.New(apperr.NotFound, "no file associated with this message")
	}
	return resolver.Existing(*message.FilePath)
}

// ByBill returns the receipt file of a bill: the file of a linked chat
// message, or the bill's own image_url when no message carries one.
func (resolver *Resolver) ByBill(ctx context.Context, billID uint) (*FileInfo, error) {
	dbc := resolver.deps.DBC.WithContext(ctx)

	var bill db.Bill
	if err := dbc.Select("id", "image_url").First(&bill, billID).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("bill %d", billID))
	}

	var messages []db.TelegramMessage
	if err := dbc.Where("bill_id = ? AND file_path IS NOT NULL", billID).Order("id ASC").Limit(1).Find(&messages).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("messages of bill %d", billID))
	}

	switch {
	case len(messages) > 0 && messages[0].FilePath != nil && *messages[0].FilePath != "":
		return resolver.Existing(*messages[0].FilePath)
	case bill.ImageURL != nil && *bill.ImageURL != "":
		return resolver.Existing(*bill.ImageURL)
	default:
		return nil, apperr.New(apperr.NotFound, "no file associated with this bill")
	}
}
