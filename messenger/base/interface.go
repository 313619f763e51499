package base

import (
	"context"
	"io"

	"github.com/EPecherkin/catty-bills/apperr"
)

type BotInfo struct {
	ID        int64  `json:"id"`
	UserName  string `json:"username"`
	FirstName string `json:"first_name"`
	IsBot     bool   `json:"is_bot"`
}

type Command struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// Download is a remote file being read. Body must be closed by the caller.
type Download struct {
	Body io.ReadCloser
	// RemotePath is the path of the file on the messenger side, it carries the extension.
	RemotePath  string
	ContentType string
}

// Client is the outbound side of a messenger.
type Client interface {
	SendText(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	Download(ctx context.Context, fileID string) (*Download, error)
	SetWebhook(ctx context.Context, url string) error
	SetCommands(ctx context.Context, commands []Command) error
	BotInfo(ctx context.Context) (*BotInfo, error)
}

// Unconfigured stands in for a messenger without credentials. Every call
// fails with UpstreamUnavailable.
type Unconfigured struct{}

func (Unconfigured) err() error {
	return apperr.New(apperr.UpstreamUnavailable, "bot token not configured")
}

func (c Unconfigured) SendText(context.Context, int64, string) error { return c.err() }

func (c Unconfigured) AnswerCallback(context.Context, string, string) error { return c.err() }

func (c Unconfigured) Download(context.Context, string) (*Download, error) { return nil, c.err() }

func (c Unconfigured) SetWebhook(context.Context, string) error { return c.err() }

func (c Unconfigured) SetCommands(context.Context, []Command) error { return c.err() }

func (c Unconfigured) BotInfo(context.Context) (*BotInfo, error) { return nil, c.err() }
