package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/messenger/base"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

type Client struct {
	tgbot        *tgbotapi.BotAPI
	httpc        *http.Client
	fileEndpoint string

	deps deps.Deps
}

type Options struct {
	// Both default to the public Bot API.
	APIEndpoint  string
	FileEndpoint string
	HTTPClient   *http.Client
	Debug        bool
}

// CreateClient authorizes the bot (getMe) and returns the messenger client.
func CreateClient(token string, opts Options, deps deps.Deps) (*Client, error) {
	deps = deps.WithCaller("messenger.telegram.Client")
	deps.Logger.Debug("Creating telegram client")

	if opts.APIEndpoint == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if opts.FileEndpoint == "" {
		opts.FileEndpoint = tgbotapi.FileEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	tgbot, err := tgbotapi.NewBotAPIWithClient(token, opts.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot client: %w", errors.WithStack(err))
	}
	tgbot.Debug = opts.Debug
	deps.Logger.Info("Authorized on account " + tgbot.Self.UserName)

	return &Client{tgbot: tgbot, httpc: opts.HTTPClient, fileEndpoint: opts.FileEndpoint, deps: deps}, nil
}

// Bot exposes the underlying api for the long-polling receiver.
func (client *Client) Bot() *tgbotapi.BotAPI {
	return client.tgbot
}

func upstream(err error, format string, args ...any) error {
	return apperr.Wrap(apperr.UpstreamUnavailable, errors.WithStack(err), format, args...)
}

func (client *Client) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return upstream(err, "sending message")
	}
	attrs := tgbotapi.NewMessage(chatID, text)
	attrs.ParseMode = tgbotapi.ModeHTML
	if _, err := client.tgbot.Send(attrs); err != nil {
		return upstream(err, "sending message")
	}
	client.deps.Logger.With(logger.TELEGRAM_CHAT_ID, chatID).Debug("sent message to user")
	return nil
}

func (client *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := client.tgbot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return upstream(err, "answering callback query")
	}
	return nil
}

// Download resolves the file path with getFile and streams the file.
func (client *Client) Download(ctx context.Context, fileID string) (*base.Download, error) {
	lgr := client.deps.Logger.With(logger.TELEGRAM_FILE_ID, fileID)

	file, err := client.tgbot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, upstream(err, "getting file path")
	}
	if file.FilePath == "" {
		return nil, apperr.New(apperr.UpstreamUnavailable, "telegram returned no file path")
	}

	fileURL := fmt.Sprintf(client.fileEndpoint, client.tgbot.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", errors.WithStack(err))
	}
	resp, err := client.httpc.Do(req)
	if err != nil {
		return nil, upstream(err, "downloading file")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apperr.New(apperr.UpstreamUnavailable, "downloading file: unexpected status %d", resp.StatusCode)
	}

	lgr.With("remote_path", file.FilePath).Debug("downloading file")
	return &base.Download{Body: resp.Body, RemotePath: file.FilePath, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (client *Client) SetWebhook(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, "https://") {
		return apperr.New(apperr.InvalidPayload, "webhook url must be https")
	}
	webhook, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return apperr.Wrap(apperr.InvalidPayload, errors.WithStack(err), "parsing webhook url")
	}
	if _, err := client.tgbot.Request(webhook); err != nil {
		return upstream(err, "setting webhook")
	}
	client.deps.Logger.With("url", url).Info("Webhook set")
	return nil
}

// DeleteWebhook is required before long polling.
func (client *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := client.tgbot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return upstream(err, "deleting webhook")
	}
	return nil
}

func (client *Client) SetCommands(ctx context.Context, commands []base.Command) error {
	botCommands := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, command := range commands {
		botCommands = append(botCommands, tgbotapi.BotCommand{Command: command.Command, Description: command.Description})
	}
	if _, err := client.tgbot.Request(tgbotapi.NewSetMyCommands(botCommands...)); err != nil {
		return upstream(err, "setting commands")
	}
	return nil
}

func (client *Client) BotInfo(ctx context.Context) (*base.BotInfo, error) {
	me, err := client.tgbot.GetMe()
	if err != nil {
		return nil, upstream(err, "getting bot info")
	}
	return &base.BotInfo{ID: me.ID, UserName: me.UserName, FirstName: me.FirstName, IsBot: me.IsBot}, nil
}
