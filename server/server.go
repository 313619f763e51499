// Package server assembles the services from a Config and runs them.
package server

import (
	"context"
	"fmt"

	"github.com/EPecherkin/catty-bills/api"
	"github.com/EPecherkin/catty-bills/bills"
	"github.com/EPecherkin/catty-bills/catalog"
	"github.com/EPecherkin/catty-bills/chatter"
	"github.com/EPecherkin/catty-bills/config"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/files"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/messenger/base"
	"github.com/EPecherkin/catty-bills/messenger/telegram"
	"github.com/EPecherkin/catty-bills/metrics"
	"github.com/EPecherkin/catty-bills/users"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	// ModeApi serves HTTP, updates arrive through the webhook.
	ModeApi Mode = "api"
	// ModeTelegram serves HTTP and long-polls updates.
	ModeTelegram Mode = "telegram"
)

func ParseMode(raw string) (Mode, error) {
	switch mode := Mode(raw); mode {
	case ModeApi, ModeTelegram:
		return mode, nil
	}
	return "", fmt.Errorf("unknown mode: %s", raw)
}

type Server struct {
	cfg *config.Config
	// tgc is nil without a bot token
	tgc     *telegram.Client
	chatter *chatter.Chatter
	api     *api.Api

	deps deps.Deps
}

// NewServer builds every service. Background work started later derives from ctx.
func NewServer(ctx context.Context, cfg *config.Config, mode Mode, deps deps.Deps) (*Server, error) {
	deps = deps.WithCaller("server")
	deps.Logger.Debug("Creating server")

	if mode == ModeTelegram {
		if err := cfg.RequireTelegram(); err != nil {
			return nil, err
		}
	}

	store, err := files.NewStore(cfg.UploadDir, deps)
	if err != nil {
		return nil, err
	}
	resolver, err := files.NewResolver(cfg.UploadDir, deps)
	if err != nil {
		return nil, err
	}

	server := &Server{cfg: cfg, deps: deps}
	m := metrics.New()

	var msgc base.Client = base.Unconfigured{}
	if cfg.TelegramToken != "" {
		server.tgc, err = telegram.CreateClient(cfg.TelegramToken, telegram.Options{}, deps)
		if err != nil {
			return nil, fmt.Errorf("initializing telegram client: %w", err)
		}
		msgc = server.tgc
	} else {
		deps.Logger.Warn("TELEGRAM_TOKEN is not set, bot endpoints are disabled")
	}

	catalog := catalog.NewCatalog(deps)
	usersService := users.NewService(deps)
	billsService := bills.NewService(catalog, deps)

	server.chatter = chatter.NewChatter(ctx, msgc, chatter.Services{
		Users: usersService,
		Bills: billsService,
		Store: store,
	}, chatter.Options{DownloadTimeout: cfg.DownloadTimeout, Metrics: m}, deps)

	server.api = api.NewApi(api.Services{
		Users:     usersService,
		Bills:     billsService,
		Catalog:   catalog,
		Resolver:  resolver,
		Chatter:   server.chatter,
		Messenger: msgc,
	}, api.Options{
		CORSOrigins:        cfg.CORSOrigins,
		TelegramConfigured: cfg.TelegramToken != "",
		WebhookURL:         cfg.TelegramWebhookURL,
		Metrics:            m,
	}, deps)

	return server, nil
}

// Run serves HTTP until ctx is done. ModeTelegram polls for updates alongside.
// Pending downloads are awaited before returning.
func (server *Server) Run(ctx context.Context, mode Mode) error {
	server.deps.Logger.With("mode", mode).Debug("Running server")
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.api.Run(ctx, server.cfg.ApiAddress())
	})

	switch mode {
	case ModeTelegram:
		receiver := telegram.NewReceiver(server.chatter.Handle, server.deps)
		group.Go(func() error {
			return receiver.Run(ctx, server.tgc)
		})
	case ModeApi:
		if server.tgc != nil && server.cfg.TelegramWebhookURL != "" {
			if err := server.tgc.SetWebhook(ctx, server.cfg.TelegramWebhookURL); err != nil {
				server.deps.Logger.With(logger.ERROR, err).Warn("Failed to register webhook")
			}
		}
	}

	err := group.Wait()
	server.chatter.Wait()
	server.deps.Logger.Info("Server stopped")
	return err
}
