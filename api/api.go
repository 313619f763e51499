// Package api is the HTTP surface: REST endpoints over bills, users and the
// catalog, file serving and the Telegram webhook with its admin passthroughs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/EPecherkin/catty-bills/bills"
	"github.com/EPecherkin/catty-bills/catalog"
	"github.com/EPecherkin/catty-bills/chatter"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/files"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/messenger/base"
	"github.com/EPecherkin/catty-bills/metrics"
	"github.com/EPecherkin/catty-bills/users"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

type Services struct {
	Users     *users.Service
	Bills     *bills.Service
	Catalog   *catalog.Catalog
	Resolver  *files.Resolver
	Chatter   *chatter.Chatter
	Messenger base.Client
}

type Options struct {
	CORSOrigins []string
	// TelegramConfigured is reported by /telegram/health.
	TelegramConfigured bool
	// WebhookURL is used by /telegram/set-webhook when the request names none.
	WebhookURL string
	// Metrics may be nil, /metrics is not served then.
	Metrics *metrics.Metrics
}

type Api struct {
	services Services
	opts     Options

	deps deps.Deps
}

func NewApi(services Services, opts Options, deps deps.Deps) *Api {
	deps = deps.WithCaller("api")
	deps.Logger.Debug("Creating api")
	return &Api{services: services, opts: opts, deps: deps}
}

func (api *Api) Router() *gin.Engine {
	router := gin.New()
	router.Use(
		api.requestLog(),
		api.recovery(),
		corsMiddleware(api.opts.CORSOrigins),
		metricsMiddleware(api.opts.Metrics),
	)

	router.GET("/healthcheck", api.healthcheck)
	if api.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(api.opts.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/users", api.createUser)
		v1.GET("/users/:id", api.getUser)
		v1.PATCH("/users/:id", api.updateUser)
		v1.GET("/users/:id/bills", api.userBills)

		v1.POST("/bills", api.createBill)
		v1.GET("/bills/:id", api.getBill)
		v1.PATCH("/bills/:id", api.updateBill)
		v1.DELETE("/bills/:id", api.deleteBill)
		v1.POST("/bills/:id/items", api.addBillItems)
		v1.GET("/bills/:id/summary", api.billSummary)
		v1.GET("/bills/:id/file", api.billFile)
		v1.GET("/bills/:id/file/info", api.billFileInfo)

		v1.POST("/shops", api.createShop)
		v1.GET("/shops", api.listShops)
		v1.POST("/categories", api.createCategory)
		v1.GET("/categories", api.listCategories)
		v1.PATCH("/categories/:id", api.updateCategory)
		v1.GET("/categories/:id/children", api.categoryChildren)
		v1.POST("/indexes", api.createIndex)
		v1.GET("/indexes", api.listIndexes)

		v1.GET("/files/raw/*path", api.rawFile)
		v1.GET("/files/info/*path", api.fileInfo)
		v1.GET("/files/telegram/:message_id/file", api.messageFile)
		v1.GET("/files/telegram/:message_id/file/info", api.messageFileInfo)
	}

	telegram := router.Group("/telegram")
	{
		telegram.POST("/webhook", api.webhook)
		telegram.POST("/send-message", api.sendMessage)
		telegram.POST("/set-webhook", api.setWebhook)
		telegram.POST("/set-commands", api.setCommands)
		telegram.GET("/bot-info", api.botInfo)
		telegram.GET("/health", api.telegramHealth)

		telegram.GET("/messages", api.listMessages)
		telegram.GET("/messages/search", api.searchMessages)
		telegram.GET("/messages/stats", api.messageStats)
		telegram.GET("/messages/chat/:chat_id", api.chatMessages)
		telegram.GET("/messages/:id", api.getMessage)
	}

	return router
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (api *Api) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	failed := make(chan error, 1)
	go func() {
		api.deps.Logger.With("address", address).Info("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	select {
	case err := <-failed:
		if err != nil {
			return fmt.Errorf("serving api: %w", errors.WithStack(err))
		}
		return nil
	case <-ctx.Done():
	}

	api.deps.Logger.Info("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		api.deps.Logger.With(logger.ERROR, errors.WithStack(err)).Error("api shutdown failed")
		return fmt.Errorf("shutting api down: %w", errors.WithStack(err))
	}
	return nil
}

func (api *Api) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
