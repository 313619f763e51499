package api

import (
	"net/http"
	"time"

	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	REQUEST_ID_HEADER = "X-Request-ID"
	requestLoggerKey  = "request_logger"
)

// requestLog tags every request with an id and writes one access line when it completes.
func (api *Api) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		requestID := c.GetHeader(REQUEST_ID_HEADER)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(REQUEST_ID_HEADER, requestID)
		lgr := api.deps.Logger.With(logger.REQUEST_ID, requestID)
		c.Set(requestLoggerKey, lgr)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		lgr = lgr.
			With("method", c.Request.Method).
			With("path", route).
			With("status", status).
			With("duration_ms", time.Since(started).Milliseconds()).
			With("client_ip", c.ClientIP())
		switch {
		case status >= 500:
			lgr.Error("HTTP request")
		case status >= 400:
			lgr.Warn("HTTP request")
		default:
			lgr.Info("HTTP request")
		}
	}
}

func (api *Api) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		api.logger(c).With(logger.ERROR, errors.Errorf("panic: %v", recovered)).Error("panic in handler")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorEnvelope{Error: apiError{Message: "internal error", Code: "internal"}})
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", REQUEST_ID_HEADER},
		ExposeHeaders: []string{REQUEST_ID_HEADER},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		started := time.Now()
		m.StartRequest()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.FinishRequest(c.Request.Method, route, c.Writer.Status(), time.Since(started))
	}
}
