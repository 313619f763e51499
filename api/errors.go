package api

import (
	"log/slog"
	"net/http"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/gin-gonic/gin"
)

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict, apperr.InvalidPayload:
		return http.StatusBadRequest
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (api *Api) logger(c *gin.Context) *slog.Logger {
	if lgr, ok := c.Get(requestLoggerKey); ok {
		if lgr, ok := lgr.(*slog.Logger); ok {
			return lgr
		}
	}
	return api.deps.Logger
}

// respondError renders err with the status of its kind.
func (api *Api) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)

	lgr := api.logger(c).With(logger.ERROR, err).With("kind", kind.String())
	switch {
	case kind == apperr.Forbidden:
		lgr.Warn("Forbidden file access")
	case status >= 500:
		lgr.Error("Request failed")
	default:
		lgr.Debug("Request rejected")
	}

	c.AbortWithStatusJSON(status, errorEnvelope{Error: apiError{Message: apperr.Message(err), Code: kind.String()}})
}

func (api *Api) invalid(c *gin.Context, err error, format string, args ...any) {
	api.respondError(c, apperr.Wrap(apperr.InvalidPayload, err, format, args...))
}
