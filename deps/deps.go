package deps

import (
	"log/slog"

	"github.com/EPecherkin/catty-bills/logger"
	"gocloud.dev/blob"
	"gorm.io/gorm"
)

// Shared dependencies handed to every component by value. Components narrow
// Logger with their own CALLER and keep the copy.
type Deps struct {
	Logger *slog.Logger
	DBC    *gorm.DB
	Files  *blob.Bucket
}

func NewDeps(lgr *slog.Logger, dbc *gorm.DB, files *blob.Bucket) Deps {
	return Deps{Logger: lgr, DBC: dbc, Files: files}
}

// WithCaller returns a copy whose logger is tagged with caller.
func (deps Deps) WithCaller(caller string) Deps {
	deps.Logger = deps.Logger.With(logger.CALLER, caller)
	return deps
}
