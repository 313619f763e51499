package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// NewConnection opens the database named by dsn and migrates the models.
// postgres:// and postgresql:// go to postgres, sqlite://path and file: to sqlite.
func NewConnection(dsn string, lgr *slog.Logger) (*gorm.DB, error) {
	dialector, isSqlite, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	dblgr := logger.New(
		slog.NewLogLogger(lgr.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	dbc, err := gorm.Open(dialector, &gorm.Config{Logger: dblgr, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", errors.WithStack(err))
	}

	if isSqlite {
		sqlDB, err := dbc.DB()
		if err != nil {
			return nil, fmt.Errorf("getting sql.DB: %w", errors.WithStack(err))
		}
		// sqlite serializes writers anyway; one connection keeps :memory: databases whole.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(dbc); err != nil {
		return nil, err
	}

	return dbc, nil
}

func Migrate(dbc *gorm.DB) error {
	if err := dbc.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrating database: %w", errors.WithStack(err))
	}
	return nil
}

func dialectorFor(dsn string) (gorm.Dialector, bool, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), false, nil
	case strings.HasPrefix(dsn, sqlitePrefix):
		path := strings.TrimPrefix(dsn, sqlitePrefix)
		if path == "" {
			return nil, false, errors.Errorf("sqlite database path is empty: %q", dsn)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, false, fmt.Errorf("creating database directory: %w", errors.WithStack(err))
			}
		}
		return sqlite.Open(withForeignKeys(path)), true, nil
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(withForeignKeys(dsn)), true, nil
	default:
		return nil, false, errors.Errorf("unsupported DATABASE_URL: %q", dsn)
	}
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}
