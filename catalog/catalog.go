// Package catalog owns the reference entities bills point to: shops,
// categories and product indexes. Names are unique per entity, and the
// get-or-create operations are safe to call concurrently for the same name.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Catalog struct {
	deps deps.Deps
}

func NewCatalog(deps deps.Deps) *Catalog {
	return &Catalog{deps: deps.WithCaller("catalog")}
}

// WithTx returns a catalog bound to a running transaction.
func (catalog *Catalog) WithTx(tx *gorm.DB) *Catalog {
	deps := catalog.deps
	deps.DBC = tx
	return &Catalog{deps: deps}
}

func normalizeName(what, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.New(apperr.InvalidPayload, "%s name is required", what)
	}
	return name, nil
}

func byName[T any](ctx context.Context, dbc *gorm.DB, what, name string) (*T, error) {
	name, err := normalizeName(what, name)
	if err != nil {
		return nil, err
	}
	var row T
	if err := dbc.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("%s %q", what, name))
	}
	return &row, nil
}

func create[T any](ctx context.Context, dbc *gorm.DB, what string, row *T) (*T, error) {
	if err := dbc.WithContext(ctx).Create(row).Error; err != nil {
		return nil, apperr.FromDB(err, what)
	}
	return row, nil
}

// getOrCreate looks name up and inserts row when it is absent. The insert
// ignores a conflicting name, in which case a concurrent caller created it
// first and the lookup is repeated.
func getOrCreate[T any](ctx context.Context, dbc *gorm.DB, what, name string, row *T) (*T, error) {
	found, err := byName[T](ctx, dbc, what, name)
	if err == nil {
		return found, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}

	res := dbc.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, apperr.FromDB(res.Error, what)
	}
	if res.RowsAffected > 0 {
		return row, nil
	}

	found, err = byName[T](ctx, dbc, what, name)
	if err != nil {
		return nil, fmt.Errorf("re-reading %s after conflict: %w", what, errors.WithStack(err))
	}
	return found, nil
}

func list[T any](ctx context.Context, dbc *gorm.DB, what string, page db.Page) ([]T, int64, error) {
	q := dbc.WithContext(ctx).Model(new(T)).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.FromDB(err, what)
	}

	rows := []T{}
	if err := q.Order("name ASC").Scopes(page.Scope).Find(&rows).Error; err != nil {
		return nil, 0, apperr.FromDB(err, what)
	}
	return rows, total, nil
}
