package db

import "gorm.io/gorm"

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Page is an offset/limit window over a list query.
type Page struct {
	Offset int
	Limit  int
}

func (page Page) Normalize() Page {
	if page.Limit <= 0 {
		page.Limit = DefaultLimit
	}
	if page.Limit > MaxLimit {
		page.Limit = MaxLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}

// Scope applies the page to a query: dbc.Scopes(page.Scope).
func (page Page) Scope(q *gorm.DB) *gorm.DB {
	page = page.Normalize()
	return q.Offset(page.Offset).Limit(page.Limit)
}
