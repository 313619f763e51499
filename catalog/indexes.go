package catalog

import (
	"context"
	"fmt"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/db"
	"gorm.io/datatypes"
)

type NewIndex struct {
	Name     string         `json:"name"`
	Synonyms map[string]any `json:"synonyms"`
	// Either an existing category id or a name resolved through GetOrCreateCategory.
	CategoryID   *uint   `json:"category_id"`
	CategoryName *string `json:"category_name"`
}

func (catalog *Catalog) newIndexRow(ctx context.Context, input NewIndex) (*db.Index, error) {
	name, err := normalizeName("index", input.Name)
	if err != nil {
		return nil, err
	}
	index := &db.Index{Name: name, CategoryID: input.CategoryID}
	if input.Synonyms != nil {
		index.Synonyms = datatypes.JSONMap(input.Synonyms)
	}
	if input.CategoryID == nil && input.CategoryName != nil {
		category, err := catalog.GetOrCreateCategory(ctx, NewCategory{Name: *input.CategoryName})
		if err != nil {
			return nil, fmt.Errorf("resolving category of index %q: %w", name, err)
		}
		index.CategoryID = &category.ID
	}
	return index, nil
}

func (catalog *Catalog) Index(ctx context.Context, id uint) (*db.Index, error) {
	var index db.Index
	if err := catalog.deps.DBC.WithContext(ctx).Preload("Category").First(&index, id).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("index %d", id))
	}
	return &index, nil
}

func (catalog *Catalog) IndexByName(ctx context.Context, name string) (*db.Index, error) {
	return byName[db.Index](ctx, catalog.deps.DBC, "index", name)
}

// CreateIndex fails with Conflict when the name is taken and with
// ReferentialIntegrity when CategoryID points nowhere.
func (catalog *Catalog) CreateIndex(ctx context.Context, input NewIndex) (*db.Index, error) {
	index, err := catalog.newIndexRow(ctx, input)
	if err != nil {
		return nil, err
	}
	return create(ctx, catalog.deps.DBC, "index "+index.Name, index)
}

func (catalog *Catalog) GetOrCreateIndex(ctx context.Context, input NewIndex) (*db.Index, error) {
	if found, err := catalog.IndexByName(ctx, input.Name); err == nil || !apperr.Is(err, apperr.NotFound) {
		return found, err
	}
	index, err := catalog.newIndexRow(ctx, input)
	if err != nil {
		return nil, err
	}
	return getOrCreate(ctx, catalog.deps.DBC, "index", index.Name, index)
}

func (catalog *Catalog) ListIndexes(ctx context.Context, page db.Page) ([]db.Index, int64, error) {
	return list[db.Index](ctx, catalog.deps.DBC, "indexes", page)
}
