package catalog

import (
	"context"
	"fmt"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/logger"
	"gorm.io/gorm"
)

// Deeper trees than this are treated as corrupted.
const maxCategoryDepth = 64

type NewCategory struct {
	Name     string `json:"name"`
	ParentID *uint  `json:"parent_id"`
}

// CategoryPatch renames and/or moves a category. ClearParent makes it a root.
type CategoryPatch struct {
	Name        *string `json:"name"`
	ParentID    *uint   `json:"parent_id"`
	ClearParent bool    `json:"clear_parent"`
}

func (catalog *Catalog) Category(ctx context.Context, id uint) (*db.Category, error) {
	var category db.Category
	if err := catalog.deps.DBC.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("category %d", id))
	}
	return &category, nil
}

func (catalog *Catalog) CategoryByName(ctx context.Context, name string) (*db.Category, error) {
	return byName[db.Category](ctx, catalog.deps.DBC, "category", name)
}

func (catalog *Catalog) newCategoryRow(ctx context.Context, input NewCategory) (*db.Category, error) {
	name, err := normalizeName("category", input.Name)
	if err != nil {
		return nil, err
	}
	if input.ParentID != nil {
		if _, err := catalog.Category(ctx, *input.ParentID); err != nil {
			return nil, err
		}
	}
	return &db.Category{Name: name, ParentID: input.ParentID}, nil
}

// CreateCategory fails with NotFound for a missing parent and Conflict when the name is taken.
func (catalog *Catalog) CreateCategory(ctx context.Context, input NewCategory) (*db.Category, error) {
	category, err := catalog.newCategoryRow(ctx, input)
	if err != nil {
		return nil, err
	}
	return create(ctx, catalog.deps.DBC, "category "+category.Name, category)
}

func (catalog *Catalog) GetOrCreateCategory(ctx context.Context, input NewCategory) (*db.Category, error) {
	if found, err := catalog.CategoryByName(ctx, input.Name); err == nil || !apperr.Is(err, apperr.NotFound) {
		return found, err
	}
	category, err := catalog.newCategoryRow(ctx, input)
	if err != nil {
		return nil, err
	}
	return getOrCreate(ctx, catalog.deps.DBC, "category", category.Name, category)
}

func (catalog *Catalog) UpdateCategory(ctx context.Context, id uint, patch CategoryPatch) (*db.Category, error) {
	lgr := catalog.deps.Logger.With("category_id", id)
	var updated *db.Category
	err := catalog.deps.DBC.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := catalog.WithTx(tx)
		category, err := txc.Category(ctx, id)
		if err != nil {
			return err
		}

		changes := map[string]any{}
		if patch.Name != nil {
			name, err := normalizeName("category", *patch.Name)
			if err != nil {
				return err
			}
			changes["name"] = name
		}
		switch {
		case patch.ClearParent:
			changes["parent_id"] = nil
		case patch.ParentID != nil:
			if err := txc.checkParent(ctx, id, *patch.ParentID); err != nil {
				return err
			}
			changes["parent_id"] = *patch.ParentID
		}

		if len(changes) > 0 {
			if err := tx.Model(category).Updates(changes).Error; err != nil {
				return apperr.FromDB(err, fmt.Sprintf("category %d", id))
			}
		}
		updated, err = txc.Category(ctx, id)
		return err
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			lgr.With(logger.ERROR, err).Error("Failed to update category")
		}
		return nil, err
	}
	return updated, nil
}

// checkParent rejects parentID when it is id itself or one of its descendants.
func (catalog *Catalog) checkParent(ctx context.Context, id, parentID uint) error {
	current := &parentID
	for depth := 0; current != nil; depth++ {
		if *current == id {
			return apperr.New(apperr.InvalidPayload, "category %d can't be nested under its own subtree", id)
		}
		if depth > maxCategoryDepth {
			return apperr.New(apperr.InvalidPayload, "category tree is deeper than %d", maxCategoryDepth)
		}
		ancestor, err := catalog.Category(ctx, *current)
		if err != nil {
			return err
		}
		current = ancestor.ParentID
	}
	return nil
}

// Children lists direct children of the category.
func (catalog *Catalog) Children(ctx context.Context, id uint) ([]db.Category, error) {
	if _, err := catalog.Category(ctx, id); err != nil {
		return nil, err
	}
	children := []db.Category{}
	if err := catalog.deps.DBC.WithContext(ctx).Where("parent_id = ?", id).Order("name ASC").Find(&children).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("children of category %d", id))
	}
	return children, nil
}

func (catalog *Catalog) ListCategories(ctx context.Context, page db.Page) ([]db.Category, int64, error) {
	return list[db.Category](ctx, catalog.deps.DBC, "categories", page)
}
