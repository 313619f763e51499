package catalog

import (
	"context"
	"strings"

	"github.com/EPecherkin/catty-bills/db"
)

type NewShop struct {
	Name    string  `json:"name"`
	Address *string `json:"address"`
}

func (input NewShop) row() (*db.Shop, error) {
	name, err := normalizeName("shop", input.Name)
	if err != nil {
		return nil, err
	}
	shop := &db.Shop{Name: name}
	if input.Address != nil {
		address := strings.TrimSpace(*input.Address)
		shop.Address = &address
	}
	return shop, nil
}

func (catalog *Catalog) ShopByName(ctx context.Context, name string) (*db.Shop, error) {
	return byName[db.Shop](ctx, catalog.deps.DBC, "shop", name)
}

// CreateShop fails with Conflict when the name is taken.
func (catalog *Catalog) CreateShop(ctx context.Context, input NewShop) (*db.Shop, error) {
	shop, err := input.row()
	if err != nil {
		return nil, err
	}
	return create(ctx, catalog.deps.DBC, "shop "+shop.Name, shop)
}

func (catalog *Catalog) GetOrCreateShop(ctx context.Context, input NewShop) (*db.Shop, error) {
	shop, err := input.row()
	if err != nil {
		return nil, err
	}
	return getOrCreate(ctx, catalog.deps.DBC, "shop", shop.Name, shop)
}

func (catalog *Catalog) ListShops(ctx context.Context, page db.Page) ([]db.Shop, int64, error) {
	return list[db.Shop](ctx, catalog.deps.DBC, "shops", page)
}
