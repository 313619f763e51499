// Package bills manages the Bill aggregate: the bill header, its status
// lifecycle and the line items appended to it.
package bills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/catalog"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type NewBill struct {
	UserID      uint
	BillDate    time.Time
	ShopID      *uint
	TotalAmount decimal.NullDecimal
	ImageURL    *string
}

// BillPatch carries only the fields to change; nil means untouched.
type BillPatch struct {
	ShopID       *uint
	BillDate     *time.Time
	TotalAmount  *decimal.Decimal
	ImageURL     *string
	Status       *db.BillStatus
	ErrorMessage *string
}

// NewBillItem references its product either by IndexID or by IndexName. A
// name is resolved through the catalog and created when unknown.
type NewBillItem struct {
	IndexID         *uint           `json:"index_id"`
	IndexName       *string         `json:"index_name"`
	CategoryName    *string         `json:"category_name"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	OriginalText    *string         `json:"original_text"`
	ConfidenceScore *float64        `json:"confidence_score"`
}

type Summary struct {
	BillID    uint            `json:"bill_id"`
	Status    db.BillStatus   `json:"status"`
	ItemCount int64           `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

type Service struct {
	catalog *catalog.Catalog
	deps    deps.Deps
}

func NewService(catalog *catalog.Catalog, deps deps.Deps) *Service {
	return &Service{catalog: catalog, deps: deps.WithCaller("bills")}
}

// WithTx returns a service bound to a running transaction.
func (service *Service) WithTx(tx *gorm.DB) *Service {
	deps := service.deps
	deps.DBC = tx
	return &Service{catalog: service.catalog.WithTx(tx), deps: deps}
}

func billName(id uint) string {
	return fmt.Sprintf("bill %d", id)
}

// Create stores an empty pending bill. A missing user surfaces as ReferentialIntegrity.
func (service *Service) Create(ctx context.Context, input NewBill) (*db.Bill, error) {
	if input.BillDate.IsZero() {
		return nil, apperr.New(apperr.InvalidPayload, "bill_date is required")
	}
	if input.TotalAmount.Valid && input.TotalAmount.Decimal.IsNegative() {
		return nil, apperr.New(apperr.InvalidPayload, "total_amount must not be negative")
	}

	bill := &db.Bill{
		UserID:      input.UserID,
		ShopID:      input.ShopID,
		BillDate:    input.BillDate,
		TotalAmount: input.TotalAmount,
		ImageURL:    input.ImageURL,
		Status:      db.BillStatusPending,
	}
	if err := service.deps.DBC.WithContext(ctx).Create(bill).Error; err != nil {
		return nil, apperr.FromDB(err, "bill")
	}
	service.deps.Logger.With(logger.BILL_ID, bill.ID).With(logger.USER_ID, bill.UserID).Debug("Created bill")
	return bill, nil
}

func (service *Service) Get(ctx context.Context, id uint) (*db.Bill, error) {
	return get(ctx, service.deps.DBC, id)
}

func get(ctx context.Context, dbc *gorm.DB, id uint) (*db.Bill, error) {
	var bill db.Bill
	err := dbc.WithContext(ctx).
		Preload("User").
		Preload("Shop").
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("bill_items.id ASC") }).
		Preload("Items.Index.Category").
		First(&bill, id).Error
	if err != nil {
		return nil, apperr.FromDB(err, billName(id))
	}
	if bill.Items == nil {
		bill.Items = []db.BillItem{}
	}
	return &bill, nil
}

// Update applies the non-nil fields of patch. Any known status is accepted,
// fields missing from patch keep their values.
func (service *Service) Update(ctx context.Context, id uint, patch BillPatch) (*db.Bill, error) {
	err := service.deps.DBC.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bill db.Bill
		if err := tx.First(&bill, id).Error; err != nil {
			return apperr.FromDB(err, billName(id))
		}

		changes := map[string]any{}
		if patch.ShopID != nil {
			changes["shop_id"] = *patch.ShopID
		}
		if patch.BillDate != nil {
			if patch.BillDate.IsZero() {
				return apperr.New(apperr.InvalidPayload, "bill_date must not be empty")
			}
			changes["bill_date"] = *patch.BillDate
		}
		if patch.TotalAmount != nil {
			if patch.TotalAmount.IsNegative() {
				return apperr.New(apperr.InvalidPayload, "total_amount must not be negative")
			}
			changes["total_amount"] = decimal.NewNullDecimal(*patch.TotalAmount)
		}
		if patch.ImageURL != nil {
			changes["image_url"] = *patch.ImageURL
		}
		if patch.ErrorMessage != nil {
			changes["error_message"] = *patch.ErrorMessage
		}
		if patch.Status != nil {
			next := *patch.Status
			if !next.Valid() {
				return apperr.New(apperr.InvalidPayload, "unknown bill status %q", next)
			}
			changes["status"] = next
		}

		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&bill).Updates(changes).Error; err != nil {
			return apperr.FromDB(err, billName(id))
		}
		return nil
	})
	if err != nil {
		service.logFailure(err, id, "Failed to update bill")
		return nil, err
	}
	return service.Get(ctx, id)
}

// AddItems appends items in one transaction. Nothing is stored when any
// item is invalid or any reference can't be resolved.
func (service *Service) AddItems(ctx context.Context, id uint, items []NewBillItem) (*db.Bill, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.InvalidPayload, "at least one item is required")
	}

	err := service.deps.DBC.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bill db.Bill
		if err := tx.Select("id").First(&bill, id).Error; err != nil {
			return apperr.FromDB(err, billName(id))
		}

		txCatalog := service.catalog.WithTx(tx)
		rows := make([]db.BillItem, 0, len(items))
		for n, item := range items {
			if problems := validateItem(item); len(problems) > 0 {
				return apperr.New(apperr.InvalidPayload, "item %d: %s", n, strings.Join(problems, "; "))
			}
			row := db.BillItem{
				BillID:          id,
				IndexID:         item.IndexID,
				Quantity:        item.Quantity,
				UnitPrice:       item.UnitPrice,
				TotalPrice:      item.TotalPrice,
				OriginalText:    item.OriginalText,
				ConfidenceScore: item.ConfidenceScore,
			}
			if row.IndexID == nil && item.IndexName != nil {
				index, err := txCatalog.GetOrCreateIndex(ctx, catalog.NewIndex{Name: *item.IndexName, CategoryName: item.CategoryName})
				if err != nil {
					return fmt.Errorf("resolving index of item %d: %w", n, err)
				}
				row.IndexID = &index.ID
			}
			rows = append(rows, row)
		}

		if err := tx.Create(&rows).Error; err != nil {
			return apperr.FromDB(err, "bill items of "+billName(id))
		}
		return nil
	})
	if err != nil {
		service.logFailure(err, id, "Failed to add bill items")
		return nil, err
	}

	service.deps.Logger.With(logger.BILL_ID, id).With("items", len(items)).Debug("Added bill items")
	return service.Get(ctx, id)
}

func validateItem(item NewBillItem) []string {
	var problems []string
	if !item.Quantity.IsPositive() {
		problems = append(problems, "quantity must be positive")
	}
	if item.UnitPrice.IsNegative() {
		problems = append(problems, "unit_price must not be negative")
	}
	if item.TotalPrice.IsNegative() {
		problems = append(problems, "total_price must not be negative")
	}
	if item.ConfidenceScore != nil && (*item.ConfidenceScore < 0 || *item.ConfidenceScore > 1) {
		problems = append(problems, "confidence_score must be within [0, 1]")
	}
	if item.IndexName != nil && strings.TrimSpace(*item.IndexName) == "" {
		problems = append(problems, "index_name must not be blank")
	}
	return problems
}

// Delete removes the bill with its items. Catalog rows stay, chat messages
// lose their link.
func (service *Service) Delete(ctx context.Context, id uint) error {
	err := service.deps.DBC.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bill db.Bill
		if err := tx.Select("id").First(&bill, id).Error; err != nil {
			return apperr.FromDB(err, billName(id))
		}
		if err := tx.Model(&db.TelegramMessage{}).Where("bill_id = ?", id).Update("bill_id", nil).Error; err != nil {
			return apperr.FromDB(err, "messages of "+billName(id))
		}
		if err := tx.Where("bill_id = ?", id).Delete(&db.BillItem{}).Error; err != nil {
			return apperr.FromDB(err, "items of "+billName(id))
		}
		if err := tx.Delete(&bill).Error; err != nil {
			return apperr.FromDB(err, billName(id))
		}
		return nil
	})
	if err != nil {
		service.logFailure(err, id, "Failed to delete bill")
		return err
	}
	service.deps.Logger.With(logger.BILL_ID, id).Info("Deleted bill")
	return nil
}

// ListByUser returns the user's bills, newest bill_date first.
func (service *Service) ListByUser(ctx context.Context, userID uint, page db.Page) ([]db.Bill, int64, error) {
	q := service.deps.DBC.WithContext(ctx).Model(&db.Bill{}).Where("user_id = ?", userID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "bills")
	}
	bills := []db.Bill{}
	if err := q.Preload("Shop").Order("bill_date DESC, id DESC").Scopes(page.Scope).Find(&bills).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "bills")
	}
	return bills, total, nil
}

func (service *Service) Summary(ctx context.Context, id uint) (*Summary, error) {
	var bill db.Bill
	if err := service.deps.DBC.WithContext(ctx).Select("id", "status").First(&bill, id).Error; err != nil {
		return nil, apperr.FromDB(err, billName(id))
	}

	var prices []decimal.Decimal
	if err := service.deps.DBC.WithContext(ctx).Model(&db.BillItem{}).Where("bill_id = ?", id).Pluck("total_price", &prices).Error; err != nil {
		return nil, apperr.FromDB(err, "items of "+billName(id))
	}

	summary := &Summary{BillID: id, Status: bill.Status, ItemCount: int64(len(prices)), Total: decimal.Zero}
	for _, price := range prices {
		summary.Total = summary.Total.Add(price)
	}
	return summary, nil
}

func (service *Service) logFailure(err error, id uint, msg string) {
	lgr := service.deps.Logger.With(logger.BILL_ID, id).With(logger.ERROR, err)
	if apperr.KindOf(err) == apperr.Internal {
		lgr.Error(msg)
	} else {
		lgr.Debug(msg)
	}
}
