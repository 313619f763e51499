package db

import (
	"path/filepath"
	"testing"

	"github.com/EPecherkin/catty-bills/logger"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestDialectorForRejectsUnknownScheme(t *testing.T) {
	if _, _, err := dialectorFor("mysql://localhost/bills"); err == nil {
		t.Fatalf("expected error")
	}
	if _, _, err := dialectorFor("sqlite://"); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestWithForeignKeys(t *testing.T) {
	cases := map[string]string{
		"tmp/dev.sqlite3":          "tmp/dev.sqlite3?_foreign_keys=on",
		"file:x?mode=memory":       "file:x?mode=memory&_foreign_keys=on",
		"file:x?_foreign_keys=off": "file:x?_foreign_keys=off",
	}
	for in, want := range cases {
		if got := withForeignKeys(in); got != want {
			t.Fatalf("withForeignKeys(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewConnectionSqliteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bills.sqlite3")
	dbc, err := NewConnection("sqlite://"+path, logger.NewDiscard())
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}

	user := User{ExternalID: 42, IsActive: true}
	if err := dbc.Create(&user).Error; err != nil {
		t.Fatalf("creating user: %v", err)
	}
	if err := dbc.Create(&User{ExternalID: 42}).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("duplicate external id error = %v", err)
	}

	bill := Bill{UserID: 4242, Status: BillStatusPending, TotalAmount: decimal.NewNullDecimal(decimal.RequireFromString("1.50"))}
	if err := dbc.Create(&bill).Error; !errors.Is(err, gorm.ErrForeignKeyViolated) {
		t.Fatalf("missing user error = %v", err)
	}
}

func TestBillStatusValid(t *testing.T) {
	for _, status := range []BillStatus{BillStatusPending, BillStatusProcessing, BillStatusCompleted, BillStatusError} {
		if !status.Valid() {
			t.Fatalf("%s must be valid", status)
		}
	}
	if BillStatus("archived").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}

func TestPageNormalize(t *testing.T) {
	if got := (Page{Offset: -3}).Normalize(); got.Offset != 0 || got.Limit != DefaultLimit {
		t.Fatalf("Normalize = %+v", got)
	}
	if got := (Page{Limit: 10_000}).Normalize(); got.Limit != MaxLimit {
		t.Fatalf("Normalize = %+v", got)
	}
}
