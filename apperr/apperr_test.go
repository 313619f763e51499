package apperr

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := New(NotFound, "bill %d not found", 7)
	wrapped := fmt.Errorf("getting bill: %w", err)

	if KindOf(wrapped) != NotFound {
		t.Fatalf("KindOf = %v", KindOf(wrapped))
	}
	if !Is(wrapped, NotFound) || Is(wrapped, Conflict) {
		t.Fatalf("Is mismatch for %v", wrapped)
	}
	if Message(wrapped) != "bill 7 not found" {
		t.Fatalf("Message = %q", Message(wrapped))
	}
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("boom")
	if KindOf(err) != Internal {
		t.Fatalf("KindOf = %v", KindOf(err))
	}
	if Is(nil, Internal) {
		t.Fatalf("nil error must not match a kind")
	}
	if Message(err) != "internal error" {
		t.Fatalf("Message = %q", Message(err))
	}
}

func TestFromDB(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{gorm.ErrRecordNotFound, NotFound},
		{fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), Conflict},
		{gorm.ErrForeignKeyViolated, ReferentialIntegrity},
		{errors.New("disk I/O error"), Internal},
		{New(Forbidden, "nope"), Forbidden},
	}
	for _, c := range cases {
		if got := KindOf(FromDB(c.err, "shop")); got != c.want {
			t.Fatalf("FromDB(%v) kind = %v, want %v", c.err, got, c.want)
		}
	}
	if FromDB(nil, "shop") != nil {
		t.Fatalf("nil must stay nil")
	}
}
