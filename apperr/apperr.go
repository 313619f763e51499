// Package apperr carries the error kinds shared by the services and the api
// layer. Callers branch on Kind instead of matching error strings.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Kind int

const (
	Internal Kind = iota
	NotFound
	Conflict
	Forbidden
	ReferentialIntegrity
	UpstreamUnavailable
	InvalidPayload
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	case ReferentialIntegrity:
		return "referential_integrity"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	case InvalidPayload:
		return "invalid_payload"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kinded error with a stack trace.
func New(kind Kind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Wrap attaches a kind to err. A nil err stays nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err})
}

// KindOf returns the outermost kind found in the chain, Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-facing text of a kinded error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// FromDB translates gorm errors (with TranslateError enabled) into kinds.
// `what` names the entity for the message, e.g. "bill 12".
func FromDB(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(NotFound, err, "%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Wrap(Conflict, err, "%s already exists", what)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return Wrap(ReferentialIntegrity, err, "%s references a missing record", what)
	default:
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return Wrap(Internal, err, "%s: database failure", what)
	}
}
