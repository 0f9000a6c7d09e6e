// Package apperror defines the error kinds shared by every layer.
//
// Domain packages declare their own sentinels and mark them with one of the
// kinds below, so callers can branch on the kind without knowing the domain:
//
//	var ErrPaymentNotFound = apperror.Mark(errors.New("payment_not_found"), apperror.ErrNotFound)
//	...
//	if errors.Is(err, apperror.ErrNotFound) { ... }
package apperror

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrNotFound        = errors.New("not_found")
	ErrInvalidArgument = errors.New("invalid_argument")
	ErrConflict        = errors.New("conflict")
	ErrStore           = errors.New("store_error")
)

// Mark tags err with kind. errors.Is matches both the original error and kind.
func Mark(err error, kind error) error {
	return errors.Mark(err, kind)
}

// Store wraps a persistence failure. Errors that already carry a kind are
// returned as-is so a not-found or conflict detected below the service keeps
// its meaning.
func Store(err error, op string) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return errors.Mark(errors.Wrap(err, op), ErrStore)
}

// Kind returns the kind err is marked with, or nil for unclassified errors.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrInvalidArgument):
		return ErrInvalidArgument
	case errors.Is(err, ErrConflict):
		return ErrConflict
	case errors.Is(err, ErrStore):
		return ErrStore
	default:
		return nil
	}
}

// Code returns the snake_case code of the outermost sentinel in err's chain.
func Code(err error) string {
	if err == nil {
		return ""
	}
	if kind := Kind(err); kind != nil && errors.Is(kind, ErrStore) {
		return ErrStore.Error()
	}
	cause := errors.UnwrapAll(err)
	if cause == nil {
		return ErrStore.Error()
	}
	return cause.Error()
}
