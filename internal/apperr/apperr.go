// Package apperr defines the engine's error taxonomy. Usecases translate
// storage-level failures into these; callers match with errors.Is / errors.As
// and never see driver details.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateBatch         = errors.New("batch number already exists")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// InsufficientStockError reports the shortfall of a failed allocation.
// errors.Is(err, ErrInsufficientStock) matches it.
type InsufficientStockError struct {
	Requested float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %.2f, available %.2f", e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidQuantityf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuantity, fmt.Sprintf(format, args...))
}

func InvalidStateTransitionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidStateTransition, fmt.Sprintf(format, args...))
}

func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
