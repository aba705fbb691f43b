package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrValidation                  = errors.New("validation failed")
	ErrNotFound                    = errors.New("not found")
	ErrConflict                    = errors.New("conflict")
	ErrInsufficientStock           = errors.New("insufficient stock")
	ErrInvalidState                = errors.New("invalid state")
	ErrUnauthorized                = errors.New("unauthorized")
	ErrPinNotConfigured            = errors.New("manager pin not configured")
	ErrVarianceExplanationRequired = errors.New("variance explanation required")
	ErrLockTimeout                 = errors.New("lock timeout")
	ErrMissingAttributionTarget    = errors.New("no active staff member to attribute the sale to")
)

var (
	ErrAlreadyOpen          = fmt.Errorf("%w: register already opened for this date", ErrConflict)
	ErrAlreadyClosed        = fmt.Errorf("%w: register already closed", ErrInvalidState)
	ErrRegisterClosed       = fmt.Errorf("%w: register is not open", ErrInvalidState)
	ErrPreviousRegisterOpen = fmt.Errorf("%w: a previous register is still open", ErrInvalidState)
)

// InsufficientStockError reports a rejected decrement
type InsufficientStockError struct {
	Ref       ItemRef
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s, requested %s",
		e.Ref, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// VarianceError reports a close attempt whose variance needs a note and a manager PIN
type VarianceError struct {
	Variance  decimal.Decimal
	Threshold decimal.Decimal
}

func (e *VarianceError) Error() string {
	return fmt.Sprintf("variance %s exceeds threshold %s: note and manager pin required",
		e.Variance.StringFixed(2), e.Threshold.StringFixed(2))
}

func (e *VarianceError) Is(target error) bool {
	return target == ErrVarianceExplanationRequired
}

// Scales of the persisted decimal columns: quantities DECIMAL(14,3), money DECIMAL(14,2)
const (
	QuantityScale int32 = 3
	MoneyScale    int32 = 2
)

// CheckQuantity rejects quantities finer than the stock columns store
func CheckQuantity(field string, v decimal.Decimal) error {
	return checkScale(field, v, QuantityScale)
}

// CheckAmount rejects money finer than the amount columns store
func CheckAmount(field string, v decimal.Decimal) error {
	return checkScale(field, v, MoneyScale)
}

func checkScale(field string, v decimal.Decimal, scale int32) error {
	if v.Equal(v.Truncate(scale)) {
		return nil
	}
	return fmt.Errorf("%w: %s allows at most %d decimal places", ErrValidation, field, scale)
}

// CheckScales returns the first scale violation among checks
func CheckScales(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
