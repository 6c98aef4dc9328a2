package core

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the ledger packages wraps exactly
// one of these so callers can branch with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrLimitExceeded   = errors.New("card limit exceeded")
	ErrBalanceExceeded = errors.New("balance exceeded")
	ErrNegativeBalance = errors.New("negative balance")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrUnsupported     = errors.New("unsupported operation")
)

var (
	ErrInvalidDay       = fmt.Errorf("%w: invalid day", ErrValidation)
	ErrInvalidMonth     = fmt.Errorf("%w: invalid month", ErrValidation)
	ErrInvalidDate      = fmt.Errorf("%w: invalid date, expected dd/mm/yyyy", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
	ErrEmptyCategory    = fmt.Errorf("%w: empty category", ErrValidation)
	ErrEmptyLedger      = fmt.Errorf("%w: there are no transactions", ErrNotFound)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
