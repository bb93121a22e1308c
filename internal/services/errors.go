package services

import (
	"errors"
	"fmt"
)

// ValidationError is a bad request caught before any side effect happened.
// Msg is safe to show to the user.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

var (
	ErrProvisioningFailed  = errors.New("wallet provisioning failed")
	ErrOutcomePending      = errors.New("transfer outcome still pending")
	ErrIdempotencyMismatch = errors.New("idempotency key reused with different transfer terms")
	ErrCancelled           = errors.New("transfer can no longer be cancelled")
	ErrDeliveryFailed      = errors.New("notification delivery failed")
	ErrForbidden           = errors.New("not allowed")
)
