package readings

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a submission that carries no usable data.
	ErrValidation = errors.New("readings: validation failed")
	// ErrStorageUnavailable marks a failure of the durable medium.
	ErrStorageUnavailable = errors.New("readings: storage unavailable")
)

// ValidationError describes why a submission was rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps err so that errors.Is(err, ErrStorageUnavailable) holds.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
