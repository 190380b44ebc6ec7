package domain

import (
	"errors"
	"fmt"
)

var (
	ErrExtraction       = errors.New("extraction failure")
	ErrClassification   = errors.New("classification failure")
	ErrIntegrity        = errors.New("integrity failure")
	ErrLockTimeout      = errors.New("index lock timeout")
	ErrSink             = errors.New("sink failure")
	ErrSessionCorrupted = errors.New("session corrupted")
	ErrInvalidInput     = errors.New("invalid input")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
