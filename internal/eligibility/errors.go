package eligibility

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown or soft-deleted leads.
	ErrNotFound = errors.New("eligibility lead not found")

	// ErrPersistence marks storage failures.
	ErrPersistence = errors.New("eligibility: persistence failure")
)

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
