package leads

import (
	"errors"
	"fmt"

	"github.com/wolfman30/leadcapture/internal/validation"
)

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrPersistence marks storage failures. Callers only see a generic message.
	ErrPersistence = errors.New("leads: persistence failure")

	// ErrInvalidBody is returned when the submission is not a JSON object
	ErrInvalidBody = errors.New("request body must be a JSON object")
)

// ValidationError lists every failing field of a submission.
type ValidationError = validation.Error

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
