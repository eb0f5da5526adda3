/*
errors.go - Error types for the cost ledger

ERROR CATEGORIES:
  1. Validation errors - malformed records or query parameters
  2. Batch errors - per-item failures in bulk ingestion
  3. Store errors - persistence failures (wrapped by implementations)

USAGE:
  Callers branch with errors.Is / errors.As:

    var batchErr *ledger.BatchError
    if errors.As(err, &batchErr) {
        // batchErr.Items lists the offending records by index
    }
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is the sentinel all validation failures unwrap to.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyBatch is returned when an ingestion batch has no records.
	ErrEmptyBatch = errors.New("empty batch")
)

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ItemError ties a validation failure to its index in a batch.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

// BatchError reports every invalid record in a rejected batch. The
// batch is all-or-nothing, so one bad record rejects the whole batch,
// but the caller sees each failure rather than only the first.
type BatchError struct {
	Items []ItemError
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Items))
	for i, item := range e.Items {
		msgs[i] = item.Error()
	}
	return "invalid batch: " + strings.Join(msgs, "; ")
}

func (e *BatchError) Unwrap() error {
	return ErrValidation
}
