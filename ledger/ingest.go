/*
ingest.go - Bulk ingestion of parsed cost records

PURPOSE:
  Validates and normalizes a batch of already-parsed records, assigns
  ids, and hands the batch to the store as one atomic insert. Parsing
  (CSV or otherwise) happens upstream; the engine only sees records.

VALIDATION:
  - cost must be non-negative
  - date must be a valid calendar day
  - provider/service/env/team are free text, no constraint
  - currency defaults to USD when empty

  Every invalid record is reported by index via BatchError; a batch with
  any invalid record is rejected whole and nothing is persisted.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ingestor validates batches and writes them to a Store.
type Ingestor struct {
	store Store
}

// NewIngestor creates an Ingestor backed by the given store.
func NewIngestor(store Store) *Ingestor {
	return &Ingestor{store: store}
}

// Insert validates, normalizes and atomically persists a batch.
// Returns the number of records inserted.
func (in *Ingestor) Insert(ctx context.Context, records []CostRecord) (int, error) {
	if len(records) == 0 {
		return 0, ErrEmptyBatch
	}

	var batchErr BatchError
	prepared := make([]CostRecord, len(records))
	for i, r := range records {
		if r.Cost.IsNegative() {
			batchErr.Items = append(batchErr.Items, ItemError{
				Index: i,
				Err:   &ValidationError{Field: "cost", Message: "must be non-negative"},
			})
			continue
		}
		if r.Date.IsZero() {
			batchErr.Items = append(batchErr.Items, ItemError{
				Index: i,
				Err:   &ValidationError{Field: "date", Message: "missing or invalid calendar date"},
			})
			continue
		}
		r.Date = truncateToDay(r.Date)
		if r.Currency == "" {
			r.Currency = DefaultCurrency
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		prepared[i] = r
	}
	if len(batchErr.Items) > 0 {
		return 0, &batchErr
	}

	return in.store.Insert(ctx, prepared)
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
