/*
Package ledger provides the core cost-ledger domain: immutable cost records,
the filter/sort/pagination query model, and the aggregation engine behind
the dashboard statistics.

KEY CONCEPTS IN THIS FILE (types.go):
  - CostRecord: An immutable ledger entry for a single line of cloud spend
  - Store: The persistence contract the engine consumes
  - InsertResult: Outcome of a bulk ingestion batch

DESIGN PRINCIPLES:
  1. Immutability: Records are never updated or deleted once ingested
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. All-or-nothing ingestion: A batch either lands whole or not at all

SEE ALSO:
  - query.go: Filter, sort and pagination model
  - stats.go: Dashboard aggregation
  - store/memory.go: In-memory Store for tests
  - store/sqlite: Durable Store implementation
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-day format for cost records.
// Lexicographic order on formatted dates equals chronological order.
const DateLayout = "2006-01-02"

// DefaultCurrency is assumed when an ingested record carries no currency.
const DefaultCurrency = "USD"

// CostRecord is a single line of cloud spend. Immutable once ingested.
type CostRecord struct {
	ID       string
	Date     time.Time // UTC midnight of the calendar day
	Provider string
	Service  string
	Env      string
	Team     string
	Cost     decimal.Decimal
	Currency string
}

// Day returns the record's calendar day in canonical form.
func (r CostRecord) Day() string {
	return r.Date.UTC().Format(DateLayout)
}

// Store is the persistence contract for the cost ledger.
// Implementations must treat Insert as an atomic batch: either every
// record in the slice is persisted or none is.
type Store interface {
	// Insert appends a batch of records and returns how many landed.
	Insert(ctx context.Context, records []CostRecord) (int, error)

	// Query returns the total number of records matching the filter
	// (ignoring pagination) and the requested page of items.
	Query(ctx context.Context, q Query) (total int, items []CostRecord, err error)

	// All returns every record in insertion order. Used by the stats
	// engine, which needs first-encountered ordering for tie-breaks.
	All(ctx context.Context) ([]CostRecord, error)

	// Sum returns the sum of Cost over records matching the filter.
	Sum(ctx context.Context, f Filter) (decimal.Decimal, error)
}
