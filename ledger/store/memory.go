// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/finops-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps records in insertion order and answers queries with the
// pure helpers from the ledger package, making it the reference
// implementation the SQLite store must agree with.
type Memory struct {
	mu      sync.RWMutex
	records []ledger.CostRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

// Insert appends a batch. The in-memory batch is trivially atomic.
func (m *Memory) Insert(_ context.Context, records []ledger.CostRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return len(records), nil
}

// Query filters, sorts and paginates with the ledger package helpers.
func (m *Memory) Query(_ context.Context, q ledger.Query) (int, []ledger.CostRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]ledger.CostRecord, 0)
	for _, r := range m.records {
		if q.Filter.Matches(r) {
			matched = append(matched, r)
		}
	}
	ledger.SortRecords(matched, q.Sort)
	return len(matched), ledger.Paginate(matched, q.Page), nil
}

// All returns every record in insertion order.
func (m *Memory) All(_ context.Context) ([]ledger.CostRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.CostRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Sum totals Cost over records matching the filter.
func (m *Memory) Sum(_ context.Context, f ledger.Filter) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, r := range m.records {
		if f.Matches(r) {
			total = total.Add(r.Cost)
		}
	}
	return total, nil
}
