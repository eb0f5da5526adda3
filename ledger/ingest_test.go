package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finops-engine/ledger"
	"github.com/warp/finops-engine/ledger/store"
)

func TestIngestor_EmptyBatchRejected(t *testing.T) {
	ing := ledger.NewIngestor(store.NewMemory())

	_, err := ing.Insert(context.Background(), nil)
	if !errors.Is(err, ledger.ErrEmptyBatch) {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestIngestor_InvalidItemRejectsWholeBatch(t *testing.T) {
	mem := store.NewMemory()
	ing := ledger.NewIngestor(mem)

	batch := []ledger.CostRecord{
		rec("2025-01-01", "aws", "S3", "prod", "a", 10),
		rec("2025-01-02", "aws", "EC2", "prod", "a", -5),
		{Provider: "aws", Service: "RDS", Cost: decimal.NewFromInt(1)}, // zero date
	}

	_, err := ing.Insert(context.Background(), batch)
	if !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("err = %v, want a validation error", err)
	}

	var batchErr *ledger.BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("err = %T, want *BatchError", err)
	}
	if len(batchErr.Items) != 2 {
		t.Fatalf("got %d item errors, want 2", len(batchErr.Items))
	}
	if batchErr.Items[0].Index != 1 || batchErr.Items[1].Index != 2 {
		t.Errorf("item error indexes = %d, %d, want 1, 2", batchErr.Items[0].Index, batchErr.Items[1].Index)
	}

	all, _ := mem.All(context.Background())
	if len(all) != 0 {
		t.Errorf("store has %d records after rejected batch, want 0", len(all))
	}
}

func TestIngestor_Normalizes(t *testing.T) {
	mem := store.NewMemory()
	ing := ledger.NewIngestor(mem)

	withTime := rec("2025-03-15", "aws", "S3", "prod", "a", 10)
	withTime.Date = withTime.Date.Add(13*time.Hour + 45*time.Minute)
	withTime.Currency = ""

	n, err := ing.Insert(context.Background(), []ledger.CostRecord{withTime})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	all, _ := mem.All(context.Background())
	got := all[0]
	if got.ID == "" {
		t.Error("id should be assigned on ingest")
	}
	if got.Day() != "2025-03-15" {
		t.Errorf("date = %s, want truncated to 2025-03-15", got.Day())
	}
	if h, m, _ := got.Date.Clock(); h != 0 || m != 0 {
		t.Errorf("time of day should be truncated, got %02d:%02d", h, m)
	}
	if got.Currency != ledger.DefaultCurrency {
		t.Errorf("currency = %q, want default %q", got.Currency, ledger.DefaultCurrency)
	}
}

func TestIngestor_ZeroCostAllowed(t *testing.T) {
	ing := ledger.NewIngestor(store.NewMemory())

	n, err := ing.Insert(context.Background(), []ledger.CostRecord{
		rec("2025-01-01", "aws", "S3", "prod", "a", 0),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}
}
