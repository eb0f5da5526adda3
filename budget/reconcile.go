/*
reconcile.go - Budget reconciliation engine

PURPOSE:
  Owns every budget mutation and the computation of actual spend from
  the cost ledger:
  - ComputeSpent: pure aggregate of ledger cost over a budget scope
  - Create: validate, compute SpentCache synchronously, persist, audit
  - Update: merge-partial semantics, no SpentCache recompute
  - Delete: remove, audit
  - RecalcAll: recompute every budget's SpentCache independently

RECALC POLICY:
  Budgets are processed independently; one failure never aborts the
  others. The result reports the count of budgets attempted plus the
  list of per-item failures. Recomputation is idempotent: with an
  unchanged ledger a second run leaves every SpentCache identical.

  Workers run in a bounded errgroup. Per-budget recomputes have no
  ordering dependency, so the parallel result equals the sequential one.

AUDIT:
  Every mutation emits one audit entry (best-effort, never blocking).
  RecalcAll emits a single summary entry with the processed count.
*/
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/finops-engine/audit"
	"github.com/warp/finops-engine/ledger"
)

// recalcWorkers bounds the parallel fan-out of RecalcAll.
const recalcWorkers = 4

// SpendSource answers scoped sum queries over the cost ledger.
// *ledger* stores satisfy this.
type SpendSource interface {
	Sum(ctx context.Context, f ledger.Filter) (decimal.Decimal, error)
}

// Reconciler is the budget reconciliation engine.
type Reconciler struct {
	store   Store
	ledger  SpendSource
	auditor *audit.Recorder
	log     *slog.Logger
}

// NewReconciler wires the engine. A nil logger falls back to slog.Default.
func NewReconciler(store Store, spend SpendSource, auditor *audit.Recorder, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:   store,
		ledger:  spend,
		auditor: auditor,
		log:     log.With("component", "budget"),
	}
}

// ComputeSpent sums ledger cost over the scope: the month's half-open
// UTC range, narrowed by team and env only when the scope carries them.
// Pure with respect to a ledger snapshot.
func (r *Reconciler) ComputeSpent(ctx context.Context, scope Scope) (decimal.Decimal, error) {
	spent, err := r.ledger.Sum(ctx, scope.Filter())
	if err != nil {
		return decimal.Zero, fmt.Errorf("compute spent for %s: %w", scope.Month, err)
	}
	return spent, nil
}

// =============================================================================
// CRUD
// =============================================================================

// CreateInput is the input to Create.
type CreateInput struct {
	Name     string
	Team     *string
	Env      *string
	Month    string
	Amount   decimal.Decimal
	Currency string
	Note     *string
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !ledger.ValidMonth(in.Month) {
		return &ValidationError{Field: "month", Message: "must match YYYY-MM"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return nil
}

// Create validates the input, computes SpentCache synchronously from
// the ledger, persists the budget and audits the creation.
func (r *Reconciler) Create(ctx context.Context, in CreateInput, actor audit.Actor) (*Budget, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = ledger.DefaultCurrency
	}

	now := time.Now().UTC()
	b := Budget{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Team:      in.Team,
		Env:       in.Env,
		Month:     in.Month,
		Amount:    in.Amount,
		Currency:  currency,
		Note:      in.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}

	spent, err := r.ComputeSpent(ctx, b.Scope())
	if err != nil {
		return nil, err
	}
	b.SpentCache = spent

	if err := r.store.CreateBudget(ctx, b); err != nil {
		return nil, fmt.Errorf("create budget: %w", err)
	}

	r.auditor.Record(ctx, audit.Entry{
		Action:     audit.ActionBudgetCreate,
		Target:     b.ID,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Meta:       b,
	})

	return &b, nil
}

// Patch carries a partial update. Nil fields keep their prior values;
// scoped fields cannot be cleared back to nil through a patch.
type Patch struct {
	Name     *string
	Team     *string
	Env      *string
	Month    *string
	Amount   *decimal.Decimal
	Currency *string
	Note     *string
}

// Update merges the patch over the stored budget. It does NOT recompute
// SpentCache: callers that change month/team/env must recalc explicitly.
func (r *Reconciler) Update(ctx context.Context, id string, p Patch, actor audit.Actor) (*Budget, error) {
	old, err := r.store.GetBudget(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load budget %s: %w", id, err)
	}
	if old == nil {
		return nil, ErrNotFound
	}

	updated := *old
	if p.Name != nil {
		updated.Name = *p.Name
	}
	if p.Team != nil {
		updated.Team = p.Team
	}
	if p.Env != nil {
		updated.Env = p.Env
	}
	if p.Month != nil {
		if !ledger.ValidMonth(*p.Month) {
			return nil, &ValidationError{Field: "month", Message: "must match YYYY-MM"}
		}
		updated.Month = *p.Month
	}
	if p.Amount != nil {
		if !p.Amount.IsPositive() {
			return nil, &ValidationError{Field: "amount", Message: "must be positive"}
		}
		updated.Amount = *p.Amount
	}
	if p.Currency != nil {
		updated.Currency = *p.Currency
	}
	if p.Note != nil {
		updated.Note = p.Note
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := r.store.UpdateBudget(ctx, updated); err != nil {
		return nil, fmt.Errorf("update budget %s: %w", id, err)
	}

	r.auditor.Record(ctx, audit.Entry{
		Action:     audit.ActionBudgetUpdate,
		Target:     id,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Meta:       map[string]any{"before": old, "after": updated},
	})

	return &updated, nil
}

// Delete removes the budget. Missing ids surface ErrNotFound.
func (r *Reconciler) Delete(ctx context.Context, id string, actor audit.Actor) error {
	deleted, err := r.store.DeleteBudget(ctx, id)
	if err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	if !deleted {
		return ErrNotFound
	}

	r.auditor.Record(ctx, audit.Entry{
		Action:     audit.ActionBudgetDelete,
		Target:     id,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
	})

	return nil
}

// List returns a filtered, paginated budget listing ordered by month
// descending then name ascending.
func (r *Reconciler) List(ctx context.Context, f ListFilter, page ledger.Page) (int, []Budget, error) {
	return r.store.ListBudgets(ctx, f, page)
}

// =============================================================================
// BULK RECALCULATION
// =============================================================================

// RecalcResult reports a bulk recalculation: Count is the number of
// budgets attempted regardless of per-item failure.
type RecalcResult struct {
	Count    int
	Failures []ItemFailure
}

// RecalcAll recomputes and persists SpentCache for every budget.
// Per-budget failures are collected, not fatal. Already-persisted
// updates stay valid if the context is cancelled mid-run.
func (r *Reconciler) RecalcAll(ctx context.Context, actor audit.Actor) (RecalcResult, error) {
	budgets, err := r.store.AllBudgets(ctx)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("list budgets: %w", err)
	}

	var (
		mu       sync.Mutex
		failures []ItemFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recalcWorkers)
	for _, b := range budgets {
		b := b
		g.Go(func() error {
			if err := r.recalcOne(gctx, b); err != nil {
				mu.Lock()
				failures = append(failures, ItemFailure{BudgetID: b.ID, Name: b.Name, Err: err})
				mu.Unlock()
				r.log.WarnContext(gctx, "budget recalc failed",
					"budget_id", b.ID, "name", b.Name, "error", err)
			}
			return nil // continue-on-error: failures are surfaced in the result
		})
	}
	if err := g.Wait(); err != nil {
		return RecalcResult{}, err
	}

	r.auditor.Record(ctx, audit.Entry{
		Action:     audit.ActionBudgetRecalcAll,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Meta:       map[string]any{"count": len(budgets)},
	})

	return RecalcResult{Count: len(budgets), Failures: failures}, nil
}

func (r *Reconciler) recalcOne(ctx context.Context, b Budget) error {
	spent, err := r.ComputeSpent(ctx, b.Scope())
	if err != nil {
		return err
	}
	return r.store.SetSpentCache(ctx, b.ID, spent)
}
