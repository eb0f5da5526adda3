package budget_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finops-engine/audit"
	"github.com/warp/finops-engine/budget"
	"github.com/warp/finops-engine/ledger"
	"github.com/warp/finops-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestReconciler(t *testing.T) (*budget.Reconciler, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	recorder := audit.NewRecorder(store, nil)
	return budget.NewReconciler(store, store, recorder, nil), store
}

func seedCosts(t *testing.T, store *sqlite.Store, records ...ledger.CostRecord) {
	t.Helper()
	ing := ledger.NewIngestor(store)
	n, err := ing.Insert(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, len(records), n)
}

func cost(day, team, env string, amount float64) ledger.CostRecord {
	date, err := time.Parse(ledger.DateLayout, day)
	if err != nil {
		panic(err)
	}
	return ledger.CostRecord{
		Date:     date,
		Provider: "aws",
		Service:  "EC2",
		Env:      env,
		Team:     team,
		Cost:     decimal.NewFromFloat(amount),
	}
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// SPENT COMPUTATION
// =============================================================================

func TestReconciler_CreateComputesSpentFromScope(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	seedCosts(t, store,
		cost("2025-01-05", "team-a", "prod", 100),
		cost("2025-01-20", "team-a", "prod", 50),
		cost("2025-01-31", "team-a", "prod", 100),
		cost("2025-02-01", "team-a", "prod", 999), // next month, out of range
		cost("2025-01-10", "team-b", "prod", 999), // other team
		cost("2025-01-10", "team-a", "staging", 999), // other env
	)

	b, err := r.Create(ctx, budget.CreateInput{
		Name:   "January prod",
		Team:   ptr("team-a"),
		Env:    ptr("prod"),
		Month:  "2025-01",
		Amount: decimal.NewFromInt(500),
	}, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, "250", b.SpentCache.String())
	assert.Equal(t, "USD", b.Currency)
	assert.NotEmpty(t, b.ID)
}

func TestReconciler_NilScopeFieldsMatchEverything(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	seedCosts(t, store,
		cost("2025-03-01", "team-a", "prod", 10),
		cost("2025-03-02", "team-b", "staging", 20),
	)

	b, err := r.Create(ctx, budget.CreateInput{
		Name:   "org-wide march",
		Month:  "2025-03",
		Amount: decimal.NewFromInt(100),
	}, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, "30", b.SpentCache.String())
}

func TestReconciler_CreateValidation(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   budget.CreateInput
	}{
		{"empty name", budget.CreateInput{Name: "  ", Month: "2025-01", Amount: decimal.NewFromInt(1)}},
		{"bad month", budget.CreateInput{Name: "b", Month: "2025-13", Amount: decimal.NewFromInt(1)}},
		{"zero amount", budget.CreateInput{Name: "b", Month: "2025-01", Amount: decimal.Zero}},
		{"negative amount", budget.CreateInput{Name: "b", Month: "2025-01", Amount: decimal.NewFromInt(-5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Create(ctx, tc.in, audit.Actor{})
			assert.ErrorIs(t, err, budget.ErrValidation)
		})
	}
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

func TestReconciler_UpdateDoesNotRecomputeSpent(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	seedCosts(t, store, cost("2025-01-05", "team-a", "prod", 40))

	b, err := r.Create(ctx, budget.CreateInput{
		Name: "jan", Team: ptr("team-a"), Month: "2025-01", Amount: decimal.NewFromInt(100),
	}, audit.Actor{})
	require.NoError(t, err)
	require.Equal(t, "40", b.SpentCache.String())

	// Moving the budget to a month with no spend must leave the cache stale
	updated, err := r.Update(ctx, b.ID, budget.Patch{Month: ptr("2025-06")}, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, "2025-06", updated.Month)
	assert.Equal(t, "40", updated.SpentCache.String())
}

func TestReconciler_UpdateMergesPartialFields(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	b, err := r.Create(ctx, budget.CreateInput{
		Name: "original", Team: ptr("team-a"), Env: ptr("prod"),
		Month: "2025-01", Amount: decimal.NewFromInt(100), Note: ptr("keep me"),
	}, audit.Actor{})
	require.NoError(t, err)

	updated, err := r.Update(ctx, b.ID, budget.Patch{
		Name:   ptr("renamed"),
		Amount: ptr(decimal.NewFromInt(250)),
	}, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(250)))
	// Untouched fields survive the merge
	require.NotNil(t, updated.Team)
	assert.Equal(t, "team-a", *updated.Team)
	require.NotNil(t, updated.Note)
	assert.Equal(t, "keep me", *updated.Note)
}

func TestReconciler_UpdateValidatesPatchedFields(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	b, err := r.Create(ctx, budget.CreateInput{
		Name: "b", Month: "2025-01", Amount: decimal.NewFromInt(100),
	}, audit.Actor{})
	require.NoError(t, err)

	_, err = r.Update(ctx, b.ID, budget.Patch{Month: ptr("not-a-month")}, audit.Actor{})
	assert.ErrorIs(t, err, budget.ErrValidation)

	_, err = r.Update(ctx, b.ID, budget.Patch{Amount: ptr(decimal.Zero)}, audit.Actor{})
	assert.ErrorIs(t, err, budget.ErrValidation)
}

func TestReconciler_UpdateMissingBudget(t *testing.T) {
	r, _ := newTestReconciler(t)

	_, err := r.Update(context.Background(), "nope", budget.Patch{Name: ptr("x")}, audit.Actor{})
	assert.ErrorIs(t, err, budget.ErrNotFound)
}

func TestReconciler_Delete(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	b, err := r.Create(ctx, budget.CreateInput{
		Name: "doomed", Month: "2025-01", Amount: decimal.NewFromInt(10),
	}, audit.Actor{})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, b.ID, audit.Actor{}))

	got, err := store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Second delete of the same id is a not-found
	assert.ErrorIs(t, r.Delete(ctx, b.ID, audit.Actor{}), budget.ErrNotFound)
}

// =============================================================================
// BULK RECALCULATION
// =============================================================================

func TestReconciler_RecalcAllRefreshesStaleCaches(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	b, err := r.Create(ctx, budget.CreateInput{
		Name: "jan", Team: ptr("team-a"), Month: "2025-01", Amount: decimal.NewFromInt(500),
	}, audit.Actor{})
	require.NoError(t, err)
	require.True(t, b.SpentCache.IsZero())

	// Spend lands after the budget was created; the cache is now stale
	seedCosts(t, store,
		cost("2025-01-10", "team-a", "prod", 120),
		cost("2025-01-11", "team-a", "prod", 80),
	)

	res, err := r.RecalcAll(ctx, audit.Actor{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Empty(t, res.Failures)

	got, err := store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "200", got.SpentCache.String())
}

func TestReconciler_RecalcAllIdempotent(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	seedCosts(t, store, cost("2025-01-10", "team-a", "prod", 33.33))
	for i := 0; i < 3; i++ {
		_, err := r.Create(ctx, budget.CreateInput{
			Name: "b", Month: "2025-01", Amount: decimal.NewFromInt(100),
		}, audit.Actor{})
		require.NoError(t, err)
	}

	first, err := r.RecalcAll(ctx, audit.Actor{})
	require.NoError(t, err)
	budgetsAfterFirst, err := store.AllBudgets(ctx)
	require.NoError(t, err)

	second, err := r.RecalcAll(ctx, audit.Actor{})
	require.NoError(t, err)
	budgetsAfterSecond, err := store.AllBudgets(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, first.Count)
	assert.Equal(t, 3, second.Count)
	require.Len(t, budgetsAfterSecond, len(budgetsAfterFirst))
	for i := range budgetsAfterFirst {
		assert.True(t, budgetsAfterFirst[i].SpentCache.Equal(budgetsAfterSecond[i].SpentCache),
			"SpentCache changed on an unchanged ledger")
	}
}

// flakyStore fails SetSpentCache for one budget id.
type flakyStore struct {
	*sqlite.Store
	failID string
}

var errInjected = errors.New("injected store failure")

func (f *flakyStore) SetSpentCache(ctx context.Context, id string, spent decimal.Decimal) error {
	if id == f.failID {
		return errInjected
	}
	return f.Store.SetSpentCache(ctx, id, spent)
}

func TestReconciler_RecalcAllContinuesPastFailures(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	recorder := audit.NewRecorder(store, nil)

	// Create through a plain reconciler, then recalc through a flaky one
	plain := budget.NewReconciler(store, store, recorder, nil)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		b, err := plain.Create(ctx, budget.CreateInput{
			Name: name, Month: "2025-01", Amount: decimal.NewFromInt(100),
		}, audit.Actor{})
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}

	flaky := &flakyStore{Store: store, failID: ids[1]}
	r := budget.NewReconciler(flaky, store, recorder, nil)

	res, err := r.RecalcAll(ctx, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Count, "count covers every budget attempted")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, ids[1], res.Failures[0].BudgetID)
	assert.Equal(t, "b", res.Failures[0].Name)
	assert.ErrorIs(t, res.Failures[0].Err, errInjected)
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestReconciler_MutationsEmitAuditEntries(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	actor := audit.Actor{ID: "user-1", Email: "admin@example.com"}

	b, err := r.Create(ctx, budget.CreateInput{
		Name: "b", Month: "2025-01", Amount: decimal.NewFromInt(100),
	}, actor)
	require.NoError(t, err)

	_, err = r.Update(ctx, b.ID, budget.Patch{Name: ptr("b2")}, actor)
	require.NoError(t, err)
	_, err = r.RecalcAll(ctx, actor)
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, b.ID, actor))

	entries, err := store.ListAudit(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, audit.ActionBudgetCreate, entries[0].Action)
	assert.Equal(t, audit.ActionBudgetUpdate, entries[1].Action)
	assert.Equal(t, audit.ActionBudgetRecalcAll, entries[2].Action)
	assert.Equal(t, audit.ActionBudgetDelete, entries[3].Action)

	for _, e := range entries {
		assert.Equal(t, "user-1", e.ActorID)
		assert.Equal(t, "admin@example.com", e.ActorEmail)
	}
	assert.Equal(t, b.ID, entries[0].Target)
	assert.Empty(t, entries[2].Target, "bulk recalc has no single target")
}

// =============================================================================
// LISTING
// =============================================================================

func TestReconciler_ListOrderAndFilter(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	create := func(name, month string, team *string) {
		_, err := r.Create(ctx, budget.CreateInput{
			Name: name, Month: month, Team: team, Amount: decimal.NewFromInt(100),
		}, audit.Actor{})
		require.NoError(t, err)
	}
	create("zeta", "2025-01", ptr("team-a"))
	create("alpha", "2025-02", nil)
	create("mid", "2025-02", ptr("team-b"))

	total, items, err := r.List(ctx, budget.ListFilter{}, ledger.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)

	// Month descending, then name ascending
	assert.Equal(t, "alpha", items[0].Name)
	assert.Equal(t, "mid", items[1].Name)
	assert.Equal(t, "zeta", items[2].Name)

	total, items, err = r.List(ctx, budget.ListFilter{Team: "team-a"}, ledger.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "zeta", items[0].Name)
}
