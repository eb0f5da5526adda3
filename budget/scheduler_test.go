package budget_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/finops-engine/audit"
	"github.com/warp/finops-engine/budget"
)

func TestScheduler_RefreshesStaleCaches(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	b, err := r.Create(ctx, budget.CreateInput{
		Name: "jan", Month: "2025-01", Amount: decimal.NewFromInt(100),
	}, audit.Actor{})
	require.NoError(t, err)
	require.True(t, b.SpentCache.IsZero())

	seedCosts(t, store, cost("2025-01-10", "team-a", "prod", 42))

	sched := budget.NewScheduler(r, 10*time.Millisecond, nil)
	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetBudget(ctx, b.ID)
		return err == nil && got != nil && got.SpentCache.Equal(decimal.NewFromInt(42))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_ZeroIntervalDisables(t *testing.T) {
	r, _ := newTestReconciler(t)

	sched := budget.NewScheduler(r, 0, nil)
	sched.Start()
	sched.Stop() // must not hang or panic
}
