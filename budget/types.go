/*
Package budget provides budget definitions and the reconciliation engine
that keeps each budget's cached spend aligned with the cost ledger.

KEY CONCEPTS:
  - Budget: A monthly spend target, optionally scoped to a team and/or env
  - Scope: The matching predicate a budget defines over the cost ledger
  - SpentCache: A derived aggregate, recomputed from the ledger on demand.
    It is a cache, never a source of truth.

SCOPE SEMANTICS:
  A nil Team or Env means the dimension is unconstrained: a budget with
  no team aggregates spend across all teams for its month. It does NOT
  mean "match records whose team is empty".

SEE ALSO:
  - reconcile.go: computeSpent, CRUD and bulk recalculation
  - errors.go: sentinel and structured errors
*/
package budget

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finops-engine/ledger"
)

// Budget is a monthly spend target. Mutable via partial update.
type Budget struct {
	ID         string
	Name       string
	Team       *string // nil = unscoped
	Env        *string // nil = unscoped
	Month      string  // "YYYY-MM"
	Amount     decimal.Decimal
	Currency   string
	Note       *string
	SpentCache decimal.Decimal // derived, see package doc
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Scope is the budget's matching predicate over the cost ledger.
type Scope struct {
	Month string
	Team  *string
	Env   *string
}

// Scope returns the budget's ledger predicate.
func (b Budget) Scope() Scope {
	return Scope{Month: b.Month, Team: b.Team, Env: b.Env}
}

// Filter converts the scope into a ledger filter. Absent dimensions
// stay unconstrained.
func (s Scope) Filter() ledger.Filter {
	f := ledger.Filter{Month: s.Month}
	if s.Team != nil {
		f.Team = *s.Team
	}
	if s.Env != nil {
		f.Env = *s.Env
	}
	return f
}

// ListFilter narrows a budget listing. Zero-value fields match all.
type ListFilter struct {
	Month string
	Team  string
	Env   string
}

// Store is the persistence contract for budgets.
type Store interface {
	CreateBudget(ctx context.Context, b Budget) error
	GetBudget(ctx context.Context, id string) (*Budget, error)
	UpdateBudget(ctx context.Context, b Budget) error
	DeleteBudget(ctx context.Context, id string) (bool, error)

	// ListBudgets orders by month descending, then name ascending, and
	// returns the total matching count alongside the requested page.
	ListBudgets(ctx context.Context, f ListFilter, page ledger.Page) (total int, items []Budget, err error)

	// AllBudgets returns every budget, for bulk recalculation.
	AllBudgets(ctx context.Context) ([]Budget, error)

	// SetSpentCache persists a recomputed spend aggregate.
	SetSpentCache(ctx context.Context, id string, spent decimal.Decimal) error
}

// MaxPageSize caps a single page of budgets.
const MaxPageSize = 100
