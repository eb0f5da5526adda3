/*
Package audit provides the append-only audit trail for administrative
mutations.

PURPOSE:
  Every operation that mutates budgets emits an audit entry describing
  who did what to which target, with a free-form snapshot in Meta.

BEST-EFFORT CONTRACT:
  The trail is an observability side-channel, not part of the
  transactional contract of the operation it documents. Recorder.Record
  therefore never returns an error: a storage failure is logged and
  swallowed so the primary operation completes normally.

ORDERING:
  Entries are insertion-ordered and never edited or purged.
*/
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Action identifies the mutating operation an entry documents.
type Action string

const (
	ActionBudgetCreate    Action = "BUDGET_CREATE"
	ActionBudgetUpdate    Action = "BUDGET_UPDATE"
	ActionBudgetDelete    Action = "BUDGET_DELETE"
	ActionBudgetRecalcAll Action = "BUDGET_RECALC_ALL"
)

// Actor identifies who performed an operation. Zero value means the
// actor is unknown (e.g. an internal job).
type Actor struct {
	ID    string
	Email string
}

// Entry is one audit trail record.
type Entry struct {
	ID         string
	Action     Action
	Target     string // id of the mutated entity, empty for bulk ops
	ActorID    string
	ActorEmail string
	Meta       any // free-form snapshot, e.g. {before, after}
	CreatedAt  time.Time
}

// Store persists audit entries.
type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
}

// Recorder writes audit entries best-effort.
type Recorder struct {
	store Store
	log   *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger falls back to slog.Default.
func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log.With("component", "audit")}
}

// Record appends the entry. Storage failures are logged, never returned:
// the audit trail must not block the operation it documents.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := r.store.AppendAudit(ctx, e); err != nil {
		r.log.ErrorContext(ctx, "audit write failed",
			"action", string(e.Action),
			"target", e.Target,
			"error", err)
	}
}
