/*
Package sqlite provides the SQLite-backed implementation of every
storage interface in the system.

INTERFACES IMPLEMENTED:
  ledger.Store:   Cost record persistence and queries
  budget.Store:   Budget CRUD and spend-cache writes
  audit.Store:    Append-only audit trail
  identity.Store: Identities and the atomic access-bootstrap

APPEND-ONLY ENFORCEMENT:
  The costs and audit_log tables are append-only: no UPDATE or DELETE
  statement exists for them anywhere in this package.

INGESTION ATOMICITY:
  Insert runs each batch inside one SQL transaction. Either every
  record in the batch lands or none does.

ACCESS-BOOTSTRAP:
  AssignBootstrapRole performs the creation-order check and the role
  write in a single guarded UPDATE inside a transaction, so concurrent
  first logins serialize and exactly one identity (the first created)
  becomes ADMIN.

QUERY COMPILATION:
  Cost listing compiles the ledger query model to SQL. The ORDER BY is
  built only from a fixed column whitelist; user input never reaches the
  SQL text. A trailing "rowid ASC" matches the stable insertion-order
  tie-break of the in-memory store.

CONCURRENCY:
  WAL mode plus a sync.RWMutex. In production with PostgreSQL,
  database-level concurrency control handles this instead.

MONEY:
  Amounts are stored as decimal strings (TEXT) and summed with
  decimal.Decimal in Go. No floats touch money.

USAGE:
  store, err := sqlite.New("./data/finops.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/types.go, budget/types.go, audit/audit.go, identity/identity.go:
    Interface definitions
  - ledger/store/memory.go: In-memory ledger store for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/finops-engine/audit"
	"github.com/warp/finops-engine/budget"
	"github.com/warp/finops-engine/identity"
	"github.com/warp/finops-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the store serializes through its own mutex, and a
	// pooled ":memory:" database would otherwise split per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Cost ledger (append-only)
	CREATE TABLE IF NOT EXISTS costs (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		provider TEXT NOT NULL,
		service TEXT NOT NULL,
		env TEXT NOT NULL,
		team TEXT NOT NULL,
		cost TEXT NOT NULL,
		currency TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_costs_date ON costs(date);
	CREATE INDEX IF NOT EXISTS idx_costs_team ON costs(team);
	CREATE INDEX IF NOT EXISTS idx_costs_env ON costs(env);

	-- Composite index for the reconciliation hot path (month range + scope)
	CREATE INDEX IF NOT EXISTS idx_costs_date_team_env ON costs(date, team, env);

	-- Budgets
	CREATE TABLE IF NOT EXISTS budgets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		team TEXT,
		env TEXT,
		month TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		note TEXT,
		spent_cache TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_budgets_month ON budgets(month);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		target TEXT,
		actor_id TEXT,
		actor_email TEXT,
		meta_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Identities
	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// COST LEDGER (ledger.Store interface)
// =============================================================================

// Insert appends a batch of cost records atomically.
func (s *Store) Insert(ctx context.Context, records []ledger.CostRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO costs (id, date, provider, service, env, team, cost, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID,
			r.Day(),
			r.Provider,
			r.Service,
			r.Env,
			r.Team,
			r.Cost.String(),
			r.Currency,
			now,
		); err != nil {
			return 0, fmt.Errorf("failed to insert cost record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return len(records), nil
}

// Query returns the total matching count and the requested page.
func (s *Store) Query(ctx context.Context, q ledger.Query) (int, []ledger.CostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args, err := costWhere(q.Filter)
	if err != nil {
		return 0, nil, err
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM costs" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("failed to count costs: %w", err)
	}

	listQuery := "SELECT id, date, provider, service, env, team, cost, currency FROM costs" +
		where + costOrderBy(q.Sort) + " LIMIT ? OFFSET ?"
	listArgs := append(append([]any{}, args...), q.Page.Size, q.Page.Offset())

	items, err := s.queryCosts(ctx, listQuery, listArgs...)
	if err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// All returns every cost record in insertion order.
func (s *Store) All(ctx context.Context) ([]ledger.CostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCosts(ctx,
		"SELECT id, date, provider, service, env, team, cost, currency FROM costs ORDER BY rowid ASC")
}

// Sum totals Cost over records matching the filter. Decimal strings are
// summed in Go to keep exact arithmetic.
func (s *Store) Sum(ctx context.Context, f ledger.Filter) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args, err := costWhere(f)
	if err != nil {
		return decimal.Zero, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT cost FROM costs"+where, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum costs: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan cost: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt cost value %q: %w", raw, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

func (s *Store) queryCosts(ctx context.Context, query string, args ...any) ([]ledger.CostRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query costs: %w", err)
	}
	defer rows.Close()

	items := []ledger.CostRecord{}
	for rows.Next() {
		var (
			r       ledger.CostRecord
			day     string
			costRaw string
		)
		if err := rows.Scan(&r.ID, &day, &r.Provider, &r.Service, &r.Env, &r.Team, &costRaw, &r.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan cost record: %w", err)
		}
		r.Date, err = time.Parse(ledger.DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("corrupt date %q: %w", day, err)
		}
		r.Cost, err = decimal.NewFromString(costRaw)
		if err != nil {
			return nil, fmt.Errorf("corrupt cost value %q: %w", costRaw, err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// costWhere compiles a ledger filter into a WHERE clause and args.
func costWhere(f ledger.Filter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Q != "" {
		// asciiLower matches SQLite's ASCII-only lower() on the columns,
		// keeping this store aligned with ledger.Filter.Matches.
		q := asciiLower(f.Q)
		clauses = append(clauses,
			"(instr(lower(provider), ?) > 0 OR instr(lower(service), ?) > 0 OR instr(lower(team), ?) > 0 OR instr(lower(env), ?) > 0)")
		args = append(args, q, q, q, q)
	}
	if f.Team != "" {
		clauses = append(clauses, "team = ?")
		args = append(args, f.Team)
	}
	if f.Env != "" {
		clauses = append(clauses, "env = ?")
		args = append(args, f.Env)
	}
	if f.Month != "" {
		start, end, err := ledger.MonthRange(f.Month)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "date >= ? AND date < ?")
		args = append(args, start.Format(ledger.DateLayout), end.Format(ledger.DateLayout))
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// costColumns whitelists sortable columns. Only these names ever reach
// the ORDER BY text.
var costColumns = map[string]string{
	"date":     "date",
	"provider": "provider",
	"service":  "service",
	"env":      "env",
	"team":     "team",
	"cost":     "CAST(cost AS REAL)",
	"currency": "currency",
}

func costOrderBy(keys []ledger.SortKey) string {
	if len(keys) == 0 {
		keys = ledger.DefaultSort
	}
	var parts []string
	for _, k := range keys {
		col, ok := costColumns[k.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if k.Direction == ledger.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	// rowid keeps ties in insertion order, matching the memory store
	parts = append(parts, "rowid ASC")
	return " ORDER BY " + strings.Join(parts, ", ")
}

// =============================================================================
// BUDGETS (budget.Store interface)
// =============================================================================

// CreateBudget persists a new budget.
func (s *Store) CreateBudget(ctx context.Context, b budget.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, name, team, env, month, amount, currency, note, spent_cache, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID,
		b.Name,
		nullPtr(b.Team),
		nullPtr(b.Env),
		b.Month,
		b.Amount.String(),
		b.Currency,
		nullPtr(b.Note),
		b.SpentCache.String(),
		b.CreatedAt.Format(time.RFC3339),
		b.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create budget: %w", err)
	}
	return nil
}

// GetBudget returns the budget or nil when absent.
func (s *Store) GetBudget(ctx context.Context, id string) (*budget.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, team, env, month, amount, currency, note, spent_cache, created_at, updated_at
		FROM budgets WHERE id = ?
	`, id)

	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return b, nil
}

// UpdateBudget overwrites the stored budget.
func (s *Store) UpdateBudget(ctx context.Context, b budget.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets
		SET name = ?, team = ?, env = ?, month = ?, amount = ?, currency = ?, note = ?, updated_at = ?
		WHERE id = ?
	`,
		b.Name,
		nullPtr(b.Team),
		nullPtr(b.Env),
		b.Month,
		b.Amount.String(),
		b.Currency,
		nullPtr(b.Note),
		b.UpdatedAt.Format(time.RFC3339),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return budget.ErrNotFound
	}
	return nil
}

// DeleteBudget removes the budget, reporting whether a row existed.
func (s *Store) DeleteBudget(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM budgets WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete budget: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListBudgets returns a filtered page ordered by month desc, name asc.
func (s *Store) ListBudgets(ctx context.Context, f budget.ListFilter, page ledger.Page) (int, []budget.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		clauses []string
		args    []any
	)
	if f.Month != "" {
		clauses = append(clauses, "month = ?")
		args = append(args, f.Month)
	}
	if f.Team != "" {
		clauses = append(clauses, "team = ?")
		args = append(args, f.Team)
	}
	if f.Env != "" {
		clauses = append(clauses, "env = ?")
		args = append(args, f.Env)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM budgets"+where, args...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("failed to count budgets: %w", err)
	}

	listArgs := append(append([]any{}, args...), page.Size, page.Offset())
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, team, env, month, amount, currency, note, spent_cache, created_at, updated_at
		FROM budgets`+where+`
		ORDER BY month DESC, name ASC
		LIMIT ? OFFSET ?
	`, listArgs...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	items := []budget.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		items = append(items, *b)
	}
	return total, items, rows.Err()
}

// AllBudgets returns every budget for bulk recalculation.
func (s *Store) AllBudgets(ctx context.Context) ([]budget.Budget, error) {
	_, items, err := s.ListBudgets(ctx, budget.ListFilter{}, ledger.Page{Number: 1, Size: 1 << 30})
	return items, err
}

// SetSpentCache persists a recomputed spend aggregate.
func (s *Store) SetSpentCache(ctx context.Context, id string, spent decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE budgets SET spent_cache = ?, updated_at = ? WHERE id = ?",
		spent.String(), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to set spent cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return budget.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBudget(row rowScanner) (*budget.Budget, error) {
	var (
		b                    budget.Budget
		team, env, note      sql.NullString
		amountRaw, spentRaw  string
		createdAt, updatedAt string
	)
	if err := row.Scan(&b.ID, &b.Name, &team, &env, &b.Month, &amountRaw, &b.Currency,
		&note, &spentRaw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	b.Team = ptrFromNull(team)
	b.Env = ptrFromNull(env)
	b.Note = ptrFromNull(note)

	var err error
	if b.Amount, err = decimal.NewFromString(amountRaw); err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amountRaw, err)
	}
	if b.SpentCache, err = decimal.NewFromString(spentRaw); err != nil {
		return nil, fmt.Errorf("corrupt spent_cache %q: %w", spentRaw, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("corrupt updated_at %q: %w", updatedAt, err)
	}
	return &b, nil
}

// =============================================================================
// AUDIT TRAIL (audit.Store interface)
// =============================================================================

// AppendAudit appends an audit entry. Append-only: no update or delete
// path exists for audit_log.
func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}

	var metaJSON sql.NullString
	if e.Meta != nil {
		raw, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal audit meta: %w", err)
		}
		metaJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, target, actor_id, actor_email, meta_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		string(e.Action),
		nullString(e.Target),
		nullString(e.ActorID),
		nullString(e.ActorEmail),
		metaJSON,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns entries in insertion order. The core never reads
// the trail; this exists for tests and operational inspection.
func (s *Store) ListAudit(ctx context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, target, actor_id, actor_email, meta_json, created_at
		FROM audit_log ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e                      audit.Entry
			action                 string
			target, actorID, email sql.NullString
			metaJSON               sql.NullString
			createdAt              string
		)
		if err := rows.Scan(&e.ID, &action, &target, &actorID, &email, &metaJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		e.Target = target.String
		e.ActorID = actorID.String
		e.ActorEmail = email.String
		if metaJSON.Valid {
			var meta any
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				e.Meta = meta
			}
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// IDENTITIES (identity.Store interface)
// =============================================================================

// CreateIdentity persists a new identity. Duplicate emails surface
// identity.ErrEmailTaken.
func (s *Store) CreateIdentity(ctx context.Context, ident identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, email, name, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ident.ID,
		ident.Email,
		ident.Name,
		ident.PasswordHash,
		string(ident.Role),
		ident.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return identity.ErrEmailTaken
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// GetIdentityByEmail returns the identity or nil when absent.
func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		ident     identity.Identity
		role      string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM identities WHERE email = ?
	`, email).Scan(&ident.ID, &ident.Email, &ident.Name, &ident.PasswordHash, &role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	ident.Role = identity.Role(role)
	if ident.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	return &ident, nil
}

// AssignBootstrapRole runs the access-bootstrap atomically. First-ness
// is decided by creation order (rowid), not by the table size at login
// time: the first identity ever created becomes ADMIN at its first
// login no matter how many identities registered before it logged in.
// The check and the role write happen in one guarded UPDATE inside a
// transaction, and a role already set is never overwritten.
func (s *Store) AssignBootstrapRole(ctx context.Context, id string) (identity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return identity.RoleUnset, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE identities
		SET role = CASE
			WHEN (SELECT COUNT(*) FROM identities
			      WHERE rowid <= (SELECT rowid FROM identities WHERE id = ?)) = 1
			THEN 'ADMIN' ELSE 'VIEWER' END
		WHERE id = ? AND role = ''
	`, id, id)
	if err != nil {
		return identity.RoleUnset, fmt.Errorf("failed to assign bootstrap role: %w", err)
	}

	var role string
	if err := tx.QueryRowContext(ctx, "SELECT role FROM identities WHERE id = ?", id).Scan(&role); err != nil {
		if err == sql.ErrNoRows {
			return identity.RoleUnset, fmt.Errorf("identity %s not found", id)
		}
		return identity.RoleUnset, fmt.Errorf("failed to read role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return identity.RoleUnset, fmt.Errorf("failed to commit role assignment: %w", err)
	}
	return identity.Role(role), nil
}

// CountIdentities returns the number of registered identities.
func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&n)
	return n, err
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullPtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func ptrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// asciiLower folds A-Z only, exactly like SQLite's lower().
func asciiLower(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
