/*
query.go - Filter, sort and pagination model for the cost ledger

PURPOSE:
  Defines the query language the API exposes over the ledger:
  - Free-text search across the categorical fields (OR semantics)
  - Exact-match team/env filters
  - Month filter as a half-open UTC date range
  - Multi-key sort specs ("field:dir,field:dir")
  - Page/pageSize with clamping

  The pure helpers here (Matches, SortRecords, Paginate) are the reference
  semantics. The SQLite store compiles the same query to SQL; the in-memory
  store applies these helpers directly. Both must agree. Free-text case
  folding is ASCII-only on both sides, because SQLite's lower() only folds
  ASCII; non-ASCII letters compare byte-for-byte.

SORT FIELDS:
  date, provider, service, env, team, cost, currency.
  Unknown fields in a sort spec are skipped rather than rejected.

SEE ALSO:
  - types.go: CostRecord and Store
  - store/memory.go: Uses these helpers verbatim
*/
package ledger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// MaxPageSize caps a single page of cost records.
const MaxPageSize = 200

// DefaultPageSize applies when the caller does not specify one.
const DefaultPageSize = 20

var monthRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidMonth reports whether s is a well-formed "YYYY-MM" month.
func ValidMonth(s string) bool {
	return monthRe.MatchString(s)
}

// MonthRange converts a "YYYY-MM" month into the half-open UTC range
// [first day of month, first day of next month).
func MonthRange(month string) (start, end time.Time, err error) {
	if !ValidMonth(month) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q (want YYYY-MM)", month)
	}
	start, err = time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = start.UTC()
	end = start.AddDate(0, 1, 0)
	return start, end, nil
}

// =============================================================================
// FILTER
// =============================================================================

// Filter narrows the ledger. Zero-value fields are unconstrained.
type Filter struct {
	// Q is matched case-insensitively as a substring against provider,
	// service, team and env. A record matches if any field contains Q.
	// Case folding is ASCII-only (SQLite's lower() semantics).
	Q string

	// Team and Env are exact matches when non-empty.
	Team string
	Env  string

	// Month restricts Date to the month's half-open UTC range.
	Month string
}

// Matches reports whether the record satisfies the filter.
func (f Filter) Matches(r CostRecord) bool {
	if f.Q != "" {
		q := asciiLower(f.Q)
		if !strings.Contains(asciiLower(r.Provider), q) &&
			!strings.Contains(asciiLower(r.Service), q) &&
			!strings.Contains(asciiLower(r.Team), q) &&
			!strings.Contains(asciiLower(r.Env), q) {
			return false
		}
	}
	if f.Team != "" && r.Team != f.Team {
		return false
	}
	if f.Env != "" && r.Env != f.Env {
		return false
	}
	if f.Month != "" {
		start, end, err := MonthRange(f.Month)
		if err != nil {
			return false
		}
		d := r.Date.UTC()
		if d.Before(start) || !d.Before(end) {
			return false
		}
	}
	return true
}

// asciiLower folds A-Z only, exactly like SQLite's lower(). Free-text
// case folding is deliberately ASCII-only so the in-memory store and
// the SQL store agree on every input.
func asciiLower(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// =============================================================================
// SORT
// =============================================================================

// Direction of a sort key.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortKey is one (field, direction) pair of a sort specification.
type SortKey struct {
	Field     string
	Direction Direction
}

// DefaultSort applies when the caller gives no sort spec.
var DefaultSort = []SortKey{{Field: "date", Direction: Desc}}

var sortableFields = map[string]bool{
	"date":     true,
	"provider": true,
	"service":  true,
	"env":      true,
	"team":     true,
	"cost":     true,
	"currency": true,
}

// ParseSort parses a "field:dir,field:dir" spec into ordered sort keys.
// Direction defaults to asc unless explicitly "desc". Unknown fields are
// skipped. An empty or all-unknown spec yields DefaultSort.
func ParseSort(spec string) []SortKey {
	if spec == "" {
		return DefaultSort
	}
	var keys []SortKey
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		field, dir, _ := strings.Cut(pair, ":")
		field = strings.TrimSpace(field)
		if !sortableFields[field] {
			continue
		}
		d := Asc
		if strings.TrimSpace(dir) == string(Desc) {
			d = Desc
		}
		keys = append(keys, SortKey{Field: field, Direction: d})
	}
	if len(keys) == 0 {
		return DefaultSort
	}
	return keys
}

// SortRecords orders items in place by the given keys, primary first.
// The sort is stable so that insertion order breaks remaining ties
// deterministically.
func SortRecords(items []CostRecord, keys []SortKey) {
	if len(keys) == 0 {
		keys = DefaultSort
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			c := compareField(items[i], items[j], k.Field)
			if c == 0 {
				continue
			}
			if k.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareField(a, b CostRecord, field string) int {
	switch field {
	case "date":
		return strings.Compare(a.Day(), b.Day())
	case "provider":
		return strings.Compare(a.Provider, b.Provider)
	case "service":
		return strings.Compare(a.Service, b.Service)
	case "env":
		return strings.Compare(a.Env, b.Env)
	case "team":
		return strings.Compare(a.Team, b.Team)
	case "cost":
		return a.Cost.Cmp(b.Cost)
	case "currency":
		return strings.Compare(a.Currency, b.Currency)
	}
	return 0
}

// =============================================================================
// PAGINATION
// =============================================================================

// Page is a validated pagination request.
type Page struct {
	Number int // 1-based
	Size   int
}

// NewPage clamps raw page/pageSize values: page >= 1, size in [1, max].
// DefaultPageSize is a caller concern for an absent pageSize; an
// explicit non-positive size clamps to 1, it does not fall back.
func NewPage(number, size, max int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = 1
	}
	if size > max {
		size = max
	}
	return Page{Number: number, Size: size}
}

// Offset returns the number of records to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Paginate returns the page's slice of items. Pages past the end are
// empty, not an error.
func Paginate(items []CostRecord, p Page) []CostRecord {
	off := p.Offset()
	if off >= len(items) {
		return []CostRecord{}
	}
	end := off + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

// Query bundles filter, sort and pagination for a ledger listing.
type Query struct {
	Filter Filter
	Sort   []SortKey
	Page   Page
}
