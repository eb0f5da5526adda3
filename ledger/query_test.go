package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finops-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func rec(day, provider, service, env, team string, cost float64) ledger.CostRecord {
	date, err := time.Parse(ledger.DateLayout, day)
	if err != nil {
		panic(err)
	}
	return ledger.CostRecord{
		Date:     date,
		Provider: provider,
		Service:  service,
		Env:      env,
		Team:     team,
		Cost:     decimal.NewFromFloat(cost),
		Currency: "USD",
	}
}

// =============================================================================
// FILTER TESTS
// =============================================================================

func TestFilter_FreeText_CaseInsensitiveSubstring(t *testing.T) {
	s3 := rec("2025-01-10", "aws", "S3", "prod", "team-a", 10)
	ec2 := rec("2025-01-10", "aws", "EC2", "prod", "team-a", 10)

	f := ledger.Filter{Q: "s3"}
	if !f.Matches(s3) {
		t.Error("q=s3 should match service S3 case-insensitively")
	}
	if f.Matches(ec2) {
		t.Error("q=s3 should not match service EC2")
	}
}

func TestFilter_FreeText_ORAcrossFields(t *testing.T) {
	r := rec("2025-01-10", "gcp", "BigQuery", "staging", "data-platform", 10)

	for _, q := range []string{"GCP", "bigquery", "STAGING", "platform"} {
		if !(ledger.Filter{Q: q}).Matches(r) {
			t.Errorf("q=%q should match via one of the four fields", q)
		}
	}
	if (ledger.Filter{Q: "azure"}).Matches(r) {
		t.Error("q=azure should not match any field")
	}
}

func TestFilter_FreeText_ASCIIOnlyFolding(t *testing.T) {
	r := rec("2025-01-10", "aws", "Grün-Cloud", "prod", "team-a", 10)

	// ASCII letters fold, so mixed ASCII case still matches
	if !(ledger.Filter{Q: "gRüN"}).Matches(r) {
		t.Error("ASCII case differences should fold")
	}
	// Non-ASCII letters compare byte-for-byte, like SQLite's lower()
	if (ledger.Filter{Q: "grÜn"}).Matches(r) {
		t.Error("non-ASCII case differences must not fold")
	}
}

func TestFilter_ExactTeamEnv(t *testing.T) {
	r := rec("2025-01-10", "aws", "S3", "prod", "team-a", 10)

	if !(ledger.Filter{Team: "team-a", Env: "prod"}).Matches(r) {
		t.Error("exact team+env should match")
	}
	if (ledger.Filter{Team: "team"}).Matches(r) {
		t.Error("team filter is exact match, not substring")
	}
	if (ledger.Filter{Env: "production"}).Matches(r) {
		t.Error("env filter is exact match, not substring")
	}
}

func TestFilter_MonthHalfOpenRange(t *testing.T) {
	f := ledger.Filter{Month: "2025-01"}

	if !f.Matches(rec("2025-01-01", "aws", "S3", "prod", "a", 1)) {
		t.Error("first day of month is inside the range")
	}
	if !f.Matches(rec("2025-01-31", "aws", "S3", "prod", "a", 1)) {
		t.Error("last day of month is inside the range")
	}
	if f.Matches(rec("2025-02-01", "aws", "S3", "prod", "a", 1)) {
		t.Error("first day of next month is outside the half-open range")
	}
	if f.Matches(rec("2024-12-31", "aws", "S3", "prod", "a", 1)) {
		t.Error("day before the month is outside the range")
	}
}

func TestMonthRange_DecemberWrapsYear(t *testing.T) {
	start, end, err := ledger.MonthRange("2025-12")
	if err != nil {
		t.Fatalf("MonthRange: %v", err)
	}
	if got := start.Format(ledger.DateLayout); got != "2025-12-01" {
		t.Errorf("start = %s, want 2025-12-01", got)
	}
	if got := end.Format(ledger.DateLayout); got != "2026-01-01" {
		t.Errorf("end = %s, want 2026-01-01", got)
	}
}

func TestValidMonth(t *testing.T) {
	valid := []string{"2025-01", "1999-12", "2030-09"}
	invalid := []string{"2025-13", "2025-00", "2025-1", "202501", "2025-01-01", "", "abcd-ef"}

	for _, m := range valid {
		if !ledger.ValidMonth(m) {
			t.Errorf("ValidMonth(%q) = false, want true", m)
		}
	}
	for _, m := range invalid {
		if ledger.ValidMonth(m) {
			t.Errorf("ValidMonth(%q) = true, want false", m)
		}
	}
}

// =============================================================================
// SORT TESTS
// =============================================================================

func TestParseSort_Default(t *testing.T) {
	keys := ledger.ParseSort("")
	if len(keys) != 1 || keys[0].Field != "date" || keys[0].Direction != ledger.Desc {
		t.Errorf("default sort = %+v, want date desc", keys)
	}
}

func TestParseSort_MultiKey(t *testing.T) {
	keys := ledger.ParseSort("date:desc,cost:asc,service")
	want := []ledger.SortKey{
		{Field: "date", Direction: ledger.Desc},
		{Field: "cost", Direction: ledger.Asc},
		{Field: "service", Direction: ledger.Asc}, // asc unless explicitly desc
	}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %+v, want %+v", i, keys[i], want[i])
		}
	}
}

func TestParseSort_UnknownFieldsSkipped(t *testing.T) {
	keys := ledger.ParseSort("bogus:desc,cost:desc")
	if len(keys) != 1 || keys[0].Field != "cost" {
		t.Errorf("keys = %+v, want only cost desc", keys)
	}

	// All-unknown spec falls back to the default
	keys = ledger.ParseSort("bogus:desc")
	if len(keys) != 1 || keys[0].Field != "date" {
		t.Errorf("keys = %+v, want default date desc", keys)
	}
}

func TestSortRecords_PriorityOrder(t *testing.T) {
	items := []ledger.CostRecord{
		rec("2025-01-02", "aws", "S3", "prod", "a", 5),
		rec("2025-01-01", "aws", "EC2", "prod", "a", 9),
		rec("2025-01-02", "aws", "EC2", "prod", "a", 1),
	}

	ledger.SortRecords(items, ledger.ParseSort("date:desc,cost:asc"))

	if items[0].Cost.InexactFloat64() != 1 {
		t.Errorf("primary date desc, tie-break cost asc: first should be the Jan 2 cost=1 record")
	}
	if items[1].Cost.InexactFloat64() != 5 {
		t.Errorf("second should be the Jan 2 cost=5 record")
	}
	if items[2].Day() != "2025-01-01" {
		t.Errorf("last should be the Jan 1 record")
	}
}

// =============================================================================
// PAGINATION TESTS
// =============================================================================

func TestNewPage_Clamps(t *testing.T) {
	cases := []struct {
		page, size     int
		wantPage, want int
	}{
		{0, 50, 1, 50},
		{-3, 50, 1, 50},
		{2, 0, 2, 1}, // explicit zero clamps to 1, no default fallback
		{1, 10000, 1, ledger.MaxPageSize},
		{1, -5, 1, 1},
		{3, 25, 3, 25},
	}
	for _, c := range cases {
		p := ledger.NewPage(c.page, c.size, ledger.MaxPageSize)
		if p.Number != c.wantPage || p.Size != c.want {
			t.Errorf("NewPage(%d, %d) = %+v, want page=%d size=%d", c.page, c.size, p, c.wantPage, c.want)
		}
	}
}

func TestPaginate_Boundary(t *testing.T) {
	// 45 records, pageSize 20: pages of 20, 20, 5, then empty
	items := make([]ledger.CostRecord, 45)
	for i := range items {
		items[i] = rec("2025-01-01", "aws", "S3", "prod", "a", float64(i))
	}

	sizes := map[int]int{1: 20, 2: 20, 3: 5, 4: 0}
	for page, want := range sizes {
		got := ledger.Paginate(items, ledger.Page{Number: page, Size: 20})
		if len(got) != want {
			t.Errorf("page %d: got %d items, want %d", page, len(got), want)
		}
	}
}

func TestPaginate_AllPagesCoverFilteredSet(t *testing.T) {
	items := make([]ledger.CostRecord, 33)
	for i := range items {
		items[i] = rec("2025-01-01", "aws", "S3", "prod", "a", float64(i))
		items[i].ID = string(rune('A' + i))
	}

	seen := make(map[string]bool)
	for page := 1; ; page++ {
		chunk := ledger.Paginate(items, ledger.Page{Number: page, Size: 10})
		if len(chunk) == 0 {
			break
		}
		for _, r := range chunk {
			if seen[r.ID] {
				t.Errorf("record %s appeared on two pages", r.ID)
			}
			seen[r.ID] = true
		}
	}
	if len(seen) != len(items) {
		t.Errorf("union of pages has %d records, want %d", len(seen), len(items))
	}
}
