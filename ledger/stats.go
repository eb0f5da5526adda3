/*
stats.go - Dashboard aggregation over the cost ledger

PURPOSE:
  Computes the summary statistics the dashboard renders:
  - total: sum of all costs, rounded to 2 decimals
  - byDate: per-day sums, ascending by date
  - byService: per-service sums, descending, truncated to the top 5
  - recent: the 10 most recent records

TIE-BREAKING:
  byService ties keep first-encountered order; recent keeps insertion
  order within a day. Both require the input slice to be in insertion
  order, which Store.All guarantees.
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TopServices is how many services the byService breakdown keeps.
const TopServices = 5

// RecentCount is how many records the recent list keeps.
const RecentCount = 10

// DateTotal is one day's aggregate spend.
type DateTotal struct {
	Date string
	Cost decimal.Decimal
}

// ServiceTotal is one service's aggregate spend.
type ServiceTotal struct {
	Service string
	Cost    decimal.Decimal
}

// Stats is the dashboard summary of the full ledger.
type Stats struct {
	Total     decimal.Decimal
	ByDate    []DateTotal
	ByService []ServiceTotal
	Recent    []CostRecord
}

// ComputeStats aggregates records, which must be in insertion order.
func ComputeStats(records []CostRecord) Stats {
	total := decimal.Zero

	byDate := make(map[string]decimal.Decimal)
	byService := make(map[string]decimal.Decimal)
	serviceOrder := make([]string, 0) // first-encountered order for ties

	for _, r := range records {
		total = total.Add(r.Cost)

		day := r.Day()
		byDate[day] = byDate[day].Add(r.Cost)

		if _, seen := byService[r.Service]; !seen {
			serviceOrder = append(serviceOrder, r.Service)
		}
		byService[r.Service] = byService[r.Service].Add(r.Cost)
	}

	dates := make([]DateTotal, 0, len(byDate))
	for day, cost := range byDate {
		dates = append(dates, DateTotal{Date: day, Cost: cost.Round(2)})
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Date < dates[j].Date })

	services := make([]ServiceTotal, 0, len(serviceOrder))
	for _, name := range serviceOrder {
		services = append(services, ServiceTotal{Service: name, Cost: byService[name].Round(2)})
	}
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].Cost.GreaterThan(services[j].Cost)
	})
	if len(services) > TopServices {
		services = services[:TopServices]
	}

	recent := make([]CostRecord, len(records))
	copy(recent, records)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Day() > recent[j].Day() })
	if len(recent) > RecentCount {
		recent = recent[:RecentCount]
	}

	return Stats{
		Total:     total.Round(2),
		ByDate:    dates,
		ByService: services,
		Recent:    recent,
	}
}
