/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts cross the wire as JSON numbers (float64), mirroring the
  dashboard client. Internally everything is decimal.Decimal; the
  conversion happens only at this boundary.

VALIDATION:
  Validation is done in handlers and domain engines, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/finops-engine/budget"
	"github.com/warp/finops-engine/ledger"
)

// =============================================================================
// COSTS
// =============================================================================

// CostRecordDTO represents a cost record in API responses.
type CostRecordDTO struct {
	ID       string  `json:"id"`
	Date     string  `json:"date"`
	Provider string  `json:"provider"`
	Service  string  `json:"service"`
	Env      string  `json:"env"`
	Team     string  `json:"team"`
	Cost     float64 `json:"cost"`
	Currency string  `json:"currency"`
}

// IngestCostDTO is one record in a bulk ingestion request. No id: ids
// are assigned at ingestion.
type IngestCostDTO struct {
	Date     string  `json:"date"`
	Provider string  `json:"provider"`
	Service  string  `json:"service"`
	Env      string  `json:"env"`
	Team     string  `json:"team"`
	Cost     float64 `json:"cost"`
	Currency string  `json:"currency,omitempty"`
}

// CostListResponse is a paginated cost listing.
type CostListResponse struct {
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Items    []CostRecordDTO `json:"items"`
}

// IngestResponse reports a successful bulk ingestion.
type IngestResponse struct {
	Inserted int `json:"inserted"`
}

// =============================================================================
// STATS
// =============================================================================

// DateTotalDTO is one day's aggregate in the stats response.
type DateTotalDTO struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

// ServiceTotalDTO is one service's aggregate in the stats response.
type ServiceTotalDTO struct {
	Service string  `json:"service"`
	Cost    float64 `json:"cost"`
}

// StatsResponse is the dashboard summary.
type StatsResponse struct {
	Total     float64           `json:"total"`
	ByDate    []DateTotalDTO    `json:"byDate"`
	ByService []ServiceTotalDTO `json:"byService"`
	Recent    []CostRecordDTO   `json:"recent"`
}

// =============================================================================
// BUDGETS
// =============================================================================

// BudgetDTO represents a budget in API responses.
type BudgetDTO struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Team       *string `json:"team"`
	Env        *string `json:"env"`
	Month      string  `json:"month"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Note       *string `json:"note"`
	SpentCache float64 `json:"spentCache"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
}

// CreateBudgetRequest is the request to create a budget.
type CreateBudgetRequest struct {
	Name     string  `json:"name"`
	Team     *string `json:"team,omitempty"`
	Env      *string `json:"env,omitempty"`
	Month    string  `json:"month"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
	Note     *string `json:"note,omitempty"`
}

// UpdateBudgetRequest is a partial budget update. Absent fields keep
// their prior values.
type UpdateBudgetRequest struct {
	Name     *string  `json:"name,omitempty"`
	Team     *string  `json:"team,omitempty"`
	Env      *string  `json:"env,omitempty"`
	Month    *string  `json:"month,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Currency *string  `json:"currency,omitempty"`
	Note     *string  `json:"note,omitempty"`
}

// BudgetListResponse is a paginated budget listing.
type BudgetListResponse struct {
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Items    []BudgetDTO `json:"items"`
}

// RecalcFailureDTO reports one budget that failed bulk recalculation.
type RecalcFailureDTO struct {
	BudgetID string `json:"budgetId"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

// RecalcResponse reports a bulk recalculation.
type RecalcResponse struct {
	OK       bool               `json:"ok"`
	Count    int                `json:"count"`
	Failures []RecalcFailureDTO `json:"failures,omitempty"`
}

// =============================================================================
// AUTH
// =============================================================================

// RegisterRequest is the request to register an identity.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// RegisterResponse confirms a registration.
type RegisterResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LoginRequest is the request to authenticate.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCostRecordDTO(r ledger.CostRecord) CostRecordDTO {
	cost, _ := r.Cost.Float64()
	return CostRecordDTO{
		ID:       r.ID,
		Date:     r.Day(),
		Provider: r.Provider,
		Service:  r.Service,
		Env:      r.Env,
		Team:     r.Team,
		Cost:     cost,
		Currency: r.Currency,
	}
}

func toCostRecordDTOs(records []ledger.CostRecord) []CostRecordDTO {
	dtos := make([]CostRecordDTO, len(records))
	for i, r := range records {
		dtos[i] = toCostRecordDTO(r)
	}
	return dtos
}

func toBudgetDTO(b budget.Budget) BudgetDTO {
	amount, _ := b.Amount.Float64()
	spent, _ := b.SpentCache.Float64()
	return BudgetDTO{
		ID:         b.ID,
		Name:       b.Name,
		Team:       b.Team,
		Env:        b.Env,
		Month:      b.Month,
		Amount:     amount,
		Currency:   b.Currency,
		Note:       b.Note,
		SpentCache: spent,
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  b.UpdatedAt.Format(time.RFC3339),
	}
}

func toBudgetDTOs(budgets []budget.Budget) []BudgetDTO {
	dtos := make([]BudgetDTO, len(budgets))
	for i, b := range budgets {
		dtos[i] = toBudgetDTO(b)
	}
	return dtos
}

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
