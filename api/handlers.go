/*
handlers.go - HTTP API handlers for the FinOps cost ledger

PURPOSE:
  Exposes the cost ledger, budget reconciliation and identity engines
  via REST. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/auth/register       Register an identity
    POST   /api/auth/login          Authenticate, run access-bootstrap, mint token

  Costs:
    GET    /api/costs               Filtered/sorted/paginated cost listing
    POST   /api/costs               Bulk ingestion (atomic batch)
    GET    /api/stats               Dashboard aggregation

  Budgets:
    GET    /api/budgets             Filtered/paginated budget listing
    POST   /api/budgets             Create (admin)
    PATCH  /api/budgets/{id}        Partial update (admin)
    DELETE /api/budgets/{id}        Delete (admin)
    POST   /api/budgets/recalc      Recompute every spentCache (admin)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ingestor, reconciler, identity service)
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 401: Missing/invalid credentials or token
  - 403: Insufficient role
  - 404: Budget not found
  - 409: Duplicate email
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication and role enforcement
  - server.go: Router setup
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/finops-engine/audit"
	"github.com/warp/finops-engine/budget"
	"github.com/warp/finops-engine/identity"
	"github.com/warp/finops-engine/ledger"
	"github.com/warp/finops-engine/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Ingestor *ledger.Ingestor
	Budgets  *budget.Reconciler
	Identity *identity.Service
}

// NewHandler wires a handler around the store and domain engines.
func NewHandler(store *sqlite.Store, ingestor *ledger.Ingestor, budgets *budget.Reconciler, ident *identity.Service) *Handler {
	return &Handler{
		Store:    store,
		Ingestor: ingestor,
		Budgets:  budgets,
		Identity: ident,
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Register creates a new identity with an unset role.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ident, err := h.Identity.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "Registration failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		ID:    ident.ID,
		Email: ident.Email,
		Name:  ident.Name,
	})
}

// Login authenticates and mints a session token. The first identity to
// ever authenticate becomes ADMIN via the access-bootstrap.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	session, err := h.Identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token: session.Token,
		Role:  string(session.Role),
	})
}

// =============================================================================
// COST HANDLERS
// =============================================================================

// ListCosts returns a filtered, sorted, paginated cost listing.
// GET /api/costs?page&pageSize&q&sort&month&team&env
func (h *Handler) ListCosts(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	month := params.Get("month")
	if month != "" && !ledger.ValidMonth(month) {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", nil)
		return
	}

	q := ledger.Query{
		Filter: ledger.Filter{
			Q:     params.Get("q"),
			Team:  params.Get("team"),
			Env:   params.Get("env"),
			Month: month,
		},
		Sort: ledger.ParseSort(params.Get("sort")),
		Page: ledger.NewPage(intParam(params.Get("page"), 1), intParam(params.Get("pageSize"), ledger.DefaultPageSize), ledger.MaxPageSize),
	}

	total, items, err := h.Store.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list costs", err)
		return
	}

	writeJSON(w, http.StatusOK, CostListResponse{
		Total:    total,
		Page:     q.Page.Number,
		PageSize: q.Page.Size,
		Items:    toCostRecordDTOs(items),
	})
}

// IngestCosts accepts an array of parsed cost records and inserts them
// as one atomic batch. Invalid records are reported per index and
// reject the whole batch.
// POST /api/costs
func (h *Handler) IngestCosts(w http.ResponseWriter, r *http.Request) {
	var body []IngestCostDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body (expected an array of cost records)", err)
		return
	}

	records := make([]ledger.CostRecord, len(body))
	for i, dto := range body {
		date, err := time.Parse(ledger.DateLayout, dto.Date)
		if err != nil {
			// Leave Date zero; the ingestor reports it by index.
			date = time.Time{}
		}
		records[i] = ledger.CostRecord{
			Date:     date,
			Provider: dto.Provider,
			Service:  dto.Service,
			Env:      dto.Env,
			Team:     dto.Team,
			Cost:     decimalFromFloat(dto.Cost),
			Currency: dto.Currency,
		}
	}

	inserted, err := h.Ingestor.Insert(r.Context(), records)
	if err != nil {
		var batchErr *ledger.BatchError
		if errors.As(err, &batchErr) {
			failures := make([]map[string]any, len(batchErr.Items))
			for i, item := range batchErr.Items {
				failures[i] = map[string]any{"index": item.Index, "error": item.Err.Error()}
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid records in batch",
				Code:    "invalid_batch",
				Details: failures,
			})
			return
		}
		if errors.Is(err, ledger.ErrEmptyBatch) {
			writeError(w, http.StatusBadRequest, "Empty batch", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to ingest costs", err)
		return
	}

	writeJSON(w, http.StatusCreated, IngestResponse{Inserted: inserted})
}

// GetStats returns the dashboard aggregation over the full ledger.
// GET /api/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}

	stats := ledger.ComputeStats(records)

	byDate := make([]DateTotalDTO, len(stats.ByDate))
	for i, d := range stats.ByDate {
		cost, _ := d.Cost.Float64()
		byDate[i] = DateTotalDTO{Date: d.Date, Cost: cost}
	}
	byService := make([]ServiceTotalDTO, len(stats.ByService))
	for i, s := range stats.ByService {
		cost, _ := s.Cost.Float64()
		byService[i] = ServiceTotalDTO{Service: s.Service, Cost: cost}
	}
	total, _ := stats.Total.Float64()

	writeJSON(w, http.StatusOK, StatsResponse{
		Total:     total,
		ByDate:    byDate,
		ByService: byService,
		Recent:    toCostRecordDTOs(stats.Recent),
	})
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

// ListBudgets returns a filtered, paginated budget listing.
// GET /api/budgets?page&pageSize&month&team&env
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	page := ledger.NewPage(intParam(params.Get("page"), 1), intParam(params.Get("pageSize"), ledger.DefaultPageSize), budget.MaxPageSize)
	filter := budget.ListFilter{
		Month: params.Get("month"),
		Team:  params.Get("team"),
		Env:   params.Get("env"),
	}

	total, items, err := h.Budgets.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list budgets", err)
		return
	}

	writeJSON(w, http.StatusOK, BudgetListResponse{
		Total:    total,
		Page:     page.Number,
		PageSize: page.Size,
		Items:    toBudgetDTOs(items),
	})
}

// CreateBudget creates a budget, computing its spentCache synchronously.
// POST /api/budgets (admin)
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req CreateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := h.Budgets.Create(r.Context(), budget.CreateInput{
		Name:     req.Name,
		Team:     req.Team,
		Env:      req.Env,
		Month:    req.Month,
		Amount:   decimalFromFloat(req.Amount),
		Currency: req.Currency,
		Note:     req.Note,
	}, actorFrom(r))
	if err != nil {
		writeBudgetError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBudgetDTO(*created))
}

// UpdateBudget applies a partial update. SpentCache is NOT recomputed:
// clients changing scope or month must hit /api/budgets/recalc.
// PATCH /api/budgets/{id} (admin)
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := budget.Patch{
		Name:     req.Name,
		Team:     req.Team,
		Env:      req.Env,
		Month:    req.Month,
		Currency: req.Currency,
		Note:     req.Note,
	}
	if req.Amount != nil {
		amount := decimal.NewFromFloat(*req.Amount)
		patch.Amount = &amount
	}

	updated, err := h.Budgets.Update(r.Context(), id, patch, actorFrom(r))
	if err != nil {
		writeBudgetError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBudgetDTO(*updated))
}

// DeleteBudget removes a budget.
// DELETE /api/budgets/{id} (admin)
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Budgets.Delete(r.Context(), id, actorFrom(r)); err != nil {
		writeBudgetError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// RecalcBudgets recomputes every budget's spentCache from the ledger.
// Per-budget failures are reported, not fatal.
// POST /api/budgets/recalc (admin)
func (h *Handler) RecalcBudgets(w http.ResponseWriter, r *http.Request) {
	result, err := h.Budgets.RecalcAll(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to recalculate budgets", err)
		return
	}

	resp := RecalcResponse{OK: true, Count: result.Count}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, RecalcFailureDTO{
			BudgetID: f.BudgetID,
			Name:     f.Name,
			Error:    f.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeBudgetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, budget.ErrNotFound):
		writeError(w, http.StatusNotFound, "Budget not found", nil)
	case errors.Is(err, budget.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Budget operation failed", err)
	}
}

func actorFrom(r *http.Request) audit.Actor {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		return audit.Actor{}
	}
	return audit.Actor{ID: claims.Subject, Email: claims.Email}
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
