/*
handlers.go - HTTP API handlers for the billing schedule engine

PURPOSE:
  Exposes the tariff and schedule engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Brackets:
    GET    /api/brackets                 List brackets (?year=2024 for one year)
    POST   /api/brackets                 Create bracket from JSON
    GET    /api/brackets/{id}            Get bracket
    PUT    /api/brackets/{id}            Replace bracket
    DELETE /api/brackets/{id}            Delete bracket
    POST   /api/brackets/import          Import a JSON or YAML catalog document
    GET    /api/brackets/export          Export the catalog (?format=yaml)
    GET    /api/brackets/coverage        Overlaps and gaps per year
    GET    /api/brackets/years           Years with brackets
    POST   /api/match                    Which bracket prices a usage count

  Contracts:
    GET    /api/contracts                List contracts
    POST   /api/contracts                Create or replace contract
    GET    /api/contracts/{id}           Get contract
    DELETE /api/contracts/{id}           Delete contract and its schedule
    GET    /api/contracts/{id}/schedule  Last saved schedule
    GET    /api/contracts/{id}/bracket   Bracket matching the contract's units

  Schedules:
    POST   /api/preview                  Generate a schedule without a session

  Sessions:
    POST   /api/sessions                          Open a session for a contract
    GET    /api/sessions/{id}                     Session view
    DELETE /api/sessions/{id}                     Discard session
    PATCH  /api/sessions/{id}/params              Change generation parameters
    PUT    /api/sessions/{id}/units               Set usage count
    POST   /api/sessions/{id}/bracket/pin         Pin a bracket
    POST   /api/sessions/{id}/bracket/auto        Re-enable auto-select
    POST   /api/sessions/{id}/rows                Add custom row
    PATCH  /api/sessions/{id}/rows/{index}        Edit custom row field
    DELETE /api/sessions/{id}/rows/{index}        Remove custom row
    POST   /api/sessions/{id}/save                Persist through the Ledger

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (generic.IsClientError)
  - 404: Unknown contract, bracket or session
  - 409: Operation not allowed in the session's state
  - 500: Ledger and internal errors
  A usage count no bracket covers is not an error for the session: the
  response is 200 with a warning and the previous selection.

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/schedule"
	"github.com/warp/billing-engine/store/sqlite"
	"github.com/warp/billing-engine/tariff"
)

const maxDocumentBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Factory     *factory.BracketFactory
	Sessions    *SessionRegistry
	Clock       generic.Clock
	Log         logrus.FieldLogger
	SaveTimeout time.Duration
	NewID       func() string

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, logger logrus.FieldLogger) *Handler {
	return &Handler{
		Store:       store,
		Factory:     factory.NewBracketFactory(),
		Sessions:    NewSessionRegistry(),
		Clock:       generic.SystemClock{},
		Log:         logger,
		SaveTimeout: schedule.DefaultSaveTimeout,
		NewID:       uuid.NewString,
	}
}

func (h *Handler) catalog() *tariff.Catalog {
	return tariff.NewCatalog(h.Store, h.Clock)
}

// =============================================================================
// BRACKET HANDLERS
// =============================================================================

// ListBrackets returns the brackets of one year, or all of them.
// GET /api/brackets?year=2024
func (h *Handler) ListBrackets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		brackets []generic.Bracket
		err      error
	)
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, convErr := strconv.Atoi(raw)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", convErr)
			return
		}
		brackets, err = h.Store.ListBrackets(ctx, year)
	} else {
		brackets, err = h.Store.ListAllBrackets(ctx)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list brackets", err)
		return
	}

	dtos := make([]factory.BracketJSON, len(brackets))
	for i, b := range brackets {
		dtos[i] = h.Factory.ToJSON(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBracket creates a bracket.
// POST /api/brackets
func (h *Handler) CreateBracket(w http.ResponseWriter, r *http.Request) {
	var req factory.BracketJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	b, err := h.Factory.FromJSON(req)
	if err != nil {
		writeDomainError(w, "Invalid bracket", err)
		return
	}
	if err := h.Store.SaveBracket(r.Context(), b); err != nil {
		writeDomainError(w, "Failed to save bracket", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Factory.ToJSON(b))
}

// GetBracket returns one bracket.
// GET /api/brackets/{id}
func (h *Handler) GetBracket(w http.ResponseWriter, r *http.Request) {
	b, err := h.Store.GetBracket(r.Context(), generic.BracketID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get bracket", err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "Bracket not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(*b))
}

// UpdateBracket replaces an existing bracket.
// PUT /api/brackets/{id}
func (h *Handler) UpdateBracket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	existing, err := h.Store.GetBracket(ctx, generic.BracketID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get bracket", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Bracket not found", nil)
		return
	}

	var req factory.BracketJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = id
	b, err := h.Factory.FromJSON(req)
	if err != nil {
		writeDomainError(w, "Invalid bracket", err)
		return
	}
	if err := h.Store.SaveBracket(ctx, b); err != nil {
		writeDomainError(w, "Failed to save bracket", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(b))
}

// DeleteBracket removes a bracket.
// DELETE /api/brackets/{id}
func (h *Handler) DeleteBracket(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteBracket(r.Context(), generic.BracketID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to delete bracket", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportBrackets imports a catalog document. The format comes from
// ?format=yaml|json, then the Content-Type, defaulting to JSON.
// POST /api/brackets/import
func (h *Handler) ImportBrackets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read catalog document", err)
		return
	}

	brackets, err := h.Factory.ParseCatalog(data, requestFormat(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid catalog document", err)
		return
	}
	if err := h.Store.SaveBrackets(ctx, brackets); err != nil {
		writeDomainError(w, "Failed to import brackets", err)
		return
	}

	all, err := h.Store.ListAllBrackets(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list brackets", err)
		return
	}
	issues := factory.CoverageIssues(all)
	if issues == nil {
		issues = []string{}
	}

	h.Log.WithFields(logrus.Fields{"imported": len(brackets), "issues": len(issues)}).Info("bracket catalog imported")
	writeJSON(w, http.StatusOK, ImportResponse{Imported: len(brackets), Issues: issues})
}

// ExportBrackets returns the whole catalog as a document.
// GET /api/brackets/export?format=yaml
func (h *Handler) ExportBrackets(w http.ResponseWriter, r *http.Request) {
	all, err := h.Store.ListAllBrackets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list brackets", err)
		return
	}
	format := requestFormat(r)
	data, err := h.Factory.MarshalCatalog(all, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode catalog", err)
		return
	}
	if format == factory.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// BracketCoverage reports overlaps and gaps.
// GET /api/brackets/coverage
func (h *Handler) BracketCoverage(w http.ResponseWriter, r *http.Request) {
	all, err := h.Store.ListAllBrackets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list brackets", err)
		return
	}
	issues := factory.CoverageIssues(all)
	if issues == nil {
		issues = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"issues": issues})
}

// ListBracketYears returns the years that have brackets.
// GET /api/brackets/years
func (h *Handler) ListBracketYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.Store.ListBracketYears(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list years", err)
		return
	}
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, years)
}

// MatchBracket resolves the catalog for a year and matches a usage count.
// POST /api/match
func (h *Handler) MatchBracket(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year == 0 {
		req.Year = h.Clock.Today().Year()
	}

	res, err := h.catalog().Resolve(r.Context(), req.Year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, matchResponse(req.Units, res))
}

func matchResponse(units int, res tariff.Resolution) MatchResponse {
	resp := MatchResponse{CatalogYear: res.Year, RequestedYear: res.Requested, Fallback: res.Fallback}
	m, err := tariff.MatchAmount(units, res.Year, res.Brackets)
	if err != nil {
		resp.Warning = err.Error()
		return resp
	}
	resp.Match = toMatchDTO(m)
	return resp
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// ListContracts returns all contracts.
// GET /api/contracts
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Store.ListContracts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}
	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContract creates or replaces a contract.
// POST /api/contracts
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	activation, err := generic.ParseDate(req.ActivationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid activation_date format (use YYYY-MM-DD)", err)
		return
	}
	if req.Units < 0 || req.Total.IsNegative() {
		writeError(w, http.StatusBadRequest, "units and total must not be negative", nil)
		return
	}
	if req.ID == "" {
		req.ID = h.NewID()
	}

	c := generic.Contract{
		ID:             generic.ContractID(req.ID),
		ClientName:     req.ClientName,
		ActivationDate: activation,
		Units:          req.Units,
		Total:          req.Total,
	}
	if err := h.Store.SaveContract(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(c))
}

// GetContract returns one contract.
// GET /api/contracts/{id}
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetContract(r.Context(), generic.ContractID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*c))
}

// DeleteContract removes a contract and its saved schedule.
// DELETE /api/contracts/{id}
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteContract(r.Context(), generic.ContractID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to delete contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetContractSchedule returns the last saved schedule of a contract.
// GET /api/contracts/{id}/schedule
func (h *Handler) GetContractSchedule(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.LoadSchedule(r.Context(), generic.ContractID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load schedule", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "No schedule saved for contract", nil)
		return
	}

	dto := toScheduleDTO(rec.Installments, rec.Total)
	dto.ID = rec.ID
	dto.ContractID = string(rec.ContractID)
	dto.SavedAt = formatTime(rec.SavedAt)
	writeJSON(w, http.StatusOK, dto)
}

// GetContractBracket matches the contract's units against the catalog
// anchored on its activation year.
// GET /api/contracts/{id}/bracket
func (h *Handler) GetContractBracket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.ContractID(chi.URLParam(r, "id"))

	c, err := h.Store.GetContract(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}
	res, err := h.catalog().ForContract(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to resolve catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, matchResponse(c.Units, res))
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview generates a reconciled schedule without opening a session.
// POST /api/preview
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		writeDomainError(w, "Invalid start_date", err)
		return
	}
	periodicity, err := generic.ParsePeriodicity(req.Periodicity)
	if err != nil {
		writeDomainError(w, "Invalid periodicity", err)
		return
	}
	equal := true
	if req.EqualSplit != nil {
		equal = *req.EqualSplit
	}

	rows, err := schedule.Generate(schedule.Params{
		Total:       req.Total,
		Start:       start,
		Periodicity: periodicity,
		Count:       req.Count,
		EqualSplit:  equal,
	})
	if err != nil {
		writeDomainError(w, "Failed to generate schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(rows, req.Total))
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// CreateSession opens a schedule session for a contract. The contract's
// usage count, if any, preselects a bracket.
// POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ContractID == "" {
		writeError(w, http.StatusBadRequest, "contract_id is required", nil)
		return
	}

	contractID := generic.ContractID(req.ContractID)
	res, err := h.catalog().ForContract(ctx, contractID)
	if err != nil {
		writeDomainError(w, "Failed to resolve catalog", err)
		return
	}
	c, err := h.Store.GetContract(ctx, contractID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}

	s, err := h.openSession(contractID, res)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	var warning string
	if c != nil && c.Units > 0 {
		if _, err := s.SetUnits(c.Units); err != nil {
			if !generic.IsRecoverable(err) {
				writeDomainError(w, "Failed to select bracket", err)
				return
			}
			warning = err.Error()
		}
	}
	if warning == "" && res.Fallback {
		warning = fmt.Sprintf("no brackets for %d, using %d catalog", res.Requested, res.Year)
	}

	h.Sessions.Put(s)
	dto := toSessionDTO(s)
	dto.Warning = warning
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) openSession(contractID generic.ContractID, res tariff.Resolution) (*schedule.Session, error) {
	return schedule.NewSession(schedule.Options{
		ID:          h.NewID(),
		ContractID:  contractID,
		Writer:      h.Store,
		Clock:       h.Clock,
		Logger:      h.Log,
		Catalog:     res,
		SaveTimeout: h.SaveTimeout,
	})
}

// GetSession returns the session view.
// GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// DeleteSession discards a session and any unsaved work.
// DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.Sessions.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateParams changes generation parameters. With a generated
// periodicity the whole schedule is regenerated; a rejected change keeps
// the previous schedule.
// PATCH /api/sessions/{id}/params
func (h *Handler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req ParamsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		start       generic.TimePoint
		periodicity generic.Periodicity
		err         error
	)
	if req.StartDate != nil {
		if start, err = generic.ParseDate(*req.StartDate); err != nil {
			writeDomainError(w, "Invalid start_date", err)
			return
		}
	}
	if req.Periodicity != nil {
		if periodicity, err = generic.ParsePeriodicity(*req.Periodicity); err != nil {
			writeDomainError(w, "Invalid periodicity", err)
			return
		}
	}

	err = s.Update(func(p *schedule.Params) {
		if req.Total != nil {
			p.Total = *req.Total
		}
		if req.StartDate != nil {
			p.Start = start
		}
		if req.Periodicity != nil {
			p.Periodicity = periodicity
		}
		if req.Count != nil {
			p.Count = *req.Count
		}
		if req.EqualSplit != nil {
			p.EqualSplit = *req.EqualSplit
		}
	})
	if err != nil {
		writeDomainError(w, "Parameters rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// SetUnits records the usage count and re-matches the bracket.
// PUT /api/sessions/{id}/units
func (h *Handler) SetUnits(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req UnitsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	_, err := s.SetUnits(req.Units)
	h.writeBracketResult(w, s, err)
}

// PinBracket selects a bracket manually.
// POST /api/sessions/{id}/bracket/pin
func (h *Handler) PinBracket(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	_, err := s.PinBracket(req.Bracket)
	h.writeBracketResult(w, s, err)
}

// EnableAutoBracket turns auto-select back on.
// POST /api/sessions/{id}/bracket/auto
func (h *Handler) EnableAutoBracket(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	_, err := s.EnableAutoBracket()
	h.writeBracketResult(w, s, err)
}

func (h *Handler) writeBracketResult(w http.ResponseWriter, s *schedule.Session, err error) {
	if err != nil && !generic.IsRecoverable(err) {
		writeDomainError(w, "Bracket selection failed", err)
		return
	}
	dto := toSessionDTO(s)
	if err != nil {
		dto.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// AddRow appends a custom row covering the remaining share.
// POST /api/sessions/{id}/rows
func (h *Handler) AddRow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := s.AddRow(); err != nil {
		writeDomainError(w, "Failed to add row", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// RemoveRow removes a custom row.
// DELETE /api/sessions/{id}/rows/{index}
func (h *Handler) RemoveRow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := rowIndex(w, r)
	if !ok {
		return
	}
	if _, err := s.RemoveRow(index); err != nil {
		writeDomainError(w, "Failed to remove row", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// EditRow changes the date, percentage or amount of a custom row.
// PATCH /api/sessions/{id}/rows/{index}
func (h *Handler) EditRow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := rowIndex(w, r)
	if !ok {
		return
	}
	var req EditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	edit, err := schedule.ParseEdit(req.Field, req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid edit", err)
		return
	}
	if _, err := s.EditField(index, edit); err != nil {
		writeDomainError(w, "Failed to edit row", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// SaveSession validates the schedule and persists it.
// POST /api/sessions/{id}/save
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Save(r.Context()); err != nil {
		writeDomainError(w, "Failed to save schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*schedule.Session, bool) {
	s, ok := h.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return nil, false
	}
	return s, true
}

func rowIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid row index", err)
		return 0, false
	}
	return index, true
}

// =============================================================================
// HELPERS
// =============================================================================

// Health reports that the server is up.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.Sessions.Len()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxDocumentBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

func requestFormat(r *http.Request) factory.Format {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "yaml", "yml":
		return factory.FormatYAML
	case "json":
		return factory.FormatJSON
	}
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "yaml") {
		return factory.FormatYAML
	}
	return factory.FormatJSON
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsStateError(err):
		return http.StatusConflict
	case generic.IsClientError(err), generic.IsRecoverable(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
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
