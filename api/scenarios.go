/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a bracket
	catalog and a contract, then open a schedule session already in the
	interesting state. Each scenario demonstrates one engine behavior.

AVAILABLE SCENARIOS:

	equal-monthly:        1200.00 over 12 months, residual on the last row
	bracket-match:        45 payroll slips priced by the 2024 catalog
	custom-schedule:      custom mode seeded with two 50% rows
	increasing-quarterly: 1000.00 over 4 quarters, 10/20/30/40%

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and drop open sessions
 2. Import the demo catalog through the bracket factory
 3. Create the contract
 4. Open a session and drive it to the scenario's state

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "equal-monthly"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: session endpoints used after loading
  - factory/catalog.go: catalog document format
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/schedule"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "equal-monthly",
		Name:        "Equal Monthly",
		Description: "1200.00 split over 12 monthly installments; the last row absorbs the rounding residual",
	},
	{
		ID:          "bracket-match",
		Name:        "Bracket Match",
		Description: "45 payroll slips matched to bracket A of the 2024 catalog (10.00 x 2h = 20.00)",
	},
	{
		ID:          "custom-schedule",
		Name:        "Custom Schedule",
		Description: "Custom mode seeded with two 50% rows, ready for manual editing",
	},
	{
		ID:          "increasing-quarterly",
		Name:        "Increasing Quarterly",
		Description: "1000.00 over 4 quarters with increasing weights 10/20/30/40%",
	},
}

var errUnknownScenario = errors.New("unknown scenario")

// demoCatalog is imported by every scenario.
const demoCatalog = `
brackets:
  - {id: demo-2024-a, name: A, year: 2024, min_units: 1, max_units: 50, rate: "10.00", hours: 2}
  - {id: demo-2024-b, name: B, year: 2024, min_units: 51, max_units: 999, rate: "15.00", hours: 2}
  - {id: demo-2024-c, name: C, year: 2024, min_units: 1000, rate: "12.50", hours: 4}
  - {id: demo-2025-a, name: A, year: 2025, min_units: 1, max_units: 50, rate: "11.00", hours: 2}
  - {id: demo-2025-b, name: B, year: 2025, min_units: 51, rate: "16.00", hours: 2}
`

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, err := h.LoadScenarioByID(r.Context(), req.ScenarioID)
	if errors.Is(err, errUnknownScenario) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Status:    "loaded",
		Scenario:  req.ScenarioID,
		SessionID: s.ID(),
		Session:   toSessionDTO(s),
	})
}

// ResetDatabase clears all data and open sessions.
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Sessions.Clear()
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// LoadScenarioByID resets the database, seeds the scenario and registers
// its prepared session.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) (*schedule.Session, error) {
	var seed func(ctx context.Context) (*schedule.Session, error)
	switch id {
	case "equal-monthly":
		seed = h.loadEqualMonthlyScenario
	case "bracket-match":
		seed = h.loadBracketMatchScenario
	case "custom-schedule":
		seed = h.loadCustomScheduleScenario
	case "increasing-quarterly":
		seed = h.loadIncreasingQuarterlyScenario
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownScenario, id)
	}

	if err := h.reset(ctx); err != nil {
		return nil, err
	}
	if err := h.seedCatalog(ctx); err != nil {
		return nil, err
	}
	s, err := seed(ctx)
	if err != nil {
		return nil, err
	}

	h.Sessions.Put(s)
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Log.WithField("scenario", id).Info("demo scenario loaded")
	return s, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedCatalog(ctx context.Context) error {
	brackets, err := h.Factory.ParseCatalog([]byte(demoCatalog), factory.FormatYAML)
	if err != nil {
		return fmt.Errorf("parse demo catalog: %w", err)
	}
	return h.Store.SaveBrackets(ctx, brackets)
}

func (h *Handler) openContractSession(ctx context.Context, c generic.Contract) (*schedule.Session, error) {
	if err := h.Store.SaveContract(ctx, c); err != nil {
		return nil, err
	}
	res, err := h.catalog().ForContract(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return h.openSession(c.ID, res)
}

func (h *Handler) loadEqualMonthlyScenario(ctx context.Context) (*schedule.Session, error) {
	c := generic.Contract{
		ID:             "demo-equal-monthly",
		ClientName:     "Acme Payroll",
		ActivationDate: generic.NewTimePoint(2024, time.January, 15),
		Total:          generic.MustParseDecimal("1200.00"),
	}
	s, err := h.openContractSession(ctx, c)
	if err != nil {
		return nil, err
	}
	return s, s.SetParams(schedule.Params{
		Total:       c.Total,
		Start:       c.ActivationDate,
		Periodicity: generic.PeriodMonthly,
		Count:       12,
		EqualSplit:  true,
	})
}

func (h *Handler) loadBracketMatchScenario(ctx context.Context) (*schedule.Session, error) {
	c := generic.Contract{
		ID:             "demo-bracket-match",
		ClientName:     "Globex Services",
		ActivationDate: generic.NewTimePoint(2024, time.March, 1),
		Units:          45,
	}
	s, err := h.openContractSession(ctx, c)
	if err != nil {
		return nil, err
	}
	if _, err := s.SetUnits(c.Units); err != nil {
		return nil, err
	}
	return s, s.Update(func(p *schedule.Params) {
		p.Start = c.ActivationDate
		p.Periodicity = generic.PeriodMonthly
		p.Count = 1
	})
}

func (h *Handler) loadCustomScheduleScenario(ctx context.Context) (*schedule.Session, error) {
	c := generic.Contract{
		ID:             "demo-custom-schedule",
		ClientName:     "Initech",
		ActivationDate: h.Clock.Today(),
		Total:          generic.MustParseDecimal("999.99"),
	}
	s, err := h.openContractSession(ctx, c)
	if err != nil {
		return nil, err
	}
	return s, s.SetParams(schedule.Params{
		Total:       c.Total,
		Periodicity: generic.PeriodCustom,
		Count:       2,
	})
}

func (h *Handler) loadIncreasingQuarterlyScenario(ctx context.Context) (*schedule.Session, error) {
	c := generic.Contract{
		ID:             "demo-increasing-quarterly",
		ClientName:     "Umbrella Corp",
		ActivationDate: generic.NewTimePoint(2024, time.January, 1),
		Total:          generic.MustParseDecimal("1000.00"),
	}
	s, err := h.openContractSession(ctx, c)
	if err != nil {
		return nil, err
	}
	return s, s.SetParams(schedule.Params{
		Total:       c.Total,
		Start:       c.ActivationDate,
		Periodicity: generic.PeriodQuarterly,
		Count:       4,
		EqualSplit:  false,
	})
}
