/*
handlers_test.go - HTTP tests for the API handlers

Requests go through NewRouter against an in-memory SQLite store with a
fixed clock (2024-05-02), so responses are deterministic.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/store/sqlite"
)

type testAPI struct {
	handler *Handler
	router  http.Handler
}

func setupTestHandler(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, _ := logtest.NewNullLogger()
	h := NewHandler(store, logger)
	h.Clock = generic.NewFixedClock(generic.NewTimePoint(2024, time.May, 2))
	store.Clock = h.Clock
	n := 0
	h.NewID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return &testAPI{handler: h, router: NewRouter(h, []string{"http://localhost:*"})}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const twoBrackets2024 = `{"brackets": [
  {"id": "a24", "name": "A", "year": 2024, "min_units": 1, "max_units": 50, "rate": "10.00", "hours": 2},
  {"id": "b24", "name": "B", "year": 2024, "min_units": 51, "max_units": 999, "rate": "15.00", "hours": 2}
]}`

func (a *testAPI) seedBracketsAndContract(t *testing.T, units int) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/brackets/import", twoBrackets2024)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/contracts", CreateContractRequest{
		ID: "c-1", ClientName: "Acme", ActivationDate: "2024-03-01", Units: units,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *testAPI) openSession(t *testing.T) SessionDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{ContractID: "c-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[SessionDTO](t, rec)
}

// =============================================================================
// BRACKETS
// =============================================================================

func TestBrackets_CRUD(t *testing.T) {
	api := setupTestHandler(t)

	rec := api.do(t, http.MethodPost, "/api/brackets", `{"id": "a24", "name": "A", "year": 2024, "max_units": 50, "rate": 10, "hours": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/brackets?year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0]["name"])
	assert.Equal(t, float64(1), list[0]["min_units"])

	rec = api.do(t, http.MethodPut, "/api/brackets/a24", `{"name": "A", "year": 2024, "max_units": 60, "rate": "12.50", "hours": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/brackets/a24", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "12.5", got["rate"])
	assert.Equal(t, float64(60), got["max_units"])

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/api/brackets/a24", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/api/brackets/a24", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/brackets/a24", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPut, "/api/brackets/a24", `{"name": "A", "year": 2024, "rate": 1}`).Code)
}

func TestBrackets_RejectsInvalidInput(t *testing.T) {
	api := setupTestHandler(t)
	api.seedBracketsAndContract(t, 0)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"max below min", "/api/brackets", `{"name": "X", "year": 2024, "min_units": 10, "max_units": 5, "rate": 1}`},
		{"duplicate name in year", "/api/brackets", `{"id": "other", "name": "A", "year": 2024, "rate": 1}`},
		{"malformed body", "/api/brackets", `{"name":`},
		{"bad year filter", "/api/brackets?year=twenty", ``},
		{"negative rate in import", "/api/brackets/import", `[{"name": "Z", "year": 2024, "rate": -1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if strings.Contains(tt.path, "?") {
				method = http.MethodGet
			}
			rec := api.do(t, method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestBrackets_ImportYAMLReportsCoverage(t *testing.T) {
	// GIVEN: A YAML catalog whose brackets overlap at 40 units
	// WHEN: Importing it with a YAML content type
	// THEN: Both brackets are stored and the overlap is reported

	api := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/brackets/import", strings.NewReader(`
brackets:
  - {name: A, year: 2024, min_units: 1, max_units: 50, rate: "10.00", hours: 2}
  - {name: B, year: 2024, min_units: 40, rate: "15.00", hours: 2}
`))
	req.Header.Set("Content-Type", "application/yaml")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[ImportResponse](t, rec)
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, []string{"2024: A overlaps B at 40"}, resp.Issues)

	rec = api.do(t, http.MethodGet, "/api/brackets/coverage", nil)
	assert.Contains(t, rec.Body.String(), "overlaps")

	rec = api.do(t, http.MethodGet, "/api/brackets/export?format=yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "name: B")

	rec = api.do(t, http.MethodGet, "/api/brackets/years", nil)
	assert.Equal(t, []int{2024}, decodeBody[[]int](t, rec))
}

func TestMatch(t *testing.T) {
	api := setupTestHandler(t)
	api.seedBracketsAndContract(t, 45)

	// GIVEN: Brackets A(1-50, 10.00 x 2) and B(51-999, 15.00 x 2) for 2024
	// WHEN: Matching 45 units in 2024
	// THEN: Bracket A prices 20.00
	rec := api.do(t, http.MethodPost, "/api/match", MatchRequest{Units: 45, Year: 2024})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[MatchResponse](t, rec)
	require.NotNil(t, resp.Match)
	assert.Equal(t, "A", resp.Match.Name)
	assert.Equal(t, "20.00", resp.Match.Amount)
	assert.False(t, resp.Fallback)

	// A usage count no bracket covers is a warning, not an error
	rec = api.do(t, http.MethodPost, "/api/match", MatchRequest{Units: 5000, Year: 2024})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[MatchResponse](t, rec)
	assert.Nil(t, resp.Match)
	assert.NotEmpty(t, resp.Warning)

	// 2030 has no catalog, the current year's (2024) is used
	rec = api.do(t, http.MethodPost, "/api/match", MatchRequest{Units: 60, Year: 2030})
	resp = decodeBody[MatchResponse](t, rec)
	assert.True(t, resp.Fallback)
	assert.Equal(t, 2024, resp.CatalogYear)
	assert.Equal(t, "B", resp.Match.Name)

	rec = api.do(t, http.MethodGet, "/api/contracts/c-1/bracket", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A", decodeBody[MatchResponse](t, rec).Match.Name)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_EqualMonthly(t *testing.T) {
	// GIVEN: 1200.00 over 12 months, equal split
	// WHEN: Previewing
	// THEN: 12 rows of 100.00, 8.33% each except 8.37% on the last

	api := setupTestHandler(t)
	rec := api.do(t, http.MethodPost, "/api/preview", `{"total": "1200.00", "start_date": "2024-01-31", "periodicity": "monthly", "count": 12}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dto := decodeBody[ScheduleDTO](t, rec)
	require.Len(t, dto.Installments, 12)
	for i, row := range dto.Installments {
		assert.Equal(t, "100.00", row.Amount)
		if i < 11 {
			assert.Equal(t, "8.33", row.Percentage)
		}
	}
	assert.Equal(t, "8.37", dto.Installments[11].Percentage)
	assert.Equal(t, "2024-02-29", dto.Installments[1].DueDate)
	assert.Equal(t, "100.00", dto.Totals.Percentage)
	assert.Equal(t, "1200.00", dto.Totals.Amount)
	assert.True(t, dto.Totals.Balanced)
}

func TestPreview_IncreasingQuarterly(t *testing.T) {
	api := setupTestHandler(t)
	rec := api.do(t, http.MethodPost, "/api/preview", `{"total": 1000, "start_date": "2024-01-01", "periodicity": "quarterly", "count": 4, "equal_split": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dto := decodeBody[ScheduleDTO](t, rec)
	var pcts []string
	for _, row := range dto.Installments {
		pcts = append(pcts, row.Percentage)
	}
	assert.Equal(t, []string{"10.00", "20.00", "30.00", "40.00"}, pcts)
}

func TestPreview_RejectsInvalidParams(t *testing.T) {
	api := setupTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"zero count", `{"total": 100, "start_date": "2024-01-01", "periodicity": "monthly", "count": 0}`},
		{"unknown periodicity", `{"total": 100, "start_date": "2024-01-01", "periodicity": "weekly", "count": 2}`},
		{"custom periodicity", `{"total": 100, "start_date": "2024-01-01", "periodicity": "custom", "count": 2}`},
		{"impossible date", `{"total": 100, "start_date": "2024-02-30", "periodicity": "monthly", "count": 2}`},
		{"zero total", `{"total": 0, "start_date": "2024-01-01", "periodicity": "monthly", "count": 2}`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/preview", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// CONTRACTS
// =============================================================================

func TestContracts(t *testing.T) {
	api := setupTestHandler(t)

	rec := api.do(t, http.MethodPost, "/api/contracts", CreateContractRequest{
		ClientName: "Initech", ActivationDate: "2024-02-01", Units: 12,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[ContractDTO](t, rec)
	assert.Equal(t, "id-1", created.ID)
	assert.Equal(t, "0.00", created.Total)

	rec = api.do(t, http.MethodGet, "/api/contracts/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-02-01", decodeBody[ContractDTO](t, rec).ActivationDate)

	rec = api.do(t, http.MethodGet, "/api/contracts", nil)
	assert.Len(t, decodeBody[[]ContractDTO](t, rec), 1)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/contracts/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/contracts/id-1/schedule", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/contracts",
		CreateContractRequest{ActivationDate: "01/02/2024"}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/contracts",
		CreateContractRequest{ActivationDate: "2024-01-01", Units: -1}).Code)

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/api/contracts/id-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/api/contracts/id-1", nil).Code)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSession_GenerateAndSave(t *testing.T) {
	// GIVEN: A contract with 45 units and the 2024 catalog
	// WHEN: Opening a session, setting monthly x2 and saving
	// THEN: The bracket total 20.00 is split 10.00/10.00 and readable from the contract

	api := setupTestHandler(t)
	api.seedBracketsAndContract(t, 45)

	s := api.openSession(t)
	assert.Equal(t, "idle", s.State)
	require.NotNil(t, s.Bracket)
	assert.Equal(t, "A", s.Bracket.Name)
	assert.True(t, s.AutoBracket)
	assert.Equal(t, "20.00", s.Params.Total)
	assert.Empty(t, s.Installments)

	rec := api.do(t, http.MethodPatch, "/api/sessions/"+s.ID+"/params",
		`{"start_date": "2024-03-01", "periodicity": "monthly", "count": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s = decodeBody[SessionDTO](t, rec)
	assert.Equal(t, "previewing", s.State)
	require.Len(t, s.Installments, 2)
	assert.Equal(t, "10.00", s.Installments[0].Amount)
	assert.Equal(t, "2024-04-01", s.Installments[1].DueDate)

	rec = api.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "saved", decodeBody[SessionDTO](t, rec).State)

	rec = api.do(t, http.MethodGet, "/api/contracts/c-1/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decodeBody[ScheduleDTO](t, rec)
	assert.Equal(t, "20.00", saved.Total)
	assert.Len(t, saved.Installments, 2)
	assert.True(t, saved.Totals.Balanced)
	assert.Equal(t, "2024-05-02T00:00:00Z", saved.SavedAt)
}

func TestSession_RejectedParamsKeepSchedule(t *testing.T) {
	api := setupTestHandler(t)
	api.seedBracketsAndContract(t, 45)
	s := api.openSession(t)

	rec := api.do(t, http.MethodPatch, "/api/sessions/"+s.ID+"/params",
		`{"start_date": "2024-03-01", "periodicity": "quarterly", "count": 4}`)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, body := range []string{`{"count": 61}`, `{"start_date": "2024-13-01"}`, `{"periodicity": "weekly"}`, `{"total": -5}`} {
		rec = api.do(t, http.MethodPatch, "/api/sessions/"+s.ID+"/params", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec = api.do(t, http.MethodGet, "/api/sessions/"+s.ID, nil)
	got := decodeBody[SessionDTO](t, rec)
	assert.Len(t, got.Installments, 4)
	assert.Equal(t, "quarterly", got.Params.Periodicity)
}

func TestSession_BracketSelection(t *testing.T) {
	api := setupTestHandler(t)
	api.seedBracketsAndContract(t, 45)
	s := api.openSession(t)
	api.do(t, http.MethodPatch, "/api/sessions/"+s.ID+"/params", `{"start_date": "2024-03-01", "count": 1}`)

	// GIVEN: Auto-selected bracket A
	// WHEN: Setting a usage count no bracket covers
	// THEN: 200 with a warning, selection and total unchanged
	rec := api.do(t, http.MethodPut, "/api/sessions/"+s.ID+"/units", UnitsRequest{Units: 5000})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[SessionDTO](t, rec)
	assert.NotEmpty(t, got.Warning)
	assert.Equal(t, "A", got.Bracket.Name)
	assert.Equal(t, "20.00", got.Params.Total)

	// Pinning B disables auto-select and regenerates with 30.00
	rec = api.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/bracket/pin", PinRequest{Bracket: "B"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decodeBody[SessionDTO](t, rec)
	assert.False(t, got.AutoBracket)
	assert.Equal(t, "30.00", got.Params.Total)
	assert.Equal(t, "30.00", got.Installments[0].Amount)

	rec = api.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/bracket/pin", PinRequest{Bracket: "Z"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Units inside B move nothing while pinned
	rec = api.do(t, http.MethodPut, "/api/sessions/"+s.ID+"/units", UnitsRequest{Units: 10})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "B", decodeBody[SessionDTO](t, rec).Bracket.Name)

	rec = api.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/bracket/auto", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeBody[SessionDTO](t, rec)
	assert.True(t, got.AutoBracket)
	assert.Equal(t, "A", got.Bracket.Name)
	assert.Equal(t, "20.00", got.Params.Total)
}

func TestSession_CustomEditing(t *testing.T) {
	// GIVEN: A session switched to custom with total 999.99
	// WHEN: Adding, removing and editing rows
	// THEN: Rows change as edited and an unbalanced list cannot be saved

	api := setupTestHandler(t)
	api.seedBracketsAndContract(t, 0)
	s := api.openSession(t)
	base := "/api/sessions/" + s.ID

	rec := api.do(t, http.MethodPatch, base+"/params", `{"total": "999.99", "periodicity": "custom"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s = decodeBody[SessionDTO](t, rec)
	assert.Equal(t, "editing", s.State)
	require.Len(t, s.Installments, 2)
	assert.Equal(t, "500.00", s.Installments[0].Amount)
	assert.Equal(t, "499.99", s.Installments[1].Amount)
	assert.Equal(t, "2024-05-02", s.Installments[0].DueDate)

	rec = api.do(t, http.MethodPost, base+"/rows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s = decodeBody[SessionDTO](t, rec)
	require.Len(t, s.Installments, 3)
	assert.Equal(t, "0.00", s.Installments[2].Percentage)

	rec = api.do(t, http.MethodDelete, base+"/rows/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[SessionDTO](t, rec).Installments, 2)

	rec = api.do(t, http.MethodPatch, base+"/rows/0", EditRequest{Field: "percentage", Value: "60"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s = decodeBody[SessionDTO](t, rec)
	assert.Equal(t, "599.99", s.Installments[0].Amount)
	assert.Equal(t, "110.00", s.Totals.Percentage)
	assert.False(t, s.Totals.Balanced)

	rec = api.do(t, http.MethodPost, base+"/save", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPatch, base+"/rows/1", EditRequest{Field: "percentage", Value: "40"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodPatch, base+"/rows/1", EditRequest{Field: "amount", Value: "400.00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[SessionDTO](t, rec).Totals.Balanced)

	rec = api.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// errors
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPatch, base+"/rows/9", EditRequest{Field: "amount", Value: "1"}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPatch, base+"/rows/x", EditRequest{Field: "amount", Value: "1"}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPatch, base+"/rows/0", EditRequest{Field: "colour", Value: "1"}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPatch, base+"/rows/0", EditRequest{Field: "percentage", Value: "101"}).Code)
}

func TestSession_StateErrors(t *testing.T) {
	api := setupTestHandler(t)
	api.seedBracketsAndContract(t, 0)
	s := api.openSession(t)
	base := "/api/sessions/" + s.ID

	// save from idle
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, base+"/save", nil).Code)

	// row operations outside custom mode
	api.do(t, http.MethodPatch, base+"/params", `{"total": 100, "start_date": "2024-01-01", "count": 2}`)
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, base+"/rows", nil).Code)

	// unknown session and contract
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/sessions/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{ContractID: "ghost"}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{}).Code)

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, base, nil).Code)
}

func TestSession_SaveAfterContractDeletedIsNotFound(t *testing.T) {
	api := setupTestHandler(t)
	api.seedBracketsAndContract(t, 0)
	s := api.openSession(t)
	base := "/api/sessions/" + s.ID

	api.do(t, http.MethodPatch, base+"/params", `{"total": 100, "start_date": "2024-01-01", "count": 2}`)
	require.NoError(t, api.handler.Store.DeleteContract(context.Background(), "c-1"))

	rec := api.do(t, http.MethodPost, base+"/save", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the session went back to previewing and can be retried
	rec = api.do(t, http.MethodGet, base, nil)
	assert.Equal(t, "previewing", decodeBody[SessionDTO](t, rec).State)
}

func TestHealthAndCORS(t *testing.T) {
	api := setupTestHandler(t)

	rec := api.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]any](t, rec)["status"])

	req := httptest.NewRequest(http.MethodOptions, "/api/brackets", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	out := httptest.NewRecorder()
	api.router.ServeHTTP(out, req)
	assert.Equal(t, "http://localhost:5173", out.Header().Get("Access-Control-Allow-Origin"))
}
