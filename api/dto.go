/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (generic.Installment, schedule.Params, ...) from the
  external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Percentages and amounts leave the API as strings with exactly two
  decimals ("8.33"). Requests accept either JSON numbers or strings.
  Dates are YYYY-MM-DD.

TYPES:
  Brackets:   factory.BracketJSON (shared with catalog documents), BracketMatchDTO
  Contracts:  ContractDTO, CreateContractRequest
  Schedules:  InstallmentDTO, ScheduleDTO, TotalsDTO, PreviewRequest
  Sessions:   SessionDTO, CreateSessionRequest, ParamsRequest, UnitsRequest,
              PinRequest, EditRequest
  Scenarios:  ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers and the domain packages, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: BracketJSON
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/schedule"
)

// =============================================================================
// CONTRACTS
// =============================================================================

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	ID             string `json:"id"`
	ClientName     string `json:"client_name"`
	ActivationDate string `json:"activation_date"`
	Units          int    `json:"units"`
	Total          string `json:"total"`
}

// CreateContractRequest is the body for creating or replacing a contract.
type CreateContractRequest struct {
	ID             string          `json:"id"`
	ClientName     string          `json:"client_name"`
	ActivationDate string          `json:"activation_date"`
	Units          int             `json:"units"`
	Total          decimal.Decimal `json:"total"`
}

func toContractDTO(c generic.Contract) ContractDTO {
	return ContractDTO{
		ID:             string(c.ID),
		ClientName:     c.ClientName,
		ActivationDate: c.ActivationDate.String(),
		Units:          c.Units,
		Total:          money(c.Total),
	}
}

// =============================================================================
// BRACKET MATCH
// =============================================================================

// BracketMatchDTO is a matched bracket and the amount it prices.
type BracketMatchDTO struct {
	BracketID string `json:"bracket_id"`
	Name      string `json:"name"`
	Year      int    `json:"year"`
	Units     int    `json:"units"`
	Amount    string `json:"amount"`
}

// MatchRequest asks which bracket prices units in year.
type MatchRequest struct {
	Units int `json:"units"`
	Year  int `json:"year"`
}

// MatchResponse is the result of a stateless bracket lookup.
type MatchResponse struct {
	Match         *BracketMatchDTO `json:"match"`
	CatalogYear   int              `json:"catalog_year"`
	RequestedYear int              `json:"requested_year"`
	Fallback      bool             `json:"fallback"`
	Warning       string           `json:"warning,omitempty"`
}

func toMatchDTO(m generic.BracketMatch) *BracketMatchDTO {
	return &BracketMatchDTO{
		BracketID: string(m.Bracket.ID),
		Name:      m.Bracket.Name,
		Year:      m.Bracket.Year,
		Units:     m.Units,
		Amount:    money(m.Amount),
	}
}

// ImportResponse reports a catalog import.
type ImportResponse struct {
	Imported int      `json:"imported"`
	Issues   []string `json:"issues"`
}

// =============================================================================
// SCHEDULES
// =============================================================================

// InstallmentDTO is one schedule row.
type InstallmentDTO struct {
	DueDate    string `json:"due_date"`
	Percentage string `json:"percentage"`
	Amount     string `json:"amount"`
}

// TotalsDTO are the running sums of a schedule.
type TotalsDTO struct {
	Percentage string `json:"percentage"`
	Amount     string `json:"amount"`
	Balanced   bool   `json:"balanced"`
}

// ScheduleDTO is a schedule with its total and sums.
type ScheduleDTO struct {
	ID           string           `json:"id,omitempty"`
	ContractID   string           `json:"contract_id,omitempty"`
	Total        string           `json:"total"`
	Installments []InstallmentDTO `json:"installments"`
	Totals       TotalsDTO        `json:"totals"`
	SavedAt      string           `json:"saved_at,omitempty"`
}

// PreviewRequest generates a schedule without a session.
type PreviewRequest struct {
	Total       decimal.Decimal `json:"total"`
	StartDate   string          `json:"start_date"`
	Periodicity string          `json:"periodicity"`
	Count       int             `json:"count"`
	EqualSplit  *bool           `json:"equal_split,omitempty"`
}

func toInstallmentDTOs(rows []generic.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(rows))
	for i, r := range rows {
		dtos[i] = InstallmentDTO{
			DueDate:    r.DueDate.String(),
			Percentage: money(r.Percentage),
			Amount:     money(r.Amount),
		}
	}
	return dtos
}

func toScheduleDTO(rows []generic.Installment, total decimal.Decimal) ScheduleDTO {
	return ScheduleDTO{
		Total:        money(total),
		Installments: toInstallmentDTOs(rows),
		Totals: TotalsDTO{
			Percentage: money(generic.PercentageSum(rows)),
			Amount:     money(generic.AmountSum(rows)),
			Balanced:   schedule.Balanced(rows, total),
		},
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSessionRequest opens a schedule session for a contract.
type CreateSessionRequest struct {
	ContractID string `json:"contract_id"`
}

// ParamsDTO are the generation parameters of a session.
type ParamsDTO struct {
	Total       string `json:"total"`
	StartDate   string `json:"start_date,omitempty"`
	Periodicity string `json:"periodicity"`
	Count       int    `json:"count"`
	EqualSplit  bool   `json:"equal_split"`
}

// ParamsRequest changes some or all generation parameters. Omitted fields
// keep their current value.
type ParamsRequest struct {
	Total       *decimal.Decimal `json:"total,omitempty"`
	StartDate   *string          `json:"start_date,omitempty"`
	Periodicity *string          `json:"periodicity,omitempty"`
	Count       *int             `json:"count,omitempty"`
	EqualSplit  *bool            `json:"equal_split,omitempty"`
}

// UnitsRequest sets the usage count of a session.
type UnitsRequest struct {
	Units int `json:"units"`
}

// PinRequest selects a bracket by ID or name.
type PinRequest struct {
	Bracket string `json:"bracket"`
}

// EditRequest changes one field of a custom row.
type EditRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// SessionDTO is the full view of a schedule session.
type SessionDTO struct {
	ID           string           `json:"id"`
	ContractID   string           `json:"contract_id"`
	State        string           `json:"state"`
	Params       ParamsDTO        `json:"params"`
	Installments []InstallmentDTO `json:"installments"`
	Totals       TotalsDTO        `json:"totals"`
	Bracket      *BracketMatchDTO `json:"bracket"`
	AutoBracket  bool             `json:"auto_bracket"`
	Warning      string           `json:"warning,omitempty"`
}

func toSessionDTO(s *schedule.Session) SessionDTO {
	p := s.Params()
	totals := s.Totals()
	dto := SessionDTO{
		ID:         s.ID(),
		ContractID: string(s.ContractID()),
		State:      s.State(),
		Params: ParamsDTO{
			Total:       money(p.Total),
			Periodicity: string(p.Periodicity),
			Count:       p.Count,
			EqualSplit:  p.EqualSplit,
		},
		Installments: toInstallmentDTOs(s.Installments()),
		Totals: TotalsDTO{
			Percentage: money(totals.Percentage),
			Amount:     money(totals.Amount),
			Balanced:   totals.Balanced,
		},
	}
	if !p.Start.IsZero() {
		dto.Params.StartDate = p.Start.String()
	}
	m, ok, auto := s.Bracket()
	if ok {
		dto.Bracket = toMatchDTO(m)
	}
	dto.AutoBracket = auto
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body for loading a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse reports the loaded scenario and its prepared session.
type LoadScenarioResponse struct {
	Status    string     `json:"status"`
	Scenario  string     `json:"scenario"`
	SessionID string     `json:"session_id"`
	Session   SessionDTO `json:"session"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(generic.MinorUnits)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
