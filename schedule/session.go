package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/tariff"
)

// =============================================================================
// SESSION - Orchestrates one record's schedule
// =============================================================================
//
//   Idle ──generate──► Generating ──generated──► Previewing ──save──► Saving ──saved──► Saved
//     │                                          ▲    │                  │
//     └────customize─────────────────────────────┘    └◄──save_failed────┘
//
// While the periodicity is generated (monthly .. annual) every parameter
// change re-runs Generate and replaces the whole list. Switching to custom
// seeds two 50% rows and the list is then only changed by AddRow,
// RemoveRow and EditField. A failed operation leaves rows, params and
// state exactly as they were.

const DefaultSaveTimeout = 10 * time.Second

// Options configure a new Session.
type Options struct {
	ID          string
	ContractID  generic.ContractID
	Writer      generic.ScheduleWriter
	Clock       generic.Clock
	Logger      logrus.FieldLogger
	Catalog     tariff.Resolution
	SaveTimeout time.Duration
}

// Session holds the schedule being prepared for one contract.
type Session struct {
	mu sync.Mutex

	id          string
	contractID  generic.ContractID
	writer      generic.ScheduleWriter
	clock       generic.Clock
	log         logrus.FieldLogger
	saveTimeout time.Duration

	machine  *machine
	selector *tariff.Selector
	params   Params
	rows     []generic.Installment
}

func NewSession(opts Options) (*Session, error) {
	if opts.Writer == nil {
		return nil, errors.New("schedule session requires a writer")
	}
	if opts.Clock == nil {
		opts.Clock = generic.SystemClock{}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		opts.Logger = l
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}

	m, err := newMachine(opts.ID)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:          opts.ID,
		contractID:  opts.ContractID,
		writer:      opts.Writer,
		clock:       opts.Clock,
		saveTimeout: opts.SaveTimeout,
		log: opts.Logger.WithFields(logrus.Fields{
			"session_id":  opts.ID,
			"contract_id": opts.ContractID,
		}),
		machine:  m,
		selector: tariff.NewSelector(opts.Catalog),
		params:   Params{Periodicity: generic.PeriodMonthly, Count: 1, EqualSplit: true},
	}, nil
}

func (s *Session) ID() string                     { return s.id }
func (s *Session) ContractID() generic.ContractID { return s.contractID }

// State returns the current state, reporting Editing for a custom preview.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() string {
	st := s.machine.current()
	if st == StatePreviewing && s.params.Periodicity == generic.PeriodCustom {
		return StateEditing
	}
	return st
}

// Params returns the current generation parameters.
func (s *Session) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Installments returns a copy of the current list.
func (s *Session) Installments() []generic.Installment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return generic.CloneInstallments(s.rows)
}

// Totals are the running sums shown next to a custom schedule.
type Totals struct {
	Percentage decimal.Decimal
	Amount     decimal.Decimal
	Balanced   bool
}

func (s *Session) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Totals{
		Percentage: generic.PercentageSum(s.rows),
		Amount:     generic.AmountSum(s.rows),
		Balanced:   Balanced(s.rows, s.params.Total),
	}
}

// Bracket returns the selected bracket match and whether auto-select is on.
func (s *Session) Bracket() (generic.BracketMatch, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.selector.Current()
	return m, ok, s.selector.Auto()
}

// =============================================================================
// PARAMETER CHANGES
// =============================================================================

// SetParams replaces every generation parameter at once.
func (s *Session) SetParams(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(p)
}

// Update applies fn to a copy of the parameters and re-runs generation.
func (s *Session) Update(fn func(*Params)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.params
	fn(&p)
	return s.applyLocked(p)
}

func (s *Session) SetPeriodicity(periodicity generic.Periodicity) error {
	return s.Update(func(p *Params) { p.Periodicity = periodicity })
}

func (s *Session) SetStartDate(start generic.TimePoint) error {
	return s.Update(func(p *Params) { p.Start = start })
}

func (s *Session) SetCount(count int) error {
	return s.Update(func(p *Params) { p.Count = count })
}

func (s *Session) SetEqualSplit(equal bool) error {
	return s.Update(func(p *Params) { p.EqualSplit = equal })
}

func (s *Session) SetTotal(total decimal.Decimal) error {
	return s.Update(func(p *Params) { p.Total = total })
}

func (s *Session) applyLocked(p Params) error {
	if !p.Periodicity.IsValid() {
		return &generic.InvalidPeriodicityError{Input: string(p.Periodicity)}
	}

	if p.Periodicity == generic.PeriodCustom {
		if s.params.Periodicity == generic.PeriodCustom {
			// Already editing: record the new values, rows stay as edited.
			s.params = p
			return s.touchForEditLocked()
		}
		return s.customizeLocked(p)
	}

	rows, err := Generate(p)
	if err != nil {
		s.log.WithError(err).Debug("schedule generation rejected, keeping previous schedule")
		return err
	}
	if err := s.machine.fire(EventGenerate); err != nil {
		return err
	}
	if err := s.machine.fire(EventGenerated); err != nil {
		return err
	}
	s.params = p
	s.rows = rows
	s.log.WithFields(logrus.Fields{
		"periodicity": p.Periodicity,
		"count":       p.Count,
		"total":       p.Total.StringFixed(generic.MinorUnits),
	}).Debug("schedule generated")
	return nil
}

// customizeLocked seeds two 50% rows, start date and one month later.
func (s *Session) customizeLocked(p Params) error {
	if !p.Total.IsPositive() {
		return &generic.ZeroOrNegativeTotalError{Total: p.Total}
	}
	if s.machine.current() != StatePreviewing {
		if err := s.machine.fire(EventCustomize); err != nil {
			return err
		}
	}
	start := p.Start
	if start.IsZero() {
		start = s.clock.Today()
		p.Start = start
	}
	half := generic.Round2(p.Total.Div(decimal.NewFromInt(2)))
	fifty := decimal.NewFromInt(50)
	s.params = p
	s.rows = []generic.Installment{
		{DueDate: start, Percentage: fifty, Amount: half},
		{DueDate: start.AddMonths(1), Percentage: fifty, Amount: p.Total.Sub(half)},
	}
	return nil
}

// =============================================================================
// BRACKET SELECTION
// =============================================================================

// SetUnits records the usage count. With auto-select on, the matched
// bracket's amount becomes the session total. A miss is logged as a
// warning and returned as *generic.NoBracketMatchError; the previous
// selection and total stay in place.
func (s *Session) SetUnits(units int) (generic.BracketMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.selector.SetUnits(units)
	return s.selectLocked(m, err)
}

// PinBracket selects a bracket by ID or name and disables auto-select.
func (s *Session) PinBracket(ref string) (generic.BracketMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.selector.Pin(ref)
	if err != nil {
		return m, err
	}
	return m, s.applyMatchLocked(m)
}

// EnableAutoBracket turns auto-select back on and re-matches.
func (s *Session) EnableAutoBracket() (generic.BracketMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.selector.EnableAuto()
	return s.selectLocked(m, err)
}

// SetCatalog swaps the bracket set used for matching. A miss in the new
// set is handled like SetUnits.
func (s *Session) SetCatalog(catalog tariff.Resolution) (generic.BracketMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.selector.SetCatalog(catalog)
	return s.selectLocked(m, err)
}

// selectLocked applies a selector result. A miss is logged as a warning
// and leaves params untouched.
func (s *Session) selectLocked(m generic.BracketMatch, err error) (generic.BracketMatch, error) {
	if err != nil {
		var miss *generic.NoBracketMatchError
		if errors.As(err, &miss) {
			s.log.WithFields(logrus.Fields{"units": miss.Units, "year": miss.Year}).
				Warn("no bracket matches usage count, keeping previous selection")
		}
		return m, err
	}
	return m, s.applyMatchLocked(m)
}

func (s *Session) applyMatchLocked(m generic.BracketMatch) error {
	if m.Amount.Equal(s.params.Total) {
		return nil
	}
	p := s.params
	p.Total = m.Amount
	if p.Periodicity == generic.PeriodCustom || s.machine.current() == StateIdle {
		s.params = p
		return nil
	}
	return s.applyLocked(p)
}

// =============================================================================
// CUSTOM EDITING
// =============================================================================

func (s *Session) AddRow() ([]generic.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditingLocked(); err != nil {
		return nil, err
	}
	rows := AddRow(s.rows, s.params.Total, s.clock)
	if err := s.touchForEditLocked(); err != nil {
		return nil, err
	}
	s.rows = rows
	return generic.CloneInstallments(rows), nil
}

func (s *Session) RemoveRow(index int) ([]generic.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditingLocked(); err != nil {
		return nil, err
	}
	rows, err := RemoveRow(s.rows, index, s.params.Total)
	if err != nil {
		return nil, err
	}
	if err := s.touchForEditLocked(); err != nil {
		return nil, err
	}
	s.rows = rows
	return generic.CloneInstallments(rows), nil
}

func (s *Session) EditField(index int, edit Edit) ([]generic.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditingLocked(); err != nil {
		return nil, err
	}
	rows, err := EditField(s.rows, index, edit, s.params.Total)
	if err != nil {
		return nil, err
	}
	if err := s.touchForEditLocked(); err != nil {
		return nil, err
	}
	s.rows = rows
	return generic.CloneInstallments(rows), nil
}

func (s *Session) requireEditingLocked() error {
	if s.params.Periodicity != generic.PeriodCustom {
		return generic.ErrNotEditing
	}
	switch s.machine.current() {
	case StatePreviewing, StateSaved:
		return nil
	default:
		return fmt.Errorf("%w: %s", generic.ErrSessionState, s.stateLocked())
	}
}

// touchForEditLocked moves a saved session back to previewing.
func (s *Session) touchForEditLocked() error {
	if s.machine.current() == StateSaved {
		return s.machine.fire(EventEdit)
	}
	return nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save validates the schedule and hands it to the Ledger. Ledger errors
// are returned unmodified and the session goes back to previewing, so
// the caller may retry.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.machine.current(); st != StatePreviewing {
		return fmt.Errorf("%w: cannot save while %s", generic.ErrSessionState, s.stateLocked())
	}
	if err := Validate(s.rows, s.params.Total); err != nil {
		return err
	}
	if err := s.machine.fire(EventSave); err != nil {
		return err
	}

	rows := Normalize(s.rows)
	saveCtx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()

	if err := s.writer.SaveSchedule(saveCtx, s.contractID, rows); err != nil {
		s.log.WithError(err).Error("ledger rejected schedule")
		if ferr := s.machine.fire(EventSaveFailed); ferr != nil {
			s.log.WithError(ferr).Error("session machine did not leave saving state")
		}
		return err
	}

	s.rows = rows
	if err := s.machine.fire(EventSaved); err != nil {
		return err
	}
	s.log.WithField("installments", len(rows)).Info("schedule saved")
	return nil
}
