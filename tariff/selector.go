package tariff

import (
	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// SELECTOR - Auto-select vs. manually pinned bracket
// =============================================================================

// Selector holds the bracket chosen for one record being edited.
//
// In auto mode every SetUnits re-runs Match. A miss keeps the previous
// selection. Pin switches to manual mode; the pinned bracket survives
// unit changes until EnableAuto is called.
type Selector struct {
	auto     bool
	units    int
	catalog  Resolution
	selected *generic.BracketMatch
}

// NewSelector starts in auto mode over the given catalog.
func NewSelector(catalog Resolution) *Selector {
	return &Selector{auto: true, catalog: catalog}
}

func (s *Selector) Auto() bool { return s.auto }
func (s *Selector) Units() int { return s.units }
func (s *Selector) Year() int  { return s.catalog.Year }

// Catalog returns the bracket set the selector matches against.
func (s *Selector) Catalog() Resolution { return s.catalog }

// Current returns the selected match, if any.
func (s *Selector) Current() (generic.BracketMatch, bool) {
	if s.selected == nil {
		return generic.BracketMatch{}, false
	}
	return *s.selected, true
}

// SetUnits records a new usage count. In auto mode it re-matches and
// returns *generic.NoBracketMatchError on a miss, leaving the previous
// selection in place. In manual mode the pinned bracket is kept.
func (s *Selector) SetUnits(units int) (generic.BracketMatch, error) {
	s.units = units
	if !s.auto {
		if s.selected != nil {
			s.selected.Units = units
		}
		m, _ := s.Current()
		return m, nil
	}
	return s.rematch()
}

// SetCatalog swaps the bracket set, for instance when the anchor year changes.
func (s *Selector) SetCatalog(catalog Resolution) (generic.BracketMatch, error) {
	s.catalog = catalog
	if !s.auto {
		m, _ := s.Current()
		return m, nil
	}
	return s.rematch()
}

// Pin selects a bracket by ID or name and disables auto-select.
func (s *Selector) Pin(ref string) (generic.BracketMatch, error) {
	for _, b := range s.catalog.Brackets {
		if string(b.ID) == ref || b.Name == ref {
			s.auto = false
			s.selected = &generic.BracketMatch{Bracket: b, Units: s.units, Amount: AmountFor(b)}
			return *s.selected, nil
		}
	}
	return generic.BracketMatch{}, generic.ErrBracketNotFound
}

// EnableAuto re-enables auto-select and re-matches the current units.
func (s *Selector) EnableAuto() (generic.BracketMatch, error) {
	s.auto = true
	return s.rematch()
}

func (s *Selector) rematch() (generic.BracketMatch, error) {
	m, err := MatchAmount(s.units, s.catalog.Year, s.catalog.Brackets)
	if err != nil {
		prev, _ := s.Current()
		return prev, err
	}
	s.selected = &m
	return m, nil
}
