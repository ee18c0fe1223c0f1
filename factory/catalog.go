/*
Package factory provides JSON/YAML to Go bracket conversion.

PURPOSE:
  Converts bracket catalog documents into validated generic.Bracket
  values. The bracket administration imports whole tariff years this
  way, and the demo scenarios seed their catalog from the same format.

DOCUMENT SCHEMA (JSON):
  {
    "brackets": [
      {"name": "A", "year": 2024, "min_units": 1, "max_units": 50, "rate": "10.00", "hours": 2},
      {"name": "B", "year": 2024, "min_units": 51, "rate": 15, "hours": 2}
    ]
  }

  The same document as YAML:
    brackets:
      - name: A
        year: 2024
        min_units: 1
        max_units: 50
        rate: 10.00
        hours: 2

DEFAULTS:
  - min_units omitted -> 1
  - max_units omitted -> unbounded
  - hours omitted     -> 1
  - id omitted        -> new UUID

KEY FEATURES:
  - Rejects malformed brackets with generic.ErrInvalidBracket
  - Accepts a bare array as well as the {"brackets": [...]} envelope
  - Reports overlaps and gaps per year without rejecting them

USAGE:
  f := factory.NewBracketFactory()
  brackets, err := f.ParseCatalog(data, factory.FormatYAML)

SEE ALSO:
  - generic/types.go: Bracket definition
  - tariff/matcher.go: consumes the parsed brackets
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// Number is a decimal that decodes from JSON and YAML numbers or strings.
type Number struct {
	decimal.Decimal
}

func NewNumber(d decimal.Decimal) Number { return Number{Decimal: d} }

// UnmarshalYAML reads the scalar text so 10.00 never passes through float64.
func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}
	n.Decimal = d
	return nil
}

func (n Number) MarshalYAML() (any, error) {
	return n.Decimal.String(), nil
}

// BracketJSON is the document representation of a bracket.
type BracketJSON struct {
	ID       string  `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string  `json:"name" yaml:"name"`
	Year     int     `json:"year" yaml:"year"`
	MinUnits *int    `json:"min_units,omitempty" yaml:"min_units,omitempty"`
	MaxUnits *int    `json:"max_units,omitempty" yaml:"max_units,omitempty"`
	Rate     Number  `json:"rate" yaml:"rate"`
	Hours    *Number `json:"hours,omitempty" yaml:"hours,omitempty"`
}

// CatalogJSON is the envelope of a catalog document.
type CatalogJSON struct {
	Brackets []BracketJSON `json:"brackets" yaml:"brackets"`
}

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Anything that is
// not .yaml/.yml is read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// =============================================================================
// BRACKET FACTORY
// =============================================================================

// BracketFactory converts catalog documents to brackets.
type BracketFactory struct {
	// NewID assigns IDs to brackets that have none.
	NewID func() string
}

func NewBracketFactory() *BracketFactory {
	return &BracketFactory{NewID: uuid.NewString}
}

// ParseCatalog decodes a whole catalog document.
func (f *BracketFactory) ParseCatalog(data []byte, format Format) ([]generic.Bracket, error) {
	docs, err := decodeCatalog(data, format)
	if err != nil {
		return nil, err
	}

	brackets := make([]generic.Bracket, 0, len(docs))
	for i, bj := range docs {
		b, err := f.FromJSON(bj)
		if err != nil {
			return nil, fmt.Errorf("bracket %d: %w", i, err)
		}
		brackets = append(brackets, b)
	}
	return brackets, nil
}

// LoadCatalogFile reads and parses a catalog file.
func (f *BracketFactory) LoadCatalogFile(path string) ([]generic.Bracket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return f.ParseCatalog(data, FormatFromPath(path))
}

// ParseBracket decodes a single JSON bracket.
func (f *BracketFactory) ParseBracket(jsonStr string) (generic.Bracket, error) {
	var bj BracketJSON
	if err := json.Unmarshal([]byte(jsonStr), &bj); err != nil {
		return generic.Bracket{}, fmt.Errorf("failed to parse bracket JSON: %w", err)
	}
	return f.FromJSON(bj)
}

// FromJSON applies defaults and validates.
func (f *BracketFactory) FromJSON(bj BracketJSON) (generic.Bracket, error) {
	b := generic.Bracket{
		ID:       generic.BracketID(strings.TrimSpace(bj.ID)),
		Name:     strings.TrimSpace(bj.Name),
		Year:     bj.Year,
		MinUnits: 1,
		MaxUnits: bj.MaxUnits,
		Rate:     bj.Rate.Decimal,
		Hours:    decimal.NewFromInt(1),
	}
	if bj.MinUnits != nil {
		b.MinUnits = *bj.MinUnits
	}
	if bj.Hours != nil {
		b.Hours = bj.Hours.Decimal
	}
	if b.ID == "" && f.NewID != nil {
		b.ID = generic.BracketID(f.NewID())
	}

	if err := Validate(b); err != nil {
		return generic.Bracket{}, err
	}
	return b, nil
}

// ToJSON converts a bracket back to its document form.
func (f *BracketFactory) ToJSON(b generic.Bracket) BracketJSON {
	minUnits := b.MinUnits
	hours := NewNumber(b.Hours)
	return BracketJSON{
		ID:       string(b.ID),
		Name:     b.Name,
		Year:     b.Year,
		MinUnits: &minUnits,
		MaxUnits: b.MaxUnits,
		Rate:     NewNumber(b.Rate),
		Hours:    &hours,
	}
}

// MarshalCatalog encodes brackets as a catalog document.
func (f *BracketFactory) MarshalCatalog(brackets []generic.Bracket, format Format) ([]byte, error) {
	doc := CatalogJSON{Brackets: make([]BracketJSON, 0, len(brackets))}
	for _, b := range brackets {
		doc.Brackets = append(doc.Brackets, f.ToJSON(b))
	}
	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks a single bracket at the boundary.
func Validate(b generic.Bracket) error {
	switch {
	case b.Name == "":
		return fmt.Errorf("%w: name is required", generic.ErrInvalidBracket)
	case b.Year < 1900 || b.Year > 9999:
		return fmt.Errorf("%w: %s: year %d out of range", generic.ErrInvalidBracket, b.Name, b.Year)
	case b.MinUnits < 0:
		return fmt.Errorf("%w: %s: min_units %d is negative", generic.ErrInvalidBracket, b.Name, b.MinUnits)
	case b.MaxUnits != nil && *b.MaxUnits < b.MinUnits:
		return fmt.Errorf("%w: %s: max_units %d below min_units %d", generic.ErrInvalidBracket, b.Name, *b.MaxUnits, b.MinUnits)
	case b.Rate.IsNegative():
		return fmt.Errorf("%w: %s: rate %s is negative", generic.ErrInvalidBracket, b.Name, b.Rate)
	case !b.Hours.IsPositive():
		return fmt.Errorf("%w: %s: hours %s must be positive", generic.ErrInvalidBracket, b.Name, b.Hours)
	}
	return nil
}

// CoverageIssues lists overlaps and gaps between the brackets of each
// year. Matching tolerates both (first match wins, a gap is a miss), so
// these are reported for the administrator rather than rejected.
func CoverageIssues(brackets []generic.Bracket) []string {
	byYear := make(map[int][]generic.Bracket)
	var years []int
	for _, b := range brackets {
		if _, ok := byYear[b.Year]; !ok {
			years = append(years, b.Year)
		}
		byYear[b.Year] = append(byYear[b.Year], b)
	}
	sort.Ints(years)

	var issues []string
	for _, year := range years {
		set := byYear[year]
		sort.SliceStable(set, func(i, j int) bool { return set[i].MinUnits < set[j].MinUnits })
		for i := 1; i < len(set); i++ {
			prev, cur := set[i-1], set[i]
			if prev.MaxUnits == nil {
				issues = append(issues, fmt.Sprintf("%d: %s is unbounded and overlaps %s", year, prev.Name, cur.Name))
				continue
			}
			switch {
			case cur.MinUnits <= *prev.MaxUnits:
				issues = append(issues, fmt.Sprintf("%d: %s overlaps %s at %d", year, prev.Name, cur.Name, cur.MinUnits))
			case cur.MinUnits > *prev.MaxUnits+1:
				issues = append(issues, fmt.Sprintf("%d: gap %d-%d between %s and %s",
					year, *prev.MaxUnits+1, cur.MinUnits-1, prev.Name, cur.Name))
			}
		}
	}
	return issues
}

// =============================================================================
// DECODING HELPERS
// =============================================================================

func decodeCatalog(data []byte, format Format) ([]BracketJSON, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch format {
	case FormatYAML:
		var root yaml.Node
		if err := yaml.Unmarshal(trimmed, &root); err != nil {
			return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
		}
		if len(root.Content) == 0 {
			return nil, nil
		}
		top := root.Content[0]
		if top.Kind == yaml.SequenceNode {
			var list []BracketJSON
			if err := top.Decode(&list); err != nil {
				return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
			}
			return list, nil
		}
		var doc CatalogJSON
		if err := top.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
		}
		return doc.Brackets, nil

	case FormatJSON:
		if trimmed[0] == '[' {
			var list []BracketJSON
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
			}
			return list, nil
		}
		var doc CatalogJSON
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
		}
		return doc.Brackets, nil
	}
	return nil, fmt.Errorf("unknown catalog format %q", format)
}
