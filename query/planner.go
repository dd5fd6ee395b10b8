package query

import (
	"context"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/oracle"
)

// Strategy is the tagged-variant interface the planner selects between:
// each concrete strategy knows how to execute one of Text/Geo/Complex/
// Simple against the datastore and oracles, and never falls back to a
// different strategy on failure (spec §4.6, "Failure semantics").
type Strategy interface {
	Name() string
	Execute(ctx context.Context, req Request, store datastore.Store, oracles oracle.Oracles) (Result, error)
}

// Planner selects which Strategy answers a given request, following the
// exact precedence order of spec §4.6.
type Planner struct {
	text    Strategy
	complex Strategy
	geo     Strategy
	simple  Strategy
}

// NewPlanner wires the four strategy implementations together.
func NewPlanner(text, complex, geo, simple Strategy) *Planner {
	return &Planner{text: text, complex: complex, geo: geo, simple: simple}
}

// Select implements spec §4.6's "Strategy selection":
//  1. Any search_text -> Text.
//  2. Both check_in and check_out present -> ComplexFilter.
//  3. Coordinates and radius present -> GeoSearch.
//  4. Three or more active filters, or (price-range AND dates) -> ComplexFilter.
//  5. Otherwise -> SimpleSearch.
func (p *Planner) Select(req Request) Strategy {
	if req.SearchText != "" {
		return p.text
	}
	if req.HasDateRange {
		return p.complex
	}
	if req.HasCoordinates {
		return p.geo
	}
	if req.ActiveFilterCount() >= 3 || (req.HasPriceRange && req.HasDateRange) {
		return p.complex
	}
	return p.simple
}
