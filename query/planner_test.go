package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/oracle"
)

type dummyStrategy struct{ name string }

func (s dummyStrategy) Name() string { return s.name }
func (s dummyStrategy) Execute(ctx context.Context, req Request, store datastore.Store, oracles oracle.Oracles) (Result, error) {
	return Result{}, nil
}

func TestPlannerSelectPrecedence(t *testing.T) {
	text := dummyStrategy{"text"}
	complex := dummyStrategy{"complex"}
	geo := dummyStrategy{"geo"}
	simple := dummyStrategy{"simple"}
	p := NewPlanner(text, complex, geo, simple)

	assert.Equal(t, "text", p.Select(Request{SearchText: "villa"}).Name())
	assert.Equal(t, "complex", p.Select(Request{HasDateRange: true}).Name())
	assert.Equal(t, "geo", p.Select(Request{HasCoordinates: true}).Name())
	assert.Equal(t, "complex", p.Select(Request{City: "Sanaa", PropertyType: "hotel", HasPriceRange: true}).Name())
	assert.Equal(t, "complex", p.Select(Request{HasPriceRange: true, HasDateRange: true}).Name())
	assert.Equal(t, "simple", p.Select(Request{City: "Sanaa"}).Name())
}

func TestRequestNormalizeDefaults(t *testing.T) {
	r := Request{}.Normalize()
	assert.Equal(t, DefaultSortBy, r.SortBy)
	assert.Equal(t, 1, r.PageNumber)
	assert.Equal(t, 1, r.PageSize)

	big := Request{PageSize: 9999, PageNumber: -3}.Normalize()
	assert.Equal(t, 200, big.PageSize)
	assert.Equal(t, 1, big.PageNumber)
}
