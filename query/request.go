// Package query implements the search planner and executor: request
// normalization, strategy selection, the four search algorithms, sorting,
// and pagination.
package query

import "github.com/bookn/propertysearch/propdoc"

// SortBy enumerates the search result orderings named in spec §4.6.
type SortBy string

const (
	SortPriceAsc  SortBy = "price_asc"
	SortPriceDesc SortBy = "price_desc"
	SortRating    SortBy = "rating"
	SortNewest    SortBy = "newest"
	SortPopularity SortBy = "popularity"
	SortDistance  SortBy = "distance"
)

// DefaultSortBy is applied when a request specifies no ordering.
const DefaultSortBy = SortRating

// Request is the full search request surface of spec §4.6.
type Request struct {
	SearchText          string
	City                string
	PropertyType        string // id or name
	UnitTypeID          string
	MinPrice            propdoc.Money
	MaxPrice            propdoc.Money
	HasPriceRange       bool
	PreferredCurrency   string
	MinRating           float64
	MinAdults           int64
	MinChildren         int64
	GuestsCount         int64
	CheckIn             propdoc.Ticks
	CheckOut            propdoc.Ticks
	HasDateRange        bool
	Latitude            float64
	Longitude           float64
	RadiusKM            float64
	HasCoordinates      bool
	RequiredAmenityIDs  []string
	ServiceIDs          []string
	DynamicFieldFilters map[string]string
	SortBy              SortBy
	PageNumber          int
	PageSize            int
}

// Normalize fills in defaults (sort_by, pagination bounds) the way the
// planner expects them.
func (r Request) Normalize() Request {
	if r.SortBy == "" {
		r.SortBy = DefaultSortBy
	}
	if r.PageNumber < 1 {
		r.PageNumber = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 1
	}
	if r.PageSize > 200 {
		r.PageSize = 200
	}
	return r
}

// ActiveFilterCount counts how many of {city, type, price-range,
// amenities, dates, dynamic fields} the request actually sets, per the
// strategy-selection rule of spec §4.6 step 4.
func (r Request) ActiveFilterCount() int {
	n := 0
	if r.City != "" {
		n++
	}
	if r.PropertyType != "" {
		n++
	}
	if r.HasPriceRange {
		n++
	}
	if len(r.RequiredAmenityIDs) > 0 {
		n++
	}
	if r.HasDateRange {
		n++
	}
	if len(r.DynamicFieldFilters) > 0 {
		n++
	}
	return n
}

// Document is the shape results are materialized into.
type Document = propdoc.PropertyDocument

// Result is the paginated search outcome.
type Result struct {
	Items       []*Document
	TotalCount  int64
	PageNumber  int
	PageSize    int
	TotalPages  int64
}
