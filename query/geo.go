package query

import (
	"context"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

// geoResultCap is the hard cap on geo-radius candidates named in spec §4.6.
const geoResultCap = 100

// GeoStrategy implements spec §4.6's GeoSearch algorithm.
type GeoStrategy struct{}

func (GeoStrategy) Name() string { return "geo" }

func (GeoStrategy) Execute(ctx context.Context, req Request, store datastore.Store, oracles oracle.Oracles) (Result, error) {
	geoKey := propdoc.GeoAllKey
	if req.City != "" {
		geoKey = propdoc.GeoCityKey(req.City)
	}

	hits, err := store.GeoRadius(ctx, geoKey, req.Longitude, req.Latitude, req.RadiusKM, geoResultCap)
	if err != nil {
		return Result{}, err
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Member
	}

	docs, err := fetchDocuments(ctx, store, ids)
	if err != nil {
		return Result{}, err
	}

	docs = filterInMemory(docs, req)

	Sort(ctx, docs, req.SortBy, req.PreferredCurrency, oracles.Currency, req.Latitude, req.Longitude)
	page, totalPages := Paginate(docs, req.PageNumber, req.PageSize)
	return Result{Items: page, TotalCount: int64(len(docs)), PageNumber: req.PageNumber, PageSize: req.PageSize, TotalPages: totalPages}, nil
}

// filterInMemory applies the property-type, price, rating, min-adults,
// guests, amenity and dynamic-field filters to the candidate documents
// directly. MinChildren and ServiceIDs are not applied.
func filterInMemory(docs []*propdoc.PropertyDocument, req Request) []*propdoc.PropertyDocument {
	out := docs[:0]
	for _, d := range docs {
		if req.PropertyType != "" && d.PropertyTypeID != req.PropertyType && d.PropertyTypeName != req.PropertyType {
			continue
		}
		if req.HasPriceRange && (d.MinPrice < req.MinPrice || d.MinPrice > req.MaxPrice) {
			continue
		}
		if req.MinRating > 0 && d.AverageRating < req.MinRating {
			continue
		}
		if req.MinAdults > 0 && d.MaxCapacity < req.MinAdults {
			continue
		}
		if req.GuestsCount > 0 && d.MaxCapacity < req.GuestsCount {
			continue
		}
		if !hasAllAmenities(d, req.RequiredAmenityIDs) {
			continue
		}
		if !matchesDynamicFields(d, req.DynamicFieldFilters) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func hasAllAmenities(d *propdoc.PropertyDocument, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(d.AmenityIDs))
	for _, a := range d.AmenityIDs {
		have[a] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

func matchesDynamicFields(d *propdoc.PropertyDocument, filters map[string]string) bool {
	for field, value := range filters {
		if d.DynamicFields[field] != value {
			return false
		}
	}
	return true
}
