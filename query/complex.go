package query

import (
	"context"
	"strconv"
	"strings"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/luaengine"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

// ComplexStrategy implements spec §4.6's ComplexFilter algorithm: a
// server-side-script-shaped scan over the chosen sort sorted-set, chunked,
// with an in-process Lua predicate and, on script failure, a pure-Go
// fallback over the same chunk — never a different strategy.
type ComplexStrategy struct {
	Lua *luaengine.Engine
}

func (ComplexStrategy) Name() string { return "complex" }

func (c ComplexStrategy) Execute(ctx context.Context, req Request, store datastore.Store, oracles oracle.Oracles) (Result, error) {
	chunkSize := req.PageSize * 2
	if chunkSize < 1 {
		chunkSize = 2
	}
	sortIndex := sortIndexFor(req.SortBy)

	wantTotal := req.PageNumber * req.PageSize

	var matched int64
	var accepted []*propdoc.PropertyDocument

	var start int64
	for {
		stop := start + int64(chunkSize) - 1
		ids, err := store.ZRange(ctx, sortIndex, start, stop)
		if err != nil {
			return Result{}, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			fields, err := store.HGetAll(ctx, propdoc.PropertyKey(id))
			if err != nil || len(fields) == 0 {
				continue
			}
			doc, err := propdoc.FromFields(fields)
			if err != nil {
				continue
			}

			ok, err := c.accepts(ctx, doc, req, oracles)
			if err != nil || !ok {
				continue
			}

			if req.HasDateRange {
				available, err := c.hasAvailableUnit(ctx, store, doc.ID, req.CheckIn, req.CheckOut)
				if err != nil || !available {
					continue
				}
			}

			matched++
			if len(accepted) < wantTotal {
				accepted = append(accepted, doc)
			}
		}

		start += int64(chunkSize)
		if int64(len(ids)) < int64(chunkSize) {
			break // input exhausted
		}
		if len(accepted) >= wantTotal && wantTotal > 0 {
			break // page is full
		}
	}

	Sort(ctx, accepted, req.SortBy, req.PreferredCurrency, oracles.Currency, req.Latitude, req.Longitude)
	page, totalPages := Paginate(accepted, req.PageNumber, req.PageSize)
	if totalPages < 1 {
		totalPages = 1
	}
	return Result{Items: page, TotalCount: matched, PageNumber: req.PageNumber, PageSize: req.PageSize, TotalPages: totalPages}, nil
}

// accepts evaluates the scalar predicate for one candidate, preferring the
// Lua engine and falling back to the equivalent Go logic when the script
// is unavailable or errors.
func (c ComplexStrategy) accepts(ctx context.Context, doc *propdoc.PropertyDocument, req Request, oracles oracle.Oracles) (bool, error) {
	minPrice, maxPrice, hasPriceRange, ok := convertPriceBounds(ctx, req, doc.Currency, oracles.Currency)
	if req.HasPriceRange && !ok {
		return false, nil // missing exchange rate excludes this currency branch
	}

	if c.Lua != nil {
		params := luaengine.FilterParams{
			City:              req.City,
			TypeID:            req.PropertyType,
			TypeName:          req.PropertyType,
			MinPrice:          minPrice,
			MaxPrice:          maxPrice,
			HasPriceRange:     hasPriceRange,
			MinRating:         req.MinRating,
			RequiredAmenities: req.RequiredAmenityIDs,
			RequiredServices:  req.ServiceIDs,
			DynamicFields:     req.DynamicFieldFilters,
		}
		candidate := luaengine.CandidateDoc{
			City:             doc.City,
			PropertyTypeID:   doc.PropertyTypeID,
			PropertyTypeName: doc.PropertyTypeName,
			MinPrice:         doc.MinPrice.Float64(),
			AverageRating:    doc.AverageRating,
			AmenityIDs:       doc.AmenityIDs,
			ServiceIDs:       doc.ServiceIDs,
			DynamicFields:    doc.DynamicFields,
		}
		accepted, _, err := c.Lua.Accept(candidate, params)
		if err == nil {
			return accepted, nil
		}
		// fall through to the manual scan on script failure
	}

	return acceptsManual(doc, req, minPrice, maxPrice, hasPriceRange), nil
}

func convertPriceBounds(ctx context.Context, req Request, docCurrency string, currency oracle.CurrencyExchangeRepository) (min, max float64, hasRange, ok bool) {
	if !req.HasPriceRange {
		return 0, 0, false, true
	}
	if req.PreferredCurrency == "" || docCurrency == "" || req.PreferredCurrency == docCurrency {
		return req.MinPrice.Float64(), req.MaxPrice.Float64(), true, true
	}
	if currency == nil {
		return 0, 0, true, false
	}
	rate, found, err := currency.Rate(ctx, req.PreferredCurrency, docCurrency)
	if err != nil || !found {
		return 0, 0, true, false
	}
	return req.MinPrice.Float64() * rate, req.MaxPrice.Float64() * rate, true, true
}

func acceptsManual(doc *propdoc.PropertyDocument, req Request, minPrice, maxPrice float64, hasPriceRange bool) bool {
	if req.City != "" && doc.City != req.City {
		return false
	}
	if req.PropertyType != "" && doc.PropertyTypeID != req.PropertyType && doc.PropertyTypeName != req.PropertyType {
		return false
	}
	if hasPriceRange && (doc.MinPrice.Float64() < minPrice || doc.MinPrice.Float64() > maxPrice) {
		return false
	}
	if req.MinRating > 0 && doc.AverageRating < req.MinRating {
		return false
	}
	if !matchesDynamicFields(doc, req.DynamicFieldFilters) {
		return false
	}
	if !hasAllAmenities(doc, req.RequiredAmenityIDs) {
		return false
	}
	have := make(map[string]struct{}, len(doc.ServiceIDs))
	for _, s := range doc.ServiceIDs {
		have[s] = struct{}{}
	}
	for _, s := range req.ServiceIDs {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// hasAvailableUnit iterates propertyID's units looking for one with an
// interval [s,e] satisfying s <= checkIn && e >= checkOut.
func (ComplexStrategy) hasAvailableUnit(ctx context.Context, store datastore.Store, propertyID string, checkIn, checkOut propdoc.Ticks) (bool, error) {
	unitIDs, err := store.SMembers(ctx, propdoc.PropertyUnitsKey(propertyID))
	if err != nil {
		return false, err
	}
	for _, unitID := range unitIDs {
		ranges, err := store.ZRangeByScore(ctx, propdoc.AvailUnitKey(unitID), 0, float64(checkIn))
		if err != nil {
			continue
		}
		for _, member := range ranges {
			s, e, ok := parseRangeMember(member)
			if ok && s <= checkIn && e >= checkOut {
				return true, nil
			}
		}
	}
	return false, nil
}

func parseRangeMember(member string) (start, end propdoc.Ticks, ok bool) {
	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	s, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	e, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return propdoc.Ticks(s), propdoc.Ticks(e), true
}
