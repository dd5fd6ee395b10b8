// Package docbuilder assembles a propdoc.PropertyDocument by reading a
// property, its units, and unit pricing from the external oracles.
package docbuilder

import (
	"context"
	"time"

	"github.com/bookn/propertysearch/apperr"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

// Builder assembles documents from the oracle collaborators.
type Builder struct {
	oracles oracle.Oracles
	now     func() time.Time
}

// New returns a Builder reading from the given oracles. now defaults to
// time.Now and is overridable for deterministic tests.
func New(oracles oracle.Oracles) *Builder {
	return &Builder{oracles: oracles, now: time.Now}
}

// WithClock overrides the builder's notion of "today", used for the
// one-night pricing window.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build reads the property, its units, and their pricing, and produces a
// PropertyDocument. A missing property returns apperr.NotFound.
func (b *Builder) Build(ctx context.Context, propertyID string) (*propdoc.PropertyDocument, error) {
	p, err := b.oracles.Properties.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "read property", err)
	}
	if p == nil {
		return nil, apperr.New(apperr.NotFound, "property not found: "+propertyID)
	}

	typeName := p.PropertyTypeName
	if typeName == "" && p.PropertyTypeID != "" {
		resolved, err := b.oracles.Properties.GetPropertyTypeName(ctx, p.PropertyTypeID)
		if err == nil {
			typeName = resolved
		}
	}

	units, err := b.oracles.Units.ListUnitsForProperty(ctx, propertyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list units", err)
	}

	checkIn := propdoc.TicksFromTime(b.now())

	var (
		unitIDs     []string
		unitTypeIDs = map[string]struct{}{}
		minPrice    propdoc.Money
		maxPrice    propdoc.Money
		currency    string
		maxCapacity int64
		pricedUnits int
	)

	for _, u := range units {
		unitIDs = append(unitIDs, u.ID)
		if u.UnitTypeID != "" {
			unitTypeIDs[u.UnitTypeID] = struct{}{}
		}
		capacity := u.MaxAdults + u.MaxChildren
		if capacity > maxCapacity {
			maxCapacity = capacity
		}

		quote, err := b.oracles.Pricing.QuoteOneNight(ctx, u.ID, checkIn)
		if err != nil || quote == nil {
			// Pricing oracle failure: this unit contributes to units_count
			// but is excluded from the min/max price computation.
			continue
		}
		if currency == "" {
			currency = quote.Currency
		}
		if pricedUnits == 0 || quote.Price < minPrice {
			minPrice = quote.Price
		}
		if quote.Price > maxPrice {
			maxPrice = quote.Price
		}
		pricedUnits++
	}

	if pricedUnits == 0 {
		minPrice, maxPrice = 0, 0
	}

	typeIDs := make([]string, 0, len(unitTypeIDs))
	for id := range unitTypeIDs {
		typeIDs = append(typeIDs, id)
	}

	doc := &propdoc.PropertyDocument{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		Name:             p.Name,
		NameNormalized:   propdoc.Normalize(p.Name),
		Description:      p.Description,
		Address:          p.Address,
		City:             p.City,
		PropertyTypeName: typeName,
		PropertyTypeID:   p.PropertyTypeID,
		MinPrice:         minPrice,
		MaxPrice:         maxPrice,
		Currency:         currency,
		StarRating:       p.StarRating,
		AverageRating:    p.AverageRating,
		ReviewsCount:     p.ReviewsCount,
		ViewCount:        p.ViewCount,
		BookingCount:     p.BookingCount,
		MaxCapacity:      maxCapacity,
		UnitsCount:       int64(len(units)),
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
		IsActive:         p.IsActive,
		IsApproved:       p.IsApproved,
		IsFeatured:       p.IsFeatured,
		IsIndexed:        true,
		UnitIDs:          unitIDs,
		UnitTypeIDs:      typeIDs,
		AmenityIDs:       p.AmenityIDs,
		ServiceIDs:       p.ServiceIDs,
		ImageURLs:        p.ImageURLs,
		DynamicFields:    copyFields(p.DynamicFields),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		LastModifiedTicks: propdoc.TicksFromTime(b.now()),
	}
	return doc, nil
}

func copyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
