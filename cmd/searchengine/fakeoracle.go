package main

import (
	"context"
	"time"

	"github.com/bookn/propertysearch/apperr"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

// fakeOracles is an in-memory stand-in for the authoritative store, the
// pricing oracle, and the currency exchange repository, used only to
// smoke-test rebuild_index locally. A real deployment wires these
// interfaces to the actual PropertyRepository/UnitRepository/PricingService/
// AvailabilityService/CurrencyExchangeRepository implementations, which
// live outside this module's scope (spec §1).
type fakeOracles struct {
	properties map[string]*oracle.Property
	units      map[string][]*oracle.Unit
	prices     map[string]oracle.PricingQuote
	order      []string
}

func newFakeOracles() *fakeOracles {
	now := propdoc.TicksFromTime(time.Now())
	f := &fakeOracles{
		properties: map[string]*oracle.Property{},
		units:      map[string][]*oracle.Unit{},
		prices:     map[string]oracle.PricingQuote{},
	}

	seed := []*oracle.Property{
		{
			ID: "p1", OwnerID: "o1", Name: "Sanaa Garden Suites", Description: "Quiet rooms near the old city.",
			City: "Sanaa", PropertyTypeID: "hotel", PropertyTypeName: "Hotel",
			AverageRating: 4.6, ReviewsCount: 120, Latitude: 15.369, Longitude: 44.191,
			IsActive: true, IsApproved: true, AmenityIDs: []string{"wifi", "parking"},
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "p2", OwnerID: "o2", Name: "Aden Bay Apartments", Description: "Seaside apartments.",
			City: "Aden", PropertyTypeID: "apartment", PropertyTypeName: "Apartment",
			AverageRating: 4.1, ReviewsCount: 54, Latitude: 12.78, Longitude: 45.03,
			IsActive: true, IsApproved: true, AmenityIDs: []string{"wifi"},
			CreatedAt: now, UpdatedAt: now,
		},
	}
	for _, p := range seed {
		f.properties[p.ID] = p
		f.order = append(f.order, p.ID)
		unit := &oracle.Unit{ID: p.ID + "-u1", PropertyID: p.ID, UnitTypeID: "standard", Name: "Standard Room", MaxAdults: 2, MaxChildren: 1, Currency: "USD"}
		f.units[p.ID] = []*oracle.Unit{unit}
		f.prices[unit.ID] = oracle.PricingQuote{Price: propdoc.MoneyFromFloat(75.00), Currency: "USD"}
	}
	return f
}

func (f *fakeOracles) GetProperty(ctx context.Context, propertyID string) (*oracle.Property, error) {
	p, ok := f.properties[propertyID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "property not found: "+propertyID)
	}
	return p, nil
}

func (f *fakeOracles) GetPropertyTypeName(ctx context.Context, propertyTypeID string) (string, error) {
	for _, p := range f.properties {
		if p.PropertyTypeID == propertyTypeID {
			return p.PropertyTypeName, nil
		}
	}
	return "", apperr.New(apperr.NotFound, "property type not found: "+propertyTypeID)
}

func (f *fakeOracles) ListActiveApprovedPropertyIDs(ctx context.Context, offset, limit int) ([]string, error) {
	if offset >= len(f.order) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.order) {
		end = len(f.order)
	}
	return f.order[offset:end], nil
}

func (f *fakeOracles) ListUnitsForProperty(ctx context.Context, propertyID string) ([]*oracle.Unit, error) {
	return f.units[propertyID], nil
}

func (f *fakeOracles) GetUnit(ctx context.Context, unitID string) (*oracle.Unit, error) {
	for _, units := range f.units {
		for _, u := range units {
			if u.ID == unitID {
				return u, nil
			}
		}
	}
	return nil, apperr.New(apperr.NotFound, "unit not found: "+unitID)
}

func (f *fakeOracles) QuoteOneNight(ctx context.Context, unitID string, checkIn propdoc.Ticks) (*oracle.PricingQuote, error) {
	q, ok := f.prices[unitID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "no price for unit: "+unitID)
	}
	return &q, nil
}

func (f *fakeOracles) IsAvailable(ctx context.Context, unitID string, checkIn, checkOut propdoc.Ticks) (bool, error) {
	return true, nil
}

func (f *fakeOracles) Ranges(ctx context.Context, unitID string) ([]propdoc.AvailabilityRange, error) {
	return nil, nil
}

func (f *fakeOracles) Rate(ctx context.Context, from, to string) (float64, bool, error) {
	if from == to {
		return 1, true, nil
	}
	if from == "USD" && to == "YER" {
		return 500, true, nil
	}
	if from == "YER" && to == "USD" {
		return 1.0 / 500.0, true, nil
	}
	return 0, false, nil
}

func (f *fakeOracles) oracles() oracle.Oracles {
	return oracle.Oracles{
		Properties:   f,
		Units:        f,
		Pricing:      f,
		Availability: f,
		Currency:     f,
	}
}
