// Package oracle declares the external collaborators the engine consumes
// but does not own: the systems of record for properties, units, pricing,
// availability, and currency exchange. These are plain Go interfaces, the
// same arm's-length-collaborator shape the teacher uses for kvm's
// hypervisor boundary — the engine never assumes a particular backing
// store for them.
package oracle

import (
	"context"

	"github.com/bookn/propertysearch/propdoc"
)

// Property is the authoritative property record read from the system of
// record, before it is shaped into a propdoc.PropertyDocument.
type Property struct {
	ID               string
	OwnerID          string
	Name             string
	Description      string
	Address          string
	City             string
	PropertyTypeID   string
	PropertyTypeName string
	StarRating       float64
	AverageRating    float64
	ReviewsCount     int64
	ViewCount        int64
	BookingCount     int64
	Latitude         float64
	Longitude        float64
	IsActive         bool
	IsApproved       bool
	IsFeatured       bool
	AmenityIDs       []string
	ServiceIDs       []string
	ImageURLs        []string
	DynamicFields    map[string]string
	CreatedAt        propdoc.Ticks
	UpdatedAt        propdoc.Ticks
}

// Unit is a bookable unit belonging to a property.
type Unit struct {
	ID          string
	PropertyID  string
	UnitTypeID  string
	Name        string
	MaxAdults   int64
	MaxChildren int64
	Currency    string
}

// PropertyRepository is the system of record for properties and their
// units.
type PropertyRepository interface {
	GetProperty(ctx context.Context, propertyID string) (*Property, error)
	GetPropertyTypeName(ctx context.Context, propertyTypeID string) (string, error)
	ListActiveApprovedPropertyIDs(ctx context.Context, offset, limit int) ([]string, error)
}

// UnitRepository is the system of record for units.
type UnitRepository interface {
	ListUnitsForProperty(ctx context.Context, propertyID string) ([]*Unit, error)
	GetUnit(ctx context.Context, unitID string) (*Unit, error)
}

// PricingQuote is the price quoted for a single night window.
type PricingQuote struct {
	Price    propdoc.Money
	Currency string
}

// PricingService quotes a unit's price for a given one-night stay.
type PricingService interface {
	QuoteOneNight(ctx context.Context, unitID string, checkIn propdoc.Ticks) (*PricingQuote, error)
}

// AvailabilityService reports whether a unit is free over [checkIn, checkOut).
type AvailabilityService interface {
	IsAvailable(ctx context.Context, unitID string, checkIn, checkOut propdoc.Ticks) (bool, error)
	Ranges(ctx context.Context, unitID string) ([]propdoc.AvailabilityRange, error)
}

// CurrencyExchangeRepository converts amounts between currencies using
// rates current as of the call.
type CurrencyExchangeRepository interface {
	// Rate returns the multiplier to convert one unit of `from` into `to`.
	// ok is false when no rate is available for the pair.
	Rate(ctx context.Context, from, to string) (rate float64, ok bool, err error)
}

// Oracles bundles every external collaborator the query executor and
// document builder need, so they can be threaded through as one value.
type Oracles struct {
	Properties   PropertyRepository
	Units        UnitRepository
	Pricing      PricingService
	Availability AvailabilityService
	Currency     CurrencyExchangeRepository
}
