package propdoc

import "time"

// Money is a price expressed in integer minor units (cents), preserving
// exact two-fractional-digit precision without floating-point drift.
type Money int64

// MoneyFromFloat builds a Money value from a major-unit float amount,
// rounding half up to whole cents, e.g. 123.45 -> Money(12345).
func MoneyFromFloat(amount float64) Money {
	return Money(int64(amount*100 + 0.5))
}

// Float64 renders the money value back to a float for display/arithmetic
// that must interoperate with external oracles (pricing, currency).
func (m Money) Float64() float64 { return float64(m) / 100.0 }

// Ticks is a Unix-nanosecond timestamp, stored and compared as an exact
// integer rather than a lossy floating-point score where it matters.
type Ticks int64

func TicksFromTime(t time.Time) Ticks { return Ticks(t.UnixNano()) }

func (t Ticks) Time() time.Time { return time.Unix(0, int64(t)) }

// PropertyDocument is the denormalized unit of indexing: everything the
// query executor needs to answer a search without touching the
// authoritative store.
type PropertyDocument struct {
	ID      string
	OwnerID string

	Name             string
	NameNormalized   string
	Description      string
	Address          string
	City             string
	PropertyTypeName string
	PropertyTypeID   string

	MinPrice       Money
	MaxPrice       Money
	Currency       string
	StarRating     float64
	AverageRating  float64
	ReviewsCount   int64
	ViewCount      int64
	BookingCount   int64
	MaxCapacity    int64
	UnitsCount     int64
	PopularityScore float64
	Latitude       float64
	Longitude      float64

	IsActive   bool
	IsApproved bool
	IsFeatured bool
	IsIndexed  bool

	UnitIDs       []string
	UnitTypeIDs   []string
	AmenityIDs    []string
	ServiceIDs    []string
	ImageURLs     []string
	DynamicFields map[string]string

	CreatedAt         Ticks
	UpdatedAt         Ticks
	LastModifiedTicks Ticks
}

// UnitDocument is one unit's indexed fields; its own MaxAdults /
// MaxChildren feed the two unit-level sorted indexes.
type UnitDocument struct {
	ID          string
	PropertyID  string
	UnitTypeID  string
	Name        string
	MaxCapacity int64
	MaxAdults   int64
	MaxChildren int64
	BasePrice   Money
	Currency    string
}

// AvailabilityRange is a half-open interval [Start, End) during which a unit
// is available.
type AvailabilityRange struct {
	Start Ticks
	End   Ticks
}

// PricingRule is a per-night price override for a unit over a date range.
type PricingRule struct {
	Start     Ticks
	End       Ticks
	Price     Money
	Currency  string
	PriceType string
}

// HasAdultsAttribute / HasChildrenAttribute decide membership of
// tag:property:has_adults / tag:property:has_children; both report
// MaxCapacity > 0, since the document carries no separate adult or
// children figure.
func (d *PropertyDocument) HasAdultsAttribute() bool { return d.hasCapacityField("adults") }
func (d *PropertyDocument) HasChildrenAttribute() bool { return d.hasCapacityField("children") }

func (d *PropertyDocument) hasCapacityField(_ string) bool {
	// MaxCapacity > 0 is the only capacity signal carried at the property
	// level; per-unit adult/children splits are tracked by UnitDocument
	// and the unit-level tag sets instead.
	return d.MaxCapacity > 0
}

// Clone returns a deep-enough copy for diffing purposes (slices/maps are
// copied so callers may mutate the clone without affecting the original).
func (d *PropertyDocument) Clone() *PropertyDocument {
	if d == nil {
		return nil
	}
	c := *d
	c.UnitIDs = append([]string(nil), d.UnitIDs...)
	c.UnitTypeIDs = append([]string(nil), d.UnitTypeIDs...)
	c.AmenityIDs = append([]string(nil), d.AmenityIDs...)
	c.ServiceIDs = append([]string(nil), d.ServiceIDs...)
	c.ImageURLs = append([]string(nil), d.ImageURLs...)
	c.DynamicFields = make(map[string]string, len(d.DynamicFields))
	for k, v := range d.DynamicFields {
		c.DynamicFields[k] = v
	}
	return &c
}
