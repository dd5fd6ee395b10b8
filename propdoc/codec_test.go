package propdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() *PropertyDocument {
	return &PropertyDocument{
		ID:               "prop-1",
		OwnerID:          "owner-1",
		Name:             "Sanaa Grand Hotel",
		NameNormalized:   Normalize("Sanaa Grand Hotel"),
		Description:      "A fine stay",
		Address:          "Main St",
		City:             "Sanaa",
		PropertyTypeName: "Hotel",
		PropertyTypeID:   "type-1",
		MinPrice:         MoneyFromFloat(95.50),
		MaxPrice:         MoneyFromFloat(450.00),
		Currency:         "USD",
		StarRating:       4,
		AverageRating:    4.7,
		ReviewsCount:     120,
		ViewCount:        5000,
		BookingCount:     300,
		MaxCapacity:      6,
		UnitsCount:       3,
		PopularityScore:  88.2,
		Latitude:         15.369,
		Longitude:        44.191,
		IsActive:         true,
		IsApproved:       true,
		IsFeatured:       false,
		IsIndexed:        true,
		UnitIDs:          []string{"u1", "u2", "u3"},
		UnitTypeIDs:      []string{"ut1"},
		AmenityIDs:       []string{"a1", "a2"},
		ServiceIDs:       []string{"s1"},
		ImageURLs:        []string{"http://img/1.png"},
		DynamicFields:    map[string]string{"view": "sea", "floor": "3"},
		CreatedAt:        Ticks(1000),
		UpdatedAt:        Ticks(2000),
		LastModifiedTicks: Ticks(2000),
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	d := sampleDoc()
	fields := ToFields(d)

	assert.Equal(t, "9550", fields["min_price"])
	assert.Equal(t, "sea", fields["df_view"])

	back, err := FromFields(fields)
	require.NoError(t, err)

	assert.Equal(t, d.ID, back.ID)
	assert.Equal(t, d.MinPrice, back.MinPrice)
	assert.Equal(t, d.MaxPrice, back.MaxPrice)
	assert.Equal(t, d.DynamicFields, back.DynamicFields)
	assert.True(t, back.IsActive)
	assert.True(t, back.IsApproved)
	assert.False(t, back.IsFeatured)
}

func TestSnapshotRoundTrip(t *testing.T) {
	d := sampleDoc()

	raw, err := EncodeSnapshot(d)
	require.NoError(t, err)

	back, err := DecodeSnapshot(raw)
	require.NoError(t, err)

	assert.Equal(t, d.ID, back.ID)
	assert.Equal(t, d.UnitIDs, back.UnitIDs)
	assert.Equal(t, d.AmenityIDs, back.AmenityIDs)
	assert.Equal(t, d.MinPrice, back.MinPrice)
	assert.Equal(t, d.DynamicFields, back.DynamicFields)
}

func TestDecodeSnapshotBadMagic(t *testing.T) {
	_, err := DecodeSnapshot([]byte("not a snapshot"))
	assert.Error(t, err)
}

func TestMoneyPreservesTwoFractionDigits(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   Money
	}{
		{"whole", 100.0, Money(10000)},
		{"one-fraction", 99.5, Money(9950)},
		{"two-fraction", 2199.99, Money(219999)},
		{"zero", 0, Money(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MoneyFromFloat(tt.amount))
		})
	}
}
