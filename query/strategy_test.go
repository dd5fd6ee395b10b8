package query

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/maintainer"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

func newTestStore(t *testing.T) datastore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return datastore.NewRedisStore(client)
}

func seedProperty(t *testing.T, m *maintainer.Maintainer, doc *propdoc.PropertyDocument) {
	t.Helper()
	require.NoError(t, m.OnPropertyCreated(context.Background(), doc))
}

func TestSimpleStrategyIntersectsTagsAndPreservesSortOrder(t *testing.T) {
	store := newTestStore(t)
	m := maintainer.New(store)
	ctx := context.Background()

	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "cheap", City: "Sanaa", MinPrice: propdoc.MoneyFromFloat(50), AverageRating: 4.0,
		IsActive: true, IsApproved: true,
	})
	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "mid", City: "Sanaa", MinPrice: propdoc.MoneyFromFloat(100), AverageRating: 4.8,
		IsActive: true, IsApproved: true,
	})
	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "other-city", City: "Aden", MinPrice: propdoc.MoneyFromFloat(60), AverageRating: 5.0,
		IsActive: true, IsApproved: true,
	})

	req := Request{City: "Sanaa", SortBy: SortRating, PageNumber: 1, PageSize: 10}.Normalize()
	res, err := SimpleStrategy{}.Execute(ctx, req, store, oracle.Oracles{})
	require.NoError(t, err)

	ids := make([]string, len(res.Items))
	for i, d := range res.Items {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"mid", "cheap"}, ids)
}

func TestSimpleStrategyAppliesPriceRangeFilter(t *testing.T) {
	store := newTestStore(t)
	m := maintainer.New(store)
	ctx := context.Background()

	seedProperty(t, m, &propdoc.PropertyDocument{ID: "low", City: "Sanaa", MinPrice: propdoc.MoneyFromFloat(10), AverageRating: 4.0})
	seedProperty(t, m, &propdoc.PropertyDocument{ID: "mid", City: "Sanaa", MinPrice: propdoc.MoneyFromFloat(100), AverageRating: 4.0})
	seedProperty(t, m, &propdoc.PropertyDocument{ID: "high", City: "Sanaa", MinPrice: propdoc.MoneyFromFloat(500), AverageRating: 4.0})

	req := Request{
		City: "Sanaa", HasPriceRange: true,
		MinPrice: propdoc.MoneyFromFloat(50), MaxPrice: propdoc.MoneyFromFloat(200),
		SortBy: SortRating, PageNumber: 1, PageSize: 10,
	}.Normalize()

	res, err := SimpleStrategy{}.Execute(ctx, req, store, oracle.Oracles{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "mid", res.Items[0].ID)
}

func TestGeoStrategyFiltersByRadiusAndInMemoryBounds(t *testing.T) {
	store := newTestStore(t)
	m := maintainer.New(store)
	ctx := context.Background()

	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "near", Latitude: 15.30, Longitude: 44.20, MinPrice: propdoc.MoneyFromFloat(80), AverageRating: 4.0,
	})
	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "far", Latitude: 25.0, Longitude: 55.0, MinPrice: propdoc.MoneyFromFloat(80), AverageRating: 4.0,
	})

	req := Request{
		HasCoordinates: true, Latitude: 15.31, Longitude: 44.21, RadiusKM: 10,
		SortBy: SortDistance, PageNumber: 1, PageSize: 10,
	}.Normalize()

	res, err := GeoStrategy{}.Execute(ctx, req, store, oracle.Oracles{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "near", res.Items[0].ID)
}

func TestComplexStrategyAppliesRejectRulesAndPaginates(t *testing.T) {
	store := newTestStore(t)
	m := maintainer.New(store)
	ctx := context.Background()

	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "match", City: "Sanaa", PropertyTypeID: "hotel", MinPrice: propdoc.MoneyFromFloat(90),
		AverageRating: 4.5, AmenityIDs: []string{"wifi", "pool"},
	})
	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "wrong-city", City: "Aden", PropertyTypeID: "hotel", MinPrice: propdoc.MoneyFromFloat(90),
		AverageRating: 4.5, AmenityIDs: []string{"wifi", "pool"},
	})
	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "too-cheap", City: "Sanaa", PropertyTypeID: "hotel", MinPrice: propdoc.MoneyFromFloat(5),
		AverageRating: 4.5, AmenityIDs: []string{"wifi", "pool"},
	})

	req := Request{
		City: "Sanaa", PropertyType: "hotel", HasPriceRange: true,
		MinPrice: propdoc.MoneyFromFloat(50), MaxPrice: propdoc.MoneyFromFloat(200),
		RequiredAmenityIDs: []string{"wifi"},
		SortBy:             SortRating, PageNumber: 1, PageSize: 10,
	}.Normalize()

	strategy := ComplexStrategy{}
	res, err := strategy.Execute(ctx, req, store, oracle.Oracles{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "match", res.Items[0].ID)
	assert.Equal(t, int64(1), res.TotalCount)
}

func TestTextStrategyFallsBackToManualScan(t *testing.T) {
	store := newTestStore(t)
	m := maintainer.New(store)
	ctx := context.Background()

	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "villa", Name: "Sunny Villa", NameNormalized: propdoc.Normalize("Sunny Villa"),
		City: "Sanaa", IsActive: true, IsApproved: true,
	})
	seedProperty(t, m, &propdoc.PropertyDocument{
		ID: "hotel", Name: "Downtown Hotel", NameNormalized: propdoc.Normalize("Downtown Hotel"),
		City: "Sanaa", IsActive: true, IsApproved: true,
	})

	req := Request{SearchText: "villa", SortBy: SortRating, PageNumber: 1, PageSize: 10}.Normalize()
	res, err := TextStrategy{}.Execute(ctx, req, store, oracle.Oracles{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "villa", res.Items[0].ID)
}
