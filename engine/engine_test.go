package engine

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookn/propertysearch/apperr"
	"github.com/bookn/propertysearch/enginecfg"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
	"github.com/bookn/propertysearch/query"
)

type fakeProperties struct {
	byID map[string]*oracle.Property
}

func (f *fakeProperties) GetProperty(_ context.Context, id string) (*oracle.Property, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "property not found")
	}
	return p, nil
}

func (f *fakeProperties) GetPropertyTypeName(_ context.Context, typeID string) (string, error) {
	return "Hotel", nil
}

func (f *fakeProperties) ListActiveApprovedPropertyIDs(_ context.Context, offset, limit int) ([]string, error) {
	return nil, nil
}

type fakeUnits struct {
	byProperty map[string][]*oracle.Unit
	byID       map[string]*oracle.Unit
}

func (f *fakeUnits) ListUnitsForProperty(_ context.Context, propertyID string) ([]*oracle.Unit, error) {
	return f.byProperty[propertyID], nil
}

func (f *fakeUnits) GetUnit(_ context.Context, unitID string) (*oracle.Unit, error) {
	u, ok := f.byID[unitID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unit not found")
	}
	return u, nil
}

type fakePricing struct {
	byUnit map[string]*oracle.PricingQuote
}

func (f *fakePricing) QuoteOneNight(_ context.Context, unitID string, _ propdoc.Ticks) (*oracle.PricingQuote, error) {
	q, ok := f.byUnit[unitID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "no price")
	}
	return q, nil
}

type fakeAvailability struct{}

func (fakeAvailability) IsAvailable(context.Context, string, propdoc.Ticks, propdoc.Ticks) (bool, error) {
	return true, nil
}
func (fakeAvailability) Ranges(context.Context, string) ([]propdoc.AvailabilityRange, error) {
	return nil, nil
}

type fakeCurrency struct{}

func (fakeCurrency) Rate(_ context.Context, from, to string) (float64, bool, error) {
	if from == to {
		return 1, true, nil
	}
	return 0, false, nil
}

func newTestEngine(t *testing.T) (*Engine, oracle.Oracles) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	oracles := oracle.Oracles{
		Properties:   &fakeProperties{byID: map[string]*oracle.Property{}},
		Units:        &fakeUnits{byProperty: map[string][]*oracle.Unit{}, byID: map[string]*oracle.Unit{}},
		Pricing:      &fakePricing{byUnit: map[string]*oracle.PricingQuote{}},
		Availability: fakeAvailability{},
		Currency:     fakeCurrency{},
	}

	cfg := enginecfg.LoadFromEnv("SEARCHENGINE_ENGINE_TEST")
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	// metrics.New registers with the default Prometheus registry, so each
	// engine built in this process needs its own namespace.
	cfg.MetricsNamespace = "engine_test_" + t.Name()

	eng, err := New(cfg, oracles, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(eng.Stop)

	return eng, oracles
}

func seedProperty(t *testing.T, eng *Engine, oracles oracle.Oracles, id string) {
	t.Helper()
	props := oracles.Properties.(*fakeProperties)
	units := oracles.Units.(*fakeUnits)
	pricing := oracles.Pricing.(*fakePricing)

	props.byID[id] = &oracle.Property{
		ID: id, Name: "Sanaa Suites " + id, City: "Sanaa", PropertyTypeID: "hotel",
		IsActive: true, IsApproved: true, AverageRating: 4.5,
	}
	unit := &oracle.Unit{ID: id + "-u1", PropertyID: id, MaxAdults: 2}
	units.byProperty[id] = []*oracle.Unit{unit}
	units.byID[unit.ID] = unit
	pricing.byUnit[unit.ID] = &oracle.PricingQuote{Price: propdoc.MoneyFromFloat(90), Currency: "USD"}

	require.NoError(t, eng.OnPropertyCreated(context.Background(), id))
}

func TestOnPropertyCreatedThenSearchFindsProperty(t *testing.T) {
	eng, oracles := newTestEngine(t)
	seedProperty(t, eng, oracles, "p1")

	res, err := eng.Search(context.Background(), query.Request{City: "Sanaa"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "p1", res.Items[0].ID)
}

func TestSearchIsCachedAcrossRepeatedCalls(t *testing.T) {
	eng, oracles := newTestEngine(t)
	seedProperty(t, eng, oracles, "p1")

	req := query.Request{City: "Sanaa"}
	first, err := eng.Search(context.Background(), req)
	require.NoError(t, err)

	second, err := eng.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.TotalCount, second.TotalCount)
}

func TestOnPropertyDeletedRemovesFromSearchResults(t *testing.T) {
	eng, oracles := newTestEngine(t)
	seedProperty(t, eng, oracles, "p1")

	require.NoError(t, eng.OnPropertyDeleted(context.Background(), "p1"))

	res, err := eng.Search(context.Background(), query.Request{City: "Sanaa"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestRebuildIndexCompletesWithNoActiveProperties(t *testing.T) {
	eng, oracles := newTestEngine(t)
	props := oracles.Properties.(*fakeProperties)
	units := oracles.Units.(*fakeUnits)
	pricing := oracles.Pricing.(*fakePricing)

	props.byID["p1"] = &oracle.Property{ID: "p1", Name: "Aden Bay", City: "Aden", PropertyTypeID: "hotel", IsActive: true, IsApproved: true}
	unit := &oracle.Unit{ID: "p1-u1", PropertyID: "p1", MaxAdults: 2}
	units.byProperty["p1"] = []*oracle.Unit{unit}
	pricing.byUnit[unit.ID] = &oracle.PricingQuote{Price: propdoc.MoneyFromFloat(70), Currency: "USD"}

	// RebuildIndex walks ListActiveApprovedPropertyIDs, which this fake
	// leaves empty, so rebuilding here only exercises that it completes
	// cleanly and that nothing is reprojected.
	require.NoError(t, eng.RebuildIndex(context.Background()))

	res, err := eng.Search(context.Background(), query.Request{City: "Aden"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

