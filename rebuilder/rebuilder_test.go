package rebuilder

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookn/propertysearch/apperr"
	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/docbuilder"
	"github.com/bookn/propertysearch/elog"
	"github.com/bookn/propertysearch/maintainer"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

type fakeProperties struct {
	ids    []string
	byID   map[string]*oracle.Property
	typeNm map[string]string
}

func (f *fakeProperties) GetProperty(_ context.Context, id string) (*oracle.Property, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "not found")
	}
	return p, nil
}

func (f *fakeProperties) GetPropertyTypeName(_ context.Context, typeID string) (string, error) {
	return f.typeNm[typeID], nil
}

func (f *fakeProperties) ListActiveApprovedPropertyIDs(_ context.Context, offset, limit int) ([]string, error) {
	if offset >= len(f.ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.ids) {
		end = len(f.ids)
	}
	return f.ids[offset:end], nil
}

type fakeUnits struct {
	byProperty map[string][]*oracle.Unit
}

func (f *fakeUnits) ListUnitsForProperty(_ context.Context, propertyID string) ([]*oracle.Unit, error) {
	return f.byProperty[propertyID], nil
}

func (f *fakeUnits) GetUnit(context.Context, string) (*oracle.Unit, error) { return nil, nil }

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

func newTestRebuilder(t *testing.T, ids []string) (*Rebuilder, datastore.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := datastore.NewRedisStore(client)
	m := maintainer.New(store)

	props := &fakeProperties{ids: ids, byID: map[string]*oracle.Property{}, typeNm: map[string]string{"hotel": "Hotel"}}
	units := &fakeUnits{byProperty: map[string][]*oracle.Unit{}}
	pricing := &fakePricing{byUnit: map[string]*oracle.PricingQuote{}}
	for _, id := range ids {
		props.byID[id] = &oracle.Property{ID: id, Name: "Property " + id, City: "Sanaa", PropertyTypeID: "hotel", IsActive: true, IsApproved: true}
		unit := &oracle.Unit{ID: id + "-u1", PropertyID: id, MaxAdults: 2}
		units.byProperty[id] = []*oracle.Unit{unit}
		pricing.byUnit[unit.ID] = &oracle.PricingQuote{Price: propdoc.MoneyFromFloat(90), Currency: "USD"}
	}

	builder := docbuilder.New(oracle.Oracles{Properties: props, Units: units, Pricing: pricing})
	log := elog.With(elog.New(elog.DefaultConfig()), nil)
	return New(store, m, builder, oracle.Oracles{Properties: props, Units: units, Pricing: pricing}, log), store
}

func TestRebuildIndexesEveryActiveApprovedProperty(t *testing.T) {
	r, store := newTestRebuilder(t, []string{"p1", "p2", "p3"})
	ctx := context.Background()

	require.NoError(t, r.Rebuild(ctx))

	members, err := store.SMembers(ctx, propdoc.AllPropertiesKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, members)
}

func TestRebuildClearsStalePropertiesBeforeReprojecting(t *testing.T) {
	r, store := newTestRebuilder(t, []string{"p1"})
	ctx := context.Background()

	require.NoError(t, store.SAdd(ctx, propdoc.AllPropertiesKey, "stale-property"))

	require.NoError(t, r.Rebuild(ctx))

	members, err := store.SMembers(ctx, propdoc.AllPropertiesKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1"}, members)
}

func TestRebuildAdvancesEpochAndPublishesOnce(t *testing.T) {
	r, store := newTestRebuilder(t, []string{"p1"})
	ctx := context.Background()

	before, _, err := store.StringGet(ctx, propdoc.IndexEpochKey)
	require.NoError(t, err)
	assert.Equal(t, "", before)

	require.NoError(t, r.Rebuild(ctx))

	after, _, err := store.StringGet(ctx, propdoc.IndexEpochKey)
	require.NoError(t, err)
	assert.Equal(t, "1", after)

	require.NoError(t, r.Rebuild(ctx))
	after2, _, err := store.StringGet(ctx, propdoc.IndexEpochKey)
	require.NoError(t, err)
	assert.Equal(t, "2", after2)
}

func TestRebuildSkipsPropertyWhenDocumentBuildFails(t *testing.T) {
	r, store := newTestRebuilder(t, []string{"p1", "missing-from-oracle"})
	ctx := context.Background()
	// Drop the second property from the fake oracle after seeding ids, so
	// ListActiveApprovedPropertyIDs still returns it but GetProperty fails.
	delete(r.oracles.Properties.(*fakeProperties).byID, "missing-from-oracle")

	require.NoError(t, r.Rebuild(ctx))

	members, err := store.SMembers(ctx, propdoc.AllPropertiesKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1"}, members)
}
