package searchcache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/propdoc"
	"github.com/bookn/propertysearch/query"
)

func newTestCache(t *testing.T) (*Cache, datastore.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := datastore.NewRedisStore(client)
	return New(store), store
}

func TestSetThenGetRoundTripsThroughL1(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	want := query.Result{
		Items:      []*query.Document{{ID: "p1"}},
		TotalCount: 1, PageNumber: 1, PageSize: 10, TotalPages: 1,
	}
	require.NoError(t, c.Set(ctx, "fp1", want))

	got, ok := c.Get(ctx, "fp1")
	require.True(t, ok)
	assert.Equal(t, want.TotalCount, got.TotalCount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "p1", got.Items[0].ID)
}

func TestGetFallsBackToL2WhenL1Empty(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	want := query.Result{TotalCount: 3}
	require.NoError(t, c.Set(ctx, "fp2", want))

	// Simulate a process restart: L1 never saw the entry on this instance.
	fresh := New(c.store)
	got, ok := fresh.Get(ctx, "fp2")
	require.True(t, ok)
	assert.Equal(t, int64(3), got.TotalCount)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, _ := newTestCache(t)
	got, ok := c.Get(context.Background(), "never-set")
	assert.False(t, ok)
	assert.Equal(t, query.Result{}, got)
}

func TestGetEvictsOnCorruptL2Payload(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, store.StringSet(ctx, propdoc.CacheSearchL2Key("corrupt"), "not-gob-data", 0))

	got, ok := c.Get(ctx, "corrupt")
	assert.False(t, ok)
	assert.Equal(t, query.Result{}, got)

	_, found, err := store.StringGet(ctx, propdoc.CacheSearchL2Key("corrupt"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFingerprintChangesWithEpochAndRequestShape(t *testing.T) {
	base := query.Request{City: "Sanaa", SortBy: query.SortRating, PageNumber: 1, PageSize: 10}

	fp1 := Fingerprint(base, 1)
	fp2 := Fingerprint(base, 2)
	assert.NotEqual(t, fp1, fp2, "bumping the epoch must change the fingerprint")

	other := base
	other.City = "Aden"
	fp3 := Fingerprint(other, 1)
	assert.NotEqual(t, fp1, fp3, "different filters must not collide")

	assert.Equal(t, fp1, Fingerprint(base, 1), "identical requests at the same epoch must be stable")
}
