package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestHashRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "property:1", map[string]string{"name": "Sanaa Hotel", "min_price": "9550"}))

	fields, err := store.HGetAll(ctx, "property:1")
	require.NoError(t, err)
	assert.Equal(t, "Sanaa Hotel", fields["name"])
	assert.Equal(t, "9550", fields["min_price"])

	n, err := store.HIncrBy(ctx, "property:1", "view_count", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSetIntersection(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SAdd(ctx, "properties:all", "p1", "p2", "p3"))
	require.NoError(t, store.SAdd(ctx, "tag:city:sanaa", "p1", "p2"))

	n, err := store.SInterStore(ctx, "temp:candidates", "properties:all", "tag:city:sanaa")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	members, err := store.SMembers(ctx, "temp:candidates")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, members)
}

func TestSortedSetRangeAndRemove(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ZAdd(ctx, "idx:price", ZMember{Member: "p1", Score: 100}, ZMember{Member: "p2", Score: 50}))

	asc, err := store.ZRange(ctx, "idx:price", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, asc)

	desc, err := store.ZRevRange(ctx, "idx:price", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, desc)

	removed, err := store.ZRemRangeByScore(ctx, "idx:price", 0, 60)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestGeoAddAndRadius(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.GeoAdd(ctx, "geo:properties", GeoPoint{Member: "p1", Longitude: 44.191, Latitude: 15.369}))

	results, err := store.GeoRadius(ctx, "geo:properties", 44.2, 15.37, 50, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].Member)
}

func TestTxPipelineAtomicity(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.TxPipeline(ctx, func(tx Tx) error {
		tx.HSet("property:1", map[string]string{"name": "Grand Hotel"})
		tx.SAdd("properties:all", "1")
		tx.ZAdd("idx:rating", ZMember{Member: "1", Score: 4.5})
		tx.Incr("stats:index:epoch")
		tx.Publish("property:created", "1")
		return nil
	})
	require.NoError(t, err)

	fields, err := store.HGetAll(ctx, "property:1")
	require.NoError(t, err)
	assert.Equal(t, "Grand Hotel", fields["name"])

	isMember, err := store.SIsMember(ctx, "properties:all", "1")
	require.NoError(t, err)
	assert.True(t, isMember)

	epoch, ok, err := store.StringGet(ctx, "stats:index:epoch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", epoch)
}

func TestScanDeleteRemovesAllMatches(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, store.StringSet(ctx, "temp:rebuild:"+string(rune('a'+i)), "x", 0))
	}

	deleted, err := store.ScanDelete(ctx, "temp:rebuild:*", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 25, deleted)

	page, err := store.Scan(ctx, 0, "temp:rebuild:*", 100)
	require.NoError(t, err)
	assert.Empty(t, page.Keys)
}

func TestStringGetMissingKeyIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.StringGet(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpireAndDel(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StringSet(ctx, "lock:property:1", "owner", 0))
	require.NoError(t, store.Expire(ctx, "lock:property:1", 50*time.Millisecond))
	require.NoError(t, store.Del(ctx, "lock:property:1"))

	_, ok, err := store.StringGet(ctx, "lock:property:1")
	require.NoError(t, err)
	assert.False(t, ok)
}
