// Package datastore abstracts the Redis-compatible operations the engine
// needs behind a single interface, so the maintainer, query executor,
// cache, and maintenance loop never import go-redis directly. Errors
// returned by any method are apperr values carrying the originating
// command.
package datastore

import (
	"context"
	"time"
)

// GeoPoint is a single (member, longitude, latitude) tuple for geoadd.
type GeoPoint struct {
	Member    string
	Longitude float64
	Latitude  float64
}

// GeoResult is a single geosearch/georadius hit, distance in kilometers.
type GeoResult struct {
	Member   string
	DistKM   float64
	Lon, Lat float64
}

// ZMember is a single (member, score) pair for zadd/zrange.
type ZMember struct {
	Member string
	Score  float64
}

// ScanCursor iterates a key pattern in SCAN-sized batches without ever
// issuing a blocking KEYS command against the server.
type ScanCursor struct {
	Keys   []string
	Cursor uint64
	Done   bool
}

// Capabilities describes what the connected server can do, probed once
// by the Store implementation and cached.
type Capabilities struct {
	NativeFullText bool
}

// Store is the full surface spec §4.2 names, implemented against a real
// Redis/Valkey/DragonflyDB server or an in-memory fake for tests.
type Store interface {
	// Hash operations.
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Set operations.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SInterStore(ctx context.Context, dest string, keys ...string) (int64, error)

	// Sorted-set operations.
	ZAdd(ctx context.Context, key string, members ...ZMember) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)
	ZInterStore(ctx context.Context, dest string, weights []float64, keys ...string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)

	// Geo operations.
	GeoAdd(ctx context.Context, key string, points ...GeoPoint) error
	GeoRadius(ctx context.Context, key string, lon, lat, radiusKM float64, count int) ([]GeoResult, error)
	GeoSearch(ctx context.Context, key string, lon, lat, radiusKM float64, count int) ([]GeoResult, error)

	// Generic key operations.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	StringSet(ctx context.Context, key, value string, ttl time.Duration) error
	StringGet(ctx context.Context, key string) (string, bool, error)

	// Scripting.
	ScriptLoad(ctx context.Context, source string) (string, error)
	EvalSha(ctx context.Context, sha string, keys []string, args ...any) (any, error)

	// Pub/Sub.
	Publish(ctx context.Context, channel string, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)

	// Scanning / administration.
	Scan(ctx context.Context, cursor uint64, match string, count int64) (ScanCursor, error)
	ScanDelete(ctx context.Context, pattern string, batchSize int64) (int64, error)
	ServerInfo(ctx context.Context) (map[string]string, error)
	BgSave(ctx context.Context) error
	BgRewriteAOF(ctx context.Context) error
	Slowlog(ctx context.Context, n int) ([]string, error)

	// Transactions.
	TxPipeline(ctx context.Context, fn func(Tx) error) error

	// Capabilities reports the server's native full-text support, probed
	// once by the Store implementation and cached for its lifetime.
	Capabilities(ctx context.Context) Capabilities

	// Do issues a raw command for the handful of admin/search verbs (e.g.
	// FT.SEARCH) that have no dedicated method on this interface.
	Do(ctx context.Context, args ...any) (any, error)

	Close() error
}

// Tx is the subset of Store operations valid inside a TxPipeline
// callback: everything is queued and only sent to the server, atomically,
// when the callback returns without error.
type Tx interface {
	HSet(key string, fields map[string]string)
	HDel(key string, fields ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	ZAdd(key string, members ...ZMember)
	ZRem(key string, members ...string)
	GeoAdd(key string, points ...GeoPoint)
	Del(keys ...string)
	Incr(key string)
	StringSet(key, value string, ttl time.Duration)
	Publish(channel, payload string)
}
