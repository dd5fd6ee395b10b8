package datastore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bookn/propertysearch/apperr"
)

// redisStore implements Store over a single *redis.Client, following the
// call shape of db/repository/redis.go's RedisRepository: every method
// wraps its go-redis error into an apperr kind carrying the originating
// command name.
type redisStore struct {
	client *redis.Client

	capMu   sync.RWMutex
	capOnce sync.Once
	caps    Capabilities
}

// NewRedisStore wraps an already-connected *redis.Client. Connection
// lifecycle (dial, reconnect, health check) is connmgr's job, not
// datastore's.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func wrapErr(cmd string, err error) error {
	if err == nil || err == redis.Nil {
		return nil
	}
	kind := apperr.Internal
	switch {
	case err == context.DeadlineExceeded:
		kind = apperr.Timeout
	case err == context.Canceled:
		kind = apperr.Cancelled
	}
	return apperr.Wrap(kind, "datastore command failed", err).WithCommand(cmd)
}

func (s *redisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return wrapErr("HSET", s.client.HSet(ctx, key, args...).Err())
}

func (s *redisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := s.client.HGetAll(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, wrapErr("HGETALL", err)
	}
	return v, nil
}

func (s *redisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	v, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, wrapErr("HINCRBY", err)
	}
	return v, nil
}

func (s *redisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return wrapErr("HDEL", s.client.HDel(ctx, key, fields...).Err())
}

func (s *redisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapErr("SADD", s.client.SAdd(ctx, key, args...).Err())
}

func (s *redisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapErr("SREM", s.client.SRem(ctx, key, args...).Err())
}

func (s *redisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrapErr("SMEMBERS", err)
	}
	return v, nil
}

func (s *redisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	v, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, wrapErr("SISMEMBER", err)
	}
	return v, nil
}

func (s *redisStore) SInterStore(ctx context.Context, dest string, keys ...string) (int64, error) {
	v, err := s.client.SInterStore(ctx, dest, keys...).Result()
	if err != nil {
		return 0, wrapErr("SINTERSTORE", err)
	}
	return v, nil
}

func (s *redisStore) ZAdd(ctx context.Context, key string, members ...ZMember) error {
	if len(members) == 0 {
		return nil
	}
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	return wrapErr("ZADD", s.client.ZAdd(ctx, key, zs...).Err())
}

func (s *redisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := s.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrapErr("ZRANGE", err)
	}
	return v, nil
}

func (s *redisStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := s.client.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrapErr("ZREVRANGE", err)
	}
	return v, nil
}

func (s *redisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	v, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, wrapErr("ZRANGEBYSCORE", err)
	}
	return v, nil
}

func (s *redisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	v, err := s.client.ZRemRangeByScore(ctx, key,
		strconv.FormatFloat(min, 'f', -1, 64),
		strconv.FormatFloat(max, 'f', -1, 64)).Result()
	if err != nil {
		return 0, wrapErr("ZREMRANGEBYSCORE", err)
	}
	return v, nil
}

func (s *redisStore) ZInterStore(ctx context.Context, dest string, weights []float64, keys ...string) (int64, error) {
	store := &redis.ZStore{Keys: keys}
	if len(weights) > 0 {
		store.Weights = weights
	}
	v, err := s.client.ZInterStore(ctx, dest, store).Result()
	if err != nil {
		return 0, wrapErr("ZINTERSTORE", err)
	}
	return v, nil
}

func (s *redisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	v, err := s.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapErr("ZSCORE", err)
	}
	return v, true, nil
}

func (s *redisStore) GeoAdd(ctx context.Context, key string, points ...GeoPoint) error {
	if len(points) == 0 {
		return nil
	}
	locs := make([]*redis.GeoLocation, len(points))
	for i, p := range points {
		locs[i] = &redis.GeoLocation{Name: p.Member, Longitude: p.Longitude, Latitude: p.Latitude}
	}
	return wrapErr("GEOADD", s.client.GeoAdd(ctx, key, locs...).Err())
}

func (s *redisStore) GeoRadius(ctx context.Context, key string, lon, lat, radiusKM float64, count int) ([]GeoResult, error) {
	v, err := s.client.GeoRadius(ctx, key, lon, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKM,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     count,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, wrapErr("GEORADIUS", err)
	}
	return fromGeoLocations(v), nil
}

func (s *redisStore) GeoSearch(ctx context.Context, key string, lon, lat, radiusKM float64, count int) ([]GeoResult, error) {
	v, err := s.client.GeoSearchLocation(ctx, key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      count,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, wrapErr("GEOSEARCH", err)
	}
	return fromGeoLocations(v), nil
}

func fromGeoLocations(locs []redis.GeoLocation) []GeoResult {
	out := make([]GeoResult, len(locs))
	for i, l := range locs {
		out[i] = GeoResult{Member: l.Name, DistKM: l.Dist, Lon: l.Longitude, Lat: l.Latitude}
	}
	return out
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrapErr("EXPIRE", s.client.Expire(ctx, key, ttl).Err())
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrapErr("DEL", s.client.Del(ctx, keys...).Err())
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapErr("INCR", err)
	}
	return v, nil
}

func (s *redisStore) StringSet(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrapErr("SET", s.client.Set(ctx, key, value, ttl).Err())
}

func (s *redisStore) StringGet(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("GET", err)
	}
	return v, true, nil
}

func (s *redisStore) ScriptLoad(ctx context.Context, source string) (string, error) {
	sha, err := s.client.ScriptLoad(ctx, source).Result()
	if err != nil {
		return "", apperr.Wrap(apperr.ScriptError, "script load failed", err).WithCommand("SCRIPT LOAD")
	}
	return sha, nil
}

func (s *redisStore) EvalSha(ctx context.Context, sha string, keys []string, args ...any) (any, error) {
	v, err := s.client.EvalSha(ctx, sha, keys, args...).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.ScriptError, "script eval failed", err).WithCommand("EVALSHA")
	}
	return v, nil
}

func (s *redisStore) Publish(ctx context.Context, channel string, payload string) error {
	return wrapErr("PUBLISH", s.client.Publish(ctx, channel, payload).Err())
}

func (s *redisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, wrapErr("SUBSCRIBE", err)
	}

	out := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok || msg == nil {
					return
				}
				select {
				case out <- msg.Payload:
				case <-done:
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	closeFn := func() {
		close(done)
		pubsub.Close()
	}
	return out, closeFn, nil
}

func (s *redisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) (ScanCursor, error) {
	keys, next, err := s.client.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return ScanCursor{}, wrapErr("SCAN", err)
	}
	return ScanCursor{Keys: keys, Cursor: next, Done: next == 0}, nil
}

// ScanDelete removes every key matching pattern using SCAN + pipelined
// DEL in bounded batches, never KEYS, so a large keyspace never blocks
// the server.
func (s *redisStore) ScanDelete(ctx context.Context, pattern string, batchSize int64) (int64, error) {
	var deleted int64
	var cursor uint64
	for {
		page, err := s.Scan(ctx, cursor, pattern, batchSize)
		if err != nil {
			return deleted, err
		}
		if len(page.Keys) > 0 {
			if err := s.Del(ctx, page.Keys...); err != nil {
				return deleted, err
			}
			deleted += int64(len(page.Keys))
		}
		cursor = page.Cursor
		if page.Done {
			break
		}
	}
	return deleted, nil
}

func (s *redisStore) ServerInfo(ctx context.Context) (map[string]string, error) {
	raw, err := s.client.Info(ctx).Result()
	if err != nil {
		return nil, wrapErr("INFO", err)
	}
	return parseInfo(raw), nil
}

func (s *redisStore) BgSave(ctx context.Context) error {
	return wrapErr("BGSAVE", s.client.BgSave(ctx).Err())
}

func (s *redisStore) BgRewriteAOF(ctx context.Context) error {
	return wrapErr("BGREWRITEAOF", s.client.BgRewriteAOF(ctx).Err())
}

func (s *redisStore) Slowlog(ctx context.Context, n int) ([]string, error) {
	entries, err := s.client.SlowLogGet(ctx, int64(n)).Result()
	if err != nil {
		return nil, wrapErr("SLOWLOG GET", err)
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%d %s %v", e.ID, e.Time.Format(time.RFC3339), e.Args)
	}
	return lines, nil
}

func (s *redisStore) Capabilities(ctx context.Context) Capabilities {
	s.capOnce.Do(func() {
		caps := Capabilities{}
		_, err := s.client.Do(ctx, "FT.INFO", "no-such-index-probe").Result()
		// Any reply other than "unknown command" means the module is
		// loaded; a real missing index still returns a RediSearch-shaped
		// error rather than go-redis's generic unknown-command error.
		caps.NativeFullText = !isUnknownCommand(err)
		s.capMu.Lock()
		s.caps = caps
		s.capMu.Unlock()
	})
	s.capMu.RLock()
	defer s.capMu.RUnlock()
	return s.caps
}

func (s *redisStore) Do(ctx context.Context, args ...any) (any, error) {
	res, err := s.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("%v", args), err)
	}
	return res, nil
}

func isUnknownCommand(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return len(msg) >= 15 && msg[:15] == "ERR unknown com"
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
