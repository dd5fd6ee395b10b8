package datastore

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bookn/propertysearch/apperr"
)

// redisTx queues commands onto a redis.Pipeliner; nothing reaches the
// server until TxPipeline's Exec call, and then atomically (MULTI/EXEC).
type redisTx struct {
	pipe redis.Pipeliner
}

func (t *redisTx) HSet(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	t.pipe.HSet(context.Background(), key, args...)
}

func (t *redisTx) HDel(key string, fields ...string) {
	if len(fields) == 0 {
		return
	}
	t.pipe.HDel(context.Background(), key, fields...)
}

func (t *redisTx) SAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	t.pipe.SAdd(context.Background(), key, args...)
}

func (t *redisTx) SRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	t.pipe.SRem(context.Background(), key, args...)
}

func (t *redisTx) ZAdd(key string, members ...ZMember) {
	if len(members) == 0 {
		return
	}
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	t.pipe.ZAdd(context.Background(), key, zs...)
}

func (t *redisTx) ZRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	t.pipe.ZRem(context.Background(), key, args...)
}

func (t *redisTx) GeoAdd(key string, points ...GeoPoint) {
	if len(points) == 0 {
		return
	}
	locs := make([]*redis.GeoLocation, len(points))
	for i, p := range points {
		locs[i] = &redis.GeoLocation{Name: p.Member, Longitude: p.Longitude, Latitude: p.Latitude}
	}
	t.pipe.GeoAdd(context.Background(), key, locs...)
}

func (t *redisTx) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	t.pipe.Del(context.Background(), keys...)
}

func (t *redisTx) Incr(key string) {
	t.pipe.Incr(context.Background(), key)
}

func (t *redisTx) StringSet(key, value string, ttl time.Duration) {
	t.pipe.Set(context.Background(), key, value, ttl)
}

func (t *redisTx) Publish(channel, payload string) {
	t.pipe.Publish(context.Background(), channel, payload)
}

// TxPipeline opens a MULTI/EXEC transaction, lets fn queue commands
// against it, and executes the bundle atomically. A panic or returned
// error from fn discards the queued commands without sending anything.
func (s *redisStore) TxPipeline(ctx context.Context, fn func(Tx) error) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(&redisTx{pipe: pipe})
	})
	if err != nil {
		return apperr.Wrap(apperr.ConflictingState, "transaction failed", err).WithCommand("MULTI/EXEC")
	}
	return nil
}

func parseInfo(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}
