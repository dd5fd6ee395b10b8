// Package searchcache implements the two-tier cache in front of the query
// executor: an in-process L1 bounded map for hot pages and an L2 tier
// backed by the shared datastore so other processes reuse the same
// computed page. Both tiers are keyed by a fingerprint over the
// canonicalized request plus the current index-version epoch, so bumping
// the epoch invalidates every cached page without an explicit sweep.
package searchcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"sync"
	"time"

	"github.com/bookn/propertysearch/apperr"
	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/propdoc"
	"github.com/bookn/propertysearch/query"
)

// DefaultL1TTL / DefaultL2TTL are spec §4.7's tier lifetimes.
const (
	DefaultL1TTL         = time.Minute
	DefaultL2TTL         = 10 * time.Minute
	DefaultL1MaxEntries  = 1000
)

// Cache is the two-tier search-result cache.
type Cache struct {
	store     datastore.Store
	l1TTL     time.Duration
	l2TTL     time.Duration
	l1MaxSize int

	mu  sync.Mutex
	l1  map[string]l1Entry
}

type l1Entry struct {
	result  query.Result
	expires time.Time
}

// New constructs a Cache with the spec's default tier lifetimes.
func New(store datastore.Store) *Cache {
	return &Cache{
		store:     store,
		l1TTL:     DefaultL1TTL,
		l2TTL:     DefaultL2TTL,
		l1MaxSize: DefaultL1MaxEntries,
		l1:        make(map[string]l1Entry),
	}
}

// Get returns a cached Result for fingerprint, checking L1 then L2. A
// decode failure on the L2 tier is treated as a miss and evicts the
// offending key, rather than surfacing an error to the caller.
func (c *Cache) Get(ctx context.Context, fingerprint string) (query.Result, bool) {
	if res, ok := c.getL1(fingerprint); ok {
		return res, true
	}

	raw, found, err := c.store.StringGet(ctx, propdoc.CacheSearchL2Key(fingerprint))
	if err != nil || !found {
		return query.Result{}, false
	}

	var res query.Result
	if err := gob.NewDecoder(bytes.NewReader([]byte(raw))).Decode(&res); err != nil {
		c.store.Del(ctx, propdoc.CacheSearchL2Key(fingerprint))
		return query.Result{}, false
	}

	c.putL1(fingerprint, res)
	return res, true
}

// Set writes result into both tiers.
func (c *Cache) Set(ctx context.Context, fingerprint string, result query.Result) error {
	c.putL1(fingerprint, result)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(result); err != nil {
		return apperr.Wrap(apperr.EncodingError, "encode cached search result", err)
	}
	return c.store.StringSet(ctx, propdoc.CacheSearchL2Key(fingerprint), buf.String(), c.l2TTL)
}

func (c *Cache) getL1(fingerprint string) (query.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.l1[fingerprint]
	if !ok {
		return query.Result{}, false
	}
	if time.Now().After(entry.expires) {
		delete(c.l1, fingerprint)
		return query.Result{}, false
	}
	return entry.result, true
}

func (c *Cache) putL1(fingerprint string, result query.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.l1) >= c.l1MaxSize {
		c.evictOneLocked()
	}
	c.l1[fingerprint] = l1Entry{result: result, expires: time.Now().Add(c.l1TTL)}
}

// evictOneLocked drops the first expired entry it finds, or an arbitrary
// entry if nothing has expired yet. Called with c.mu held.
func (c *Cache) evictOneLocked() {
	now := time.Now()
	for k, v := range c.l1 {
		if now.After(v.expires) {
			delete(c.l1, k)
			return
		}
	}
	for k := range c.l1 {
		delete(c.l1, k)
		return
	}
}
