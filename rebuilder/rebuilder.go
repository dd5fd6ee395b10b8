// Package rebuilder implements the background full re-projection of spec
// §4.9: clear every key family under the engine's known prefixes, then
// re-create documents in chunks from the authoritative store, advancing the
// index-version epoch exactly once on completion.
package rebuilder

import (
	"context"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/docbuilder"
	"github.com/bookn/propertysearch/elog"
	"github.com/bookn/propertysearch/maintainer"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

// DefaultChunkSize is spec §4.9's "chunks of ~50".
const DefaultChunkSize = 50

// keyFamilyPatterns is every SCAN pattern the rebuilder clears before
// re-projecting, covering the key families of spec §6. properties:all
// itself is a single set key, cleared with a direct Del rather than a scan.
var keyFamilyPatterns = []string{
	"property:*",
	"unit:*",
	"tag:*",
	"dynamic_value:*",
	"avail:*",
	"pricing:*",
	"price:*",
	"geo:*",
	"cache:search:*",
	"cache:data:*",
}

// Rebuilder owns the clear-then-reproject cycle.
type Rebuilder struct {
	store      datastore.Store
	maintainer *maintainer.Maintainer
	builder    *docbuilder.Builder
	oracles    oracle.Oracles
	log        *elog.ContextLogger
	chunkSize  int
}

// New builds a Rebuilder with the spec's default chunk size.
func New(store datastore.Store, m *maintainer.Maintainer, builder *docbuilder.Builder, oracles oracle.Oracles, log *elog.ContextLogger) *Rebuilder {
	return &Rebuilder{
		store:      store,
		maintainer: m,
		builder:    builder,
		oracles:    oracles,
		log:        log,
		chunkSize:  DefaultChunkSize,
	}
}

// Rebuild clears every engine-owned key and re-creates a document for
// every active, approved property in the authoritative store, yielding the
// write gate between chunks (spec §5: "must yield the write gate every
// batch" — the maintainer's own write gate bounds concurrency here, so
// yielding means simply not holding any lock across chunk boundaries).
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	if err := r.clear(ctx); err != nil {
		return err
	}

	offset := 0
	total := 0
	for {
		ids, err := r.oracles.Properties.ListActiveApprovedPropertyIDs(ctx, offset, r.chunkSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			doc, err := r.builder.Build(ctx, id)
			if err != nil {
				r.log.WithError(err).WithField("property_id", id).Warn("rebuild: skipping property, document build failed")
				continue
			}
			if err := r.maintainer.OnPropertyCreated(ctx, doc); err != nil {
				r.log.WithError(err).WithField("property_id", id).Warn("rebuild: skipping property, index write failed")
				continue
			}
			total++
		}

		if len(ids) < r.chunkSize {
			break
		}
		offset += r.chunkSize
	}

	if _, err := r.store.Incr(ctx, propdoc.IndexEpochKey); err != nil {
		return err
	}
	if err := r.store.Publish(ctx, propdoc.ChannelIndexRebuilt, ""); err != nil {
		return err
	}
	r.log.WithField("property_count", total).Info("rebuild_index completed")
	return nil
}

// clear pattern-scoped-deletes every key family the engine owns, in
// batches, never issuing a blocking KEYS command.
func (r *Rebuilder) clear(ctx context.Context) error {
	if err := r.store.Del(ctx, propdoc.AllPropertiesKey); err != nil {
		return err
	}
	for _, pattern := range keyFamilyPatterns {
		if _, err := r.store.ScanDelete(ctx, pattern, 200); err != nil {
			return err
		}
	}
	return nil
}
