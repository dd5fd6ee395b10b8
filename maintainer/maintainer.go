// Package maintainer keeps every denormalized key family in sync with
// property, unit, availability, pricing, and dynamic-field changes. Every
// exported On* method is idempotent under retry and atomic across the
// keys it touches.
package maintainer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bookn/propertysearch/apperr"
	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/propdoc"
)

// DefaultWriteGateSize is the default bounded write concurrency (spec §5).
const DefaultWriteGateSize = 5

// Maintainer applies index writes transactionally, serialized per
// property id and bounded in overall concurrency by a write gate.
type Maintainer struct {
	store     datastore.Store
	writeGate *semaphore.Weighted
	ids       *keyedMutex
}

// New builds a Maintainer with the default write-gate size.
func New(store datastore.Store) *Maintainer {
	return NewWithGateSize(store, DefaultWriteGateSize)
}

// NewWithGateSize builds a Maintainer with a custom write-gate size, for
// tests and deployments that need a different bound.
func NewWithGateSize(store datastore.Store, gateSize int) *Maintainer {
	return &Maintainer{
		store:     store,
		writeGate: semaphore.NewWeighted(int64(gateSize)),
		ids:       newKeyedMutex(),
	}
}

// withWriteSlot acquires the write gate, runs fn, and releases the slot
// whether or not fn returns an error.
func (m *Maintainer) withWriteSlot(ctx context.Context, fn func() error) error {
	if err := m.writeGate.Acquire(ctx, 1); err != nil {
		return apperr.Wrap(apperr.Cancelled, "write gate acquire", err)
	}
	defer m.writeGate.Release(1)
	return fn()
}

// commitOrRepair runs fn inside a single retry: if fn fails once, it is
// retried once more; a second failure surfaces IndexFault and adds id to
// the repair-queue set (propdoc.RepairQueueKey). Nothing in this module
// reads that set back or drains it.
func (m *Maintainer) commitOrRepair(ctx context.Context, id string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	err = fn()
	if err == nil {
		return nil
	}
	if qerr := m.enqueueRepair(ctx, id); qerr != nil {
		return apperr.Wrap(apperr.IndexFault, "index write failed and repair enqueue failed", err)
	}
	return apperr.Wrap(apperr.IndexFault, "index write failed twice, queued for repair", err)
}

func (m *Maintainer) enqueueRepair(ctx context.Context, id string) error {
	return m.store.SAdd(ctx, propdoc.RepairQueueKey, id)
}

func (m *Maintainer) readDocument(ctx context.Context, id string) (*propdoc.PropertyDocument, error) {
	fields, err := m.store.HGetAll(ctx, propdoc.PropertyKey(id))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return propdoc.FromFields(fields)
}

// OnPropertyCreated writes a brand new property document and all of its
// derived keys. Lifecycle: Absent -> Indexed.
func (m *Maintainer) OnPropertyCreated(ctx context.Context, doc *propdoc.PropertyDocument) error {
	unlock := m.ids.Lock(doc.ID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		return m.commitOrRepair(ctx, doc.ID, func() error {
			return m.writeProperty(ctx, nil, doc, propdoc.ChannelPropertyCreated)
		})
	})
}

// OnPropertyUpdated diffs the stored document against doc and writes only
// the keys whose membership actually changed. Lifecycle: Indexed ->
// Indexed'.
func (m *Maintainer) OnPropertyUpdated(ctx context.Context, doc *propdoc.PropertyDocument) error {
	unlock := m.ids.Lock(doc.ID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		return m.commitOrRepair(ctx, doc.ID, func() error {
			old, err := m.readDocument(ctx, doc.ID)
			if err != nil {
				return err
			}
			return m.writeProperty(ctx, old, doc, propdoc.ChannelPropertyUpdated)
		})
	})
}

// OnPropertyDeleted removes a property and every key derived from it.
// Lifecycle: Indexed -> Absent. A property deleted while being updated
// still yields delete semantics, since the delete always reads the latest
// persisted document under the same per-id lock.
func (m *Maintainer) OnPropertyDeleted(ctx context.Context, propertyID string) error {
	unlock := m.ids.Lock(propertyID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		return m.commitOrRepair(ctx, propertyID, func() error {
			old, err := m.readDocument(ctx, propertyID)
			if err != nil {
				return err
			}
			if old == nil {
				return nil
			}
			return m.deleteProperty(ctx, old)
		})
	})
}

func (m *Maintainer) writeProperty(ctx context.Context, old, updated *propdoc.PropertyDocument, channel string) error {
	removals, additions := diffTags(old, updated)
	fields := propdoc.ToFields(updated)
	snapshot, err := propdoc.EncodeSnapshot(updated)
	if err != nil {
		return apperr.Wrap(apperr.EncodingError, "encode snapshot", err)
	}

	err = m.store.TxPipeline(ctx, func(tx datastore.Tx) error {
		tx.HSet(propdoc.PropertyKey(updated.ID), fields)
		tx.StringSet(propdoc.PropertyBinKey(updated.ID), string(snapshot), 0)
		tx.SAdd(propdoc.AllPropertiesKey, updated.ID)

		for key, score := range sortIndexMemberships(updated) {
			tx.ZAdd(key, datastore.ZMember{Member: updated.ID, Score: score})
		}

		if updated.Latitude != 0 || updated.Longitude != 0 {
			tx.GeoAdd(propdoc.GeoAllKey, datastore.GeoPoint{Member: updated.ID, Longitude: updated.Longitude, Latitude: updated.Latitude})
			if updated.City != "" {
				tx.GeoAdd(propdoc.GeoCityKey(updated.City), datastore.GeoPoint{Member: updated.ID, Longitude: updated.Longitude, Latitude: updated.Latitude})
			}
		}

		for _, key := range removals {
			tx.SRem(key, updated.ID)
		}
		for _, key := range additions {
			tx.SAdd(key, updated.ID)
		}

		tx.Incr(propdoc.IndexEpochKey)
		tx.Publish(channel, updated.ID)
		return nil
	})
	return err
}

func (m *Maintainer) deleteProperty(ctx context.Context, old *propdoc.PropertyDocument) error {
	removals, _ := diffTags(old, nil)

	err := m.store.TxPipeline(ctx, func(tx datastore.Tx) error {
		tx.Del(propdoc.PropertyKey(old.ID), propdoc.PropertyBinKey(old.ID), propdoc.PropertyMetaKey(old.ID))
		tx.SRem(propdoc.AllPropertiesKey, old.ID)

		for key := range sortIndexMemberships(old) {
			tx.ZRem(key, old.ID)
		}

		tx.ZRem(propdoc.GeoAllKey, old.ID)
		if old.City != "" {
			tx.ZRem(propdoc.GeoCityKey(old.City), old.ID)
		}

		for _, key := range removals {
			tx.SRem(key, old.ID)
		}

		tx.Del(propdoc.PropertyUnitsKey(old.ID))

		tx.Incr(propdoc.IndexEpochKey)
		tx.Publish(propdoc.ChannelPropertyDeleted, old.ID)
		return nil
	})
	return err
}

// OnUnitCreated adds a unit to its owning property's unit set and unit-
// level indexes.
func (m *Maintainer) OnUnitCreated(ctx context.Context, unit *propdoc.UnitDocument) error {
	unlock := m.ids.Lock(unit.PropertyID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		return m.commitOrRepair(ctx, unit.PropertyID, func() error {
			return m.writeUnit(ctx, unit, propdoc.ChannelUnitCreated)
		})
	})
}

// OnUnitUpdated rewrites a unit's fields and indexes.
func (m *Maintainer) OnUnitUpdated(ctx context.Context, unit *propdoc.UnitDocument) error {
	unlock := m.ids.Lock(unit.PropertyID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		return m.commitOrRepair(ctx, unit.PropertyID, func() error {
			return m.writeUnit(ctx, unit, propdoc.ChannelUnitUpdated)
		})
	})
}

// OnUnitDeleted removes a unit and its derived keys.
func (m *Maintainer) OnUnitDeleted(ctx context.Context, unitID, propertyID string) error {
	unlock := m.ids.Lock(propertyID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		return m.commitOrRepair(ctx, propertyID, func() error {
			return m.store.TxPipeline(ctx, func(tx datastore.Tx) error {
				tx.Del(propdoc.UnitKey(unitID))
				tx.SRem(propdoc.PropertyUnitsKey(propertyID), unitID)
				tx.ZRem(propdoc.IdxUnitMaxAdults, unitID)
				tx.ZRem(propdoc.IdxUnitMaxChildren, unitID)
				tx.SRem(propdoc.TagUnitHasAdultsKey, unitID)
				tx.SRem(propdoc.TagUnitHasChildrenKey, unitID)
				tx.Incr(propdoc.IndexEpochKey)
				tx.Publish(propdoc.ChannelUnitDeleted, unitID)
				return nil
			})
		})
	})
}

func (m *Maintainer) writeUnit(ctx context.Context, unit *propdoc.UnitDocument, channel string) error {
	fields := map[string]string{
		"id":           unit.ID,
		"property_id":  unit.PropertyID,
		"unit_type_id": unit.UnitTypeID,
		"name":         unit.Name,
		"max_capacity": fmt.Sprintf("%d", unit.MaxCapacity),
		"max_adults":   fmt.Sprintf("%d", unit.MaxAdults),
		"max_children": fmt.Sprintf("%d", unit.MaxChildren),
		"base_price":   fmt.Sprintf("%d", int64(unit.BasePrice)),
		"currency":     unit.Currency,
	}

	return m.store.TxPipeline(ctx, func(tx datastore.Tx) error {
		tx.HSet(propdoc.UnitKey(unit.ID), fields)
		tx.SAdd(propdoc.PropertyUnitsKey(unit.PropertyID), unit.ID)

		if unit.UnitTypeID != "" {
			tx.SAdd(propdoc.TagUnitTypeKey(unit.UnitTypeID), unit.ID)
		}
		tx.ZAdd(propdoc.IdxUnitMaxAdults, datastore.ZMember{Member: unit.ID, Score: float64(unit.MaxAdults)})
		tx.ZAdd(propdoc.IdxUnitMaxChildren, datastore.ZMember{Member: unit.ID, Score: float64(unit.MaxChildren)})

		if unit.MaxAdults > 0 {
			tx.SAdd(propdoc.TagUnitHasAdultsKey, unit.ID)
			if unit.UnitTypeID != "" {
				tx.SAdd(propdoc.TagUnitTypeHasAdultsKey, unit.UnitTypeID)
			}
		}
		if unit.MaxChildren > 0 {
			tx.SAdd(propdoc.TagUnitHasChildrenKey, unit.ID)
			if unit.UnitTypeID != "" {
				tx.SAdd(propdoc.TagUnitTypeHasChildrenKey, unit.UnitTypeID)
			}
		}

		tx.Incr(propdoc.IndexEpochKey)
		tx.Publish(channel, unit.ID)
		return nil
	})
}

// OnAvailabilityChanged replaces a unit's availability intervals wholesale
// with ranges.
func (m *Maintainer) OnAvailabilityChanged(ctx context.Context, unitID, propertyID string, ranges []propdoc.AvailabilityRange) error {
	unlock := m.ids.Lock(propertyID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		return m.commitOrRepair(ctx, propertyID, func() error {
			existing, err := m.store.ZRange(ctx, propdoc.AvailUnitKey(unitID), 0, -1)
			if err != nil {
				return err
			}
			return m.store.TxPipeline(ctx, func(tx datastore.Tx) error {
				if len(existing) > 0 {
					tx.ZRem(propdoc.AvailUnitKey(unitID), existing...)
				}
				for _, r := range ranges {
					member := fmt.Sprintf("%d:%d", int64(r.Start), int64(r.End))
					tx.ZAdd(propdoc.AvailUnitKey(unitID), datastore.ZMember{Member: member, Score: float64(r.Start)})
				}
				tx.SAdd(propdoc.AvailPropertyKey(propertyID), unitID)
				tx.Incr(propdoc.IndexEpochKey)
				tx.Publish(propdoc.ChannelAvailability, unitID)
				return nil
			})
		})
	})
}

// OnPricingRuleChanged replaces a unit's pricing rules wholesale with
// rules.
func (m *Maintainer) OnPricingRuleChanged(ctx context.Context, unitID, propertyID string, rules []propdoc.PricingRule) error {
	unlock := m.ids.Lock(propertyID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		return m.commitOrRepair(ctx, propertyID, func() error {
			existing, err := m.store.ZRange(ctx, propdoc.PriceUnitKey(unitID), 0, -1)
			if err != nil {
				return err
			}
			return m.store.TxPipeline(ctx, func(tx datastore.Tx) error {
				if len(existing) > 0 {
					tx.ZRem(propdoc.PriceUnitKey(unitID), existing...)
				}
				for _, r := range rules {
					member := fmt.Sprintf("%d:%d:%d:%s", int64(r.Start), int64(r.End), int64(r.Price), r.Currency)
					tx.ZAdd(propdoc.PriceUnitKey(unitID), datastore.ZMember{Member: member, Score: float64(r.Start)})
				}
				tx.Incr(propdoc.IndexEpochKey)
				tx.Publish(propdoc.ChannelPricing, unitID)
				return nil
			})
		})
	})
}

// OnDynamicFieldChanged updates a single dynamic field on a property and
// maintains the corresponding dynamic_value:{field}:{value} tag set.
func (m *Maintainer) OnDynamicFieldChanged(ctx context.Context, propertyID, field, value string) error {
	unlock := m.ids.Lock(propertyID)
	defer unlock()

	return m.withWriteSlot(ctx, func() error {
		old, err := m.readDocument(ctx, propertyID)
		if err != nil {
			return err
		}
		if old == nil {
			return apperr.New(apperr.NotFound, "property not found: "+propertyID)
		}
		return m.commitOrRepair(ctx, propertyID, func() error {
			updated := old.Clone()
			if updated.DynamicFields == nil {
				updated.DynamicFields = map[string]string{}
			}
			updated.DynamicFields[field] = value
			updated.LastModifiedTicks = propdoc.TicksFromTime(time.Now())
			return m.writeProperty(ctx, old, updated, propdoc.ChannelDynamic)
		})
	})
}
