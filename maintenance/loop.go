// Package maintenance runs the background health/sweep/deep-maintenance
// schedule of spec §4.8: periodic health checks, expired-key trimming,
// sort-sorted-set drift repair, and slowlog collection. The three tickers
// are modeled on worker.Pool's per-worker select loop (stop channel plus
// ticking work), wrapped in elog's LogOperation/LogDuration helpers.
package maintenance

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/elog"
	"github.com/bookn/propertysearch/propdoc"
)

// Default schedule intervals (spec §4.8).
const (
	DefaultHealthInterval = time.Minute
	DefaultSweepInterval  = time.Hour
	DefaultDeepInterval   = 6 * time.Hour

	// DefaultDriftTolerance is the small absolute tolerance named in spec
	// §4.8 step 4 and invariant I2.
	DefaultDriftTolerance = 5

	// availabilityRetention / pricingRetention are the "90 days" windows of
	// spec §4.8 step 3.
	availabilityRetention = 90 * 24 * time.Hour
	pricingRetention      = 90 * 24 * time.Hour

	// fragmentationPurgeThreshold is spec §4.8 step 1's 1.5 ratio.
	fragmentationPurgeThreshold = 1.5

	// snapshotStaleAfter is spec §4.8 step 5's "older than 1 hour".
	snapshotStaleAfter = time.Hour

	// slowlogTopN is how many slowlog entries are surfaced per deep cycle.
	slowlogTopN = 10
)

// sortIndexes is the eight property-level sorted indexes invariant I2
// names. The unit-level indexes hold unit ids, not property ids, so they
// are not checked against properties:all and drift repair skips them.
var sortIndexes = []string{
	propdoc.IdxPrice,
	propdoc.IdxRating,
	propdoc.IdxCreated,
	propdoc.IdxBookings,
	propdoc.IdxPopularity,
	propdoc.IdxMaxAdults,
	propdoc.IdxMaxChildren,
	propdoc.IdxMaxCapacity,
}

// Loop owns the three maintenance tickers.
type Loop struct {
	store datastore.Store
	log   *elog.ContextLogger

	healthInterval time.Duration
	sweepInterval  time.Duration
	deepInterval   time.Duration
	driftTolerance int64

	lastSnapshot time.Time

	stop chan struct{}
	done chan struct{}
}

// New builds a Loop with the spec's default intervals.
func New(store datastore.Store, log *elog.ContextLogger) *Loop {
	return &Loop{
		store:          store,
		log:            log,
		healthInterval: DefaultHealthInterval,
		sweepInterval:  DefaultSweepInterval,
		deepInterval:   DefaultDeepInterval,
		driftTolerance: DefaultDriftTolerance,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the three tickers in one goroutine, the same stop-channel
// shape as worker.Worker.Start.
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for it to do so.
func (l *Loop) Stop() {
	close(l.stop)
	<-l.done
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	health := time.NewTicker(l.healthInterval)
	sweep := time.NewTicker(l.sweepInterval)
	deep := time.NewTicker(l.deepInterval)
	defer health.Stop()
	defer sweep.Stop()
	defer deep.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-health.C:
			l.runStep(ctx, "health", l.Health)
		case <-sweep.C:
			l.runStep(ctx, "sweep", l.ExpiredKeySweep)
		case <-deep.C:
			l.runStep(ctx, "deep", l.DeepMaintenance)
		}
	}
}

func (l *Loop) runStep(ctx context.Context, name string, fn func(context.Context) error) {
	defer elog.LogDuration(l.log, "maintenance."+name)()
	if err := elog.LogOperation(l.log, "maintenance."+name, func() error { return fn(ctx) }); err != nil {
		l.log.WithError(err).Error("maintenance step failed: " + name)
	}
}

// HealthReport is the result of a health probe (spec §4.3 "ping round-trip
// under 200ms" carried into the maintenance loop's own health step).
type HealthReport struct {
	Healthy   bool
	LatencyMS int64
	Info      map[string]string
}

// Health runs the minute-scale liveness probe.
func (l *Loop) Health(ctx context.Context) error {
	start := time.Now()
	info, err := l.store.ServerInfo(ctx)
	if err != nil {
		return err
	}
	_ = HealthReport{
		Healthy:   true,
		LatencyMS: time.Since(start).Milliseconds(),
		Info:      info,
	}
	return nil
}

// ExpiredKeySweep is the hourly pass: spec §4.8 step 2's orphan temp-key
// scan plus step 3's availability/pricing trim, run together on the same
// cadence since both are cheap, bounded scans.
func (l *Loop) ExpiredKeySweep(ctx context.Context) error {
	if _, err := l.store.ScanDelete(ctx, "temp:*", 200); err != nil {
		return err
	}
	return l.trimExpiredTemporalData(ctx)
}

// trimExpiredTemporalData implements spec §4.8 step 3: trim availability
// ranges and pricing rules whose *end* tick has passed the retention
// window. Both key families encode "start:end[...]" members scored by
// start tick, so the end tick must be parsed out of the member itself
// rather than range-removed by score.
func (l *Loop) trimExpiredTemporalData(ctx context.Context) error {
	cutoff := propdoc.TicksFromTime(time.Now().Add(-availabilityRetention))
	if err := l.trimExpiredMembers(ctx, "avail:unit:*", cutoff); err != nil {
		return err
	}

	priceCutoff := propdoc.TicksFromTime(time.Now().Add(-pricingRetention))
	return l.trimExpiredMembers(ctx, "price:unit:*", priceCutoff)
}

// trimExpiredMembers scans every sorted set matching pattern and removes
// members whose second colon-delimited field (the end tick) is older than
// cutoff.
func (l *Loop) trimExpiredMembers(ctx context.Context, pattern string, cutoff propdoc.Ticks) error {
	cursor := uint64(0)
	for {
		batch, err := l.store.Scan(ctx, cursor, pattern, 100)
		if err != nil {
			return err
		}
		for _, key := range batch.Keys {
			if err := l.trimExpiredMembersOf(ctx, key, cutoff); err != nil {
				return err
			}
		}
		cursor = batch.Cursor
		if batch.Done {
			break
		}
	}
	return nil
}

func (l *Loop) trimExpiredMembersOf(ctx context.Context, key string, cutoff propdoc.Ticks) error {
	members, err := l.store.ZRange(ctx, key, 0, -1)
	if err != nil {
		return err
	}
	var expired []string
	for _, m := range members {
		parts := strings.SplitN(m, ":", 4)
		if len(parts) < 2 {
			continue
		}
		end, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		if propdoc.Ticks(end) < cutoff {
			expired = append(expired, m)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	return l.store.TxPipeline(ctx, func(tx datastore.Tx) error {
		tx.ZRem(key, expired...)
		return nil
	})
}

// DeepMaintenance runs the six-hourly pass: spec §4.8 steps 1, 4, 5, 6 (steps
// 2-3 run on the hourly sweep already, see ExpiredKeySweep).
func (l *Loop) DeepMaintenance(ctx context.Context) error {
	if err := l.checkFragmentation(ctx); err != nil {
		return err
	}
	if _, err := l.RepairDrift(ctx); err != nil {
		return err
	}
	if err := l.maybeRewriteAndSnapshot(ctx); err != nil {
		return err
	}
	return l.collectSlowlog(ctx)
}

func (l *Loop) checkFragmentation(ctx context.Context) error {
	info, err := l.store.ServerInfo(ctx)
	if err != nil {
		return err
	}
	ratio := parseFragmentationRatio(info)
	if ratio > fragmentationPurgeThreshold {
		l.log.WithField("ratio", ratio).Warn("memory fragmentation above threshold, requesting purge")
		_, err := l.store.Do(ctx, "MEMORY", "PURGE")
		return err
	}
	return nil
}

func parseFragmentationRatio(info map[string]string) float64 {
	v, err := strconv.ParseFloat(info["mem_fragmentation_ratio"], 64)
	if err != nil {
		return 0
	}
	return v
}

// DriftReport describes one sorted index's observed drift against
// properties:all.
type DriftReport struct {
	Index     string
	Extra     int64
	Missing   int64
	Repaired  bool
}

// RepairDrift implements spec §4.8 step 4 / invariant I2: for every sort
// sorted-set, if the count of members absent from properties:all plus the
// count of properties:all ids absent from the index exceeds tolerance,
// rebuild it from the property hashes.
func (l *Loop) RepairDrift(ctx context.Context) ([]DriftReport, error) {
	all, err := l.store.SMembers(ctx, propdoc.AllPropertiesKey)
	if err != nil {
		return nil, err
	}
	allSet := make(map[string]struct{}, len(all))
	for _, id := range all {
		allSet[id] = struct{}{}
	}

	var reports []DriftReport
	for _, idx := range sortIndexes {
		members, err := l.store.ZRange(ctx, idx, 0, -1)
		if err != nil {
			return nil, err
		}
		memberSet := make(map[string]struct{}, len(members))
		for _, m := range members {
			memberSet[m] = struct{}{}
		}

		var extra, missing int64
		for m := range memberSet {
			if _, ok := allSet[m]; !ok {
				extra++
			}
		}
		for id := range allSet {
			if _, ok := memberSet[id]; !ok {
				missing++
			}
		}

		report := DriftReport{Index: idx, Extra: extra, Missing: missing}
		if extra+missing > l.driftTolerance {
			if err := l.rebuildSortIndex(ctx, idx, all); err != nil {
				return nil, err
			}
			report.Repaired = true
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// rebuildSortIndex re-derives one sorted index's membership/scores directly
// from each property's hash, per spec §4.8 step 4.
func (l *Loop) rebuildSortIndex(ctx context.Context, idx string, ids []string) error {
	if err := l.store.Del(ctx, idx); err != nil {
		return err
	}
	for _, id := range ids {
		fields, err := l.store.HGetAll(ctx, propdoc.PropertyKey(id))
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			continue
		}
		doc, err := propdoc.FromFields(fields)
		if err != nil {
			continue
		}
		if !doc.IsActive || !doc.IsApproved {
			continue
		}
		score := scoreForIndex(idx, doc)
		if err := l.store.ZAdd(ctx, idx, datastore.ZMember{Member: id, Score: score}); err != nil {
			return err
		}
	}
	return nil
}

func scoreForIndex(idx string, d *propdoc.PropertyDocument) float64 {
	switch idx {
	case propdoc.IdxPrice:
		return d.MinPrice.Float64()
	case propdoc.IdxRating:
		return d.AverageRating
	case propdoc.IdxCreated:
		return float64(d.CreatedAt)
	case propdoc.IdxBookings:
		return float64(d.BookingCount)
	case propdoc.IdxPopularity:
		return d.PopularityScore
	case propdoc.IdxMaxAdults, propdoc.IdxMaxChildren, propdoc.IdxMaxCapacity:
		return float64(d.MaxCapacity)
	default:
		return 0
	}
}

// maybeRewriteAndSnapshot implements spec §4.8 step 5.
func (l *Loop) maybeRewriteAndSnapshot(ctx context.Context) error {
	if err := l.store.BgRewriteAOF(ctx); err != nil {
		return err
	}
	if l.lastSnapshot.IsZero() || time.Since(l.lastSnapshot) > snapshotStaleAfter {
		if err := l.store.BgSave(ctx); err != nil {
			return err
		}
		l.lastSnapshot = time.Now()
	}
	return nil
}

// collectSlowlog implements spec §4.8 step 6.
func (l *Loop) collectSlowlog(ctx context.Context) error {
	entries, err := l.store.Slowlog(ctx, slowlogTopN)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		l.log.WithField("count", len(entries)).Info("slowlog entries surfaced: " + strings.Join(entries, "; "))
	}
	return nil
}
