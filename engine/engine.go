// Package engine wires connmgr -> datastore -> {maintainer, query.Planner,
// searchcache, maintenance.Loop, rebuilder} and exposes exactly the public
// operations of spec §6 as its method set: search, the nine on_* mutation
// hooks, rebuild_index, and optimize_database. Orchestration shape follows
// the teacher's top-level coordinator: one config struct, one constructor,
// explicit Start/Stop lifecycle.
package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/bookn/propertysearch/apperr"
	"github.com/bookn/propertysearch/connmgr"
	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/docbuilder"
	"github.com/bookn/propertysearch/elog"
	"github.com/bookn/propertysearch/enginecfg"
	"github.com/bookn/propertysearch/luaengine"
	"github.com/bookn/propertysearch/maintainer"
	"github.com/bookn/propertysearch/maintenance"
	"github.com/bookn/propertysearch/metrics"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
	"github.com/bookn/propertysearch/query"
	"github.com/bookn/propertysearch/rebuilder"
	"github.com/bookn/propertysearch/searchcache"
)

// Engine is the denormalized property-search engine's public entrypoint.
type Engine struct {
	cfg     enginecfg.EngineConfig
	connMgr *connmgr.Manager
	store   datastore.Store
	oracles oracle.Oracles

	builder     *docbuilder.Builder
	maintainer  *maintainer.Maintainer
	planner     *query.Planner
	cache       *searchcache.Cache
	maintenance *maintenance.Loop
	rebuilder   *rebuilder.Rebuilder

	log     *elog.ContextLogger
	metrics *metrics.Metrics
}

// observerAdapter bridges connmgr.Observer notifications into elog, the
// same role a telemetry sink plays in spec §4.3.
type observerAdapter struct {
	log *elog.ContextLogger
}

func (o observerAdapter) OnConnectionFailed(err error) { o.log.WithError(err).Warn("datastore connection failed") }
func (o observerAdapter) OnRestored()                  { o.log.Info("datastore connection restored") }
func (o observerAdapter) OnServerError(err error)       { o.log.WithError(err).Error("datastore server error") }

// New builds an Engine from configuration and the external oracle
// collaborators, but does not connect — call Start.
func New(cfg enginecfg.EngineConfig, oracles oracle.Oracles, baseLogger *elog.ContextLogger) (*Engine, error) {
	if baseLogger == nil {
		baseLogger = elog.With(elog.New(elog.DefaultConfig()), nil)
	}

	connCfg := connmgr.Config{
		RedisURL:              cfg.RedisURL,
		ReconnectInitialDelay: cfg.ReconnectInitialWait,
		ReconnectMaxDelay:     cfg.ReconnectMaxWait,
		HealthCheckInterval:   cfg.HealthCheckInterval,
		HealthCheckTimeout:    200 * time.Millisecond,
		MaxConsecutiveFails:   5,
	}
	connMgr := connmgr.New(connCfg, observerAdapter{log: baseLogger})

	lua, err := luaengine.New()
	if err != nil {
		return nil, apperr.Wrap(apperr.ScriptError, "compile complex filter script", err)
	}

	builder := docbuilder.New(oracles)

	planner := query.NewPlanner(
		query.TextStrategy{},
		query.ComplexStrategy{Lua: lua},
		query.GeoStrategy{},
		query.SimpleStrategy{},
	)

	e := &Engine{
		cfg:     cfg,
		connMgr: connMgr,
		oracles: oracles,
		builder: builder,
		planner: planner,
		log:     baseLogger,
		metrics: metrics.New(cfg.MetricsNamespace),
	}
	return e, nil
}

// Start connects to the datastore and wires every component that needs a
// live Store, then launches the maintenance loop.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.connMgr.Start(ctx); err != nil {
		return apperr.Wrap(apperr.Unavailable, "connect to datastore", err)
	}
	client, err := e.connMgr.Client()
	if err != nil {
		return err
	}

	e.store = datastore.NewRedisStore(client)
	e.maintainer = maintainer.NewWithGateSize(e.store, e.cfg.WriteGateSize)
	e.cache = searchcache.New(e.store)
	e.maintenance = maintenance.New(e.store, e.log)
	e.rebuilder = rebuilder.New(e.store, e.maintainer, e.builder, e.oracles, e.log)

	e.maintenance.Start(ctx)
	return nil
}

// Stop halts the maintenance loop and the connection manager.
func (e *Engine) Stop() {
	if e.maintenance != nil {
		e.maintenance.Stop()
	}
	e.connMgr.Stop()
}

// currentEpoch reads the index-version epoch used in cache-key derivation
// (spec I7).
func (e *Engine) currentEpoch(ctx context.Context) int64 {
	epoch, _, _ := e.store.StringGet(ctx, propdoc.IndexEpochKey)
	n, _ := parseEpoch(epoch)
	return n
}

func parseEpoch(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// Search executes a search request end to end: cache lookup, strategy
// selection/execution on miss, cache population. Every successful result
// is cached, including one a strategy produced on its fallback path (the
// Lua-to-Go fallback in Complex, the manual scan in Text); strategies do
// not report which path they took.
func (e *Engine) Search(ctx context.Context, req query.Request) (query.Result, error) {
	req = req.Normalize()
	start := time.Now()
	strategy := e.planner.Select(req)
	defer func() {
		e.metrics.SearchLatency.WithLabelValues(strategy.Name()).Observe(time.Since(start).Seconds())
	}()
	e.metrics.SearchCount.WithLabelValues(strategy.Name()).Inc()

	epoch := e.currentEpoch(ctx)
	fp := searchcache.Fingerprint(req, epoch)

	if res, ok := e.cacheGet(ctx, fp); ok {
		return res, nil
	}

	res, err := strategy.Execute(ctx, req, e.store, e.oracles)
	if err != nil {
		e.metrics.SearchErrors.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return query.Result{}, err
	}

	e.cacheSet(ctx, fp, res)
	return res, nil
}

// OnPropertyCreated builds a fresh document and indexes it.
func (e *Engine) OnPropertyCreated(ctx context.Context, propertyID string) error {
	doc, err := e.builder.Build(ctx, propertyID)
	if err != nil {
		return err
	}
	return e.recordWrite("on_property_created", e.maintainer.OnPropertyCreated(ctx, doc))
}

// OnPropertyUpdated rebuilds the document and diffs it against the stored
// one.
func (e *Engine) OnPropertyUpdated(ctx context.Context, propertyID string) error {
	doc, err := e.builder.Build(ctx, propertyID)
	if err != nil {
		return err
	}
	return e.recordWrite("on_property_updated", e.maintainer.OnPropertyUpdated(ctx, doc))
}

// OnPropertyDeleted removes a property and every key derived from it.
func (e *Engine) OnPropertyDeleted(ctx context.Context, propertyID string) error {
	return e.recordWrite("on_property_deleted", e.maintainer.OnPropertyDeleted(ctx, propertyID))
}

// OnUnitCreated/Updated/Deleted mirror the maintainer's unit hooks.
func (e *Engine) OnUnitCreated(ctx context.Context, unitID, propertyID string) error {
	unit, err := e.oracles.Units.GetUnit(ctx, unitID)
	if err != nil {
		return err
	}
	return e.recordWrite("on_unit_created", e.maintainer.OnUnitCreated(ctx, toUnitDocument(unit)))
}

func (e *Engine) OnUnitUpdated(ctx context.Context, unitID, propertyID string) error {
	unit, err := e.oracles.Units.GetUnit(ctx, unitID)
	if err != nil {
		return err
	}
	return e.recordWrite("on_unit_updated", e.maintainer.OnUnitUpdated(ctx, toUnitDocument(unit)))
}

func (e *Engine) OnUnitDeleted(ctx context.Context, unitID, propertyID string) error {
	return e.recordWrite("on_unit_deleted", e.maintainer.OnUnitDeleted(ctx, unitID, propertyID))
}

// OnAvailabilityChanged replaces a unit's availability ranges wholesale.
func (e *Engine) OnAvailabilityChanged(ctx context.Context, unitID, propertyID string, ranges []propdoc.AvailabilityRange) error {
	return e.recordWrite("on_availability_changed", e.maintainer.OnAvailabilityChanged(ctx, unitID, propertyID, ranges))
}

// OnPricingRuleChanged replaces a unit's pricing rules wholesale.
func (e *Engine) OnPricingRuleChanged(ctx context.Context, unitID, propertyID string, rules []propdoc.PricingRule) error {
	return e.recordWrite("on_pricing_rule_changed", e.maintainer.OnPricingRuleChanged(ctx, unitID, propertyID, rules))
}

// OnDynamicFieldChanged sets or clears a single dynamic field on a
// property. isAdd=false clears the field back to empty, matching the
// add/remove semantics spec §6 names.
func (e *Engine) OnDynamicFieldChanged(ctx context.Context, propertyID, fieldName, fieldValue string, isAdd bool) error {
	value := fieldValue
	if !isAdd {
		value = ""
	}
	return e.recordWrite("on_dynamic_field_changed", e.maintainer.OnDynamicFieldChanged(ctx, propertyID, fieldName, value))
}

// RebuildIndex runs a full background rebuild and advances the
// index-version epoch once on completion.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	err := e.rebuilder.Rebuild(ctx)
	if err == nil {
		e.metrics.RebuildCount.Inc()
	}
	return err
}

// OptimizeDatabase runs one deep-maintenance pass on demand, outside the
// loop's own schedule (spec §6 "optimize_database").
func (e *Engine) OptimizeDatabase(ctx context.Context) error {
	return e.maintenance.DeepMaintenance(ctx)
}

func (e *Engine) recordWrite(op string, err error) error {
	if err != nil {
		e.metrics.IndexErrors.WithLabelValues(op).Inc()
		return err
	}
	e.metrics.IndexWrites.WithLabelValues(op).Inc()
	return nil
}

func toUnitDocument(u *oracle.Unit) *propdoc.UnitDocument {
	return &propdoc.UnitDocument{
		ID:          u.ID,
		PropertyID:  u.PropertyID,
		UnitTypeID:  u.UnitTypeID,
		Name:        u.Name,
		MaxCapacity: u.MaxAdults + u.MaxChildren,
		MaxAdults:   u.MaxAdults,
		MaxChildren: u.MaxChildren,
		Currency:    u.Currency,
	}
}

func (e *Engine) cacheGet(ctx context.Context, fp string) (query.Result, bool) {
	res, ok := e.cache.Get(ctx, fp)
	tier := "l1"
	if ok {
		e.metrics.ObserveCacheHit(tier)
	} else {
		e.metrics.ObserveCacheMiss(tier)
	}
	return res, ok
}

func (e *Engine) cacheSet(ctx context.Context, fp string, res query.Result) {
	_ = e.cache.Set(ctx, fp, res)
}
