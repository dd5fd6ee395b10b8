// Package connmgr owns the single logical connection to the datastore:
// dialing, health checking, and exponential-backoff reconnection, so the
// rest of the engine never has to think about connection lifecycle.
package connmgr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/bookn/propertysearch/apperr"
)

// State is the connection's externally-visible health state.
type State int

const (
	StateConnecting State = iota
	StateHealthy
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHealthy:
		return "healthy"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Observer receives connection lifecycle notifications, the way a
// telemetry sink does in the rest of the engine.
type Observer interface {
	OnConnectionFailed(err error)
	OnRestored()
	OnServerError(err error)
}

// NopObserver implements Observer with no-ops, useful as a default.
type NopObserver struct{}

func (NopObserver) OnConnectionFailed(error) {}
func (NopObserver) OnRestored()              {}
func (NopObserver) OnServerError(error)      {}

// Config configures the connection manager's reconnect and health-check
// behavior. Field names mirror the shape of a Redis URL-based config plus
// EVE's reconnect-parameter naming (ReconnectInitialDelay/MaxDelay/
// BackoffFactor).
type Config struct {
	RedisURL string

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	HealthCheckInterval   time.Duration
	HealthCheckTimeout    time.Duration
	MaxConsecutiveFails   int
}

// DefaultConfig returns the spec's documented defaults: backoff capped at
// ~30s, health round-trip budget 200ms.
func DefaultConfig(redisURL string) Config {
	return Config{
		RedisURL:              redisURL,
		ReconnectInitialDelay: 100 * time.Millisecond,
		ReconnectMaxDelay:     30 * time.Second,
		HealthCheckInterval:   time.Minute,
		HealthCheckTimeout:    200 * time.Millisecond,
		MaxConsecutiveFails:   5,
	}
}

// Manager owns one *redis.Client and supervises its health. Every other
// component reads the client via Manager.Client once Manager reports
// StateHealthy; a client obtained while StateUnavailable must fail fast
// rather than risk a partial write.
type Manager struct {
	cfg      Config
	observer Observer

	mu     sync.RWMutex
	client *redis.Client
	state  atomic.Int32

	consecutiveFails atomic.Int32

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Manager but does not connect; call Start to dial and begin
// the health-check loop.
func New(cfg Config, observer Observer) *Manager {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Manager{
		cfg:      cfg,
		observer: observer,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start dials the datastore with retrying backoff and launches the
// health-check ticker in the background. It blocks until the first
// successful connection or ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	m.state.Store(int32(StateConnecting))
	if err := m.connectWithBackoff(ctx); err != nil {
		return err
	}
	m.state.Store(int32(StateHealthy))
	go m.healthLoop()
	return nil
}

func (m *Manager) connectWithBackoff(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.ReconnectInitialDelay
	bo.MaxInterval = m.cfg.ReconnectMaxDelay
	bo.MaxElapsedTime = 0 // retry until ctx is canceled

	return backoff.Retry(func() error {
		opts, err := redis.ParseURL(m.cfg.RedisURL)
		if err != nil {
			return backoff.Permanent(apperr.Wrap(apperr.InvalidInput, "parse redis url", err))
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthCheckTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			m.observer.OnConnectionFailed(err)
			return err
		}

		m.mu.Lock()
		old := m.client
		m.client = client
		m.mu.Unlock()
		if old != nil {
			old.Close()
		}
		m.consecutiveFails.Store(0)
		return nil
	}, backoff.WithContext(bo, ctx))
}

func (m *Manager) healthLoop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Manager) checkHealth() {
	client := m.clientOrNil()
	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HealthCheckTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		fails := m.consecutiveFails.Add(1)
		m.observer.OnConnectionFailed(err)
		if int(fails) >= m.cfg.MaxConsecutiveFails {
			wasHealthy := State(m.state.Swap(int32(StateUnavailable))) == StateHealthy
			if wasHealthy {
				m.observer.OnServerError(apperr.New(apperr.Unavailable, "datastore unreachable after repeated health-check failures"))
			}
			go m.reconnectLoop()
		}
		return
	}

	if m.consecutiveFails.Swap(0) > 0 {
		wasUnavailable := State(m.state.Swap(int32(StateHealthy))) == StateUnavailable
		if wasUnavailable {
			m.observer.OnRestored()
		}
	}
}

func (m *Manager) reconnectLoop() {
	if err := m.connectWithBackoff(context.Background()); err == nil {
		m.state.Store(int32(StateHealthy))
		m.observer.OnRestored()
	}
}

func (m *Manager) clientOrNil() *redis.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// Client returns the current client, or an Unavailable error if the
// manager is not currently healthy. Callers must not cache the result
// across a reconnect.
func (m *Manager) Client() (*redis.Client, error) {
	if State(m.state.Load()) == StateUnavailable {
		return nil, apperr.New(apperr.Unavailable, "datastore connection unavailable")
	}
	client := m.clientOrNil()
	if client == nil {
		return nil, apperr.New(apperr.Unavailable, "datastore connection not established")
	}
	return client, nil
}

// State reports the manager's current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stop halts the health-check loop and closes the underlying client.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
	if client := m.clientOrNil(); client != nil {
		client.Close()
	}
}
