package sync

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Connectivity is the injected online/offline capability. The production
// implementation probes the backend; tests flip a switch.
type Connectivity interface {
	// Online reports current reachability.
	Online() bool
	// Subscribe registers a callback invoked on every transition.
	Subscribe(fn func(online bool))
}

// HealthProber is the probe the monitor runs against the backend.
type HealthProber interface {
	Health(ctx context.Context) error
}

// Monitor polls the backend health endpoint on a ticker and notifies
// listeners on online/offline transitions.
type Monitor struct {
	prober    HealthProber
	interval  time.Duration
	timeout   time.Duration
	online    atomic.Bool
	mu        stdsync.Mutex
	listeners []func(online bool)
	logger    *zap.Logger
}

// NewMonitor creates a Monitor probing every interval with the given
// per-probe timeout.
func NewMonitor(prober HealthProber, interval, timeout time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start probes once immediately, then on every tick until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.probe(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Online reports the last observed reachability.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Subscribe registers a transition callback.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	now := m.prober.Health(probeCtx) == nil

	was := m.online.Swap(now)
	if was == now {
		return
	}

	m.logger.Info("connectivity transition", zap.Bool("online", now))
	m.mu.Lock()
	snapshot := make([]func(bool), len(m.listeners))
	copy(snapshot, m.listeners)
	m.mu.Unlock()
	for _, fn := range snapshot {
		fn(now)
	}
}
