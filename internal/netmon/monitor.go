// Package netmon tracks connectivity to the remote grocery server and fans
// out online/offline transitions to interested components.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
)

const defaultProbeInterval = 15 * time.Second

// probeTimeout bounds a single reachability check.
const probeTimeout = 5 * time.Second

// Prober checks whether the remote server is reachable. The remote API
// client's Ping satisfies this.
type Prober interface {
	Ping(ctx context.Context) error
}

// Listener is invoked on every online/offline transition with the new state.
type Listener func(online bool)

// Monitor is the single source of truth for connectivity state. It probes the
// server periodically and on demand, and notifies all registered listeners on
// each transition.
type Monitor struct {
	mu          sync.RWMutex
	prober      Prober
	interval    time.Duration
	logger      *slog.Logger
	online      bool
	lastChecked time.Time
	listeners   map[int]Listener
	nextID      int
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a Monitor. A zero interval selects the default probe cadence.
func New(prober Prober, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &Monitor{
		prober:    prober,
		interval:  interval,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Start probes once to establish the initial state, then begins the periodic
// probe loop. The initial state is measured, never assumed.
func (m *Monitor) Start(ctx context.Context) {
	m.CheckNow(ctx)

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// Stop gracefully stops the probe loop.
func (m *Monitor) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current connectivity snapshot.
func (m *Monitor) Status() model.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.NetworkStatus{IsOnline: m.online, LastChecked: m.lastChecked}
}

// IsOnline returns the current online flag.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// AddListener registers a transition callback and returns its unsubscribe
// function. Each registered listener is notified independently.
func (m *Monitor) AddListener(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// CheckNow probes the server immediately and returns the resulting online
// state, firing listeners if the state changed.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	online := m.prober.Ping(probeCtx) == nil
	m.setOnline(online)
	return online
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	m.lastChecked = time.Now()
	changed := online != m.online
	m.online = online

	var fns []Listener
	if changed {
		fns = make([]Listener, 0, len(m.listeners))
		for _, fn := range m.listeners {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info("network online")
	} else {
		m.logger.Warn("network offline")
	}

	// Listeners run outside the lock so they can call back into the monitor.
	for _, fn := range fns {
		fn(online)
	}
}
