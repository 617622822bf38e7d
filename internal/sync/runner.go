package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lenhattan2313/grocery-list-sub000/internal/netmon"
)

const defaultSyncInterval = 30 * time.Second

// Runner owns the background drain triggers: the periodic timer, the
// reconnect listener, and the write path's sync requests. All three triggers
// converge on the engine's single-flight Sync.
type Runner struct {
	mu       sync.RWMutex
	engine   *Engine
	monitor  *netmon.Monitor
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	unsub    func()
}

// NewRunner creates a drain runner. A zero interval selects the default.
func NewRunner(engine *Engine, monitor *netmon.Monitor, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Runner{
		engine:   engine,
		monitor:  monitor,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the background loop and registers the reconnect listener.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	// Entering ONLINE triggers an immediate drain; both transitions are
	// recorded in the per-user metadata.
	r.unsub = r.monitor.AddListener(func(online bool) {
		if err := r.engine.store.UpdateOnlineStatus(r.engine.userID, online); err != nil {
			r.logger.Warn("record online status", "error", err)
		}
		if online {
			r.engine.RequestSync()
		}
	})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if r.monitor.IsOnline() {
					r.drain(ctx)
				}
			case <-r.engine.Requests():
				r.drain(ctx)
			}
		}
	}()
}

// Stop unregisters the reconnect listener and stops the loop.
func (r *Runner) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	unsub := r.unsub
	r.mu.RUnlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// drain runs one queue pass. Failures never propagate out of the background
// loop; they are logged and retried on the next trigger.
func (r *Runner) drain(ctx context.Context) {
	res, err := r.engine.Sync(ctx)
	if err != nil {
		r.logger.Error("background sync failed", "error", err)
		return
	}
	if res.Applied > 0 || res.Failed > 0 || res.Dropped > 0 {
		r.logger.Info("background sync pass",
			"applied", res.Applied, "failed", res.Failed, "dropped", res.Dropped)
	}
}
