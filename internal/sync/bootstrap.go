package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/lenhattan2313/grocery-list-sub000/internal/api"
	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
)

// Bootstrap performs cold-cache detection on startup: if the local store is
// empty, the full collection is fetched from the server before normal
// operation begins. A failed fetch is non-fatal; the engine falls back to
// serving whatever is cached locally.
func (e *Engine) Bootstrap(ctx context.Context) error {
	size, err := e.store.GetDatabaseSize()
	if err != nil {
		return fmt.Errorf("check local cache size: %w", err)
	}
	if size > 0 {
		return nil
	}

	if e.monitor != nil && !e.monitor.IsOnline() {
		e.logger.Info("cold cache while offline, starting empty")
		return nil
	}

	if err := e.Refresh(ctx); err != nil {
		e.logger.Warn("initial fetch failed, serving local cache", "error", err)
	}
	return nil
}

// Refresh fetches the full list collection from the server and replaces the
// synced portion of the local cache with it. Unsynced records (temporary ids)
// and the pending queue are left untouched; they reconcile through the normal
// drain path.
func (e *Engine) Refresh(ctx context.Context) error {
	var fetched []model.ShoppingList
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		lists, err := e.api.FetchLists(ctx)
		if err != nil {
			if api.IsPermanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		fetched = lists
		return nil
	})
	if err != nil {
		return fmt.Errorf("fetch lists from server: %w", err)
	}

	existing, err := e.store.GetLists()
	if err != nil {
		return err
	}

	if err := e.store.SaveLists(fetched); err != nil {
		return fmt.Errorf("cache fetched lists: %w", err)
	}

	remote := make(map[string]bool, len(fetched))
	for _, l := range fetched {
		remote[l.ID] = true
	}
	for _, l := range existing {
		if !l.IsLocal() && !remote[l.ID] {
			if err := e.store.DeleteList(l.ID); err != nil {
				return err
			}
		}
	}

	now := time.Now().UTC()
	e.mu.Lock()
	e.lastSync = now
	e.mu.Unlock()

	if err := e.store.SaveUserData(&model.UserData{
		UserID:            e.userID,
		LastSyncTimestamp: now,
		IsOnline:          true,
	}); err != nil {
		e.logger.Warn("save user sync metadata", "error", err)
	}

	e.logger.Info("refreshed local cache from server", "lists", len(fetched))
	e.notify()
	return nil
}
