// Package sync implements the offline-first synchronization engine: every
// mutation is persisted to the local store and enqueued immediately, then
// replayed against the remote API in the background once connectivity allows.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lenhattan2313/grocery-list-sub000/internal/api"
	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
	"github.com/lenhattan2313/grocery-list-sub000/internal/netmon"
	"github.com/lenhattan2313/grocery-list-sub000/internal/store"
)

// errTempPending marks an operation whose target list has not been assigned a
// server id yet because its CREATE_LIST entry is still queued ahead of it.
var errTempPending = errors.New("list id is still local, create has not synced yet")

// Status is a point-in-time snapshot of the engine, surfaced to the UI.
type Status struct {
	Pending  int       `json:"pending"`
	Dropped  int       `json:"dropped"`
	Syncing  bool      `json:"syncing"`
	Online   bool      `json:"online"`
	LastSync time.Time `json:"last_sync"`
}

// Result summarizes one pass over the sync queue.
type Result struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped"`
}

// Engine orchestrates the local store, the sync queue, and the remote API.
// Construct one per application; tests can build independent instances.
type Engine struct {
	store   *store.LocalStore
	api     api.Client
	monitor *netmon.Monitor
	logger  *slog.Logger
	userID  string

	sf       singleflight.Group
	requests chan struct{}

	mu       sync.Mutex
	syncing  bool
	dropped  int
	lastSync time.Time
	onSynced func(Status)
}

func NewEngine(st *store.LocalStore, client api.Client, monitor *netmon.Monitor, userID string, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		api:      client,
		monitor:  monitor,
		logger:   logger,
		userID:   userID,
		requests: make(chan struct{}, 1),
	}
}

// SetOnSynced registers a callback invoked after every drain pass with the
// fresh status snapshot. Used to push sync indicators to the UI.
func (e *Engine) SetOnSynced(fn func(Status)) {
	e.mu.Lock()
	e.onSynced = fn
	e.mu.Unlock()
}

// Requests returns the channel the background runner consumes to perform
// drains requested by the write path.
func (e *Engine) Requests() <-chan struct{} {
	return e.requests
}

// RequestSync asks the background runner for a drain without blocking. A
// request while one is already pending coalesces into it.
func (e *Engine) RequestSync() {
	select {
	case e.requests <- struct{}{}:
	default:
	}
}

// --- Offline-first write path ---
//
// Every mutation persists locally first, then enqueues a replay entry, then
// kicks the background drain when online. The caller's call succeeds as soon
// as local persistence does; remote failures surface only through the queue's
// retry policy.

// CreateList creates a list under a temporary local id and queues its remote
// creation. The returned list is the local representation.
func (e *Engine) CreateList(ctx context.Context, name string, householdID *string) (*model.ShoppingList, error) {
	now := time.Now().UTC()
	list := &model.ShoppingList{
		ID:          model.TempIDPrefix + uuid.NewString(),
		Name:        name,
		UserID:      e.userID,
		HouseholdID: householdID,
		Items:       []model.ShoppingItem{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.store.SaveList(list); err != nil {
		return nil, fmt.Errorf("save new list locally: %w", err)
	}

	payload := model.CreateListPayload{TempID: list.ID, Name: name, UserID: e.userID, HouseholdID: householdID}
	if _, err := e.store.AddToSyncQueue(model.ActionCreateList, payload); err != nil {
		return nil, err
	}

	e.kickIfOnline()
	return list, nil
}

// UpdateList applies a partial update (name, completion, household) locally
// and queues the remote update.
func (e *Engine) UpdateList(ctx context.Context, listID string, update api.ListUpdate) (*model.ShoppingList, error) {
	list, err := e.store.GetList(listID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("list %s not found locally", listID)
	}

	if update.Name != nil {
		list.Name = *update.Name
	}
	if update.IsCompleted != nil {
		list.IsCompleted = *update.IsCompleted
	}
	if update.HouseholdID != nil {
		list.HouseholdID = update.HouseholdID
	}
	list.UpdatedAt = time.Now().UTC()

	if err := e.store.SaveList(list); err != nil {
		return nil, fmt.Errorf("save updated list locally: %w", err)
	}

	payload := model.UpdateListPayload{
		ListID:      listID,
		Name:        update.Name,
		IsCompleted: update.IsCompleted,
		HouseholdID: update.HouseholdID,
	}
	if _, err := e.store.AddToSyncQueue(model.ActionUpdateList, payload); err != nil {
		return nil, err
	}

	e.kickIfOnline()
	return list, nil
}

// UpdateListItems replaces a list's full item collection locally and queues
// the remote replacement.
func (e *Engine) UpdateListItems(ctx context.Context, listID string, items []model.ShoppingItem) (*model.ShoppingList, error) {
	list, err := e.store.GetList(listID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("list %s not found locally", listID)
	}

	now := time.Now().UTC()
	if items == nil {
		items = []model.ShoppingItem{}
	}
	// Stamp ids and timestamps on a private copy: the caller's slice may
	// already be published (the optimistic cache path shares it) and must not
	// be written through.
	items = append([]model.ShoppingItem(nil), items...)
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = model.TempIDPrefix + uuid.NewString()
		}
		items[i].ListID = listID
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		items[i].UpdatedAt = now
	}
	list.Items = items
	list.UpdatedAt = now

	if err := e.store.SaveList(list); err != nil {
		return nil, fmt.Errorf("save list items locally: %w", err)
	}

	payload := model.UpdateListItemsPayload{ListID: listID, Items: items}
	if _, err := e.store.AddToSyncQueue(model.ActionUpdateListItems, payload); err != nil {
		return nil, err
	}

	e.kickIfOnline()
	return list, nil
}

// DeleteList removes a list locally and queues the remote deletion. Deleting
// an unknown id succeeds without queuing anything.
func (e *Engine) DeleteList(ctx context.Context, listID string) error {
	list, err := e.store.GetList(listID)
	if err != nil {
		return err
	}

	if err := e.store.DeleteList(listID); err != nil {
		return err
	}
	if list == nil {
		return nil
	}

	if _, err := e.store.AddToSyncQueue(model.ActionDeleteList, model.DeleteListPayload{ListID: listID}); err != nil {
		return err
	}

	e.kickIfOnline()
	return nil
}

// Lists returns all locally cached lists, most recently updated first.
func (e *Engine) Lists(ctx context.Context) ([]model.ShoppingList, error) {
	lists, err := e.store.GetLists()
	if err != nil {
		return nil, err
	}
	if lists == nil {
		lists = []model.ShoppingList{}
	}
	return lists, nil
}

// List returns one locally cached list, or nil if it is not cached.
func (e *Engine) List(ctx context.Context, listID string) (*model.ShoppingList, error) {
	return e.store.GetList(listID)
}

func (e *Engine) kickIfOnline() {
	if e.monitor != nil && e.monitor.IsOnline() {
		e.RequestSync()
	}
}

// --- Queue draining ---

// Sync drains the pending queue against the remote API. Concurrent calls
// share a single in-flight pass over the queue; a redundant trigger never
// starts a second pass.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	v, err, _ := e.sf.Do("drain", func() (any, error) {
		return e.drain(ctx)
	})
	res, _ := v.(Result)
	return res, err
}

func (e *Engine) drain(ctx context.Context) (Result, error) {
	e.setSyncing(true)
	defer e.setSyncing(false)

	var res Result

	queue, err := e.store.GetSyncQueue()
	if err != nil {
		return res, fmt.Errorf("read sync queue: %w", err)
	}

	// Strict FIFO: a list's UPDATE_LIST_ITEMS must never reach the server
	// before the CREATE_LIST that produced the list.
	for i := range queue {
		// Reload the entry: an earlier create in this pass may have rewritten
		// its payload to the server-assigned list id.
		item, err := e.store.GetSyncQueueItem(queue[i].ID)
		if err != nil {
			return res, err
		}
		if item == nil {
			continue
		}

		applyErr := e.apply(ctx, item)
		if applyErr == nil {
			if err := e.store.RemoveFromSyncQueue(item.ID); err != nil {
				return res, err
			}
			res.Applied++
			continue
		}

		if isPermanent(applyErr) {
			e.logger.Error("dropping rejected sync operation",
				"id", item.ID, "action", item.Action, "error", applyErr)
			if err := e.store.RemoveFromSyncQueue(item.ID); err != nil {
				return res, err
			}
			e.recordDropped(1)
			res.Dropped++
			continue
		}

		item.RetryCount++
		if item.RetryCount >= item.MaxRetries {
			e.logger.Error("dropping sync operation after retry exhaustion",
				"id", item.ID, "action", item.Action, "retries", item.RetryCount, "error", applyErr)
			if err := e.store.RemoveFromSyncQueue(item.ID); err != nil {
				return res, err
			}
			e.recordDropped(1)
			res.Dropped++
			continue
		}

		e.logger.Warn("sync operation failed, will retry",
			"id", item.ID, "action", item.Action, "retry", item.RetryCount, "error", applyErr)
		if err := e.store.SetSyncQueueRetryCount(item.ID, item.RetryCount); err != nil {
			return res, err
		}
		res.Failed++
	}

	if res.Failed == 0 {
		now := time.Now().UTC()
		e.mu.Lock()
		e.lastSync = now
		e.mu.Unlock()
		// A drain over an empty queue proves nothing about connectivity, so
		// the flag comes from the monitor rather than the pass outcome.
		online := false
		if e.monitor != nil {
			online = e.monitor.IsOnline()
		}
		if err := e.store.SaveUserData(&model.UserData{
			UserID:            e.userID,
			LastSyncTimestamp: now,
			IsOnline:          online,
		}); err != nil {
			e.logger.Warn("save user sync metadata", "error", err)
		}
	}

	e.notify()
	return res, nil
}

// apply replays one queue entry against the remote API and reconciles the
// local store with the server's authoritative response.
func (e *Engine) apply(ctx context.Context, item *model.SyncQueueItem) error {
	switch item.Action {
	case model.ActionCreateList:
		var p model.CreateListPayload
		if err := item.DecodePayload(&p); err != nil {
			return permanent(err)
		}
		created, err := e.api.CreateList(ctx, p.Name, p.UserID, p.HouseholdID)
		if err != nil {
			return err
		}
		return e.adoptServerID(p.TempID, created)

	case model.ActionUpdateList:
		var p model.UpdateListPayload
		if err := item.DecodePayload(&p); err != nil {
			return permanent(err)
		}
		if strings.HasPrefix(p.ListID, model.TempIDPrefix) {
			return errTempPending
		}
		updated, err := e.api.UpdateList(ctx, p.ListID, api.ListUpdate{
			Name:        p.Name,
			IsCompleted: p.IsCompleted,
			HouseholdID: p.HouseholdID,
		})
		if err != nil {
			return err
		}
		return e.store.SaveList(updated)

	case model.ActionDeleteList:
		var p model.DeleteListPayload
		if err := item.DecodePayload(&p); err != nil {
			return permanent(err)
		}
		if strings.HasPrefix(p.ListID, model.TempIDPrefix) {
			return errTempPending
		}
		return e.api.DeleteList(ctx, p.ListID)

	case model.ActionUpdateListItems:
		var p model.UpdateListItemsPayload
		if err := item.DecodePayload(&p); err != nil {
			return permanent(err)
		}
		if strings.HasPrefix(p.ListID, model.TempIDPrefix) {
			return errTempPending
		}
		updated, err := e.api.ReplaceListItems(ctx, p.ListID, p.Items)
		if err != nil {
			return err
		}
		return e.store.SaveList(updated)
	}

	return permanent(fmt.Errorf("unknown sync action %q", item.Action))
}

// adoptServerID swaps a temporary list id for the server-assigned one: the
// local record moves under the new id (keeping locally staged items) and any
// still-queued operations referencing the temp id are rewritten so later FIFO
// replay targets the real list.
func (e *Engine) adoptServerID(tempID string, created *model.ShoppingList) error {
	local, err := e.store.GetList(tempID)
	if err != nil {
		return err
	}

	adopted := *created
	if local != nil && len(local.Items) > 0 {
		// Items staged while offline sync via their own queued
		// UPDATE_LIST_ITEMS entry; keep showing them meanwhile.
		adopted.Items = local.Items
	}
	if adopted.Items == nil {
		adopted.Items = []model.ShoppingItem{}
	}
	if err := e.store.SaveList(&adopted); err != nil {
		return err
	}
	if err := e.store.DeleteList(tempID); err != nil {
		return err
	}
	return e.rewriteQueuedListID(tempID, created.ID)
}

func (e *Engine) rewriteQueuedListID(tempID, serverID string) error {
	queue, err := e.store.GetSyncQueue()
	if err != nil {
		return err
	}

	for i := range queue {
		item := &queue[i]
		var rewritten any

		switch item.Action {
		case model.ActionUpdateList:
			var p model.UpdateListPayload
			if err := item.DecodePayload(&p); err != nil || p.ListID != tempID {
				continue
			}
			p.ListID = serverID
			rewritten = p
		case model.ActionDeleteList:
			var p model.DeleteListPayload
			if err := item.DecodePayload(&p); err != nil || p.ListID != tempID {
				continue
			}
			p.ListID = serverID
			rewritten = p
		case model.ActionUpdateListItems:
			var p model.UpdateListItemsPayload
			if err := item.DecodePayload(&p); err != nil || p.ListID != tempID {
				continue
			}
			p.ListID = serverID
			for j := range p.Items {
				p.Items[j].ListID = serverID
			}
			rewritten = p
		default:
			continue
		}

		fresh, err := model.NewSyncQueueItem(item.Action, rewritten)
		if err != nil {
			return err
		}
		if err := e.store.SetSyncQueuePayload(item.ID, fresh.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Reset wipes lists, the pending queue, and user metadata from the local
// store. Used on sign-out; queued mutations that never synced are lost.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.ClearAllData(); err != nil {
		return fmt.Errorf("clear local data: %w", err)
	}
	e.mu.Lock()
	e.dropped = 0
	e.lastSync = time.Time{}
	e.mu.Unlock()
	return nil
}

// --- Status ---

// Status returns the engine snapshot: pending queue depth, cumulative drops,
// whether a drain is in flight, connectivity, and last successful sync time.
func (e *Engine) Status() Status {
	pending := 0
	if queue, err := e.store.GetSyncQueue(); err == nil {
		pending = len(queue)
	}

	e.mu.Lock()
	s := Status{
		Pending:  pending,
		Dropped:  e.dropped,
		Syncing:  e.syncing,
		LastSync: e.lastSync,
	}
	e.mu.Unlock()

	if e.monitor != nil {
		s.Online = e.monitor.IsOnline()
	}
	return s
}

func (e *Engine) setSyncing(v bool) {
	e.mu.Lock()
	e.syncing = v
	e.mu.Unlock()
}

func (e *Engine) recordDropped(n int) {
	e.mu.Lock()
	e.dropped += n
	e.mu.Unlock()
}

func (e *Engine) notify() {
	e.mu.Lock()
	fn := e.onSynced
	e.mu.Unlock()
	if fn != nil {
		fn(e.Status())
	}
}

// permanentError wraps decode failures and unknown actions so the drain loop
// drops them instead of retrying an entry that can never apply.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

func permanent(err error) error { return &permanentError{err: err} }

// isPermanent reports whether a drain failure can never succeed on retry:
// either the server rejected the request outright (4xx) or the entry itself
// is malformed.
func isPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	return api.IsPermanent(err)
}
