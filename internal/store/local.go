package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
)

// LocalStore is the durable local cache: shopping lists, the pending sync
// queue, and per-user sync metadata. It is the single source of truth for
// offline state; the in-memory query cache is derived from it.
type LocalStore struct {
	db *sql.DB
}

// NewLocalStore wraps an already-opened and migrated database handle. Callers
// get a ready-to-use store; there is no lazy initialization to race.
func NewLocalStore(db *sql.DB) *LocalStore {
	return &LocalStore{db: db}
}

// --- List methods ---

const listCols = `id, name, is_completed, user_id, household_id, items, created_at, updated_at`

func scanShoppingList(scanner interface{ Scan(...any) error }) (*model.ShoppingList, error) {
	var l model.ShoppingList
	var completed int
	var householdID sql.NullString
	var itemsJSON string

	err := scanner.Scan(&l.ID, &l.Name, &completed, &l.UserID, &householdID, &itemsJSON, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	l.IsCompleted = completed != 0
	if householdID.Valid {
		l.HouseholdID = &householdID.String
	}
	if err := json.Unmarshal([]byte(itemsJSON), &l.Items); err != nil {
		return nil, fmt.Errorf("decode items for list %s: %w", l.ID, err)
	}
	if l.Items == nil {
		l.Items = []model.ShoppingItem{}
	}
	return &l, nil
}

func (s *LocalStore) saveListTx(exec interface {
	Exec(string, ...any) (sql.Result, error)
}, list *model.ShoppingList) error {
	var householdID sql.NullString
	if list.HouseholdID != nil {
		householdID = sql.NullString{String: *list.HouseholdID, Valid: true}
	}
	items := list.Items
	if items == nil {
		items = []model.ShoppingItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode items for list %s: %w", list.ID, err)
	}

	_, err = exec.Exec(
		`INSERT INTO lists (`+listCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   is_completed = excluded.is_completed,
		   user_id = excluded.user_id,
		   household_id = excluded.household_id,
		   items = excluded.items,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at`,
		list.ID, list.Name, boolToInt(list.IsCompleted), list.UserID, householdID,
		string(itemsJSON), list.CreatedAt.UTC(), list.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert list %s: %w", list.ID, err)
	}
	return nil
}

// SaveList upserts a single list by primary key. The stored record is fully
// replaced, items included.
func (s *LocalStore) SaveList(list *model.ShoppingList) error {
	return s.saveListTx(s.db, list)
}

// SaveLists upserts a batch of lists atomically.
func (s *LocalStore) SaveLists(lists []model.ShoppingList) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save lists: %w", err)
	}
	defer tx.Rollback()

	for i := range lists {
		if err := s.saveListTx(tx, &lists[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetLists returns all cached lists, most recently updated first.
func (s *LocalStore) GetLists() ([]model.ShoppingList, error) {
	rows, err := s.db.Query(`SELECT ` + listCols + ` FROM lists ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("get lists: %w", err)
	}
	defer rows.Close()

	var lists []model.ShoppingList
	for rows.Next() {
		l, err := scanShoppingList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, *l)
	}
	return lists, rows.Err()
}

// GetList returns the list with the given id, or nil if it is not cached.
func (s *LocalStore) GetList(id string) (*model.ShoppingList, error) {
	row := s.db.QueryRow(`SELECT `+listCols+` FROM lists WHERE id = ?`, id)
	l, err := scanShoppingList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list %s: %w", id, err)
	}
	return l, nil
}

// GetListByName returns the most recently updated list with the given name,
// or nil if none matches.
func (s *LocalStore) GetListByName(name string) (*model.ShoppingList, error) {
	row := s.db.QueryRow(`SELECT `+listCols+` FROM lists WHERE name = ? ORDER BY updated_at DESC LIMIT 1`, name)
	l, err := scanShoppingList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list by name %q: %w", name, err)
	}
	return l, nil
}

// DeleteList removes a list from the cache. Deleting an unknown id is a no-op.
func (s *LocalStore) DeleteList(id string) error {
	if _, err := s.db.Exec(`DELETE FROM lists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete list %s: %w", id, err)
	}
	return nil
}

// --- Sync queue methods ---

const queueCols = `id, action, payload, timestamp, retry_count, max_retries`

func scanQueueItem(scanner interface{ Scan(...any) error }) (*model.SyncQueueItem, error) {
	var q model.SyncQueueItem
	var action, payload string
	if err := scanner.Scan(&q.ID, &action, &payload, &q.Timestamp, &q.RetryCount, &q.MaxRetries); err != nil {
		return nil, err
	}
	q.Action = model.SyncAction(action)
	q.Payload = json.RawMessage(payload)
	return &q, nil
}

// AddToSyncQueue builds and persists a queue entry for the given action and
// payload, with a zero retry count.
func (s *LocalStore) AddToSyncQueue(action model.SyncAction, payload any) (*model.SyncQueueItem, error) {
	item, err := model.NewSyncQueueItem(action, payload)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO sync_queue (`+queueCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Action), string(item.Payload), item.Timestamp, item.RetryCount, item.MaxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", action, err)
	}
	return item, nil
}

// GetSyncQueue returns all pending entries in enqueue order (FIFO).
func (s *LocalStore) GetSyncQueue() ([]model.SyncQueueItem, error) {
	rows, err := s.db.Query(`SELECT ` + queueCols + ` FROM sync_queue ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("get sync queue: %w", err)
	}
	defer rows.Close()

	var items []model.SyncQueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, *q)
	}
	return items, rows.Err()
}

// GetSyncQueueItem returns one queue entry by id, or nil if it is gone.
func (s *LocalStore) GetSyncQueueItem(id string) (*model.SyncQueueItem, error) {
	row := s.db.QueryRow(`SELECT `+queueCols+` FROM sync_queue WHERE id = ?`, id)
	q, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item %s: %w", id, err)
	}
	return q, nil
}

// RemoveFromSyncQueue deletes a queue entry. Unknown ids are a no-op.
func (s *LocalStore) RemoveFromSyncQueue(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove queue item %s: %w", id, err)
	}
	return nil
}

// SetSyncQueueRetryCount persists an updated retry count. Updating a missing
// entry is a silent no-op.
func (s *LocalStore) SetSyncQueueRetryCount(id string, retryCount int) error {
	if _, err := s.db.Exec(`UPDATE sync_queue SET retry_count = ? WHERE id = ?`, retryCount, id); err != nil {
		return fmt.Errorf("update queue item %s retry count: %w", id, err)
	}
	return nil
}

// SetSyncQueuePayload rewrites a queue entry's payload in place, used when a
// temporary list id is replaced by the server-assigned one. Updating a
// missing entry is a silent no-op.
func (s *LocalStore) SetSyncQueuePayload(id string, payload json.RawMessage) error {
	if _, err := s.db.Exec(`UPDATE sync_queue SET payload = ? WHERE id = ?`, string(payload), id); err != nil {
		return fmt.Errorf("update queue item %s payload: %w", id, err)
	}
	return nil
}

// --- User data methods ---

// SaveUserData upserts the per-user sync metadata record.
func (s *LocalStore) SaveUserData(u *model.UserData) error {
	_, err := s.db.Exec(
		`INSERT INTO user_data (user_id, last_sync_timestamp, is_online) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   last_sync_timestamp = excluded.last_sync_timestamp,
		   is_online = excluded.is_online`,
		u.UserID, u.LastSyncTimestamp.UTC(), boolToInt(u.IsOnline),
	)
	if err != nil {
		return fmt.Errorf("save user data %s: %w", u.UserID, err)
	}
	return nil
}

// GetUserData returns the metadata record for a user, or nil if absent.
func (s *LocalStore) GetUserData(userID string) (*model.UserData, error) {
	row := s.db.QueryRow(`SELECT user_id, last_sync_timestamp, is_online FROM user_data WHERE user_id = ?`, userID)
	var u model.UserData
	var online int
	err := row.Scan(&u.UserID, &u.LastSyncTimestamp, &online)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user data %s: %w", userID, err)
	}
	u.IsOnline = online != 0
	return &u, nil
}

// UpdateOnlineStatus records the user's connectivity snapshot, creating the
// metadata record with the current time as last sync if it does not exist yet.
func (s *LocalStore) UpdateOnlineStatus(userID string, online bool) error {
	_, err := s.db.Exec(
		`INSERT INTO user_data (user_id, last_sync_timestamp, is_online) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET is_online = excluded.is_online`,
		userID, time.Now().UTC(), boolToInt(online),
	)
	if err != nil {
		return fmt.Errorf("update online status %s: %w", userID, err)
	}
	return nil
}

// --- Maintenance ---

// GetDatabaseSize returns the number of cached lists plus queued operations.
// A zero result means a cold cache that needs a full fetch from the server.
func (s *LocalStore) GetDatabaseSize() (int, error) {
	var lists, queued int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM lists`).Scan(&lists); err != nil {
		return 0, fmt.Errorf("count lists: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&queued); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return lists + queued, nil
}

// ClearAllData wipes lists, the sync queue, and user metadata. Used on
// sign-out and full reset.
func (s *LocalStore) ClearAllData() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"lists", "sync_queue", "user_data"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
