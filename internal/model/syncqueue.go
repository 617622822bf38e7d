package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncAction identifies the kind of pending mutation a queue entry carries.
type SyncAction string

const (
	ActionCreateList      SyncAction = "CREATE_LIST"
	ActionUpdateList      SyncAction = "UPDATE_LIST"
	ActionDeleteList      SyncAction = "DELETE_LIST"
	ActionUpdateListItems SyncAction = "UPDATE_LIST_ITEMS"
)

// DefaultMaxRetries is the retry budget for a queued operation before it is
// dropped.
const DefaultMaxRetries = 3

func (a SyncAction) Valid() bool {
	switch a {
	case ActionCreateList, ActionUpdateList, ActionDeleteList, ActionUpdateListItems:
		return true
	}
	return false
}

// CreateListPayload records a list created locally under a temporary id.
type CreateListPayload struct {
	TempID      string  `json:"temp_id"`
	Name        string  `json:"name"`
	UserID      string  `json:"user_id"`
	HouseholdID *string `json:"household_id,omitempty"`
}

// UpdateListPayload carries a partial list update; nil fields are untouched.
type UpdateListPayload struct {
	ListID      string  `json:"list_id"`
	Name        *string `json:"name,omitempty"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
	HouseholdID *string `json:"household_id,omitempty"`
}

type DeleteListPayload struct {
	ListID string `json:"list_id"`
}

// UpdateListItemsPayload replaces a list's entire item collection.
type UpdateListItemsPayload struct {
	ListID string         `json:"list_id"`
	Items  []ShoppingItem `json:"items"`
}

// SyncQueueItem is one durable pending mutation awaiting replay against the
// remote API. Entries are drained strictly in Timestamp order.
type SyncQueueItem struct {
	ID         string          `json:"id"`
	Action     SyncAction      `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
}

// NewSyncQueueItem builds a queue entry for the given action and payload.
// The id embeds the action and enqueue time plus a random suffix so ids stay
// unique even for entries enqueued in the same millisecond.
func NewSyncQueueItem(action SyncAction, payload any) (*SyncQueueItem, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown sync action %q", action)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	now := time.Now().UTC()
	return &SyncQueueItem{
		ID:         fmt.Sprintf("%s-%d-%s", action, now.UnixMilli(), uuid.NewString()[:8]),
		Action:     action,
		Payload:    data,
		Timestamp:  now,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}, nil
}

// DecodePayload unmarshals the entry's payload into dst, which must be a
// pointer to the payload struct matching the entry's action.
func (q *SyncQueueItem) DecodePayload(dst any) error {
	if err := json.Unmarshal(q.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", q.Action, err)
	}
	return nil
}
