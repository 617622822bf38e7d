package model

import "time"

// UserData is per-user sync metadata, updated on every successful fetch from
// the server and on connectivity changes.
type UserData struct {
	UserID            string    `json:"user_id"`
	LastSyncTimestamp time.Time `json:"last_sync_timestamp"`
	IsOnline          bool      `json:"is_online"`
}

// NetworkStatus is a transient connectivity snapshot. It is never persisted.
type NetworkStatus struct {
	IsOnline    bool      `json:"is_online"`
	LastChecked time.Time `json:"last_checked"`
}
