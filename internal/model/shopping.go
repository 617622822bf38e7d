package model

import (
	"strings"
	"time"
)

// TempIDPrefix marks list ids generated locally before the server has
// assigned a canonical id. The UI can use it to mark unsynced records.
const TempIDPrefix = "local-"

type ShoppingList struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	IsCompleted bool           `json:"is_completed"`
	UserID      string         `json:"user_id"`
	HouseholdID *string        `json:"household_id,omitempty"`
	Items       []ShoppingItem `json:"items"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsLocal reports whether the list has not yet been assigned a server id.
func (l *ShoppingList) IsLocal() bool {
	return strings.HasPrefix(l.ID, TempIDPrefix)
}

type ShoppingItem struct {
	ID          string    `json:"id"`
	ListID      string    `json:"list_id"`
	Name        string    `json:"name"`
	Quantity    float64   `json:"quantity"`
	Unit        string    `json:"unit"`
	Notes       string    `json:"notes,omitempty"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
