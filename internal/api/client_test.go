package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
)

func TestCreateList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/lists" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("authorization = %q", got)
		}

		var req struct {
			Name   string `json:"name"`
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Name != "Groceries" || req.UserID != "user-1" {
			t.Errorf("request = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.ShoppingList{ID: "srv-1", Name: req.Name, UserID: req.UserID})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	list, err := c.CreateList(context.Background(), "Groceries", "user-1", nil)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if list.ID != "srv-1" {
		t.Errorf("id = %s, want srv-1", list.ID)
	}
}

func TestReplaceListItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/lists/srv-1/items" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Items []model.ShoppingItem `json:"items"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(model.ShoppingList{ID: "srv-1", Items: req.Items})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	list, err := c.ReplaceListItems(context.Background(), "srv-1", []model.ShoppingItem{
		{Name: "Milk", Quantity: 2, Unit: "L"},
	})
	if err != nil {
		t.Fatalf("replace items: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Name != "Milk" {
		t.Errorf("items = %+v", list.Items)
	}
}

func TestErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "not your list"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	err := c.DeleteList(context.Background(), "srv-1")
	if err == nil {
		t.Fatal("expected error")
	}

	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if ae.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", ae.StatusCode)
	}
	if ae.Message != "not your list" {
		t.Errorf("message = %q", ae.Message)
	}
}

func TestFetchLists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.ShoppingList{{ID: "srv-1"}, {ID: "srv-2"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	lists, err := c.FetchLists(context.Background())
	if err != nil {
		t.Fatalf("fetch lists: %v", err)
	}
	if len(lists) != 2 {
		t.Errorf("got %d lists, want 2", len(lists))
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}

	srv.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected error after server shutdown")
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &Error{StatusCode: 400}, true},
		{"forbidden", &Error{StatusCode: 403}, true},
		{"not found", &Error{StatusCode: 404}, true},
		{"request timeout", &Error{StatusCode: 408}, false},
		{"rate limited", &Error{StatusCode: 429}, false},
		{"server error", &Error{StatusCode: 500}, false},
		{"plain network error", errors.New("connection refused"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
