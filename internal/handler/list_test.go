package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lenhattan2313/grocery-list-sub000/internal/cache"
	"github.com/lenhattan2313/grocery-list-sub000/internal/database"
	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
	"github.com/lenhattan2313/grocery-list-sub000/internal/store"
	"github.com/lenhattan2313/grocery-list-sub000/internal/sync"
)

func setupListHandler(t *testing.T) (*ListHandler, *store.LocalStore, *cache.Cache) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.NewLocalStore(db)
	logger := slog.New(slog.DiscardHandler)
	// No remote client and no monitor: handlers only exercise the local
	// write path here, the queue drains are covered by the sync package.
	engine := sync.NewEngine(st, nil, nil, "user-1", logger)
	c := cache.New()
	return NewListHandler(engine, c, logger), st, c
}

func router(h *ListHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/lists", h.List)
	mux.HandleFunc("POST /api/lists", h.Create)
	mux.HandleFunc("GET /api/lists/{id}", h.Get)
	mux.HandleFunc("PATCH /api/lists/{id}", h.Update)
	mux.HandleFunc("DELETE /api/lists/{id}", h.Delete)
	mux.HandleFunc("PUT /api/lists/{id}/items", h.UpdateItems)
	return mux
}

func seedList(t *testing.T, st *store.LocalStore, id, name string) *model.ShoppingList {
	t.Helper()
	now := time.Now().UTC()
	l := &model.ShoppingList{ID: id, Name: name, UserID: "user-1", Items: []model.ShoppingItem{}, CreatedAt: now, UpdatedAt: now}
	if err := st.SaveList(l); err != nil {
		t.Fatalf("seed list: %v", err)
	}
	return l
}

func TestCreateListEndpoint(t *testing.T) {
	h, st, c := setupListHandler(t)
	mux := router(h)

	body := bytes.NewBufferString(`{"name":"Groceries"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/lists", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created model.ShoppingList
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(created.ID, model.TempIDPrefix) {
		t.Errorf("id = %q, want temp prefix", created.ID)
	}

	// Durable and cached.
	if stored, _ := st.GetList(created.ID); stored == nil {
		t.Error("expected list in local store")
	}
	if _, ok := c.List(created.ID); !ok {
		t.Error("expected list in cache")
	}
	queue, _ := st.GetSyncQueue()
	if len(queue) != 1 || queue[0].Action != model.ActionCreateList {
		t.Errorf("queue = %+v, want one CREATE_LIST", queue)
	}
}

func TestCreateListValidation(t *testing.T) {
	h, _, _ := setupListHandler(t)
	mux := router(h)

	req := httptest.NewRequest(http.MethodPost, "/api/lists", bytes.NewBufferString(`{"name":"  "}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetListFallsThroughToStore(t *testing.T) {
	h, st, c := setupListHandler(t)
	mux := router(h)
	seedList(t, st, "srv-1", "Groceries")

	req := httptest.NewRequest(http.MethodGet, "/api/lists/srv-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// The miss populated the cache.
	if _, ok := c.List("srv-1"); !ok {
		t.Error("expected cache populated after read-through")
	}
}

func TestGetListNotFound(t *testing.T) {
	h, _, _ := setupListHandler(t)
	mux := router(h)

	req := httptest.NewRequest(http.MethodGet, "/api/lists/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateRollsBackCacheOnFailure(t *testing.T) {
	h, _, c := setupListHandler(t)
	mux := router(h)

	// Cached but not in the store: the engine rejects the update, and the
	// optimistic cache change must be rolled back exactly.
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	pre := &model.ShoppingList{ID: "ghost", Name: "Groceries", UserID: "user-1", Items: []model.ShoppingItem{}, CreatedAt: now, UpdatedAt: now}
	c.SetList(pre)
	preLists, _ := c.Lists()

	req := httptest.NewRequest(http.MethodPatch, "/api/lists/ghost", bytes.NewBufferString(`{"name":"Renamed"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	got, ok := c.List("ghost")
	if !ok {
		t.Fatal("expected cache entry restored")
	}
	if !reflect.DeepEqual(got, pre) {
		t.Errorf("cache = %+v, want pre-mutation %+v", got, pre)
	}
	gotLists, _ := c.Lists()
	if !reflect.DeepEqual(gotLists, preLists) {
		t.Errorf("collection = %+v, want pre-mutation %+v", gotLists, preLists)
	}
}

func TestUpdateListEndpoint(t *testing.T) {
	h, st, c := setupListHandler(t)
	mux := router(h)
	seedList(t, st, "srv-1", "Groceries")

	req := httptest.NewRequest(http.MethodPatch, "/api/lists/srv-1", bytes.NewBufferString(`{"name":"Weekend shop","is_completed":true}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	stored, _ := st.GetList("srv-1")
	if stored.Name != "Weekend shop" || !stored.IsCompleted {
		t.Errorf("stored = %+v", stored)
	}
	cached, ok := c.List("srv-1")
	if !ok || cached.Name != "Weekend shop" {
		t.Errorf("cached = %+v", cached)
	}
	queue, _ := st.GetSyncQueue()
	if len(queue) != 1 || queue[0].Action != model.ActionUpdateList {
		t.Errorf("queue = %+v, want one UPDATE_LIST", queue)
	}
}

func TestUpdateItemsEndpoint(t *testing.T) {
	h, st, _ := setupListHandler(t)
	mux := router(h)
	seedList(t, st, "srv-1", "Groceries")

	body := `[{"name":"Milk","quantity":2,"unit":"L"},{"name":"Bread","quantity":1,"unit":"loaf","is_completed":true}]`
	req := httptest.NewRequest(http.MethodPut, "/api/lists/srv-1/items", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	stored, _ := st.GetList("srv-1")
	if len(stored.Items) != 2 {
		t.Fatalf("items = %+v, want 2", stored.Items)
	}
	if stored.Items[0].Name != "Milk" || stored.Items[0].Quantity != 2 {
		t.Errorf("items[0] = %+v", stored.Items[0])
	}
	queue, _ := st.GetSyncQueue()
	if len(queue) != 1 || queue[0].Action != model.ActionUpdateListItems {
		t.Errorf("queue = %+v, want one UPDATE_LIST_ITEMS", queue)
	}
}

func TestUpdateItemsNeverMutatesPublishedEntry(t *testing.T) {
	h, st, c := setupListHandler(t)
	mux := router(h)
	seedList(t, st, "srv-1", "Groceries")

	// Record every published value for the single-list key along with the
	// item ids it carried at publication time. Cached values are replaced,
	// never written through, so these must still match afterwards.
	itemIDs := func(l *model.ShoppingList) []string {
		ids := make([]string, len(l.Items))
		for i, item := range l.Items {
			ids[i] = item.ID
		}
		return ids
	}
	var published []*model.ShoppingList
	var atPublish [][]string
	c.Subscribe(func(key cache.Key) {
		if key != cache.KeyList("srv-1") {
			return
		}
		if l, ok := c.List("srv-1"); ok {
			published = append(published, l)
			atPublish = append(atPublish, itemIDs(l))
		}
	})

	// Warm the entry, then replace the items through the normal write path.
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/lists/srv-1", nil))
	body := `[{"name":"Milk","quantity":2,"unit":"L"}]`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/lists/srv-1/items", bytes.NewBufferString(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	for i, l := range published {
		if !reflect.DeepEqual(itemIDs(l), atPublish[i]) {
			t.Errorf("publication %d mutated after the fact: ids now %v, were %v", i, itemIDs(l), atPublish[i])
		}
	}

	after, ok := c.List("srv-1")
	if !ok || len(after.Items) != 1 || after.Items[0].ID == "" {
		t.Errorf("cached entry = %+v, want one stamped Milk item", after)
	}
}

func TestUpdateItemsQuantityValidation(t *testing.T) {
	h, st, _ := setupListHandler(t)
	mux := router(h)
	seedList(t, st, "srv-1", "Groceries")

	body := `[{"name":"Milk","quantity":0,"unit":"L"}]`
	req := httptest.NewRequest(http.MethodPut, "/api/lists/srv-1/items", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// Nothing persisted, nothing queued.
	stored, _ := st.GetList("srv-1")
	if len(stored.Items) != 0 {
		t.Errorf("items = %+v, want untouched", stored.Items)
	}
	queue, _ := st.GetSyncQueue()
	if len(queue) != 0 {
		t.Errorf("queue = %+v, want empty", queue)
	}
}

func TestDeleteListEndpoint(t *testing.T) {
	h, st, c := setupListHandler(t)
	mux := router(h)
	l := seedList(t, st, "srv-1", "Groceries")
	c.SetList(l)

	req := httptest.NewRequest(http.MethodDelete, "/api/lists/srv-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if stored, _ := st.GetList("srv-1"); stored != nil {
		t.Error("expected list deleted from store")
	}
	if _, ok := c.List("srv-1"); ok {
		t.Error("expected list removed from cache")
	}
	queue, _ := st.GetSyncQueue()
	if len(queue) != 1 || queue[0].Action != model.ActionDeleteList {
		t.Errorf("queue = %+v, want one DELETE_LIST", queue)
	}
}

func TestListEndpointServesFromCache(t *testing.T) {
	h, _, c := setupListHandler(t)
	mux := router(h)

	cached := []model.ShoppingList{{ID: "srv-1", Name: "Groceries", Items: []model.ShoppingItem{}}}
	c.SetLists(cached)

	req := httptest.NewRequest(http.MethodGet, "/api/lists", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []model.ShoppingList
	json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 1 || got[0].ID != "srv-1" {
		t.Errorf("got %+v", got)
	}
}
