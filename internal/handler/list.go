package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lenhattan2313/grocery-list-sub000/internal/api"
	"github.com/lenhattan2313/grocery-list-sub000/internal/cache"
	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
	"github.com/lenhattan2313/grocery-list-sub000/internal/sync"
)

// ListHandler serves list reads from the reactive cache and routes mutations
// through the sync engine with optimistic cache updates: the cache reflects
// the expected state immediately, reconciles with the engine's result on
// success, and rolls back to the pre-mutation snapshot on failure.
type ListHandler struct {
	engine *sync.Engine
	cache  *cache.Cache
	logger *slog.Logger
}

func NewListHandler(engine *sync.Engine, c *cache.Cache, logger *slog.Logger) *ListHandler {
	return &ListHandler{engine: engine, cache: c, logger: logger}
}

type createListRequest struct {
	Name        string  `json:"name"`
	HouseholdID *string `json:"household_id"`
}

type updateListRequest struct {
	Name        *string `json:"name"`
	IsCompleted *bool   `json:"is_completed"`
	HouseholdID *string `json:"household_id"`
}

type itemRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Notes       string  `json:"notes"`
	IsCompleted bool    `json:"is_completed"`
}

func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	if lists, ok := h.cache.Lists(); ok {
		writeJSON(w, http.StatusOK, lists)
		return
	}

	lists, err := h.engine.Lists(r.Context())
	if err != nil {
		h.logger.Error("load lists", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load lists")
		return
	}
	h.cache.SetLists(lists)
	writeJSON(w, http.StatusOK, lists)
}

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if list, ok := h.cache.List(id); ok {
		writeJSON(w, http.StatusOK, list)
		return
	}

	list, err := h.engine.List(r.Context(), id)
	if err != nil {
		h.logger.Error("load list", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load list")
		return
	}
	if list == nil {
		writeError(w, http.StatusNotFound, "list not found")
		return
	}
	h.cache.SetList(list)
	writeJSON(w, http.StatusOK, list)
}

func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	snap := h.cache.Snapshot(cache.KeyLists)
	list, err := h.engine.CreateList(r.Context(), req.Name, req.HouseholdID)
	if err != nil {
		snap.Restore()
		h.logger.Error("create list", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create list")
		return
	}

	h.cache.SetList(list)
	writeJSON(w, http.StatusCreated, list)
}

func (h *ListHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}

	snap := h.cache.Snapshot(cache.KeyLists, cache.KeyList(id))
	if current, ok := h.cache.List(id); ok {
		optimistic := *current
		if req.Name != nil {
			optimistic.Name = *req.Name
		}
		if req.IsCompleted != nil {
			optimistic.IsCompleted = *req.IsCompleted
		}
		if req.HouseholdID != nil {
			optimistic.HouseholdID = req.HouseholdID
		}
		h.cache.SetList(&optimistic)
	}

	list, err := h.engine.UpdateList(r.Context(), id, api.ListUpdate{
		Name:        req.Name,
		IsCompleted: req.IsCompleted,
		HouseholdID: req.HouseholdID,
	})
	if err != nil {
		snap.Restore()
		h.logger.Error("update list", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update list")
		return
	}

	h.cache.SetList(list)
	writeJSON(w, http.StatusOK, list)
}

func (h *ListHandler) UpdateItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var reqs []itemRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	items := make([]model.ShoppingItem, 0, len(reqs))
	for _, req := range reqs {
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "item name is required")
			return
		}
		if req.Quantity < 1 {
			writeError(w, http.StatusBadRequest, "item quantity must be at least 1")
			return
		}
		items = append(items, model.ShoppingItem{
			ID:          req.ID,
			ListID:      id,
			Name:        req.Name,
			Quantity:    req.Quantity,
			Unit:        req.Unit,
			Notes:       req.Notes,
			IsCompleted: req.IsCompleted,
		})
	}

	snap := h.cache.Snapshot(cache.KeyLists, cache.KeyList(id))
	if current, ok := h.cache.List(id); ok {
		optimistic := *current
		optimistic.Items = items
		h.cache.SetList(&optimistic)
	}

	list, err := h.engine.UpdateListItems(r.Context(), id, items)
	if err != nil {
		snap.Restore()
		h.logger.Error("update list items", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update items")
		return
	}

	h.cache.SetList(list)
	writeJSON(w, http.StatusOK, list)
}

func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap := h.cache.Snapshot(cache.KeyLists, cache.KeyList(id))
	h.cache.RemoveList(id)

	if err := h.engine.DeleteList(r.Context(), id); err != nil {
		snap.Restore()
		h.logger.Error("delete list", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete list")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
