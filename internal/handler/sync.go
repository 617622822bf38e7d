package handler

import (
	"log/slog"
	"net/http"

	"github.com/lenhattan2313/grocery-list-sub000/internal/cache"
	"github.com/lenhattan2313/grocery-list-sub000/internal/netmon"
	"github.com/lenhattan2313/grocery-list-sub000/internal/sync"
)

// SyncHandler exposes the sync engine's manual controls: explicit drain,
// status, full refresh from the server, and local data reset.
type SyncHandler struct {
	engine  *sync.Engine
	cache   *cache.Cache
	monitor *netmon.Monitor
	logger  *slog.Logger
}

func NewSyncHandler(engine *sync.Engine, c *cache.Cache, monitor *netmon.Monitor, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{engine: engine, cache: c, monitor: monitor, logger: logger}
}

// Sync performs an explicit drain. Unlike background drains, failure here is
// user-visible.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if !h.monitor.CheckNow(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "offline")
		return
	}

	res, err := h.engine.Sync(r.Context())
	if err != nil {
		h.logger.Error("manual sync", "error", err)
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *SyncHandler) Network(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// Refresh forces a full fetch-and-replace from the server (pull-to-refresh),
// then repopulates the cached collection.
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		h.logger.Error("refresh", "error", err)
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}

	lists, err := h.engine.Lists(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load lists")
		return
	}
	h.cache.SetLists(lists)
	writeJSON(w, http.StatusOK, lists)
}

// Reset wipes all local data (sign-out).
func (h *SyncHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reset(r.Context()); err != nil {
		h.logger.Error("reset", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset local data")
		return
	}
	h.cache.Clear()
	w.WriteHeader(http.StatusNoContent)
}
