package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/lenhattan2313/grocery-list-sub000/internal/api"
	"github.com/lenhattan2313/grocery-list-sub000/internal/cache"
	"github.com/lenhattan2313/grocery-list-sub000/internal/config"
	"github.com/lenhattan2313/grocery-list-sub000/internal/handler"
	"github.com/lenhattan2313/grocery-list-sub000/internal/middleware"
	"github.com/lenhattan2313/grocery-list-sub000/internal/netmon"
	"github.com/lenhattan2313/grocery-list-sub000/internal/store"
	"github.com/lenhattan2313/grocery-list-sub000/internal/sync"
	ws "github.com/lenhattan2313/grocery-list-sub000/internal/websocket"
)

// Server wires the local store, sync engine, reactive cache, and hub into the
// HTTP surface the PWA shell consumes.
type Server struct {
	hub     *ws.Hub
	cache   *cache.Cache
	engine  *sync.Engine
	monitor *netmon.Monitor
	runner  *sync.Runner
	listH   *handler.ListHandler
	syncH   *handler.SyncHandler
	logger  *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	localStore := store.NewLocalStore(db)
	client := api.NewHTTPClient(cfg.RemoteBaseURL, cfg.AuthToken)
	monitor := netmon.New(client, cfg.ProbeInterval, logger.With("component", "netmon"))
	engine := sync.NewEngine(localStore, client, monitor, cfg.UserID, logger.With("component", "sync"))
	runner := sync.NewRunner(engine, monitor, cfg.SyncInterval, logger.With("component", "sync_runner"))

	hub := ws.NewHub(logger.With("component", "websocket"))
	queryCache := cache.New()

	// Cache changes and sync passes flow to connected UI clients so views
	// re-render without polling.
	queryCache.Subscribe(func(key cache.Key) {
		hub.Broadcast(ws.QueryChanged(string(key)))
	})
	engine.SetOnSynced(func(status sync.Status) {
		// Server acknowledgements may have rewritten ids or records; make
		// the views refetch rather than trust optimistic state.
		queryCache.Invalidate(cache.KeyLists)
		hub.Broadcast(ws.SyncStatus(status))
	})

	return &Server{
		hub:     hub,
		cache:   queryCache,
		engine:  engine,
		monitor: monitor,
		runner:  runner,
		listH:   handler.NewListHandler(engine, queryCache, logger.With("component", "list_handler")),
		syncH:   handler.NewSyncHandler(engine, queryCache, monitor, logger.With("component", "sync_handler")),
		logger:  logger,
	}
}

// Start probes connectivity, bootstraps a cold cache, and launches the
// background drain loop.
func (s *Server) Start(ctx context.Context) error {
	s.monitor.Start(ctx)
	if err := s.engine.Bootstrap(ctx); err != nil {
		return err
	}
	s.runner.Start(ctx)
	return nil
}

// Stop shuts down the background loops.
func (s *Server) Stop() {
	s.runner.Stop()
	s.monitor.Stop()
}

// Engine exposes the sync engine, mainly for tests and diagnostics.
func (s *Server) Engine() *sync.Engine {
	return s.engine
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	mux.HandleFunc("GET /api/lists", s.listH.List)
	mux.HandleFunc("POST /api/lists", s.listH.Create)
	mux.HandleFunc("GET /api/lists/{id}", s.listH.Get)
	mux.HandleFunc("PATCH /api/lists/{id}", s.listH.Update)
	mux.HandleFunc("DELETE /api/lists/{id}", s.listH.Delete)
	mux.HandleFunc("PUT /api/lists/{id}/items", s.listH.UpdateItems)

	mux.HandleFunc("POST /api/sync", s.syncH.Sync)
	mux.HandleFunc("GET /api/sync/status", s.syncH.Status)
	mux.HandleFunc("POST /api/sync/refresh", s.syncH.Refresh)
	mux.HandleFunc("GET /api/network", s.syncH.Network)
	mux.HandleFunc("POST /api/reset", s.syncH.Reset)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
