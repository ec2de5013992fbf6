package api

import (
	"net/http"

	"github.com/reforgerwatch/reforgerwatch/internal/auth"
	"github.com/reforgerwatch/reforgerwatch/internal/bus"
	"github.com/reforgerwatch/reforgerwatch/internal/collector"
	"github.com/reforgerwatch/reforgerwatch/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux    *http.ServeMux
	store  *storage.Store
	engine *collector.Engine
	wsHub  *Hub
	auth   *auth.Service
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, engine *collector.Engine, authService *auth.Service) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		store:  store,
		engine: engine,
		wsHub:  NewHub(),
		auth:   authService,
	}

	r.mux.HandleFunc("GET /api/status", r.handleGetStatus)
	r.mux.HandleFunc("GET /api/leaderboard", r.handleGetLeaderboard)
	r.mux.HandleFunc("GET /api/players", r.handleGetPlayers)
	r.mux.HandleFunc("GET /api/players/{identity}/stats", r.handleGetPlayerStats)

	// Engine triggers (authenticated)
	r.mux.HandleFunc("POST /api/refresh", r.requireAuth(r.handleRefresh))
	r.mux.HandleFunc("POST /api/install", r.requireAdmin(r.handleInstall))

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)

	// WebSocket snapshot stream
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// StartWebSocketHub begins forwarding bus events to WebSocket clients
func (r *Router) StartWebSocketHub(b *bus.Bus) error {
	go r.wsHub.Run()

	for _, subject := range []string{bus.SubjectSnapshot, bus.SubjectLeaderboard} {
		if _, err := b.Subscribe(subject, r.wsHub.BroadcastRaw); err != nil {
			return err
		}
	}
	return nil
}
