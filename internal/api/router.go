package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ernie/arena-queue/internal/auth"
	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Store is the slice of storage the HTTP layer reads directly
type Store interface {
	Ping(ctx context.Context) error
	QueueDepth(ctx context.Context, now time.Time) (map[domain.Bucket]int, error)
}

// Services bundles what the router serves
type Services struct {
	Engine  *matchmaking.Engine
	Parties *matchmaking.PartyEngine
	Store   Store
	Auth    *auth.Service
	Hub     *WebSocketHub
	Metrics prometheus.Gatherer
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux            *http.ServeMux
	engine         *matchmaking.Engine
	parties        *matchmaking.PartyEngine
	store          Store
	auth           *auth.Service
	wsHub          *WebSocketHub
	upgrader       websocket.Upgrader
	allowedOrigins []string
	log            *logrus.Entry
}

// NewRouter creates a new HTTP router. An empty allowedOrigins list allows
// any origin.
func NewRouter(svc Services, allowedOrigins []string, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	hub := svc.Hub
	if hub == nil {
		hub = NewWebSocketHub(log)
	}
	r := &Router{
		mux:            http.NewServeMux(),
		engine:         svc.Engine,
		parties:        svc.Parties,
		store:          svc.Store,
		auth:           svc.Auth,
		wsHub:          hub,
		upgrader:       newUpgrader(allowedOrigins),
		allowedOrigins: allowedOrigins,
		log:            log.WithField("component", "api"),
	}

	// Solo queue
	r.mux.HandleFunc("POST /api/queue", r.requireAuth(r.handleEnqueue))
	r.mux.HandleFunc("GET /api/queue", r.requireAuth(r.handleQueueStatus))
	r.mux.HandleFunc("DELETE /api/queue", r.requireAuth(r.handleCancel))

	// Parties
	r.mux.HandleFunc("POST /api/parties", r.requireAuth(r.handleCreateParty))
	r.mux.HandleFunc("GET /api/parties/{id}", r.requireAuth(r.handleGetParty))
	r.mux.HandleFunc("DELETE /api/parties/{id}", r.requireAuth(r.handleDisbandParty))
	r.mux.HandleFunc("POST /api/parties/{id}/members", r.requireAuth(r.handleJoinParty))
	r.mux.HandleFunc("DELETE /api/parties/{id}/members/me", r.requireAuth(r.handleLeaveParty))
	r.mux.HandleFunc("POST /api/parties/{id}/queue", r.requireAuth(r.handleEnqueueParty))
	r.mux.HandleFunc("GET /api/parties/{id}/queue", r.requireAuth(r.handlePartyQueueStatus))
	r.mux.HandleFunc("DELETE /api/parties/{id}/queue", r.requireAuth(r.handleCancelPartyQueue))

	// Operator routes (admin only)
	r.mux.HandleFunc("GET /api/admin/queues", r.requireAdmin(r.handleQueueDepth))
	r.mux.HandleFunc("POST /api/admin/sweep", r.requireAdmin(r.handleSweep))

	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	r.mux.HandleFunc("GET /health", r.handleHealth)
	if svc.Metrics != nil {
		r.mux.Handle("GET /metrics", promhttp.HandlerFor(svc.Metrics, promhttp.HandlerOpts{}))
	}

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if origin := req.Header.Get("Origin"); origin != "" && originAllowed(r.allowedOrigins, origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Hub returns the websocket hub so it can be registered as a notifier
func (r *Router) Hub() *WebSocketHub {
	return r.wsHub
}

// StartWebSocketHub starts the hub's loop
func (r *Router) StartWebSocketHub() {
	go r.wsHub.Run()
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
