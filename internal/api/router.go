package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-nova/lms-announce/internal/auth"
	"github.com/micro-nova/lms-announce/internal/config"
)

// Deps are the collaborators the router needs.
type Deps struct {
	Coordinator Coordinator
	Submitter   Submitter
	Events      EventBus
	Auth        *auth.Service
	Zones       []config.ZoneConfig
	LMSOnline   func() bool // nil when reachability is not monitored
}

// NewRouter creates and returns the main HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{coord: d.Coordinator, submit: d.Submitter, events: d.Events, zones: d.Zones, online: d.LMSOnline}

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth.Middleware)
		}

		r.Post("/api/announce", h.announce)
		r.Get("/api/status", h.getStatus)
		r.Get("/api/zones", h.getZones)
		r.Get("/api/zones/{zid}", h.getZone)
		r.Get("/api/subscribe", h.sseEvents)
	})

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
