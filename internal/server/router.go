package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/hospitaltm/citas-dashboard/pkg/httputil"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "dashboard-server"

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) map[string]string

// RouterConfig holds everything the router mounts.
type RouterConfig struct {
	Sessions       *SessionHandler
	AllowedOrigins []string
	Health         map[string]HealthCheck
	Logger         *logger.Logger
}

// OriginAllowed matches origin against the allowed list. An entry starting
// with "*." allows every subdomain of the rest, and an empty list allows
// only requests without an Origin header.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
		if strings.HasPrefix(a, "*.") {
			u, err := url.Parse(origin)
			if err == nil && strings.HasSuffix(u.Host, a[1:]) {
				return true
			}
		}
	}
	return false
}

// NewUpgrader creates a websocket upgrader checking origins like the CORS layer.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return OriginAllowed(allowed, r.Header.Get("Origin"))
		},
	}
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(cfg.Logger))
	r.Use(httputil.Recoverer(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return OriginAllowed(cfg.AllowedOrigins, origin)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-CSRFToken", "Accept-Language"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "healthy",
			"service": ServiceName,
		}
		for name, check := range cfg.Health {
			body[name] = check(r.Context())
		}
		httputil.JSON(w, http.StatusOK, body)
	})

	h := cfg.Sessions
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pages", h.Pages)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Delete("/", h.Delete)
				r.Get("/ws", h.Stream)
				r.Patch("/controls", h.Control)
				r.Post("/alerts/ack", h.AckAlerts)

				// dashboards
				r.Post("/refresh", h.Refresh)
				r.Post("/tabs/{tab}", h.ActivateTab)
				r.Get("/export", h.Export)
				r.Get("/snapshots", h.Snapshots)

				r.Post("/derivacion/submit", h.SubmitReferral)

				r.Route("/receta", func(r chi.Router) {
					r.Get("/buscar", h.SearchMedications)
					r.Post("/medicamentos", h.AddMedication)
					r.Patch("/medicamentos/{medID}", h.UpdateMedication)
					r.Delete("/medicamentos/{medID}", h.RemoveMedication)
					r.Put("/prescribir", h.SetPrescribe)
					r.Post("/submit", h.SubmitAttention)
				})

				r.Route("/notificaciones", func(r chi.Router) {
					r.Post("/", h.SeedNotifications)
					r.Get("/contador", h.Counter)
					r.Post("/{notifID}/leida", h.MarkRead)
				})
			})
		})
	})

	return r
}
