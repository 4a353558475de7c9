package presentation

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RaikyD/storefront-orders/internal/metrics"
	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Orders    *OrdersHandler
	Payments  *PaymentsHandler
	JWTSecret []byte
	Health    Pinger
	Metrics   *metrics.ServerMetrics
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/healthz", healthz(cfg.Health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		if cfg.Payments != nil {
			cfg.Payments.RegisterWebhook(api)
		}
		api.Group(func(authed chi.Router) {
			authed.Use(RequireAuth(cfg.JWTSecret))
			if cfg.Orders != nil {
				cfg.Orders.Register(authed)
			}
			if cfg.Payments != nil {
				cfg.Payments.Register(authed)
			}
		})
	})
	return r
}

func healthz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				helpers.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
