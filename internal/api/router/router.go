package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/dangtnh/coworkhub-platform/internal/http/middleware"
	"github.com/dangtnh/coworkhub-platform/internal/reservations"
	"github.com/dangtnh/coworkhub-platform/internal/vietqr"
	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	VietQRHandler       *vietqr.Handler
	ReservationsHandler *reservations.Handler
	MetricsHandler      http.Handler
	AdminAuthSecret     string
	SweepSecret         string
	TokenRateLimit      float64
	TokenRateBurst      int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (partner integration, health, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.VietQRHandler != nil {
			public.Route("/api", func(api chi.Router) {
				rate, burst := cfg.TokenRateLimit, cfg.TokenRateBurst
				if rate <= 0 {
					rate = 2
				}
				if burst <= 0 {
					burst = 5
				}
				api.With(httpmiddleware.RateLimit(rate, burst)).Post("/token_generate", cfg.VietQRHandler.HandleTokenGenerate)
				api.Post("/transaction-sync", cfg.VietQRHandler.HandleTransactionSync)
			})
		}
		if cfg.ReservationsHandler != nil {
			public.With(httpmiddleware.RequireSweepSecret(cfg.SweepSecret)).
				Post("/internal/sweep", cfg.ReservationsHandler.TriggerSweep)
		}
	})

	// Customer self-service (identity asserted by the upstream auth layer)
	if cfg.ReservationsHandler != nil {
		r.Post("/reservations/{id}/cancel", cfg.ReservationsHandler.CancelByCustomer)
	}

	// Admin routes (protected by HMAC JWT)
	if cfg.ReservationsHandler != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/reservations/{id}", func(res chi.Router) {
				res.Get("/", cfg.ReservationsHandler.AdminGet)
				res.Post("/confirm", cfg.ReservationsHandler.AdminConfirm)
				res.Post("/cancel", cfg.ReservationsHandler.AdminCancel)
			})
		})
	}

	return r
}
