package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/leadcapture/internal/compliance"
	"github.com/wolfman30/leadcapture/internal/eligibility"
	httpmiddleware "github.com/wolfman30/leadcapture/internal/http/middleware"
	"github.com/wolfman30/leadcapture/internal/intake"
	"github.com/wolfman30/leadcapture/internal/leads"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	LeadsHandler       *leads.Handler
	IntakeHandler      *intake.Handler
	EligibilityHandler *eligibility.Handler
	// AuditHandler is optional; it needs a database.
	AuditHandler *compliance.AuditHandler

	// AdminAuthSecret protects the read and update routes. Empty leaves them open.
	AdminAuthSecret    string
	CORSAllowedOrigins []string
	// RateLimiter throttles the public submission routes when set.
	RateLimiter    *httpmiddleware.RateLimiter
	MetricsHandler http.Handler
	// HealthCheck reports dependency health; nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	public := func(h http.HandlerFunc) http.Handler {
		if cfg.RateLimiter == nil {
			return h
		}
		return cfg.RateLimiter.Middleware(h)
	}
	admin := func(r chi.Router) {
		if cfg.AdminAuthSecret != "" {
			r.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		}
	}

	r.Route("/leads", func(lr chi.Router) {
		if cfg.IntakeHandler != nil {
			lr.Method(http.MethodPost, "/", public(cfg.IntakeHandler.SubmitLead))
			lr.Method(http.MethodPost, "/otp", public(cfg.IntakeHandler.SendOTP))
		}
		lr.Group(func(ar chi.Router) {
			admin(ar)
			if cfg.LeadsHandler != nil {
				ar.Get("/", cfg.LeadsHandler.ListLeads)
				ar.Get("/{id}", cfg.LeadsHandler.GetLead)
			}
			if cfg.AuditHandler != nil {
				ar.Get("/{id}/compliance", cfg.AuditHandler.ListForLead)
			}
		})
	})

	if cfg.EligibilityHandler != nil {
		r.Route("/eligibility/leads", func(er chi.Router) {
			er.Method(http.MethodPost, "/", public(cfg.EligibilityHandler.Submit))
			er.Group(func(ar chi.Router) {
				admin(ar)
				ar.Get("/", cfg.EligibilityHandler.List)
				ar.Get("/{id}", cfg.EligibilityHandler.Get)
				ar.Put("/{id}", cfg.EligibilityHandler.Update)
				ar.Delete("/{id}", cfg.EligibilityHandler.Delete)
			})
		})
	}

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
