// Package router assembles the HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aidanalabs/agenda-bot/internal/http/handlers"
	httpmiddleware "github.com/aidanalabs/agenda-bot/internal/http/middleware"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger            *logging.Logger
	Webhook           *handlers.WhatsAppWebhookHandler
	ReservationStatus *handlers.ReservationStatusHandler
	ConversationOps   *handlers.ConversationOpsHandler
	MetricsHandler    http.Handler

	// OperatorSecret signs the HS256 tokens accepted on the operator
	// endpoints. Empty keeps the group closed.
	OperatorSecret string

	PanelOrigins []string

	// Per-sender rate limit for the public webhook. Zero disables it.
	WebhookRatePerSec float64
	WebhookBurst      int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.PanelOrigins) > 0 {
		r.Use(httpmiddleware.PanelCORS(cfg.PanelOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handlers.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Group(func(public chi.Router) {
			if cfg.WebhookRatePerSec > 0 {
				public.Use(httpmiddleware.WebhookThrottle(cfg.WebhookRatePerSec, cfg.WebhookBurst))
			}
			public.Post("/webhooks/whatsapp", cfg.Webhook.Handle)
		})
	}

	r.Group(func(ops chi.Router) {
		ops.Use(httpmiddleware.OperatorJWT(cfg.OperatorSecret))
		if cfg.ReservationStatus != nil {
			ops.Post("/reservations/status", cfg.ReservationStatus.Handle)
		}
		if cfg.ConversationOps != nil {
			ops.Post("/conversations/quote", cfg.ConversationOps.HandleQuote)
			ops.Post("/conversations/human", cfg.ConversationOps.HandleHumanFlag)
		}
	})

	return r
}
