package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/upsell-checkout-bfa/internal/checkout"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
	"github.com/boddenberg/upsell-checkout-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Probe is a dependency checked by /healthz.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options carries what the router serves. Nil services leave their routes
// unmounted.
type Options struct {
	Checkout *service.CheckoutService
	Tracking *service.TrackingService
	Tokens   *service.SessionTokens
	Sessions *checkout.Sessions
	Offer    domain.Offer

	RateLimitRPS   float64
	RateLimitBurst int
	DebugTracking  bool
	Probes         []Probe
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.Probes, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if opts.Tokens == nil || opts.Sessions == nil || opts.Checkout == nil || opts.Tracking == nil {
		return r
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimitRPS > 0 {
			r.Use(RateLimitMiddleware(NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, 5*time.Minute), logger))
		}
		r.Use(SessionMiddleware(opts.Tokens, logger))
		r.Use(AttributionMiddleware(opts.Tracking))

		// =============================================
		// Session & offer page
		// =============================================
		r.Post("/session", openSessionHandler(opts.Sessions, opts.Tracking, opts.Offer, logger))

		// =============================================
		// Checkout form
		// =============================================
		r.Get("/checkout", getCheckoutHandler(opts.Sessions, logger))
		r.Post("/checkout/open", openFormHandler(opts.Sessions, logger))
		r.Put("/checkout/cpf", enterCPFHandler(opts.Sessions, logger))
		r.Put("/checkout/phone", enterPhoneHandler(opts.Sessions, logger))
		r.Post("/checkout/submit", submitHandler(opts.Sessions, logger))
		r.Post("/checkout/pix/close", closePixHandler(opts.Sessions, logger))
		r.Post("/checkout/confirm", confirmHandler(opts.Sessions, opts.Tracking, logger))

		// =============================================
		// PIX charge
		// =============================================
		r.Get("/pix/{id}/status", pixStatusHandler(opts.Checkout, logger))
		r.Get("/pix/{id}/qrcode", pixQRCodeHandler(opts.Sessions, logger))

		// =============================================
		// Tracking & links
		// =============================================
		r.Post("/events", trackEventHandler(opts.Tracking, logger))
		r.Get("/links/whatsapp", whatsAppLinkHandler(opts.Tracking, logger))
		r.Post("/links/whatsapp/click", whatsAppClickHandler(opts.Tracking, logger))
		r.Get("/links/checkout", checkoutLinkHandler(opts.Tracking, logger))

		if opts.DebugTracking {
			r.Get("/debug/tracking", debugTrackingHandler(opts.Tracking, logger))
			r.Delete("/debug/tracking", clearTrackingHandler(opts.Tracking, logger))
		}
	})

	return r
}

// ============================================================
// Health & probes
// ============================================================

func healthzHandler(probes []Probe, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "upsell-bfa", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		for _, p := range probes {
			start := time.Now()
			err := p.Check(ctx)
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("health probe failed", zap.String("probe", p.Name), zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: p.Name, Status: status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
