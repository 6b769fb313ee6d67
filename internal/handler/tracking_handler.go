package handler

import (
	"net/http"
	"net/url"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Events: POST /v1/events
// ============================================================

func trackEventHandler(svc *service.TrackingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/events")
		defer span.End()

		var req domain.TrackEventRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Event == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "event", Message: "event é obrigatório"}, logger)
			return
		}
		span.SetAttributes(attribute.String("event.name", req.Event))

		pageURL := req.URL
		if pageURL == "" {
			pageURL = pageURLFrom(r)
		}

		rec := svc.Track(ctx, SessionIDFromContext(ctx), req.Event, pageURL, req.Data)
		writeJSON(w, http.StatusAccepted, rec)
	}
}

// ============================================================
// Links: /v1/links
// ============================================================

func whatsAppLinkHandler(svc *service.TrackingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		writeJSON(w, http.StatusOK, domain.LinkResponse{URL: svc.WhatsAppLink(ctx, SessionIDFromContext(ctx))})
	}
}

func whatsAppClickHandler(svc *service.TrackingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/links/whatsapp/click")
		defer span.End()

		link := svc.ClickWhatsApp(ctx, SessionIDFromContext(ctx), pageURLFrom(r))
		writeJSON(w, http.StatusOK, domain.LinkResponse{URL: link})
	}
}

func checkoutLinkHandler(svc *service.TrackingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		base := r.URL.Query().Get("url")
		if base == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "url", Message: "url é obrigatória"}, logger)
			return
		}
		if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "url", Message: "url inválida"}, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.LinkResponse{URL: svc.CheckoutURL(ctx, SessionIDFromContext(ctx), base)})
	}
}

// ============================================================
// Debug: /v1/debug/tracking
// ============================================================

func debugTrackingHandler(svc *service.TrackingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		current := r.URL.Query()
		if u, err := url.Parse(pageURLFrom(r)); err == nil && len(u.Query()) > 0 {
			current = u.Query()
		}
		writeJSON(w, http.StatusOK, svc.DebugSnapshot(ctx, SessionIDFromContext(ctx), current))
	}
}

func clearTrackingHandler(svc *service.TrackingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := svc.Clear(ctx, SessionIDFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
