package handler

import (
	"bytes"
	"net/http"

	"github.com/boddenberg/upsell-checkout-bfa/internal/checkout"
	"github.com/boddenberg/upsell-checkout-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/yeqown/go-qrcode"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// PIX charge
// ============================================================

// pixStatusHandler polls the gateway for a charge status. Gateway failures
// come back as status "error" with 200 so the page keeps polling.
func pixStatusHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pix/{id}/status")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("payment.id", id))

		resp, err := svc.PaymentStatus(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// pixQRCodeHandler renders the session's PIX copy-paste code as a JPEG QR
// image. Only the charge held by the caller's session can be rendered.
func pixQRCodeHandler(sessions *checkout.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/pix/{id}/qrcode")
		defer span.End()

		id := chi.URLParam(r, "id")
		ctrl, ok := sessions.Get(SessionIDFromContext(r.Context()))
		if !ok {
			writeError(w, http.StatusNotFound, "PIX não encontrado")
			return
		}
		payment := ctrl.State().Payment
		if payment == nil || payment.ID != id || payment.PixCode == "" {
			writeError(w, http.StatusNotFound, "PIX não encontrado")
			return
		}

		qrc, err := qrcode.New(payment.PixCode)
		if err != nil {
			logger.Error("qrcode: encode failed", zap.String("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		var buf bytes.Buffer
		if err := qrc.SaveTo(&buf); err != nil {
			logger.Error("qrcode: render failed", zap.String("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}
