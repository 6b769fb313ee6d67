package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

type paymentErrorResponse struct {
	Error string                  `json:"error"`
	Kind  domain.PaymentErrorKind `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON decodes an optional request body. An empty body leaves dst as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(dst)
}

// pageURLFrom returns the page the browser is on: the X-Page-URL header,
// falling back to the Referer.
func pageURLFrom(r *http.Request) string {
	if u := r.Header.Get("X-Page-URL"); u != "" {
		return u
	}
	return r.Referer()
}

// paymentStatusCode maps a payment failure to the HTTP status returned to
// the page. Gateway outages are 503, gateway-side errors 502.
func paymentStatusCode(kind domain.PaymentErrorKind) int {
	switch kind {
	case domain.PaymentErrOffline, domain.PaymentErrUnavailable:
		return http.StatusServiceUnavailable
	case domain.PaymentErrInvalidData:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var payment *domain.ErrPayment
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &payment):
		logger.Warn("payment failed", zap.String("kind", string(payment.Kind)), zap.Int("status", payment.Status))
		writeJSON(w, paymentStatusCode(payment.Kind), paymentErrorResponse{Error: payment.Message, Kind: payment.Kind})
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, "external service error")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
