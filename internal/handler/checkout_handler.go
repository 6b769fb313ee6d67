package handler

import (
	"errors"
	"net/http"

	"github.com/boddenberg/upsell-checkout-bfa/internal/checkout"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// checkoutView is the checkout form as returned to the page.
type checkoutView struct {
	SessionID    string                `json:"sessionId"`
	State        checkout.State        `json:"state"`
	CanSubmit    bool                  `json:"canSubmit"`
	Countdown    *domain.CountdownView `json:"countdown,omitempty"`
	PixCountdown *domain.CountdownView `json:"pixCountdown,omitempty"`
}

type notSubmittableResponse struct {
	Error    string       `json:"error"`
	Checkout checkoutView `json:"checkout"`
}

func viewOf(c *checkout.Controller, st checkout.State) checkoutView {
	v := checkoutView{
		SessionID: c.ID(),
		State:     st,
		CanSubmit: st.CanSubmit(),
	}
	if t := c.OfferCountdown(); t != nil {
		v.Countdown = t.View()
	}
	if t := c.PixCountdown(); t != nil {
		v.PixCountdown = t.View()
	}
	return v
}

// sessionController returns the caller's checkout controller, creating it on
// first use, and records the page the browser is on.
func sessionController(w http.ResponseWriter, r *http.Request, sessions *checkout.Sessions, logger *zap.Logger) (*checkout.Controller, bool) {
	ctrl, _, err := sessions.Open(SessionIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err, logger)
		return nil, false
	}
	ctrl.SetPageURL(pageURLFrom(r))
	return ctrl, true
}

// ============================================================
// Session: POST /v1/session
// ============================================================

func openSessionHandler(sessions *checkout.Sessions, tracking *service.TrackingService, offer domain.Offer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/session")
		defer span.End()

		var req struct {
			URL      string `json:"url"`
			Referrer string `json:"referrer"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sessionID := SessionIDFromContext(ctx)
		span.SetAttributes(attribute.String("session.id", sessionID))

		ctrl, created, err := sessions.Open(sessionID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		pageURL := req.URL
		if pageURL == "" {
			pageURL = pageURLFrom(r)
		}
		ctrl.SetPageURL(pageURL)

		resp := domain.SessionResponse{
			SessionID:   sessionID,
			Token:       sessionTokenFromContext(ctx),
			Offer:       offer,
			Attribution: tracking.PageLoad(ctx, sessionID, pageURL, req.Referrer),
		}
		if t := ctrl.OfferCountdown(); t != nil {
			resp.Countdown = t.View()
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, resp)
	}
}

// ============================================================
// Checkout form: /v1/checkout
// ============================================================

func getCheckoutHandler(sessions *checkout.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl, ok := sessionController(w, r, sessions, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, viewOf(ctrl, ctrl.State()))
	}
}

func openFormHandler(sessions *checkout.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/open")
		defer span.End()

		ctrl, ok := sessionController(w, r, sessions, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, viewOf(ctrl, ctrl.Open(ctx)))
	}
}

func enterCPFHandler(sessions *checkout.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/checkout/cpf")
		defer span.End()

		var req struct {
			CPF string `json:"cpf"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ctrl, ok := sessionController(w, r, sessions, logger)
		if !ok {
			return
		}
		st := ctrl.EnterCPF(ctx, req.CPF)
		span.SetAttributes(attribute.String("checkout.phase", string(st.Phase)))
		writeJSON(w, http.StatusOK, viewOf(ctrl, st))
	}
}

func enterPhoneHandler(sessions *checkout.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/checkout/phone")
		defer span.End()

		var req struct {
			Phone string `json:"phone"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ctrl, ok := sessionController(w, r, sessions, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, viewOf(ctrl, ctrl.EnterPhone(ctx, req.Phone)))
	}
}

func submitHandler(sessions *checkout.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/submit")
		defer span.End()

		ctrl, ok := sessionController(w, r, sessions, logger)
		if !ok {
			return
		}

		st, err := ctrl.Submit(ctx)
		if errors.Is(err, checkout.ErrNotSubmittable) {
			msg := st.CPFError
			if msg == "" {
				msg = st.PhoneError
			}
			writeJSON(w, http.StatusUnprocessableEntity, notSubmittableResponse{Error: msg, Checkout: viewOf(ctrl, st)})
			return
		}
		if err == nil && st.Payment == nil {
			err = &domain.ErrNotFound{Resource: "session", ID: ctrl.ID()}
		}
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, logger)
			return
		}

		span.SetAttributes(attribute.String("payment.id", st.Payment.ID))
		writeJSON(w, http.StatusCreated, viewOf(ctrl, st))
	}
}

func closePixHandler(sessions *checkout.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/pix/close")
		defer span.End()

		ctrl, ok := sessionController(w, r, sessions, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, viewOf(ctrl, ctrl.ClosePix(ctx)))
	}
}

func confirmHandler(sessions *checkout.Sessions, tracking *service.TrackingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/confirm")
		defer span.End()

		ctrl, ok := sessionController(w, r, sessions, logger)
		if !ok {
			return
		}

		st, err := ctrl.Confirm(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ThankYouResponse{
			Confirmed:    st.Confirmed,
			WhatsAppLink: tracking.WhatsAppLink(ctx, ctrl.ID()),
		})
	}
}
