// Package service provides the business logic layer (use cases).
// CheckoutService wraps the CPF lookup and payment gateway clients used by
// the checkout controllers; TrackingService owns attribution and events.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/upsell-checkout-bfa/internal/document"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var checkoutTracer = otel.Tracer("service/checkout")

// CPF lookup outcomes reported to metrics.
const (
	lookupInvalid     = "invalid"
	lookupNamed       = "named"
	lookupPlaceholder = "placeholder"
)

// CheckoutService resolves identities and creates PIX charges.
type CheckoutService struct {
	lookup  port.CPFLookup
	gateway port.PaymentGateway
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(lookup port.CPFLookup, gateway port.PaymentGateway, metrics *observability.Metrics, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{lookup: lookup, gateway: gateway, metrics: metrics, logger: logger}
}

// ============================================================
// CPF lookup
// ============================================================

// LookupCPF validates the CPF and resolves the holder. It never fails:
// lookup outages come back as the placeholder identity.
func (s *CheckoutService) LookupCPF(ctx context.Context, cpf string) domain.CPFValidationResult {
	ctx, span := checkoutTracer.Start(ctx, "CheckoutService.LookupCPF")
	defer span.End()

	start := time.Now()
	res := s.lookup.Lookup(ctx, cpf)
	s.metrics.RecordRequestDuration("cpf_lookup", time.Since(start))

	outcome := lookupOutcome(res)
	s.metrics.IncrCPFLookup(outcome)
	span.SetAttributes(attribute.String("cpf.outcome", outcome))

	s.logger.Info("cpf lookup",
		zap.String("cpf", document.MaskCPF(cpf)),
		zap.String("outcome", outcome),
	)
	return res
}

func lookupOutcome(res domain.CPFValidationResult) string {
	switch {
	case !res.IsValid || res.Identity == nil:
		return lookupInvalid
	case res.Identity.Name == domain.PlaceholderName:
		return lookupPlaceholder
	default:
		return lookupNamed
	}
}

// ============================================================
// PIX charges
// ============================================================

// CreatePaymentIntent creates the PIX charge. Failures are *domain.ErrPayment
// carrying the message shown to the customer.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, req *domain.PaymentIntentRequest) (*domain.PaymentIntentResult, error) {
	ctx, span := checkoutTracer.Start(ctx, "CheckoutService.CreatePaymentIntent")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.amount", req.AmountMinorUnits))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("payment_intent", time.Since(start)) }()

	res, err := s.gateway.CreatePurchase(ctx, req)
	if err != nil {
		outcome := "error"
		var payErr *domain.ErrPayment
		if errors.As(err, &payErr) {
			outcome = string(payErr.Kind)
		}
		s.metrics.IncrPaymentIntent(outcome)
		span.RecordError(err)

		s.logger.Warn("pix charge failed",
			zap.String("cpf", document.MaskCPF(req.CPF)),
			zap.String("phone", document.MaskPhone(req.Phone)),
			zap.String("kind", outcome),
		)
		return nil, err
	}

	s.metrics.IncrPaymentIntent("created")
	span.SetAttributes(attribute.String("payment.id", res.ID))
	s.logger.Info("pix charge created",
		zap.String("id", res.ID),
		zap.String("status", res.Status),
	)
	return res, nil
}

// PaymentStatus polls a charge. The gateway error never surfaces: the
// returned status is the "error" sentinel instead.
func (s *CheckoutService) PaymentStatus(ctx context.Context, id string) (*domain.PaymentStatusResponse, error) {
	ctx, span := checkoutTracer.Start(ctx, "CheckoutService.PaymentStatus")
	defer span.End()

	if id == "" {
		return nil, &domain.ErrValidation{Field: "id", Message: "id é obrigatório"}
	}

	start := time.Now()
	status := s.gateway.GetStatus(ctx, id)
	s.metrics.RecordRequestDuration("payment_status", time.Since(start))

	span.SetAttributes(attribute.String("payment.status", status))
	return &domain.PaymentStatusResponse{
		ID:     id,
		Status: status,
		Paid:   domain.PaidStatuses[status],
	}, nil
}
