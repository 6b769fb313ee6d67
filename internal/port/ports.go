// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
)

// CPFLookup resolves a CPF to a customer identity. It never fails:
// lookup outages degrade to a placeholder identity.
type CPFLookup interface {
	Lookup(ctx context.Context, cpf string) domain.CPFValidationResult
}

// PaymentGateway creates PIX charges and reports their status.
type PaymentGateway interface {
	CreatePurchase(ctx context.Context, req *domain.PaymentIntentRequest) (*domain.PaymentIntentResult, error)
	GetStatus(ctx context.Context, transactionID string) string
}

// Reachability reports whether the service currently has network reachability
// to the payment gateway.
type Reachability interface {
	Online(ctx context.Context) bool
}

// AnalyticsSink receives every tracked event (e.g. an external tracking pixel API).
type AnalyticsSink interface {
	Name() string
	Track(ctx context.Context, event string, record domain.EventRecord) error
}

// KeyValueStore is the per-session persisted state (the browser's local storage).
// Get returns ok=false when the key does not exist.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// IdentityResolver validates a CPF and resolves the holder's identity.
type IdentityResolver interface {
	LookupCPF(ctx context.Context, cpf string) domain.CPFValidationResult
}

// PaymentIntentCreator creates the PIX charge for a checkout submission.
type PaymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, req *domain.PaymentIntentRequest) (*domain.PaymentIntentResult, error)
}

// EventRecorder tracks a funnel event on behalf of a session.
type EventRecorder interface {
	Record(ctx context.Context, sessionID, event, pageURL string, fields map[string]any)
}

// AttributionSource renders a session's stored attribution as a query fragment.
type AttributionSource interface {
	Fragment(ctx context.Context, sessionID string) string
}
