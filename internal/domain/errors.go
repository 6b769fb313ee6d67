package domain

import "fmt"

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates an invalid or missing session token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates the operation clashes with the current state
// (e.g. a submission already in flight).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ============================================================
// Payment intent errors
// ============================================================

// PaymentErrorKind categorises payment-intent failures.
type PaymentErrorKind string

const (
	PaymentErrOffline            PaymentErrorKind = "offline"
	PaymentErrNotFound           PaymentErrorKind = "not_found"
	PaymentErrAccessDenied       PaymentErrorKind = "access_denied"
	PaymentErrInvalidData        PaymentErrorKind = "invalid_data"
	PaymentErrProcessing         PaymentErrorKind = "processing"
	PaymentErrServer             PaymentErrorKind = "server"
	PaymentErrIncompleteResponse PaymentErrorKind = "incomplete_response"
	PaymentErrMalformedResponse  PaymentErrorKind = "malformed_response"
	PaymentErrUnavailable        PaymentErrorKind = "unavailable"
)

// User-facing messages for each payment failure.
const (
	MsgOffline            = "Sem conexão com a internet. Por favor, verifique sua conexão e tente novamente."
	MsgEndpointNotFound   = "API não encontrada. Por favor, tente novamente mais tarde."
	MsgAccessDenied       = "Acesso negado. Verifique se a chave de API está correta."
	MsgInvalidData        = "Dados inválidos. Verifique as informações e tente novamente."
	MsgProcessing         = "Erro no processamento do pagamento. Por favor, aguarde alguns minutos e tente novamente. Se o problema persistir, entre em contato com o suporte."
	MsgIncompleteResponse = "Resposta incompleta do servidor. Por favor, tente novamente."
	MsgMalformedResponse  = "Erro ao processar resposta do servidor. Por favor, tente novamente."
	MsgUnavailable        = "Servidor indisponível. Por favor, tente novamente em alguns minutos."
)

// ErrPayment is a payment-intent failure carrying the message shown to the user.
type ErrPayment struct {
	Kind    PaymentErrorKind
	Status  int // HTTP status from the gateway, 0 when no response
	Message string
	Err     error
}

func (e *ErrPayment) Error() string {
	return e.Message
}

func (e *ErrPayment) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure says nothing about the gateway's health
// being broken by our request (used by the circuit breaker).
func (e *ErrPayment) Transient() bool {
	switch e.Kind {
	case PaymentErrProcessing, PaymentErrServer, PaymentErrUnavailable, PaymentErrNotFound:
		return true
	}
	return false
}
