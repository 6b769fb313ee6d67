// Package checkout holds the upsell checkout form: a pure state machine
// (transitions return the next state plus effects to run) and the
// per-session controller that runs those effects.
package checkout

import (
	"errors"
	"fmt"

	"github.com/boddenberg/upsell-checkout-bfa/internal/document"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
)

// Phase is where the form is in the CPF / submission flow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCPFPending Phase = "cpf_pending"
	PhaseCPFValid   Phase = "cpf_valid"
	PhaseCPFInvalid Phase = "cpf_invalid"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseFailure    Phase = "failure"
)

// Messages shown next to the form fields.
const (
	MsgPhoneInvalid      = "Telefone inválido"
	MsgCPFNotValidated   = "CPF deve ser validado primeiro"
	MsgUnknownPaymentErr = "Erro desconhecido"
)

// Event names emitted by the checkout flow.
const (
	EventUpsellClick      = "upsell_button_click"
	EventPixGenerated     = "pix_generated"
	EventPaymentConfirmed = "payment_confirmed"
	EventTimerExpired     = "timer_expired"
	EventPixExpired       = "pix_expired"
)

// State is one session's checkout form.
type State struct {
	Phase      Phase                  `json:"phase"`
	FormOpen   bool                   `json:"formOpen"`
	CPF        string                 `json:"cpf"`
	CPFError   string                 `json:"cpfError,omitempty"`
	Identity   *domain.IdentityRecord `json:"identity,omitempty"`
	Phone      string                 `json:"phone"`
	PhoneError string                 `json:"phoneError,omitempty"`

	Payment          *domain.PaymentIntentResult `json:"payment,omitempty"`
	PaymentError     string                      `json:"paymentError,omitempty"`
	PaymentErrorKind domain.PaymentErrorKind     `json:"paymentErrorKind,omitempty"`
	PixOpen          bool                        `json:"pixOpen"`
	Confirmed        bool                        `json:"confirmed"`
}

// CPFValid reports whether a positive lookup result is held.
func (s State) CPFValid() bool {
	return s.Identity != nil && (s.Phase == PhaseCPFValid || s.Phase == PhaseFailure)
}

// PhoneValid reports whether the phone field passes validation.
func (s State) PhoneValid() bool {
	return document.ValidatePhone(s.Phone)
}

// CanSubmit is the submittable predicate: CPF valid, phone valid, no lookup
// and no submission in flight.
func (s State) CanSubmit() bool {
	return s.CPFValid() && s.PhoneValid() &&
		s.Phase != PhaseCPFPending && s.Phase != PhaseSubmitting
}

// locked reports whether field edits are ignored: a charge is being created
// or its PIX is on screen.
func (s State) locked() bool {
	return s.Phase == PhaseSubmitting || s.Phase == PhaseSuccess
}

// Effect is a side effect requested by a transition.
type Effect interface{ effect() }

// LookupCPF asks the identity resolver about CPF (digits only).
type LookupCPF struct{ CPF string }

// CreatePaymentIntent submits the charge.
type CreatePaymentIntent struct{ Request *domain.PaymentIntentRequest }

// TrackEvent records a funnel event.
type TrackEvent struct {
	Name   string
	Fields map[string]any
}

// StartPixCountdown starts the PIX expiry timer.
type StartPixCountdown struct{}

// CancelPixCountdown stops the PIX expiry timer.
type CancelPixCountdown struct{}

func (LookupCPF) effect()           {}
func (CreatePaymentIntent) effect() {}
func (TrackEvent) effect()          {}
func (StartPixCountdown) effect()   {}
func (CancelPixCountdown) effect()  {}

// OpenForm opens the payment form from the offer page.
func OpenForm(s State, offer domain.Offer, remaining int64) (State, []Effect) {
	s.FormOpen = true
	return s, []Effect{TrackEvent{
		Name: EventUpsellClick,
		Fields: map[string]any{
			"button":         "activate_offer",
			"offer_price":    FormatAmount(offer.AmountMinorUnits),
			"time_remaining": remaining,
		},
	}}
}

// EnterCPF handles a CPF field change. Reaching 11 digits starts a lookup;
// fewer digits reset the CPF state. Digits beyond 11 are dropped.
func EnterCPF(s State, raw string) (State, []Effect) {
	if s.locked() {
		return s, nil
	}

	digits := truncate(document.Digits(raw), document.CPFLength)
	s.CPF = document.FormatCPF(digits)
	s.CPFError = ""

	if len(digits) < document.CPFLength {
		s.Phase = PhaseIdle
		s.Identity = nil
		return s, nil
	}

	// Same CPF already resolved: nothing to redo.
	if s.Identity != nil && s.Identity.CPF == digits && s.CPFValid() {
		return s, nil
	}

	s.Phase = PhaseCPFPending
	s.Identity = nil
	s.PaymentError = ""
	s.PaymentErrorKind = ""
	return s, []Effect{LookupCPF{CPF: digits}}
}

// CPFResolved applies a lookup result. Results for a CPF that is no longer
// in the field are ignored.
func CPFResolved(s State, cpf string, res domain.CPFValidationResult) (State, []Effect) {
	if s.Phase != PhaseCPFPending || document.Digits(s.CPF) != cpf {
		return s, nil
	}

	if res.IsValid && res.Identity != nil {
		s.Phase = PhaseCPFValid
		s.Identity = res.Identity
		s.CPFError = ""
		return s, nil
	}

	s.Phase = PhaseCPFInvalid
	s.Identity = nil
	s.CPFError = res.Error
	if s.CPFError == "" {
		s.CPFError = domain.MsgInvalidCPF
	}
	return s, nil
}

// EnterPhone handles a phone field change. The error shows once the number
// is long enough to judge, or keeps updating once it has been shown.
func EnterPhone(s State, raw string) (State, []Effect) {
	if s.locked() {
		return s, nil
	}

	digits := truncate(document.Digits(raw), 11)
	s.Phone = document.FormatPhone(digits)

	if len(digits) >= 10 || s.PhoneError != "" {
		s.PhoneError = phoneError(digits)
	}
	return s, nil
}

// SubmitInput carries what a submission needs besides the form.
type SubmitInput struct {
	Offer    domain.Offer
	UTMQuery string
}

// ErrNotSubmittable is returned by the controller when a submit finds the
// form incomplete. The state's field errors say what is missing.
var ErrNotSubmittable = errors.New("checkout form is not submittable")

// Submit moves a submittable form to submitting and asks for the charge.
// Otherwise the field errors explain what is missing and no effect is produced.
func Submit(s State, in SubmitInput) (State, []Effect) {
	if s.Phase == PhaseSubmitting || s.Phase == PhaseCPFPending || s.Phase == PhaseSuccess {
		return s, nil
	}
	if !s.CPFValid() {
		s.CPFError = MsgCPFNotValidated
		return s, nil
	}
	if msg := phoneError(document.Digits(s.Phone)); msg != "" {
		s.PhoneError = msg
		return s, nil
	}

	s.Phase = PhaseSubmitting
	s.PhoneError = ""
	s.PaymentError = ""
	s.PaymentErrorKind = ""

	req := &domain.PaymentIntentRequest{
		Name:             s.Identity.Name,
		Email:            s.Identity.Email,
		CPF:              document.Digits(s.CPF),
		Phone:            document.Digits(s.Phone),
		PaymentMethod:    domain.PaymentMethodPix,
		AmountMinorUnits: in.Offer.AmountMinorUnits,
		Traceable:        true,
		UTMQuery:         in.UTMQuery,
		Items: []domain.PaymentItem{{
			UnitPrice: in.Offer.AmountMinorUnits,
			Title:     in.Offer.Title,
			Quantity:  1,
			Tangible:  false,
		}},
	}
	return s, []Effect{CreatePaymentIntent{Request: req}}
}

// PaymentResolved applies the charge outcome. Failures keep the form
// filled so it can be submitted again.
func PaymentResolved(s State, offer domain.Offer, res *domain.PaymentIntentResult, err error) (State, []Effect) {
	if s.Phase != PhaseSubmitting {
		return s, nil
	}

	if err != nil || res == nil {
		s.Phase = PhaseFailure
		s.PaymentError, s.PaymentErrorKind = paymentMessage(err)
		return s, nil
	}

	s.Phase = PhaseSuccess
	s.Payment = res
	s.PixOpen = true
	s.FormOpen = false

	paymentID := res.ID
	if paymentID == "" {
		paymentID = "unknown"
	}
	return s, []Effect{
		TrackEvent{Name: EventPixGenerated, Fields: map[string]any{
			"amount":     FormatAmount(offer.AmountMinorUnits),
			"payment_id": paymentID,
		}},
		StartPixCountdown{},
	}
}

// ClosePix dismisses the PIX modal. The identity and phone stay, so a new
// charge can be generated.
func ClosePix(s State) (State, []Effect) {
	if !s.PixOpen {
		return s, nil
	}
	s.PixOpen = false
	if s.Phase == PhaseSuccess {
		s.Phase = PhaseCPFValid
	}
	return s, []Effect{CancelPixCountdown{}}
}

// ConfirmPayment records that the customer reports having paid and moves to
// the thank-you page. It reports false when there is no charge to confirm.
func ConfirmPayment(s State, offer domain.Offer) (State, []Effect, bool) {
	if s.Phase != PhaseSuccess || s.Payment == nil {
		return s, nil, false
	}
	if s.Confirmed {
		return s, nil, true
	}
	s.Confirmed = true
	s.PixOpen = false
	return s, []Effect{
		TrackEvent{Name: EventPaymentConfirmed, Fields: map[string]any{
			"amount": FormatAmount(offer.AmountMinorUnits),
			"method": "pix",
		}},
		CancelPixCountdown{},
	}, true
}

// FormatAmount renders minor units as "29.90".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func phoneError(digits string) string {
	if document.ValidatePhone(digits) {
		return ""
	}
	return MsgPhoneInvalid
}

func paymentMessage(err error) (string, domain.PaymentErrorKind) {
	var payErr *domain.ErrPayment
	if errors.As(err, &payErr) {
		return payErr.Message, payErr.Kind
	}
	if err != nil {
		return err.Error(), ""
	}
	return MsgUnknownPaymentErr, ""
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
