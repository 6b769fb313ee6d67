package domain

import "time"

// ============================================================
// PIX charge (payment intent)
// ============================================================

// PaymentMethodPix is the only payment method the upsell offers.
const PaymentMethodPix = "PIX"

// PaymentIntentRequest is the outgoing charge-creation request.
// Built once per submit from the validated identity and the phone digits.
type PaymentIntentRequest struct {
	Name             string        `json:"name" validate:"required,min=2"`
	Email            string        `json:"email" validate:"required,contains=@"`
	CPF              string        `json:"cpf" validate:"required,cpf"`
	Phone            string        `json:"phone" validate:"required,br_phone"`
	PaymentMethod    string        `json:"paymentMethod"`
	AmountMinorUnits int64         `json:"amount" validate:"gt=0"`
	Traceable        bool          `json:"traceable"`
	UTMQuery         string        `json:"utmQuery"`
	Items            []PaymentItem `json:"items" validate:"len=1,dive"`
}

// PaymentItem is a single line item of a charge.
type PaymentItem struct {
	UnitPrice int64  `json:"unitPrice" validate:"gt=0"`
	Title     string `json:"title" validate:"required"`
	Quantity  int    `json:"quantity" validate:"eq=1"`
	Tangible  bool   `json:"tangible"`
}

// PaymentIntentResult is the gateway response for a created PIX charge.
// All four fields are required for the charge to count as created.
type PaymentIntentResult struct {
	PixQrCode string `json:"pixQrCode"`
	PixCode   string `json:"pixCode"`
	Status    string `json:"status"`
	ID        string `json:"id"`
}

// Sentinel statuses returned by status polling.
const (
	PaymentStatusPending = "pending"
	PaymentStatusError   = "error"
)

// PaidStatuses are gateway statuses that mean the charge was settled.
var PaidStatuses = map[string]bool{
	"paid":      true,
	"approved":  true,
	"completed": true,
	"PAID":      true,
	"APPROVED":  true,
	"COMPLETED": true,
}

// Offer describes the upsell being sold on the page.
type Offer struct {
	Title            string        `json:"title"`
	AmountMinorUnits int64         `json:"amountMinorUnits"`
	Countdown        time.Duration `json:"-"`
	PixCountdown     time.Duration `json:"-"`
}

// PaymentStatusResponse is returned by GET /v1/pix/{id}/status.
type PaymentStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Paid   bool   `json:"paid"`
}
