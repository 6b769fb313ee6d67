package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/boddenberg/upsell-checkout-bfa/internal/document"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
)

// GatewayClient creates PIX charges on the payment gateway and polls their status.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	secret     string
	cb         *gobreaker.CircuitBreaker
	reach      port.Reachability
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewGatewayClient creates a new GatewayClient.
func NewGatewayClient(
	httpClient *http.Client,
	baseURL, secret string,
	cb *gobreaker.CircuitBreaker,
	reach port.Reachability,
	logger *zap.Logger,
) *GatewayClient {
	return &GatewayClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		secret:     secret,
		cb:         cb,
		reach:      reach,
		validate:   NewPaymentValidator(),
		logger:     logger,
	}
}

// NewPaymentValidator returns a validator that knows the cpf and br_phone tags.
func NewPaymentValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return document.ValidateCPF(fl.Field().String())
	})
	_ = v.RegisterValidation("br_phone", func(fl validator.FieldLevel) bool {
		return document.ValidatePhone(fl.Field().String())
	})
	return v
}

// IsGatewaySuccess tells the circuit breaker which outcomes leave the gateway
// healthy: rejections of our data do, outages do not.
func IsGatewaySuccess(err error) bool {
	if err == nil {
		return true
	}
	var payErr *domain.ErrPayment
	if errors.As(err, &payErr) {
		return !payErr.Transient()
	}
	return false
}

// CreatePurchase submits a PIX charge. Every failure is a *domain.ErrPayment
// whose Message is ready to be shown to the customer.
func (c *GatewayClient) CreatePurchase(ctx context.Context, req *domain.PaymentIntentRequest) (*domain.PaymentIntentResult, error) {
	ctx, span := tracer.Start(ctx, "GatewayClient.CreatePurchase")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.amount", req.AmountMinorUnits))

	body := *req
	body.CPF = document.Digits(req.CPF)
	body.Phone = document.Digits(req.Phone)
	body.PaymentMethod = domain.PaymentMethodPix
	body.Traceable = true

	// Connectivity is reported before data problems.
	if c.reach != nil && !c.reach.Online(ctx) {
		return nil, fail(span, &domain.ErrPayment{Kind: domain.PaymentErrOffline, Message: domain.MsgOffline})
	}

	if err := c.validate.Struct(&body); err != nil {
		return nil, fail(span, &domain.ErrPayment{
			Kind:    domain.PaymentErrInvalidData,
			Message: domain.MsgInvalidData,
			Err:     err,
		})
	}

	c.logger.Info("sending pix purchase",
		zap.String("cpf", document.MaskCPF(body.CPF)),
		zap.String("phone", document.MaskPhone(body.Phone)),
		zap.Int64("amount", body.AmountMinorUnits),
	)

	result, err := c.cb.Execute(func() (any, error) {
		return c.purchase(ctx, &body)
	})
	if err != nil {
		var payErr *domain.ErrPayment
		if errors.As(err, &payErr) {
			return nil, fail(span, payErr)
		}
		// open breaker, too many half-open requests, transport errors
		return nil, fail(span, &domain.ErrPayment{
			Kind:    domain.PaymentErrUnavailable,
			Message: domain.MsgUnavailable,
			Err:     err,
		})
	}

	return result.(*domain.PaymentIntentResult), nil
}

func (c *GatewayClient) purchase(ctx context.Context, body *domain.PaymentIntentRequest) (*domain.PaymentIntentResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction.purchase", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ErrPayment{Kind: domain.PaymentErrUnavailable, Message: domain.MsgUnavailable, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.ErrPayment{Kind: domain.PaymentErrUnavailable, Status: resp.StatusCode, Message: domain.MsgUnavailable, Err: err}
	}

	c.logger.Info("pix purchase response",
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(raw)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, raw)
	}

	if !gjson.ValidBytes(raw) {
		return nil, &domain.ErrPayment{Kind: domain.PaymentErrMalformedResponse, Status: resp.StatusCode, Message: domain.MsgMalformedResponse}
	}

	fields := gjson.GetManyBytes(raw, "pixQrCode", "pixCode", "status", "id")
	for _, f := range fields {
		if !truthy(f) {
			return nil, &domain.ErrPayment{Kind: domain.PaymentErrIncompleteResponse, Status: resp.StatusCode, Message: domain.MsgIncompleteResponse}
		}
	}

	return &domain.PaymentIntentResult{
		PixQrCode: fields[0].String(),
		PixCode:   fields[1].String(),
		Status:    fields[2].String(),
		ID:        fields[3].String(),
	}, nil
}

// statusError maps a non-2xx gateway answer to the user-facing failure.
func statusError(status int, body []byte) *domain.ErrPayment {
	switch status {
	case http.StatusNotFound:
		return &domain.ErrPayment{Kind: domain.PaymentErrNotFound, Status: status, Message: domain.MsgEndpointNotFound}
	case http.StatusForbidden:
		return &domain.ErrPayment{Kind: domain.PaymentErrAccessDenied, Status: status, Message: domain.MsgAccessDenied}
	case http.StatusBadRequest:
		msg := domain.MsgInvalidData
		if gjson.ValidBytes(body) {
			if m := bodyMessage(body); m != "" {
				msg = m
			}
		}
		return &domain.ErrPayment{Kind: domain.PaymentErrInvalidData, Status: status, Message: msg}
	case http.StatusInternalServerError:
		return &domain.ErrPayment{Kind: domain.PaymentErrProcessing, Status: status, Message: domain.MsgProcessing}
	}

	detail := fmt.Sprintf("Erro %d", status)
	if gjson.ValidBytes(body) {
		detail = "Erro desconhecido"
		if m := bodyMessage(body); m != "" {
			detail = m
		}
	}
	return &domain.ErrPayment{Kind: domain.PaymentErrServer, Status: status, Message: "Erro no servidor: " + detail}
}

// bodyMessage returns the first truthy of message, error.
func bodyMessage(body []byte) string {
	for _, f := range gjson.GetManyBytes(body, "message", "error") {
		if truthy(f) {
			return f.String()
		}
	}
	return ""
}

// truthy mirrors how loosely typed JSON clients test a field for presence.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	case gjson.True, gjson.JSON:
		return true
	}
	return false
}

// GetStatus polls a charge status. It never fails: missing status reads as
// "pending" and any error as the "error" sentinel.
func (c *GatewayClient) GetStatus(ctx context.Context, transactionID string) string {
	ctx, span := tracer.Start(ctx, "GatewayClient.GetStatus")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", transactionID))

	result, err := c.cb.Execute(func() (any, error) {
		return c.status(ctx, transactionID)
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("pix status check failed", zap.String("id", transactionID), zap.Error(err))
		return domain.PaymentStatusError
	}
	return result.(string)
}

func (c *GatewayClient) status(ctx context.Context, transactionID string) (string, error) {
	endpoint := c.baseURL + "/transaction.status/" + url.PathEscape(transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status API returned status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("status API returned malformed body")
	}

	if s := gjson.GetBytes(raw, "status"); truthy(s) {
		return s.String(), nil
	}
	return domain.PaymentStatusPending, nil
}

func fail(span trace.Span, err *domain.ErrPayment) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	return err
}
