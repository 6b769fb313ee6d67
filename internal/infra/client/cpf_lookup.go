package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/upsell-checkout-bfa/internal/document"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
)

var tracer = otel.Tracer("client")

// maxBodyBytes bounds how much of an upstream response we read.
const maxBodyBytes = 1 << 20

// CPFLookupClient resolves a CPF to a customer name using the public lookup API.
// It is best-effort: any failure yields the placeholder identity.
type CPFLookupClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
}

// NewCPFLookupClient creates a new CPFLookupClient.
func NewCPFLookupClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker) *CPFLookupClient {
	return &CPFLookupClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
	}
}

// Lookup validates the CPF locally and, when valid, asks the lookup API for the
// holder's name. A single attempt is made; there is no retry.
func (c *CPFLookupClient) Lookup(ctx context.Context, cpf string) domain.CPFValidationResult {
	digits := document.Digits(cpf)
	if !document.ValidateCPF(digits) {
		return domain.CPFValidationResult{IsValid: false, Error: domain.MsgInvalidCPF}
	}

	ctx, span := tracer.Start(ctx, "CPFLookupClient.Lookup")
	defer span.End()

	identity := &domain.IdentityRecord{
		CPF:   digits,
		Name:  domain.PlaceholderName,
		Email: PlaceholderEmail(digits),
	}

	result, err := c.cb.Execute(func() (any, error) {
		return c.fetchName(ctx, digits)
	})
	if err == nil {
		if name, _ := result.(string); name != "" {
			identity.Name = name
		}
	}
	span.SetAttributes(attribute.Bool("cpf.named", identity.Name != domain.PlaceholderName))

	return domain.CPFValidationResult{IsValid: true, Identity: identity}
}

func (c *CPFLookupClient) fetchName(ctx context.Context, digits string) (string, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, digits)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("cpf lookup API returned status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("cpf lookup API returned malformed body")
	}

	// An OK answer without a name is not a failure of the service.
	parsed := gjson.ParseBytes(body)
	if parsed.Get("status").String() == "OK" {
		return parsed.Get("nome").String(), nil
	}
	return "", nil
}

// PlaceholderEmail is the contact email derived from the CPF's last four digits.
func PlaceholderEmail(cpf string) string {
	return fmt.Sprintf("cliente%s@email.com", document.LastDigits(document.Digits(cpf), 4))
}
