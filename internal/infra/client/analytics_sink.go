package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
)

// HTTPAnalyticsSink forwards tracked events to an external collector as JSON.
type HTTPAnalyticsSink struct {
	httpClient *http.Client
	url        string
	cb         *gobreaker.CircuitBreaker
}

// NewHTTPAnalyticsSink creates a sink posting to url.
func NewHTTPAnalyticsSink(httpClient *http.Client, url string, cb *gobreaker.CircuitBreaker) *HTTPAnalyticsSink {
	return &HTTPAnalyticsSink{httpClient: httpClient, url: url, cb: cb}
}

func (s *HTTPAnalyticsSink) Name() string { return "http" }

// Track posts the flattened record. The caller decides what to do with errors;
// the tracker only logs them.
func (s *HTTPAnalyticsSink) Track(ctx context.Context, event string, record domain.EventRecord) error {
	ctx, span := tracer.Start(ctx, "HTTPAnalyticsSink.Track")
	defer span.End()

	_, err := s.cb.Execute(func() (any, error) {
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Name", event)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("analytics sink returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		span.RecordError(err)
		return &domain.ErrCircuitOpen{Service: "analytics"}
	}
	if err != nil {
		span.RecordError(err)
		return &domain.ErrExternalService{Service: "analytics", Err: err}
	}
	return nil
}
