package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/cache"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/client"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/resilience"
)

const (
	validCPF   = "52998224725"
	validPhone = "11999998888"
)

// countingServer counts requests and answers with handler.
func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func validRequest() *domain.PaymentIntentRequest {
	return &domain.PaymentIntentRequest{
		Name:             "Maria Silva",
		Email:            "cliente4725@email.com",
		CPF:              "529.982.247-25",
		Phone:            "(11) 99999-8888",
		AmountMinorUnits: 2990,
		UTMQuery:         "&utm_source=fb",
		Items: []domain.PaymentItem{{
			UnitPrice: 2990,
			Title:     "Combo VIP",
			Quantity:  1,
		}},
	}
}

func newGateway(url string, online bool) *client.GatewayClient {
	cb := resilience.NewCircuitBreaker("gateway-test", client.IsGatewaySuccess)
	return client.NewGatewayClient(&http.Client{Timeout: time.Second}, url, "secret-key", cb, client.StaticReachability(online), zap.NewNop())
}

func asPaymentError(t *testing.T, err error) *domain.ErrPayment {
	t.Helper()
	var payErr *domain.ErrPayment
	if !errors.As(err, &payErr) {
		t.Fatalf("expected *domain.ErrPayment, got %T (%v)", err, err)
	}
	return payErr
}

// ============================================================
// CPF lookup
// ============================================================

func newLookup(url string, timeout time.Duration) *client.CPFLookupClient {
	cb := resilience.NewCircuitBreaker("cpf-test", nil)
	return client.NewCPFLookupClient(&http.Client{Timeout: timeout}, url, cb)
}

func TestCPFLookup_InvalidCPFMakesNoRequest(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})

	res := newLookup(srv.URL, time.Second).Lookup(context.Background(), "111.111.111-11")

	if res.IsValid {
		t.Fatal("expected invalid result")
	}
	if res.Error != domain.MsgInvalidCPF {
		t.Errorf("expected %q, got %q", domain.MsgInvalidCPF, res.Error)
	}
	if res.Identity != nil {
		t.Error("expected no identity for invalid cpf")
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("expected no network call, got %d", *hits)
	}
}

func TestCPFLookup_NamedHolder(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+validCPF {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"OK","nome":"Maria Silva"}`))
	})

	res := newLookup(srv.URL, time.Second).Lookup(context.Background(), "529.982.247-25")

	if !res.IsValid || res.Identity == nil {
		t.Fatalf("expected valid identity, got %+v", res)
	}
	if res.Identity.Name != "Maria Silva" {
		t.Errorf("expected name from lookup, got %q", res.Identity.Name)
	}
	if res.Identity.Email != "cliente4725@email.com" {
		t.Errorf("unexpected email %q", res.Identity.Email)
	}
	if res.Identity.CPF != validCPF {
		t.Errorf("expected digits-only cpf, got %q", res.Identity.CPF)
	}
}

func TestCPFLookup_FallsBackToPlaceholder(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		},
		"not ok status": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ERROR","nome":"Ignored"}`))
		},
		"ok without name": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"OK"}`))
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"status":"OK","nome":"Too Late"}`))
		},
	}

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := countingServer(t, h)

			res := newLookup(srv.URL, 50*time.Millisecond).Lookup(context.Background(), validCPF)

			if !res.IsValid || res.Identity == nil {
				t.Fatalf("expected valid placeholder, got %+v", res)
			}
			if res.Identity.Name != domain.PlaceholderName {
				t.Errorf("expected placeholder name, got %q", res.Identity.Name)
			}
			if res.Identity.Email != "cliente4725@email.com" {
				t.Errorf("unexpected email %q", res.Identity.Email)
			}
		})
	}
}

// ============================================================
// Gateway: create purchase
// ============================================================

func TestCreatePurchase_Success(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction.purchase" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "secret-key" {
			t.Errorf("expected secret header, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["cpf"] != validCPF || body["phone"] != validPhone {
			t.Errorf("expected digits-only cpf/phone, got %v / %v", body["cpf"], body["phone"])
		}
		if body["paymentMethod"] != "PIX" || body["traceable"] != true {
			t.Errorf("unexpected method/traceable: %v", body)
		}
		if body["amount"] != float64(2990) || body["utmQuery"] != "&utm_source=fb" {
			t.Errorf("unexpected amount/utm: %v", body)
		}
		items := body["items"].([]any)
		item := items[0].(map[string]any)
		if item["unitPrice"] != float64(2990) || item["quantity"] != float64(1) || item["tangible"] != false {
			t.Errorf("unexpected item: %v", item)
		}

		w.Write([]byte(`{"pixQrCode":"data:image/png;base64,AAA","pixCode":"000201...","status":"pending","id":"tx_123"}`))
	})

	res, err := newGateway(srv.URL, true).CreatePurchase(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if res.ID != "tx_123" || res.PixCode != "000201..." || res.Status != "pending" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCreatePurchase_StatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    domain.PaymentErrorKind
		message string
	}{
		{"not found", 404, `{}`, domain.PaymentErrNotFound, domain.MsgEndpointNotFound},
		{"forbidden", 403, `{"message":"bad key"}`, domain.PaymentErrAccessDenied, domain.MsgAccessDenied},
		{"bad request with message", 400, `{"message":"CPF bloqueado","error":"x"}`, domain.PaymentErrInvalidData, "CPF bloqueado"},
		{"bad request with error", 400, `{"error":"Telefone inválido"}`, domain.PaymentErrInvalidData, "Telefone inválido"},
		{"bad request unparsable", 400, `oops`, domain.PaymentErrInvalidData, domain.MsgInvalidData},
		{"bad request empty json", 400, `{}`, domain.PaymentErrInvalidData, domain.MsgInvalidData},
		{"internal error", 500, `{"message":"db down"}`, domain.PaymentErrProcessing, domain.MsgProcessing},
		{"other with message", 422, `{"message":"limite excedido"}`, domain.PaymentErrServer, "Erro no servidor: limite excedido"},
		{"other with error", 409, `{"error":"duplicado"}`, domain.PaymentErrServer, "Erro no servidor: duplicado"},
		{"other empty json", 503, `{}`, domain.PaymentErrServer, "Erro no servidor: Erro desconhecido"},
		{"other unparsable", 502, `<html>bad gateway</html>`, domain.PaymentErrServer, "Erro no servidor: Erro 502"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			_, err := newGateway(srv.URL, true).CreatePurchase(context.Background(), validRequest())
			payErr := asPaymentError(t, err)

			if payErr.Kind != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, payErr.Kind)
			}
			if payErr.Message != tc.message {
				t.Errorf("expected message %q, got %q", tc.message, payErr.Message)
			}
			if payErr.Status != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, payErr.Status)
			}
		})
	}
}

func TestCreatePurchase_BodyProblems(t *testing.T) {
	cases := []struct {
		name string
		body string
		kind domain.PaymentErrorKind
		msg  string
	}{
		{"malformed", `{"pixCode":`, domain.PaymentErrMalformedResponse, domain.MsgMalformedResponse},
		{"empty", ``, domain.PaymentErrMalformedResponse, domain.MsgMalformedResponse},
		{"missing pixCode", `{"pixQrCode":"q","status":"pending","id":"1"}`, domain.PaymentErrIncompleteResponse, domain.MsgIncompleteResponse},
		{"empty id", `{"pixQrCode":"q","pixCode":"c","status":"pending","id":""}`, domain.PaymentErrIncompleteResponse, domain.MsgIncompleteResponse},
		{"array", `[]`, domain.PaymentErrIncompleteResponse, domain.MsgIncompleteResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			})

			_, err := newGateway(srv.URL, true).CreatePurchase(context.Background(), validRequest())
			payErr := asPaymentError(t, err)
			if payErr.Kind != tc.kind || payErr.Message != tc.msg {
				t.Errorf("expected %s/%q, got %s/%q", tc.kind, tc.msg, payErr.Kind, payErr.Message)
			}
		})
	}
}

func TestCreatePurchase_NumericIDAccepted(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pixQrCode":"q","pixCode":"c","status":"pending","id":987}`))
	})

	res, err := newGateway(srv.URL, true).CreatePurchase(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ID != "987" {
		t.Errorf("expected id 987, got %q", res.ID)
	}
}

func TestCreatePurchase_OfflineMakesNoRequest(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := newGateway(srv.URL, false).CreatePurchase(context.Background(), validRequest())
	payErr := asPaymentError(t, err)

	if payErr.Kind != domain.PaymentErrOffline || payErr.Message != domain.MsgOffline {
		t.Errorf("expected offline error, got %s/%q", payErr.Kind, payErr.Message)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("expected no request, got %d", *hits)
	}
}

func TestCreatePurchase_OfflineReportedBeforeInvalidData(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})

	req := validRequest()
	req.Email = "nope"
	req.Phone = "123"

	_, err := newGateway(srv.URL, false).CreatePurchase(context.Background(), req)
	payErr := asPaymentError(t, err)

	if payErr.Kind != domain.PaymentErrOffline {
		t.Errorf("expected offline to win over invalid data, got %s", payErr.Kind)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("expected no request, got %d", *hits)
	}
}

func TestCreatePurchase_InvalidPreconditionsMakeNoRequest(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})
	gw := newGateway(srv.URL, true)

	mutations := map[string]func(*domain.PaymentIntentRequest){
		"short name":   func(r *domain.PaymentIntentRequest) { r.Name = "M" },
		"bad email":    func(r *domain.PaymentIntentRequest) { r.Email = "nope" },
		"bad cpf":      func(r *domain.PaymentIntentRequest) { r.CPF = "111.111.111-11" },
		"bad phone":    func(r *domain.PaymentIntentRequest) { r.Phone = "123" },
		"zero amount":  func(r *domain.PaymentIntentRequest) { r.AmountMinorUnits = 0 },
		"empty title":  func(r *domain.PaymentIntentRequest) { r.Items[0].Title = "" },
		"no line item": func(r *domain.PaymentIntentRequest) { r.Items = nil },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(req)

			_, err := gw.CreatePurchase(context.Background(), req)
			payErr := asPaymentError(t, err)
			if payErr.Kind != domain.PaymentErrInvalidData {
				t.Errorf("expected invalid_data, got %s", payErr.Kind)
			}
		})
	}

	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("expected no request, got %d", *hits)
	}
}

func TestCreatePurchase_NetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newGateway(url, true).CreatePurchase(context.Background(), validRequest())
	payErr := asPaymentError(t, err)
	if payErr.Kind != domain.PaymentErrUnavailable || payErr.Message != domain.MsgUnavailable {
		t.Errorf("expected unavailable, got %s/%q", payErr.Kind, payErr.Message)
	}
}

func TestCreatePurchase_BreakerOpensOnOutagesOnly(t *testing.T) {
	t.Run("processing errors trip", func(t *testing.T) {
		srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		gw := newGateway(srv.URL, true)

		for i := 0; i < 5; i++ {
			_, _ = gw.CreatePurchase(context.Background(), validRequest())
		}
		_, err := gw.CreatePurchase(context.Background(), validRequest())

		payErr := asPaymentError(t, err)
		if payErr.Kind != domain.PaymentErrUnavailable {
			t.Errorf("expected unavailable from open breaker, got %s", payErr.Kind)
		}
		if got := atomic.LoadInt32(hits); got != 5 {
			t.Errorf("expected 5 requests before the breaker opened, got %d", got)
		}
	})

	t.Run("rejections do not trip", func(t *testing.T) {
		srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		gw := newGateway(srv.URL, true)

		for i := 0; i < 8; i++ {
			_, err := gw.CreatePurchase(context.Background(), validRequest())
			if asPaymentError(t, err).Kind != domain.PaymentErrInvalidData {
				t.Fatalf("call %d: expected invalid_data", i)
			}
		}
		if got := atomic.LoadInt32(hits); got != 8 {
			t.Errorf("expected 8 requests, got %d", got)
		}
	})
}

// ============================================================
// Gateway: status polling
// ============================================================

func TestGetStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"paid", 200, `{"status":"paid"}`, "paid"},
		{"missing status", 200, `{"id":"tx"}`, domain.PaymentStatusPending},
		{"empty status", 200, `{"status":""}`, domain.PaymentStatusPending},
		{"server error", 500, `{"status":"paid"}`, domain.PaymentStatusError},
		{"malformed", 200, `nope`, domain.PaymentStatusError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/transaction.status/tx_1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "secret-key" {
					t.Error("expected secret header on status check")
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			got := newGateway(srv.URL, true).GetStatus(context.Background(), "tx_1")
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestGetStatus_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if got := newGateway(url, true).GetStatus(context.Background(), "tx_1"); got != domain.PaymentStatusError {
		t.Errorf("expected error sentinel, got %q", got)
	}
}

// ============================================================
// Reachability
// ============================================================

func TestDialReachability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	results := cache.New[bool](time.Minute)
	defer results.Close()

	probe, err := client.NewDialProbe(srv.URL, time.Second, results)
	if err != nil {
		t.Fatal(err)
	}
	if !probe.Online(context.Background()) {
		t.Fatal("expected running server to be reachable")
	}

	// The answer is cached: closing the server does not change it until expiry.
	srv.Close()
	if !probe.Online(context.Background()) {
		t.Error("expected cached online answer")
	}
}

func TestDialReachability_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	results := cache.New[bool](time.Minute)
	defer results.Close()

	probe, err := client.NewDialProbe("http://"+addr, 200*time.Millisecond, results)
	if err != nil {
		t.Fatal(err)
	}
	if probe.Online(context.Background()) {
		t.Error("expected closed port to be unreachable")
	}
}

// ============================================================
// Analytics sink
// ============================================================

func TestHTTPAnalyticsSink(t *testing.T) {
	var received map[string]any
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Event-Name") != "pix_generated" {
			t.Errorf("unexpected event header %q", r.Header.Get("X-Event-Name"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &received)
		w.WriteHeader(http.StatusAccepted)
	})

	sink := client.NewHTTPAnalyticsSink(srv.Client(), srv.URL, resilience.NewCircuitBreaker("sink-test", nil))
	err := sink.Track(context.Background(), "pix_generated", domain.EventRecord{"event": "pix_generated", "amount": "29.90"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received["amount"] != "29.90" {
		t.Errorf("expected forwarded record, got %v", received)
	}
}

func TestHTTPAnalyticsSink_Error(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	sink := client.NewHTTPAnalyticsSink(srv.Client(), srv.URL, resilience.NewCircuitBreaker("sink-test", nil))
	err := sink.Track(context.Background(), "page_view", domain.EventRecord{"event": "page_view"})

	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected external service error mentioning 502, got %v", err)
	}
}

func TestHTTPAnalyticsSink_CircuitOpen(t *testing.T) {
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	sink := client.NewHTTPAnalyticsSink(srv.Client(), srv.URL, resilience.NewCircuitBreaker("sink-open", nil))
	for i := 0; i < 5; i++ {
		sink.Track(context.Background(), "page_view", domain.EventRecord{"event": "page_view"})
	}

	err := sink.Track(context.Background(), "page_view", domain.EventRecord{"event": "page_view"})
	var openErr *domain.ErrCircuitOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
	if n := atomic.LoadInt32(calls); n != 5 {
		t.Errorf("expected 5 calls before the breaker opened, got %d", n)
	}
}
