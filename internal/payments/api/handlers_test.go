package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"paygate/internal/common/api"
	"paygate/internal/common/money"
	"paygate/internal/payments"
	"paygate/internal/providers"
	"paygate/internal/providers/cards"
)

type stubMobile struct {
	name      providers.Name
	initiated atomic.Int32
	state     providers.State
}

func (s *stubMobile) Name() providers.Name { return s.name }

func (s *stubMobile) Initiate(ctx context.Context, phoneNumber string, amount money.Money) (*providers.Transaction, error) {
	s.initiated.Add(1)
	return &providers.Transaction{
		ID:        "TXN-1",
		Reference: "ws_CO_1",
		Provider:  s.name,
		Amount:    amount,
		State:     providers.StatePending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *stubMobile) CheckStatus(ctx context.Context, reference string) (providers.State, error) {
	return s.state, nil
}

func newTestServer(t *testing.T, mobile ...*stubMobile) (*httptest.Server, *payments.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poller := payments.NewPoller(time.Hour, 2*time.Hour, logger)
	svc := payments.NewService(payments.NewStore(), poller, nil, logger)
	for _, m := range mobile {
		svc.RegisterMobile(m)
	}
	svc.SetCardProcessor(cards.New(cards.Config{Simulate: true, SupportedTypes: "visa,mastercard"}, logger))
	t.Cleanup(svc.Close)

	r := NewHandler(svc, false).Routes()
	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", r))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, svc
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, decoded
}

func envelopeError(t *testing.T, decoded map[string]json.RawMessage) string {
	t.Helper()
	var msg string
	if err := json.Unmarshal(decoded["error"], &msg); err != nil {
		t.Fatalf("error field: %v", err)
	}
	return msg
}

func TestCardProcessInvalidCVCRejectedBeforeProcessing(t *testing.T) {
	srv, svc := newTestServer(t)

	resp, decoded := postJSON(t, srv.URL+"/api/card/process", `{
		"cardDetails": {"number": "4242424242424242", "expiry": "12/30", "cvc": "12", "name": "Jane Doe"},
		"amount": 25.00
	}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	msg := envelopeError(t, decoded)
	if !strings.Contains(msg, "CVC") {
		t.Errorf("error = %q, want message identifying the CVC field", msg)
	}
	if n := countTransactions(svc); n != 0 {
		t.Errorf("transactions recorded = %d, want 0", n)
	}
}

func TestCardProcessSuccess(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, decoded := postJSON(t, srv.URL+"/api/card/process", `{
		"cardDetails": {"number": "4242424242424242", "expiry": "12/30", "cvc": "123", "name": "Jane Doe"},
		"amount": 25.00
	}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var txn providers.Transaction
	if err := json.Unmarshal(decoded["transaction"], &txn); err != nil {
		t.Fatalf("transaction field: %v", err)
	}
	if txn.State != providers.StateSucceeded {
		t.Errorf("state = %s, want SUCCEEDED", txn.State)
	}
	if txn.CardLast4 != "4242" || txn.CardType != "visa" {
		t.Errorf("card = %s/%s, want visa/4242", txn.CardType, txn.CardLast4)
	}
}

func TestMobileInitiateNormalizesPhone(t *testing.T) {
	mpesa := &stubMobile{name: providers.Mpesa, state: providers.StatePending}
	srv, _ := newTestServer(t, mpesa)

	resp, decoded := postJSON(t, srv.URL+"/api/mpesa/initiate", `{"phoneNumber": "0712345678", "amount": 100}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", resp.StatusCode, decoded)
	}
	if mpesa.initiated.Load() != 1 {
		t.Errorf("initiations = %d, want 1", mpesa.initiated.Load())
	}
	var ref string
	if err := json.Unmarshal(decoded["checkoutRequestID"], &ref); err != nil || ref == "" {
		t.Errorf("checkoutRequestID missing: %v", err)
	}
}

func TestMobileInitiateInvalidPhone(t *testing.T) {
	mpesa := &stubMobile{name: providers.Mpesa}
	srv, _ := newTestServer(t, mpesa)

	resp, decoded := postJSON(t, srv.URL+"/api/mpesa/initiate", `{"phoneNumber": "12345", "amount": 100}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if msg := envelopeError(t, decoded); !strings.Contains(msg, "254XXXXXXXXX") {
		t.Errorf("error = %q, want the phone format message", msg)
	}
	if mpesa.initiated.Load() != 0 {
		t.Error("adapter was invoked for an invalid phone number")
	}
}

func TestConfirmSharedDispatchPath(t *testing.T) {
	mpesa := &stubMobile{name: providers.Mpesa, state: providers.StateSucceeded}
	airtel := &stubMobile{name: providers.Airtel, state: providers.StateFailed}
	srv, _ := newTestServer(t, mpesa, airtel)

	resp, decoded := postJSON(t, srv.URL+"/api/mpesa/confirm", `{"provider": "mpesa", "transactionId": "ws_CO_1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var status providers.State
	if err := json.Unmarshal(decoded["status"], &status); err != nil {
		t.Fatalf("status field: %v", err)
	}
	if status != providers.StateSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", status)
	}

	resp, decoded = postJSON(t, srv.URL+"/api/airtel/confirm", `{"provider": "airtel", "transactionId": "PAY-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if err := json.Unmarshal(decoded["status"], &status); err != nil || status != providers.StateFailed {
		t.Errorf("status = %s, want FAILED", status)
	}
}

func TestConfirmUnknownProviderRejected(t *testing.T) {
	srv, _ := newTestServer(t, &stubMobile{name: providers.Mpesa})

	resp, decoded := postJSON(t, srv.URL+"/api/mpesa/confirm", `{"provider": "cash", "transactionId": "x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if msg := envelopeError(t, decoded); !strings.Contains(msg, "Provider") {
		t.Errorf("error = %q, want a provider message", msg)
	}
}

func TestUnmappedRouteReturnsEnvelope(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poller := payments.NewPoller(time.Hour, 2*time.Hour, logger)
	svc := payments.NewService(payments.NewStore(), poller, nil, logger)
	t.Cleanup(svc.Close)

	mux := http.NewServeMux()
	mux.Handle("/", api.NotFoundHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, decoded := postJSON(t, srv.URL+"/api/nope", `{}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var ok bool
	if err := json.Unmarshal(decoded["success"], &ok); err != nil || ok {
		t.Errorf("success = %v, want false", ok)
	}
}

func countTransactions(svc *payments.Service) int {
	return svc.TransactionCount()
}
