package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paygate/internal/common/money"
	"paygate/internal/providers"
)

func newTestAdapter(t *testing.T, captureStatus string) (*Adapter, *[]orderRequest) {
	t.Helper()
	var orders []orderRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			t.Errorf("basic auth = %s:%s ok=%v", user, pass, ok)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "grant_type=client_credentials") {
			t.Errorf("grant body = %q", body)
		}
		io.WriteString(w, `{"access_token": "tok-pp", "expires_in": 32400}`)
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding order: %v", err)
		}
		orders = append(orders, req)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": "5O190127TN364715T", "status": "CREATED"}`)
	})
	mux.HandleFunc("/v2/checkout/orders/5O190127TN364715T/capture", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": "5O190127TN364715T", "status": "`+captureStatus+`"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, srv.Client(), logger), &orders
}

func TestCreateOrder(t *testing.T) {
	adapter, orders := newTestAdapter(t, "COMPLETED")

	txn, err := adapter.CreateOrder(context.Background(), money.New(1999, money.USD))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if txn.Reference != "5O190127TN364715T" {
		t.Errorf("reference = %q", txn.Reference)
	}
	if txn.State != providers.StateInitiated {
		t.Errorf("state = %s, want INITIATED", txn.State)
	}

	if len(*orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(*orders))
	}
	order := (*orders)[0]
	if order.Intent != "CAPTURE" {
		t.Errorf("intent = %q, want CAPTURE", order.Intent)
	}
	amount := order.PurchaseUnits[0].Amount
	if amount.CurrencyCode != "USD" || amount.Value != "19.99" {
		t.Errorf("amount = %s %s, want USD 19.99", amount.CurrencyCode, amount.Value)
	}
}

func TestCapturePayment(t *testing.T) {
	adapter, _ := newTestAdapter(t, "COMPLETED")

	txn, err := adapter.CapturePayment(context.Background(), "5O190127TN364715T")
	if err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	if txn.State != providers.StateSucceeded {
		t.Errorf("state = %s, want SUCCEEDED", txn.State)
	}
}

func TestCapturePaymentNotCompleted(t *testing.T) {
	adapter, _ := newTestAdapter(t, "PENDING")

	_, err := adapter.CapturePayment(context.Background(), "5O190127TN364715T")
	var gerr *providers.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want GatewayError", err)
	}
	if gerr.Provider != providers.PayPal {
		t.Errorf("provider = %s, want paypal", gerr.Provider)
	}
}

func TestMapOrderStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want providers.State
	}{
		{"COMPLETED", providers.StateSucceeded},
		{"APPROVED", providers.StatePending},
		{"VOIDED", providers.StateFailed},
		{"CREATED", providers.StateInitiated},
		{"PAYER_ACTION_REQUIRED", providers.StateInitiated},
	}
	for _, tt := range tests {
		if got := mapOrderStatus(tt.raw); got != tt.want {
			t.Errorf("mapOrderStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"access_token": "tok-pp", "expires_in": 32400}`)
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"name": "UNPROCESSABLE_ENTITY"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := New(Config{BaseURL: srv.URL}, srv.Client(), logger)

	_, err := adapter.CreateOrder(context.Background(), money.New(100, money.USD))
	var gerr *providers.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want GatewayError", err)
	}
}
