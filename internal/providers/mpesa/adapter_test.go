package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paygate/internal/common/httpx"
	"paygate/internal/common/money"
	"paygate/internal/providers"
)

type gatewayStub struct {
	t *testing.T

	tokenHits int
	pushes    []stkPushRequest
	queries   []stkQueryRequest

	queryStatus int
	queryBody   string
}

func (g *gatewayStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		g.tokenHits++
		if _, _, ok := r.BasicAuth(); !ok {
			g.t.Error("token request missing basic auth")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token": "tok-1", "expires_in": "3599"}`)
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			g.t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}
		var req stkPushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.t.Errorf("decoding push: %v", err)
		}
		g.pushes = append(g.pushes, req)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"CheckoutRequestID": "ws_CO_191220191020363925", "ResponseCode": "0", "CustomerMessage": "Success. Request accepted for processing"}`)
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		var req stkQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.t.Errorf("decoding query: %v", err)
		}
		g.queries = append(g.queries, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(g.queryStatus)
		io.WriteString(w, g.queryBody)
	})
	return mux
}

func newTestAdapter(t *testing.T) (*Adapter, *gatewayStub) {
	t.Helper()
	stub := &gatewayStub{t: t, queryStatus: http.StatusOK}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Passkey:        "passkey",
		Shortcode:      "174379",
		CallbackURL:    "https://example.com/callback",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, srv.Client(), logger), stub
}

func TestInitiateSendsSignedPush(t *testing.T) {
	adapter, stub := newTestAdapter(t)
	fixed := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	adapter.now = func() time.Time { return fixed }

	txn, err := adapter.Initiate(context.Background(), "254712345678", money.New(10000, money.KES))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if txn.State != providers.StatePending {
		t.Errorf("state = %s, want PENDING", txn.State)
	}
	if txn.Reference != "ws_CO_191220191020363925" {
		t.Errorf("reference = %q", txn.Reference)
	}

	if len(stub.pushes) != 1 {
		t.Fatalf("pushes = %d, want 1", len(stub.pushes))
	}
	push := stub.pushes[0]
	if push.Timestamp != "20260829103000" {
		t.Errorf("timestamp = %q, want 20260829103000", push.Timestamp)
	}
	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379passkey20260829103000"))
	if push.Password != wantPassword {
		t.Errorf("password = %q, want %q", push.Password, wantPassword)
	}
	if push.Amount != 100 {
		t.Errorf("amount = %d, want 100 major units", push.Amount)
	}
	if push.PhoneNumber != "254712345678" || push.PartyA != "254712345678" {
		t.Errorf("payer = %s/%s", push.PhoneNumber, push.PartyA)
	}
}

func TestCredentialsRegeneratedPerCall(t *testing.T) {
	adapter, stub := newTestAdapter(t)

	clock := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	adapter.now = func() time.Time { return clock }

	if _, err := adapter.Initiate(context.Background(), "254712345678", money.New(100, money.KES)); err != nil {
		t.Fatalf("first Initiate: %v", err)
	}
	clock = clock.Add(7 * time.Second)
	if _, err := adapter.Initiate(context.Background(), "254712345678", money.New(100, money.KES)); err != nil {
		t.Fatalf("second Initiate: %v", err)
	}

	if len(stub.pushes) != 2 {
		t.Fatalf("pushes = %d, want 2", len(stub.pushes))
	}
	if stub.pushes[0].Timestamp == stub.pushes[1].Timestamp {
		t.Error("timestamp was reused across calls")
	}
	if stub.pushes[0].Password == stub.pushes[1].Password {
		t.Error("password was reused across calls")
	}
}

func TestInitiateReusesCachedToken(t *testing.T) {
	adapter, stub := newTestAdapter(t)

	for i := 0; i < 3; i++ {
		if _, err := adapter.Initiate(context.Background(), "254712345678", money.New(100, money.KES)); err != nil {
			t.Fatalf("Initiate %d: %v", i, err)
		}
	}
	if stub.tokenHits != 1 {
		t.Errorf("token exchanges = %d, want 1", stub.tokenHits)
	}
}

func TestCheckStatusMapsResultCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   providers.State
	}{
		{"paid", http.StatusOK, `{"ResponseCode": "0", "ResultCode": "0", "ResultDesc": "The service request is processed successfully."}`, providers.StateSucceeded},
		{"push timed out", http.StatusOK, `{"ResponseCode": "0", "ResultCode": "1037", "ResultDesc": "DS timeout user cannot be reached"}`, providers.StateExpired},
		{"cancelled by payer", http.StatusOK, `{"ResponseCode": "0", "ResultCode": "1032", "ResultDesc": "Request cancelled by user"}`, providers.StateFailed},
		{"insufficient funds", http.StatusOK, `{"ResponseCode": "0", "ResultCode": "1", "ResultDesc": "The balance is insufficient"}`, providers.StateFailed},
		{"still on handset", http.StatusInternalServerError, `{"errorCode": "500.001.1001", "errorMessage": "The transaction is being processed"}`, providers.StatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, stub := newTestAdapter(t)
			stub.queryStatus = tt.status
			stub.queryBody = tt.body

			got, err := adapter.CheckStatus(context.Background(), "ws_CO_191220191020363925")
			if err != nil {
				t.Fatalf("CheckStatus: %v", err)
			}
			if got != tt.want {
				t.Errorf("state = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLongPendingPollKeepsBreakerClosed(t *testing.T) {
	stub := &gatewayStub{t: t}
	stub.queryStatus = http.StatusInternalServerError
	stub.queryBody = `{"errorCode": "500.001.1001", "errorMessage": "The transaction is being processed"}`
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	client := httpx.New("mpesa", httpx.Config{
		Timeout:         time.Second,
		BreakerMaxFails: 3,
		BreakerCooldown: time.Minute,
		BreakerHalfOpen: 1,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := New(Config{BaseURL: srv.URL, Shortcode: "174379", Passkey: "passkey"}, client, logger)

	// A payer can sit on the PIN prompt far past BreakerMaxFails polls;
	// the in-band processing envelope must never open the breaker.
	for i := 0; i < 8; i++ {
		state, err := adapter.CheckStatus(context.Background(), "ws_CO_191220191020363925")
		if err != nil {
			t.Fatalf("check %d: %v", i+1, err)
		}
		if state != providers.StatePending {
			t.Fatalf("check %d: state = %s, want PENDING", i+1, state)
		}
	}
}

func TestCheckStatusGatewayError(t *testing.T) {
	adapter, stub := newTestAdapter(t)
	stub.queryStatus = http.StatusInternalServerError
	stub.queryBody = `{"errorCode": "500.003.02", "errorMessage": "Spike arrest violation"}`

	_, err := adapter.CheckStatus(context.Background(), "ws_CO_191220191020363925")
	var gerr *providers.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want GatewayError", err)
	}
	if gerr.Provider != providers.Mpesa {
		t.Errorf("provider = %s, want mpesa", gerr.Provider)
	}
}

func TestInitiateRejectedPush(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"access_token": "tok-1", "expires_in": "3599"}`)
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ResponseCode": "1", "ResponseDescription": "Invalid shortcode"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := New(Config{BaseURL: srv.URL, Shortcode: "174379"}, srv.Client(), logger)

	_, err := adapter.Initiate(context.Background(), "254712345678", money.New(100, money.KES))
	var gerr *providers.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want GatewayError", err)
	}
	if !strings.Contains(gerr.Error(), "rejected") {
		t.Errorf("error = %q", gerr.Error())
	}
}
