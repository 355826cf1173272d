// Package paypal provides wallet payments via the PayPal Orders API: a
// two-step create-order / capture protocol. Completion is driven by the
// payer's out-of-band approval; there is no polling.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"paygate/internal/common/httpx"
	"paygate/internal/common/money"
	"paygate/internal/providers"
	"paygate/internal/providers/oauth"
)

// Config holds PayPal adapter configuration.
type Config struct {
	BaseURL      string `envconfig:"PAYPAL_BASE_URL" default:"https://api-m.sandbox.paypal.com"`
	ClientID     string `envconfig:"PAYPAL_CLIENT_ID"`
	ClientSecret string `envconfig:"PAYPAL_CLIENT_SECRET"`
}

// Adapter implements the wallet/redirect capability set against PayPal.
type Adapter struct {
	config Config
	client httpx.Doer
	tokens *oauth.TokenSource
	logger *slog.Logger
}

// New creates a PayPal adapter. Tokens come from the form-encoded
// client-credentials grant, cached with single-flight refresh.
func New(cfg Config, client httpx.Doer, logger *slog.Logger) *Adapter {
	cred := oauth.Credential{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	return &Adapter{
		config: cfg,
		client: client,
		tokens: oauth.NewTokenSource(providers.PayPal, oauth.ClientCredentialsForm(client, cfg.BaseURL+"/v1/oauth2/token", cred)),
		logger: logger,
	}
}

// Name identifies the gateway.
func (a *Adapter) Name() providers.Name {
	return providers.PayPal
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type orderRequest struct {
	Intent        string `json:"intent"`
	PurchaseUnits []struct {
		Amount orderAmount `json:"amount"`
	} `json:"purchase_units"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateOrder produces a provider-hosted checkout intent for the amount.
// The payer approves it out-of-band before capture.
func (a *Adapter) CreateOrder(ctx context.Context, amount money.Money) (*providers.Transaction, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var payload orderRequest
	payload.Intent = "CAPTURE"
	payload.PurchaseUnits = make([]struct {
		Amount orderAmount `json:"amount"`
	}, 1)
	payload.PurchaseUnits[0].Amount = orderAmount{
		CurrencyCode: string(amount.Currency),
		Value:        amount.Value(),
	}

	var resp orderResponse
	if err := a.post(ctx, "/v2/checkout/orders", token, payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &providers.GatewayError{
			Provider: providers.PayPal,
			Cause:    fmt.Errorf("order response missing id"),
		}
	}

	a.logger.Info("paypal order created", "order_id", resp.ID, "status", resp.Status)

	return &providers.Transaction{
		ID:        ulid.Make().String(),
		Reference: resp.ID,
		Provider:  providers.PayPal,
		Amount:    amount,
		State:     mapOrderStatus(resp.Status),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CapturePayment finalizes funds transfer for an approved order.
func (a *Adapter) CapturePayment(ctx context.Context, orderID string) (*providers.Transaction, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := a.post(ctx, "/v2/checkout/orders/"+orderID+"/capture", token, struct{}{}, &resp); err != nil {
		return nil, err
	}

	state := mapOrderStatus(resp.Status)
	if state != providers.StateSucceeded {
		return nil, &providers.GatewayError{
			Provider: providers.PayPal,
			Cause:    fmt.Errorf("capture returned status %q", resp.Status),
		}
	}

	a.logger.Info("paypal payment captured", "order_id", orderID)

	return &providers.Transaction{
		ID:        ulid.Make().String(),
		Reference: orderID,
		Provider:  providers.PayPal,
		State:     providers.StateSucceeded,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func mapOrderStatus(status string) providers.State {
	switch status {
	case "COMPLETED":
		return providers.StateSucceeded
	case "APPROVED":
		return providers.StatePending
	case "VOIDED":
		return providers.StateFailed
	default: // CREATED, SAVED, PAYER_ACTION_REQUIRED
		return providers.StateInitiated
	}
}

func (a *Adapter) post(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return providers.NewGatewayError(providers.PayPal, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return providers.NewGatewayError(providers.PayPal, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := a.client.Do(req)
	if err != nil {
		return providers.NewGatewayError(providers.PayPal, fmt.Errorf("http request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.NewGatewayError(providers.PayPal, fmt.Errorf("read response: %w", err))
	}
	if httpResp.StatusCode >= 400 {
		return providers.NewGatewayError(providers.PayPal,
			fmt.Errorf("gateway status %d: %s", httpResp.StatusCode, respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return providers.NewGatewayError(providers.PayPal, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}
