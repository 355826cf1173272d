// Package airtel provides Airtel Money push payments via the Airtel Africa
// Open API.
package airtel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"paygate/internal/common/httpx"
	"paygate/internal/common/money"
	"paygate/internal/providers"
	"paygate/internal/providers/oauth"
)

// Config holds Airtel Money adapter configuration.
type Config struct {
	BaseURL      string `envconfig:"AIRTEL_BASE_URL" default:"https://openapiuat.airtel.africa"`
	ClientID     string `envconfig:"AIRTEL_CLIENT_ID"`
	ClientSecret string `envconfig:"AIRTEL_CLIENT_SECRET"`
	Country      string `envconfig:"AIRTEL_COUNTRY" default:"KE"`
	Currency     string `envconfig:"AIRTEL_CURRENCY" default:"KES"`
}

// Adapter implements the mobile-money capability set against Airtel Money.
type Adapter struct {
	config Config
	client httpx.Doer
	tokens *oauth.TokenSource
	logger *slog.Logger
}

// New creates an Airtel Money adapter. The token source caches bearer
// tokens from the JSON client-credentials grant with single-flight refresh.
func New(cfg Config, client httpx.Doer, logger *slog.Logger) *Adapter {
	cred := oauth.Credential{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	return &Adapter{
		config: cfg,
		client: client,
		tokens: oauth.NewTokenSource(providers.Airtel, oauth.ClientCredentialsJSON(client, cfg.BaseURL+"/auth/oauth2/token", cred)),
		logger: logger,
	}
}

// Name implements providers.Initiator.
func (a *Adapter) Name() providers.Name {
	return providers.Airtel
}

type pushRequest struct {
	Reference  string `json:"reference"`
	Subscriber struct {
		Country  string `json:"country"`
		Currency string `json:"currency"`
		Msisdn   string `json:"msisdn"`
	} `json:"subscriber"`
	Transaction struct {
		Amount   int64  `json:"amount"`
		Country  string `json:"country"`
		Currency string `json:"currency"`
		ID       string `json:"id"`
	} `json:"transaction"`
}

// apiStatus is the status block Airtel attaches to every response.
type apiStatus struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pushResponse struct {
	Status apiStatus `json:"status"`
}

// Initiate sends a payment push to the subscriber's phone and returns a
// PENDING transaction carrying the generated transaction reference.
func (a *Adapter) Initiate(ctx context.Context, phoneNumber string, amount money.Money) (*providers.Transaction, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	transactionID := "TRX-" + ulid.Make().String()
	var payload pushRequest
	payload.Reference = "PAY-" + ulid.Make().String()
	payload.Subscriber.Country = a.config.Country
	payload.Subscriber.Currency = a.config.Currency
	payload.Subscriber.Msisdn = phoneNumber
	payload.Transaction.Amount = amount.MajorUnits()
	payload.Transaction.Country = a.config.Country
	payload.Transaction.Currency = a.config.Currency
	payload.Transaction.ID = transactionID

	var resp pushResponse
	if err := a.do(ctx, http.MethodPost, "/merchant/v1/payments", token, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Status.Success {
		return nil, &providers.GatewayError{
			Provider: providers.Airtel,
			Cause:    fmt.Errorf("payment push rejected: code=%s message=%s", resp.Status.Code, resp.Status.Message),
		}
	}

	a.logger.Info("airtel push accepted",
		"transaction_id", transactionID,
		"amount", amount.String(),
	)

	return &providers.Transaction{
		ID:        ulid.Make().String(),
		Reference: transactionID,
		Provider:  providers.Airtel,
		Amount:    amount,
		State:     providers.StatePending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type statusResponse struct {
	Data struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
	Status apiStatus `json:"status"`
}

// CheckStatus queries a push by transaction reference and maps Airtel's
// two-letter status vocabulary onto the canonical state enum.
func (a *Adapter) CheckStatus(ctx context.Context, reference string) (providers.State, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	var resp statusResponse
	if err := a.do(ctx, http.MethodGet, "/standard/v1/payments/"+reference, token, nil, &resp); err != nil {
		return "", err
	}
	if !resp.Status.Success {
		return "", &providers.GatewayError{
			Provider: providers.Airtel,
			Cause:    fmt.Errorf("status query failed: code=%s message=%s", resp.Status.Code, resp.Status.Message),
		}
	}

	switch strings.ToUpper(resp.Data.Transaction.Status) {
	case "TS": // transaction success
		return providers.StateSucceeded, nil
	case "TF": // transaction failed
		return providers.StateFailed, nil
	case "TIP", "TA": // in progress / ambiguous
		return providers.StatePending, nil
	case "TE": // expired
		return providers.StateExpired, nil
	default:
		return "", &providers.GatewayError{
			Provider: providers.Airtel,
			Cause:    fmt.Errorf("unrecognized transaction status %q", resp.Data.Transaction.Status),
		}
	}
}

type refundRequest struct {
	Transaction struct {
		AirtelMoneyID string `json:"airtel_money_id"`
		Amount        int64  `json:"amount"`
	} `json:"transaction"`
}

// Refund reverses a settled payment.
func (a *Adapter) Refund(ctx context.Context, reference string, amount money.Money) (*providers.Transaction, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var payload refundRequest
	payload.Transaction.AirtelMoneyID = reference
	payload.Transaction.Amount = amount.MajorUnits()

	var resp pushResponse
	if err := a.do(ctx, http.MethodPost, "/standard/v1/payments/refund", token, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Status.Success {
		return nil, &providers.GatewayError{
			Provider: providers.Airtel,
			Cause:    fmt.Errorf("refund rejected: code=%s message=%s", resp.Status.Code, resp.Status.Message),
		}
	}

	return &providers.Transaction{
		ID:        ulid.Make().String(),
		Reference: reference,
		Provider:  providers.Airtel,
		Amount:    amount,
		State:     providers.StateRefunded,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (a *Adapter) do(ctx context.Context, method, path, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return providers.NewGatewayError(providers.Airtel, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, body)
	if err != nil {
		return providers.NewGatewayError(providers.Airtel, fmt.Errorf("create request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Country", a.config.Country)
	req.Header.Set("X-Currency", a.config.Currency)
	req.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := a.client.Do(req)
	if err != nil {
		return providers.NewGatewayError(providers.Airtel, fmt.Errorf("http request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.NewGatewayError(providers.Airtel, fmt.Errorf("read response: %w", err))
	}
	if httpResp.StatusCode >= 400 {
		return providers.NewGatewayError(providers.Airtel,
			fmt.Errorf("gateway status %d: %s", httpResp.StatusCode, respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return providers.NewGatewayError(providers.Airtel, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}
