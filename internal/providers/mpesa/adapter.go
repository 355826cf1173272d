// Package mpesa provides M-Pesa STK push payments via the Daraja API.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
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

// Config holds M-Pesa adapter configuration. All secrets are opaque to the
// core and arrive via process configuration.
type Config struct {
	BaseURL        string `envconfig:"MPESA_BASE_URL" default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey    string `envconfig:"MPESA_CONSUMER_KEY"`
	ConsumerSecret string `envconfig:"MPESA_CONSUMER_SECRET"`
	Passkey        string `envconfig:"MPESA_PASSKEY"`
	Shortcode      string `envconfig:"MPESA_SHORTCODE"`
	CallbackURL    string `envconfig:"MPESA_CALLBACK_URL"`
}

// mpesa still processing the STK query.
const errCodeProcessing = "500.001.1001"

// Adapter implements the mobile-money capability set against M-Pesa.
type Adapter struct {
	config Config
	client httpx.Doer
	tokens *oauth.TokenSource
	logger *slog.Logger
	now    func() time.Time
}

// New creates an M-Pesa adapter. The token source caches bearer tokens
// from the basic-auth generate endpoint with single-flight refresh.
func New(cfg Config, client httpx.Doer, logger *slog.Logger) *Adapter {
	cred := oauth.Credential{ClientID: cfg.ConsumerKey, ClientSecret: cfg.ConsumerSecret}
	return &Adapter{
		config: cfg,
		client: client,
		tokens: oauth.NewTokenSource(providers.Mpesa, oauth.BasicGet(client, cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", cred)),
		logger: logger,
		now:    time.Now,
	}
}

// Name implements providers.Initiator.
func (a *Adapter) Name() providers.Name {
	return providers.Mpesa
}

// stkPushRequest is the STK push payload.
type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// credentials derives the request password from the shortcode, passkey and
// a compact UTC timestamp at second precision. Both are regenerated on
// every call; caching them would break the gateway's signature check.
func (a *Adapter) credentials() (password, timestamp string) {
	timestamp = a.now().UTC().Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(a.config.Shortcode + a.config.Passkey + timestamp))
	return password, timestamp
}

// Initiate sends a signed STK push to the payer's phone and returns a
// PENDING transaction carrying the checkout request reference.
func (a *Adapter) Initiate(ctx context.Context, phoneNumber string, amount money.Money) (*providers.Transaction, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := a.credentials()
	payload := stkPushRequest{
		BusinessShortCode: a.config.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount.MajorUnits(),
		PartyA:            phoneNumber,
		PartyB:            a.config.Shortcode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       a.config.CallbackURL,
		AccountReference:  "Payment System",
		TransactionDesc:   "Payment for services",
	}

	var resp stkPushResponse
	if err := a.post(ctx, "/mpesa/stkpush/v1/processrequest", token, payload, &resp); err != nil {
		return nil, err
	}
	if resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		return nil, &providers.GatewayError{
			Provider: providers.Mpesa,
			Cause:    fmt.Errorf("stk push rejected: code=%s desc=%s", resp.ResponseCode, resp.ResponseDescription),
		}
	}

	a.logger.Info("stk push accepted",
		"checkout_request_id", resp.CheckoutRequestID,
		"amount", amount.String(),
	)

	now := a.now().UTC()
	return &providers.Transaction{
		ID:        ulid.Make().String(),
		Reference: resp.CheckoutRequestID,
		Provider:  providers.Mpesa,
		Amount:    amount,
		State:     providers.StatePending,
		CreatedAt: now,
	}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode string `json:"ResponseCode"`
	ResultCode   string `json:"ResultCode"`
	ResultDesc   string `json:"ResultDesc"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckStatus queries an STK push by checkout reference and maps the
// gateway's result codes onto the canonical state enum.
func (a *Adapter) CheckStatus(ctx context.Context, reference string) (providers.State, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	password, timestamp := a.credentials()
	payload := stkQueryRequest{
		BusinessShortCode: a.config.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: reference,
	}

	var resp stkQueryResponse
	if err := a.post(ctx, "/mpesa/stkpushquery/v1/query", token, payload, &resp); err != nil {
		return "", err
	}

	// The gateway answers the query with an error envelope while the push
	// is still on the handset.
	if resp.ErrorCode == errCodeProcessing {
		return providers.StatePending, nil
	}
	if resp.ErrorCode != "" {
		return "", &providers.GatewayError{
			Provider: providers.Mpesa,
			Cause:    fmt.Errorf("status query failed: %s %s", resp.ErrorCode, resp.ErrorMessage),
		}
	}

	switch resp.ResultCode {
	case "0":
		return providers.StateSucceeded, nil
	case "1037": // timeout waiting for the payer
		return providers.StateExpired, nil
	case "1032", "1", "2001": // cancelled, insufficient funds, wrong PIN
		return providers.StateFailed, nil
	case "":
		return "", &providers.GatewayError{
			Provider: providers.Mpesa,
			Cause:    fmt.Errorf("status query returned no result code"),
		}
	default:
		return providers.StateFailed, nil
	}
}

func (a *Adapter) post(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return providers.NewGatewayError(providers.Mpesa, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return providers.NewGatewayError(providers.Mpesa, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := a.client.Do(req)
	if err != nil {
		return providers.NewGatewayError(providers.Mpesa, fmt.Errorf("http request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.NewGatewayError(providers.Mpesa, fmt.Errorf("read response: %w", err))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return providers.NewGatewayError(providers.Mpesa,
			fmt.Errorf("malformed response: status=%d body=%s", httpResp.StatusCode, respBody))
	}

	// 4xx without a recognizable error envelope is still a gateway fault;
	// the caller inspects decoded error codes first.
	if httpResp.StatusCode >= 400 {
		if q, ok := out.(*stkQueryResponse); ok && q.ErrorCode != "" {
			return nil
		}
		return providers.NewGatewayError(providers.Mpesa,
			fmt.Errorf("gateway status %d: %s", httpResp.StatusCode, respBody))
	}
	return nil
}
