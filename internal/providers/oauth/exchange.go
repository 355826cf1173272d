package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paygate/internal/common/httpx"
)

const defaultTokenTTL = time.Hour

// tokenResponse is the common shape of client-credentials responses.
// expires_in arrives as a number from some gateways and a quoted string
// from others, so it is kept raw until parsed.
type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

// Credential is an OAuth client id/secret pair. Values are opaque to the
// core and come from process configuration.
type Credential struct {
	ClientID     string
	ClientSecret string
}

// BasicGet exchanges via GET with HTTP basic auth, the style used by
// M-Pesa's /oauth/v1/generate endpoint.
func BasicGet(client httpx.Doer, url string, cred Credential) ExchangeFunc {
	return func(ctx context.Context) (Token, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Token{}, fmt.Errorf("create token request: %w", err)
		}
		req.SetBasicAuth(cred.ClientID, cred.ClientSecret)
		return roundtrip(client, req)
	}
}

// ClientCredentialsJSON exchanges via a JSON POST carrying the client id
// and secret in the body, the style used by Airtel Money.
func ClientCredentialsJSON(client httpx.Doer, url string, cred Credential) ExchangeFunc {
	return func(ctx context.Context) (Token, error) {
		body, err := json.Marshal(map[string]string{
			"client_id":     cred.ClientID,
			"client_secret": cred.ClientSecret,
			"grant_type":    "client_credentials",
		})
		if err != nil {
			return Token{}, fmt.Errorf("marshal token request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return Token{}, fmt.Errorf("create token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return roundtrip(client, req)
	}
}

// ClientCredentialsForm exchanges via a form-encoded POST with HTTP basic
// auth, the style used by PayPal.
func ClientCredentialsForm(client httpx.Doer, url string, cred Credential) ExchangeFunc {
	return func(ctx context.Context) (Token, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("grant_type=client_credentials"))
		if err != nil {
			return Token{}, fmt.Errorf("create token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(cred.ClientID, cred.ClientSecret)
		return roundtrip(client, req)
	}
}

func roundtrip(client httpx.Doer, req *http.Request) (Token, error) {
	resp, err := client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return Token{}, fmt.Errorf("token response missing access_token")
	}

	ttl := ParseExpiresIn(string(tr.ExpiresIn), defaultTokenTTL)
	return Token{
		Value:     tr.AccessToken,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}
