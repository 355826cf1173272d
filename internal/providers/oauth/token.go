// Package oauth manages gateway bearer tokens: client-credentials style
// exchanges with caching and single-flight refresh.
package oauth

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"paygate/internal/providers"
)

// Token is a bearer token with its expiry instant.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at instant now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// ExchangeFunc performs one authentication exchange with the gateway.
type ExchangeFunc func(ctx context.Context) (Token, error)

// TokenSource produces a valid bearer token for one provider credential,
// reusing the cached token while unexpired. Concurrent callers observing
// an expired or missing token await a single shared refresh; at most one
// authentication exchange is in flight per credential.
type TokenSource struct {
	provider providers.Name
	exchange ExchangeFunc
	leeway   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cached Token

	group singleflight.Group
}

// NewTokenSource creates a token source for the given provider credential.
func NewTokenSource(provider providers.Name, exchange ExchangeFunc) *TokenSource {
	return &TokenSource{
		provider: provider,
		exchange: exchange,
		leeway:   10 * time.Second,
		now:      time.Now,
	}
}

// Token returns a valid bearer token, refreshing if the cached one is
// missing or expired. Exchange failures surface as AuthenticationError;
// no automatic retry.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.current(); ok {
		return tok, nil
	}

	v, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		// Another caller may have refreshed between our check and the
		// flight starting.
		if tok, ok := s.current(); ok {
			return tok, nil
		}

		tok, err := s.exchange(ctx)
		if err != nil {
			return nil, &providers.AuthenticationError{Provider: s.provider, Err: err}
		}

		s.mu.Lock()
		s.cached = tok
		s.mu.Unlock()
		return tok.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate discards the cached token, forcing the next call to refresh.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.cached = Token{}
	s.mu.Unlock()
}

func (s *TokenSource) current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached.Valid(s.now().Add(s.leeway)) {
		return s.cached.Value, true
	}
	return "", false
}

// ParseExpiresIn converts an OAuth expires_in value, which gateways send
// as either a number or a quoted string of seconds, into a duration.
func ParseExpiresIn(raw string, fallback time.Duration) time.Duration {
	trimmed := strings.Trim(strings.TrimSpace(raw), `"`)
	if trimmed == "" {
		return fallback
	}
	secs, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
