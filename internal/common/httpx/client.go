// Package httpx provides the outbound HTTP client shared by gateway
// adapters, with a per-gateway circuit breaker.
package httpx

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds outbound client configuration.
type Config struct {
	Timeout         time.Duration `envconfig:"GATEWAY_HTTP_TIMEOUT" default:"30s"`
	BreakerMaxFails uint32        `envconfig:"GATEWAY_BREAKER_MAX_FAILS" default:"5"`
	BreakerCooldown time.Duration `envconfig:"GATEWAY_BREAKER_COOLDOWN" default:"30s"`
	BreakerHalfOpen uint32        `envconfig:"GATEWAY_BREAKER_HALF_OPEN" default:"1"`
}

// Doer is the outbound request interface adapters depend on.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps http.Client with a circuit breaker. Only transport
// failures (dial, TLS, timeout) count against the breaker: gateways
// answer in-band conditions with non-2xx envelopes — M-Pesa reports a
// push still on the handset as a 500 — so response status belongs to the
// adapter, not to gateway health.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New creates a client named after the gateway it talks to.
func New(name string, cfg Config) *Client {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerHalfOpen,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFails
		},
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Do executes the request through the breaker. Any response, whatever
// its status code, is a breaker success; only failing to obtain one
// counts.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}
