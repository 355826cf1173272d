// Package cards provides card payment processing. The acquiring leg is
// simulated behind a capability flag: validation is real, settlement is a
// deterministic success. Swapping in a real acquiring gateway replaces
// this adapter without touching the dispatcher.
package cards

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"paygate/internal/common/card"
	"paygate/internal/common/money"
	"paygate/internal/providers"
)

// Config holds card adapter configuration.
type Config struct {
	Simulate       bool   `envconfig:"CARD_SIMULATE" default:"true"`
	SupportedTypes string `envconfig:"CARD_SUPPORTED_TYPES" default:"visa,mastercard"`
}

// Details are the card fields supplied by the payer. The number is the
// only secret; it never leaves this package unmasked.
type Details struct {
	Number string
	Expiry string // MM/YY
	CVC    string
	Name   string
}

// Adapter implements card processing.
type Adapter struct {
	config    Config
	supported map[card.Type]bool
	logger    *slog.Logger
}

// New creates a card adapter.
func New(cfg Config, logger *slog.Logger) *Adapter {
	supported := make(map[card.Type]bool)
	for _, t := range strings.Split(cfg.SupportedTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			supported[card.Type(t)] = true
		}
	}
	return &Adapter{
		config:    cfg,
		supported: supported,
		logger:    logger,
	}
}

// Name implements providers.Initiator naming.
func (a *Adapter) Name() providers.Name {
	return providers.Card
}

// Process validates the card synchronously and, in simulation mode,
// settles it without contacting an external system.
func (a *Adapter) Process(ctx context.Context, d Details, amount money.Money) (*providers.Transaction, error) {
	if err := a.validate(d); err != nil {
		return nil, err
	}

	if !a.config.Simulate {
		return nil, &providers.GatewayError{
			Provider: providers.Card,
			Cause:    fmt.Errorf("acquiring gateway not configured"),
		}
	}

	number := card.Strip(d.Number)
	cardType := card.Classify(number)

	txn := &providers.Transaction{
		ID:        "CARD-" + ulid.Make().String(),
		Provider:  providers.Card,
		Amount:    amount,
		State:     providers.StateSucceeded,
		CardType:  string(cardType),
		CardLast4: number[len(number)-4:],
		CreatedAt: time.Now().UTC(),
	}
	txn.Reference = txn.ID

	a.logger.Info("card payment settled",
		"transaction_id", txn.ID,
		"card_type", txn.CardType,
		"last4", txn.CardLast4,
	)
	return txn, nil
}

// Refund reverses a settled card payment. Simulated: always succeeds for a
// non-empty prior reference.
func (a *Adapter) Refund(ctx context.Context, reference string, amount money.Money) (*providers.Transaction, error) {
	if reference == "" {
		return nil, &providers.ValidationError{Field: "transactionId", Message: "Transaction reference is required"}
	}
	if !a.config.Simulate {
		return nil, &providers.GatewayError{
			Provider: providers.Card,
			Cause:    fmt.Errorf("acquiring gateway not configured"),
		}
	}

	return &providers.Transaction{
		ID:        "REF-" + ulid.Make().String(),
		Reference: reference,
		Provider:  providers.Card,
		Amount:    amount,
		State:     providers.StateRefunded,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (a *Adapter) validate(d Details) error {
	if !card.ValidNumber(d.Number) {
		return &providers.ValidationError{Field: "number", Message: "Invalid card number"}
	}
	cardType := card.Classify(card.Strip(d.Number))
	if !a.supported[cardType] {
		return &providers.ValidationError{Field: "number", Message: "Unsupported card type"}
	}

	month, year, ok := parseExpiry(d.Expiry)
	if !ok || !card.ValidExpiry(month, year) {
		return &providers.ValidationError{Field: "expiry", Message: "Invalid expiry date"}
	}
	if !card.ValidCVC(d.CVC) {
		return &providers.ValidationError{Field: "cvc", Message: "Invalid CVC"}
	}
	if strings.TrimSpace(d.Name) == "" {
		return &providers.ValidationError{Field: "name", Message: "Cardholder name is required"}
	}
	return nil
}

func parseExpiry(expiry string) (month, year int, ok bool) {
	parts := strings.Split(expiry, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	year, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return month, year, true
}
