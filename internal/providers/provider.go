// Package providers defines the capability set shared by all payment
// gateway adapters and the canonical transaction model they produce.
package providers

import (
	"context"
	"time"

	"paygate/internal/common/money"
)

// Name identifies a payment gateway.
type Name string

const (
	Mpesa  Name = "mpesa"
	Airtel Name = "airtel"
	Card   Name = "card"
	PayPal Name = "paypal"
)

// State is the canonical transaction state. Every adapter maps its
// gateway's raw status vocabulary onto this enum before returning.
type State string

const (
	StateInitiated State = "INITIATED"
	StatePending   State = "PENDING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateExpired   State = "EXPIRED"
	StateRefunded  State = "REFUNDED"
)

// transitions is the monotone state graph. Absent states are terminal.
var transitions = map[State][]State{
	StateInitiated: {StatePending, StateFailed},
	StatePending:   {StateSucceeded, StateFailed, StateExpired},
	StateSucceeded: {StateRefunded},
}

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether the move from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Transaction is the normalized record an adapter returns from initiate.
// The core holds it in memory only; durability is the caller's concern.
type Transaction struct {
	ID        string      `json:"id"`
	Reference string      `json:"reference"` // provider-issued
	Provider  Name        `json:"provider"`
	Amount    money.Money `json:"amount"`
	State     State       `json:"state"`
	CardType  string      `json:"cardType,omitempty"`
	CardLast4 string      `json:"cardLast4,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Initiator starts a payment against the gateway.
type Initiator interface {
	Name() Name
	Initiate(ctx context.Context, payer string, amount money.Money) (*Transaction, error)
}

// StatusChecker queries a pending payment by its provider reference.
type StatusChecker interface {
	CheckStatus(ctx context.Context, reference string) (State, error)
}

// Refunder reverses a settled payment. Not all gateways support it.
type Refunder interface {
	Refund(ctx context.Context, reference string, amount money.Money) (*Transaction, error)
}
