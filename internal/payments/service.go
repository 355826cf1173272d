// Package payments orchestrates payment requests across the configured
// gateway adapters and tracks the resulting transactions.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"paygate/internal/common/events"
	"paygate/internal/common/money"
	"paygate/internal/providers"
	"paygate/internal/providers/cards"
)

// MobileMoneyProvider is the capability set a mobile-money gateway offers.
type MobileMoneyProvider interface {
	providers.Initiator
	providers.StatusChecker
}

// CardProcessor processes card payments.
type CardProcessor interface {
	Process(ctx context.Context, d cards.Details, amount money.Money) (*providers.Transaction, error)
	Refund(ctx context.Context, reference string, amount money.Money) (*providers.Transaction, error)
}

// WalletProvider implements the two-step create/capture wallet protocol.
type WalletProvider interface {
	CreateOrder(ctx context.Context, amount money.Money) (*providers.Transaction, error)
	CapturePayment(ctx context.Context, orderID string) (*providers.Transaction, error)
}

// EventPublisher publishes lifecycle events. May be nil.
type EventPublisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Service is the dispatcher: it maps a validated request's provider
// selector to exactly one adapter and normalizes the outcome. Adapters
// are injected at startup; there are no implicit singletons.
type Service struct {
	store     *Store
	poller    *Poller
	publisher EventPublisher
	logger    *slog.Logger

	mobile map[providers.Name]MobileMoneyProvider
	card   CardProcessor
	wallet WalletProvider
}

// NewService creates the dispatcher.
func NewService(store *Store, poller *Poller, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		poller:    poller,
		publisher: publisher,
		logger:    logger,
		mobile:    make(map[providers.Name]MobileMoneyProvider),
	}
}

// RegisterMobile adds a mobile-money adapter.
func (s *Service) RegisterMobile(p MobileMoneyProvider) {
	s.mobile[p.Name()] = p
}

// SetCardProcessor sets the card adapter.
func (s *Service) SetCardProcessor(p CardProcessor) { s.card = p }

// SetWalletProvider sets the wallet adapter.
func (s *Service) SetWalletProvider(p WalletProvider) { s.wallet = p }

// MobileProvider reports whether name is a registered mobile-money gateway.
func (s *Service) MobileProvider(name providers.Name) bool {
	_, ok := s.mobile[name]
	return ok
}

// InitiateMobile starts a mobile-money payment and begins confirmation
// polling for the returned reference.
func (s *Service) InitiateMobile(ctx context.Context, name providers.Name, phoneNumber string, amount money.Money) (*providers.Transaction, error) {
	adapter, ok := s.mobile[name]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", name, providers.ErrUnsupported)
	}

	txn, err := adapter.Initiate(ctx, phoneNumber, amount)
	if err != nil {
		return nil, err
	}
	s.store.Put(txn)
	s.publish(ctx, events.TypePaymentPending, txn.Provider, txn.Reference)

	reference := txn.Reference
	s.poller.Watch(reference, func(ctx context.Context) (providers.State, error) {
		return adapter.CheckStatus(ctx, reference)
	}, func(final providers.State, timedOut bool) {
		s.onPollDone(name, reference, final, timedOut)
	})

	return txn, nil
}

// ConfirmMobile performs an explicit status check for a mobile-money
// payment. Both mobile providers share this path, keyed by name.
func (s *Service) ConfirmMobile(ctx context.Context, name providers.Name, reference string) (providers.State, error) {
	adapter, ok := s.mobile[name]
	if !ok {
		return "", fmt.Errorf("provider %s: %w", name, providers.ErrUnsupported)
	}

	state, err := adapter.CheckStatus(ctx, reference)
	if err != nil {
		return "", err
	}

	if state.Terminal() {
		// The explicit check observed the outcome first; the poll loop
		// for this reference has nothing left to do.
		s.poller.Cancel(reference)
		s.record(ctx, name, reference, state)
	}
	return state, nil
}

// ProcessCard validates and settles a card payment.
func (s *Service) ProcessCard(ctx context.Context, d cards.Details, amount money.Money) (*providers.Transaction, error) {
	if s.card == nil {
		return nil, fmt.Errorf("card processor: %w", providers.ErrUnsupported)
	}
	txn, err := s.card.Process(ctx, d, amount)
	if err != nil {
		return nil, err
	}
	s.store.Put(txn)
	s.publish(ctx, events.TypePaymentSucceeded, txn.Provider, txn.Reference)
	return txn, nil
}

// CreateWalletOrder produces a provider-hosted checkout intent.
func (s *Service) CreateWalletOrder(ctx context.Context, amount money.Money) (*providers.Transaction, error) {
	if s.wallet == nil {
		return nil, fmt.Errorf("wallet provider: %w", providers.ErrUnsupported)
	}
	txn, err := s.wallet.CreateOrder(ctx, amount)
	if err != nil {
		return nil, err
	}
	s.store.Put(txn)
	s.publish(ctx, events.TypePaymentInitiated, txn.Provider, txn.Reference)
	return txn, nil
}

// CaptureWalletOrder finalizes an approved wallet order.
func (s *Service) CaptureWalletOrder(ctx context.Context, orderID string) (*providers.Transaction, error) {
	if s.wallet == nil {
		return nil, fmt.Errorf("wallet provider: %w", providers.ErrUnsupported)
	}
	txn, err := s.wallet.CapturePayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// A capture ack implies the payer approved the order in between.
	if _, err := s.store.SetState(orderID, providers.StatePending); err != nil {
		s.logger.Debug("order not tracked", "order_id", orderID, "error", err)
	}
	s.record(ctx, txn.Provider, orderID, providers.StateSucceeded)
	return txn, nil
}

// RefundCard reverses a settled card payment.
func (s *Service) RefundCard(ctx context.Context, reference string, amount money.Money) (*providers.Transaction, error) {
	if s.card == nil {
		return nil, fmt.Errorf("card processor: %w", providers.ErrUnsupported)
	}
	txn, err := s.card.Refund(ctx, reference, amount)
	if err != nil {
		return nil, err
	}
	s.record(ctx, providers.Card, reference, providers.StateRefunded)
	return txn, nil
}

// Transaction returns the tracked transaction for a reference.
func (s *Service) Transaction(reference string) (providers.Transaction, bool) {
	return s.store.Get(reference)
}

// TransactionCount returns the number of tracked transactions.
func (s *Service) TransactionCount() int {
	return s.store.Len()
}

// Close stops background polling.
func (s *Service) Close() {
	s.poller.Stop()
}

func (s *Service) onPollDone(name providers.Name, reference string, final providers.State, timedOut bool) {
	ctx := context.Background()
	if timedOut {
		// The polling ceiling elapsed without a terminal observation;
		// the push is considered abandoned.
		s.record(ctx, name, reference, providers.StateExpired)
		s.publish(ctx, events.TypePaymentTimeout, name, reference)
		return
	}
	s.record(ctx, name, reference, final)
}

// record advances the registry and publishes the matching lifecycle
// event. Events fire once per transition: a state the registry already
// holds publishes nothing.
func (s *Service) record(ctx context.Context, name providers.Name, reference string, state providers.State) {
	changed, err := s.store.SetState(reference, state)
	if err != nil {
		s.logger.Debug("state not recorded", "reference", reference, "error", err)
		return
	}
	if !changed {
		return
	}
	s.publish(ctx, "payment."+strings.ToLower(string(state)), name, reference)
}

func (s *Service) publish(ctx context.Context, eventType string, provider providers.Name, reference string) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, string(provider), reference, nil)
	if err != nil {
		s.logger.Error("build event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("publish event", "type", eventType, "error", err)
	}
}
