package payments

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"paygate/internal/providers"
)

// Default polling cadence for mobile-money confirmation.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollCeiling  = 120 * time.Second
)

// CheckFunc performs one status check for a pending payment.
type CheckFunc func(ctx context.Context) (providers.State, error)

// DoneFunc receives the final observation for a watched reference. When
// timedOut is true the ceiling elapsed without a terminal state and final
// is the last observed (non-terminal) state.
type DoneFunc func(final providers.State, timedOut bool)

// Poller drives the asynchronous confirmation protocol: one cancellable
// loop per outstanding transaction reference, checking status at a fixed
// interval until a terminal state is observed or the ceiling elapses.
type Poller struct {
	interval time.Duration
	ceiling  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// NewPoller creates a poller. Zero durations fall back to the defaults.
func NewPoller(interval, ceiling time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if ceiling <= 0 {
		ceiling = DefaultPollCeiling
	}
	return &Poller{
		interval: interval,
		ceiling:  ceiling,
		logger:   logger,
		jobs:     make(map[string]context.CancelFunc),
	}
}

// Watch starts a poll loop for reference. Returns false if a loop is
// already active for it; at most one loop runs per reference.
func (p *Poller) Watch(reference string, check CheckFunc, done DoneFunc) bool {
	p.mu.Lock()
	if _, exists := p.jobs[reference]; exists {
		p.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.jobs[reference] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, reference, check, done)
	return true
}

// Cancel stops the poll loop for reference, if any. The done callback is
// not invoked for cancelled loops.
func (p *Poller) Cancel(reference string) {
	p.mu.Lock()
	cancel, ok := p.jobs[reference]
	if ok {
		delete(p.jobs, reference)
	}
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// Stop cancels all loops and waits for them to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	for ref, cancel := range p.jobs {
		delete(p.jobs, ref)
		cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Watching reports whether a loop is active for reference.
func (p *Poller) Watching(reference string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[reference]
	return ok
}

func (p *Poller) run(ctx context.Context, reference string, check CheckFunc, done DoneFunc) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.ceiling)
	defer deadline.Stop()

	last := providers.StatePending

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			if !p.finish(ctx, reference) {
				return
			}
			p.logger.Warn("confirmation polling timed out",
				"reference", reference,
				"ceiling", p.ceiling,
			)
			done(last, true)
			return

		case <-ticker.C:
			state, err := check(ctx)
			// A check that completes after cancellation must not
			// resurrect the loop or fire callbacks.
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				p.logger.Warn("status check failed, will retry",
					"reference", reference,
					"error", err,
				)
				continue
			}
			last = state
			if state.Terminal() {
				if !p.finish(ctx, reference) {
					return
				}
				p.logger.Info("confirmation polling finished",
					"reference", reference,
					"state", state,
				)
				done(state, false)
				return
			}
		}
	}
}

// finish removes the job entry and cancels its context so no timer
// outlives the terminal transition. Returns false if the job was already
// cancelled by another path.
func (p *Poller) finish(ctx context.Context, reference string) bool {
	p.mu.Lock()
	cancel, ok := p.jobs[reference]
	if ok {
		delete(p.jobs, reference)
	}
	p.mu.Unlock()
	if !ok || ctx.Err() != nil {
		return false
	}
	cancel()
	return true
}
