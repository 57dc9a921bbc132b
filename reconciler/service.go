package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/pkg/clock"
	"github.com/screwyprof/ticle/pkg/ftclient"
)

// Option configures the Service
// ------------------------------------------------
type Option func(*Service)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPollInterval sets the polling interval
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// WithStaleAfter sets how long a transfer may wait for its callback before
// the service asks the token service about it
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) { s.staleAfter = d }
}

// Service settles transfers whose outcome callback never arrived
// ---------------------------------------------------------------
// It runs one recovery pass over everything left pending, then polls.
type Service struct {
	api          Client
	ledger       Ledger
	clock        Clock
	pollInterval time.Duration
	staleAfter   time.Duration
	events       chan Event
}

// NewService constructs a Service with required dependencies and options
// ---------------------------------------------------------------------
// By default, it uses a real clock, a 30s poll interval and a 2m stale age.
func NewService(api Client, l Ledger, opts ...Option) *Service {
	s := &Service{
		api:          api,
		ledger:       l,
		clock:        clock.SystemClock{},
		pollInterval: DefaultPollInterval,
		staleAfter:   DefaultStaleAfter,
		events:       make(chan Event, 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the reconciler and returns the events channel and done channel.
//
// Shutdown pattern:
//  1. Cancel context to request shutdown: cancel()
//  2. Service stops producing events and closes events channel
//  3. Wait for complete shutdown: <-done
//
// The events channel must be drained, e.g. by NewSubscriber.
func (s *Service) Start(ctx context.Context) (<-chan Event, <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(s.events)
		defer close(done)
		s.run(ctx)
	}()
	return s.events, done
}

func (s *Service) run(ctx context.Context) {
	// Recovery
	start := s.clock.Now()
	s.events <- RecoveryStarted{StartedAt: start}

	result, err := s.sync(ctx)
	if err != nil {
		// keep polling; the failed transfers are retried on the next pass
		s.events <- RecoveryError{Err: err}
	}
	s.events <- RecoveryDone{
		Checked:  result.Checked,
		Resolved: result.Resolved,
		Duration: s.clock.Now().Sub(start),
	}

	// Polling
	s.events <- PollingStarted{Interval: s.pollInterval}
	for {
		select {
		case <-ctx.Done():
			s.events <- PollingShutdown{Reason: ctx.Err()}
			return
		case <-s.clock.After(s.pollInterval):
			result, err := s.sync(ctx)
			if err != nil {
				s.events <- PollingError{Err: err}
			}
			s.events <- PollingSyncCompleted{
				Checked:  result.Checked,
				Resolved: result.Resolved,
			}
		}
	}
}

// sync asks the token service about every stale pending transfer and reports
// the final outcomes to the ledger
func (s *Service) sync(ctx context.Context) (SyncResult, error) {
	// respect cancellation
	select {
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	default:
	}

	pending, err := s.ledger.PendingTransfers(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: %w", ErrListFailed, err)
	}

	now := s.clock.Now()
	var (
		result SyncResult
		errs   []error
	)
	for _, p := range pending {
		// group members already reported wait for the rest of their group
		if p.Outcome != ledger.OutcomePending || now.Sub(p.IssuedAt) < s.staleAfter {
			continue
		}
		result.Checked++

		succeeded, final, err := s.outcome(ctx, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !final {
			continue
		}
		resolved, err := s.resolve(ctx, p, succeeded)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if resolved {
			result.Resolved++
		}
	}
	return result, errors.Join(errs...)
}

// outcome reports whether the token service has finished the request and how
func (s *Service) outcome(ctx context.Context, p ledger.PendingTransfer) (succeeded, final bool, err error) {
	status, err := s.api.Status(ctx, p.ID.String())
	switch {
	case errors.Is(err, ftclient.ErrNotFound):
		// never received, so nothing moved
		return false, true, nil
	case err != nil:
		return false, false, fmt.Errorf("%w: %s: %w", ErrStatusFailed, p.ID, err)
	}

	switch status.Status {
	case ftclient.StatusSucceeded:
		return true, true, nil
	case ftclient.StatusFailed:
		return false, true, nil
	}
	return false, false, nil
}

func (s *Service) resolve(ctx context.Context, p ledger.PendingTransfer, succeeded bool) (bool, error) {
	err := s.ledger.ResolveTransfer(ctx, p.ID, succeeded)
	if errors.Is(err, ledger.ErrUnknownTransfer) {
		// the callback arrived in the meantime
		return false, nil
	}
	if !ledger.IsOutcomeRecorded(err) {
		return false, fmt.Errorf("%w: %s: %w", ErrResolveFailed, p.ID, err)
	}

	s.events <- TransferReconciled{ID: p.ID, Kind: p.Kind, Succeeded: succeeded}
	return true, nil
}
