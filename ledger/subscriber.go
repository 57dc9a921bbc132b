package ledger

// Subscriber handles event subscriptions.
type Subscriber struct {
	done     chan struct{}
	handlers []func(Event)
}

// SubscriberOption registers a handler on a Subscriber
type SubscriberOption func(*Subscriber)

func on[E Event](fn func(E)) SubscriberOption {
	return func(s *Subscriber) {
		s.handlers = append(s.handlers, func(ev Event) {
			if e, ok := ev.(E); ok {
				fn(e)
			}
		})
	}
}

// OnAny sets a handler that sees every event
func OnAny(fn func(Event)) SubscriberOption {
	return func(s *Subscriber) { s.handlers = append(s.handlers, fn) }
}

// OnPoolCreated sets the handler for PoolCreated events
func OnPoolCreated(fn func(PoolCreated)) SubscriberOption { return on(fn) }

// OnOwnershipTransferred sets the handler for OwnershipTransferred events
func OnOwnershipTransferred(fn func(OwnershipTransferred)) SubscriberOption { return on(fn) }

// OnDeposited sets the handler for Deposited events
func OnDeposited(fn func(Deposited)) SubscriberOption { return on(fn) }

// OnRewardClaimed sets the handler for RewardClaimed events
func OnRewardClaimed(fn func(RewardClaimed)) SubscriberOption { return on(fn) }

// OnWithdrawn sets the handler for Withdrawn events
func OnWithdrawn(fn func(Withdrawn)) SubscriberOption { return on(fn) }

// OnOwnerRevenueClaimed sets the handler for OwnerRevenueClaimed events
func OnOwnerRevenueClaimed(fn func(OwnerRevenueClaimed)) SubscriberOption { return on(fn) }

// OnSettled sets the handler for Settled events
func OnSettled(fn func(Settled)) SubscriberOption { return on(fn) }

// OnSettlementPoolFailed sets the handler for SettlementPoolFailed events
func OnSettlementPoolFailed(fn func(SettlementPoolFailed)) SubscriberOption { return on(fn) }

// OnReviewRequested sets the handler for ReviewRequested events
func OnReviewRequested(fn func(ReviewRequested)) SubscriberOption { return on(fn) }

// OnReviewClaimed sets the handler for ReviewClaimed events
func OnReviewClaimed(fn func(ReviewClaimed)) SubscriberOption { return on(fn) }

// OnReviewCancelled sets the handler for ReviewCancelled events
func OnReviewCancelled(fn func(ReviewCancelled)) SubscriberOption { return on(fn) }

// OnTransferIssued sets the handler for TransferIssued events
func OnTransferIssued(fn func(TransferIssued)) SubscriberOption { return on(fn) }

// OnTransferConfirmed sets the handler for TransferConfirmed events
func OnTransferConfirmed(fn func(TransferConfirmed)) SubscriberOption { return on(fn) }

// OnTransferFailed sets the handler for TransferFailed events
func OnTransferFailed(fn func(TransferFailed)) SubscriberOption { return on(fn) }

// OnLedgerDiverged sets the handler for LedgerDiverged events
func OnLedgerDiverged(fn func(LedgerDiverged)) SubscriberOption { return on(fn) }

// NewSubscriber creates a Subscriber with the given options and starts the dispatch loop.
// Returns a closer function that waits for all events to be processed.
//
// Example:
//
//	closer := ledger.NewSubscriber(l.Events(),
//	  ledger.OnLedgerDiverged(func(e ledger.LedgerDiverged) { ... }),
//	)
//	defer closer()
//
// The subscriber processes events until the events channel closes
// (see Ledger.Close), then the closer confirms all processing is complete.
func NewSubscriber(events <-chan Event, opts ...SubscriberOption) func() {
	s := &Subscriber{done: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}

	go func() {
		defer close(s.done)
		for ev := range events {
			for _, h := range s.handlers {
				h(ev)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
