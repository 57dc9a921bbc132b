package reconciler

// Subscriber handles event subscriptions.
type Subscriber struct {
	done                   chan struct{}
	recoveryStartedHandler func(RecoveryStarted)
	recoveryDoneHandler    func(RecoveryDone)
	recoveryErrorHandler   func(RecoveryError)
	reconciledHandler      func(TransferReconciled)
	pollingSyncHandler     func(PollingSyncCompleted)
	pollStartedHandler     func(PollingStarted)
	pollShutdownHandler    func(PollingShutdown)
	pollingErrorHandler    func(PollingError)
}

// OnRecoveryStarted sets the handler for RecoveryStarted events
func OnRecoveryStarted(fn func(RecoveryStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.recoveryStartedHandler = fn }
}

// OnRecoveryDone sets the handler for RecoveryDone events
func OnRecoveryDone(fn func(RecoveryDone)) func(*Subscriber) {
	return func(s *Subscriber) { s.recoveryDoneHandler = fn }
}

// OnRecoveryError sets the handler for RecoveryError events
func OnRecoveryError(fn func(RecoveryError)) func(*Subscriber) {
	return func(s *Subscriber) { s.recoveryErrorHandler = fn }
}

// OnTransferReconciled sets the handler for TransferReconciled events
func OnTransferReconciled(fn func(TransferReconciled)) func(*Subscriber) {
	return func(s *Subscriber) { s.reconciledHandler = fn }
}

// OnPollingSyncCompleted sets the handler for PollingSyncCompleted events
func OnPollingSyncCompleted(fn func(PollingSyncCompleted)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollingSyncHandler = fn }
}

// OnPollingStarted sets the handler for PollingStarted events
func OnPollingStarted(fn func(PollingStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollStartedHandler = fn }
}

// OnPollingShutdown sets the handler for PollingShutdown events
func OnPollingShutdown(fn func(PollingShutdown)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollShutdownHandler = fn }
}

// OnPollingError sets the handler for PollingError events
func OnPollingError(fn func(PollingError)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollingErrorHandler = fn }
}

// NewSubscriber creates a Subscriber with the given options and starts the dispatch loop.
// Returns a closer function that waits for all events to be processed.
//
// Example:
//
//	closer := reconciler.NewSubscriber(events,
//	  reconciler.OnTransferReconciled(func(e TransferReconciled) { ... }),
//	)
//	defer closer()  // Ensures all events processed before exit
func NewSubscriber(events <-chan Event, opts ...func(*Subscriber)) func() {
	s := &Subscriber{
		done:                   make(chan struct{}),
		recoveryStartedHandler: func(RecoveryStarted) {},      // nop by default
		recoveryDoneHandler:    func(RecoveryDone) {},         // nop by default
		recoveryErrorHandler:   func(RecoveryError) {},        // nop by default
		reconciledHandler:      func(TransferReconciled) {},   // nop by default
		pollingSyncHandler:     func(PollingSyncCompleted) {}, // nop by default
		pollStartedHandler:     func(PollingStarted) {},       // nop by default
		pollShutdownHandler:    func(PollingShutdown) {},      // nop by default
		pollingErrorHandler:    func(PollingError) {},         // nop by default
	}

	for _, opt := range opts {
		opt(s)
	}

	go func() {
		defer close(s.done)
		for ev := range events {
			switch e := ev.(type) {
			case RecoveryStarted:
				s.recoveryStartedHandler(e)
			case RecoveryDone:
				s.recoveryDoneHandler(e)
			case RecoveryError:
				s.recoveryErrorHandler(e)
			case TransferReconciled:
				s.reconciledHandler(e)
			case PollingStarted:
				s.pollStartedHandler(e)
			case PollingSyncCompleted:
				s.pollingSyncHandler(e)
			case PollingShutdown:
				s.pollShutdownHandler(e)
			case PollingError:
				s.pollingErrorHandler(e)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
