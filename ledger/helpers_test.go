package ledger_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/ledger/store/memstore"
	"github.com/screwyprof/ticle/pkg/clock"
	"github.com/screwyprof/ticle/pkg/ed25519sig"
	"github.com/screwyprof/ticle/pkg/logger"
)

const (
	tokenID ledger.AccountID = "ft.test"
	owner   ledger.AccountID = "owner.test"
	coder   ledger.AccountID = "alice.test"
	bob     ledger.AccountID = "bob.test"
	charlie ledger.AccountID = "charlie.test"
	pool    ledger.PoolID    = "alice-vapi"
)

var (
	epoch    = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	oneToken = amount("10000000")
	errBusy  = errors.New("token service busy")
)

// signer holds the trusted key the test ledgers verify review requests with
var signer = ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))

func amount(s string) uint256.Int {
	v, err := ledger.ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return v
}

// fakeTransferer records requests and can refuse them
type fakeTransferer struct {
	mu        sync.Mutex
	transfers []ledger.TransferRequest
	burns     []ledger.BurnRequest
	refuse    error
}

func (f *fakeTransferer) Transfer(_ context.Context, req ledger.TransferRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse != nil {
		return f.refuse
	}
	f.transfers = append(f.transfers, req)
	return nil
}

func (f *fakeTransferer) Burn(_ context.Context, req ledger.BurnRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse != nil {
		return f.refuse
	}
	f.burns = append(f.burns, req)
	return nil
}

func (f *fakeTransferer) refuseWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refuse = err
}

func (f *fakeTransferer) lastTransfer(t *testing.T) ledger.TransferRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.transfers, "no transfer requested")
	return f.transfers[len(f.transfers)-1]
}

type fixture struct {
	*ledger.Ledger
	clock     *clock.Manual
	transfers *fakeTransferer
}

func newLedger(t *testing.T, opts ...ledger.Option) *fixture {
	t.Helper()

	verifier, err := ed25519sig.NewVerifier(ed25519sig.Encode(signer.Public().(ed25519.PublicKey)))
	require.NoError(t, err)

	clk := clock.NewManual(epoch)
	transfers := &fakeTransferer{}
	opts = append([]ledger.Option{
		ledger.WithClock(clk),
		ledger.WithLogger(logger.Discard()),
	}, opts...)

	l := ledger.New(memstore.New(), transfers, verifier, tokenID, owner, opts...)
	t.Cleanup(l.Close)
	return &fixture{Ledger: l, clock: clk, transfers: transfers}
}

// withPool creates the test pool owned by coder
func (f *fixture) withPool(t *testing.T) *fixture {
	t.Helper()
	_, err := f.CreatePool(t.Context(), coder, pool)
	require.NoError(t, err)
	return f
}

func (f *fixture) deposit(t *testing.T, delegator ledger.AccountID, v uint256.Int) ledger.Payout {
	t.Helper()
	payout, err := f.Deposit(t.Context(), delegator, pool, v)
	require.NoError(t, err)
	return payout
}

func (f *fixture) settle(t *testing.T, v uint256.Int) ledger.SettlementReport {
	t.Helper()
	report, err := f.Settle(t.Context(), owner, []ledger.PoolID{pool}, []uint256.Int{v})
	require.NoError(t, err)
	return report
}

func (f *fixture) pending(t *testing.T, delegator ledger.AccountID) string {
	t.Helper()
	v, err := f.PendingReward(t.Context(), delegator, pool)
	require.NoError(t, err)
	return v.Dec()
}

func (f *fixture) pool(t *testing.T) ledger.Pool {
	t.Helper()
	p, err := f.Pool(t.Context(), pool)
	require.NoError(t, err)
	return p
}

func (f *fixture) position(t *testing.T, delegator ledger.AccountID) ledger.Position {
	t.Helper()
	p := f.pool(t)
	return p.Delegation.Position(delegator)
}

// dec renders an amount held in a non-addressable value
func dec(v uint256.Int) string {
	return v.Dec()
}

func (f *fixture) inFlight(t *testing.T) []ledger.PendingTransfer {
	t.Helper()
	pending, err := f.PendingTransfers(t.Context())
	require.NoError(t, err)
	return pending
}

// reviewRequest builds a signed request for the test pool
func reviewRequest(version string, reviewers []ledger.AccountID, royalties []uint256.Int) ledger.ReviewRequest {
	msg := ledger.CanonicalReviewMessage(pool, version, reviewers, royalties)
	return ledger.ReviewRequest{
		Pool:      pool,
		Version:   version,
		Reviewers: reviewers,
		Royalties: royalties,
		Signature: ed25519sig.Encode(ed25519.Sign(signer, msg)),
	}
}

func (f *fixture) requestReview(t *testing.T, reviewers []ledger.AccountID, royalties []uint256.Int) {
	t.Helper()
	var funding uint256.Int
	for _, r := range royalties {
		funding.Add(&funding, &r)
	}
	require.NoError(t, f.RequestReview(t.Context(), coder, funding, reviewRequest("1.0", reviewers, royalties)))
}

func findTransfer(t *testing.T, pending []ledger.PendingTransfer, id uuid.UUID) ledger.PendingTransfer {
	t.Helper()
	for _, p := range pending {
		if p.ID == id {
			return p
		}
	}
	require.Failf(t, "transfer not in flight", "%s", id)
	return ledger.PendingTransfer{}
}

func resolve(t *testing.T, f *fixture, id uuid.UUID, succeeded bool) error {
	t.Helper()
	return f.ResolveTransfer(t.Context(), id, succeeded)
}

// collectEvents discards the events emitted so far and returns a function
// draining those emitted afterwards
func collectEvents(f *fixture) func() []ledger.Event {
	drainEvents(f)
	return func() []ledger.Event { return drainEvents(f) }
}

func drainEvents(f *fixture) []ledger.Event {
	var out []ledger.Event
	for {
		select {
		case ev, ok := <-f.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOf[E ledger.Event](events []ledger.Event) []E {
	var out []E
	for _, ev := range events {
		if e, ok := ev.(E); ok {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) escrow(t *testing.T, reviewer ledger.AccountID) (ledger.ReviewerEscrow, bool) {
	t.Helper()
	p := f.pool(t)
	return p.Escrow(reviewer)
}
