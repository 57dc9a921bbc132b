//go:build acceptance

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/ledger/store/pgxstore"
	"github.com/screwyprof/ticle/migrator"
	"github.com/screwyprof/ticle/migrator/migratortest"
	"github.com/screwyprof/ticle/pkg/httpkit"
	"github.com/screwyprof/ticle/pkg/logger"
	"github.com/screwyprof/ticle/web/api"
	"github.com/screwyprof/ticle/web/handler"
	"github.com/screwyprof/ticle/web/testcfg"
)

const (
	tokenID     = "ft.test"
	ownerID     = "owner.test"
	delegatorID = "bob.test"
)

// TestLedgerAPIAcceptanceBehavior runs the HTTP API end to end against PostgreSQL
func TestLedgerAPIAcceptanceBehavior(t *testing.T) {
	t.Parallel()

	cfg := testcfg.New()
	demo := migrator.DemoPool{
		ID:       ledger.PoolID(cfg.SeedPool),
		Coder:    ledger.AccountID(cfg.SeedCoder),
		Deposits: map[ledger.AccountID]uint256.Int{delegatorID: *uint256.NewInt(10_000_000)},
	}

	t.Run("it serves the seeded pool", func(t *testing.T) {
		t.Parallel()

		// Arrange
		db := migratortest.CreateSeededTestDatabase(t, cfg.MigrationsDir, demo, cfg.SeedTimeout)
		server := createTestServer(t, cfg, db)

		// Act
		resp := server.do(t, http.MethodGet, "/pools/"+cfg.SeedPool, "", nil)

		// Assert
		require.Equal(t, http.StatusOK, resp.StatusCode)
		pool := parseJSONResponse[api.Pool](t, resp)
		assert.Equal(t, cfg.SeedCoder, pool.Coder)
		assert.Equal(t, "10000000", pool.TotalDeposit)
		assert.Equal(t, 1, pool.Delegators)
	})

	t.Run("it persists settlement and claim through restarts", func(t *testing.T) {
		t.Parallel()

		// Arrange
		db := migratortest.CreateSeededTestDatabase(t, cfg.MigrationsDir, demo, cfg.SeedTimeout)
		server := createTestServer(t, cfg, db)
		server.settle(t, cfg.SeedPool, "1000")

		// Act
		claim := server.do(t, http.MethodPost, "/pools/"+cfg.SeedPool+"/claim", delegatorID, nil)
		payout := parseJSONResponse[api.Payout](t, claim)
		restarted := createTestServer(t, cfg, db)
		beforeOutcome := restarted.position(t, cfg.SeedPool)
		outcome := restarted.do(t, http.MethodPost, "/transfers/"+payout.TransferID+"/outcome", tokenID,
			map[string]any{"succeeded": false})

		// Assert
		require.Equal(t, http.StatusAccepted, claim.StatusCode)
		assert.Equal(t, "390", payout.Amount)
		assert.Equal(t, "0", beforeOutcome.PendingReward)
		require.Equal(t, http.StatusOK, outcome.StatusCode)
		assert.Equal(t, "390", restarted.position(t, cfg.SeedPool).PendingReward)
	})

	t.Run("it lists in-flight transfers for the token service", func(t *testing.T) {
		t.Parallel()

		// Arrange
		db := migratortest.CreateSeededTestDatabase(t, cfg.MigrationsDir, demo, cfg.SeedTimeout)
		server := createTestServer(t, cfg, db)
		server.settle(t, cfg.SeedPool, "1000")

		// Act
		resp := server.do(t, http.MethodGet, "/transfers", tokenID, nil)

		// Assert
		require.Equal(t, http.StatusOK, resp.StatusCode)
		pending := parseJSONResponse[api.PendingTransfersResponse](t, resp)
		require.Len(t, pending.Data, 1)
		assert.Equal(t, string(ledger.KindBurn), pending.Data[0].Kind)
		assert.Equal(t, "10", pending.Data[0].Amount)
		require.Len(t, server.transfers.burns, 1)
	})
}

// recordingTransferer accepts every request and remembers it
type recordingTransferer struct {
	mu        sync.Mutex
	transfers []ledger.TransferRequest
	burns     []ledger.BurnRequest
}

func (r *recordingTransferer) Transfer(_ context.Context, req ledger.TransferRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, req)
	return nil
}

func (r *recordingTransferer) Burn(_ context.Context, req ledger.BurnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.burns = append(r.burns, req)
	return nil
}

type refuseSignatures struct{}

func (refuseSignatures) Verify([]byte, string) bool { return false }

type testServer struct {
	*httptest.Server
	transfers *recordingTransferer
}

// createTestServer wires a fresh ledger over db, as a service restart would
func createTestServer(t *testing.T, cfg testcfg.Config, db *pgxpool.Pool) *testServer {
	t.Helper()

	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
	})

	store, _ := pgxstore.New(db)
	transfers := &recordingTransferer{}
	l := ledger.New(store, transfers, refuseSignatures{}, tokenID, ownerID, ledger.WithLogger(log))
	t.Cleanup(l.Close)

	mux := http.NewServeMux()
	handler.NewPools(l).AddRoutes(mux)
	handler.NewTokenCallbacks(l, tokenID).AddRoutes(mux)

	server := httptest.NewServer(logger.NewMiddleware(log)(mux))
	t.Cleanup(server.Close)

	return &testServer{Server: server, transfers: transfers}
}

func (s *testServer) do(t *testing.T, method, path, caller string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(httpkit.CallerHeader, caller)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (s *testServer) settle(t *testing.T, poolID, amount string) {
	t.Helper()

	msg, err := json.Marshal(map[string]any{"pool_ids": []string{poolID}, "amounts": []string{amount}})
	require.NoError(t, err)
	resp := s.do(t, http.MethodPost, "/ft/on-transfer", tokenID, api.TransferNotificationRequest{
		SenderID: ownerID,
		Amount:   amount,
		Msg:      string(msg),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "0", parseJSONResponse[api.TransferNotificationResponse](t, resp).Refund)
}

func (s *testServer) position(t *testing.T, poolID string) api.Position {
	t.Helper()

	resp := s.do(t, http.MethodGet, "/pools/"+poolID+"/delegators/"+delegatorID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return parseJSONResponse[api.Position](t, resp)
}

// parseJSONResponse parses HTTP response body as JSON into the specified type
func parseJSONResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer resp.Body.Close()

	var result T
	err := json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err, "Response should be valid JSON")

	return result
}
