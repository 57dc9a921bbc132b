package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/ledger/store/memstore"
	"github.com/screwyprof/ticle/pkg/clock"
	"github.com/screwyprof/ticle/pkg/httpkit"
	"github.com/screwyprof/ticle/pkg/logger"
	"github.com/screwyprof/ticle/web/api"
	"github.com/screwyprof/ticle/web/handler"
)

const (
	tokenID  = "ft.test"
	ownerID  = "owner.test"
	coderID  = "alice.test"
	bobID    = "bob.test"
	poolID   = "alice-vapi"
	goodSig  = "trusted"
	oneToken = "10000000"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

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

// staticVerifier accepts a single signature value
type staticVerifier struct{}

func (staticVerifier) Verify(_ []byte, signature string) bool {
	return signature == goodSig
}

type testServer struct {
	*httptest.Server
	clock     *clock.Manual
	transfers *recordingTransferer
	ledger    *ledger.Ledger
}

func createTestServer(t *testing.T) *testServer {
	t.Helper()

	clk := clock.NewManual(epoch)
	transfers := &recordingTransferer{}
	l := ledger.New(memstore.New(), transfers, staticVerifier{}, tokenID, ownerID,
		ledger.WithClock(clk),
		ledger.WithLogger(logger.Discard()),
	)
	t.Cleanup(l.Close)

	mux := http.NewServeMux()
	handler.NewPools(l).AddRoutes(mux)
	handler.NewTokenCallbacks(l, tokenID).AddRoutes(mux)

	server := httptest.NewServer(logger.NewMiddleware(logger.Discard())(mux))
	t.Cleanup(server.Close)

	return &testServer{Server: server, clock: clk, transfers: transfers, ledger: l}
}

// do sends a JSON request on behalf of caller; an empty caller sends no header
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

func (s *testServer) createPool(t *testing.T) {
	t.Helper()

	resp := s.do(t, http.MethodPost, "/pools", coderID, api.CreatePoolRequest{PoolID: poolID})
	assertStatus(t, resp, http.StatusCreated)
}

// notify delivers a token transfer notification and returns the refund response
func (s *testServer) notify(t *testing.T, sender, amount string, msg any) api.TransferNotificationResponse {
	t.Helper()

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	resp := s.do(t, http.MethodPost, "/ft/on-transfer", tokenID, api.TransferNotificationRequest{
		SenderID: sender,
		Amount:   amount,
		Msg:      string(raw),
	})
	assertStatus(t, resp, http.StatusOK)
	return parseJSONResponse[api.TransferNotificationResponse](t, resp)
}

func (s *testServer) deposit(t *testing.T, delegator, amount string) {
	t.Helper()

	out := s.notify(t, delegator, amount, map[string]any{"pool_id": poolID})
	require.Equal(t, "0", out.Refund, out.Error)
}

func (s *testServer) settle(t *testing.T, amount string) {
	t.Helper()

	out := s.notify(t, ownerID, amount, map[string]any{
		"pool_ids": []string{poolID},
		"amounts":  []string{amount},
	})
	require.Equal(t, "0", out.Refund, out.Error)
}

func (s *testServer) requestReview(t *testing.T, reviewer, royalty string) {
	t.Helper()

	out := s.notify(t, coderID, royalty, map[string]any{
		"pool_id":         poolID,
		"version":         "1.0",
		"reviewer_ids":    []string{reviewer},
		"royalty_amounts": []string{royalty},
		"signature":       goodSig,
	})
	require.Equal(t, "0", out.Refund, out.Error)
}

func (s *testServer) reportOutcome(t *testing.T, transferID string, succeeded bool) *http.Response {
	t.Helper()

	return s.do(t, http.MethodPost, "/transfers/"+transferID+"/outcome", tokenID,
		map[string]any{"succeeded": succeeded})
}

func (s *testServer) pool(t *testing.T) api.Pool {
	t.Helper()

	resp := s.do(t, http.MethodGet, "/pools/"+poolID, "", nil)
	assertStatus(t, resp, http.StatusOK)
	return parseJSONResponse[api.Pool](t, resp)
}

func (s *testServer) position(t *testing.T, delegator string) api.Position {
	t.Helper()

	resp := s.do(t, http.MethodGet, "/pools/"+poolID+"/delegators/"+delegator, "", nil)
	assertStatus(t, resp, http.StatusOK)
	return parseJSONResponse[api.Position](t, resp)
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()

	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
}

func assertErrorResponse(t *testing.T, resp *http.Response, expected int) map[string]any {
	t.Helper()

	assertStatus(t, resp, expected)
	body := parseJSONResponse[map[string]any](t, resp)
	assert.Equal(t, float64(expected), body["code"])
	assert.NotEmpty(t, body["message"])
	return body
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
