// Package ftclient talks to the fungible token transfer service.
//
// Requests are asynchronous: the service accepts a request and later reports
// its outcome back to the caller's callback endpoint using the request id.
package ftclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Sentinel errors for client operations
var (
	// ErrRejected means the service refused the request; it will never be executed.
	ErrRejected = errors.New("transfer request rejected")
	// ErrUnavailable means the service could not be reached or failed internally.
	ErrUnavailable = errors.New("transfer service unavailable")
	// ErrNotFound means the service has no record of the request id.
	ErrNotFound = errors.New("transfer request not found")
)

// Request statuses reported by the service
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Client represents a token transfer service client
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new client with custom HTTP client and base URL
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// TransferRequest asks the service to move Amount base units to ReceiverID
type TransferRequest struct {
	ID         string `json:"id"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
}

// BurnRequest asks the service to retire Amount base units
type BurnRequest struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
}

// RequestStatus is the service's view of a transfer or burn request
type RequestStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// errorResponse is the service's error body
type errorResponse struct {
	Error string `json:"error"`
}

// Transfer submits an outbound transfer
func (c *Client) Transfer(ctx context.Context, req TransferRequest) error {
	return c.post(ctx, "/v1/transfers", req)
}

// Burn submits a burn of tokens held by the ledger
func (c *Client) Burn(ctx context.Context, req BurnRequest) error {
	return c.post(ctx, "/v1/burns", req)
}

// Status looks up a previously submitted transfer or burn by its id
func (c *Client) Status(ctx context.Context, id string) (RequestStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/requests/"+url.PathEscape(id), nil)
	if err != nil {
		return RequestStatus{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return RequestStatus{}, fmt.Errorf("%w: making request: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return RequestStatus{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return RequestStatus{}, fmt.Errorf("%w: unexpected status code: %d", ErrUnavailable, resp.StatusCode)
	}

	var status RequestStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return RequestStatus{}, fmt.Errorf("decoding response: %w", err)
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: making request: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, errorMessage(resp.Body))
	default:
		return fmt.Errorf("%w: unexpected status code: %d", ErrUnavailable, resp.StatusCode)
	}
}

func errorMessage(body io.Reader) string {
	var e errorResponse
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&e); err != nil || e.Error == "" {
		return "no details"
	}
	return e.Error
}
