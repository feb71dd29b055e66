package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// Client is an HTTP client for the photo pipeline control API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx response from the control API
type APIError struct {
	StatusCode int
	Message    string
	Field      string // set for configuration errors
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("unexpected status %d: %s (field %s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// New creates a new pipeline client
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Stop waits for the queue to drain
			Timeout: 3 * time.Minute,
		},
	}
}

// NewWithHTTPClient creates a new pipeline client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Status returns the pipeline state and settings
func (c *Client) Status(ctx context.Context) (*pipeline.StatusResponse, error) {
	var resp pipeline.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start starts the pipeline
func (c *Client) Start(ctx context.Context) (*pipeline.StatusResponse, error) {
	var resp pipeline.StatusResponse
	if err := c.do(ctx, http.MethodPost, "/v1/start", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop stops the pipeline once queued photos are processed
func (c *Client) Stop(ctx context.Context) (*pipeline.StatusResponse, error) {
	var resp pipeline.StatusResponse
	if err := c.do(ctx, http.MethodPost, "/v1/stop", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Printers lists printer destinations, the default label first
func (c *Client) Printers(ctx context.Context) ([]string, error) {
	var resp pipeline.PrintersResponse
	if err := c.do(ctx, http.MethodGet, "/v1/printers", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Printers, nil
}

// Events returns status lines with a sequence number above since
func (c *Client) Events(ctx context.Context, since int64) ([]pipeline.StatusEvent, error) {
	var resp pipeline.EventsResponse
	path := fmt.Sprintf("/v1/events?since=%d", since)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Reprocess makes the pipeline pick up path again
func (c *Client) Reprocess(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPost, "/v1/reprocess", pipeline.ReprocessRequest{Path: path}, http.StatusAccepted, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	// Execute request
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Check status code
	if resp.StatusCode != want {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		var errResp pipeline.ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			apiErr.Message, apiErr.Field = errResp.Error, errResp.Field
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
