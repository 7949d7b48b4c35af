package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls a running parcel HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client for baseURL. A nil hc uses a client with a
// 30 second timeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Message string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Code)
}

type errorBody struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Submit sends text for extraction.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var out struct {
		SubmitResponse
		errorBody
	}
	code, err := c.do(ctx, http.MethodPost, "/v1/submit", req, &out)
	if err != nil {
		return SubmitResponse{}, err
	}
	if code >= http.StatusBadRequest {
		return SubmitResponse{}, statusError(code, out.errorBody, out.Message)
	}
	return out.SubmitResponse, nil
}

// Decide confirms or rejects a proposal. On a conflict the response carries
// the follow-up proposal alongside the returned *StatusError.
func (c *Client) Decide(ctx context.Context, req DecideRequest) (DecideResponse, error) {
	var out struct {
		DecideResponse
		errorBody
	}
	code, err := c.do(ctx, http.MethodPost, "/v1/decide", req, &out)
	if err != nil {
		return DecideResponse{}, err
	}
	if code >= http.StatusBadRequest {
		return out.DecideResponse, statusError(code, out.errorBody, out.Message)
	}
	return out.DecideResponse, nil
}

// Operation fetches one operation.
func (c *Client) Operation(ctx context.Context, id string) (OperationPayload, error) {
	var out struct {
		OperationPayload
		errorBody
	}
	code, err := c.do(ctx, http.MethodGet, "/v1/operations/"+url.PathEscape(id), nil, &out)
	if err != nil {
		return OperationPayload{}, err
	}
	if code >= http.StatusBadRequest {
		return OperationPayload{}, statusError(code, out.errorBody, "")
	}
	return out.OperationPayload, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

func statusError(code int, body errorBody, fallback string) error {
	msg := fallback
	if body.Error != nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &StatusError{Code: code, Message: msg}
}
