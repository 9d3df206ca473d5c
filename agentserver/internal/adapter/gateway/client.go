// Package gateway pushes turn notifications to the gateway's websocket hub.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client delivers events to the gateway's /internal/send endpoint.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	callTimeout time.Duration
}

// NewClient creates a notifier. An empty baseURL disables delivery.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:  httpClient,
		callTimeout: 5 * time.Second,
	}
}

// SendRequest represents the request body for internal event delivery.
type SendRequest struct {
	SessionID string      `json:"session_id"`
	Event     interface{} `json:"event"`
}

// SendResponse represents the response for internal event delivery.
type SendResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

// Enabled reports whether a gateway URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// PushEvent sends event to every websocket bound to sessionID.
// It reports whether at least one connection received it.
func (c *Client) PushEvent(ctx context.Context, sessionID string, event interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	body, err := json.Marshal(&SendRequest{SessionID: sessionID, Event: event})
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/send", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to push event to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if !out.OK {
		return false, fmt.Errorf("gateway returned ok=false")
	}
	return out.Delivered, nil
}
