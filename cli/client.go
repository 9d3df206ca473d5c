package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchrishi/sahabat/internal/agentapi"
	"github.com/couchrishi/sahabat/internal/sse"
)

// gatewayClient is an HTTP client for the gateway's public API.
type gatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

func newGatewayClient(baseURL string, timeout time.Duration) *gatewayClient {
	return &gatewayClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateSession calls POST /session/:app/users/:user/sessions/:session with
// the tier as initial state and returns the session JSON.
func (c *gatewayClient) CreateSession(ctx context.Context, appName, userID, sessionID, tier string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"state": map[string]any{"user_tier": tier},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/session/%s/users/%s/sessions/%s", c.baseURL,
		url.PathEscape(appName), url.PathEscape(userID), url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, gatewayError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// Chat calls POST /chat and hands every streamed event to handle. An error
// event from the gateway or the agent server ends the stream with an error.
func (c *gatewayClient) Chat(ctx context.Context, req agentapi.RunRequest, handle func(*agentapi.Event) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return gatewayError(resp.StatusCode, respBody)
	}

	return sse.Parse(resp.Body, func(ev sse.Event) error {
		var event agentapi.Event
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		if event.Error != "" {
			return errors.New(event.Error)
		}
		return handle(&event)
	})
}

func gatewayError(status int, body []byte) error {
	var errResp struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Detail != "" {
			return fmt.Errorf("gateway returned %d: %s", status, errResp.Detail)
		}
		if errResp.Error != "" {
			return fmt.Errorf("gateway returned %d: %s", status, errResp.Error)
		}
	}
	return fmt.Errorf("gateway returned %d: %s", status, strings.TrimSpace(string(body)))
}

// websocketURL derives the gateway's /ws endpoint from its HTTP base URL.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
