// Package proxy forwards gateway traffic to the agent server.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchrishi/sahabat/internal/sse"
)

// chunkSize bounds a single upstream read during relay.
const chunkSize = 32 * 1024

// StatusError is an upstream failure translated for the gateway's caller.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Detail)
}

var errReadTimeout = errors.New("upstream read timed out")

// Client is an HTTP client for the agent server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	readTimeout time.Duration
}

// NewHTTPClient returns the client shared by every upstream call. It bounds
// the wait for response headers but sets no total timeout, so long event
// streams are limited per read by Client.WithReadTimeout instead.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// NewClient creates a new agent server client. The http.Client is owned by the
// caller and shared by every request.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithReadTimeout limits how long a session call may take and how long a relay
// may wait between two upstream reads. Zero disables both limits.
func (c *Client) WithReadTimeout(d time.Duration) *Client {
	c.readTimeout = d
	return c
}

func connectionError(err error) string {
	return "Agent service connection error: " + err.Error()
}

// OpenRunStream calls POST /run_sse on the agent server and returns the open
// event stream. Failures are returned as *StatusError carrying the message
// relayed to stream consumers.
func (c *Client) OpenRunStream(ctx context.Context, body []byte) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run_sse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &StatusError{Status: http.StatusBadGateway, Detail: connectionError(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{
			Status: resp.StatusCode,
			Detail: fmt.Sprintf("Agent service error: %d - %s", resp.StatusCode, respBody),
		}
	}

	return resp.Body, nil
}

// Relay streams the agent server's response to body into w, calling flush
// after every chunk so nothing is buffered between reads. Upstream failures
// are written as a single SSE error event that ends the stream. The returned
// error is for logging only.
func (c *Client) Relay(ctx context.Context, body []byte, w io.Writer, flush func()) error {
	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var idle *time.Timer
	if c.readTimeout > 0 {
		idle = time.AfterFunc(c.readTimeout, func() { cancel(errReadTimeout) })
		defer idle.Stop()
	}

	stream, err := c.OpenRunStream(streamCtx, body)
	if err != nil {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			statusErr = &StatusError{Status: http.StatusBadGateway, Detail: connectionError(err)}
		}
		return writeError(w, flush, statusErr.Detail, err)
	}
	defer stream.Close()

	buf := make([]byte, chunkSize)
	for {
		n, readErr := stream.Read(buf)
		if idle != nil {
			idle.Reset(c.readTimeout)
		}
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write chunk: %w", err)
			}
			flush()
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			// The caller went away; nobody is left to read an error event.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(context.Cause(streamCtx), errReadTimeout) {
				readErr = fmt.Errorf("%w after %s", errReadTimeout, c.readTimeout)
			}
			return writeError(w, flush, connectionError(readErr), readErr)
		}
	}
}

func writeError(w io.Writer, flush func(), message string, cause error) error {
	if _, err := w.Write(sse.ErrorEvent(message)); err != nil {
		return errors.Join(cause, err)
	}
	flush()
	return cause
}

// SessionResponse is a successful upstream session-creation reply.
type SessionResponse struct {
	Status int
	Body   []byte
}

// CreateSession calls POST /apps/:app/users/:user/sessions/:session on the
// agent server. An empty body is sent as {}.
func (c *Client) CreateSession(ctx context.Context, appName, userID, sessionID string, body []byte) (*SessionResponse, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s", c.baseURL,
		url.PathEscape(appName), url.PathEscape(userID), url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &StatusError{Status: http.StatusBadGateway, Detail: connectionError(err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StatusError{Status: http.StatusBadGateway, Detail: connectionError(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Detail: string(respBody)}
	}

	return &SessionResponse{Status: resp.StatusCode, Body: respBody}, nil
}
