package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchrishi/sahabat/internal/sse"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// chunkedBody returns one chunk per Read, then err (io.EOF when nil).
type chunkedBody struct {
	chunks []string
	err    error
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks = b.chunks[1:]
	return n, nil
}

func (b *chunkedBody) Close() error { return nil }

// recorder keeps every write separately and counts flushes.
type recorder struct {
	writes  []string
	flushes int
}

func (r *recorder) Write(p []byte) (int, error) {
	r.writes = append(r.writes, string(p))
	return len(p), nil
}

func (r *recorder) flush() { r.flushes++ }

func newFakeClient(fn roundTripFunc) *Client {
	return NewClient("http://agent:8001/", &http.Client{Transport: fn})
}

func TestRelayForwardsChunksInOrder(t *testing.T) {
	var gotBody []byte
	client := newFakeClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "http://agent:8001/run_sse", req.URL.String())
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		gotBody, _ = io.ReadAll(req.Body)
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:       &chunkedBody{chunks: []string{"a", "b", "c"}},
		}, nil
	})

	rec := &recorder{}
	err := client.Relay(context.Background(), []byte(`{"session_id":"s1"}`), rec, rec.flush)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rec.writes)
	assert.Equal(t, 3, rec.flushes)
	assert.JSONEq(t, `{"session_id":"s1"}`, string(gotBody))
}

func TestRelayTransportErrorEmitsOneEvent(t *testing.T) {
	client := newFakeClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	rec := &recorder{}
	err := client.Relay(context.Background(), []byte(`{}`), rec, rec.flush)

	require.Error(t, err)
	require.Len(t, rec.writes, 1)
	out := rec.writes[0]
	assert.True(t, strings.HasPrefix(out, `data: {"error": "Agent service connection error: `), out)
	assert.True(t, strings.HasSuffix(out, "connection refused\"}\n\n"), out)

	assert.Len(t, parseEvents(t, out), 1)
}

func TestRelayUpstreamStatusEmitsOneEvent(t *testing.T) {
	client := newFakeClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader(`{"error":"session not found"}`)),
		}, nil
	})

	rec := &recorder{}
	err := client.Relay(context.Background(), []byte(`{}`), rec, rec.flush)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
	require.Len(t, rec.writes, 1)
	assert.Equal(t,
		`data: {"error": "Agent service error: 404 - {\"error\":\"session not found\"}"}`+"\n\n",
		rec.writes[0])
}

func TestRelayMidStreamFailureEndsWithErrorEvent(t *testing.T) {
	client := newFakeClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       &chunkedBody{chunks: []string{"data: {}\n\n"}, err: errors.New("unexpected EOF")},
		}, nil
	})

	rec := &recorder{}
	err := client.Relay(context.Background(), []byte(`{}`), rec, rec.flush)

	require.Error(t, err)
	require.Len(t, rec.writes, 2)
	assert.Equal(t, "data: {}\n\n", rec.writes[0])
	assert.Contains(t, rec.writes[1], "Agent service connection error: unexpected EOF")
}

func TestRelayAgainstHTTPServer(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"data: 1\n\n", "data: 2\n\n"} {
			_, _ = w.Write([]byte(chunk))
			w.(http.Flusher).Flush()
		}
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL, upstream.Client())
	var buf bytes.Buffer
	require.NoError(t, client.Relay(context.Background(), []byte(`{}`), &buf, func() {}))
	assert.Equal(t, "data: 1\n\ndata: 2\n\n", buf.String())
}

func TestRelayStreamOutlivesReadTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 5; i++ {
			_, _ = w.Write([]byte("data: tick\n\n"))
			w.(http.Flusher).Flush()
			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer upstream.Close()

	// Five reads spread over half a second, each well inside the per-read limit.
	client := NewClient(upstream.URL, NewHTTPClient(300*time.Millisecond)).WithReadTimeout(300 * time.Millisecond)
	var buf bytes.Buffer
	require.NoError(t, client.Relay(context.Background(), []byte(`{}`), &buf, func() {}))
	assert.Equal(t, 5, strings.Count(buf.String(), "data: tick"))
	assert.NotContains(t, buf.String(), "error")
}

func TestRelayStalledUpstreamTimesOut(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: 1\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL, upstream.Client()).WithReadTimeout(50 * time.Millisecond)
	var buf bytes.Buffer
	err := client.Relay(context.Background(), []byte(`{}`), &buf, func() {})

	require.ErrorIs(t, err, errReadTimeout)
	events := parseEvents(t, buf.String())
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].Data)
	assert.Contains(t, events[1].Data, "Agent service connection error: upstream read timed out after 50ms")
}

func TestCreateSession(t *testing.T) {
	var gotPath, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"s 1","appName":"sahabat"}`))
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL, upstream.Client())
	resp, err := client.CreateSession(context.Background(), "sahabat", "u1", "s 1", nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"id":"s 1","appName":"sahabat"}`, string(resp.Body))
	assert.Equal(t, "/apps/sahabat/users/u1/sessions/s%201", gotPath)
	assert.Equal(t, "{}", gotBody)
}

func TestCreateSessionUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL, upstream.Client())
	_, err := client.CreateSession(context.Background(), "sahabat", "u1", "s1", []byte(`{"state":{}}`))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
	assert.Equal(t, "not found", statusErr.Detail)
}

func TestCreateSessionTransportError(t *testing.T) {
	client := newFakeClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	_, err := client.CreateSession(context.Background(), "sahabat", "u1", "s1", nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
	assert.Contains(t, statusErr.Detail, "Agent service connection error: ")
}

func parseEvents(t *testing.T, out string) []sse.Event {
	t.Helper()
	var events []sse.Event
	require.NoError(t, sse.Parse(strings.NewReader(out), func(ev sse.Event) error {
		events = append(events, ev)
		return nil
	}))
	return events
}
