package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchrishi/sahabat/internal/logger"
)

type failingClient struct {
	calls int
	err   error
}

func (f *failingClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	return nil, f.err
}

func (f *failingClient) GenerateContentStream(ctx context.Context, req *Request, callback StreamCallback) (*Response, error) {
	f.calls++
	return nil, f.err
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingClient{err: errors.New("upstream unavailable")}
	b := NewBreakerClient("test", inner, BreakerConfig{MaxFailures: 2, Timeout: time.Minute}, logger.Discard())
	req := &Request{Model: "m"}

	for i := 0; i < 2; i++ {
		_, err := b.GenerateContent(context.Background(), req)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.GenerateContentStream(context.Background(), req, func(*Response) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the model")
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	b := NewBreakerClient("mock", NewMockClient(), BreakerConfig{}, logger.Discard())
	resp, err := b.GenerateContent(context.Background(), orchestratorRequest("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content.Parts)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	inner := &failingClient{err: context.Canceled}
	b := NewBreakerClient("test", inner, BreakerConfig{MaxFailures: 1}, logger.Discard())

	for i := 0; i < 3; i++ {
		_, err := b.GenerateContent(context.Background(), &Request{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestNewModelClientMockMode(t *testing.T) {
	client, closer, err := NewModelClient(context.Background(), ModeMock, "", BreakerConfig{}, logger.Discard())
	require.NoError(t, err)
	defer closer()
	assert.IsType(t, &BreakerClient{}, client)
}

func TestNewModelClientRequiresAPIKey(t *testing.T) {
	_, _, err := NewModelClient(context.Background(), "", "", BreakerConfig{}, logger.Discard())
	assert.ErrorContains(t, err, "GOOGLE_API_KEY")
}

// streamingClient delivers one chunk through the callback, then returns err
// (or the callback's error when it fails).
type streamingClient struct {
	calls int
	err   error
}

func (s *streamingClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	s.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *streamingClient) GenerateContentStream(ctx context.Context, req *Request, callback StreamCallback) (*Response, error) {
	s.calls++
	if err := callback(&Response{}); err != nil {
		return nil, fmt.Errorf("deliver chunk: %w", err)
	}
	return nil, s.err
}

func TestBreakerIgnoresCallbackFailures(t *testing.T) {
	inner := &streamingClient{}
	b := NewBreakerClient("test", inner, BreakerConfig{MaxFailures: 1}, logger.Discard())
	brokenPipe := errors.New("write: broken pipe")

	for i := 0; i < 3; i++ {
		_, err := b.GenerateContentStream(context.Background(), &Request{}, func(*Response) error { return brokenPipe })
		assert.ErrorIs(t, err, brokenPipe)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 3, inner.calls)

	// A model failure after a delivered chunk still counts.
	inner.err = errors.New("stream reset by model")
	_, err := b.GenerateContentStream(context.Background(), &Request{}, func(*Response) error { return nil })
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreakerIgnoresExpiredCallerDeadline(t *testing.T) {
	inner := &streamingClient{}
	b := NewBreakerClient("test", inner, BreakerConfig{MaxFailures: 1}, logger.Discard())

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		_, err := b.GenerateContent(ctx, &Request{})
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
