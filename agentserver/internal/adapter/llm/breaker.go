package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("model circuit open")

// callerError marks a failure caused by the caller rather than the model: a
// stream callback that could not deliver a chunk, or a context the caller let
// expire. It never counts against the breaker.
type callerError struct {
	err error
}

func (e *callerError) Error() string { return e.err.Error() }

func (e *callerError) Unwrap() error { return e.err }

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration `yaml:"timeout"`
	// Interval clears failure counts while closed. Zero never clears.
	Interval time.Duration `yaml:"interval"`
}

// BreakerClient wraps a Client so that repeated failures fail fast instead of
// reaching the model API. It never retries.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker[*Response]
}

// Ensure BreakerClient implements Client interface.
var _ Client = (*BreakerClient)(nil)

// NewBreakerClient wraps inner. Zero config values fall back to defaults.
func NewBreakerClient(name string, inner Client, cfg BreakerConfig, logger *slog.Logger) *BreakerClient {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the model's health.
			var ce *callerError
			return err == nil || errors.As(err, &ce) || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerClient{inner: inner, breaker: cb}
}

// GenerateContent implements Client.
func (b *BreakerClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	resp, err := b.breaker.Execute(func() (*Response, error) {
		resp, err := b.inner.GenerateContent(ctx, req)
		if err != nil && ctx.Err() != nil {
			return resp, &callerError{err: err}
		}
		return resp, err
	})
	return resp, b.wrap(err)
}

// GenerateContentStream implements Client. A stream that fails midway counts as one failure.
func (b *BreakerClient) GenerateContentStream(ctx context.Context, req *Request, callback StreamCallback) (*Response, error) {
	resp, err := b.breaker.Execute(func() (*Response, error) {
		var delivered error
		resp, err := b.inner.GenerateContentStream(ctx, req, func(chunk *Response) error {
			if err := callback(chunk); err != nil {
				delivered = err
				return err
			}
			return nil
		})
		if err != nil && (delivered != nil || ctx.Err() != nil) {
			return resp, &callerError{err: err}
		}
		return resp, err
	})
	return resp, b.wrap(err)
}

// State returns the current breaker state.
func (b *BreakerClient) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerClient) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w (%s): %v", ErrCircuitOpen, b.breaker.Name(), err)
	}
	var ce *callerError
	if errors.As(err, &ce) {
		return ce.err
	}
	return err
}
