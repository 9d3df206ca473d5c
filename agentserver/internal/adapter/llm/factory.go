package llm

import (
	"context"
	"log/slog"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "SAHABAT_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewModelClient creates the model client for the given mode, wrapped in a
// circuit breaker. MOCK mode returns a MockClient and needs no API key.
// The returned closer releases the underlying connection.
func NewModelClient(ctx context.Context, mode, apiKey string, breaker BreakerConfig, logger *slog.Logger) (Client, func() error, error) {
	if mode == ModeMock {
		logger.Info("mock mode detected, using mock model client", "env", EnvMode)
		return NewBreakerClient("mock", NewMockClient(), breaker, logger), func() error { return nil }, nil
	}

	gemini, err := NewGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, nil, err
	}
	return NewBreakerClient("gemini", gemini, breaker, logger), gemini.Close, nil
}
