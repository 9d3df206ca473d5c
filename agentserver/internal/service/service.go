package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchrishi/sahabat/agentserver/internal/config"
	"github.com/couchrishi/sahabat/agentserver/internal/pipeline"
	store "github.com/couchrishi/sahabat/agentserver/internal/repository"
)

var (
	// ErrInvalidRequest marks requests rejected before a run starts.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAppNotFound is returned for any app other than sahabat.
	ErrAppNotFound = errors.New("app not found")
)

// Notifier delivers turn notifications to the gateway.
type Notifier interface {
	PushEvent(ctx context.Context, sessionID string, event interface{}) (bool, error)
}

type Service struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	notifier Notifier
	config   *config.Config
	logger   *slog.Logger
	locks    *keyedMutex
}

func New(store store.Store, pipeline *pipeline.Pipeline, notifier Notifier, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		pipeline: pipeline,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		locks:    newKeyedMutex(),
	}
}
