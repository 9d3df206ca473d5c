package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, runID string, eventType domain.EventType, author string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.TraceEvent{
		EventID: "evt_" + ulid.Make().String(),
		RunID:   runID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Author:  author,
		Payload: payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// trace records an event and logs instead of failing the run.
func (s *Service) trace(ctx context.Context, runID string, eventType domain.EventType, author string, payload interface{}) {
	if err := s.recordEvent(ctx, runID, eventType, author, payload); err != nil {
		s.logger.Error("failed to record event", "run_id", runID, "type", eventType, "error", err)
	}
}

func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.TraceEvent, error) {
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	events, err := s.store.GetEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}
