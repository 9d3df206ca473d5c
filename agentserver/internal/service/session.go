package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

func checkApp(appName string) error {
	if appName != domain.AppName {
		return fmt.Errorf("%q: %w", appName, ErrAppNotFound)
	}
	return nil
}

// CreateSession creates a session with the given initial state.
// An empty session id is replaced by a generated one.
func (s *Service) CreateSession(ctx context.Context, key domain.SessionKey, state map[string]any) (*domain.Session, error) {
	if err := checkApp(key.AppName); err != nil {
		return nil, err
	}
	if key.UserID == "" {
		return nil, fmt.Errorf("user_id is required: %w", ErrInvalidRequest)
	}
	if key.SessionID == "" {
		key.SessionID = uuid.New().String()
	}

	session := &domain.Session{
		ID:        key.SessionID,
		AppName:   key.AppName,
		UserID:    key.UserID,
		State:     domain.State{},
		CreatedAt: time.Now(),
	}
	session.State.Merge(state)

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("session created", "session", key.String(), "user_tier", session.State.String(domain.StateUserTier))
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	if err := checkApp(key.AppName); err != nil {
		return nil, err
	}
	session, err := s.store.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context, appName, userID string) ([]domain.Session, error) {
	if err := checkApp(appName); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, appName, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	if err := checkApp(key.AppName); err != nil {
		return err
	}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	if err := s.store.DeleteSession(ctx, key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Service) GetMessages(ctx context.Context, key domain.SessionKey, limit int) ([]domain.Message, error) {
	messages, err := s.store.GetMessages(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// ListApps returns the apps served by this agent server.
func (s *Service) ListApps() []string {
	return []string{domain.AppName}
}
