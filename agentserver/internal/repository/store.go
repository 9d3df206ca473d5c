package store

import (
	"context"
	"errors"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

var (
	// ErrNotFound is returned when a session or run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a session whose key is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error)
	ListSessions(ctx context.Context, appName, userID string) ([]domain.Session, error)
	UpdateSessionState(ctx context.Context, key domain.SessionKey, state domain.State) error
	DeleteSession(ctx context.Context, key domain.SessionKey) error

	// Message operations
	CreateMessage(ctx context.Context, key domain.SessionKey, message *domain.Message) error
	GetMessages(ctx context.Context, key domain.SessionKey, limit int) ([]domain.Message, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	UpdateRunTarget(ctx context.Context, runID string, target domain.TargetAgent) error
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.TraceEvent) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.TraceEvent, error)

	Close() error
}
