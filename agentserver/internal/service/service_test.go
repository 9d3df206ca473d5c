package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchrishi/sahabat/agentserver/internal/adapter/llm"
	"github.com/couchrishi/sahabat/agentserver/internal/config"
	"github.com/couchrishi/sahabat/agentserver/internal/domain"
	"github.com/couchrishi/sahabat/agentserver/internal/pipeline"
	store "github.com/couchrishi/sahabat/agentserver/internal/repository"
	"github.com/couchrishi/sahabat/agentserver/policy"
	"github.com/couchrishi/sahabat/agentserver/tests/helpers"
	"github.com/couchrishi/sahabat/internal/logger"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.Notification
}

func (f *fakeNotifier) PushEvent(_ context.Context, _ string, event interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event.(domain.Notification))
	return true, nil
}

type failingClient struct{}

func (failingClient) GenerateContent(context.Context, *llm.Request) (*llm.Response, error) {
	return nil, errors.New("model unavailable")
}

func (failingClient) GenerateContentStream(context.Context, *llm.Request, llm.StreamCallback) (*llm.Response, error) {
	return nil, errors.New("model unavailable")
}

// failAfterClient delegates to a working client for the first n model calls
// and fails every call after that.
type failAfterClient struct {
	llm.Client
	mu    sync.Mutex
	n     int
	calls int
}

func (c *failAfterClient) GenerateContent(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.calls++
	fail := c.calls > c.n
	c.mu.Unlock()
	if fail {
		return nil, errors.New("model unavailable")
	}
	return c.Client.GenerateContent(ctx, req)
}

func newTestService(t *testing.T, client llm.Client) (*Service, store.Store, *fakeNotifier) {
	t.Helper()
	db := helpers.NewTestStore(t)
	engine, err := policy.NewEngineFromFile(context.Background(), "")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Mode = llm.ModeMock
	p := pipeline.New(client, engine, cfg.Models, logger.Discard())
	n := &fakeNotifier{}
	return New(db, p, n, cfg, logger.Discard()), db, n
}

var key = domain.SessionKey{AppName: domain.AppName, UserID: "user-1", SessionID: "session-1"}

func TestCreateSession(t *testing.T) {
	svc, _, _ := newTestService(t, llm.NewMockClient())
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, key, map[string]any{domain.StateUserTier: "Paid"})
	require.NoError(t, err)
	assert.Equal(t, "session-1", session.ID)
	assert.Equal(t, domain.TierPaid, session.State.Tier())

	_, err = svc.CreateSession(ctx, key, nil)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	generated, err := svc.CreateSession(ctx, domain.SessionKey{AppName: domain.AppName, UserID: "user-1"}, nil)
	require.NoError(t, err)
	assert.Len(t, generated.ID, 36)

	_, err = svc.CreateSession(ctx, domain.SessionKey{AppName: "other", UserID: "u", SessionID: "s"}, nil)
	assert.ErrorIs(t, err, ErrAppNotFound)

	list, err := svc.ListSessions(ctx, domain.AppName, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRunPersistsTurn(t *testing.T) {
	svc, db, notifier := newTestService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, key, map[string]any{domain.StateUserTier: "Paid"})
	require.NoError(t, err)

	var events []*domain.Event
	run, err := svc.Run(ctx, domain.RunRequest{
		AppName:    key.AppName,
		UserID:     key.UserID,
		SessionID:  key.SessionID,
		NewMessage: domain.UserText("Explain how tides work"),
	}, func(ev *domain.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, run.Status)
	assert.Equal(t, string(domain.TargetText), run.TargetAgent)
	require.Len(t, events, 3)

	session, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Explain how tides work", session.State.String(domain.StateUserQuery))
	final := session.State.String(domain.StateFinalResponse)
	assert.GreaterOrEqual(t, len(pipeline.Paragraphs(final)), 3)

	messages, err := db.GetMessages(ctx, key, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, final, messages[1].Content)

	stored, err := svc.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, stored.Status)

	trace, err := svc.GetRunEvents(ctx, run.RunID, 0, nil, 0)
	require.NoError(t, err)
	types := make([]domain.EventType, 0, len(trace))
	for _, ev := range trace {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, domain.EventTypeRunStarted)
	assert.Contains(t, types, domain.EventTypePolicyDecision)
	assert.Contains(t, types, domain.EventTypeRunDone)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, domain.NotificationTurnComplete, notifier.events[0].Type)
	assert.Equal(t, final, notifier.events[0].FinalResponse)
}

func TestRunAppliesStateDeltaAndReplaysHistory(t *testing.T) {
	svc, _, _ := newTestService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	req := domain.RunRequest{
		AppName:    key.AppName,
		UserID:     key.UserID,
		SessionID:  key.SessionID,
		NewMessage: domain.UserText("What is Go?"),
		StateDelta: map[string]any{domain.StateUserTier: "Free"},
	}
	noop := func(*domain.Event) error { return nil }
	_, err = svc.Run(ctx, req, noop)
	require.NoError(t, err)

	session, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Free", session.State[domain.StateUserTier])
	assert.Len(t, pipeline.Paragraphs(session.State.String(domain.StateFinalResponse)), 1)

	history, err := svc.history(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleModel, history[1].Role)
}

func TestRunValidation(t *testing.T) {
	svc, _, _ := newTestService(t, llm.NewMockClient())
	ctx := context.Background()
	noop := func(*domain.Event) error { return nil }

	_, err := svc.Run(ctx, domain.RunRequest{AppName: domain.AppName, UserID: "u"}, noop)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Run(ctx, domain.RunRequest{AppName: domain.AppName, UserID: "u", SessionID: "s"}, noop)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Run(ctx, domain.RunRequest{AppName: domain.AppName, UserID: "u", SessionID: "missing", NewMessage: domain.UserText("hi")}, noop)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunFailureMarksRunFailed(t *testing.T) {
	svc, _, notifier := newTestService(t, failingClient{})
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	run, err := svc.Run(ctx, domain.RunRequest{
		AppName:    key.AppName,
		UserID:     key.UserID,
		SessionID:  key.SessionID,
		NewMessage: domain.UserText("hello"),
	}, func(*domain.Event) error { return nil })
	require.Error(t, err)
	require.NotNil(t, run)

	stored, err := svc.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, stored.Status)
	assert.Contains(t, string(stored.Error), "model unavailable")

	require.Len(t, notifier.events, 1)
	assert.Equal(t, domain.NotificationTurnFailed, notifier.events[0].Type)

	session, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	_, ok := session.State[domain.StateFinalResponse]
	assert.False(t, ok)
}

func TestFailedTurnDropsPreviousResult(t *testing.T) {
	// Turn one makes two model calls; turn two fails at its specialist.
	svc, _, _ := newTestService(t, &failAfterClient{Client: llm.NewMockClient(), n: 3})
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	run := func(text string) error {
		_, err := svc.Run(ctx, domain.RunRequest{
			AppName:    key.AppName,
			UserID:     key.UserID,
			SessionID:  key.SessionID,
			NewMessage: domain.UserText(text),
		}, func(*domain.Event) error { return nil })
		return err
	}

	require.NoError(t, run("write a poem about a cat"))
	session, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	require.NotEmpty(t, session.State.String(domain.StateFinalResponse))

	require.Error(t, run("draw a dog"))
	session, err = svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "draw a dog", session.State.String(domain.StateUserQuery))
	assert.NotNil(t, session.State[domain.StateOrchestratorAnalysis])
	_, ok := session.State[domain.StateFinalResponse]
	assert.False(t, ok, "final_response from the previous turn must not survive a failed turn")
}

func TestGetRunEventsUnknownRun(t *testing.T) {
	svc, _, _ := newTestService(t, llm.NewMockClient())
	_, err := svc.GetRunEvents(context.Background(), "run_missing", 0, nil, 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteSession(t *testing.T) {
	svc, _, _ := newTestService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, key, nil)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSession(ctx, key))

	_, err = svc.GetSession(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, svc.locks.size())
}

func TestKeyedMutexSerializes(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.size())
}
