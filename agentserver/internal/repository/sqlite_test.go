package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

var testKey = domain.SessionKey{AppName: domain.AppName, UserID: "u1", SessionID: "s1"}

func createTestSession(t *testing.T, s Store) {
	t.Helper()
	session := &domain.Session{
		ID:      testKey.SessionID,
		AppName: testKey.AppName,
		UserID:  testKey.UserID,
		State:   domain.State{domain.StateUserTier: "Paid"},
	}
	if err := s.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
}

func TestSQLiteStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	createTestSession(t, store)

	got, err := store.GetSession(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, domain.TierPaid, got.State.Tier())
	assert.NotZero(t, got.LastUpdateTime)

	err = store.CreateSession(ctx, &domain.Session{ID: "s1", AppName: domain.AppName, UserID: "u1"})
	assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)

	got.State[domain.StateFinalResponse] = "done"
	require.NoError(t, store.UpdateSessionState(ctx, testKey, got.State))

	reloaded, err := store.GetSession(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "done", reloaded.State.String(domain.StateFinalResponse))

	list, err := store.ListSessions(ctx, domain.AppName, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteSession(ctx, testKey))
	_, err = store.GetSession(ctx, testKey)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.True(t, errors.Is(store.DeleteSession(ctx, testKey), ErrNotFound))
}

func TestSQLiteStoreSessionsScopedByUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	createTestSession(t, store)

	other := testKey
	other.UserID = "u2"
	_, err := store.GetSession(ctx, other)
	assert.True(t, errors.Is(err, ErrNotFound))

	list, err := store.ListSessions(ctx, domain.AppName, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteStoreMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	createTestSession(t, store)

	base := time.Now()
	for i, text := range []string{"first", "second", "third"} {
		msg := &domain.Message{
			MessageID: "m" + text,
			SessionID: "s1",
			RunID:     "r1",
			Role:      domain.RoleUser,
			Content:   text,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.CreateMessage(ctx, testKey, msg))
	}

	all, err := store.GetMessages(ctx, testKey, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Content)

	recent, err := store.GetMessages(ctx, testKey, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Content)
	assert.Equal(t, "third", recent[1].Content)
}

func TestSQLiteStoreRunAndEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	run := &domain.Run{
		RunID:     "r1",
		AppName:   domain.AppName,
		UserID:    "u1",
		SessionID: "s1",
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.CreateRun(ctx, run))
	require.NoError(t, store.UpdateRunTarget(ctx, "r1", domain.TargetImage))

	events := []domain.TraceEvent{
		{EventID: "e1", RunID: "r1", Ts: 100, Type: domain.EventTypeRunStarted},
		{EventID: "e2", RunID: "r1", Ts: 200, Type: domain.EventTypeAgentEvent, Author: domain.AgentOrchestrator, Payload: json.RawMessage(`{"a":1}`)},
		{EventID: "e3", RunID: "r1", Ts: 300, Type: domain.EventTypeRunDone},
	}
	for i := range events {
		require.NoError(t, store.CreateEvent(ctx, &events[i]))
	}

	got, err := store.GetEvents(ctx, "r1", 100, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.AgentOrchestrator, got[0].Author)
	assert.JSONEq(t, `{"a":1}`, string(got[0].Payload))

	filtered, err := store.GetEvents(ctx, "r1", 0, []string{string(domain.EventTypeRunDone)}, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "e3", filtered[0].EventID)

	require.NoError(t, store.UpdateRunCompleted(ctx, "r1", domain.RunStatusFailed, []byte(`{"message":"boom"}`)))
	gotRun, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, gotRun.Status)
	assert.Equal(t, string(domain.TargetImage), gotRun.TargetAgent)
	assert.NotNil(t, gotRun.EndedAt)
	assert.JSONEq(t, `{"message":"boom"}`, string(gotRun.Error))

	_, err = store.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCachedStoreServesCopies(t *testing.T) {
	ctx := context.Background()
	inner := newTestStore(t)
	defer inner.Close()

	cached, err := NewCachedStore(inner, 8)
	require.NoError(t, err)

	createTestSession(t, cached)
	assert.Equal(t, 1, cached.Len())

	first, err := cached.GetSession(ctx, testKey)
	require.NoError(t, err)
	first.State["scratch"] = "mutated"

	second, err := cached.GetSession(ctx, testKey)
	require.NoError(t, err)
	_, leaked := second.State["scratch"]
	assert.False(t, leaked, "cached state must not alias caller state")

	second.State[domain.StateFinalResponse] = "answer"
	require.NoError(t, cached.UpdateSessionState(ctx, testKey, second.State))
	assert.Equal(t, 0, cached.Len())

	third, err := cached.GetSession(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "answer", third.State.String(domain.StateFinalResponse))

	require.NoError(t, cached.DeleteSession(ctx, testKey))
	_, err = cached.GetSession(ctx, testKey)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// readDuringUpdateStore reads the session through the cache while a state
// write is in flight, the way a concurrent GET does.
type readDuringUpdateStore struct {
	*SQLiteStore
	cache *CachedStore
	seen  []string
}

func (s *readDuringUpdateStore) UpdateSessionState(ctx context.Context, key domain.SessionKey, state domain.State) error {
	if session, err := s.cache.GetSession(ctx, key); err == nil {
		s.seen = append(s.seen, session.State.String(domain.StateFinalResponse))
	}
	return s.SQLiteStore.UpdateSessionState(ctx, key, state)
}

func TestCachedStoreReadDuringUpdateDoesNotCacheStaleState(t *testing.T) {
	ctx := context.Background()
	inner := &readDuringUpdateStore{SQLiteStore: newTestStore(t)}
	defer inner.Close()

	cached, err := NewCachedStore(inner, 8)
	require.NoError(t, err)
	inner.cache = cached

	createTestSession(t, cached)
	require.NoError(t, inner.SQLiteStore.UpdateSessionState(ctx, testKey,
		domain.State{domain.StateUserTier: "Paid", domain.StateFinalResponse: "old"}))
	cached.sessions.Remove(testKey)
	_, err = cached.GetSession(ctx, testKey)
	require.NoError(t, err)

	require.NoError(t, cached.UpdateSessionState(ctx, testKey,
		domain.State{domain.StateUserTier: "Paid", domain.StateFinalResponse: "new"}))

	assert.Equal(t, []string{"old"}, inner.seen)

	fromDB, err := inner.SQLiteStore.GetSession(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "new", fromDB.State.String(domain.StateFinalResponse))

	fromCache, err := cached.GetSession(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "new", fromCache.State.String(domain.StateFinalResponse))
}

func TestCachedStoreMissWaitsForInFlightUpdate(t *testing.T) {
	ctx := context.Background()
	inner := newTestStore(t)
	defer inner.Close()

	cached, err := NewCachedStore(inner, 8)
	require.NoError(t, err)
	createTestSession(t, cached)
	cached.sessions.Remove(testKey)

	cached.fill.Lock()
	got := make(chan string, 1)
	go func() {
		session, err := cached.GetSession(ctx, testKey)
		if err != nil {
			got <- err.Error()
			return
		}
		got <- session.State.String(domain.StateFinalResponse)
	}()

	// The miss must not read the row while a writer holds the fill lock.
	require.NoError(t, inner.UpdateSessionState(ctx, testKey, domain.State{domain.StateFinalResponse: "new"}))
	cached.fill.Unlock()

	select {
	case v := <-got:
		assert.Equal(t, "new", v)
	case <-time.After(time.Second):
		t.Fatal("cache miss never completed")
	}
}

func TestNewCachedStoreRejectsZeroSize(t *testing.T) {
	inner := newTestStore(t)
	defer inner.Close()

	_, err := NewCachedStore(inner, 0)
	assert.Error(t, err)
}
