package store

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

// CachedStore keeps recently used sessions in an LRU cache in front of a Store.
// Cached sessions are copied on the way in and out so callers can mutate state freely.
//
// fill serializes cache misses against writes: a miss never caches a row read
// before a write that has since evicted it.
type CachedStore struct {
	Store
	sessions *lru.Cache[domain.SessionKey, domain.Session]
	fill     sync.Mutex
}

// NewCachedStore wraps inner with a session cache holding up to size entries.
func NewCachedStore(inner Store, size int) (*CachedStore, error) {
	cache, err := lru.New[domain.SessionKey, domain.Session](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{Store: inner, sessions: cache}, nil
}

// CreateSession stores the session and caches it.
func (c *CachedStore) CreateSession(ctx context.Context, session *domain.Session) error {
	c.fill.Lock()
	defer c.fill.Unlock()

	if err := c.Store.CreateSession(ctx, session); err != nil {
		return err
	}
	c.put(*session)
	return nil
}

// GetSession serves the session from cache when present.
func (c *CachedStore) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	if cached, ok := c.sessions.Get(key); ok {
		cached.State = cached.State.Clone()
		return &cached, nil
	}

	c.fill.Lock()
	defer c.fill.Unlock()

	session, err := c.Store.GetSession(ctx, key)
	if err != nil {
		return nil, err
	}
	c.put(*session)
	return session, nil
}

// UpdateSessionState writes through, then drops the cached copy so the next
// read loads the new row.
func (c *CachedStore) UpdateSessionState(ctx context.Context, key domain.SessionKey, state domain.State) error {
	c.fill.Lock()
	defer c.fill.Unlock()

	err := c.Store.UpdateSessionState(ctx, key, state)
	c.sessions.Remove(key)
	return err
}

// DeleteSession deletes the session and evicts it.
func (c *CachedStore) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	c.fill.Lock()
	defer c.fill.Unlock()

	err := c.Store.DeleteSession(ctx, key)
	c.sessions.Remove(key)
	return err
}

// Len reports the number of cached sessions.
func (c *CachedStore) Len() int {
	return c.sessions.Len()
}

func (c *CachedStore) put(session domain.Session) {
	session.State = session.State.Clone()
	c.sessions.Add(session.Key(), session)
}
