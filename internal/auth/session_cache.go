package auth

import (
	"context"
	"encoding/json"
	"time"

	"lessonscope/internal/cache"
)

const (
	sessionKeyPrefix = "session:"
	// MaxCacheTTL bounds how long a cached session can outlive a DB-side change.
	MaxCacheTTL = 5 * time.Minute
)

// CachedSession is the part of a session row needed to answer validateSession.
type CachedSession struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionCacher defines the interface for session cache operations.
type SessionCacher interface {
	Put(ctx context.Context, tokenHash string, session CachedSession, now time.Time) error
	Get(ctx context.Context, tokenHash string) (*CachedSession, error)
	Evict(ctx context.Context, tokenHash string) error
}

// SessionCache keeps recently validated sessions in Redis.
type SessionCache struct {
	cache *cache.Client
}

var _ SessionCacher = (*SessionCache)(nil)

// NewSessionCache creates a new session cache.
func NewSessionCache(cache *cache.Client) *SessionCache {
	return &SessionCache{cache: cache}
}

// Put caches the session until it expires or MaxCacheTTL passes, whichever is sooner.
func (s *SessionCache) Put(ctx context.Context, tokenHash string, session CachedSession, now time.Time) error {
	ttl := session.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if ttl > MaxCacheTTL {
		ttl = MaxCacheTTL
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, sessionKeyPrefix+tokenHash, payload, ttl)
}

// Get returns the cached session or nil on a miss.
func (s *SessionCache) Get(ctx context.Context, tokenHash string) (*CachedSession, error) {
	data, err := s.cache.Get(ctx, sessionKeyPrefix+tokenHash)
	if err != nil || data == nil {
		return nil, nil
	}
	var session CachedSession
	if err := json.Unmarshal(data, &session); err != nil {
		// corrupt entry behaves like a miss
		return nil, nil
	}
	return &session, nil
}

// Evict removes a cached session.
func (s *SessionCache) Evict(ctx context.Context, tokenHash string) error {
	return s.cache.Delete(ctx, sessionKeyPrefix+tokenHash)
}
