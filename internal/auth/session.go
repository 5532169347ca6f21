package auth

import (
	"context"
	"sync"
	"time"
)

// SessionRecord is the identity snapshot stored server-side. A complete
// record matching the current tenant is trusted without re-verifying any
// signature; the session store itself is the trust boundary.
type SessionRecord struct {
	ID          string `json:"id"`
	PrincipalID int64  `json:"principal_id"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Rights      int    `json:"rights"`
	Tenant      string `json:"tenant"`
}

// complete reports whether every identity field required for a trusted
// restore is present.
func (r *SessionRecord) complete() bool {
	return r != nil && r.PrincipalID > 0 && r.Identifier != "" && r.Name != "" && r.Tenant != ""
}

// SessionStore persists server-side sessions keyed by session identifier.
type SessionStore interface {
	// Get returns the record for an identifier, or nil when absent or expired.
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Put(ctx context.Context, rec *SessionRecord, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore is an in-process SessionStore. Default backend for
// single-node deployments and the test double for the session strategy.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	record    SessionRecord
	expiresAt time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return nil, nil
	}
	rec := entry.record
	return &rec, nil
}

func (s *MemorySessionStore) Put(ctx context.Context, rec *SessionRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// Opportunistic sweep; the map stays small in practice.
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
		}
	}
	s.sessions[rec.ID] = memorySession{record: *rec, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
