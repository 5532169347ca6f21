package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-process Store. Used as the backend for single-node
// development setups without a database, and as the store double in HTTP
// handler tests. Secrets are bcrypt-hashed exactly like the SQL store.
type MemStore struct {
	mu         sync.Mutex
	principals map[int64]*Principal
	hashes     map[int64]string
	tokens     map[string]*RefreshToken
	nextID     int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		principals: make(map[int64]*Principal),
		hashes:     make(map[int64]string),
		tokens:     make(map[string]*RefreshToken),
		nextID:     1,
	}
}

func (m *MemStore) Principals() PrincipalStore       { return (*memPrincipals)(m) }
func (m *MemStore) RefreshTokens() RefreshTokenStore { return (*memTokens)(m) }

type memPrincipals MemStore

func (m *memPrincipals) Create(ctx context.Context, p *Principal, rawSecret string) error {
	hash, err := HashSecret(rawSecret)
	if err != nil {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p.ID = m.nextID
	m.nextID++
	p.LastSeen = now
	p.CreatedAt = now
	cp := *p
	cp.verified = false
	m.principals[p.ID] = &cp
	m.hashes[p.ID] = hash
	return nil
}

func (m *memPrincipals) Find(ctx context.Context, id int64) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPrincipals) FindByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.lookup(identifier)
	if p == nil {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPrincipals) List(ctx context.Context) ([]*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Principal, 0, len(m.principals))
	for _, p := range m.principals {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPrincipals) Update(ctx context.Context, p *Principal, newRawSecret string) error {
	var hash string
	if newRawSecret != "" {
		var err error
		hash, err = HashSecret(newRawSecret)
		if err != nil {
			return ErrInvalidInput
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.principals[p.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *p
	cp.LastSeen = stored.LastSeen
	cp.CreatedAt = stored.CreatedAt
	cp.verified = false
	m.principals[p.ID] = &cp
	if hash != "" {
		m.hashes[p.ID] = hash
	}
	return nil
}

func (m *memPrincipals) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[id]; !ok {
		return ErrNotFound
	}
	delete(m.principals, id)
	delete(m.hashes, id)
	return nil
}

func (m *memPrincipals) VerifyCredentials(ctx context.Context, identifier, secret string) (*Principal, error) {
	m.mu.Lock()
	p := m.lookup(identifier)
	var hash string
	if p != nil {
		hash = m.hashes[p.ID]
	}
	var cp Principal
	if p != nil {
		cp = *p
	}
	m.mu.Unlock()

	if p == nil {
		burnVerification(secret)
		return nil, ErrUnauthorized
	}
	if VerifySecret(hash, secret) != nil {
		return nil, ErrUnauthorized
	}
	cp.verified = true
	return &cp, nil
}

func (m *memPrincipals) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.principals[id]; ok {
		p.LastSeen = at
	}
	return nil
}

// lookup must be called with the mutex held.
func (m *memPrincipals) lookup(identifier string) *Principal {
	for _, p := range m.principals {
		if strings.EqualFold(p.Identifier, identifier) {
			return p
		}
	}
	return nil
}

type memTokens MemStore

func (m *memTokens) Create(ctx context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tokens[tok.Value] = &cp
	return nil
}

func (m *memTokens) Find(ctx context.Context, value string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[value]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memTokens) Consume(ctx context.Context, value string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[value]
	if !ok || tok.Revoked || !tok.ExpiresAt.After(now) {
		return false, nil
	}
	tok.Revoked = true
	return true, nil
}

func (m *memTokens) Revoke(ctx context.Context, value string, principalID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[value]
	if !ok || tok.Revoked {
		return false, nil
	}
	if principalID > 0 && tok.PrincipalID != principalID {
		return false, nil
	}
	tok.Revoked = true
	return true, nil
}
