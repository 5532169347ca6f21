package auth

import (
	"context"
	"sync"
	"time"

	"portier.dev/internal/audit"
	"portier.dev/internal/tenant"
)

func testTenant() tenant.Context {
	return tenant.Context{
		Name:   "acme",
		Prefix: "acme_",
		Mode:   tenant.ModeToken,
		Secret: []byte("test-secret-0123456789"),
	}
}

// fakePrincipals is an in-memory PrincipalStore for strategy tests. Secrets
// are stored in plaintext; credential hashing has its own tests.
type fakePrincipals struct {
	mu      sync.Mutex
	byID    map[int64]*Principal
	secrets map[string]string
	nextID  int64
	touched map[int64]time.Time

	findErr error
}

func newFakePrincipals() *fakePrincipals {
	return &fakePrincipals{
		byID:    make(map[int64]*Principal),
		secrets: make(map[string]string),
		touched: make(map[int64]time.Time),
		nextID:  1,
	}
}

func (f *fakePrincipals) add(p Principal, secret string) *Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		p.ID = f.nextID
		f.nextID++
	}
	stored := p
	f.byID[stored.ID] = &stored
	f.secrets[stored.Identifier] = secret
	return &stored
}

func (f *fakePrincipals) Create(ctx context.Context, p *Principal, rawSecret string) error {
	if p.Identifier == "" || rawSecret == "" {
		return ErrInvalidInput
	}
	created := f.add(*p, rawSecret)
	p.ID = created.ID
	return nil
}

func (f *fakePrincipals) Find(ctx context.Context, id int64) (*Principal, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.verified = false
	return &cp, nil
}

func (f *fakePrincipals) FindByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.Identifier == identifier {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakePrincipals) List(ctx context.Context) ([]*Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Principal, 0, len(f.byID))
	for _, p := range f.byID {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakePrincipals) Update(ctx context.Context, p *Principal, newRawSecret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	f.byID[p.ID] = &cp
	if newRawSecret != "" {
		f.secrets[p.Identifier] = newRawSecret
	}
	return nil
}

func (f *fakePrincipals) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakePrincipals) VerifyCredentials(ctx context.Context, identifier, secret string) (*Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.secrets[identifier]
	if !ok || stored != secret {
		return nil, ErrUnauthorized
	}
	for _, p := range f.byID {
		if p.Identifier == identifier {
			cp := *p
			cp.verified = true
			return &cp, nil
		}
	}
	return nil, ErrUnauthorized
}

func (f *fakePrincipals) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id] = at
	return nil
}

// fakeTokens is an in-memory RefreshTokenStore with the same single-winner
// Consume semantics as the SQL implementation.
type fakeTokens struct {
	mu     sync.Mutex
	byVal  map[string]*RefreshToken
	frozen error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byVal: make(map[string]*RefreshToken)}
}

func (f *fakeTokens) Create(ctx context.Context, tok *RefreshToken) error {
	if f.frozen != nil {
		return f.frozen
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *tok
	f.byVal[tok.Value] = &cp
	return nil
}

func (f *fakeTokens) Find(ctx context.Context, value string) (*RefreshToken, error) {
	if f.frozen != nil {
		return nil, f.frozen
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.byVal[value]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (f *fakeTokens) Consume(ctx context.Context, value string, now time.Time) (bool, error) {
	if f.frozen != nil {
		return false, f.frozen
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.byVal[value]
	if !ok || tok.Revoked || !tok.ExpiresAt.After(now) {
		return false, nil
	}
	tok.Revoked = true
	return true, nil
}

func (f *fakeTokens) Revoke(ctx context.Context, value string, principalID int64) (bool, error) {
	if f.frozen != nil {
		return false, f.frozen
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.byVal[value]
	if !ok || tok.Revoked {
		return false, nil
	}
	if principalID > 0 && tok.PrincipalID != principalID {
		return false, nil
	}
	tok.Revoked = true
	return true, nil
}

type fakeStore struct {
	principals *fakePrincipals
	tokens     *fakeTokens
}

func newFakeStore() *fakeStore {
	return &fakeStore{principals: newFakePrincipals(), tokens: newFakeTokens()}
}

func (f *fakeStore) Principals() PrincipalStore       { return f.principals }
func (f *fakeStore) RefreshTokens() RefreshTokenStore { return f.tokens }

// recordingAuditor captures audit entries for assertions.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAuditor) Record(ctx context.Context, e *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *recordingAuditor) last() (audit.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return audit.Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// cookieJar captures outbound cookies for assertions.
type cookieJar struct {
	set map[string]struct {
		value   string
		expires time.Time
	}
}

func newCookieJar() *cookieJar {
	return &cookieJar{set: make(map[string]struct {
		value   string
		expires time.Time
	})}
}

func (j *cookieJar) SetCookie(name, value string, expires time.Time) {
	j.set[name] = struct {
		value   string
		expires time.Time
	}{value, expires}
}

func activeUser(identifier string) Principal {
	return Principal{
		Identifier: identifier,
		Name:       "Test User",
		Rights:     10,
		Status:     StatusActive,
		Type:       TypeUser,
	}
}
