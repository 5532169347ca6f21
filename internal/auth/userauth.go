package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"portier.dev/internal/audit"
	"portier.dev/internal/obs"
	"portier.dev/internal/tenant"
	"portier.dev/internal/token"
)

const (
	defaultSessionTTL = 12 * time.Hour
	defaultCookieTTL  = 30 * 24 * time.Hour
)

// CookieName returns the tenant-bound name of the persistent login cookie.
func CookieName(tenantName string) string {
	return "auth_token_" + tenantName
}

var _ Strategy = (*SessionAuth)(nil)

// SessionAuth is the stateful authentication strategy: identity lives in a
// server-side session, optionally re-established from a long-lived signed
// cookie token when the session is gone.
type SessionAuth struct {
	tenant     tenant.Context
	principals PrincipalStore
	sessions   SessionStore
	cookies    CookieWriter
	auditor    audit.Recorder
	req        Request
	now        func() time.Time
	sessionTTL time.Duration
	cookieTTL  time.Duration

	principal *Principal
	sessionID string
}

// SessionAuthOption configures SessionAuth behavior.
type SessionAuthOption func(*SessionAuth)

// WithSessionTTL overrides the server-side session lifetime.
func WithSessionTTL(ttl time.Duration) SessionAuthOption {
	return func(s *SessionAuth) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithCookieTTL overrides the persistent cookie token lifetime.
func WithCookieTTL(ttl time.Duration) SessionAuthOption {
	return func(s *SessionAuth) {
		if ttl > 0 {
			s.cookieTTL = ttl
		}
	}
}

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(fn func() time.Time) SessionAuthOption {
	return func(s *SessionAuth) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSessionAuth constructs the strategy and restores identity from the
// session identified by sessionID, or from the tenant's signed cookie when no
// usable session exists. All checks fail silently into the unauthenticated
// state; only store failures are returned.
func NewSessionAuth(ctx context.Context, tc tenant.Context, store Store, sessions SessionStore, cookies CookieWriter, auditor audit.Recorder, req Request, sessionID string, opts ...SessionAuthOption) (*SessionAuth, error) {
	s := &SessionAuth{
		tenant:     tc,
		principals: store.Principals(),
		sessions:   sessions,
		cookies:    cookies,
		auditor:    auditor,
		req:        req,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
		cookieTTL:  defaultCookieTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.restore(ctx, sessionID); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SessionAuth) restore(ctx context.Context, sessionID string) error {
	if sessionID != "" {
		rec, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		// A complete session record for this tenant is trusted as-is; the
		// session itself is the trust boundary.
		if rec.complete() && rec.Tenant == s.tenant.Name {
			s.principal = &Principal{
				ID:         rec.PrincipalID,
				Identifier: rec.Identifier,
				Name:       rec.Name,
				Rights:     rec.Rights,
				Status:     StatusActive,
				verified:   true,
			}
			s.sessionID = sessionID
			return nil
		}
	}
	return s.restoreFromCookie(ctx)
}

func (s *SessionAuth) restoreFromCookie(ctx context.Context) error {
	raw := s.req.Cookie(CookieName(s.tenant.Name))
	if raw == "" {
		return nil
	}
	claims, err := token.Decode(raw, s.tenant.Secret)
	if err != nil {
		s.recordAttempt(ctx, "auth.verify", 0, audit.StatusDenied, "cookie token rejected")
		obs.CountTokenVerification(s.tenant.Name, "denied")
		return nil
	}
	sub, ok := token.Subject(claims)
	if !ok || token.Tenant(claims) != s.tenant.Name || token.IsExpiredAt(claims, s.now()) {
		s.recordAttempt(ctx, "auth.verify", 0, audit.StatusDenied, "cookie token rejected")
		obs.CountTokenVerification(s.tenant.Name, "denied")
		return nil
	}
	p, err := s.principals.Find(ctx, sub)
	if err != nil {
		if isDenial(err) {
			s.recordAttempt(ctx, "auth.verify", sub, audit.StatusDenied, "principal not found")
			obs.CountTokenVerification(s.tenant.Name, "denied")
			return nil
		}
		return err
	}
	if !p.Active() {
		s.recordAttempt(ctx, "auth.verify", p.ID, audit.StatusDenied, "principal inactive")
		obs.CountTokenVerification(s.tenant.Name, "denied")
		return nil
	}
	p.verified = true
	s.principal = p
	if err := s.startSession(ctx); err != nil {
		return err
	}
	obs.CountTokenVerification(s.tenant.Name, "ok")
	return nil
}

// IsLoggedIn reports whether a verified principal is bound to this request.
func (s *SessionAuth) IsLoggedIn() bool {
	return s.principal.LoginVerified()
}

// Principal returns the authenticated principal, or nil.
func (s *SessionAuth) Principal() *Principal {
	if !s.IsLoggedIn() {
		return nil
	}
	return s.principal
}

// SessionID returns the current session identifier, which changes on login.
// Empty when no session is established.
func (s *SessionAuth) SessionID() string {
	return s.sessionID
}

// AccessToken is part of Strategy; the session flow issues no access tokens.
func (s *SessionAuth) AccessToken() string { return "" }

// RefreshToken is part of Strategy; the session flow tracks no refresh tokens.
func (s *SessionAuth) RefreshToken() string { return "" }

// Login verifies credentials, regenerates the session identifier and
// populates the session. With persist set, a signed long-lived cookie token
// bound to the tenant is issued as well. A failed verification tears down any
// existing session state.
func (s *SessionAuth) Login(ctx context.Context, identifier, secret string, persist bool) (bool, error) {
	p, err := s.principals.VerifyCredentials(ctx, identifier, secret)
	if err == nil && !p.Active() {
		p, err = nil, ErrPrincipalInactive
	}
	if err != nil {
		if isDenial(err) {
			s.recordAttempt(ctx, "auth.login", 0, audit.StatusDenied, "credential verification failed")
			obs.CountLogin(s.tenant.Name, "denied")
			if logoutErr := s.Logout(ctx); logoutErr != nil {
				return false, logoutErr
			}
			return false, nil
		}
		obs.CountLogin(s.tenant.Name, "error")
		return false, err
	}
	s.principal = p
	if err := s.startSession(ctx); err != nil {
		return false, err
	}
	if persist {
		if err := s.issueCookieToken(); err != nil {
			return false, err
		}
	}
	if err := s.principals.TouchLastSeen(ctx, p.ID, s.now().UTC()); err != nil {
		return false, err
	}
	s.recordAttempt(ctx, "auth.login", p.ID, audit.StatusOK, "login ok")
	obs.CountLogin(s.tenant.Name, "ok")
	return true, nil
}

// Refresh is part of Strategy; the session flow has nothing to rotate.
func (s *SessionAuth) Refresh(ctx context.Context) (bool, error) {
	return false, nil
}

// Logout destroys the session, clears the identity and expires the
// persistent cookie.
func (s *SessionAuth) Logout(ctx context.Context) error {
	if s.sessionID != "" {
		if err := s.sessions.Delete(ctx, s.sessionID); err != nil {
			return err
		}
	}
	if s.IsLoggedIn() {
		s.recordAttempt(ctx, "auth.logout", s.principal.ID, audit.StatusOK, "logout")
	}
	s.sessionID = ""
	s.principal = nil
	if s.cookies != nil {
		s.cookies.SetCookie(CookieName(s.tenant.Name), "", s.now().Add(-time.Hour))
	}
	return nil
}

// startSession discards any previous session and stores the identity under a
// fresh identifier, mitigating session fixation.
func (s *SessionAuth) startSession(ctx context.Context) error {
	if s.sessionID != "" {
		if err := s.sessions.Delete(ctx, s.sessionID); err != nil {
			return err
		}
	}
	s.sessionID = uuid.NewString()
	rec := &SessionRecord{
		ID:          s.sessionID,
		PrincipalID: s.principal.ID,
		Identifier:  s.principal.Identifier,
		Name:        s.principal.Name,
		Rights:      s.principal.Rights,
		Tenant:      s.tenant.Name,
	}
	return s.sessions.Put(ctx, rec, s.sessionTTL)
}

func (s *SessionAuth) issueCookieToken() error {
	now := s.now()
	expires := now.Add(s.cookieTTL)
	claims := token.Claims{
		"sub":        s.principal.ID,
		"identifier": s.principal.Identifier,
		"tenant":     s.tenant.Name,
		"iat":        now.Unix(),
		"exp":        expires.Unix(),
	}
	signed, err := token.Encode(claims, s.tenant.Secret)
	if err != nil {
		return err
	}
	if s.cookies != nil {
		s.cookies.SetCookie(CookieName(s.tenant.Name), signed, expires)
	}
	return nil
}

func (s *SessionAuth) recordAttempt(ctx context.Context, action string, principalID int64, status int, message string) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Record(ctx, &audit.Entry{
		Timestamp:   s.now().UTC(),
		PrincipalID: principalID,
		ClientIP:    s.req.ClientIP(),
		Action:      action,
		TargetType:  "principal",
		TargetID:    principalID,
		Status:      status,
		Message:     message,
	})
}
