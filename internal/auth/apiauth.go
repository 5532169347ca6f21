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

const defaultAccessTTL = time.Hour

var _ Strategy = (*ApiAuth)(nil)

// ApiAuth is the stateless authentication strategy: every request carries a
// short-lived signed access token, long-lived state exists only as refresh
// token rows in the ledger.
type ApiAuth struct {
	tenant     tenant.Context
	principals PrincipalStore
	ledger     *Ledger
	auditor    audit.Recorder
	req        Request
	now        func() time.Time
	accessTTL  time.Duration

	principal    *Principal
	accessToken  string
	refreshToken string
}

// ApiAuthOption configures ApiAuth behavior.
type ApiAuthOption func(*ApiAuth)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) ApiAuthOption {
	return func(a *ApiAuth) {
		if ttl > 0 {
			a.accessTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ApiAuthOption {
	return func(a *ApiAuth) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewApiAuth constructs the strategy and restores login state from a bearer
// token when one is presented. All token checks fail silently; only
// persistence failures are returned.
func NewApiAuth(ctx context.Context, tc tenant.Context, store Store, ledger *Ledger, auditor audit.Recorder, req Request, opts ...ApiAuthOption) (*ApiAuth, error) {
	a := &ApiAuth{
		tenant:     tc,
		principals: store.Principals(),
		ledger:     ledger,
		auditor:    auditor,
		req:        req,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.restoreFromAccessToken(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ApiAuth) restoreFromAccessToken(ctx context.Context) error {
	raw := a.req.BearerToken()
	if raw == "" {
		return nil
	}
	claims, err := token.Decode(raw, a.tenant.Secret)
	if err != nil {
		a.recordAttempt(ctx, "auth.verify", 0, audit.StatusDenied, "access token rejected")
		obs.CountTokenVerification(a.tenant.Name, "denied")
		return nil
	}
	sub, ok := token.Subject(claims)
	if !ok || token.Tenant(claims) != a.tenant.Name || token.IsExpiredAt(claims, a.now()) {
		a.recordAttempt(ctx, "auth.verify", 0, audit.StatusDenied, "access token rejected")
		obs.CountTokenVerification(a.tenant.Name, "denied")
		return nil
	}
	p, err := a.principals.Find(ctx, sub)
	if err != nil {
		if isDenial(err) {
			a.recordAttempt(ctx, "auth.verify", sub, audit.StatusDenied, "principal not found")
			obs.CountTokenVerification(a.tenant.Name, "denied")
			return nil
		}
		return err
	}
	if !p.Active() {
		a.recordAttempt(ctx, "auth.verify", p.ID, audit.StatusDenied, "principal inactive")
		obs.CountTokenVerification(a.tenant.Name, "denied")
		return nil
	}
	p.verified = true
	a.principal = p
	a.accessToken = raw
	obs.CountTokenVerification(a.tenant.Name, "ok")
	return nil
}

// IsLoggedIn reports whether a verified principal is bound to this request.
func (a *ApiAuth) IsLoggedIn() bool {
	return a.principal.LoginVerified()
}

// Principal returns the authenticated principal, or nil.
func (a *ApiAuth) Principal() *Principal {
	if !a.IsLoggedIn() {
		return nil
	}
	return a.principal
}

// AccessToken returns the access token held for this request, or "".
func (a *ApiAuth) AccessToken() string {
	if !a.IsLoggedIn() {
		return ""
	}
	return a.accessToken
}

// RefreshToken returns the refresh token issued during this request, or "".
func (a *ApiAuth) RefreshToken() string {
	if !a.IsLoggedIn() {
		return ""
	}
	return a.refreshToken
}

// Login verifies credentials and, when persist is set, issues an access token
// plus a refresh token. A failed verification leaves the strategy state
// untouched and returns false.
func (a *ApiAuth) Login(ctx context.Context, identifier, secret string, persist bool) (bool, error) {
	p, err := a.principals.VerifyCredentials(ctx, identifier, secret)
	if err != nil {
		if isDenial(err) {
			a.recordAttempt(ctx, "auth.login", 0, audit.StatusDenied, "credential verification failed")
			obs.CountLogin(a.tenant.Name, "denied")
			return false, nil
		}
		obs.CountLogin(a.tenant.Name, "error")
		return false, err
	}
	if !p.Active() {
		a.recordAttempt(ctx, "auth.login", p.ID, audit.StatusDenied, "principal inactive")
		obs.CountLogin(a.tenant.Name, "denied")
		return false, nil
	}
	a.principal = p
	if persist {
		if err := a.issueAuthorization(ctx); err != nil {
			return false, err
		}
	}
	if err := a.principals.TouchLastSeen(ctx, p.ID, a.now().UTC()); err != nil {
		return false, err
	}
	a.recordAttempt(ctx, "auth.login", p.ID, audit.StatusOK, "login ok")
	obs.CountLogin(a.tenant.Name, "ok")
	return true, nil
}

// Refresh rotates the presented refresh token and issues a fresh token pair.
// When the request is already authenticated, the rotated token must belong to
// the same principal.
func (a *ApiAuth) Refresh(ctx context.Context) (bool, error) {
	presented := a.req.PresentedRefreshToken()
	if presented == "" {
		a.recordAttempt(ctx, "auth.refresh", a.principalID(), audit.StatusDenied, "no refresh token presented")
		obs.CountRefreshRotation(a.tenant.Name, "denied")
		return false, nil
	}
	var expected int64
	if a.IsLoggedIn() {
		expected = a.principal.ID
	}
	rotated, err := a.ledger.ValidateAndRotate(ctx, presented, expected)
	if err != nil {
		if isDenial(err) {
			a.recordAttempt(ctx, "auth.refresh", expected, audit.StatusDenied, "refresh token rejected")
			obs.CountRefreshRotation(a.tenant.Name, "denied")
			return false, nil
		}
		obs.CountRefreshRotation(a.tenant.Name, "error")
		return false, err
	}
	p, err := a.principals.Find(ctx, rotated.PrincipalID)
	if err != nil {
		if isDenial(err) {
			a.recordAttempt(ctx, "auth.refresh", rotated.PrincipalID, audit.StatusDenied, "principal not found")
			obs.CountRefreshRotation(a.tenant.Name, "denied")
			return false, nil
		}
		return false, err
	}
	if !p.Active() {
		a.recordAttempt(ctx, "auth.refresh", p.ID, audit.StatusDenied, "principal inactive")
		obs.CountRefreshRotation(a.tenant.Name, "denied")
		return false, nil
	}
	p.verified = true
	a.principal = p
	a.refreshToken = "" // force issuance of a successor
	if err := a.issueAuthorization(ctx); err != nil {
		return false, err
	}
	if err := a.principals.TouchLastSeen(ctx, p.ID, a.now().UTC()); err != nil {
		return false, err
	}
	a.recordAttempt(ctx, "auth.refresh", p.ID, audit.StatusOK, "refresh ok")
	obs.CountRefreshRotation(a.tenant.Name, "ok")
	return true, nil
}

// Logout revokes the presented refresh token, scoped to the current
// principal, and clears the login state. Always succeeds.
func (a *ApiAuth) Logout(ctx context.Context) error {
	if !a.IsLoggedIn() {
		return nil
	}
	if presented := a.req.PresentedRefreshToken(); presented != "" {
		if _, err := a.ledger.Revoke(ctx, presented, a.principal.ID); err != nil {
			return err
		}
	}
	a.recordAttempt(ctx, "auth.logout", a.principal.ID, audit.StatusOK, "logout")
	a.principal.verified = false
	a.accessToken = ""
	a.refreshToken = ""
	return nil
}

// issueAuthorization signs a fresh access token and, when none is held yet,
// issues a refresh token through the ledger.
func (a *ApiAuth) issueAuthorization(ctx context.Context) error {
	signed, err := a.signAccessToken()
	if err != nil {
		return err
	}
	if a.refreshToken == "" {
		tok, err := a.ledger.Issue(ctx, a.principal.ID)
		if err != nil {
			return err
		}
		a.refreshToken = tok.Value
	}
	a.accessToken = signed
	a.principal.verified = true
	return nil
}

func (a *ApiAuth) signAccessToken() (string, error) {
	now := a.now()
	claims := token.Claims{
		"sub":        a.principal.ID,
		"identifier": a.principal.Identifier,
		"type":       int(a.principal.Type),
		"rights":     a.principal.Rights,
		"tenant":     a.tenant.Name,
		"iat":        now.Unix(),
		"exp":        now.Add(a.accessTTL).Unix(),
		"jti":        uuid.NewString(),
	}
	return token.Encode(claims, a.tenant.Secret)
}

func (a *ApiAuth) principalID() int64 {
	if a.principal == nil {
		return 0
	}
	return a.principal.ID
}

func (a *ApiAuth) recordAttempt(ctx context.Context, action string, principalID int64, status int, message string) {
	if a.auditor == nil {
		return
	}
	_ = a.auditor.Record(ctx, &audit.Entry{
		Timestamp:   a.now().UTC(),
		PrincipalID: principalID,
		ClientIP:    a.req.ClientIP(),
		Action:      action,
		TargetType:  "principal",
		TargetID:    principalID,
		Status:      status,
		Message:     message,
	})
}
