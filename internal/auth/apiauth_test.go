package auth

import (
	"context"
	"testing"
	"time"

	"portier.dev/internal/audit"
	"portier.dev/internal/token"
)

func newApiAuth(t *testing.T, store *fakeStore, auditor audit.Recorder, req Request, opts ...ApiAuthOption) *ApiAuth {
	t.Helper()
	ledger := NewLedger(store.tokens)
	a, err := NewApiAuth(context.Background(), testTenant(), store, ledger, auditor, req, opts...)
	if err != nil {
		t.Fatalf("NewApiAuth: %v", err)
	}
	return a
}

func TestApiAuthLoginIssuesTokenPair(t *testing.T) {
	store := newFakeStore()
	p := store.principals.add(activeUser("ops@acme.test"), "pa55word")
	auditor := &recordingAuditor{}
	a := newApiAuth(t, store, auditor, NewRequest(nil, nil, "10.0.0.1"))

	ok, err := a.Login(context.Background(), "ops@acme.test", "pa55word", true)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !ok || !a.IsLoggedIn() {
		t.Fatal("expected authenticated state after login")
	}
	if a.AccessToken() == "" || a.RefreshToken() == "" {
		t.Fatal("expected both tokens after persistent login")
	}

	claims, err := token.Decode(a.AccessToken(), testTenant().Secret)
	if err != nil {
		t.Fatalf("decode access token: %v", err)
	}
	sub, ok := token.Subject(claims)
	if !ok || sub != p.ID {
		t.Fatalf("sub = %d, want %d", sub, p.ID)
	}
	if token.Tenant(claims) != "acme" {
		t.Fatalf("tenant claim = %q, want acme", token.Tenant(claims))
	}
	if token.IsExpired(claims) {
		t.Fatal("fresh access token already expired")
	}

	if _, ok := store.principals.touched[p.ID]; !ok {
		t.Fatal("login did not touch last_seen")
	}
	entry, ok := auditor.last()
	if !ok || entry.Action != "auth.login" || entry.Status != audit.StatusOK {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}

func TestApiAuthLoginWithoutPersist(t *testing.T) {
	store := newFakeStore()
	store.principals.add(activeUser("ops@acme.test"), "pa55word")
	a := newApiAuth(t, store, nil, NewRequest(nil, nil, ""))

	ok, err := a.Login(context.Background(), "ops@acme.test", "pa55word", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !ok || !a.IsLoggedIn() {
		t.Fatal("expected authenticated state")
	}
	if a.AccessToken() != "" || a.RefreshToken() != "" {
		t.Fatal("non-persistent login must not issue tokens")
	}
}

func TestApiAuthLoginWrongSecret(t *testing.T) {
	store := newFakeStore()
	store.principals.add(activeUser("ops@acme.test"), "pa55word")
	auditor := &recordingAuditor{}
	a := newApiAuth(t, store, auditor, NewRequest(nil, nil, ""))

	ok, err := a.Login(context.Background(), "ops@acme.test", "wrong", true)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if ok || a.IsLoggedIn() {
		t.Fatal("wrong secret must not authenticate")
	}
	entry, found := auditor.last()
	if !found || entry.Status != audit.StatusDenied {
		t.Fatalf("expected denied audit entry, got %+v", entry)
	}
}

func TestApiAuthLoginInactivePrincipal(t *testing.T) {
	store := newFakeStore()
	p := activeUser("frozen@acme.test")
	p.Status = StatusInactive
	store.principals.add(p, "pa55word")
	a := newApiAuth(t, store, nil, NewRequest(nil, nil, ""))

	ok, err := a.Login(context.Background(), "frozen@acme.test", "pa55word", true)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if ok || a.IsLoggedIn() {
		t.Fatal("inactive principal must not authenticate")
	}
}

func TestApiAuthRestoreFromBearer(t *testing.T) {
	store := newFakeStore()
	p := store.principals.add(activeUser("ops@acme.test"), "pa55word")

	first := newApiAuth(t, store, nil, NewRequest(nil, nil, ""))
	if ok, err := first.Login(context.Background(), "ops@acme.test", "pa55word", true); err != nil || !ok {
		t.Fatalf("seed login: ok=%v err=%v", ok, err)
	}

	req := NewRequest(map[string]string{"Authorization": "Bearer " + first.AccessToken()}, nil, "")
	second := newApiAuth(t, store, nil, req)
	if !second.IsLoggedIn() {
		t.Fatal("bearer token did not restore login state")
	}
	if second.Principal().ID != p.ID {
		t.Fatalf("principal = %d, want %d", second.Principal().ID, p.ID)
	}
}

func TestApiAuthRejectsExpiredBearer(t *testing.T) {
	store := newFakeStore()
	store.principals.add(activeUser("ops@acme.test"), "pa55word")
	past := time.Now().Add(-2 * time.Hour)

	first := newApiAuth(t, store, nil, NewRequest(nil, nil, ""), WithClock(func() time.Time { return past }))
	if ok, err := first.Login(context.Background(), "ops@acme.test", "pa55word", true); err != nil || !ok {
		t.Fatalf("seed login: ok=%v err=%v", ok, err)
	}

	req := NewRequest(map[string]string{"Authorization": "Bearer " + first.AccessToken()}, nil, "")
	second := newApiAuth(t, store, nil, req)
	if second.IsLoggedIn() {
		t.Fatal("expired access token accepted")
	}
}

func TestApiAuthRejectsForeignTenantBearer(t *testing.T) {
	store := newFakeStore()
	p := store.principals.add(activeUser("ops@acme.test"), "pa55word")

	now := time.Now()
	claims := token.Claims{
		"sub":    p.ID,
		"tenant": "globex",
		"iat":    now.Unix(),
		"exp":    now.Add(time.Hour).Unix(),
	}
	foreign, err := token.Encode(claims, testTenant().Secret)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	req := NewRequest(map[string]string{"Authorization": "Bearer " + foreign}, nil, "")
	a := newApiAuth(t, store, nil, req)
	if a.IsLoggedIn() {
		t.Fatal("token minted for another tenant accepted")
	}
}

func TestApiAuthRejectsGarbageBearer(t *testing.T) {
	store := newFakeStore()
	req := NewRequest(map[string]string{"Authorization": "Bearer not.a.token"}, nil, "")
	a := newApiAuth(t, store, nil, req)
	if a.IsLoggedIn() {
		t.Fatal("malformed token accepted")
	}
}

func TestApiAuthDeniedBearerIsAudited(t *testing.T) {
	store := newFakeStore()
	auditor := &recordingAuditor{}
	req := NewRequest(map[string]string{"Authorization": "Bearer not.a.token"}, nil, "203.0.113.7")
	a := newApiAuth(t, store, auditor, req)
	if a.IsLoggedIn() {
		t.Fatal("malformed token accepted")
	}
	entry, found := auditor.last()
	if !found || entry.Action != "auth.verify" || entry.Status != audit.StatusDenied {
		t.Fatalf("expected denied verification entry, got %+v", entry)
	}
	if entry.ClientIP != "203.0.113.7" {
		t.Fatalf("client ip = %q", entry.ClientIP)
	}
}

func TestApiAuthRefreshRotates(t *testing.T) {
	store := newFakeStore()
	p := store.principals.add(activeUser("ops@acme.test"), "pa55word")
	auditor := &recordingAuditor{}

	first := newApiAuth(t, store, auditor, NewRequest(nil, nil, ""))
	if ok, err := first.Login(context.Background(), "ops@acme.test", "pa55word", true); err != nil || !ok {
		t.Fatalf("seed login: ok=%v err=%v", ok, err)
	}
	oldRefresh := first.RefreshToken()

	req := NewRequest(map[string]string{"X-Refresh-Token": oldRefresh}, nil, "")
	second := newApiAuth(t, store, auditor, req)

	ok, err := second.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !ok || !second.IsLoggedIn() {
		t.Fatal("rotation did not authenticate")
	}
	if second.Principal().ID != p.ID {
		t.Fatalf("principal = %d, want %d", second.Principal().ID, p.ID)
	}
	if second.RefreshToken() == "" || second.RefreshToken() == oldRefresh {
		t.Fatal("rotation must issue a new refresh token")
	}
	if second.AccessToken() == "" {
		t.Fatal("rotation must issue a new access token")
	}

	// The consumed value never rotates again.
	third := newApiAuth(t, store, auditor, NewRequest(map[string]string{"X-Refresh-Token": oldRefresh}, nil, ""))
	ok, err = third.Refresh(context.Background())
	if err != nil {
		t.Fatalf("replayed Refresh: %v", err)
	}
	if ok || third.IsLoggedIn() {
		t.Fatal("replayed refresh token accepted")
	}
}

func TestApiAuthRefreshOwnerMismatch(t *testing.T) {
	store := newFakeStore()
	store.principals.add(activeUser("alice@acme.test"), "alicepw")
	store.principals.add(activeUser("bob@acme.test"), "bobpw")

	alice := newApiAuth(t, store, nil, NewRequest(nil, nil, ""))
	if ok, err := alice.Login(context.Background(), "alice@acme.test", "alicepw", true); err != nil || !ok {
		t.Fatalf("alice login: ok=%v err=%v", ok, err)
	}

	bob := newApiAuth(t, store, nil, NewRequest(nil, nil, ""))
	if ok, err := bob.Login(context.Background(), "bob@acme.test", "bobpw", true); err != nil || !ok {
		t.Fatalf("bob login: ok=%v err=%v", ok, err)
	}

	// Bob is authenticated but presents Alice's refresh token.
	req := NewRequest(map[string]string{
		"Authorization":   "Bearer " + bob.AccessToken(),
		"X-Refresh-Token": alice.RefreshToken(),
	}, nil, "")
	hijack := newApiAuth(t, store, nil, req)
	ok, err := hijack.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ok {
		t.Fatal("cross-principal rotation accepted")
	}
}

func TestApiAuthRefreshInactivePrincipal(t *testing.T) {
	store := newFakeStore()
	p := store.principals.add(activeUser("ops@acme.test"), "pa55word")

	first := newApiAuth(t, store, nil, NewRequest(nil, nil, ""))
	if ok, err := first.Login(context.Background(), "ops@acme.test", "pa55word", true); err != nil || !ok {
		t.Fatalf("seed login: ok=%v err=%v", ok, err)
	}

	// Deactivate between issuance and rotation.
	deactivated := *store.principals.byID[p.ID]
	deactivated.Status = StatusInactive
	store.principals.byID[p.ID] = &deactivated

	req := NewRequest(map[string]string{"X-Refresh-Token": first.RefreshToken()}, nil, "")
	second := newApiAuth(t, store, nil, req)
	ok, err := second.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ok || second.IsLoggedIn() {
		t.Fatal("rotation for deactivated principal accepted")
	}
}

func TestApiAuthLogoutRevokesRefreshToken(t *testing.T) {
	store := newFakeStore()
	store.principals.add(activeUser("ops@acme.test"), "pa55word")
	auditor := &recordingAuditor{}

	first := newApiAuth(t, store, auditor, NewRequest(nil, nil, ""))
	if ok, err := first.Login(context.Background(), "ops@acme.test", "pa55word", true); err != nil || !ok {
		t.Fatalf("seed login: ok=%v err=%v", ok, err)
	}
	refresh := first.RefreshToken()

	req := NewRequest(map[string]string{
		"Authorization":   "Bearer " + first.AccessToken(),
		"X-Refresh-Token": refresh,
	}, nil, "")
	second := newApiAuth(t, store, auditor, req)
	if !second.IsLoggedIn() {
		t.Fatal("bearer restore failed")
	}
	if err := second.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if second.IsLoggedIn() || second.AccessToken() != "" || second.RefreshToken() != "" {
		t.Fatal("logout left authentication state behind")
	}

	tok, err := store.tokens.Find(context.Background(), refresh)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !tok.Revoked {
		t.Fatal("logout did not revoke the refresh token")
	}
	entry, found := auditor.last()
	if !found || entry.Action != "auth.logout" {
		t.Fatalf("expected logout audit entry, got %+v", entry)
	}
}

func TestApiAuthLogoutWhenAnonymous(t *testing.T) {
	store := newFakeStore()
	a := newApiAuth(t, store, nil, NewRequest(nil, nil, ""))
	if err := a.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
}
