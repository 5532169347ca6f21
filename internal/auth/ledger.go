package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"portier.dev/internal/ids"
)

const defaultRefreshTTL = 30 * 24 * time.Hour

// Ledger manages the lifecycle of long-lived refresh tokens: issuance,
// single-use rotation and revocation. Strategies never touch token rows
// directly.
type Ledger struct {
	tokens RefreshTokenStore
	ttl    time.Duration
	now    func() time.Time
}

// LedgerOption configures Ledger behavior.
type LedgerOption func(*Ledger)

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) LedgerOption {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLedgerClock overrides the time source (useful for tests).
func WithLedgerClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a Ledger over a token store.
func NewLedger(tokens RefreshTokenStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		tokens: tokens,
		ttl:    defaultRefreshTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue generates and persists a fresh refresh token for the principal.
func (l *Ledger) Issue(ctx context.Context, principalID int64) (*RefreshToken, error) {
	value, err := generateTokenValue()
	if err != nil {
		return nil, err
	}
	now := l.now().UTC()
	tok := &RefreshToken{
		ID:          ids.New(),
		PrincipalID: principalID,
		Value:       value,
		IssuedAt:    now,
		ExpiresAt:   now.Add(l.ttl),
	}
	if err := l.tokens.Create(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ValidateAndRotate validates a presented refresh token and consumes it. On
// success the returned record is already revoked; the caller issues the
// successor. When expectedPrincipal is positive, the stored owner must match.
//
// Under concurrent calls with the same value exactly one caller succeeds; the
// rest observe ErrRefreshTokenRevoked.
func (l *Ledger) ValidateAndRotate(ctx context.Context, value string, expectedPrincipal int64) (*RefreshToken, error) {
	if value == "" {
		return nil, ErrRefreshTokenInvalid
	}
	tok, err := l.tokens.Find(ctx, value)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrRefreshTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if tok.Revoked {
		return nil, ErrRefreshTokenRevoked
	}
	if l.now().After(tok.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}
	if expectedPrincipal > 0 && tok.PrincipalID != expectedPrincipal {
		return nil, ErrPrincipalMismatch
	}
	consumed, err := l.tokens.Consume(ctx, value, l.now())
	if err != nil {
		return nil, err
	}
	if !consumed {
		// Lost the race against a concurrent rotation or revocation.
		return nil, ErrRefreshTokenRevoked
	}
	tok.Revoked = true
	return tok, nil
}

// Revoke marks a still-valid token revoked, scoped to the principal when one
// is given.
func (l *Ledger) Revoke(ctx context.Context, value string, principalID int64) (bool, error) {
	if value == "" {
		return false, nil
	}
	return l.tokens.Revoke(ctx, value, principalID)
}

// generateTokenValue returns 256 bits of entropy in hex form.
func generateTokenValue() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
