package auth

import (
	"context"
	"time"
)

// RefreshToken is a persisted long-lived credential. Rows are never deleted;
// revocation is the terminal state and doubles as the audit trail.
type RefreshToken struct {
	ID          string
	PrincipalID int64
	// Value is the high-entropy opaque token value presented by clients.
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Store bundles the persistence surfaces required by the auth subsystem,
// scoped to one tenant's table prefix.
type Store interface {
	Principals() PrincipalStore
	RefreshTokens() RefreshTokenStore
}

// PrincipalStore manages principals.
type PrincipalStore interface {
	// Create persists a new principal and assigns its ID. The raw secret is
	// hashed before storage and must not be empty.
	Create(ctx context.Context, p *Principal, rawSecret string) error
	Find(ctx context.Context, id int64) (*Principal, error)
	FindByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	List(ctx context.Context) ([]*Principal, error)
	// Update rewrites the principal's row. The stored secret hash is replaced
	// only when newRawSecret is non-empty.
	Update(ctx context.Context, p *Principal, newRawSecret string) error
	Delete(ctx context.Context, id int64) error
	// VerifyCredentials looks up a principal by case-insensitive identifier
	// and verifies the raw secret against the stored hash. It returns
	// ErrUnauthorized on any mismatch and performs a hash comparison even when
	// the identifier is unknown.
	VerifyCredentials(ctx context.Context, identifier, secret string) (*Principal, error)
	// TouchLastSeen records authentication activity.
	TouchLastSeen(ctx context.Context, id int64, at time.Time) error
}

// RefreshTokenStore manages refresh token rows.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	// Find looks up a token row by exact value. ErrNotFound when absent.
	Find(ctx context.Context, value string) (*RefreshToken, error)
	// Consume atomically revokes a still-valid row as a single conditional
	// update. Exactly one concurrent caller observes true for a given value.
	Consume(ctx context.Context, value string, now time.Time) (bool, error)
	// Revoke marks matching still-valid rows revoked, optionally scoped to a
	// principal (principalID > 0) to prevent cross-account revocation.
	Revoke(ctx context.Context, value string, principalID int64) (bool, error)
}
