// Package auth implements the multi-tenant authentication core: credential
// verification, refresh token rotation and the two request-scoped
// authentication strategies (stateless bearer tokens and session plus signed
// cookie).
package auth

import "time"

// Status gates whether a principal may authenticate.
type Status int

const (
	StatusInactive Status = 0
	StatusActive   Status = 1
)

// Type distinguishes interactive accounts from service accounts.
type Type int

const (
	TypeUser    Type = 0
	TypeService Type = 1
)

// Principal is the authenticated entity, interactive user or service.
// Instances are owned by one authentication strategy for the duration of a
// single request.
type Principal struct {
	ID         int64
	Identifier string
	Name       string
	// Rights is a total-ordered privilege level; larger means stronger.
	Rights    int
	Status    Status
	Type      Type
	LastSeen  time.Time
	CreatedAt time.Time

	// verified is transient and never persisted. It may only be granted to a
	// loaded, active principal.
	verified bool
}

// LoginVerified reports whether this principal's identity was established for
// the current request.
func (p *Principal) LoginVerified() bool {
	return p != nil && p.verified
}

// Active reports whether the principal is allowed to authenticate.
func (p *Principal) Active() bool {
	return p != nil && p.Status >= StatusActive
}
