package auth

import "context"

// Strategy is the request-scoped authentication surface consumed by the
// dispatcher. Implementations restore identity during construction and hold
// it for the lifetime of one request.
//
// All recoverable authentication failures collapse to boolean outcomes;
// returned errors always indicate infrastructure failure.
type Strategy interface {
	IsLoggedIn() bool
	Principal() *Principal
	Login(ctx context.Context, identifier, secret string, persist bool) (bool, error)
	Refresh(ctx context.Context) (bool, error)
	Logout(ctx context.Context) error
	// AccessToken returns the current access token, or "" when none is held.
	AccessToken() string
	// RefreshToken returns the refresh token issued during this request, or "".
	RefreshToken() string
}
