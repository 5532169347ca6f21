package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")

	ErrTokenExpired      = errors.New("auth: token expired")
	ErrTenantMismatch    = errors.New("auth: token tenant mismatch")
	ErrPrincipalInactive = errors.New("auth: principal inactive")
	ErrPrincipalMismatch = errors.New("auth: refresh token principal mismatch")

	ErrRefreshTokenInvalid = errors.New("auth: refresh token invalid")
	ErrRefreshTokenRevoked = errors.New("auth: refresh token revoked")
	ErrRefreshTokenExpired = errors.New("auth: refresh token expired")
)

// isDenial reports whether err is one of the recoverable authentication
// failures that collapse to a boolean "not authenticated" outcome at the
// strategy boundary. Anything else is an infrastructure failure and
// propagates.
func isDenial(err error) bool {
	for _, denial := range []error{
		ErrNotFound,
		ErrUnauthorized,
		ErrTokenExpired,
		ErrTenantMismatch,
		ErrPrincipalInactive,
		ErrPrincipalMismatch,
		ErrRefreshTokenInvalid,
		ErrRefreshTokenRevoked,
		ErrRefreshTokenExpired,
	} {
		if errors.Is(err, denial) {
			return true
		}
	}
	return false
}
