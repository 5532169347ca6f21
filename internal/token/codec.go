// Package token implements the compact signed token format shared by the
// bearer and cookie authentication flows: three base64url segments
// (header, claims, HMAC-SHA256 signature) joined by dots.
package token

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed indicates the token does not have the expected shape.
	ErrMalformed = errors.New("token: malformed")
	// ErrBadSignature indicates the signature does not match the payload.
	ErrBadSignature = errors.New("token: bad signature")
)

// Claims is an arbitrary claims mapping carried inside a token.
type Claims map[string]any

// Encode signs the claims with the given secret using HS256.
func Encode(claims Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("token: signing secret is empty")
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
	return t.SignedString(secret)
}

// Decode verifies the signature and returns the embedded claims. Expiry is
// deliberately not checked here; callers apply their own policy via IsExpired.
// The two failure modes are ErrMalformed and ErrBadSignature; callers must not
// surface the distinction to the transport layer.
func Decode(raw string, secret []byte) (Claims, error) {
	if raw == "" {
		return nil, ErrMalformed
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(raw, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrBadSignature
		}
		return nil, ErrMalformed
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}
	return Claims(claims), nil
}

// IsExpired reports whether the claims carry an exp timestamp in the past.
// Claims without exp are never considered expired by this check.
func IsExpired(c Claims) bool {
	return IsExpiredAt(c, time.Now())
}

// IsExpiredAt is IsExpired against an explicit point in time.
func IsExpiredAt(c Claims, now time.Time) bool {
	exp, ok := numericClaim(c, "exp")
	if !ok {
		return false
	}
	return now.Unix() > exp
}

// Subject returns the sub claim as a principal identifier.
func Subject(c Claims) (int64, bool) {
	return numericClaim(c, "sub")
}

// Tenant returns the tenant claim binding the token to one sub-application.
func Tenant(c Claims) string {
	v, _ := c["tenant"].(string)
	return v
}

func numericClaim(c Claims, key string) (int64, bool) {
	switch v := c[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
