package auth

import (
	"strings"
	"time"
)

const (
	authorizationHeader = "Authorization"
	refreshTokenHeader  = "X-Refresh-Token"
	bearerPrefix        = "bearer "
)

// Request is the already-parsed transport view consumed by strategies.
// The core never touches raw HTTP or ambient process state.
type Request struct {
	headers  map[string]string
	cookies  map[string]string
	clientIP string
}

// NewRequest builds a request view from parsed header and cookie maps.
// Header lookup is case-insensitive.
func NewRequest(headers, cookies map[string]string, clientIP string) Request {
	normalized := make(map[string]string, len(headers))
	for name, value := range headers {
		normalized[strings.ToLower(name)] = value
	}
	copied := make(map[string]string, len(cookies))
	for name, value := range cookies {
		copied[name] = value
	}
	return Request{headers: normalized, cookies: copied, clientIP: clientIP}
}

// Header returns a header value by case-insensitive name.
func (r Request) Header(name string) string {
	return r.headers[strings.ToLower(name)]
}

// Cookie returns a cookie value by exact name.
func (r Request) Cookie(name string) string {
	return r.cookies[name]
}

// ClientIP returns the remote client address, for audit entries only.
func (r Request) ClientIP() string {
	return r.clientIP
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func (r Request) BearerToken() string {
	header := strings.TrimSpace(r.Header(authorizationHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// PresentedRefreshToken returns the refresh token presented via header.
func (r Request) PresentedRefreshToken() string {
	return strings.TrimSpace(r.Header(refreshTokenHeader))
}

// CookieWriter is the outbound cookie side effect consumed by the session
// strategy. Implemented by the HTTP layer.
type CookieWriter interface {
	// SetCookie sets a named cookie with the given value and expiry. An expiry
	// in the past clears the cookie.
	SetCookie(name, value string, expires time.Time)
}
