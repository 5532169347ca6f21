package tenant

import (
	"errors"
	"net"
	"strings"
)

// ErrUnknownTenant is returned when the resolved key has no registry entry
// and the registry is not configured to allow unknown tenants.
var ErrUnknownTenant = errors.New("tenant: unknown tenant")

// Resolve maps a request host and path to a tenant context.
//
// On production hosts the tenant key is the first host label
// ("branchmanager.example.com" -> "branchmanager"). On the development host
// it is the first path segment, falling back to the configured default
// tenant when the path carries none.
//
// Unknown keys fail closed with ErrUnknownTenant unless the registry was
// configured with allow_unknown, in which case an unauthenticated context is
// returned for compatibility with partially configured environments.
func (r *Registry) Resolve(host string, segments []string) (Context, error) {
	key := r.tenantKey(host, segments)
	if tc, ok := r.entries[key]; ok {
		return tc, nil
	}
	if r.allowUnknown {
		return Context{Name: key, Mode: ModeNone}, nil
	}
	return Context{}, ErrUnknownTenant
}

func (r *Registry) tenantKey(host string, segments []string) string {
	host = normalizeHost(host)
	if host != r.devHost && host != "" {
		return strings.SplitN(host, ".", 2)[0]
	}
	if len(segments) > 0 && segments[0] != "" {
		return strings.ToLower(segments[0])
	}
	return r.defaultTenant
}

// IsDevHost reports whether host is the configured development host, where
// the tenant travels as the first path segment instead of a host label.
func (r *Registry) IsDevHost(host string) bool {
	return normalizeHost(host) == r.devHost
}

// PathSegments splits a URL path into its non-empty segments.
func PathSegments(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
