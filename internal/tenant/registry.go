// Package tenant binds incoming requests to the sub-application they target.
// The registry is populated once at process start from a YAML file and is
// immutable afterwards; reconfiguration means building a new Registry.
package tenant

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects the authentication strategy configured for a tenant.
type Mode string

const (
	// ModeNone disables authentication for the tenant.
	ModeNone Mode = "none"
	// ModeSession authenticates via server-side session plus signed cookie.
	ModeSession Mode = "session"
	// ModeToken authenticates via stateless bearer tokens.
	ModeToken Mode = "token"
)

// Config is the on-disk shape of the tenant registry.
type Config struct {
	// DevHost is the host name treated as the development host, where the
	// tenant key comes from the first path segment instead of the host label.
	DevHost string `yaml:"dev_host"`
	// DefaultTenant is used on the development host when the path carries no
	// tenant segment.
	DefaultTenant string `yaml:"default_tenant"`
	// AllowUnknown restores the historical behavior of degrading unknown
	// tenants to an unauthenticated context instead of rejecting them.
	AllowUnknown bool `yaml:"allow_unknown"`
	// Secret is the process-wide token signing secret. Individual tenants may
	// override it.
	Secret  string                  `yaml:"secret"`
	Tenants map[string]TenantConfig `yaml:"tenants"`
}

// TenantConfig configures a single tenant entry.
type TenantConfig struct {
	// Prefix scopes the tenant's database tables. Defaults to "<name>_".
	Prefix string `yaml:"prefix"`
	// Auth is one of none, session, token.
	Auth string `yaml:"auth"`
	// Secret overrides the registry-wide signing secret for this tenant.
	Secret string `yaml:"secret"`
}

// Context is the resolved, per-request tenant binding. Immutable once built.
type Context struct {
	Name   string
	Prefix string
	Mode   Mode
	Secret []byte
}

// Registry holds the static tenant table. Safe for concurrent reads.
type Registry struct {
	devHost       string
	defaultTenant string
	allowUnknown  bool
	entries       map[string]Context
}

const defaultDevHost = "localhost"

// Load reads a registry config from a YAML file.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenant: read registry: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("tenant: parse registry: %w", err)
	}
	return NewRegistry(cfg)
}

// NewRegistry validates the config and builds an immutable registry.
func NewRegistry(cfg Config) (*Registry, error) {
	r := &Registry{
		devHost:       strings.ToLower(strings.TrimSpace(cfg.DevHost)),
		defaultTenant: strings.ToLower(strings.TrimSpace(cfg.DefaultTenant)),
		allowUnknown:  cfg.AllowUnknown,
		entries:       make(map[string]Context, len(cfg.Tenants)),
	}
	if r.devHost == "" {
		r.devHost = defaultDevHost
	}
	baseSecret := strings.TrimSpace(cfg.Secret)
	for name, tc := range cfg.Tenants {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("tenant: empty tenant name")
		}
		mode, err := parseMode(tc.Auth)
		if err != nil {
			return nil, fmt.Errorf("tenant %q: %w", name, err)
		}
		prefix := strings.TrimSpace(tc.Prefix)
		if prefix == "" {
			prefix = name + "_"
		}
		if !validPrefix(prefix) {
			return nil, fmt.Errorf("tenant %q: invalid table prefix %q", name, prefix)
		}
		secret := strings.TrimSpace(tc.Secret)
		if secret == "" {
			secret = baseSecret
		}
		if secret == "" && mode != ModeNone {
			return nil, fmt.Errorf("tenant %q: no signing secret configured", name)
		}
		r.entries[name] = Context{
			Name:   name,
			Prefix: prefix,
			Mode:   mode,
			Secret: []byte(secret),
		}
	}
	return r, nil
}

// Tenants returns the configured tenant names.
func (r *Registry) Tenants() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Prefixes returns the storage prefixes of all configured tenants.
func (r *Registry) Prefixes() []string {
	prefixes := make([]string, 0, len(r.entries))
	for _, tc := range r.entries {
		prefixes = append(prefixes, tc.Prefix)
	}
	return prefixes
}

// Lookup returns the context for a tenant key, if configured.
func (r *Registry) Lookup(name string) (Context, bool) {
	tc, ok := r.entries[strings.ToLower(name)]
	return tc, ok
}

func parseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeNone, "":
		return ModeNone, nil
	case ModeSession:
		return ModeSession, nil
	case ModeToken:
		return ModeToken, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", raw)
	}
}

// Prefixes end up concatenated into SQL identifiers, so they are restricted
// to a conservative character set.
func validPrefix(prefix string) bool {
	for _, ch := range prefix {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= '0' && ch <= '9':
		case ch == '_':
		default:
			return false
		}
	}
	return true
}
