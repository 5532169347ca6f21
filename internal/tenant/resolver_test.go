package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		DefaultTenant: "portal",
		Secret:        "registry-secret",
		Tenants: map[string]TenantConfig{
			"branchmanager": {Auth: "token"},
			"portal":        {Prefix: "web_", Auth: "session"},
			"public":        {Auth: "none"},
		},
	}
}

func TestResolveByHostLabel(t *testing.T) {
	r, err := NewRegistry(testConfig())
	require.NoError(t, err)

	tc, err := r.Resolve("branchmanager.example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "branchmanager", tc.Name)
	assert.Equal(t, "branchmanager_", tc.Prefix, "prefix defaults to name plus underscore")
	assert.Equal(t, ModeToken, tc.Mode)
	assert.Equal(t, []byte("registry-secret"), tc.Secret)
}

func TestResolveHostWithPort(t *testing.T) {
	r, err := NewRegistry(testConfig())
	require.NoError(t, err)

	tc, err := r.Resolve("portal.example.com:8443", []string{"ignored"})
	require.NoError(t, err)
	assert.Equal(t, "portal", tc.Name)
	assert.Equal(t, "web_", tc.Prefix)
}

func TestResolveOnDevHost(t *testing.T) {
	r, err := NewRegistry(testConfig())
	require.NoError(t, err)

	tc, err := r.Resolve("localhost:8080", []string{"branchmanager", "v1", "auth"})
	require.NoError(t, err)
	assert.Equal(t, "branchmanager", tc.Name)

	// No path segment falls back to the default tenant.
	tc, err = r.Resolve("localhost", nil)
	require.NoError(t, err)
	assert.Equal(t, "portal", tc.Name)
	assert.Equal(t, ModeSession, tc.Mode)
}

func TestResolveUnknownTenantFailsClosed(t *testing.T) {
	r, err := NewRegistry(testConfig())
	require.NoError(t, err)

	_, err = r.Resolve("intruder.example.com", nil)
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestResolveUnknownTenantAllowed(t *testing.T) {
	cfg := testConfig()
	cfg.AllowUnknown = true
	r, err := NewRegistry(cfg)
	require.NoError(t, err)

	tc, err := r.Resolve("intruder.example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "intruder", tc.Name)
	assert.Equal(t, ModeNone, tc.Mode)
	assert.Empty(t, tc.Prefix)
}

func TestPerTenantSecretOverride(t *testing.T) {
	cfg := testConfig()
	tc := cfg.Tenants["branchmanager"]
	tc.Secret = "tenant-only-secret"
	cfg.Tenants["branchmanager"] = tc

	r, err := NewRegistry(cfg)
	require.NoError(t, err)

	resolved, err := r.Resolve("branchmanager.example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("tenant-only-secret"), resolved.Secret)
}

func TestRegistryValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Tenants["bad"] = TenantConfig{Auth: "oauth"}
	_, err := NewRegistry(cfg)
	assert.Error(t, err, "unknown auth mode must be rejected")

	cfg = testConfig()
	cfg.Tenants["bad"] = TenantConfig{Prefix: "no;drop_", Auth: "token"}
	_, err = NewRegistry(cfg)
	assert.Error(t, err, "prefix outside [a-z0-9_] must be rejected")

	cfg = testConfig()
	cfg.Secret = ""
	_, err = NewRegistry(cfg)
	assert.Error(t, err, "authenticated tenant without a secret must be rejected")
}

func TestPathSegments(t *testing.T) {
	assert.Nil(t, PathSegments("/"))
	assert.Equal(t, []string{"acme", "v1", "auth"}, PathSegments("/acme/v1/auth/"))
}
