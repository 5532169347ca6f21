package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"portier.dev/internal/audit"
	"portier.dev/internal/auth"
	"portier.dev/internal/obs"
	"portier.dev/internal/tenant"
)

// ReadyProbe reports readiness, usually by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. Every request is bound to a tenant before any
// handler runs; handlers build their authentication strategy from that
// binding.
type API struct {
	mux        *http.ServeMux
	registry   *tenant.Registry
	db         *sql.DB
	sessions   auth.SessionStore
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int

	// factories are replaceable in tests
	stores   func(tenant.Context) auth.Store
	auditors func(tenant.Context) audit.Recorder
}

func New(registry *tenant.Registry, db *sql.DB, sessions auth.SessionStore, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		registry:   registry,
		db:         db,
		sessions:   sessions,
		readyProbe: rp,
		version:    version,
		rateBurst:  20,
		ratePerSec: 10,
	}
	a.stores = func(tc tenant.Context) auth.Store {
		return auth.NewPGStore(a.db, tc.Prefix)
	}
	a.auditors = func(tc tenant.Context) audit.Recorder {
		return audit.NewPGStore(a.db, tc.Prefix)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// authentication
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	// principal administration
	a.mux.HandleFunc("/v1/principals", a.handlePrincipalsCollection)
	a.mux.HandleFunc("/v1/principals/", a.handlePrincipalResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withTenant(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- tenant binding ---

type tenantCtxKey struct{}

// infraPaths are served without a tenant binding.
var infraPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// withTenant resolves the tenant for every request and rejects requests it
// cannot bind. On the development host the tenant path segment is stripped so
// the remaining path matches the normal routes.
func (a *API) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if infraPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		segments := tenant.PathSegments(r.URL.Path)
		tc, err := a.registry.Resolve(r.Host, segments)
		if err != nil {
			writeError(w, r, http.StatusNotFound, "unknown tenant")
			return
		}
		if a.registry.IsDevHost(r.Host) && len(segments) > 0 && segments[0] == tc.Name {
			r.URL.Path = "/" + joinSegments(segments[1:])
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey{}, tc)
		ctx = auth.ContextWithTenant(ctx, tc.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func joinSegments(segments []string) string {
	out := ""
	for i, seg := range segments {
		if i > 0 {
			out += "/"
		}
		out += seg
	}
	return out
}

func tenantFromRequest(r *http.Request) (tenant.Context, bool) {
	tc, ok := r.Context().Value(tenantCtxKey{}).(tenant.Context)
	return tc, ok
}

// --- per-tenant dependencies ---

func (a *API) tenantStore(tc tenant.Context) auth.Store {
	return a.stores(tc)
}

func (a *API) tenantAuditor(tc tenant.Context) audit.Recorder {
	return a.auditors(tc)
}

// strategy builds the authentication strategy configured for the tenant.
// Returns nil for tenants with authentication disabled.
func (a *API) strategy(w http.ResponseWriter, r *http.Request, tc tenant.Context) (auth.Strategy, error) {
	store := a.tenantStore(tc)
	auditor := a.tenantAuditor(tc)
	req := requestView(r)

	switch tc.Mode {
	case tenant.ModeToken:
		ledger := auth.NewLedger(store.RefreshTokens())
		return auth.NewApiAuth(r.Context(), tc, store, ledger, auditor, req)
	case tenant.ModeSession:
		sid := sessionIDFromRequest(r)
		writer := &cookieWriter{w: w}
		sa, err := auth.NewSessionAuth(r.Context(), tc, store, a.sessions, writer, auditor, req, sid)
		if err != nil {
			return nil, err
		}
		// A cookie-only restore mints a fresh server-side session; the client
		// has to learn its identifier or every later request starts another.
		if sa.SessionID() != "" && sa.SessionID() != sid {
			setSessionCookie(w, sa.SessionID(), 0)
		}
		return sa, nil
	default:
		return nil, nil
	}
}

// --- basic handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "portier-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"name":    "portier-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	}
	if tc, ok := tenantFromRequest(r); ok {
		payload["tenant"] = tc.Name
		payload["auth"] = string(tc.Mode)
	}
	writeJSON(w, http.StatusOK, payload)
}
