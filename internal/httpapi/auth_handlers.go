package httpapi

import (
	"net/http"
	"strings"
	"time"

	"portier.dev/internal/auth"
	"portier.dev/internal/tenant"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	Persist    bool   `json:"persist"`
}

type tokenPairResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	TokenType    string           `json:"token_type"`
	Principal    principalPayload `json:"principal"`
}

type principalPayload struct {
	ID         int64     `json:"id"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	Rights     int       `json:"rights"`
	Status     int       `json:"status"`
	Type       int       `json:"type"`
	LastSeen   time.Time `json:"last_seen"`
	CreatedAt  time.Time `json:"created_at"`
}

func toPrincipalPayload(p *auth.Principal) principalPayload {
	return principalPayload{
		ID:         p.ID,
		Identifier: p.Identifier,
		Name:       p.Name,
		Rights:     p.Rights,
		Status:     int(p.Status),
		Type:       int(p.Type),
		LastSeen:   p.LastSeen,
		CreatedAt:  p.CreatedAt,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	tc, ok := tenantFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "no tenant binding")
		return
	}
	strat, err := a.strategy(w, r, tc)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	if strat == nil {
		writeError(w, r, http.StatusNotFound, "authentication disabled for tenant")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Secret == "" {
		writeError(w, r, http.StatusBadRequest, "identifier and secret are required")
		return
	}

	ok, err = strat.Login(r.Context(), req.Identifier, req.Secret, req.Persist)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if tc.Mode == tenant.ModeSession {
		if sa, isSession := strat.(*auth.SessionAuth); isSession {
			setSessionCookie(w, sa.SessionID(), 0)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"principal": toPrincipalPayload(strat.Principal()),
		})
		return
	}

	// Without persist no tokens were issued.
	if strat.AccessToken() == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"principal": toPrincipalPayload(strat.Principal()),
		})
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  strat.AccessToken(),
		RefreshToken: strat.RefreshToken(),
		TokenType:    "Bearer",
		Principal:    toPrincipalPayload(strat.Principal()),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	tc, ok := tenantFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "no tenant binding")
		return
	}
	if tc.Mode != tenant.ModeToken {
		writeError(w, r, http.StatusNotFound, "refresh not available for tenant")
		return
	}
	strat, err := a.strategy(w, r, tc)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	ok, err = strat.Refresh(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  strat.AccessToken(),
		RefreshToken: strat.RefreshToken(),
		TokenType:    "Bearer",
		Principal:    toPrincipalPayload(strat.Principal()),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	tc, ok := tenantFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "no tenant binding")
		return
	}
	strat, err := a.strategy(w, r, tc)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	if strat == nil {
		writeError(w, r, http.StatusNotFound, "authentication disabled for tenant")
		return
	}
	if err := strat.Logout(r.Context()); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	if tc.Mode == tenant.ModeSession {
		setSessionCookie(w, "", 0)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	tc, ok := tenantFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "no tenant binding")
		return
	}
	strat, err := a.strategy(w, r, tc)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	if strat == nil || !strat.IsLoggedIn() {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": toPrincipalPayload(strat.Principal()),
		"tenant":    tc.Name,
	})
}
