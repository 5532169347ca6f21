package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"portier.dev/internal/audit"
	"portier.dev/internal/auth"
	"portier.dev/internal/tenant"
)

// adminRights is the privilege level required for principal administration.
const adminRights = 100

type principalRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	Name       string `json:"name"`
	Rights     int    `json:"rights"`
	Status     int    `json:"status"`
	Type       int    `json:"type"`
}

// principalUpdateRequest distinguishes omitted fields from zero values so a
// partial update leaves everything else untouched.
type principalUpdateRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	Name       string `json:"name"`
	Rights     *int   `json:"rights"`
	Status     *int   `json:"status"`
	Type       *int   `json:"type"`
}

// requireAdmin authenticates the request and checks the privilege level.
// Writes the error response itself when the check fails.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request, tc tenant.Context) (*auth.Principal, bool) {
	strat, err := a.strategy(w, r, tc)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return nil, false
	}
	if strat == nil || !strat.IsLoggedIn() {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return nil, false
	}
	p := strat.Principal()
	if p.Rights < adminRights {
		writeError(w, r, http.StatusForbidden, "insufficient rights")
		return nil, false
	}
	return p, true
}

func (a *API) handlePrincipalsCollection(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "no tenant binding")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.listPrincipals(w, r, tc)
	case http.MethodPost:
		a.createPrincipal(w, r, tc)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePrincipalResource(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "no tenant binding")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/v1/principals/")
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid principal id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getPrincipal(w, r, tc, id)
	case http.MethodPut:
		a.updatePrincipal(w, r, tc, id)
	case http.MethodDelete:
		a.deletePrincipal(w, r, tc, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listPrincipals(w http.ResponseWriter, r *http.Request, tc tenant.Context) {
	if _, ok := a.requireAdmin(w, r, tc); !ok {
		return
	}
	principals, err := a.tenantStore(tc).Principals().List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]principalPayload, 0, len(principals))
	for _, p := range principals {
		items = append(items, toPrincipalPayload(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createPrincipal(w http.ResponseWriter, r *http.Request, tc tenant.Context) {
	admin, ok := a.requireAdmin(w, r, tc)
	if !ok {
		return
	}
	var req principalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" {
		writeError(w, r, http.StatusBadRequest, "identifier is required")
		return
	}
	if req.Secret == "" {
		writeError(w, r, http.StatusBadRequest, "secret is required")
		return
	}

	p := &auth.Principal{
		Identifier: req.Identifier,
		Name:       strings.TrimSpace(req.Name),
		Rights:     req.Rights,
		Status:     auth.Status(req.Status),
		Type:       auth.Type(req.Type),
	}
	if err := a.tenantStore(tc).Principals().Create(r.Context(), p, req.Secret); err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "invalid principal")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.auditAdmin(r, tc, admin.ID, "principal.create", p.ID, "created "+p.Identifier)

	w.Header().Set("Location", "/v1/principals/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, toPrincipalPayload(p))
}

func (a *API) getPrincipal(w http.ResponseWriter, r *http.Request, tc tenant.Context, id int64) {
	if _, ok := a.requireAdmin(w, r, tc); !ok {
		return
	}
	p, err := a.tenantStore(tc).Principals().Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "principal not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toPrincipalPayload(p))
}

func (a *API) updatePrincipal(w http.ResponseWriter, r *http.Request, tc tenant.Context, id int64) {
	admin, ok := a.requireAdmin(w, r, tc)
	if !ok {
		return
	}
	var req principalUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	store := a.tenantStore(tc).Principals()
	p, err := store.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "principal not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if identifier := strings.TrimSpace(req.Identifier); identifier != "" {
		p.Identifier = identifier
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		p.Name = name
	}
	if req.Rights != nil {
		p.Rights = *req.Rights
	}
	if req.Status != nil {
		p.Status = auth.Status(*req.Status)
	}
	if req.Type != nil {
		p.Type = auth.Type(*req.Type)
	}

	// The secret hash is only replaced when a new secret travels with the
	// update.
	if err := store.Update(r.Context(), p, req.Secret); err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "invalid principal")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.auditAdmin(r, tc, admin.ID, "principal.update", p.ID, "updated "+p.Identifier)
	writeJSON(w, http.StatusOK, toPrincipalPayload(p))
}

func (a *API) deletePrincipal(w http.ResponseWriter, r *http.Request, tc tenant.Context, id int64) {
	admin, ok := a.requireAdmin(w, r, tc)
	if !ok {
		return
	}
	if admin.ID == id {
		writeError(w, r, http.StatusBadRequest, "cannot delete own account")
		return
	}
	if err := a.tenantStore(tc).Principals().Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "principal not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.auditAdmin(r, tc, admin.ID, "principal.delete", id, "deleted")
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) auditAdmin(r *http.Request, tc tenant.Context, adminID int64, action string, targetID int64, message string) {
	_ = a.tenantAuditor(tc).Record(r.Context(), &audit.Entry{
		PrincipalID: adminID,
		ClientIP:    clientIP(r),
		Action:      action,
		TargetType:  "principal",
		TargetID:    targetID,
		Status:      audit.StatusOK,
		Message:     message,
	})
}
