package httpapi

import (
	"net/http"
	"strings"

	"rolegate.org/internal/obs"
)

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleRoles serves the role collection: list and create, ADMIN only.
func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	_, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if !ensureAdminRole(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.svc.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		obs.Audit(r.Context(), "role.create", map[string]any{"role_id": role.ID, "name": role.Name})
		writeOK(w, http.StatusCreated, map[string]any{"role": role})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleResource dispatches /roles/{id} and /roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/roles/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleRole(w, r, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "permissions":
		a.handleRolePermissions(w, r, parts[0])
	default:
		a.handleNotFound(w, r)
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	_, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if !ensureAdminRole(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.UpdateRole(r.Context(), roleID, req.Name, req.Description)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		obs.Audit(r.Context(), "role.update", map[string]any{"role_id": role.ID, "name": role.Name})
		writeOK(w, http.StatusOK, map[string]any{"role": role})
	case http.MethodDelete:
		if err := a.svc.DeleteRole(r.Context(), roleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		obs.Audit(r.Context(), "role.delete", map[string]any{"role_id": roleID})
		writeOK(w, http.StatusOK, nil)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

type rolePermissionNamesRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	_, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if !ensureAdminRole(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		perms, err := a.svc.RolePermissions(r.Context(), roleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPut:
		var req rolePermissionNamesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
			handleAuthError(w, r, err)
			return
		}
		obs.Audit(r.Context(), "role.permissions.update", map[string]any{
			"role_id":     roleID,
			"permissions": req.Permissions,
		})
		writeOK(w, http.StatusOK, nil)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
