package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"rolegate.org/internal/auth"
	"rolegate.org/internal/obs"
)

const (
	permUsersRead   = "users:read"
	permUsersEdit   = "users:edit"
	permUsersDelete = "users:delete"
)

type pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// handleUsers lists accounts with optional name-prefix and role filters.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	_, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if !ensurePermissions(w, r, permUsersRead) {
		return
	}

	q := r.URL.Query()
	filter := auth.ListUsersFilter{
		NamePrefix: strings.TrimSpace(q.Get("name")),
		RoleNames:  q["role"],
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	users, total, err := a.svc.ListUsers(r.Context(), filter)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 20
	}
	pages := (total + filter.PerPage - 1) / filter.PerPage
	writeOK(w, http.StatusOK, map[string]any{
		"users": users,
		"pagination": pagination{
			Page:       filter.Page,
			PerPage:    filter.PerPage,
			TotalItems: total,
			TotalPages: pages,
		},
	})
}

// handleUserResource dispatches /users/{id} and
// /users/{id}/role-permissions.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleUserDetail(w, r, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "role-permissions":
		a.handleUserRolePermissions(w, r, parts[0])
	default:
		a.handleNotFound(w, r)
	}
}

func (a *API) handleUserDetail(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	_, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if !ensurePermissions(w, r, permUsersRead, permUsersEdit) {
		return
	}
	detail, err := a.svc.UserDetail(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"user": detail})
}

type rolePermissionsRequest struct {
	RoleID      string          `json:"roleId"`
	Permissions map[string]bool `json:"permissions"`
}

// handleUserRolePermissions reconciles a user's role and direct grants
// against the submitted desired state.
func (a *API) handleUserRolePermissions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	_, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if !ensurePermissions(w, r, permUsersRead, permUsersEdit) {
		return
	}
	var req rolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ApplyRoleAndPermissions(r.Context(), userID, req.RoleID, req.Permissions); err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.Audit(r.Context(), "user.role_permissions.update", map[string]any{
		"user_id": userID,
		"role_id": req.RoleID,
	})
	writeOK(w, http.StatusOK, nil)
}

type updateMeRequest struct {
	DisplayName string `json:"displayName"`
}

// handleMe lets the authenticated user update their own profile.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	principal, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	var req updateMeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.UpdateDisplayName(r.Context(), principal.User.ID, req.DisplayName); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

// handleMePermissions returns the caller's effective permission map, the
// same oracle the gates consult.
func (a *API) handleMePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, _, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"permissions": principal.Permissions})
}
