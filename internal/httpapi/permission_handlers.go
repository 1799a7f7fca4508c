package httpapi

import "net/http"

// handlePermissions exposes the permission catalog. The catalog is seeded,
// never written through the API, so only GET exists.
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	_, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if !ensureAdminRole(w, r) {
		return
	}
	perms, err := a.svc.ListPermissions(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"permissions": perms})
}
