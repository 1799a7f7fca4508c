package httpapi

import (
	"net/http"

	"rolegate.org/internal/auth"
	"rolegate.org/internal/obs"
)

// handleCSRF mints a stateless anti-forgery token. GET is deliberate: the
// token endpoint itself must be reachable before any token exists.
func (a *API) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := auth.CreateCSRFToken(a.cfg.TokenSecret)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"csrfToken": token})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.currentSession(w, r); ok {
		writeError(w, r, http.StatusForbidden, "already signed in")
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, sess, err := a.svc.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	detail, err := a.svc.UserDetail(r.Context(), user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	obs.Audit(obs.WithAuditActor(r.Context(), user.ID), "auth.signup", map[string]any{"email": user.Email})
	writeOK(w, http.StatusCreated, map[string]any{"user": detail})
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.currentSession(w, r); ok {
		writeError(w, r, http.StatusForbidden, "already signed in")
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, sess, err := a.svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	detail, err := a.svc.UserDetail(r.Context(), user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	obs.Audit(obs.WithAuditActor(r.Context(), user.ID), "auth.signin", map[string]any{"email": user.Email})
	writeOK(w, http.StatusOK, map[string]any{"user": detail})
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	if err := a.svc.InvalidateSession(r.Context(), principal.Session.ID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearSessionCookie(w)
	obs.Audit(r.Context(), "auth.signout", nil)
	writeOK(w, http.StatusOK, nil)
}

// handleSession returns the authenticated user with role and permission
// detail, renewing the session cookie as a side effect when it is stale.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, r, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	detail, err := a.svc.UserDetail(r.Context(), principal.User.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"user": detail})
}
