package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rolegate.org/internal/auth"
	"rolegate.org/internal/obs"
)

const sessionCookieName = "rolegate_session"

func (a *API) setSessionCookie(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// csrfProtect enforces the double-submit protocol on every state-changing
// request: the Origin header must match the serving host or the configured
// allowlist, and the X-Csrf-Token header must carry a token minted by this
// server. Safe methods pass through untouched.
func (a *API) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		if origin == "" || !originAllowed(origin, r.Host, a.cfg.AllowedOrigins) {
			writeError(w, r, http.StatusForbidden, "invalid request origin")
			return
		}
		token := r.Header.Get("X-Csrf-Token")
		if !auth.ValidateCSRFToken(token, a.cfg.TokenSecret) {
			writeError(w, r, http.StatusForbidden, "invalid csrf token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed accepts an origin whose host equals the request host or any
// allowlisted origin. Entries may be bare hosts or full origins.
func originAllowed(origin, host string, allowed []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Host == host {
		return true
	}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if au, err := url.Parse(entry); err == nil && au.Host != "" {
			if u.Host == au.Host {
				return true
			}
			continue
		}
		if u.Host == entry {
			return true
		}
	}
	return false
}

// authenticate resolves the session cookie to a principal. On success it
// returns the request rebound to a context carrying the principal and audit
// actor; a rotated session is propagated back as a fresh cookie. On failure
// it writes the 401 (clearing a dead cookie) and returns ok=false.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (auth.Principal, *http.Request, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return auth.Principal{}, r, false
	}
	ctx := r.Context()
	res, err := a.svc.ValidateSession(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			a.clearSessionCookie(w)
			writeError(w, r, http.StatusUnauthorized, "not authenticated")
		} else {
			handleAuthError(w, r, err)
		}
		return auth.Principal{}, r, false
	}
	if res.Rotated {
		a.setSessionCookie(w, res.Session)
	}

	perms, err := a.svc.EffectivePermissions(ctx, res.User.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return auth.Principal{}, r, false
	}
	principal := auth.Principal{User: res.User, Session: res.Session, Permissions: perms}
	if res.User.RoleID != "" {
		role, err := a.svc.Role(ctx, res.User.RoleID)
		switch {
		case err == nil:
			principal.RoleName = role.Name
		case !errors.Is(err, auth.ErrNotFound):
			handleAuthError(w, r, err)
			return auth.Principal{}, r, false
		}
	}

	ctx = auth.ContextWithPrincipal(ctx, principal)
	ctx = obs.WithAuditActor(ctx, res.User.ID)
	return principal, r.WithContext(ctx), true
}

// currentSession reports whether the request carries a valid session without
// failing the request when it does not. Rotation still applies.
func (a *API) currentSession(w http.ResponseWriter, r *http.Request) (auth.SessionValidation, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return auth.SessionValidation{}, false
	}
	res, err := a.svc.ValidateSession(r.Context(), cookie.Value)
	if err != nil {
		return auth.SessionValidation{}, false
	}
	if res.Rotated {
		a.setSessionCookie(w, res.Session)
	}
	return res, true
}

// ensurePermissions gates a handler on the principal holding every named
// permission. It writes the error response itself and reports whether the
// handler may proceed.
func ensurePermissions(w http.ResponseWriter, r *http.Request, names ...string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return false
	}
	for _, name := range names {
		if !principal.HasPermission(name) {
			writeError(w, r, http.StatusForbidden, "not authorized")
			return false
		}
	}
	return true
}

// ensureAdminRole gates the role and permission administration surface on
// the ADMIN role itself rather than on individual permissions.
func ensureAdminRole(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return false
	}
	if principal.RoleName != auth.RoleAdmin {
		writeError(w, r, http.StatusForbidden, "not authorized")
		return false
	}
	return true
}
