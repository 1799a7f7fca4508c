package httpapi

import (
	"context"
	"net/http"

	"rolegate.org/internal/auth"
	"rolegate.org/internal/obs"
)

// ReadyProbe reports whether downstream dependencies can serve traffic.
type ReadyProbe func(ctx context.Context) error

// Config carries the HTTP-surface knobs.
type Config struct {
	// TokenSecret signs csrf tokens. Required.
	TokenSecret string
	// AllowedOrigins lists browser origins accepted for CORS and the csrf
	// origin check, in addition to the serving host itself.
	AllowedOrigins []string
	// SecureCookies marks session cookies Secure; enable everywhere TLS
	// terminates in front of the service.
	SecureCookies bool
	// RatePerSecond and RateBurst shape the per-client token bucket.
	RatePerSecond float64
	RateBurst     int
	// Version and Commit are surfaced on /v1/info.
	Version string
	Commit  string
}

// API is the HTTP surface over the auth service.
type API struct {
	mux   *http.ServeMux
	svc   *auth.Service
	ready ReadyProbe
	cfg   Config
}

func New(svc *auth.Service, ready ReadyProbe, cfg Config) *API {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 50
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 100
	}
	a := &API{mux: http.NewServeMux(), svc: svc, ready: ready, cfg: cfg}

	a.mux.HandleFunc("/csrf", a.handleCSRF)
	a.mux.HandleFunc("/signup", a.handleSignUp)
	a.mux.HandleFunc("/signin", a.handleSignIn)
	a.mux.HandleFunc("/signout", a.handleSignOut)
	a.mux.HandleFunc("/session", a.handleSession)
	a.mux.HandleFunc("/me", a.handleMe)
	a.mux.HandleFunc("/me/permissions", a.handleMePermissions)
	a.mux.HandleFunc("/users", a.handleUsers)
	a.mux.HandleFunc("/users/", a.handleUserResource)
	a.mux.HandleFunc("/roles", a.handleRoles)
	a.mux.HandleFunc("/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/permissions", a.handlePermissions)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", a.handleNotFound)
	return a
}

// Handler wraps the mux with the full middleware chain. Order matters: the
// request id must exist before logging, and csrf runs after CORS so
// preflights never hit it.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.csrfProtect(h)
	h = RateLimit(h, a.cfg.RatePerSecond, a.cfg.RateBurst)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.cfg.AllowedOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "resource not found")
}
