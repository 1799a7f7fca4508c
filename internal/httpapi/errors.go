package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"rolegate.org/internal/auth"
	"rolegate.org/internal/obs"
)

// Error codes of the response envelope. The HTTP status carries the same
// information; the code is for clients that only look at the body.
const (
	codeBadRequest     = "BAD_REQUEST"
	codeUnauthorized   = "UNAUTHORIZED"
	codeForbidden      = "FORBIDDEN"
	codeNotFound       = "NOT_FOUND"
	codeRequestTimeout = "REQUEST_TIMEOUT"
	codeConflict       = "CONFLICT"
	codeTooMany        = "TOO_MANY_REQUESTS"
	codeInternal       = "INTERNAL_SERVER_ERROR"
)

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return codeBadRequest
	case http.StatusUnauthorized:
		return codeUnauthorized
	case http.StatusForbidden:
		return codeForbidden
	case http.StatusNotFound:
		return codeNotFound
	case http.StatusRequestTimeout:
		return codeRequestTimeout
	case http.StatusConflict:
		return codeConflict
	case http.StatusTooManyRequests:
		return codeTooMany
	default:
		return codeInternal
	}
}

type errorResponse struct {
	OK        bool                `json:"ok"`
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Errors    map[string][]string `json:"errors,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK emits the success envelope; a nil data yields a bare {ok:true}.
func writeOK(w http.ResponseWriter, code int, data any) {
	if data == nil {
		writeJSON(w, code, map[string]any{"ok": true})
		return
	}
	writeJSON(w, code, map[string]any{"ok": true, "data": data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		OK:        false,
		Code:      codeForStatus(status),
		Message:   msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

var sentinelTexts = []string{
	"auth: invalid input",
	"auth: already exists",
	"auth: not found",
	"auth: unauthorized",
	"auth: forbidden",
}

// errorMessage strips the sentinel prefix from a wrapped auth error so the
// client sees only the business message, falling back when the error carries
// nothing beyond the sentinel itself.
func errorMessage(err error, fallback string) string {
	msg := err.Error()
	for _, text := range sentinelTexts {
		if msg == text {
			return fallback
		}
		if rest, ok := strings.CutPrefix(msg, text+": "); ok {
			return rest
		}
	}
	return fallback
}

// handleAuthError maps core errors onto the envelope. Unexpected failures
// are logged with detail server-side and surface as an opaque 500.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, errorMessage(err, "wrong data passed"))
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, errorMessage(err, "not authorized"))
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, errorMessage(err, "forbidden"))
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, errorMessage(err, "resource not found"))
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, errorMessage(err, "resource conflict"))
	default:
		obs.LogRequest(map[string]any{
			"level":      "error",
			"msg":        "operation failed",
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "something went wrong")
	}
}
