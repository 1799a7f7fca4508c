package obs

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

type auditCtxKey struct{}

// WithAuditActor attaches the acting user id to the context so that audit
// entries emitted further down the call chain carry it.
func WithAuditActor(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, auditCtxKey{}, userID)
}

func auditActor(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(auditCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// Audit writes an append-only audit event for a state-changing operation.
func Audit(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if actor := auditActor(ctx); actor != "" {
		entry["actor_id"] = actor
	}
	if len(fields) > 0 {
		entry["fields"] = fields
	} else {
		entry["fields"] = map[string]any{}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	Logger().Println(string(data))
	return nil
}
