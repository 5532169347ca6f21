// Package audit records authentication outcomes for forensic traceability.
// Entries are appended to the tenant's log table and mirrored as structured
// JSON events; they are never consulted for access control decisions.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"portier.dev/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Outcome values stored in Entry.Status.
const (
	StatusDenied = 0
	StatusOK     = 1
)

// Entry is a single audit record.
type Entry struct {
	ID          string
	Timestamp   time.Time
	PrincipalID int64
	ClientIP    string
	Action      string
	TargetType  string
	TargetID    int64
	Status      int
	Message     string
}

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes a structured audit event enriched with request context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// LogRecorder is a Recorder that only emits JSON events. Used when no durable
// audit storage is wired, and in tests.
type LogRecorder struct{}

func (LogRecorder) Record(ctx context.Context, entry *Entry) error {
	return LogEvent(ctx, entry.Action, map[string]any{
		"principal_id": entry.PrincipalID,
		"client_ip":    entry.ClientIP,
		"target_type":  entry.TargetType,
		"target_id":    entry.TargetID,
		"status":       entry.Status,
		"message":      entry.Message,
	})
}
