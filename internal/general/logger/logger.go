package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// ----- Public wire types -----

// ErrorObject is emitted only for error and warn logs.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// LogEntry is the single-line JSON format written to the sink.
type LogEntry struct {
	Timestamp      string       `json:"timestamp"`                 // ISO 8601 format timestamp
	Level          string       `json:"level"`                     // DEBUG | INFO | WARN | ERROR
	Service        string       `json:"service"`                   // service name (e.g., geofence-service)
	Action         string       `json:"action"`                    // event name (e.g., position_processed)
	Message        string       `json:"message"`                   // human-readable description
	Hostname       string       `json:"hostname"`                  // service hostname
	RequestID      string       `json:"request_id,omitempty"`      // correlation ID for tracing
	VehicleID      string       `json:"vehicle_id,omitempty"`      // vehicle identifier (when applicable)
	OrganizationID string       `json:"organization_id,omitempty"` // tenant (when applicable)
	Details        any          `json:"details,omitempty"`         // optional: extra fields (map or struct)
	Error          *ErrorObject `json:"error,omitempty"`           // optional: error details
}

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// ----- Logger -----

type Logger struct {
	service  string
	hostname string
	out      io.Writer
	debug    bool
	mu       sync.Mutex
}

// New creates a structured logger for the given service writing to stdout.
func New(service string) *Logger {
	return NewWithWriter(service, os.Stdout)
}

// NewWithWriter creates a logger writing JSON lines to w.
func NewWithWriter(service string, w io.Writer) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}

	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}
	if w == nil {
		w = io.Discard
	}

	return &Logger{service: service, hostname: hn, out: w, debug: true}
}

// Discard returns a logger that drops every line. Handy in tests.
func Discard() *Logger {
	return NewWithWriter("discard", io.Discard)
}

// SetDebug toggles DEBUG output.
func (l *Logger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

// emit marshals and writes a single JSON line.
func (l *Logger) emit(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Level == LevelDebug && !l.debug {
		return
	}

	b, err := json.Marshal(e)
	if err == nil {
		fmt.Fprintln(l.out, string(b))
		return
	}

	// retry once without Details (common source of marshal errors)
	e.Details = nil
	if b, err := json.Marshal(e); err == nil {
		fmt.Fprintln(l.out, string(b))
		return
	}

	fallback := map[string]any{
		"timestamp": nowISO(),
		"level":     LevelError,
		"service":   l.service,
		"action":    "logger_marshal_failed",
		"message":   "failed to encode log entry",
		"hostname":  l.hostname,
		"error":     ErrorObject{Msg: strings.TrimSpace(err.Error())},
	}

	if fb, err := json.Marshal(fallback); err == nil {
		fmt.Fprintln(l.out, string(fb))
	} else {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
	}
}

func (l *Logger) entry(ctx context.Context, level, action, msg string, details any) LogEntry {
	return LogEntry{
		Timestamp:      nowISO(),
		Level:          level,
		Service:        l.service,
		Action:         safeAction(action),
		Message:        strings.TrimSpace(msg),
		Hostname:       l.hostname,
		RequestID:      fromCtx(ctx, ctxKeyRequestID),
		VehicleID:      fromCtx(ctx, ctxKeyVehicleID),
		OrganizationID: fromCtx(ctx, ctxKeyOrgID),
		Details:        details,
	}
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.emit(l.entry(ctx, LevelDebug, action, msg, details))
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.emit(l.entry(ctx, LevelInfo, action, msg, details))
}

// Warn writes a WARN line. The error message is attached without a stack.
func (l *Logger) Warn(ctx context.Context, action, msg string, err error, details any) {
	e := l.entry(ctx, LevelWarn, action, msg, details)
	if err != nil {
		e.Error = &ErrorObject{Msg: strings.TrimSpace(err.Error())}
	}
	l.emit(e)
}

// Error writes an ERROR line and attaches an error stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}

	e := l.entry(ctx, LevelError, action, msg, details)
	e.Error = &ErrorObject{
		Msg:   strings.TrimSpace(err.Error()),
		Stack: string(debug.Stack()),
	}
	l.emit(e)
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "geofence_request_id"
	ctxKeyVehicleID ctxKey = "geofence_vehicle_id"
	ctxKeyOrgID     ctxKey = "geofence_organization_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	return withValue(ctx, ctxKeyRequestID, reqID)
}

// WithVehicleID returns a new context carrying vehicle_id.
func (l *Logger) WithVehicleID(ctx context.Context, vehicleID string) context.Context {
	return withValue(ctx, ctxKeyVehicleID, vehicleID)
}

// WithOrganizationID returns a new context carrying organization_id.
func (l *Logger) WithOrganizationID(ctx context.Context, orgID string) context.Context {
	return withValue(ctx, ctxKeyOrgID, orgID)
}

// RequestID extracts request_id from ctx (if any).
func RequestID(ctx context.Context) string {
	return fromCtx(ctx, ctxKeyRequestID)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if strings.TrimSpace(v) == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func fromCtx(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// ----- Small utilities -----

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
