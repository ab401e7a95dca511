//
//
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AnonymousTalent/opsradar/internal/dispatch"
	"github.com/AnonymousTalent/opsradar/internal/hub"
)

// Actions recorded in the trail.
const (
	ActionSessionOpen    = "session.open"
	ActionSessionClose   = "session.close"
	ActionDeliveryFailed = "session.delivery_failed"
	ActionDispatch       = "dispatch"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	Action    string                 `json:"action"`
	Subject   string                 `json:"subject,omitempty"`
	Target    string                 `json:"target"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
}

// Config controls the audit file and its rotation.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger implements hub.Observer and dispatch.Observer.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
	c   io.Closer
	now func() time.Time
	log zerolog.Logger
}

var (
	_ hub.Observer      = (*Logger)(nil)
	_ dispatch.Observer = (*Logger)(nil)
)

// NewLogger opens a rotating audit file at cfg.Path.
func NewLogger(cfg Config, log zerolog.Logger) (*Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit: path required")
	}
	rot := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	// Open eagerly so a bad path fails at startup.
	if _, err := rot.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	l := NewLoggerWithWriter(rot, log)
	l.c = rot
	return l, nil
}

// NewLoggerWithWriter writes entries to w.
func NewLoggerWithWriter(w io.Writer, log zerolog.Logger) *Logger {
	return &Logger{
		out: w,
		now: func() time.Time { return time.Now().UTC() },
		log: log.With().Str("component", "audit").Logger(),
	}
}

// SessionOpened records a new telemetry session.
func (l *Logger) SessionOpened(info hub.SessionInfo) {
	l.write(Entry{
		Action:  ActionSessionOpen,
		Subject: info.Subject,
		Target:  info.ID,
		Params:  map[string]interface{}{"remoteAddr": info.RemoteAddr},
		Outcome: "opened",
		Code:    "SUCCESS",
	})
}

// SessionClosed records a session teardown with its reason.
func (l *Logger) SessionClosed(info hub.SessionInfo, reason string) {
	l.write(Entry{
		Action:  ActionSessionClose,
		Subject: info.Subject,
		Target:  info.ID,
		Params: map[string]interface{}{
			"durationMs": l.now().Sub(info.CreatedAt).Milliseconds(),
		},
		Outcome: reason,
		Code:    codeForReason(reason),
	})
}

// FrameDelivered is not audited.
func (l *Logger) FrameDelivered() {}

// DeliveryFailed records the write error that ended a session.
func (l *Logger) DeliveryFailed(info hub.SessionInfo, err error) {
	l.write(Entry{
		Action:  ActionDeliveryFailed,
		Subject: info.Subject,
		Target:  info.ID,
		Params:  map[string]interface{}{"error": err.Error()},
		Outcome: "failed",
		Code:    "UNAVAILABLE",
	})
}

// DispatchAttempted records a simulator decision.
func (l *Logger) DispatchAttempted(d dispatch.Dispatch) {
	e := Entry{
		Action:  ActionDispatch,
		Target:  d.OrderID,
		Outcome: d.Message,
		Code:    "SUCCESS",
	}
	switch {
	case d.Assigned:
		e.Params = map[string]interface{}{"riderId": d.RiderID, "score": d.Score}
	case d.Restarted:
		e.Code = "RESTARTED"
	default:
		e.Code = "NO_RIDER"
	}
	l.write(e)
}

func codeForReason(reason string) string {
	switch reason {
	case hub.ReasonUnregistered, hub.ReasonTransportClosed, hub.ReasonShutdown:
		return "SUCCESS"
	case hub.ReasonDeliveryFailed:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// write appends one JSON line. Failures are logged, never returned, so
// auditing cannot stall delivery.
func (l *Logger) write(e Entry) {
	e.Timestamp = l.now()

	data, err := json.Marshal(e)
	if err != nil {
		l.log.Error().Err(err).Str("action", e.Action).Msg("marshal audit entry")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		l.log.Error().Err(err).Str("action", e.Action).Msg("write audit entry")
	}
}

// Close closes the audit file. Later entries are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = nil
	if l.c != nil {
		err := l.c.Close()
		l.c = nil
		return err
	}
	return nil
}

// SetClock overrides the timestamp source.
func (l *Logger) SetClock(now func() time.Time) { l.now = now }

