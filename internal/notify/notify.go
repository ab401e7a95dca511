//
//
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/AnonymousTalent/opsradar/internal/dispatch"
)

// Log writes dispatch decisions to a logger.
type Log struct {
	log zerolog.Logger
}

// NewLog creates a log notifier.
func NewLog(l zerolog.Logger) *Log {
	return &Log{log: l.With().Str("component", "notify").Logger()}
}

// Notify implements dispatch.Notifier.
func (n *Log) Notify(_ context.Context, d dispatch.Dispatch) error {
	n.log.Info().
		Str("order", d.OrderID).
		Str("rider", d.RiderID).
		Str("riderName", d.RiderName).
		Float64("score", d.Score).
		Msg(Message(d))
	return nil
}

// Multi notifies every wrapped notifier and joins their errors.
type Multi []dispatch.Notifier

// Notify implements dispatch.Notifier.
func (m Multi) Notify(ctx context.Context, d dispatch.Dispatch) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Message renders the human readable announcement for d.
func Message(d dispatch.Dispatch) string {
	if !d.Assigned {
		return "[dispatch] " + d.Message
	}
	return "[new dispatch] order " + d.OrderID + " assigned to " + d.RiderName + " (" + d.RiderID + ")"
}
