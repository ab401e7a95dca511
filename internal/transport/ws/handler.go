//
//
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/AnonymousTalent/opsradar/internal/auth"
	"github.com/AnonymousTalent/opsradar/internal/hub"
)

// Registrar accepts new sessions. *hub.Registry satisfies it.
type Registrar interface {
	Register(t hub.Transport, info hub.SessionInfo) (*hub.Session, error)
}

var _ Registrar = (*hub.Registry)(nil)

// DefaultCloseTimeout bounds the close handshake with a viewer.
const DefaultCloseTimeout = 2 * time.Second

// Handler upgrades requests and hands the connection to the registry.
type Handler struct {
	registry     Registrar
	origins      []string
	closeTimeout time.Duration
	log          zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithOriginPatterns allows cross-origin upgrades from hosts matching the
// patterns (path.Match syntax, e.g. "*.example.com"). Same-origin is always
// allowed.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = append(h.origins, patterns...) }
}

// WithCloseTimeout sets how long a close handshake may take before the
// connection is dropped.
func WithCloseTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.closeTimeout = d
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.log = l.With().Str("component", "ws").Logger() }
}

// NewHandler creates a push handler registering sessions with reg.
func NewHandler(reg Registrar, opts ...Option) *Handler {
	h := &Handler{registry: reg, closeTimeout: DefaultCloseTimeout, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Server-wide timeouts must not cut the long-lived connection.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept has already written the HTTP error.
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade rejected")
		return
	}

	ctx := c.CloseRead(context.WithoutCancel(r.Context()))
	t := &conn{c: c, ctx: ctx, closeTimeout: h.closeTimeout}

	sess, err := h.registry.Register(t, hub.SessionInfo{
		RemoteAddr: r.RemoteAddr,
		Subject:    auth.SubjectFromContext(r.Context()),
	})
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("session rejected")
		status := websocket.StatusInternalError
		if errors.Is(err, hub.ErrRegistryClosed) {
			status = websocket.StatusGoingAway
		}
		_ = c.Close(status, "session rejected")
		return
	}

	<-sess.Done()
}

// conn adapts a websocket connection to hub.Transport.
type conn struct {
	c            *websocket.Conn
	ctx          context.Context
	closeTimeout time.Duration
}

// Send writes frame as one text message.
func (t *conn) Send(ctx context.Context, frame []byte) error {
	return t.c.Write(ctx, websocket.MessageText, frame)
}

// Close sends a close frame matching reason. A broken connection is dropped
// without the handshake.
func (t *conn) Close(reason string) error {
	var status websocket.StatusCode
	switch reason {
	case hub.ReasonDeliveryFailed, hub.ReasonTransportClosed:
		return t.c.CloseNow()
	case hub.ReasonShutdown:
		status = websocket.StatusGoingAway
	default:
		status = websocket.StatusNormalClosure
	}

	done := make(chan error, 1)
	go func() { done <- t.c.Close(status, reason) }()

	timer := time.NewTimer(t.closeTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			_ = t.c.CloseNow()
		}
		return err
	case <-timer.C:
		// Unblocks the pending Close.
		_ = t.c.CloseNow()
		return fmt.Errorf("close handshake timed out after %v", t.closeTimeout)
	}
}

// Done fires when the peer goes away or breaks protocol.
func (t *conn) Done() <-chan struct{} { return t.ctx.Done() }
