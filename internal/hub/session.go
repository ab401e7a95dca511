//
//
package hub

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionClosed is returned when delivering to an unregistered session.
	ErrSessionClosed = errors.New("session closed")

	// ErrRegistryClosed is returned by Register after Close.
	ErrRegistryClosed = errors.New("registry closed")
)

// Transport is the per-viewer connection the registry writes frames to.
type Transport interface {
	// Send writes one frame. An error means the viewer is gone.
	Send(ctx context.Context, frame []byte) error
	// Close tears the connection down.
	Close(reason string) error
	// Done is closed when the connection ends on its own.
	Done() <-chan struct{}
}

// SessionInfo describes a session. It is safe to copy.
type SessionInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Session is one registered viewer.
//
// LOCK ORDERING: Registry.mu is never held while Session.mu is taken.
type Session struct {
	info      SessionInfo
	transport Transport

	mu      sync.Mutex // serializes delivery and close
	closed  bool
	lastSeq uint64

	stop     chan struct{}
	stopOnce sync.Once
}

func newSession(info SessionInfo, t Transport) *Session {
	return &Session{
		info:      info,
		transport: t,
		stop:      make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.info.ID }

// Info returns a copy of the session description.
func (s *Session) Info() SessionInfo { return s.info }

// Done is closed once the session has been unregistered.
func (s *Session) Done() <-chan struct{} { return s.stop }

// deliver sends frame unless the session is closed or already saw a newer seq.
// It reports whether the frame was written.
func (s *Session) deliver(ctx context.Context, seq uint64, frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrSessionClosed
	}
	if seq != 0 && seq <= s.lastSeq {
		return false, nil
	}

	if err := s.transport.Send(ctx, frame); err != nil {
		return false, err
	}
	if seq != 0 {
		s.lastSeq = seq
	}
	return true, nil
}

// close marks the session closed and closes the transport. It waits for any
// in-flight delivery to finish. Only the first call has an effect.
func (s *Session) close(reason string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	_ = s.transport.Close(reason)
	return true
}
