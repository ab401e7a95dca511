//
//
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

// Close reasons reported to observers and transports.
const (
	ReasonUnregistered    = "unregistered"
	ReasonTransportClosed = "transport closed"
	ReasonDeliveryFailed  = "delivery failed"
	ReasonShutdown        = "server shutdown"
)

// DefaultDeliveryTimeout bounds a single frame write.
const DefaultDeliveryTimeout = 5 * time.Second

// Observer receives session lifecycle and delivery events.
type Observer interface {
	SessionOpened(info SessionInfo)
	SessionClosed(info SessionInfo, reason string)
	FrameDelivered()
	DeliveryFailed(info SessionInfo, err error)
}

// BroadcastResult summarizes one fan-out.
type BroadcastResult struct {
	Seq       uint64
	Delivered int
	Failed    int
	Skipped   int
}

// Registry tracks connected sessions and fans snapshots out to them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seq      uint64
	latest   []byte
	latestSq uint64
	closed   bool

	log             zerolog.Logger
	observers       []Observer
	deliveryTimeout time.Duration

	wg sync.WaitGroup // watcher goroutines
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l.With().Str("component", "hub").Logger() }
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithDeliveryTimeout bounds each frame write.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.deliveryTimeout = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:        make(map[string]*Session),
		log:             zerolog.Nop(),
		deliveryTimeout: DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a session for t. The session is removed automatically when
// t.Done() fires. If a snapshot was broadcast before, it is sent right away.
func (r *Registry) Register(t Transport, info SessionInfo) (*Session, error) {
	if t == nil {
		return nil, errors.New("hub: nil transport")
	}
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}
	sess := newSession(info, t)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if _, exists := r.sessions[info.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("hub: session %s already registered", info.ID)
	}
	r.sessions[info.ID] = sess
	latest, latestSeq := r.latest, r.latestSq
	count := len(r.sessions)
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info().Str("session", info.ID).Str("remote", info.RemoteAddr).Int("sessions", count).Msg("session registered")
	for _, o := range r.observers {
		o.SessionOpened(info)
	}

	go r.watch(sess)

	// Send initial frame so the viewer does not wait a full period
	if latest != nil {
		r.deliverOne(context.Background(), sess, latestSeq, latest)
	}

	return sess, nil
}

// watch unregisters the session when its transport ends.
func (r *Registry) watch(sess *Session) {
	defer r.wg.Done()
	select {
	case <-sess.transport.Done():
		r.remove(sess.ID(), ReasonTransportClosed)
	case <-sess.Done():
	}
}

// Unregister removes the session. It is idempotent: it returns false when
// the session is not registered. Once it returns, no further frame is sent
// to the session.
func (r *Registry) Unregister(id string) bool {
	return r.remove(id, ReasonUnregistered)
}

func (r *Registry) remove(id, reason string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return false
	}

	// Waits for an in-flight delivery to this session
	if !sess.close(reason) {
		return false
	}

	r.log.Info().Str("session", id).Str("reason", reason).Int("sessions", count).Msg("session unregistered")
	for _, o := range r.observers {
		o.SessionClosed(sess.Info(), reason)
	}
	return true
}

// Broadcast encodes snap once and delivers it to every registered session.
// Deliveries run concurrently and are isolated: a failing session is
// unregistered without affecting the others. Broadcast returns once every
// attempt has finished.
func (r *Registry) Broadcast(ctx context.Context, snap telemetry.Snapshot) (BroadcastResult, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return BroadcastResult{}, ErrRegistryClosed
	}
	r.seq++
	snap.Seq = r.seq
	frame, err := telemetry.EncodeFrame(snap)
	if err != nil {
		r.mu.Unlock()
		return BroadcastResult{Seq: snap.Seq}, fmt.Errorf("encode snapshot: %w", err)
	}
	r.latest, r.latestSq = frame, snap.Seq
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	res := BroadcastResult{Seq: snap.Seq}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			outcome := r.deliverOne(ctx, sess, snap.Seq, frame)
			mu.Lock()
			switch outcome {
			case outcomeDelivered:
				res.Delivered++
			case outcomeFailed:
				res.Failed++
			default:
				res.Skipped++
			}
			mu.Unlock()
		}(sess)
	}
	wg.Wait()

	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDelivered
	outcomeFailed
)

// deliverOne writes one frame to sess, unregistering it on failure. A panic
// in the transport is treated as a failure of that session only.
func (r *Registry) deliverOne(ctx context.Context, sess *Session, seq uint64, frame []byte) (res outcome) {
	defer func() {
		if p := recover(); p != nil {
			res = r.fail(sess, fmt.Errorf("transport panic: %v", p))
		}
	}()

	dctx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
	defer cancel()

	sent, err := sess.deliver(dctx, seq, frame)
	switch {
	case errors.Is(err, ErrSessionClosed):
		return outcomeSkipped
	case err != nil:
		return r.fail(sess, err)
	case !sent:
		return outcomeSkipped
	}

	for _, o := range r.observers {
		o.FrameDelivered()
	}
	return outcomeDelivered
}

func (r *Registry) fail(sess *Session, err error) outcome {
	r.log.Warn().Err(err).Str("session", sess.ID()).Msg("delivery failed")
	for _, o := range r.observers {
		o.DeliveryFailed(sess.Info(), err)
	}
	r.remove(sess.ID(), ReasonDeliveryFailed)
	return outcomeFailed
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns the registered sessions ordered by creation time.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close unregisters every session and rejects further registrations.
// It waits for every transport to close.
func (r *Registry) Close() {
	_ = r.Shutdown(context.Background())
}

// Shutdown closes every session concurrently and rejects further
// registrations. If ctx ends first it returns ctx.Err(); the remaining
// transports keep closing in the background.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.remove(id, ReasonShutdown)
			}()
		}
		wg.Wait()
		r.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.log.Warn().Int("sessions", len(ids)).Msg("shutdown deadline reached before all sessions closed")
		return ctx.Err()
	}
}
