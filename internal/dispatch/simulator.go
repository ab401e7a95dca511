//
//
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnonymousTalent/opsradar/internal/ledger"
)

// ErrNoOrders is returned by Step when the seed yields no orders.
var ErrNoOrders = errors.New("no orders to dispatch")

// Notifier announces a dispatch decision.
type Notifier interface {
	Notify(ctx context.Context, d Dispatch) error
}

// Recorder persists a dispatch decision.
type Recorder interface {
	Record(ctx context.Context, rec ledger.Record) error
}

// Observer is told about every dispatch attempt.
type Observer interface {
	DispatchAttempted(d Dispatch)
}

// Status messages shown as latest_dispatch.
const (
	msgRestarted = "all orders dispatched, restarting cycle"
)

func assignedMessage(orderID, rider string) string {
	return fmt.Sprintf("order %s assigned to %s", orderID, rider)
}

func unassignedMessage(orderID string) string {
	return fmt.Sprintf("order %s: no suitable rider", orderID)
}

// Simulator owns the order queue and rider list.
type Simulator struct {
	mu     sync.RWMutex
	orders []Order
	riders []Rider
	latest string

	seed      SeedFunc
	interval  time.Duration
	notifier  Notifier
	recorder  Recorder
	observers []Observer
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithNotifier sets the dispatch notifier.
func WithNotifier(n Notifier) Option { return func(s *Simulator) { s.notifier = n } }

// WithRecorder sets the dispatch ledger.
func WithRecorder(r Recorder) Option { return func(s *Simulator) { s.recorder = r } }

// WithObserver adds a dispatch observer.
func WithObserver(o Observer) Option {
	return func(s *Simulator) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithLogger sets the simulator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Simulator) { s.log = l.With().Str("component", "dispatch").Logger() }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Simulator) { s.now = now } }

// NewSimulator loads the initial seed and returns a simulator ready to Run.
func NewSimulator(interval time.Duration, seed SeedFunc, opts ...Option) (*Simulator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("dispatch: interval must be positive, got %v", interval)
	}
	if seed == nil {
		return nil, errors.New("dispatch: seed is required")
	}

	s := &Simulator{
		seed:     seed,
		interval: interval,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	initial, err := seed()
	if err != nil {
		return nil, fmt.Errorf("dispatch: load seed: %w", err)
	}
	s.orders = append([]Order(nil), initial.Orders...)
	s.riders = append([]Rider(nil), initial.Riders...)
	s.log.Info().Int("orders", len(s.orders)).Int("riders", len(s.riders)).Msg("dispatch simulator seeded")
	return s, nil
}

// Run steps every interval until ctx is cancelled. The first step happens
// one interval after start.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Step(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("dispatch step failed")
			}
		}
	}
}

// Step dispatches the head order to the best rider.
func (s *Simulator) Step(ctx context.Context) (Dispatch, error) {
	restarted, err := s.refill()
	if err != nil {
		return Dispatch{}, err
	}

	s.mu.RLock()
	if len(s.orders) == 0 {
		s.mu.RUnlock()
		return Dispatch{}, ErrNoOrders
	}
	head := s.orders[0]
	riders := append([]Rider(nil), s.riders...)
	s.mu.RUnlock()

	d := Dispatch{OrderID: head.ID, Restarted: restarted, At: s.now()}

	best, score, ok := BestRider(head, riders)
	if !ok {
		d.Message = unassignedMessage(head.ID)
		s.setLatest(d.Message)
		s.log.Info().Str("order", head.ID).Msg("no rider available")
		s.observe(d)
		return d, nil
	}

	d.Assigned = true
	d.RiderID, d.RiderName = best.ID, best.Name
	d.Score, d.Distance = score, Distance(head, best)
	d.Message = assignedMessage(head.ID, best.Name)

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, d); err != nil {
			s.log.Warn().Err(err).Str("order", head.ID).Msg("dispatch notification failed")
		}
	}
	if s.recorder != nil {
		rec := ledger.Record{
			Timestamp: d.At,
			OrderID:   d.OrderID,
			RiderID:   d.RiderID,
			RiderName: d.RiderName,
			Score:     d.Score,
			Success:   true,
		}
		if err := s.recorder.Record(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("order", head.ID).Msg("dispatch record failed")
		}
	}

	s.mu.Lock()
	if len(s.orders) > 0 && s.orders[0].ID == head.ID {
		s.orders = s.orders[1:]
	}
	s.latest = d.Message
	s.mu.Unlock()

	s.log.Info().Str("order", head.ID).Str("rider", best.Name).Float64("score", score).Msg("order dispatched")
	s.observe(d)
	return d, nil
}

// refill reloads orders from the seed when the queue is empty.
func (s *Simulator) refill() (bool, error) {
	s.mu.RLock()
	empty := len(s.orders) == 0
	s.mu.RUnlock()
	if !empty {
		return false, nil
	}

	next, err := s.seed()
	if err != nil {
		return false, fmt.Errorf("dispatch: reload seed: %w", err)
	}
	if len(next.Orders) == 0 {
		return false, ErrNoOrders
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.orders) == 0 {
		s.orders = append([]Order(nil), next.Orders...)
		s.latest = msgRestarted
	}
	s.log.Info().Int("orders", len(s.orders)).Msg(msgRestarted)
	return true, nil
}

func (s *Simulator) setLatest(msg string) {
	s.mu.Lock()
	s.latest = msg
	s.mu.Unlock()
}

func (s *Simulator) observe(d Dispatch) {
	for _, o := range s.observers {
		o.DispatchAttempted(d)
	}
}

// MapSnapshot returns a copy of the current map state.
func (s *Simulator) MapSnapshot(ctx context.Context) (MapSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return MapSnapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MapSnapshot{
		Orders:         append(make([]Order, 0, len(s.orders)), s.orders...),
		Riders:         append(make([]Rider, 0, len(s.riders)), s.riders...),
		LatestDispatch: s.latest,
	}, nil
}

// Pending returns the number of undispatched orders.
func (s *Simulator) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
