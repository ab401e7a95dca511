//
//
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnonymousTalent/opsradar/internal/hub"
	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

// Generator produces snapshots for a module list.
type Generator interface {
	Generate(ctx context.Context, names []string) (telemetry.Snapshot, error)
}

// Broadcaster fans a snapshot out to connected sessions.
type Broadcaster interface {
	Broadcast(ctx context.Context, snap telemetry.Snapshot) (hub.BroadcastResult, error)
}

// Observer is notified of tick outcomes.
type Observer interface {
	TickSucceeded(res hub.BroadcastResult, took time.Duration)
	TickFailed(err error)
}

// Config holds scheduler settings.
type Config struct {
	Interval time.Duration
	Modules  []string
}

// Scheduler ticks once immediately and then every Interval. Each tick
// generates one snapshot and broadcasts it.
type Scheduler struct {
	cfg       Config
	gen       Generator
	out       Broadcaster
	log       zerolog.Logger
	observers []Observer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l.With().Str("component", "scheduler").Logger() }
}

// WithObserver adds a tick observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// New validates cfg and creates a scheduler.
func New(cfg Config, gen Generator, out Broadcaster, opts ...Option) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("broadcast: interval must be positive, got %v", cfg.Interval)
	}
	if err := telemetry.ValidateModules(cfg.Modules); err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	if gen == nil || out == nil {
		return nil, errors.New("broadcast: generator and broadcaster are required")
	}

	s := &Scheduler{
		cfg: Config{Interval: cfg.Interval, Modules: append([]string(nil), cfg.Modules...)},
		gen: gen,
		out: out,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run blocks until ctx is cancelled. Tick failures are logged and the loop
// keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.cfg.Interval).Strs("modules", s.cfg.Modules).Msg("scheduler started")

	// First tick must not wait a full period
	_, _ = s.TickOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			_, _ = s.TickOnce(ctx)
		}
	}
}

// TickOnce generates one snapshot and broadcasts it. If generation fails,
// nothing is broadcast.
func (s *Scheduler) TickOnce(ctx context.Context) (hub.BroadcastResult, error) {
	start := time.Now()

	snap, err := s.gen.Generate(ctx, s.cfg.Modules)
	if err != nil {
		return hub.BroadcastResult{}, s.failed(ctx, fmt.Errorf("generate snapshot: %w", err))
	}

	res, err := s.out.Broadcast(ctx, snap)
	if err != nil {
		return res, s.failed(ctx, fmt.Errorf("broadcast snapshot: %w", err))
	}

	took := time.Since(start)
	s.log.Debug().
		Uint64("seq", res.Seq).
		Int("delivered", res.Delivered).
		Int("failed", res.Failed).
		Dur("took", took).
		Msg("tick")
	for _, o := range s.observers {
		o.TickSucceeded(res, took)
	}
	return res, nil
}

func (s *Scheduler) failed(ctx context.Context, err error) error {
	// Shutdown is not a tick failure
	if ctx.Err() != nil {
		return err
	}
	s.log.Error().Err(err).Msg("tick skipped")
	for _, o := range s.observers {
		o.TickFailed(err)
	}
	return err
}
