//
//
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MetricsSource produces raw per-module values. Implementations may be
// simulated or backed by real telemetry.
type MetricsSource interface {
	Sample(ctx context.Context, names []string) (Snapshot, error)
}

// Clock abstracts the time source.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

type namedSource interface {
	Name() string
}

// Generator turns source samples into validated snapshots.
type Generator struct {
	source MetricsSource
	clock  Clock
}

// NewGenerator creates a generator. A nil clock defaults to RealClock.
func NewGenerator(source MetricsSource, clock Clock) *Generator {
	if clock == nil {
		clock = RealClock{}
	}
	return &Generator{source: source, clock: clock}
}

// Generate produces one snapshot with exactly one status and one stat per
// name, in the order given. It never returns a partial snapshot: source
// failures come back as *SourceError and invalid samples as ErrMalformedSample.
func (g *Generator) Generate(ctx context.Context, names []string) (Snapshot, error) {
	if err := ValidateModules(names); err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	sample, err := g.source.Sample(ctx, names)
	if err != nil {
		var se *SourceError
		if errors.As(err, &se) {
			return Snapshot{}, err
		}
		return Snapshot{}, &SourceError{Source: sourceName(g.source), Err: err}
	}

	if err := checkSample(sample, names); err != nil {
		return Snapshot{}, err
	}

	snap := sample.Clone()
	for i := range snap.Stats {
		snap.Stats[i].SuccessRate = RoundRate(snap.Stats[i].SuccessRate)
	}
	snap.GeneratedAt = g.clock.Now()
	snap.Seq = 0
	return snap, nil
}

// ValidateModules rejects empty lists, blank names and duplicates.
func ValidateModules(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: no modules configured", ErrInvalidModules)
	}
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		if n == "" {
			return fmt.Errorf("%w: empty name at index %d", ErrInvalidModules, i)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidModules, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func checkSample(s Snapshot, names []string) error {
	if len(s.Statuses) != len(names) || len(s.Stats) != len(names) {
		return fmt.Errorf("%w: want %d entries, got %d statuses and %d stats",
			ErrMalformedSample, len(names), len(s.Statuses), len(s.Stats))
	}
	for i, name := range names {
		st, ts := s.Statuses[i], s.Stats[i]
		if st.Name != name || ts.Name != name {
			return fmt.Errorf("%w: entry %d is %q/%q, want %q", ErrMalformedSample, i, st.Name, ts.Name, name)
		}
		if !st.Health.Valid() {
			return fmt.Errorf("%w: module %q has health %q", ErrMalformedSample, name, st.Health)
		}
		if ts.Orders < 0 || ts.Failed < 0 {
			return fmt.Errorf("%w: module %q has negative counters", ErrMalformedSample, name)
		}
		if ts.SuccessRate < 0 || ts.SuccessRate > 100 {
			return fmt.Errorf("%w: module %q success rate %.1f out of range", ErrMalformedSample, name, ts.SuccessRate)
		}
	}
	return nil
}

func sourceName(src MetricsSource) string {
	if n, ok := src.(namedSource); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", src)
}
