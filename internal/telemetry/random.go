//
//
package telemetry

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

var healthStates = []Health{HealthOK, HealthWarn, HealthError}

// RandomSource simulates module telemetry.
// Orders fall in [0,1000), success in [90.0,99.9] in steps of 0.1 and failed
// in [0,20).
// Failed is not capped by orders.
type RandomSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock Clock
}

// NewRandomSource creates a simulated source. A zero seed uses the current time.
func NewRandomSource(seed int64, clock Clock) *RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &RandomSource{rng: rand.New(rand.NewSource(seed)), clock: clock}
}

// Name identifies the source in errors and logs.
func (r *RandomSource) Name() string { return "random" }

// Sample returns random values for each module.
func (r *RandomSource) Sample(ctx context.Context, names []string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	logLine := "Log entry at " + r.clock.Now().Format("15:04:05")
	snap := Snapshot{
		Statuses: make([]ModuleStatus, 0, len(names)),
		Stats:    make([]TaskStat, 0, len(names)),
	}
	for _, name := range names {
		snap.Statuses = append(snap.Statuses, ModuleStatus{
			Name:   name,
			Health: healthStates[r.rng.Intn(len(healthStates))],
			Log:    logLine,
		})
		snap.Stats = append(snap.Stats, TaskStat{
			Name:        name,
			Orders:      r.rng.Intn(1000),
			SuccessRate: 90 + float64(r.rng.Intn(100))/10,
			Failed:      r.rng.Intn(20),
		})
	}
	return snap, nil
}
