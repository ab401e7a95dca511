//
//
package dispatch

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidSeed indicates a seed fixture that cannot be simulated.
var ErrInvalidSeed = errors.New("invalid dispatch seed")

// Seed is the initial simulation state.
type Seed struct {
	Orders []Order `yaml:"orders"`
	Riders []Rider `yaml:"riders"`
}

// SeedFunc loads a fresh seed. It is called on start and every time the
// order queue runs dry.
type SeedFunc func() (Seed, error)

// Validate checks identifiers and coordinates.
func (s Seed) Validate() error {
	orderIDs := make(map[string]struct{}, len(s.Orders))
	for i, o := range s.Orders {
		if o.ID == "" {
			return fmt.Errorf("%w: order %d has no id", ErrInvalidSeed, i)
		}
		if _, dup := orderIDs[o.ID]; dup {
			return fmt.Errorf("%w: duplicate order id %q", ErrInvalidSeed, o.ID)
		}
		orderIDs[o.ID] = struct{}{}
		if !onGrid(o.X) || !onGrid(o.Y) {
			return fmt.Errorf("%w: order %q at (%.1f,%.1f) is off the grid", ErrInvalidSeed, o.ID, o.X, o.Y)
		}
	}

	riderIDs := make(map[string]struct{}, len(s.Riders))
	for i, r := range s.Riders {
		if r.ID == "" {
			return fmt.Errorf("%w: rider %d has no id", ErrInvalidSeed, i)
		}
		if _, dup := riderIDs[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rider id %q", ErrInvalidSeed, r.ID)
		}
		riderIDs[r.ID] = struct{}{}
		if !onGrid(r.X) || !onGrid(r.Y) {
			return fmt.Errorf("%w: rider %q at (%.1f,%.1f) is off the grid", ErrInvalidSeed, r.ID, r.X, r.Y)
		}
		if r.Rating < 0 || r.Rating > 5 {
			return fmt.Errorf("%w: rider %q rating %.1f outside [0,5]", ErrInvalidSeed, r.ID, r.Rating)
		}
	}
	return nil
}

func onGrid(v float64) bool { return v >= 0 && v <= 100 }

// ParseSeed decodes a YAML seed fixture.
func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := s.Validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

// LoadSeed reads and decodes a YAML seed fixture.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// FileSeed reloads the fixture at path on every call.
func FileSeed(path string) SeedFunc {
	return func() (Seed, error) { return LoadSeed(path) }
}

var riderNames = []string{
	"Swift", "Comet", "Rocket", "Falcon", "Blaze", "Nova", "Bolt", "Orbit", "Zephyr", "Dash",
}

// RandomSeed generates orders and riders at random grid positions.
// A zero seed uses the current time.
func RandomSeed(orders, riders int, seed int64) SeedFunc {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	var (
		mu  sync.Mutex
		rng = rand.New(rand.NewSource(seed))
		gen int
	)
	coord := func() float64 { return float64(rng.Intn(1001)) / 10 }

	return func() (Seed, error) {
		mu.Lock()
		defer mu.Unlock()

		gen++
		var s Seed
		for i := 0; i < orders; i++ {
			s.Orders = append(s.Orders, Order{ID: fmt.Sprintf("O%d%03d", gen, i+1), X: coord(), Y: coord()})
		}
		for i := 0; i < riders; i++ {
			s.Riders = append(s.Riders, Rider{
				ID:     fmt.Sprintf("R%02d", i+1),
				Name:   riderNames[i%len(riderNames)],
				Rating: 3 + float64(rng.Intn(21))/10,
				X:      coord(),
				Y:      coord(),
			})
		}
		return s, nil
	}
}
