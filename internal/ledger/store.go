//
//
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("dispatch record not found")

// Record is one persisted dispatch decision.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	OrderID   string    `json:"orderId"`
	RiderID   string    `json:"riderId"`
	RiderName string    `json:"riderName"`
	Score     float64   `json:"score"`
	Success   bool      `json:"success"`
}

// Store persists and lists dispatch records.
type Store interface {
	Record(ctx context.Context, rec Record) error
	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
	// Latest returns the newest record for an order.
	Latest(ctx context.Context, orderID string) (Record, error)
	Close() error
}

// DefaultMemoryCapacity is how many records a Memory store keeps.
const DefaultMemoryCapacity = 1000

// Memory is an in-memory Store holding the newest records up to its
// capacity.
type Memory struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
}

// NewMemory creates an empty in-memory store with DefaultMemoryCapacity.
func NewMemory() *Memory { return NewMemoryWithCapacity(DefaultMemoryCapacity) }

// NewMemoryWithCapacity creates an empty in-memory store keeping at most
// capacity records. capacity <= 0 means DefaultMemoryCapacity.
func NewMemoryWithCapacity(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Record(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if over := len(m.records) - m.capacity; over > 0 {
		oldest := func(i, j int) bool { return m.records[i].Timestamp.Before(m.records[j].Timestamp) }
		sort.SliceStable(m.records, oldest)
		m.records = append(m.records[:0:0], m.records[over:]...)
	}
	return nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := append([]Record(nil), m.records...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Latest(ctx context.Context, orderID string) (Record, error) {
	recs, err := m.List(ctx, 0)
	if err != nil {
		return Record{}, err
	}
	for _, r := range recs {
		if r.OrderID == orderID {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *Memory) Close() error { return nil }
