//
//
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Health is the coarse health state of a module.
type Health string

const (
	HealthOK    Health = "ok"
	HealthWarn  Health = "warn"
	HealthError Health = "error"
)

// Valid reports whether h is one of the known health states.
func (h Health) Valid() bool {
	switch h {
	case HealthOK, HealthWarn, HealthError:
		return true
	}
	return false
}

// ModuleStatus is the health and latest log line of one module.
type ModuleStatus struct {
	Name   string
	Health Health
	Log    string
}

// TaskStat is the task counters of one module.
type TaskStat struct {
	Name        string
	Orders      int
	SuccessRate float64
	Failed      int
}

// Snapshot is one immutable point-in-time bundle of telemetry.
// Seq is assigned by the session registry at broadcast time and is not part
// of the wire format.
type Snapshot struct {
	Statuses    []ModuleStatus
	Stats       []TaskStat
	GeneratedAt time.Time
	Seq         uint64
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Statuses = append([]ModuleStatus(nil), s.Statuses...)
	out.Stats = append([]TaskStat(nil), s.Stats...)
	return out
}

// Names returns the module names of the status sequence.
func (s Snapshot) Names() []string {
	names := make([]string, len(s.Statuses))
	for i, st := range s.Statuses {
		names[i] = st.Name
	}
	return names
}

type wireStatus struct {
	Name   string `json:"name"`
	Status Health `json:"status"`
	Log    string `json:"log"`
}

type wireStat struct {
	Name    string `json:"name"`
	Orders  int    `json:"orders"`
	Success string `json:"success"`
	Failed  int    `json:"failed"`
}

type wireFrame struct {
	AIStatus  []wireStatus `json:"aiStatus"`
	TaskStats []wireStat   `json:"taskStats"`
}

// FormatRate renders a success rate with one decimal, e.g. "97.3".
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}

// RoundRate rounds a success rate to one decimal.
func RoundRate(rate float64) float64 {
	return math.Round(rate*10) / 10
}

// MarshalJSON encodes the snapshot in the push wire format.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	frame := wireFrame{
		AIStatus:  make([]wireStatus, 0, len(s.Statuses)),
		TaskStats: make([]wireStat, 0, len(s.Stats)),
	}
	for _, st := range s.Statuses {
		frame.AIStatus = append(frame.AIStatus, wireStatus{Name: st.Name, Status: st.Health, Log: st.Log})
	}
	for _, ts := range s.Stats {
		frame.TaskStats = append(frame.TaskStats, wireStat{
			Name:    ts.Name,
			Orders:  ts.Orders,
			Success: FormatRate(ts.SuccessRate),
			Failed:  ts.Failed,
		})
	}
	return json.Marshal(frame)
}

// EncodeFrame serializes a snapshot to one push frame.
func EncodeFrame(s Snapshot) ([]byte, error) {
	return s.MarshalJSON()
}

// DecodeFrame parses a push frame back into a snapshot. GeneratedAt and Seq
// are not carried on the wire and are left zero.
func DecodeFrame(data []byte) (Snapshot, error) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Snapshot{}, fmt.Errorf("decode frame: %w", err)
	}

	snap := Snapshot{
		Statuses: make([]ModuleStatus, 0, len(frame.AIStatus)),
		Stats:    make([]TaskStat, 0, len(frame.TaskStats)),
	}
	for _, st := range frame.AIStatus {
		snap.Statuses = append(snap.Statuses, ModuleStatus{Name: st.Name, Health: st.Status, Log: st.Log})
	}
	for _, ts := range frame.TaskStats {
		rate, err := strconv.ParseFloat(ts.Success, 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode frame: success of %q: %w", ts.Name, err)
		}
		snap.Stats = append(snap.Stats, TaskStat{Name: ts.Name, Orders: ts.Orders, SuccessRate: rate, Failed: ts.Failed})
	}
	return snap, nil
}
