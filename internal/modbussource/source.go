//
//
package modbussource

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

const (
	registersPerModule = 4
	maxReadRegisters   = 125
)

// ErrRegisterRange indicates a register value outside its allowed range.
var ErrRegisterRange = errors.New("register value out of range")

// Client reads holding registers (FC 3). goburrow's modbus.Client satisfies it.
type Client interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Config describes the device and register layout.
type Config struct {
	Address     string
	UnitID      uint8
	BaseAddress uint16
	Timeout     time.Duration
}

// Source implements telemetry.MetricsSource over Modbus TCP.
type Source struct {
	mu      sync.Mutex // one request at a time
	client  Client
	handler *modbus.TCPClientHandler
	cfg     Config
	clock   telemetry.Clock
}

// Dial connects to the device described by cfg.
func Dial(cfg Config) (*Source, error) {
	if cfg.Address == "" {
		return nil, errors.New("modbussource: address required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	h := modbus.NewTCPClientHandler(cfg.Address)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbussource: connect %s: %w", cfg.Address, err)
	}

	s := New(modbus.NewClient(h), cfg, nil)
	s.handler = h
	return s, nil
}

// New wraps an existing client. A nil clock defaults to the wall clock.
func New(client Client, cfg Config, clock telemetry.Clock) *Source {
	if clock == nil {
		clock = telemetry.RealClock{}
	}
	return &Source{client: client, cfg: cfg, clock: clock}
}

// Name identifies the source in errors and logs.
func (s *Source) Name() string { return "modbus " + s.cfg.Address }

// Sample reads every module block and converts it to a snapshot.
func (s *Source) Sample(ctx context.Context, names []string) (telemetry.Snapshot, error) {
	regs, err := s.readAll(ctx, len(names))
	if err != nil {
		return telemetry.Snapshot{}, &telemetry.SourceError{Source: s.Name(), Err: err}
	}

	logLine := "Read at " + s.clock.Now().Format("15:04:05")
	snap := telemetry.Snapshot{
		Statuses: make([]telemetry.ModuleStatus, 0, len(names)),
		Stats:    make([]telemetry.TaskStat, 0, len(names)),
	}
	for i, name := range names {
		block := regs[i*registersPerModule : (i+1)*registersPerModule]
		st, ts, err := decodeBlock(name, block)
		if err != nil {
			return telemetry.Snapshot{}, &telemetry.SourceError{Source: s.Name(), Err: err}
		}
		st.Log = logLine
		snap.Statuses = append(snap.Statuses, st)
		snap.Stats = append(snap.Stats, ts)
	}
	return snap, nil
}

// readAll reads modules*4 registers in chunks of whole module blocks.
func (s *Source) readAll(ctx context.Context, modules int) ([]uint16, error) {
	total := modules * registersPerModule
	if int(s.cfg.BaseAddress)+total > 0x10000 {
		return nil, fmt.Errorf("%d modules do not fit above address %d", modules, s.cfg.BaseAddress)
	}

	const chunk = (maxReadRegisters / registersPerModule) * registersPerModule

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint16, 0, total)
	for off := 0; off < total; off += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		qty := min(chunk, total-off)
		addr := s.cfg.BaseAddress + uint16(off)

		raw, err := s.client.ReadHoldingRegisters(addr, uint16(qty))
		if err != nil {
			return nil, fmt.Errorf("read %d registers at %d: %w", qty, addr, err)
		}
		if len(raw) != qty*2 {
			return nil, fmt.Errorf("read %d registers at %d: got %d bytes", qty, addr, len(raw))
		}
		for i := 0; i < qty; i++ {
			out = append(out, binary.BigEndian.Uint16(raw[2*i:]))
		}
	}
	return out, nil
}

func decodeBlock(name string, block []uint16) (telemetry.ModuleStatus, telemetry.TaskStat, error) {
	var health telemetry.Health
	switch block[0] {
	case 0:
		health = telemetry.HealthOK
	case 1:
		health = telemetry.HealthWarn
	case 2:
		health = telemetry.HealthError
	default:
		return telemetry.ModuleStatus{}, telemetry.TaskStat{}, fmt.Errorf("%w: module %s health %d", ErrRegisterRange, name, block[0])
	}
	if block[2] > 1000 {
		return telemetry.ModuleStatus{}, telemetry.TaskStat{}, fmt.Errorf("%w: module %s success %d", ErrRegisterRange, name, block[2])
	}

	return telemetry.ModuleStatus{Name: name, Health: health},
		telemetry.TaskStat{
			Name:        name,
			Orders:      int(block[1]),
			SuccessRate: float64(block[2]) / 10,
			Failed:      int(block[3]),
		}, nil
}

// Close releases the TCP connection if Dial opened it.
func (s *Source) Close() error {
	if s.handler == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler.Close()
}
