//
//
package api

import (
	"context"
	"net/http"

	"github.com/AnonymousTalent/opsradar/internal/dispatch"
	"github.com/AnonymousTalent/opsradar/internal/hub"
	"github.com/AnonymousTalent/opsradar/internal/ledger"
	"github.com/AnonymousTalent/opsradar/internal/metrics"
	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

// SnapshotPort produces telemetry snapshots on demand.
type SnapshotPort interface {
	Generate(ctx context.Context, names []string) (telemetry.Snapshot, error)
}

// MapPort serves the dispatch simulator state.
type MapPort interface {
	MapSnapshot(ctx context.Context) (dispatch.MapSnapshot, error)
}

// SessionsPort exposes the live push sessions.
type SessionsPort interface {
	Count() int
	Sessions() []hub.SessionInfo
}

// LedgerPort lists recorded dispatch decisions.
type LedgerPort interface {
	List(ctx context.Context, limit int) ([]ledger.Record, error)
}

// MetricsPort records poll outcomes and serves the scrape endpoint.
type MetricsPort interface {
	ObservePoll(endpoint string, code int)
	Handler() http.Handler
}

// Compile-time assertions for port conformance
var (
	_ SnapshotPort = (*telemetry.Generator)(nil)
	_ MapPort      = (*dispatch.Simulator)(nil)
	_ SessionsPort = (*hub.Registry)(nil)
	_ LedgerPort   = ledger.Store(nil)
	_ MetricsPort  = (*metrics.Collector)(nil)
)
