//
//
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AnonymousTalent/opsradar/internal/api"
	"github.com/AnonymousTalent/opsradar/internal/audit"
	"github.com/AnonymousTalent/opsradar/internal/auth"
	"github.com/AnonymousTalent/opsradar/internal/broadcast"
	"github.com/AnonymousTalent/opsradar/internal/config"
	"github.com/AnonymousTalent/opsradar/internal/dispatch"
	"github.com/AnonymousTalent/opsradar/internal/hub"
	"github.com/AnonymousTalent/opsradar/internal/ledger"
	"github.com/AnonymousTalent/opsradar/internal/logging"
	"github.com/AnonymousTalent/opsradar/internal/metrics"
	"github.com/AnonymousTalent/opsradar/internal/modbussource"
	"github.com/AnonymousTalent/opsradar/internal/notify"
	"github.com/AnonymousTalent/opsradar/internal/telemetry"
	"github.com/AnonymousTalent/opsradar/internal/transport/ws"
)

// source is a metrics source that may hold a connection.
type source interface {
	telemetry.MetricsSource
	io.Closer
	Name() string
}

type randomSource struct{ *telemetry.RandomSource }

func (randomSource) Close() error { return nil }

func newSource(cfg *config.Config, log zerolog.Logger) (source, error) {
	switch cfg.Telemetry.Source {
	case config.SourceModbus:
		src, err := modbussource.Dial(modbussource.Config{
			Address:     cfg.Modbus.Address,
			UnitID:      cfg.Modbus.UnitID,
			BaseAddress: cfg.Modbus.BaseAddress,
			Timeout:     cfg.Modbus.Timeout,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("address", cfg.Modbus.Address).Msg("modbus source connected")
		return src, nil
	default:
		return randomSource{telemetry.NewRandomSource(cfg.Telemetry.Seed, nil)}, nil
	}
}

// app holds the wired service.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	registry  *hub.Registry
	scheduler *broadcast.Scheduler
	simulator *dispatch.Simulator
	server    *api.Server

	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

func (a *app) onClose(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name, c})
}

// buildApp wires every component from cfg. On error, whatever was opened is
// closed again.
func buildApp(cfg *config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// Step 1: metrics
	collector := metrics.NewCollector(log, metrics.DefaultNamespace)

	// Step 2: audit trail
	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		auditLog, err = audit.NewLogger(audit.Config{
			Path:       cfg.Audit.Path,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		a.onClose("audit", auditLog)
		log.Info().Str("path", cfg.Audit.Path).Msg("audit logger initialized")
	}

	// Step 3: session registry
	hubOpts := []hub.Option{
		hub.WithLogger(log),
		hub.WithObserver(collector),
		hub.WithDeliveryTimeout(cfg.Telemetry.DeliveryTimeout),
	}
	if auditLog != nil {
		hubOpts = append(hubOpts, hub.WithObserver(auditLog))
	}
	a.registry = hub.NewRegistry(hubOpts...)

	// Step 4: metrics source and scheduler
	src, err := newSource(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics source: %w", err)
	}
	a.onClose("metrics source", src)

	gen := telemetry.NewGenerator(src, nil)
	a.scheduler, err = broadcast.New(
		broadcast.Config{Interval: cfg.Telemetry.PushInterval, Modules: cfg.Telemetry.Modules},
		gen, a.registry,
		broadcast.WithLogger(log),
		broadcast.WithObserver(collector),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	log.Info().Str("source", cfg.Telemetry.Source).Dur("interval", cfg.Telemetry.PushInterval).Msg("scheduler initialized")

	// Step 5: dispatch ledger, notifiers and simulator
	var store ledger.Store = ledger.NewMemory()
	if cfg.Ledger.Path != "" {
		store, err = ledger.OpenBolt(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		log.Info().Str("path", cfg.Ledger.Path).Msg("ledger opened")
	}
	a.onClose("ledger", store)

	if cfg.Dispatch.Enabled {
		notifiers := notify.Multi{notify.NewLog(log)}
		if cfg.Notify.Nostr.Enabled {
			n, err := notify.NewNostr(notify.NostrConfig{
				SecretKey: cfg.Notify.Nostr.SecretKey,
				Relays:    cfg.Notify.Nostr.Relays,
				Timeout:   cfg.Notify.Nostr.Timeout,
			}, notify.WithNostrLogger(log))
			if err != nil {
				return nil, fmt.Errorf("failed to initialize nostr notifier: %w", err)
			}
			a.onClose("nostr", n)
			notifiers = append(notifiers, n)
			log.Info().Str("pubkey", n.PublicKey()).Strs("relays", cfg.Notify.Nostr.Relays).Msg("nostr notifier initialized")
		}

		seed := dispatch.RandomSeed(cfg.Dispatch.Orders, cfg.Dispatch.Riders, cfg.Dispatch.Seed)
		if cfg.Dispatch.SeedFile != "" {
			seed = dispatch.FileSeed(cfg.Dispatch.SeedFile)
		}

		simOpts := []dispatch.Option{
			dispatch.WithLogger(log),
			dispatch.WithNotifier(notifiers),
			dispatch.WithRecorder(store),
			dispatch.WithObserver(collector),
		}
		if auditLog != nil {
			simOpts = append(simOpts, dispatch.WithObserver(auditLog))
		}
		a.simulator, err = dispatch.NewSimulator(cfg.Dispatch.Interval, seed, simOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create dispatch simulator: %w", err)
		}
	}

	// Step 6: HTTP surface
	serverOpts := []api.Option{
		api.WithLogger(log),
		api.WithSessions(a.registry),
		api.WithLedger(store),
		api.WithMetrics(collector),
		api.WithPushHandler(ws.NewHandler(a.registry,
			ws.WithLogger(log),
			ws.WithOriginPatterns(cfg.Server.AllowedOrigins...))),
	}
	if a.simulator != nil {
		serverOpts = append(serverOpts, api.WithSimulation(a.simulator))
	}
	if cfg.Auth.Enabled {
		v, err := auth.NewVerifierFromFiles(cfg.Auth.HMACSecret, cfg.Auth.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
		}
		serverOpts = append(serverOpts, api.WithAuth(auth.NewMiddleware(v)))
		log.Info().Str("alg", v.Algorithm()).Msg("bearer auth enabled")
	}

	a.server = api.NewServer(api.Config{
		Addr:           cfg.Server.Addr,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Modules:        cfg.Telemetry.Modules,
		PushInterval:   cfg.Telemetry.PushInterval,
		PollInterval:   cfg.Telemetry.PollInterval,
		Version:        version,
	}, gen, serverOpts...)

	return a, nil
}

// run serves on l until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context, l net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.scheduler.Run(gctx) })
	if a.simulator != nil {
		g.Go(func() error { return a.simulator.Run(gctx) })
	}
	g.Go(func() error { return a.server.Serve(l) })
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		// Close sessions first so viewers get a going-away frame.
		if err := a.registry.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("push sessions still closing at shutdown deadline")
		}
		return a.server.Stop(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.log.Warn().Err(err).Str("resource", c.name).Msg("close failed")
		}
	}
	a.closers = nil
}

func serve(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	log, logCloser, err := logging.New(cfg.Log, stdout, stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	log.Info().Str("version", version).Str("config", cfg.File).Msg("starting opsradar")

	a, err := buildApp(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.close()

	l, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		log.Error().Err(err).Msg("listen failed")
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	log.Info().
		Str("push", fmt.Sprintf("ws://%s/ws", l.Addr())).
		Str("poll", fmt.Sprintf("http://%s/api/simulation-data", l.Addr())).
		Msg("endpoints ready")

	start := time.Now()
	err = a.run(ctx, l)
	log.Info().Dur("uptime", time.Since(start)).Msg("opsradar stopped")
	return err
}
