//
//
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/AnonymousTalent/opsradar/internal/auth"
	"github.com/AnonymousTalent/opsradar/internal/ledger"
	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

const (
	defaultDispatchLimit = 50
	maxDispatchLimit     = 1000
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// /ws sits outside the request logger so the upgrade sees the raw writer.
	if s.push != nil {
		r.Group(func(r chi.Router) {
			s.protect(r)
			r.Method(http.MethodGet, "/ws", s.push)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.corsHandler())
		r.Use(s.requestLogger)

		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			s.protect(r)
			r.Get("/capabilities", s.handleCapabilities)
			r.Get("/simulation-data", s.handleSimulationData)
			r.Get("/telemetry", s.handleTelemetry)
			r.Get("/sessions", s.handleSessions)
			r.Get("/dispatches", s.handleDispatches)
		})
	})

	return r
}

func (s *Server) protect(r chi.Router) {
	if s.authMW != nil {
		r.Use(s.authMW.Require(auth.ScopeTelemetry))
	}
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(opts.AllowedOrigins) == 0 || (len(opts.AllowedOrigins) == 1 && opts.AllowedOrigins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	}
	return cors.Handler(opts)
}

// requestLogger logs each request and feeds the poll metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.ObservePoll(route, status)
		}

		ev := s.log.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(s.startTime).Seconds()),
		"version":       s.cfg.Version,
	}
	if s.sessions != nil {
		data["sessions"] = s.sessions.Count()
	}
	WriteSuccess(w, r, data)
}

// handleCapabilities handles GET /api/capabilities
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	transports := []string{"poll"}
	if s.push != nil {
		transports = append([]string{"websocket"}, transports...)
	}

	WriteSuccess(w, r, map[string]interface{}{
		"telemetry":      transports,
		"modules":        s.cfg.Modules,
		"pushIntervalMs": s.cfg.PushInterval.Milliseconds(),
		"pollIntervalMs": s.cfg.PollInterval.Milliseconds(),
		"simulation":     s.simulation != nil,
		"auth":           s.authMW != nil,
		"version":        s.cfg.Version,
	})
}

// handleSimulationData handles GET /api/simulation-data
func (s *Server) handleSimulationData(w http.ResponseWriter, r *http.Request) {
	if s.simulation == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Dispatch simulation is disabled", nil)
		return
	}

	snap, err := s.simulation.MapSnapshot(r.Context())
	if err != nil {
		WriteAPIError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, snap)
}

// handleTelemetry handles GET /api/telemetry. An optional comma separated
// modules parameter narrows or reorders the configured module list.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	modules := s.cfg.Modules
	if q := r.URL.Query().Get("modules"); q != "" {
		modules = strings.Split(q, ",")
	}

	snap, err := s.telemetry.Generate(r.Context(), modules)
	if err != nil {
		s.log.Warn().Err(err).Msg("telemetry poll failed")
		WriteAPIError(w, r, err)
		return
	}

	frame, err := telemetry.EncodeFrame(snap)
	if err != nil {
		WriteAPIError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

// handleSessions handles GET /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Push sessions are disabled", nil)
		return
	}
	WriteSuccess(w, r, map[string]interface{}{
		"count":    s.sessions.Count(),
		"sessions": s.sessions.Sessions(),
	})
}

// handleDispatches handles GET /api/dispatches?limit=N
func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Dispatch ledger is disabled", nil)
		return
	}

	limit := defaultDispatchLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > maxDispatchLimit {
			WriteError(w, r, http.StatusBadRequest, "BAD_REQUEST",
				"limit must be between 1 and 1000", map[string]interface{}{"limit": q})
			return
		}
		limit = n
	}

	records, err := s.ledger.List(r.Context(), limit)
	if err != nil {
		WriteAPIError(w, r, err)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	WriteSuccess(w, r, map[string]interface{}{"dispatches": records})
}
