//
//
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/AnonymousTalent/opsradar/internal/dispatch"
	"github.com/AnonymousTalent/opsradar/internal/hub"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "opsradar"

// Collector implements the hub, scheduler and dispatch observers and
// records them on its own registry.
type Collector struct {
	logger   zerolog.Logger
	registry *prometheus.Registry

	// Session metrics
	sessionsActive  prometheus.Gauge
	sessionsOpened  prometheus.Counter
	sessionsClosed  *prometheus.CounterVec
	framesDelivered prometheus.Counter
	deliveryErrors  prometheus.Counter

	// Scheduler metrics
	ticksTotal   *prometheus.CounterVec
	tickDuration prometheus.Histogram
	lastSeq      prometheus.Gauge

	// Poll metrics
	pollRequests *prometheus.CounterVec

	// Dispatch metrics
	dispatches *prometheus.CounterVec
}

// NewCollector creates a collector registered on a fresh registry.
func NewCollector(logger zerolog.Logger, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		logger:   logger.With().Str("component", "metrics").Logger(),
		registry: prometheus.NewRegistry(),
	}

	c.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of connected push sessions",
	})
	c.sessionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_opened_total",
		Help:      "Total push sessions registered",
	})
	c.sessionsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_closed_total",
		Help:      "Total push sessions unregistered, by reason",
	}, []string{"reason"})
	c.framesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_delivered_total",
		Help:      "Total frames written to push sessions",
	})
	c.deliveryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_errors_total",
		Help:      "Total failed frame writes",
	})

	c.ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_ticks_total",
		Help:      "Scheduler ticks by result",
	}, []string{"result"})
	c.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_tick_duration_seconds",
		Help:      "Time to generate and broadcast one snapshot",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	})
	c.lastSeq = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "broadcast_last_sequence",
		Help:      "Sequence number of the last broadcast snapshot",
	})

	c.pollRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_requests_total",
		Help:      "Poll endpoint requests by endpoint and status code",
	}, []string{"endpoint", "code"})

	c.dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_attempts_total",
		Help:      "Dispatch attempts by outcome",
	}, []string{"outcome"})

	c.registry.MustRegister(
		c.sessionsActive,
		c.sessionsOpened,
		c.sessionsClosed,
		c.framesDelivered,
		c.deliveryErrors,
		c.ticksTotal,
		c.tickDuration,
		c.lastSeq,
		c.pollRequests,
		c.dispatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c.logger.Debug().Str("namespace", namespace).Msg("metrics collector initialized")
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// SessionOpened implements hub.Observer.
func (c *Collector) SessionOpened(hub.SessionInfo) {
	c.sessionsOpened.Inc()
	c.sessionsActive.Inc()
}

// SessionClosed implements hub.Observer.
func (c *Collector) SessionClosed(_ hub.SessionInfo, reason string) {
	c.sessionsClosed.WithLabelValues(reason).Inc()
	c.sessionsActive.Dec()
}

// FrameDelivered implements hub.Observer.
func (c *Collector) FrameDelivered() { c.framesDelivered.Inc() }

// DeliveryFailed implements hub.Observer.
func (c *Collector) DeliveryFailed(hub.SessionInfo, error) { c.deliveryErrors.Inc() }

// TickSucceeded implements broadcast.Observer.
func (c *Collector) TickSucceeded(res hub.BroadcastResult, took time.Duration) {
	c.ticksTotal.WithLabelValues("ok").Inc()
	c.tickDuration.Observe(took.Seconds())
	c.lastSeq.Set(float64(res.Seq))
}

// TickFailed implements broadcast.Observer.
func (c *Collector) TickFailed(error) {
	c.ticksTotal.WithLabelValues("error").Inc()
}

// ObservePoll counts one poll request.
func (c *Collector) ObservePoll(endpoint string, code int) {
	c.pollRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// DispatchAttempted implements dispatch.Observer.
func (c *Collector) DispatchAttempted(d dispatch.Dispatch) {
	outcome := "assigned"
	if !d.Assigned {
		outcome = "unassigned"
	}
	c.dispatches.WithLabelValues(outcome).Inc()
}
