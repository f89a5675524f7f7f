// Package observability exposes a Prometheus registry of reactorctl's
// runtime metrics: RPS trips, session counts, burn allocation, PID
// saturation, queue depth, and watchdog expirations.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/types"
)

// Metrics holds every exported metric behind a dedicated registry (not
// the global DefaultRegisterer), so multiple Metrics in the same
// process never collide.
type Metrics struct {
	registry *prometheus.Registry
	log      *zap.Logger
	start    time.Time

	// RPS
	TripsTotal  *prometheus.CounterVec
	RPSTripped  *prometheus.GaugeVec
	ResetsTotal *prometheus.CounterVec

	// Sessions
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter

	// Control
	AllocationResidual prometheus.Gauge
	PIDSaturated       *prometheus.GaugeVec
	FacilityMode       prometheus.Gauge
	AutoSCRAMTotal     *prometheus.CounterVec

	// Queueing
	QueueDepth   *prometheus.GaugeVec
	QueueDropped *prometheus.CounterVec

	// Watchdogs
	WatchdogExpirationsTotal *prometheus.CounterVec

	UptimeSeconds prometheus.Gauge
}

// NewMetrics builds every descriptor and registers it, along with the
// standard Go/process collectors, on a fresh registry.
func NewMetrics(log *zap.Logger) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		log:      log,
		start:    time.Now(),

		TripsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactorctl",
			Subsystem: "rps",
			Name:      "trips_total",
			Help:      "Count of RPS trip-edge events by trip predicate name.",
		}, []string{"trip", "unit"}),

		RPSTripped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reactorctl",
			Subsystem: "rps",
			Name:      "tripped",
			Help:      "1 if the unit's RPS is currently latched tripped, else 0.",
		}, []string{"unit"}),

		ResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactorctl",
			Subsystem: "rps",
			Name:      "resets_total",
			Help:      "Count of successful RPS reset() calls.",
		}, []string{"unit"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactorctl",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions currently tracked by a registry.",
		}),

		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorctl",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Count of sessions created.",
		}),

		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorctl",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Count of sessions closed, including watchdog reaps.",
		}),

		AllocationResidual: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactorctl",
			Subsystem: "control",
			Name:      "allocation_residual_tenths",
			Help:      "Unallocated burn-rate residual (tenths of mB/t) from the last allocation pass.",
		}),

		PIDSaturated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reactorctl",
			Subsystem: "control",
			Name:      "pid_saturated",
			Help:      "1 if the named PID loop is currently output-saturated, else 0.",
		}, []string{"loop"}),

		FacilityMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactorctl",
			Subsystem: "control",
			Name:      "facility_mode",
			Help:      "Current facility controller mode, encoded as an integer ordinal.",
		}),

		AutoSCRAMTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactorctl",
			Subsystem: "control",
			Name:      "auto_scram_total",
			Help:      "Count of automatic SCRAM episodes by reason.",
		}, []string{"reason"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reactorctl",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current queued item count, by queue name.",
		}, []string{"queue"}),

		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactorctl",
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Count of items dropped on a full queue, by queue name.",
		}, []string{"queue"}),

		WatchdogExpirationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactorctl",
			Subsystem: "watchdog",
			Name:      "expirations_total",
			Help:      "Count of watchdog expirations, by watchdog name.",
		}, []string{"watchdog"}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactorctl",
			Name:      "uptime_seconds",
			Help:      "Seconds since this process's Metrics were constructed.",
		}),
	}

	reg.MustRegister(
		m.TripsTotal,
		m.RPSTripped,
		m.ResetsTotal,
		m.SessionsActive,
		m.SessionsCreated,
		m.SessionsClosed,
		m.AllocationResidual,
		m.PIDSaturated,
		m.FacilityMode,
		m.AutoSCRAMTotal,
		m.QueueDepth,
		m.QueueDropped,
		m.WatchdogExpirationsTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// IncDropped implements queue.DropCounter, letting any Queue[T] report
// drops directly into the dropped_total counter.
func (m *Metrics) IncDropped(queueName string) {
	m.QueueDropped.WithLabelValues(queueName).Inc()
}

// SetQueueDepth records the current depth of a named queue, typically
// polled once per tick by the owning node.
func (m *Metrics) SetQueueDepth(queueName string, depth int) {
	m.QueueDepth.WithLabelValues(queueName).Set(float64(depth))
}

// RecordTrip increments the trip counter and sets the tripped gauge
// for unit on a trip edge. It lives here rather than in rps so that
// rps has no observability dependency.
func (m *Metrics) RecordTrip(unit string, trip types.TripName) {
	m.TripsTotal.WithLabelValues(string(trip), unit).Inc()
	m.RPSTripped.WithLabelValues(unit).Set(1)
}

// RecordReset records a successful RPS reset for unit.
func (m *Metrics) RecordReset(unit string) {
	m.ResetsTotal.WithLabelValues(unit).Inc()
	m.RPSTripped.WithLabelValues(unit).Set(0)
}

// RecordWatchdogExpiration increments the expiration counter for the
// named watchdog (e.g. "comms", "session:<addr>").
func (m *Metrics) RecordWatchdogExpiration(name string) {
	m.WatchdogExpirationsTotal.WithLabelValues(name).Inc()
}

// RecordAutoSCRAM increments the auto-SCRAM counter for reason.
func (m *Metrics) RecordAutoSCRAM(reason types.AutoSCRAMReason) {
	m.AutoSCRAMTotal.WithLabelValues(reason.String()).Inc()
}

// ServeMetrics blocks serving /metrics and /healthz on addr until ctx
// is cancelled, at which point it shuts down gracefully.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	m.log.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.start).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
