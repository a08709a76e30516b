// Package observability — metrics.go
//
// Prometheus metrics for the sentineld governance daemon.
//
// Endpoint: GET /metrics on 127.0.0.1:9095 (configurable).
// Format: Prometheus text exposition format.
//
// Metric naming convention: sentineld_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) so multiple Sentinels can run in one process
// without colliding.

package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metric descriptors for sentineld. A nil
// *Metrics is safe to call methods on — every recording method is a
// no-op in that case, so the orchestrator can run with metrics
// disabled without branching at every call site.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Decisions ────────────────────────────────────────────────────────────

	// DecisionsTotal counts intervention decisions, by resulting level.
	DecisionsTotal *prometheus.CounterVec

	// GammaComposite is the most recently computed composite risk score.
	GammaComposite prometheus.Gauge

	// GammaSmoothed is an EWMA-smoothed view of GammaComposite, easier to
	// read on a dashboard than the raw per-action value.
	GammaSmoothed prometheus.Gauge

	// InterventionDelayMs records the distribution of rate-shaper delays.
	InterventionDelayMs prometheus.Histogram

	// ─── Flight recorder ──────────────────────────────────────────────────────

	// FlightRecorderEntries is the current hash-chain length.
	FlightRecorderEntries prometheus.Gauge

	// ChainViolationsTotal counts chain integrity failures detected.
	ChainViolationsTotal prometheus.Counter

	// ─── Context binding ──────────────────────────────────────────────────────

	// CapabilitiesIssuedTotal counts capability keys issued.
	CapabilitiesIssuedTotal prometheus.Counter

	// CapabilitiesDeniedTotal counts capability verifications that failed,
	// plus issuances whose key derivation failed.
	CapabilitiesDeniedTotal prometheus.Counter

	// ─── Agent ────────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since the process started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers every sentineld Prometheus metric.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentineld",
			Subsystem: "intervention",
			Name:      "decisions_total",
			Help:      "Intervention decisions, by resulting governance level.",
		}, []string{"level"}),

		GammaComposite: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentineld",
			Subsystem: "trajectory",
			Name:      "gamma_composite",
			Help:      "Most recently computed composite risk score.",
		}),

		GammaSmoothed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentineld",
			Subsystem: "trajectory",
			Name:      "gamma_smoothed",
			Help:      "EWMA-smoothed composite risk score.",
		}),

		InterventionDelayMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sentineld",
			Subsystem: "rateshaper",
			Name:      "delay_ms",
			Help:      "Delay imposed by the rate shaper, in milliseconds.",
			Buckets:   []float64{0, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),

		FlightRecorderEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentineld",
			Subsystem: "flight_recorder",
			Name:      "entries",
			Help:      "Current number of entries in the flight recorder chain.",
		}),

		ChainViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentineld",
			Subsystem: "flight_recorder",
			Name:      "chain_violations_total",
			Help:      "Chain integrity violations detected during verification.",
		}),

		CapabilitiesIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentineld",
			Subsystem: "contextbind",
			Name:      "capabilities_issued_total",
			Help:      "Capability keys issued by the context evaluator.",
		}),

		CapabilitiesDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentineld",
			Subsystem: "contextbind",
			Name:      "capabilities_denied_total",
			Help:      "Capability verifications or issuances that failed.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentineld",
			Subsystem: "agent",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the process started.",
		}),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.GammaComposite,
		m.GammaSmoothed,
		m.InterventionDelayMs,
		m.FlightRecorderEntries,
		m.ChainViolationsTotal,
		m.CapabilitiesIssuedTotal,
		m.CapabilitiesDeniedTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) RecordDecision(level string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(level).Inc()
}

func (m *Metrics) ObserveGamma(composite float64) {
	if m == nil {
		return
	}
	m.GammaComposite.Set(composite)
}

func (m *Metrics) ObserveSmoothedGamma(smoothed float64) {
	if m == nil {
		return
	}
	m.GammaSmoothed.Set(smoothed)
}

func (m *Metrics) ObserveDelay(ms float64) {
	if m == nil {
		return
	}
	m.InterventionDelayMs.Observe(ms)
}

func (m *Metrics) SetChainLength(n int) {
	if m == nil {
		return
	}
	m.FlightRecorderEntries.Set(float64(n))
}

func (m *Metrics) IncChainViolation() {
	if m == nil {
		return
	}
	m.ChainViolationsTotal.Inc()
}

func (m *Metrics) IncCapabilityIssued() {
	if m == nil {
		return
	}
	m.CapabilitiesIssuedTotal.Inc()
}

func (m *Metrics) IncCapabilityDenied() {
	if m == nil {
		return
	}
	m.CapabilitiesDeniedTotal.Inc()
}

// ServeMetrics starts the Prometheus HTTP metrics server on addr.
// Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
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
		if logger != nil {
			logger.Info("shutting down metrics server")
		}
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates UptimeSeconds.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
