package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wintopo"

// Cycle outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeRace      = "race"
	OutcomeError     = "error"
)

// Move kinds.
const (
	MoveDesktop  = "desktop"
	MoveGeometry = "geometry"
)

// Metrics records reconciliation activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	moves         *prometheus.CounterVec
	ruleMatches   prometheus.Counter
	topologies    prometheus.Gauge
	topologySwaps *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Reconciliation cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of reconciliation cycles",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"mode"},
		),
		moves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "window_moves_total",
				Help:      "Window move commands issued",
			},
			[]string{"kind", "mode"},
		),
		ruleMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Windows matched by a placement rule",
		}),
		topologies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_topologies",
			Help:      "Topologies with a saved layout",
		}),
		topologySwaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topology_changes_total",
				Help:      "Observed topology changes by selected mode",
			},
			[]string{"mode"},
		),
	}
	registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.moves,
		m.ruleMatches,
		m.topologies,
		m.topologySwaps,
	)
	return m
}

// RecordCycle counts a finished cycle and observes its duration.
func (m *Metrics) RecordCycle(outcome, mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordMove counts one window command.
func (m *Metrics) RecordMove(kind, mode string) {
	if m == nil {
		return
	}
	m.moves.WithLabelValues(kind, mode).Inc()
}

// RecordRuleMatch counts a window matched by a rule.
func (m *Metrics) RecordRuleMatch() {
	if m == nil {
		return
	}
	m.ruleMatches.Inc()
}

// RecordTopologyChange counts a change of topology and the mode it selected.
func (m *Metrics) RecordTopologyChange(mode string) {
	if m == nil {
		return
	}
	m.topologySwaps.WithLabelValues(mode).Inc()
}

// SetKnownTopologies sets the number of topologies with a saved layout.
func (m *Metrics) SetKnownTopologies(n int) {
	if m == nil {
		return
	}
	m.topologies.Set(float64(n))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return nil
}
