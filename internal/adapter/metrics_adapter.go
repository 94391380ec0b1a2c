package adapter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	m "gooze.dev/pkg/jgooze/internal/model"
)

// MetricsAdapter records run metrics and writes them in the Prometheus text
// format for a node exporter textfile collector.
type MetricsAdapter interface {
	Observe(result m.Result)
	SetScore(score float64)
	SetMutants(total int)
	Flush(path m.Path) error
}

// PrometheusMetricsAdapter keeps its collectors in a private registry so
// several runs in one process do not collide.
type PrometheusMetricsAdapter struct {
	registry *prometheus.Registry

	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	score    prometheus.Gauge
	mutants  prometheus.Gauge
}

// NewPrometheusMetricsAdapter constructs a PrometheusMetricsAdapter.
func NewPrometheusMetricsAdapter() *PrometheusMetricsAdapter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusMetricsAdapter{
		registry: reg,
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jgooze",
			Name:      "mutant_results_total",
			Help:      "Tested mutants by status and operator",
		}, []string{"status", "operator"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jgooze",
			Name:      "mutant_test_duration_seconds",
			Help:      "Wall time of building and testing one mutant",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		}, []string{"status"}),
		score: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "jgooze",
			Name:      "mutation_score_ratio",
			Help:      "Detected mutants over scored mutants",
		}),
		mutants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "jgooze",
			Name:      "mutants",
			Help:      "Mutants scheduled in the run",
		}),
	}
}

// Observe implements MetricsAdapter.
func (a *PrometheusMetricsAdapter) Observe(result m.Result) {
	status := result.Status.String()
	a.results.WithLabelValues(status, result.Operator).Inc()
	a.duration.WithLabelValues(status).Observe(result.Duration.Seconds())
}

// SetScore implements MetricsAdapter.
func (a *PrometheusMetricsAdapter) SetScore(score float64) {
	a.score.Set(score)
}

// SetMutants implements MetricsAdapter.
func (a *PrometheusMetricsAdapter) SetMutants(total int) {
	a.mutants.Set(float64(total))
}

// Flush implements MetricsAdapter. The file is replaced atomically.
func (a *PrometheusMetricsAdapter) Flush(path m.Path) error {
	if err := os.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	if err := prometheus.WriteToTextfile(string(path), a.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}

	return nil
}
