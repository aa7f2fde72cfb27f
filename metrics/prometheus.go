package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JSKenyon/quartical/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metric registration is deferred until first use so that constructing an
// engine with the default registerer never fails in processes that build
// several engines but only run one.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	chunksPlanned    prometheus.Gauge
	planDuration     prometheus.Histogram
	chunkSolves      *prometheus.CounterVec
	solveDuration    *prometheus.HistogramVec
	termIterations   *prometheus.HistogramVec
	finalResidual    prometheus.Histogram
	nonFiniteTotal   prometheus.Counter
	inFlight         prometheus.Gauge
	chunkFailures    *prometheus.CounterVec
	taskRetries      prometheus.Counter
	cellOutcomes     *prometheus.CounterVec
	assemblyDuration prometheus.Histogram
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "quartical" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "quartical"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.chunksPlanned = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "planner",
			Name:      "chunks_planned",
			Help:      "Number of chunks produced by the most recent planning pass.",
		})

		p.planDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "planner",
			Name:      "plan_duration_seconds",
			Help:      "Duration of chunk planning passes in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us .. ~1.6s
		})

		p.chunkSolves = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "solver",
			Name:      "chunk_solves_total",
			Help:      "Completed chunk solves by terminal outcome.",
		}, []string{"outcome"})

		p.solveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "solver",
			Name:      "solve_duration_seconds",
			Help:      "Wall-clock duration of chunk solves in seconds by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12), // 1ms .. ~60s
		}, []string{"outcome"})

		p.termIterations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "solver",
			Name:      "term_iterations",
			Help:      "Update sweeps taken per gain term per chunk.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}, []string{"term"})

		p.finalResidual = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "solver",
			Name:      "final_residual",
			Help:      "Final weighted RMS residual of chunk solves.",
			Buckets:   prometheus.ExponentialBuckets(1e-8, 10, 10),
		})

		p.nonFiniteTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "solver",
			Name:      "nonfinite_detections_total",
			Help:      "Detected non-finite intermediate values across all solves.",
		})

		p.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "chunks_in_flight",
			Help:      "Chunks currently being solved.",
		})

		p.chunkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "chunk_failures_total",
			Help:      "Isolated per-chunk failures by kind (data_shape, fetch, cancelled).",
		}, []string{"kind"})

		p.taskRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "task_retries_total",
			Help:      "Redelivered or retried distributed solve tasks.",
		})

		p.cellOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assembly",
			Name:      "cell_outcomes_total",
			Help:      "Assembled solution cells by term and flag.",
		}, []string{"term", "flag"})

		p.assemblyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "assembly",
			Name:      "merge_duration_seconds",
			Help:      "Duration of solution-table merges in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		})

		p.reg.MustRegister(p.chunksPlanned)
		p.reg.MustRegister(p.planDuration)
		p.reg.MustRegister(p.chunkSolves)
		p.reg.MustRegister(p.solveDuration)
		p.reg.MustRegister(p.termIterations)
		p.reg.MustRegister(p.finalResidual)
		p.reg.MustRegister(p.nonFiniteTotal)
		p.reg.MustRegister(p.inFlight)
		p.reg.MustRegister(p.chunkFailures)
		p.reg.MustRegister(p.taskRetries)
		p.reg.MustRegister(p.cellOutcomes)
		p.reg.MustRegister(p.assemblyDuration)
	})
}

// PlannerMetrics implementation

// RecordChunksPlanned sets the planned-chunk gauge.
func (p *PrometheusCollector) RecordChunksPlanned(count int) {
	p.ensureRegistered()
	p.chunksPlanned.Set(float64(count))
}

// RecordPlanDuration observes a planning pass duration.
func (p *PrometheusCollector) RecordPlanDuration(seconds float64) {
	p.ensureRegistered()
	p.planDuration.Observe(seconds)
}

// SolverMetrics implementation

// RecordChunkSolve counts a completed chunk solve and observes its duration.
func (p *PrometheusCollector) RecordChunkSolve(outcome string, seconds float64) {
	p.ensureRegistered()
	p.chunkSolves.WithLabelValues(outcome).Inc()
	p.solveDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordIterations observes the sweep count of one term's solve.
func (p *PrometheusCollector) RecordIterations(term string, count int) {
	p.ensureRegistered()
	p.termIterations.WithLabelValues(term).Observe(float64(count))
}

// RecordFinalResidual observes a final weighted residual norm.
func (p *PrometheusCollector) RecordFinalResidual(residual float64) {
	p.ensureRegistered()
	p.finalResidual.Observe(residual)
}

// RecordNonFinite counts a detected non-finite intermediate value.
func (p *PrometheusCollector) RecordNonFinite() {
	p.ensureRegistered()
	p.nonFiniteTotal.Inc()
}

// SchedulerMetrics implementation

// SetInFlight sets the in-flight chunk gauge.
func (p *PrometheusCollector) SetInFlight(count int) {
	p.ensureRegistered()
	p.inFlight.Set(float64(count))
}

// RecordChunkFailure counts an isolated per-chunk failure.
func (p *PrometheusCollector) RecordChunkFailure(kind string) {
	p.ensureRegistered()
	p.chunkFailures.WithLabelValues(kind).Inc()
}

// RecordTaskRetry counts a redelivered distributed task.
func (p *PrometheusCollector) RecordTaskRetry() {
	p.ensureRegistered()
	p.taskRetries.Inc()
}

// AssemblyMetrics implementation

// RecordCellOutcomes adds to the per-term cell outcome counters.
func (p *PrometheusCollector) RecordCellOutcomes(term string, flag string, count int) {
	p.ensureRegistered()
	p.cellOutcomes.WithLabelValues(term, flag).Add(float64(count))
}

// RecordAssemblyDuration observes a solution-table merge duration.
func (p *PrometheusCollector) RecordAssemblyDuration(seconds float64) {
	p.ensureRegistered()
	p.assemblyDuration.Observe(seconds)
}
