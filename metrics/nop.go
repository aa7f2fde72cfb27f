package metrics

import "github.com/JSKenyon/quartical/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	metrics := metrics.NewNop()
//	eng := quartical.New(&cfg, src, quartical.WithMetrics(metrics))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// PlannerMetrics implementation

// RecordChunksPlanned discards the planned-chunk count.
func (n *NopMetrics) RecordChunksPlanned(_ /* count */ int) {
	// No-op
}

// RecordPlanDuration discards the planning duration.
func (n *NopMetrics) RecordPlanDuration(_ /* seconds */ float64) {
	// No-op
}

// SolverMetrics implementation

// RecordChunkSolve discards the chunk solve record.
func (n *NopMetrics) RecordChunkSolve(_ /* outcome */ string, _ /* seconds */ float64) {
	// No-op
}

// RecordIterations discards the iteration count.
func (n *NopMetrics) RecordIterations(_ /* term */ string, _ /* count */ int) {
	// No-op
}

// RecordFinalResidual discards the residual observation.
func (n *NopMetrics) RecordFinalResidual(_ /* residual */ float64) {
	// No-op
}

// RecordNonFinite discards the non-finite counter increment.
func (n *NopMetrics) RecordNonFinite() {
	// No-op
}

// SchedulerMetrics implementation

// SetInFlight discards the in-flight gauge update.
func (n *NopMetrics) SetInFlight(_ /* count */ int) {
	// No-op
}

// RecordChunkFailure discards the failure counter increment.
func (n *NopMetrics) RecordChunkFailure(_ /* kind */ string) {
	// No-op
}

// RecordTaskRetry discards the retry counter increment.
func (n *NopMetrics) RecordTaskRetry() {
	// No-op
}

// AssemblyMetrics implementation

// RecordCellOutcomes discards the cell outcome counts.
func (n *NopMetrics) RecordCellOutcomes(_ /* term */ string, _ /* flag */ string, _ /* count */ int) {
	// No-op
}

// RecordAssemblyDuration discards the merge duration.
func (n *NopMetrics) RecordAssemblyDuration(_ /* seconds */ float64) {
	// No-op
}
