package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from solver goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	PlannerMetrics
	SolverMetrics
	SchedulerMetrics
	AssemblyMetrics
}

// PlannerMetrics defines metrics for chunk planning.
type PlannerMetrics interface {
	// RecordChunksPlanned sets the number of chunks produced by a planning pass.
	RecordChunksPlanned(count int)

	// RecordPlanDuration records the time taken to plan, in seconds.
	RecordPlanDuration(seconds float64)
}

// SolverMetrics defines metrics for per-chunk solves.
type SolverMetrics interface {
	// RecordChunkSolve records a completed chunk solve.
	//
	// Parameters:
	//   - outcome: Terminal outcome ("converged", "max_iter_reached", "diverged", "skipped", "failed")
	//   - seconds: Wall-clock solve duration
	RecordChunkSolve(outcome string, seconds float64)

	// RecordIterations records the iteration count used by one term's solve.
	RecordIterations(term string, count int)

	// RecordFinalResidual observes the final weighted residual norm of a chunk.
	RecordFinalResidual(residual float64)

	// RecordNonFinite counts a detected non-finite intermediate value.
	RecordNonFinite()
}

// SchedulerMetrics defines metrics for the chunk executor.
type SchedulerMetrics interface {
	// SetInFlight sets the current number of chunks being solved.
	SetInFlight(count int)

	// RecordChunkFailure counts an isolated per-chunk failure by kind
	// ("data_shape", "fetch", "cancelled").
	RecordChunkFailure(kind string)

	// RecordTaskRetry counts a redelivered/retried distributed task.
	RecordTaskRetry()
}

// AssemblyMetrics defines metrics for solution assembly.
type AssemblyMetrics interface {
	// RecordCellOutcomes records how many cells of a term ended with the
	// given flag ("solved", "non_converged", "diverged", "fallback").
	RecordCellOutcomes(term string, flag string, count int)

	// RecordAssemblyDuration records the merge duration in seconds.
	RecordAssemblyDuration(seconds float64)
}
