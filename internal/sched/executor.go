package sched

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/JSKenyon/quartical/types"
)

// SolveFunc runs one chunk solve. prior is the warm-start predecessor's
// result, or nil for a cold start.
type SolveFunc func(ctx context.Context, spec types.ChunkSpec, prior *types.ChunkResult) (*types.ChunkResult, error)

// RunResult aggregates one executor run.
type RunResult struct {
	// Results holds the successful chunk results in (TimeIdx, FreqIdx) order.
	Results []*types.ChunkResult

	// Diags holds one record per scheduled chunk, including failures, in the
	// same order.
	Diags []types.ChunkDiag
}

// Executor runs the chunk graph on a bounded worker pool.
//
// A failing chunk (fetch error, shape error) is recorded and isolated: its
// dependents still run, cold. Only context cancellation aborts the whole run.
type Executor struct {
	parallelism int
	logger      types.Logger
	metrics     types.MetricsCollector
}

// NewExecutor creates a chunk executor.
//
// Parameters:
//   - parallelism: Maximum concurrent chunk solves (min 1)
//   - logger: Structured logger
//   - metrics: Metrics collector
func NewExecutor(parallelism int, logger types.Logger, metrics types.MetricsCollector) *Executor {
	if parallelism < 1 {
		parallelism = 1
	}

	return &Executor{parallelism: parallelism, logger: logger, metrics: metrics}
}

// Run executes every node of the graph and collects results and diagnostics.
//
// Returns:
//   - *RunResult: Per-chunk results and diagnostics in deterministic order
//   - error: Context error when the run was cancelled, nil otherwise
func (e *Executor) Run(ctx context.Context, dag *DAG, solve SolveFunc) (*RunResult, error) {
	total := dag.Len()
	if total == 0 {
		return &RunResult{}, nil
	}

	results := xsync.NewMap[string, *types.ChunkResult]()
	diags := xsync.NewMap[string, types.ChunkDiag]()

	ready := make(chan *Node, total)
	for _, n := range dag.roots() {
		ready <- n
	}

	var completed atomic.Int32
	var inFlight atomic.Int32

	finish := func(n *Node) {
		for _, child := range n.children {
			if child.pending.Add(-1) == 0 {
				ready <- child
			}
		}
		if int(completed.Add(1)) == total {
			close(ready)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	for range e.parallelism {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return gCtx.Err()
				case n, ok := <-ready:
					if !ok {
						return nil
					}

					e.metrics.SetInFlight(int(inFlight.Add(1)))
					err := e.runNode(gCtx, n, solve, results, diags)
					e.metrics.SetInFlight(int(inFlight.Add(-1)))
					if err != nil {
						return err
					}
					finish(n)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return e.collect(dag, results, diags), nil
}

// runNode solves one chunk and records its result or failure. Only context
// errors propagate; everything else is isolated.
func (e *Executor) runNode(ctx context.Context, n *Node, solve SolveFunc,
	results *xsync.Map[string, *types.ChunkResult], diags *xsync.Map[string, types.ChunkDiag],
) error {
	key := n.Spec.Key()

	var prior *types.ChunkResult
	if n.DepKey != "" {
		// A failed predecessor left no result; the chunk restarts cold.
		prior, _ = results.Load(n.DepKey)
	}

	result, err := solve(ctx, n.Spec, prior)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.metrics.RecordChunkFailure("cancelled")

			return err
		}

		e.logger.Error("chunk solve failed", "chunk", key, "error", err)
		e.metrics.RecordChunkFailure(failureKind(err))
		diags.Store(key, types.ChunkDiag{
			Chunk:   key,
			Outcome: types.OutcomeFailed,
			Error:   err.Error(),
		})

		return nil
	}

	results.Store(key, result)
	diags.Store(key, DiagFor(key, result))

	return nil
}

// collect flattens the concurrent maps into deterministic slices.
func (e *Executor) collect(dag *DAG,
	results *xsync.Map[string, *types.ChunkResult], diags *xsync.Map[string, types.ChunkDiag],
) *RunResult {
	out := &RunResult{
		Results: make([]*types.ChunkResult, 0, results.Size()),
		Diags:   make([]types.ChunkDiag, 0, dag.Len()),
	}
	for _, n := range dag.Nodes() {
		key := n.Spec.Key()
		if r, ok := results.Load(key); ok {
			out.Results = append(out.Results, r)
		}
		if d, ok := diags.Load(key); ok {
			out.Diags = append(out.Diags, d)
		}
	}

	return out
}

// DiagFor summarises a chunk result as a diagnostic record: the maximum
// iteration count across terms and the least successful term outcome.
func DiagFor(key string, result *types.ChunkResult) types.ChunkDiag {
	diag := types.ChunkDiag{
		Chunk:         key,
		Outcome:       types.OutcomeConverged,
		FinalResidual: result.ResidualNorm,
	}
	for _, tr := range result.Terms {
		diag.Iterations = max(diag.Iterations, tr.Iterations)
		// The least successful term outcome labels the chunk.
		if outcomeRank(tr.Outcome) > outcomeRank(diag.Outcome) {
			diag.Outcome = tr.Outcome
		}
	}

	return diag
}

func outcomeRank(o types.Outcome) int {
	return slices.Index([]types.Outcome{
		types.OutcomeConverged,
		types.OutcomeMaxIter,
		types.OutcomeDiverged,
		types.OutcomeSkipped,
		types.OutcomeFailed,
	}, o)
}

// failureKind classifies an isolated chunk failure for metrics.
func failureKind(err error) string {
	if errors.Is(err, types.ErrDataShape) {
		return "data_shape"
	}

	return "fetch"
}
