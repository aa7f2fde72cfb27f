package quartical

import (
	"context"
	"fmt"
	"time"

	"github.com/JSKenyon/quartical/internal/assemble"
	"github.com/JSKenyon/quartical/internal/logger"
	"github.com/JSKenyon/quartical/internal/sched"
	"github.com/JSKenyon/quartical/internal/solver"
	"github.com/JSKenyon/quartical/metrics"
	"github.com/JSKenyon/quartical/plan"
	"github.com/JSKenyon/quartical/term"
	"github.com/JSKenyon/quartical/types"
	"github.com/JSKenyon/quartical/weighting"
)

// Engine orchestrates a full calibration run: planning chunks over the
// observation, solving them concurrently with warm-start lineage, and
// assembling the merged solution table.
//
// An Engine is immutable after construction and safe for concurrent use; each
// Run and SolveChunk call carries its own state.
type Engine struct {
	cfg     *Config
	src     types.VisSource
	models  []term.Model
	solver  *solver.Solver
	logger  types.Logger
	metrics types.MetricsCollector
}

// New creates a calibration engine.
//
// The config is validated eagerly: every configuration problem surfaces here,
// before any chunk runs.
//
// Parameters:
//   - cfg: Engine configuration (not retained mutably; copied)
//   - src: Visibility source providing extents and chunk data
//   - opts: Functional options (WithLogger, WithMetrics, WithKernel)
//
// Returns:
//   - *Engine: Configured engine
//   - error: Wrapped ErrInvalidConfig/ErrEmptyChain/ErrVisSourceRequired on
//     invalid inputs
//
// Example:
//
//	cfg := quartical.DefaultConfig()
//	cfg.Chain = []quartical.GainTerm{
//	    {Name: "G", Kind: quartical.TermPhase, TimeInterval: 8, FreqInterval: 1},
//	}
//	eng, err := quartical.New(&cfg, src, quartical.WithLogger(myLogger))
func New(cfg *Config, src types.VisSource, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if src == nil {
		return nil, ErrVisSourceRequired
	}

	cfgCopy := *cfg
	cfgCopy.SetDefaults()
	if err := cfgCopy.Validate(); err != nil {
		return nil, err
	}

	options := engineOptions{
		logger:  logger.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.kernel == nil {
		kernel, err := weighting.New(cfgCopy.Solver.RobustKernel)
		if err != nil {
			return nil, err
		}
		options.kernel = kernel
	}

	models, err := term.Chain(cfgCopy.Chain)
	if err != nil {
		return nil, err
	}

	s := solver.New(cfgCopy.Chain, models, options.kernel, solver.Options{
		MaxIter:       cfgCopy.Solver.MaxIter,
		RelTol:        cfgCopy.Solver.RelTol,
		AbsTol:        cfgCopy.Solver.AbsTol,
		DivergeStreak: cfgCopy.Solver.DivergeStreak,
		StepDamping:   cfgCopy.Solver.StepDamping,
		MaxStep:       cfgCopy.Solver.MaxStep,
		UpdateTol:     cfgCopy.Solver.UpdateTol,
		ChunkTimeout:  cfgCopy.Solver.ChunkTimeout,
	}, options.logger, options.metrics)

	return &Engine{
		cfg:     &cfgCopy,
		src:     src,
		models:  models,
		solver:  s,
		logger:  options.logger,
		metrics: options.metrics,
	}, nil
}

// Config returns a copy of the engine's effective (defaulted) configuration.
func (e *Engine) Config() Config {
	return *e.cfg
}

// Plan partitions the observation into chunk specs.
//
// The plan is deterministic for a given observation and chain: chunks are
// aligned to the combined solution-interval widths and ordered by
// (TimeIdx, FreqIdx).
//
// Parameters:
//   - ctx: Context for the extents fetch
//
// Returns:
//   - []types.ChunkSpec: Chunks covering the full extent, no gaps or overlaps
//   - error: Extents fetch error, or wrapped ErrInvalidConfig/ErrChunkBudget
func (e *Engine) Plan(ctx context.Context) ([]types.ChunkSpec, error) {
	ext, err := e.src.Extents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch extents: %w", err)
	}

	return e.planFor(ext)
}

// planFor plans against already-fetched extents.
func (e *Engine) planFor(ext types.Extents) ([]types.ChunkSpec, error) {
	start := time.Now()

	// Full 2x2 terms need all four correlations to be constrained.
	if ext.NCorr != 4 {
		for _, t := range e.cfg.Chain {
			if t.Kind == types.TermComplex {
				return nil, fmt.Errorf("%w: term %q requires four-correlation data, observation has %d",
					ErrInvalidConfig, t.Name, ext.NCorr)
			}
		}
	}

	specs, err := plan.Chunks(ext, e.cfg.Chain, e.cfg.MaxChunkElements)
	if err != nil {
		return nil, err
	}

	e.metrics.RecordChunksPlanned(len(specs))
	e.metrics.RecordPlanDuration(time.Since(start).Seconds())
	e.logger.Info("observation planned",
		"chunks", len(specs),
		"times", ext.NTime, "chans", ext.NChan, "antennas", ext.NAnt)

	return specs, nil
}

// SolveChunk fetches and solves a single chunk.
//
// This is the unit of work dispatched by Run and by distributed workers. The
// prior result, when non-nil, warm-starts the solve from the preceding chunk
// in the same frequency band.
//
// Parameters:
//   - ctx: Context for cancellation
//   - spec: Chunk to solve
//   - prior: Warm-start predecessor result, or nil for a cold start
//
// Returns:
//   - *types.ChunkResult: Finalized per-term parameters, flags and diagnostics
//   - error: Fetch error, wrapped ErrDataShape, or context error
func (e *Engine) SolveChunk(ctx context.Context, spec types.ChunkSpec, prior *types.ChunkResult) (*types.ChunkResult, error) {
	data, err := e.src.FetchChunk(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("fetch chunk %s: %w", spec.Key(), err)
	}

	return e.solver.Solve(ctx, data, prior)
}

// Run executes a complete calibration pass: plan, solve all chunks on a
// bounded worker pool, and assemble the merged solution table.
//
// Chunk failures are isolated: a chunk that fails to fetch or solve is
// recorded in the table diagnostics, its dependents run cold, and its
// coverage is filled by the fallback policy. Only context cancellation or an
// irrecoverable configuration/assembly problem aborts the run.
//
// Parameters:
//   - ctx: Context for cooperative cancellation
//
// Returns:
//   - *types.SolutionTable: Finalized table with every cell flagged
//   - error: Planning error, context error, or wrapped ErrAssembly
func (e *Engine) Run(ctx context.Context) (*types.SolutionTable, error) {
	ext, err := e.src.Extents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch extents: %w", err)
	}

	specs, err := e.planFor(ext)
	if err != nil {
		return nil, err
	}

	dag := sched.BuildDAG(specs, !e.cfg.DisableWarmStart)
	exec := sched.NewExecutor(e.cfg.Parallelism, e.logger, e.metrics)

	run, err := exec.Run(ctx, dag, e.SolveChunk)
	if err != nil {
		return nil, err
	}

	return e.Assemble(ctx, run.Results, run.Diags)
}

// Assemble merges independently produced chunk results into a finalized
// solution table.
//
// Run calls this internally; it is exported for distributed executions where
// chunk results arrive from remote workers (see the distrib package).
//
// Parameters:
//   - ctx: Context for the extents fetch
//   - results: Successful chunk results, any order
//   - diags: Per-chunk diagnostics to attach to the table
//
// Returns:
//   - *types.SolutionTable: Finalized table with every cell flagged
//   - error: Extents fetch error or wrapped ErrAssembly
func (e *Engine) Assemble(ctx context.Context, results []*types.ChunkResult, diags []types.ChunkDiag) (*types.SolutionTable, error) {
	ext, err := e.src.Extents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch extents: %w", err)
	}

	asm := assemble.New(ext, e.cfg.Chain, e.logger, e.metrics)

	return asm.Merge(results, diags)
}
