package distrib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/JSKenyon/quartical"
	"github.com/JSKenyon/quartical/internal/hash"
	"github.com/JSKenyon/quartical/types"
)

// Coordinator drives one distributed calibration run.
//
// The coordinator owns planning, chunk placement and final assembly; all
// solving happens on workers. It is single-use: create one Coordinator per
// run.
type Coordinator struct {
	eng     *quartical.Engine
	js      jetstream.JetStream
	cfg     Config
	workers []string
	logger  types.Logger
	metrics types.MetricsCollector
	started atomic.Bool
}

// NewCoordinator creates a coordinator for a distributed run.
//
// Parameters:
//   - eng: Local engine used for planning and assembly (not solving)
//   - nc: NATS connection with JetStream enabled
//   - workers: Worker IDs that will consume tasks; must be non-empty
//   - cfg: Shared distrib configuration (zero value uses defaults)
//
// Returns:
//   - *Coordinator: Initialized coordinator
//   - error: Wrapped ErrInvalidConfig, ErrNATSConnectionRequired or
//     ErrNoWorkersAvailable
func NewCoordinator(eng *quartical.Engine, nc *nats.Conn, workers []string, cfg Config) (*Coordinator, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: engine is required", types.ErrInvalidConfig)
	}
	if nc == nil {
		return nil, types.ErrNATSConnectionRequired
	}
	if len(workers) == 0 {
		return nil, types.ErrNoWorkersAvailable
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	cfg.applyDefaults()

	return &Coordinator{
		eng:     eng,
		js:      js,
		cfg:     cfg,
		workers: workers,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Run executes a full distributed calibration pass.
//
// Tasks are published in (TimeIdx, FreqIdx) order, which is time order within
// each frequency band; band-affine placement plus in-order consumption on
// each worker preserves the warm-start lineage. Run blocks until every chunk
// has reported a result or the context is cancelled.
//
// Parameters:
//   - ctx: Context bounding the whole run
//
// Returns:
//   - *types.SolutionTable: Finalized table assembled from worker results
//   - error: ErrAlreadyStarted on reuse, a planning, stream, publish or
//     context error, or wrapped ErrAssembly
func (c *Coordinator) Run(ctx context.Context) (*types.SolutionTable, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, types.ErrAlreadyStarted
	}

	if err := c.ensureStreams(ctx); err != nil {
		return nil, err
	}

	specs, err := c.eng.Plan(ctx)
	if err != nil {
		return nil, err
	}

	// The result consumer must exist before the first task is published, or
	// an early result could slip past it.
	resultCons, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.ResultStream, jetstream.ConsumerConfig{
		Name:          "coordinator",
		FilterSubject: c.cfg.resultSubjects(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
	})
	if err != nil {
		return nil, fmt.Errorf("create result consumer: %w", err)
	}

	assignments, err := c.publishTasks(ctx, specs)
	if err != nil {
		return nil, err
	}
	c.logger.Info("tasks dispatched",
		"chunks", len(specs), "workers", len(assignments))

	results, diags, err := c.collectResults(ctx, resultCons, len(specs))
	if err != nil {
		return nil, err
	}

	return c.eng.Assemble(ctx, results, diags)
}

// ensureStreams creates the task and result work-queue streams if absent.
func (c *Coordinator) ensureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      c.cfg.TaskStream,
			Subjects:  []string{c.cfg.taskSubjects()},
			Retention: jetstream.WorkQueuePolicy,
		},
		{
			Name:      c.cfg.ResultStream,
			Subjects:  []string{c.cfg.resultSubjects()},
			Retention: jetstream.WorkQueuePolicy,
		},
	}
	for _, sc := range streams {
		if _, err := c.js.CreateOrUpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream %s: %w", sc.Name, err)
		}
	}

	return nil
}

// publishTasks assigns every chunk to a worker and publishes the tasks in
// deterministic order. Returns the per-worker chunk counts.
func (c *Coordinator) publishTasks(ctx context.Context, specs []types.ChunkSpec) (map[string]int, error) {
	placement := c.placeChunks(specs)
	warmStart := !c.eng.Config().DisableWarmStart

	assignments := make(map[string]int, len(c.workers))
	for _, spec := range specs {
		task := TaskMsg{Spec: spec}
		if warmStart && spec.TimeIdx > 0 {
			task.DepKey = types.ChunkSpec{TimeIdx: spec.TimeIdx - 1, FreqIdx: spec.FreqIdx}.Key()
		}

		payload, err := json.Marshal(task)
		if err != nil {
			return nil, fmt.Errorf("marshal task %s: %w", spec.Key(), err)
		}

		workerID := placement[spec.Key()]
		if _, err := c.js.Publish(ctx, c.cfg.taskSubject(workerID, spec.Key()), payload); err != nil {
			return nil, fmt.Errorf("publish task %s: %w", spec.Key(), err)
		}
		assignments[workerID]++
	}

	return assignments, nil
}

// placeChunks maps every chunk key to a worker. Plain placement is purely
// band-affine; balanced placement may spill chunks off an overloaded worker,
// and a spilled chunk cold-starts on its new worker because the band's
// lineage stays behind.
func (c *Coordinator) placeChunks(specs []types.ChunkSpec) map[string]string {
	placement := make(map[string]string, len(specs))

	if c.cfg.Balanced {
		ring := hash.NewBalanced(c.workers, c.cfg.VirtualNodes, c.cfg.RingSeed)
		for workerID, assigned := range ring.AssignChunks(specs) {
			for _, spec := range assigned {
				placement[spec.Key()] = workerID
			}
		}

		return placement
	}

	ring := hash.NewRing(c.workers, c.cfg.VirtualNodes, c.cfg.RingSeed)
	for _, spec := range specs {
		placement[spec.Key()] = ring.GetNodeForChunk(spec)
	}

	return placement
}

// collectResults consumes result messages until every chunk has reported.
func (c *Coordinator) collectResults(ctx context.Context, cons jetstream.Consumer, total int) ([]*types.ChunkResult, []types.ChunkDiag, error) {
	results := make([]*types.ChunkResult, 0, total)
	diags := make([]types.ChunkDiag, 0, total)

	iter, err := cons.Messages(
		jetstream.PullMaxMessages(1),
		jetstream.PullExpiry(c.cfg.FetchTimeout),
		jetstream.PullHeartbeat(c.cfg.FetchTimeout/2),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create result iterator: %w", err)
	}
	defer iter.Stop()

	// Stop the iterator when the run context ends so Next unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			iter.Stop()
		case <-done:
		}
	}()

	for len(diags) < total {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			if errors.Is(err, jetstream.ErrNoHeartbeat) {
				continue
			}

			return nil, nil, fmt.Errorf("receive result: %w", err)
		}

		var res ResultMsg
		if err := json.Unmarshal(msg.Data(), &res); err != nil {
			c.logger.Error("discarding malformed result message", "error", err)
			_ = msg.Term()

			continue
		}
		_ = msg.Ack()

		if res.Result != nil {
			results = append(results, res.Result)
		}
		diags = append(diags, res.Diag)
		c.logger.Debug("chunk result received",
			"chunk", res.Diag.Chunk, "worker", res.WorkerID, "outcome", res.Diag.Outcome)
	}

	// Results arrive in completion order; the table's diagnostics are kept in
	// chunk-key order.
	slices.SortFunc(diags, func(a, b types.ChunkDiag) int {
		return strings.Compare(a.Chunk, b.Chunk)
	})

	return results, diags, nil
}
