package distrib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/JSKenyon/quartical"
	"github.com/JSKenyon/quartical/internal/hash"
	"github.com/JSKenyon/quartical/internal/sched"
	"github.com/JSKenyon/quartical/types"
)

// Worker consumes chunk tasks for one worker ID and solves them with a local
// engine.
//
// The worker keeps a per-band lineage cache: because all chunks of a
// frequency band are placed on the same worker and delivered in time order,
// the warm-start predecessor of a task is always the band's previous result.
type Worker struct {
	eng     *quartical.Engine
	js      jetstream.JetStream
	id      string
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector

	// lineage maps a band key to the last result solved for that band.
	lineage map[string]*types.ChunkResult
}

// NewWorker creates a worker for a distributed run.
//
// Parameters:
//   - eng: Local engine used to fetch and solve chunks
//   - nc: NATS connection with JetStream enabled
//   - id: Stable worker identifier; must match the coordinator's worker list
//   - cfg: Shared distrib configuration (zero value uses defaults)
//
// Returns:
//   - *Worker: Initialized worker
//   - error: Wrapped ErrInvalidConfig or ErrNATSConnectionRequired
func NewWorker(eng *quartical.Engine, nc *nats.Conn, id string, cfg Config) (*Worker, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: engine is required", types.ErrInvalidConfig)
	}
	if nc == nil {
		return nil, types.ErrNATSConnectionRequired
	}
	if id == "" {
		return nil, fmt.Errorf("%w: worker ID is required", types.ErrInvalidConfig)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	cfg.applyDefaults()

	return &Worker{
		eng:     eng,
		js:      js,
		id:      id,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		lineage: make(map[string]*types.ChunkResult),
	}, nil
}

// Run consumes and solves tasks until the context is cancelled.
//
// The pull loop tolerates transient JetStream errors by recreating its
// iterator with jittered backoff. Solve failures are reported to the
// coordinator as failed-chunk results and never stop the worker.
//
// Parameters:
//   - ctx: Context bounding the worker's lifetime
//
// Returns:
//   - error: The context error once cancelled, or an unrecoverable setup error
func (w *Worker) Run(ctx context.Context) error {
	cons, err := w.js.CreateOrUpdateConsumer(ctx, w.cfg.TaskStream, jetstream.ConsumerConfig{
		Name:          "worker-" + w.id,
		Durable:       "worker-" + w.id,
		FilterSubject: w.cfg.taskFilter(w.id),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       w.cfg.AckWait,
		MaxDeliver:    w.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create task consumer: %w", err)
	}

	w.logger.Info("worker started", "worker", w.id)

	var backoff time.Duration
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Batch size 1 keeps per-band delivery strictly ordered, which the
		// lineage cache depends on.
		iter, err := cons.Messages(
			jetstream.PullMaxMessages(1),
			jetstream.PullExpiry(w.cfg.FetchTimeout),
			jetstream.PullHeartbeat(w.cfg.FetchTimeout/2),
		)
		if err != nil {
			backoff = jitterBackoff(backoff, w.cfg.RetryBackoff, 2.0, 5*time.Second)
			w.logger.Warn("task iterator failed, retrying", "worker", w.id, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			continue
		}
		backoff = 0

		if err := w.consume(ctx, iter); err != nil {
			iter.Stop()

			return err
		}
		iter.Stop()
	}
}

// consume drains one iterator until it needs recreation or the context ends.
// A nil return means the iterator should be recreated.
func (w *Worker) consume(ctx context.Context, iter jetstream.MessagesContext) error {
	// Stop the iterator when the context ends so Next unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			iter.Stop()
		case <-done:
		}
	}()

	for {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, jetstream.ErrNoHeartbeat) || errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return nil
			}
			w.logger.Warn("task iterator error", "worker", w.id, "error", err)

			return nil
		}

		if err := w.handle(ctx, msg); err != nil {
			_ = msg.Nak()
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// handle solves one task and publishes its result. Only context errors
// propagate; solve failures are reported as failed chunks and acknowledged.
func (w *Worker) handle(ctx context.Context, msg jetstream.Msg) error {
	var task TaskMsg
	if err := json.Unmarshal(msg.Data(), &task); err != nil {
		w.logger.Error("discarding malformed task", "worker", w.id, "error", err)
		_ = msg.Term()

		return nil
	}

	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 1 {
		w.metrics.RecordTaskRetry()
		w.logger.Warn("task redelivered",
			"worker", w.id, "chunk", task.Spec.Key(), "attempt", meta.NumDelivered)
	}

	band := hash.BandKey(task.Spec)
	var prior *types.ChunkResult
	if task.DepKey != "" {
		// A missing or mismatched lineage entry (e.g. the predecessor failed
		// or was solved before a restart) falls back to a cold start.
		if last := w.lineage[band]; last != nil && last.Spec.Key() == task.DepKey {
			prior = last
		}
	}

	key := task.Spec.Key()
	result, err := w.eng.SolveChunk(ctx, task.Spec, prior)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		w.logger.Error("chunk solve failed", "worker", w.id, "chunk", key, "error", err)
		w.metrics.RecordChunkFailure("fetch")

		return w.publishResult(ctx, msg, ResultMsg{
			WorkerID: w.id,
			Diag: types.ChunkDiag{
				Chunk:   key,
				Outcome: types.OutcomeFailed,
				Error:   err.Error(),
			},
		})
	}

	w.lineage[band] = result

	return w.publishResult(ctx, msg, ResultMsg{
		WorkerID: w.id,
		Result:   result,
		Diag:     sched.DiagFor(key, result),
	})
}

// publishResult publishes one result message and acknowledges the task.
func (w *Worker) publishResult(ctx context.Context, msg jetstream.Msg, res ResultMsg) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", res.Diag.Chunk, err)
	}

	if _, err := w.js.Publish(ctx, w.cfg.resultSubject(res.Diag.Chunk), payload); err != nil {
		// Leave the task unacknowledged: redelivery retries the publish.
		return fmt.Errorf("publish result %s: %w", res.Diag.Chunk, err)
	}

	return msg.Ack()
}
