package distrib

import (
	"github.com/JSKenyon/quartical/types"
)

// TaskMsg is one chunk-solve assignment published to a worker.
type TaskMsg struct {
	// Spec identifies the chunk to solve.
	Spec types.ChunkSpec `json:"spec"`

	// DepKey is the chunk key of the warm-start predecessor, empty for chain
	// roots. The predecessor always lives on the same worker (band-affine
	// placement), so the worker resolves it from its local lineage cache.
	DepKey string `json:"depKey,omitempty"`
}

// ResultMsg is one finished chunk published back to the coordinator.
//
// Result is nil when the chunk failed; Diag always carries the outcome.
type ResultMsg struct {
	// WorkerID names the worker that produced the result.
	WorkerID string `json:"workerId"`

	// Result holds the solved chunk, nil on failure.
	Result *types.ChunkResult `json:"result,omitempty"`

	// Diag is the per-chunk diagnostic record.
	Diag types.ChunkDiag `json:"diag"`
}
