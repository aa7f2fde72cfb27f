package hash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JSKenyon/quartical/types"
)

func spec(ti, fi int) types.ChunkSpec {
	return types.ChunkSpec{
		TimeIdx: ti, FreqIdx: fi,
		TimeCount: 8, FreqCount: 8, NAnt: 4, NCorr: 2,
	}
}

func TestNewRing(t *testing.T) {
	t.Run("places virtual nodes for every worker", func(t *testing.T) {
		ring := NewRing([]string{"worker-0", "worker-1", "worker-2"}, 50, 0)

		require.Equal(t, 150, ring.Size())
		require.Equal(t, []string{"worker-0", "worker-1", "worker-2"}, ring.Workers())
	})

	t.Run("deduplicates workers", func(t *testing.T) {
		ring := NewRing([]string{"worker-0", "worker-1", "worker-0"}, 10, 0)

		require.Equal(t, 20, ring.Size())
		require.Equal(t, []string{"worker-0", "worker-1"}, ring.Workers())
	})

	t.Run("empty ring returns empty worker", func(t *testing.T) {
		ring := NewRing(nil, 10, 0)

		require.Empty(t, ring.GetNode("t000000-f000000"))
		require.Empty(t, ring.GetNodeForChunk(spec(0, 0)))
	})
}

func TestRing_GetNodeForChunk(t *testing.T) {
	workers := []string{"worker-0", "worker-1", "worker-2"}
	ring := NewRing(workers, 100, 7)

	t.Run("placement is deterministic", func(t *testing.T) {
		other := NewRing(workers, 100, 7)
		for fi := range 20 {
			require.Equal(t, ring.GetNodeForChunk(spec(0, fi)), other.GetNodeForChunk(spec(0, fi)))
		}
	})

	t.Run("a band's chunks share a worker", func(t *testing.T) {
		// Warm-start chains run within a band, so every chunk of the band
		// must land on the same worker.
		for fi := range 10 {
			first := ring.GetNodeForChunk(spec(0, fi))
			for ti := 1; ti < 5; ti++ {
				require.Equal(t, first, ring.GetNodeForChunk(spec(ti, fi)))
			}
		}
	})

	t.Run("bands spread across workers", func(t *testing.T) {
		used := make(map[string]bool)
		for fi := range 40 {
			used[ring.GetNodeForChunk(spec(0, fi))] = true
		}
		require.Len(t, used, len(workers))
	})

	t.Run("removing a worker only moves its own bands", func(t *testing.T) {
		shrunk := NewRing([]string{"worker-0", "worker-1"}, 100, 7)
		for fi := range 40 {
			before := ring.GetNodeForChunk(spec(0, fi))
			if before == "worker-2" {
				continue
			}
			require.Equal(t, before, shrunk.GetNodeForChunk(spec(0, fi)))
		}
	})
}

func TestBalancedRing_AssignChunks(t *testing.T) {
	workers := []string{"worker-0", "worker-1", "worker-2"}

	specs := make([]types.ChunkSpec, 0, 60)
	for ti := range 3 {
		for fi := range 20 {
			specs = append(specs, spec(ti, fi))
		}
	}

	t.Run("assigns every chunk exactly once", func(t *testing.T) {
		br := NewBalanced(workers, 100, 7)
		assignments := br.AssignChunks(specs)

		total := 0
		for _, chunks := range assignments {
			total += len(chunks)
		}
		require.Equal(t, len(specs), total)
	})

	t.Run("no worker exceeds the load headroom", func(t *testing.T) {
		br := NewBalanced(workers, 100, 7)
		br.AssignChunks(specs)

		var totalLoad int64
		for _, s := range specs {
			totalLoad += s.Elements()
		}
		maxLoad := totalLoad / int64(len(workers)) * 115 / 100
		// A single spilled chunk may sit just above the threshold.
		slack := specs[0].Elements()
		for _, w := range workers {
			require.LessOrEqual(t, br.GetWorkerLoad(w), maxLoad+slack)
		}
	})

	t.Run("empty inputs yield empty assignments", func(t *testing.T) {
		br := NewBalanced(workers, 100, 7)
		require.Empty(t, br.AssignChunks(nil))

		empty := NewBalanced(nil, 100, 7)
		require.Empty(t, empty.AssignChunks(specs))
	})
}
