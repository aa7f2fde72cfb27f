// Package hash provides consistent-hash placement of chunks onto workers.
package hash

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/JSKenyon/quartical/types"
)

// Ring implements a consistent hash ring with virtual nodes.
//
// The ring maps chunk keys to workers using consistent hashing, which keeps
// chunk placement stable when workers join or leave. Stable placement matters
// for warm starts: successive chunks of the same frequency band land on the
// same worker and reuse its solution lineage.
type Ring struct {
	// nodes contains all virtual nodes on the ring, sorted by hash
	nodes []virtualNode

	// workers holds the unique list of workers present on the ring
	workers []string

	// seed for hash function (0 means unseeded)
	seed uint64
}

// virtualNode represents a virtual node on the hash ring.
type virtualNode struct {
	hash     uint64 // Position on the ring
	workerID string // Worker owning this virtual node
}

// NewRing creates a new consistent hash ring.
//
// Parameters:
//   - workers: List of worker IDs to place on the ring
//   - virtualNodesPerWorker: Number of virtual nodes per worker (higher = better distribution)
//   - seed: Seed for hash function (use 0 for unseeded, non-zero for deterministic placement domains)
//
// Returns:
//   - *Ring: Initialized hash ring
//
// Example:
//
//	ring := hash.NewRing([]string{"worker-0", "worker-1"}, 150, 0)
//	workerID := ring.GetNodeForChunk(spec)
func NewRing(workers []string, virtualNodesPerWorker int, seed uint64) *Ring {
	ring := &Ring{
		nodes:   make([]virtualNode, 0, len(workers)*virtualNodesPerWorker),
		workers: []string{},
		seed:    seed,
	}

	// Deduplicate workers while preserving order
	if len(workers) > 0 {
		seen := make(map[string]struct{}, len(workers))
		uniq := make([]string, 0, len(workers))
		for _, w := range workers {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			uniq = append(uniq, w)
		}
		ring.workers = uniq
	}

	for _, workerID := range ring.workers {
		ring.addWorker(workerID, virtualNodesPerWorker)
	}

	// Sort nodes by hash for binary search
	slices.SortFunc(ring.nodes, func(a, b virtualNode) int {
		if a.hash < b.hash {
			return -1
		}
		if a.hash > b.hash {
			return 1
		}

		return 0
	})

	return ring
}

// GetNode finds the worker responsible for an arbitrary key.
//
// Uses binary search to find the first virtual node whose hash is >= the key
// hash, wrapping around to the first node past the end of the ring.
//
// Parameters:
//   - key: Placement key (typically a chunk key)
//
// Returns:
//   - string: Worker ID responsible for this key, "" for an empty ring
func (r *Ring) GetNode(key string) string {
	if len(r.nodes) == 0 {
		return ""
	}

	return r.getNodeByHash(r.hash(key))
}

// GetNodeForChunk finds the worker for a chunk.
//
// All chunks in one frequency band share a placement key, so a band's whole
// warm-start chain is pinned to a single worker.
//
// Parameters:
//   - spec: Chunk to place
//
// Returns:
//   - string: Worker ID responsible for this chunk, "" for an empty ring
func (r *Ring) GetNodeForChunk(spec types.ChunkSpec) string {
	if len(r.nodes) == 0 {
		return ""
	}

	return r.getNodeByHash(r.hash(BandKey(spec)))
}

// BandKey returns the placement key shared by all chunks of a frequency band.
func BandKey(spec types.ChunkSpec) string {
	return types.ChunkSpec{FreqIdx: spec.FreqIdx}.Key()
}

// Workers returns the list of unique workers on the ring.
func (r *Ring) Workers() []string {
	// Return a copy to avoid external mutation
	return append([]string(nil), r.workers...)
}

// Size returns the total number of virtual nodes on the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

// addWorker adds virtual nodes for a worker to the ring.
func (r *Ring) addWorker(workerID string, virtualNodes int) {
	for i := range virtualNodes {
		// Fold workerID, then vnode index using the previous hash as seed so
		// no intermediate concatenated string is built.
		h := r.hash(workerID)

		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], uint64(i)) //nolint:gosec
		h = xxh3.HashSeed(ib[:], h)

		r.nodes = append(r.nodes, virtualNode{hash: h, workerID: workerID})
	}
}

// hash computes a 64-bit hash of the key using XXH3.
func (r *Ring) hash(key string) uint64 {
	if r.seed != 0 {
		return xxh3.HashStringSeed(key, r.seed)
	}

	return xxh3.HashString(key)
}

// getNodeByHash returns the worker for a given hash value using binary search
// over the ring.
func (r *Ring) getNodeByHash(target uint64) string {
	idx, found := slices.BinarySearchFunc(r.nodes, target, func(node virtualNode, t uint64) int {
		if node.hash < t {
			return -1
		}
		if node.hash > t {
			return 1
		}

		return 0
	})

	// Wrap around to the first node past the end of the ring.
	if !found && idx >= len(r.nodes) {
		idx = 0
	}

	return r.nodes[idx].workerID
}

// BalancedRing extends Ring with chunk-size awareness.
//
// Chunk costs scale with their element counts, so pure consistent hashing can
// overload a worker when bands are uneven (ragged frequency tails). The
// balanced ring spills assignments off overloaded workers while keeping band
// affinity for everything else.
type BalancedRing struct {
	*Ring

	// Track elements assigned to each worker
	workerLoad map[string]int64
}

// NewBalanced creates a size-aware consistent hash ring.
//
// Parameters:
//   - workers: List of worker IDs
//   - virtualNodesPerWorker: Virtual nodes per worker
//   - seed: Hash seed
//
// Returns:
//   - *BalancedRing: Initialized balanced ring
func NewBalanced(workers []string, virtualNodesPerWorker int, seed uint64) *BalancedRing {
	return &BalancedRing{
		Ring:       NewRing(workers, virtualNodesPerWorker, seed),
		workerLoad: make(map[string]int64),
	}
}

// AssignChunks assigns chunks to workers using size-aware consistent hashing.
//
// Algorithm:
//  1. Use the consistent hash ring to get the band-affine candidate worker
//  2. Track cumulative element count assigned to each worker
//  3. If a worker becomes overloaded (load > average * 1.15), spill the chunk
//     to the currently lightest worker
//
// Parameters:
//   - specs: Chunks to assign
//
// Returns:
//   - map[string][]types.ChunkSpec: Worker ID -> assigned chunks
func (br *BalancedRing) AssignChunks(specs []types.ChunkSpec) map[string][]types.ChunkSpec {
	assignments := make(map[string][]types.ChunkSpec)
	br.workerLoad = make(map[string]int64)

	if len(specs) == 0 || len(br.workers) == 0 {
		return assignments
	}

	totalLoad := int64(0)
	for _, spec := range specs {
		totalLoad += spec.Elements()
	}

	avgLoad := totalLoad / int64(len(br.workers))
	maxLoad := avgLoad * 115 / 100 // Allow 15% over average

	for _, spec := range specs {
		load := spec.Elements()
		workerID := br.GetNodeForChunk(spec)

		// If adding this chunk would overload the candidate, spill to the
		// lightest worker.
		if br.workerLoad[workerID]+load > maxLoad {
			workerID = br.findLightestWorker()
		}

		assignments[workerID] = append(assignments[workerID], spec)
		br.workerLoad[workerID] += load
	}

	return assignments
}

// GetWorkerLoad returns the total element count assigned to a worker.
func (br *BalancedRing) GetWorkerLoad(workerID string) int64 {
	return br.workerLoad[workerID]
}

// findLightestWorker returns the worker with the lowest current load.
func (br *BalancedRing) findLightestWorker() string {
	workers := br.Workers()
	if len(workers) == 0 {
		return ""
	}

	minWorker := workers[0]
	minLoad := br.workerLoad[minWorker]

	for _, worker := range workers[1:] {
		if br.workerLoad[worker] < minLoad {
			minWorker = worker
			minLoad = br.workerLoad[worker]
		}
	}

	return minWorker
}
