package sched

import (
	"slices"
	"sync/atomic"

	"github.com/JSKenyon/quartical/types"
)

// Node is one schedulable chunk solve together with its warm-start lineage.
type Node struct {
	Spec types.ChunkSpec

	// DepKey is the chunk key of the warm-start predecessor (the chunk one
	// step earlier in time in the same frequency band). Empty for chain roots.
	DepKey string

	pending  atomic.Int32
	children []*Node
}

// DAG holds the chunk dependency graph for one solve run.
type DAG struct {
	nodes []*Node
	byKey map[string]*Node
}

// BuildDAG constructs the dependency graph over the planned chunks.
//
// With warmStart disabled every chunk is a root and the graph is fully
// parallel. With warmStart enabled, chunk (t, f) depends on chunk (t-1, f)
// when that chunk exists.
//
// Parameters:
//   - specs: Planned chunk specs (any order; ownership is not taken)
//   - warmStart: Whether to link time-successive chunks per frequency band
//
// Returns:
//   - *DAG: Graph with nodes in deterministic (TimeIdx, FreqIdx) order
func BuildDAG(specs []types.ChunkSpec, warmStart bool) *DAG {
	sorted := slices.Clone(specs)
	slices.SortFunc(sorted, types.ChunkSpec.Compare)

	d := &DAG{
		nodes: make([]*Node, len(sorted)),
		byKey: make(map[string]*Node, len(sorted)),
	}
	for i, spec := range sorted {
		n := &Node{Spec: spec}
		d.nodes[i] = n
		d.byKey[spec.Key()] = n
	}

	if !warmStart {
		return d
	}

	for _, n := range d.nodes {
		if n.Spec.TimeIdx == 0 {
			continue
		}
		prev := types.ChunkSpec{TimeIdx: n.Spec.TimeIdx - 1, FreqIdx: n.Spec.FreqIdx}
		dep, ok := d.byKey[prev.Key()]
		if !ok {
			continue
		}
		n.DepKey = dep.Spec.Key()
		n.pending.Store(1)
		dep.children = append(dep.children, n)
	}

	return d
}

// Len returns the number of chunks in the graph.
func (d *DAG) Len() int {
	return len(d.nodes)
}

// Nodes returns the graph nodes in deterministic order.
func (d *DAG) Nodes() []*Node {
	return d.nodes
}

// roots returns all nodes with no unresolved dependency.
func (d *DAG) roots() []*Node {
	var roots []*Node
	for _, n := range d.nodes {
		if n.pending.Load() == 0 {
			roots = append(roots, n)
		}
	}

	return roots
}
