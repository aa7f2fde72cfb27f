// Package sched plans and executes the per-chunk solve graph.
//
// Chunks are independent except for warm-start lineage: with warm starts
// enabled, each chunk depends on its predecessor in time within the same
// frequency band, forming one chain per band. The executor runs ready chunks
// on a bounded worker pool, isolates per-chunk failures, and restarts the
// dependents of a failed chunk cold rather than propagating the failure.
package sched
