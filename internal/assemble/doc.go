// Package assemble merges per-chunk solver results into the global solution
// table after the join barrier.
//
// The merge is deterministic for any completion order: chunk results are
// processed in chunk-key order and a cell is only overwritten by a strictly
// lower residual norm. Coverage gaps left by skipped or failed chunks are
// filled by the fallback policy (nearest solved interval in time, then in
// frequency, then the identity gain) and flagged, never left undefined.
package assemble
