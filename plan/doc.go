// Package plan divides an observation's (time, frequency, baseline) index
// space into disjoint solver chunks aligned to the solution intervals of
// every term in the gain chain.
//
// Chunk boundaries always fall on multiples of the least common multiple of
// all terms' interval widths, so a chunk never spans a partial solution
// interval. Chunk size is bounded by a configurable element budget; the
// planner subdivides along time first, then frequency, and never subdivides
// the baseline dimension (the solver needs full baseline sets per
// time/frequency cell to avoid rank-deficient antenna systems).
package plan
