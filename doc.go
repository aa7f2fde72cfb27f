// Package quartical provides a chunked, iterative gain-calibration solver
// engine for radio-interferometer visibilities.
//
// The engine partitions an observation into independently solvable chunks,
// fits a chain of per-antenna gain terms to each chunk with a damped
// Gauss-Newton loop, and merges the per-chunk estimates into a single
// flagged solution table.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	import "github.com/JSKenyon/quartical"
//
//	cfg := quartical.DefaultConfig()
//	cfg.Chain = []quartical.GainTerm{
//	    {Name: "G", Kind: quartical.TermPhase, TimeInterval: 8, FreqInterval: 1},
//	    {Name: "B", Kind: quartical.TermDiag, TimeInterval: 120, FreqInterval: 4},
//	}
//
//	eng, err := quartical.New(&cfg, src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	table, err := eng.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Key Features
//
//   - Chain Calibration: Multiplicative chains of phase-only, diagonal and
//     full-complex gain terms with independent solution intervals
//   - Chunked Solving: Interval-aligned chunk planning with a configurable
//     element budget; chunks solve concurrently on a bounded worker pool
//   - Warm Starts: Time-successive chunks of a frequency band seed each other
//     for faster convergence
//   - Robust Weighting: Optional Huber/Tukey iterative reweighting against
//     low-level RFI
//   - Explicit Flagging: Every solution cell carries a validity flag; coverage
//     gaps are filled by an explicit fallback policy, never left undefined
//
// # Architecture
//
// A run progresses through three stages:
//
//	PLAN → SOLVE (parallel, per chunk) → ASSEMBLE
//
// Chunk solves are isolated: a diverged or failed chunk is recorded in the
// table diagnostics and its coverage filled by fallback, while sibling chunks
// are unaffected.
//
// For multi-process operation the distrib package dispatches planned chunks
// to workers over NATS JetStream with frequency-band affinity.
//
// See the examples/ directory for complete working examples.
package quartical
