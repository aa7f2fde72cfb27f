package quartical

import "github.com/JSKenyon/quartical/types"

// Re-export types from the types subpackage.
//
// This file provides a stable, convenient public API for the library's core
// types and interfaces. It uses type aliases to re-export definitions from
// the `types` subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal
// packages to depend on `types` without depending on the root `quartical`
// package, while still providing `quartical.GainTerm`, `quartical.Logger`,
// etc. for users.
type (
	Extents       = types.Extents
	GainTerm      = types.GainTerm
	TermKind      = types.TermKind
	ChunkSpec     = types.ChunkSpec
	ChunkData     = types.ChunkData
	ChunkResult   = types.ChunkResult
	ChunkDiag     = types.ChunkDiag
	TermResult    = types.TermResult
	SolutionCell  = types.SolutionCell
	TermSolutions = types.TermSolutions
	SolutionTable = types.SolutionTable
	CellFlag      = types.CellFlag
	Outcome       = types.Outcome
	Jones         = types.Jones
)

// Re-export interfaces from the types subpackage for convenience.
type (
	VisSource        = types.VisSource
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
)

// Re-export gain-term kinds.
const (
	TermPhase   = types.TermPhase
	TermDiag    = types.TermDiag
	TermComplex = types.TermComplex
)

// Re-export solution cell flags.
const (
	CellSolved       = types.CellSolved
	CellNonConverged = types.CellNonConverged
	CellDiverged     = types.CellDiverged
	CellFallback     = types.CellFallback
	CellUnsolved     = types.CellUnsolved
)

// Re-export chunk outcomes.
const (
	OutcomeConverged = types.OutcomeConverged
	OutcomeMaxIter   = types.OutcomeMaxIter
	OutcomeDiverged  = types.OutcomeDiverged
	OutcomeSkipped   = types.OutcomeSkipped
	OutcomeFailed    = types.OutcomeFailed
)
