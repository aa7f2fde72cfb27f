package types

import "fmt"

// SolveState enumerates the per-chunk solver state machine:
//
//	Initialized → Iterating → {Converged, MaxIterReached, Diverged} → Finalized
type SolveState int32

// Solver states.
const (
	StateInitialized SolveState = iota
	StateIterating
	StateConverged
	StateMaxIterReached
	StateDiverged
	StateFinalized
)

// String returns a human-readable state name.
func (s SolveState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateMaxIterReached:
		return "max_iter_reached"
	case StateDiverged:
		return "diverged"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Terminal reports whether the state ends the iteration loop.
func (s SolveState) Terminal() bool {
	return s == StateConverged || s == StateMaxIterReached || s == StateDiverged
}

// Outcome labels a chunk's terminal disposition in diagnostics and results.
type Outcome string

// Chunk outcomes.
const (
	OutcomeConverged Outcome = "converged"
	OutcomeMaxIter   Outcome = "max_iter_reached"
	OutcomeDiverged  Outcome = "diverged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// CellFlag records the validity of one (term, antenna, interval) solution cell.
type CellFlag uint8

// Solution cell flags.
const (
	// CellSolved marks a cell produced by a converged solve.
	CellSolved CellFlag = iota

	// CellNonConverged marks a best-effort estimate from a solve that hit
	// its iteration cap. Usable but not converged.
	CellNonConverged

	// CellDiverged marks the last finite state of a diverged solve.
	CellDiverged

	// CellFallback marks a cell filled from a neighbouring interval or with
	// the identity gain because no solver output covered it.
	CellFallback

	// CellUnsolved marks a cell with no usable estimate (e.g. a fully
	// flagged antenna) prior to fallback filling. Never present in a
	// finalized SolutionTable.
	CellUnsolved
)

// String returns a short label for the flag.
func (f CellFlag) String() string {
	switch f {
	case CellSolved:
		return "solved"
	case CellNonConverged:
		return "non_converged"
	case CellDiverged:
		return "diverged"
	case CellFallback:
		return "fallback"
	case CellUnsolved:
		return "unsolved"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// TermResult holds one term's parameter estimates for one chunk.
//
// Params is indexed ((ti*NFreqInt)+fi)*NAnt*NParams + ant*NParams + p, with
// ti/fi the chunk-local solution-interval indices. Flags is indexed
// ((ti*NFreqInt)+fi)*NAnt + ant.
type TermResult struct {
	Name     string `json:"name"`
	NTimeInt int    `json:"nTimeInt"`
	NFreqInt int    `json:"nFreqInt"`
	NAnt     int    `json:"nAnt"`
	NParams  int    `json:"nParams"`

	Params []float64  `json:"params"`
	Flags  []CellFlag `json:"flags"`

	Outcome           Outcome `json:"outcome"`
	Iterations        int     `json:"iterations"`
	FinalResidual     float64 `json:"finalResidual"`
	ConvergedFraction float64 `json:"convergedFraction"`
}

// ParamsAt returns the parameter vector for a chunk-local cell.
func (r *TermResult) ParamsAt(ti, fi, ant int) []float64 {
	base := ((ti*r.NFreqInt)+fi)*r.NAnt*r.NParams + ant*r.NParams

	return r.Params[base : base+r.NParams]
}

// FlagAt returns the cell flag for a chunk-local cell.
func (r *TermResult) FlagAt(ti, fi, ant int) CellFlag {
	return r.Flags[((ti*r.NFreqInt)+fi)*r.NAnt+ant]
}

// ChunkResult is the finalized output of one chunk solve.
type ChunkResult struct {
	Spec  ChunkSpec    `json:"spec"`
	Terms []TermResult `json:"terms"`

	// ResidualNorm is the final weighted RMS residual over the chunk,
	// used by the assembler's deterministic tie-break.
	ResidualNorm float64 `json:"residualNorm"`
}

// Term returns the named term result, or nil.
func (r *ChunkResult) Term(name string) *TermResult {
	for i := range r.Terms {
		if r.Terms[i].Name == name {
			return &r.Terms[i]
		}
	}

	return nil
}

// ChunkDiag is a per-chunk diagnostic record exposed for reporting.
type ChunkDiag struct {
	Chunk         string  `json:"chunk"`
	Outcome       Outcome `json:"outcome"`
	Iterations    int     `json:"iterations"`
	FinalResidual float64 `json:"finalResidual"`
	Error         string  `json:"error,omitempty"`
}
