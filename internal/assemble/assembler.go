package assemble

import (
	"fmt"
	"slices"
	"time"

	"github.com/JSKenyon/quartical/term"
	"github.com/JSKenyon/quartical/types"
)

// Assembler merges chunk results onto the global solution-interval grids of a
// fixed gain chain.
type Assembler struct {
	ext     types.Extents
	defs    []types.GainTerm
	logger  types.Logger
	metrics types.MetricsCollector
}

// New creates an assembler for one observation and chain.
//
// Parameters:
//   - ext: Full observation extents
//   - defs: Ordered gain-term definitions
//   - logger: Structured logger
//   - metrics: Metrics collector
func New(ext types.Extents, defs []types.GainTerm, logger types.Logger, metrics types.MetricsCollector) *Assembler {
	return &Assembler{ext: ext, defs: defs, logger: logger, metrics: metrics}
}

// Merge builds the finalized solution table from the collected chunk results.
//
// Results may arrive in any order; Merge sorts them by chunk key so the output
// is identical for every execution interleaving. Each term must end up with at
// least one usable cell, otherwise the merge fails.
//
// Parameters:
//   - results: Successful chunk results (order irrelevant)
//   - diags: Per-chunk diagnostics to attach to the table
//
// Returns:
//   - *types.SolutionTable: Immutable merged table with every cell flagged
//   - error: Wrapped ErrAssembly when a term has no usable cells
func (a *Assembler) Merge(results []*types.ChunkResult, diags []types.ChunkDiag) (*types.SolutionTable, error) {
	start := time.Now()

	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(x, y *types.ChunkResult) int {
		return x.Spec.Compare(y.Spec)
	})

	table := &types.SolutionTable{
		Terms: make([]*types.TermSolutions, len(a.defs)),
		Diags: diags,
	}

	for i, def := range a.defs {
		ts, err := a.mergeTerm(def, sorted)
		if err != nil {
			return nil, err
		}
		table.Terms[i] = ts

		for flag, count := range ts.CellCounts() {
			a.metrics.RecordCellOutcomes(def.Name, flag.String(), count)
		}
	}

	a.metrics.RecordAssemblyDuration(time.Since(start).Seconds())
	a.logger.Info("solution table assembled",
		"terms", len(table.Terms), "chunks", len(sorted), "duration", time.Since(start))

	return table, nil
}

// mergeTerm merges one term's cells from every chunk onto its global grid and
// applies the fallback policy to the remainder.
func (a *Assembler) mergeTerm(def types.GainTerm, sorted []*types.ChunkResult) (*types.TermSolutions, error) {
	model, err := term.New(def)
	if err != nil {
		return nil, err
	}

	nTI := def.TimeIntervals(a.ext.NTime)
	nFI := def.FreqIntervals(a.ext.NChan)

	ts := &types.TermSolutions{
		Term:        def,
		NTimeInt:    nTI,
		NFreqInt:    nFI,
		NAnt:        a.ext.NAnt,
		Cells:       make([]types.SolutionCell, nTI*nFI*a.ext.NAnt),
		TimeCenters: intervalCenters(a.ext.NTime, def.TimeInterval),
		FreqCenters: intervalCenters(a.ext.NChan, def.FreqInterval),
	}
	for i := range ts.Cells {
		ts.Cells[i].Flag = types.CellUnsolved
	}

	for _, result := range sorted {
		tr := result.Term(def.Name)
		if tr == nil {
			continue
		}

		// Chunk starts are aligned to interval boundaries by the planner, so
		// local interval indices translate by a fixed offset.
		tiOff := result.Spec.TimeStart / def.TimeInterval
		fiOff := result.Spec.FreqStart / def.FreqInterval

		for ti := range tr.NTimeInt {
			for fi := range tr.NFreqInt {
				for ant := range tr.NAnt {
					flag := tr.FlagAt(ti, fi, ant)
					if flag == types.CellUnsolved {
						continue
					}

					cell := ts.Cell(tiOff+ti, fiOff+fi, ant)
					if !betterCell(cell, result.ResidualNorm) {
						continue
					}

					cell.Params = slices.Clone(tr.ParamsAt(ti, fi, ant))
					cell.Flag = flag
					cell.Residual = result.ResidualNorm
				}
			}
		}
	}

	if !a.fillFallbacks(ts, model) {
		return nil, fmt.Errorf("%w: term %q has no usable solution cells", types.ErrAssembly, def.Name)
	}

	return ts, nil
}

// betterCell reports whether a candidate with the given residual norm should
// replace the current cell. Empty cells always lose; occupied cells only yield
// to a strictly lower residual, so equal-quality duplicates keep the first
// (lowest chunk key) writer.
func betterCell(cell *types.SolutionCell, residual float64) bool {
	if cell.Flag == types.CellUnsolved {
		return true
	}

	return residual < cell.Residual
}

// fillFallbacks replaces unsolved cells with the nearest solved neighbour in
// time, then in frequency, then the identity gain. Reports whether the term
// has any solver-produced cell at all.
func (a *Assembler) fillFallbacks(ts *types.TermSolutions, model term.Model) bool {
	solved := func(ti, fi, ant int) bool {
		flag := ts.Cell(ti, fi, ant).Flag
		return flag != types.CellUnsolved && flag != types.CellFallback
	}

	anySolved := false
	for i := range ts.Cells {
		if ts.Cells[i].Flag != types.CellUnsolved {
			anySolved = true

			break
		}
	}
	if !anySolved {
		return false
	}

	for ti := range ts.NTimeInt {
		for fi := range ts.NFreqInt {
			for ant := range ts.NAnt {
				cell := ts.Cell(ti, fi, ant)
				if cell.Flag != types.CellUnsolved {
					continue
				}

				if src, ok := nearest(ts.NTimeInt, ti, func(cand int) bool {
					return solved(cand, fi, ant)
				}); ok {
					*cell = fallbackFrom(ts.Cell(src, fi, ant))

					continue
				}
				if src, ok := nearest(ts.NFreqInt, fi, func(cand int) bool {
					return solved(ti, cand, ant)
				}); ok {
					*cell = fallbackFrom(ts.Cell(ti, src, ant))

					continue
				}

				cell.Params = make([]float64, model.NumParams())
				model.SetIdentity(cell.Params)
				cell.Flag = types.CellFallback
				cell.Residual = 0
			}
		}
	}

	return true
}

// nearest scans outward from idx for the closest position satisfying ok,
// preferring the earlier side on ties.
func nearest(n, idx int, ok func(int) bool) (int, bool) {
	for d := 1; d < n; d++ {
		if idx-d >= 0 && ok(idx-d) {
			return idx - d, true
		}
		if idx+d < n && ok(idx+d) {
			return idx + d, true
		}
	}

	return 0, false
}

func fallbackFrom(src *types.SolutionCell) types.SolutionCell {
	return types.SolutionCell{
		Params: slices.Clone(src.Params),
		Flag:   types.CellFallback,
	}
}

// intervalCenters returns the coordinate of each solution interval's centre in
// sample units, with the final ragged interval centred on its actual span.
func intervalCenters(n, interval int) []float64 {
	count := (n + interval - 1) / interval
	centers := make([]float64, count)
	for i := range count {
		lo := i * interval
		hi := min(lo+interval, n)
		centers[i] = float64(lo+hi-1) / 2
	}

	return centers
}
