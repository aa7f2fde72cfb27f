package assemble

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JSKenyon/quartical/internal/logger"
	"github.com/JSKenyon/quartical/metrics"
	"github.com/JSKenyon/quartical/types"
)

var phaseDef = types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}

func newTestAssembler(ext types.Extents, defs ...types.GainTerm) *Assembler {
	return New(ext, defs, logger.NewNop(), metrics.NewNop())
}

// phaseChunk builds a single-term chunk result whose cell phases come from fn.
func phaseChunk(spec types.ChunkSpec, residual float64, fn func(ti, fi, ant int) (float64, types.CellFlag)) *types.ChunkResult {
	nTI := phaseDef.TimeIntervals(spec.TimeCount)
	nFI := phaseDef.FreqIntervals(spec.FreqCount)

	tr := types.TermResult{
		Name:     phaseDef.Name,
		NTimeInt: nTI,
		NFreqInt: nFI,
		NAnt:     spec.NAnt,
		NParams:  1,
		Params:   make([]float64, nTI*nFI*spec.NAnt),
		Flags:    make([]types.CellFlag, nTI*nFI*spec.NAnt),
		Outcome:  types.OutcomeConverged,
	}
	for ti := range nTI {
		for fi := range nFI {
			for ant := range spec.NAnt {
				phi, flag := fn(ti, fi, ant)
				tr.ParamsAt(ti, fi, ant)[0] = phi
				tr.Flags[((ti*nFI)+fi)*spec.NAnt+ant] = flag
			}
		}
	}

	return &types.ChunkResult{Spec: spec, Terms: []types.TermResult{tr}, ResidualNorm: residual}
}

func solvedPhase(phi float64) func(int, int, int) (float64, types.CellFlag) {
	return func(_, _, _ int) (float64, types.CellFlag) { return phi, types.CellSolved }
}

func TestAssembler_MergesFullCoverage(t *testing.T) {
	ext := types.Extents{NTime: 4, NChan: 2, NAnt: 3, NCorr: 1}
	asm := newTestAssembler(ext, phaseDef)

	results := []*types.ChunkResult{
		phaseChunk(types.ChunkSpec{
			TimeIdx: 0, TimeStart: 0, TimeCount: 2, FreqCount: 2, NAnt: 3, NCorr: 1,
		}, 0.1, solvedPhase(0.5)),
		phaseChunk(types.ChunkSpec{
			TimeIdx: 1, TimeStart: 2, TimeCount: 2, FreqCount: 2, NAnt: 3, NCorr: 1,
		}, 0.1, solvedPhase(0.7)),
	}

	table, err := asm.Merge(results, nil)
	require.NoError(t, err)

	ts := table.Term("G")
	require.NotNil(t, ts)
	require.Equal(t, 2, ts.NTimeInt)
	require.Equal(t, 1, ts.NFreqInt)

	for ant := range 3 {
		require.Equal(t, types.CellSolved, ts.Cell(0, 0, ant).Flag)
		require.Equal(t, 0.5, ts.Cell(0, 0, ant).Params[0])
		require.Equal(t, 0.7, ts.Cell(1, 0, ant).Params[0])
	}

	require.Equal(t, []float64{0.5, 2.5}, ts.TimeCenters)
	require.Equal(t, []float64{0.5}, ts.FreqCenters)
}

func TestAssembler_DeterministicMerge(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 2, NCorr: 1}
	asm := newTestAssembler(ext, phaseDef)

	spec := types.ChunkSpec{TimeCount: 2, FreqCount: 2, NAnt: 2, NCorr: 1}
	specB := spec
	specB.FreqIdx = 1 // higher key, same coverage

	t.Run("equal residuals keep the lower chunk key", func(t *testing.T) {
		a := phaseChunk(spec, 0.2, solvedPhase(1.0))
		b := phaseChunk(specB, 0.2, solvedPhase(2.0))

		table, err := asm.Merge([]*types.ChunkResult{b, a}, nil)
		require.NoError(t, err)
		require.Equal(t, 1.0, table.Term("G").Cell(0, 0, 0).Params[0])
	})

	t.Run("strictly lower residual wins", func(t *testing.T) {
		a := phaseChunk(spec, 0.2, solvedPhase(1.0))
		b := phaseChunk(specB, 0.1, solvedPhase(2.0))

		table, err := asm.Merge([]*types.ChunkResult{a, b}, nil)
		require.NoError(t, err)
		require.Equal(t, 2.0, table.Term("G").Cell(0, 0, 0).Params[0])
	})

	t.Run("input order is irrelevant", func(t *testing.T) {
		a := phaseChunk(spec, 0.2, solvedPhase(1.0))
		b := phaseChunk(specB, 0.2, solvedPhase(2.0))

		t1, err := asm.Merge([]*types.ChunkResult{a, b}, nil)
		require.NoError(t, err)
		t2, err := asm.Merge([]*types.ChunkResult{b, a}, nil)
		require.NoError(t, err)

		require.Equal(t, t1.Term("G").Cells, t2.Term("G").Cells)
	})
}

func TestAssembler_FallbackPolicy(t *testing.T) {
	t.Run("nearest solved interval in time", func(t *testing.T) {
		ext := types.Extents{NTime: 6, NChan: 2, NAnt: 2, NCorr: 1}
		asm := newTestAssembler(ext, phaseDef)

		// Antenna 1 unsolved in the middle time interval only.
		result := phaseChunk(types.ChunkSpec{
			TimeCount: 6, FreqCount: 2, NAnt: 2, NCorr: 1,
		}, 0.1, func(ti, _, ant int) (float64, types.CellFlag) {
			if ant == 1 && ti == 1 {
				return 0, types.CellUnsolved
			}

			return float64(ti), types.CellSolved
		})

		table, err := asm.Merge([]*types.ChunkResult{result}, nil)
		require.NoError(t, err)

		cell := table.Term("G").Cell(1, 0, 1)
		require.Equal(t, types.CellFallback, cell.Flag)
		// Earlier neighbour wins the distance tie.
		require.Equal(t, 0.0, cell.Params[0])
	})

	t.Run("frequency neighbour when the whole time axis is dead", func(t *testing.T) {
		ext := types.Extents{NTime: 2, NChan: 4, NAnt: 2, NCorr: 1}
		asm := newTestAssembler(ext, phaseDef)

		result := phaseChunk(types.ChunkSpec{
			TimeCount: 2, FreqCount: 4, NAnt: 2, NCorr: 1,
		}, 0.1, func(_, fi, ant int) (float64, types.CellFlag) {
			if ant == 0 && fi == 0 {
				return 0, types.CellUnsolved
			}

			return 3.5, types.CellSolved
		})

		table, err := asm.Merge([]*types.ChunkResult{result}, nil)
		require.NoError(t, err)

		cell := table.Term("G").Cell(0, 0, 0)
		require.Equal(t, types.CellFallback, cell.Flag)
		require.Equal(t, 3.5, cell.Params[0])
	})

	t.Run("identity when nothing is solved for the antenna", func(t *testing.T) {
		ext := types.Extents{NTime: 2, NChan: 2, NAnt: 3, NCorr: 1}
		asm := newTestAssembler(ext, phaseDef)

		result := phaseChunk(types.ChunkSpec{
			TimeCount: 2, FreqCount: 2, NAnt: 3, NCorr: 1,
		}, 0.1, func(_, _, ant int) (float64, types.CellFlag) {
			if ant == 2 {
				return 0, types.CellUnsolved
			}

			return 1.0, types.CellSolved
		})

		table, err := asm.Merge([]*types.ChunkResult{result}, nil)
		require.NoError(t, err)

		cell := table.Term("G").Cell(0, 0, 2)
		require.Equal(t, types.CellFallback, cell.Flag)
		require.Equal(t, []float64{0}, cell.Params)
	})

	t.Run("term without any usable cell fails", func(t *testing.T) {
		ext := types.Extents{NTime: 2, NChan: 2, NAnt: 2, NCorr: 1}
		asm := newTestAssembler(ext, phaseDef)

		result := phaseChunk(types.ChunkSpec{
			TimeCount: 2, FreqCount: 2, NAnt: 2, NCorr: 1,
		}, 0.1, func(_, _, _ int) (float64, types.CellFlag) {
			return 0, types.CellUnsolved
		})

		_, err := asm.Merge([]*types.ChunkResult{result}, nil)
		require.ErrorIs(t, err, types.ErrAssembly)
	})
}

func TestAssembler_AttachesDiags(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 2, NCorr: 1}
	asm := newTestAssembler(ext, phaseDef)

	result := phaseChunk(types.ChunkSpec{
		TimeCount: 2, FreqCount: 2, NAnt: 2, NCorr: 1,
	}, 0.1, solvedPhase(0.5))
	diags := []types.ChunkDiag{{Chunk: "t000000-f000000", Outcome: types.OutcomeConverged}}

	table, err := asm.Merge([]*types.ChunkResult{result}, diags)
	require.NoError(t, err)
	require.Equal(t, diags, table.Diags)
}

func TestTermSolutions_Sample(t *testing.T) {
	// Build the term solutions directly to exercise interpolation over a
	// 2x1 interval grid covering samples 0..3.
	ts := &types.TermSolutions{
		Term:        phaseDef,
		NTimeInt:    2,
		NFreqInt:    1,
		NAnt:        1,
		Cells:       make([]types.SolutionCell, 2),
		TimeCenters: []float64{0.5, 2.5},
		FreqCenters: []float64{0.5},
	}
	ts.Cells[0] = types.SolutionCell{Params: []float64{1.0}, Flag: types.CellSolved}
	ts.Cells[1] = types.SolutionCell{Params: []float64{3.0}, Flag: types.CellSolved}

	t.Run("midpoint interpolates linearly", func(t *testing.T) {
		require.InDelta(t, 2.0, ts.Sample(0, 1.5, 0.5)[0], 1e-12)
	})

	t.Run("clamps outside the covered range", func(t *testing.T) {
		require.InDelta(t, 1.0, ts.Sample(0, -5, 0.5)[0], 1e-12)
		require.InDelta(t, 3.0, ts.Sample(0, 99, 0.5)[0], 1e-12)
	})

	t.Run("singleton axis uses the nearest value", func(t *testing.T) {
		require.InDelta(t, 1.0, ts.Sample(0, 0.5, 99)[0], 1e-12)
	})
}

func TestIntervalCenters(t *testing.T) {
	require.Equal(t, []float64{0.5, 2.5}, intervalCenters(4, 2))
	// Ragged tail: final interval covers a single sample.
	require.Equal(t, []float64{0.5, 2}, intervalCenters(3, 2))
	require.Equal(t, []float64{1}, intervalCenters(3, 8))

	require.True(t, slices.IsSorted(intervalCenters(17, 4)))
}
