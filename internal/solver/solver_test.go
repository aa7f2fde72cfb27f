package solver

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JSKenyon/quartical/internal/logger"
	"github.com/JSKenyon/quartical/metrics"
	"github.com/JSKenyon/quartical/term"
	"github.com/JSKenyon/quartical/types"
	"github.com/JSKenyon/quartical/vis"
	"github.com/JSKenyon/quartical/weighting"
)

func testOptions() Options {
	return Options{
		MaxIter:       60,
		RelTol:        1e-7,
		AbsTol:        1e-12,
		DivergeStreak: 3,
		StepDamping:   0.5,
		MaxStep:       10,
		UpdateTol:     1e-8,
	}
}

func newTestSolver(t *testing.T, defs []types.GainTerm) *Solver {
	t.Helper()

	models, err := term.Chain(defs)
	require.NoError(t, err)

	return New(defs, models, weighting.Uniform{}, testOptions(), logger.NewNop(), metrics.NewNop())
}

func fullChunk(t *testing.T, src *vis.Memory, ext types.Extents) *types.ChunkData {
	t.Helper()

	spec := types.ChunkSpec{
		TimeCount: ext.NTime,
		FreqCount: ext.NChan,
		NAnt:      ext.NAnt,
		NCorr:     ext.NCorr,
	}
	data, err := src.FetchChunk(context.Background(), spec)
	require.NoError(t, err)

	return data
}

// wrapPhase maps an angle onto (-pi, pi].
func wrapPhase(phi float64) float64 {
	for phi > math.Pi {
		phi -= 2 * math.Pi
	}
	for phi <= -math.Pi {
		phi += 2 * math.Pi
	}

	return phi
}

func TestSolver_RecoversPhaseGains(t *testing.T) {
	ext := types.Extents{NTime: 4, NChan: 4, NAnt: 5, NCorr: 2}
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}

	truePhase := func(ti, fi, ant int) float64 {
		return 0.1*float64(ant) + 0.05*float64(ti) - 0.03*float64(fi)
	}
	scene := vis.Scene{
		Extents: ext,
		Gains: []vis.SceneGain{{
			Term: def,
			At: func(ti, fi, ant int) types.Jones {
				return types.JonesScalar(cmplx.Exp(complex(0, truePhase(ti, fi, ant))))
			},
		}},
	}
	src, err := scene.Build()
	require.NoError(t, err)

	s := newTestSolver(t, []types.GainTerm{def})
	result, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)

	require.Len(t, result.Terms, 1)
	tr := result.Terms[0]
	require.Equal(t, types.OutcomeConverged, tr.Outcome)
	require.Less(t, result.ResidualNorm, 1e-6)
	require.Greater(t, tr.ConvergedFraction, 0.99)

	// Phase-only gains carry a per-cell global phase, so compare phases
	// relative to antenna 0.
	for ti := range tr.NTimeInt {
		for fi := range tr.NFreqInt {
			ref := tr.ParamsAt(ti, fi, 0)[0] - truePhase(ti, fi, 0)
			for ant := range ext.NAnt {
				require.Equal(t, types.CellSolved, tr.FlagAt(ti, fi, ant))
				got := tr.ParamsAt(ti, fi, ant)[0] - truePhase(ti, fi, ant)
				require.InDelta(t, 0, wrapPhase(got-ref), 1e-5,
					"cell (%d,%d) antenna %d", ti, fi, ant)
			}
		}
	}
}

func TestSolver_RecoversDiagAmplitudes(t *testing.T) {
	ext := types.Extents{NTime: 4, NChan: 2, NAnt: 6, NCorr: 1}
	def := types.GainTerm{Name: "B", Kind: types.TermDiag, TimeInterval: 4, FreqInterval: 2}

	trueAmp := func(ant int) float64 { return 1 + 0.1*float64(ant) }
	scene := vis.Scene{
		Extents: ext,
		Gains: []vis.SceneGain{{
			Term: def,
			At: func(_, _, ant int) types.Jones {
				return types.JonesScalar(complex(trueAmp(ant), 0))
			},
		}},
	}
	src, err := scene.Build()
	require.NoError(t, err)

	s := newTestSolver(t, []types.GainTerm{def})
	result, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)

	tr := result.Terms[0]
	require.Equal(t, types.OutcomeConverged, tr.Outcome)

	// Amplitude products over all baselines pin the per-antenna amplitudes
	// absolutely (no gauge freedom with >2 antennas).
	for ant := range ext.NAnt {
		require.InDelta(t, trueAmp(ant), tr.ParamsAt(0, 0, ant)[0], 1e-5, "antenna %d", ant)
	}
}

func TestSolver_TwoTermChain(t *testing.T) {
	ext := types.Extents{NTime: 4, NChan: 4, NAnt: 5, NCorr: 2}
	gDef := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 1, FreqInterval: 4}
	bDef := types.GainTerm{Name: "B", Kind: types.TermDiag, TimeInterval: 4, FreqInterval: 1}

	scene := vis.Scene{
		Extents: ext,
		Gains: []vis.SceneGain{
			{
				Term: gDef,
				At: func(ti, _, ant int) types.Jones {
					phi := 0.05*float64(ant) + 0.02*float64(ti)

					return types.JonesScalar(cmplx.Exp(complex(0, phi)))
				},
			},
			{
				Term: bDef,
				At: func(_, fi, ant int) types.Jones {
					amp := 1 + 0.05*float64(ant) - 0.02*float64(fi)

					return types.JonesScalar(complex(amp, 0))
				},
			},
		},
	}
	src, err := scene.Build()
	require.NoError(t, err)

	s := newTestSolver(t, []types.GainTerm{gDef, bDef})
	result, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)

	require.Len(t, result.Terms, 2)
	require.Equal(t, types.OutcomeConverged, result.Terms[0].Outcome)
	require.Less(t, result.ResidualNorm, 1e-6)
}

func TestSolver_SkipsFullyFlaggedChunk(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 3, NCorr: 1}
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}

	scene := vis.Scene{
		Extents: ext,
		Gains: []vis.SceneGain{{
			Term: def,
			At:   func(_, _, _ int) types.Jones { return types.JonesIdentity() },
		}},
	}
	src, err := scene.Build()
	require.NoError(t, err)
	src.FlagAll()

	s := newTestSolver(t, []types.GainTerm{def})
	result, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)

	tr := result.Terms[0]
	require.Equal(t, types.OutcomeSkipped, tr.Outcome)
	require.Zero(t, tr.Iterations)
	for _, flag := range tr.Flags {
		require.Equal(t, types.CellUnsolved, flag)
	}
}

func TestSolver_FlaggedAntennaCellsUnsolved(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 5, NCorr: 1}
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}

	scene := vis.Scene{
		Extents: ext,
		Gains: []vis.SceneGain{{
			Term: def,
			At: func(_, _, ant int) types.Jones {
				return types.JonesScalar(cmplx.Exp(complex(0, 0.1*float64(ant))))
			},
		}},
	}
	src, err := scene.Build()
	require.NoError(t, err)

	const deadAnt = 3
	src.FlagAntenna(deadAnt)

	s := newTestSolver(t, []types.GainTerm{def})
	result, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)

	tr := result.Terms[0]
	for ant := range ext.NAnt {
		flag := tr.FlagAt(0, 0, ant)
		if ant == deadAnt {
			require.Equal(t, types.CellUnsolved, flag)
			// Unsolved cells hold the identity, never garbage.
			require.Zero(t, tr.ParamsAt(0, 0, ant)[0])
		} else {
			require.Equal(t, types.CellSolved, flag)
		}
	}
}

func TestSolver_NonFiniteInputIsContained(t *testing.T) {
	ext := types.Extents{NTime: 4, NChan: 2, NAnt: 4, NCorr: 1}
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}

	scene := vis.Scene{
		Extents: ext,
		Gains: []vis.SceneGain{{
			Term: def,
			At: func(ti, _, ant int) types.Jones {
				return types.JonesScalar(cmplx.Exp(complex(0, 0.1*float64(ant)+0.03*float64(ti))))
			},
		}},
	}
	src, err := scene.Build()
	require.NoError(t, err)

	// An unflagged NaN datum must be excluded, not propagated.
	src.Poison(1, 0, 2)

	s := newTestSolver(t, []types.GainTerm{def})
	result, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)

	tr := result.Terms[0]
	require.Equal(t, types.OutcomeConverged, tr.Outcome)
	for _, p := range tr.Params {
		require.False(t, math.IsNaN(p) || math.IsInf(p, 0))
	}
}

func TestSolver_NonFiniteSweepRevertsAllTerms(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 3, NCorr: 1}
	gDef := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}
	bDef := types.GainTerm{Name: "B", Kind: types.TermDiag, TimeInterval: 2, FreqInterval: 2}

	// Phase structure makes the first sweep move every solvable cell, so a
	// partial sweep would be observable in the output parameters.
	truePhase := func(ant int) float64 { return 0.3 * float64(ant) }

	ant1, ant2 := vis.Baselines(ext.NAnt)
	nBl := len(ant1)
	nDatum := ext.NTime * nBl * ext.NChan
	visArr := make([]complex128, nDatum)
	model := make([]complex128, nDatum)
	weights := make([]float64, nDatum)
	flags := make([]bool, nDatum)
	for tIdx := range ext.NTime {
		for bl := range nBl {
			for ch := range ext.NChan {
				i := (tIdx*nBl+bl)*ext.NChan + ch
				model[i] = 4
				visArr[i] = 4 * cmplx.Exp(complex(0, truePhase(ant1[bl])-truePhase(ant2[bl])))
				weights[i] = 1
			}
		}
	}
	// One near-overflow datum: finite on its own, but its jacobian products
	// overflow during accumulation and push the diag term's parameters
	// non-finite mid-sweep.
	visArr[0] = complex(1.7e308, 0)

	src, err := vis.NewMemory(ext, visArr, model, weights, flags)
	require.NoError(t, err)

	s := newTestSolver(t, []types.GainTerm{gDef, bDef})
	result, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)

	require.Equal(t, types.OutcomeDiverged, result.Terms[0].Outcome)

	// The aborted sweep must yield the iteration-start parameters for every
	// term, not just the one that went non-finite: the phase term updated
	// first and would otherwise keep its half-sweep values.
	gRes, bRes := result.Terms[0], result.Terms[1]
	for ant := range ext.NAnt {
		require.Zero(t, gRes.ParamsAt(0, 0, ant)[0], "phase antenna %d", ant)
		bp := bRes.ParamsAt(0, 0, ant)
		require.Equal(t, 1.0, bp[0], "diag amplitude antenna %d", ant)
		require.Zero(t, bp[1], "diag phase antenna %d", ant)
	}
	for _, tr := range result.Terms {
		for _, p := range tr.Params {
			require.False(t, math.IsNaN(p) || math.IsInf(p, 0))
		}
	}
}

func TestSolver_WarmStartConvergesFaster(t *testing.T) {
	ext := types.Extents{NTime: 4, NChan: 4, NAnt: 5, NCorr: 2}
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}

	scene := vis.Scene{
		Extents: ext,
		Gains: []vis.SceneGain{{
			Term: def,
			At: func(_, fi, ant int) types.Jones {
				// Time-invariant truth, so the prior's last interval is a
				// near-exact starting point.
				phi := 0.15*float64(ant) - 0.04*float64(fi)

				return types.JonesScalar(cmplx.Exp(complex(0, phi)))
			},
		}},
	}
	src, err := scene.Build()
	require.NoError(t, err)

	s := newTestSolver(t, []types.GainTerm{def})

	cold, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeConverged, cold.Terms[0].Outcome)

	warm, err := s.Solve(context.Background(), fullChunk(t, src, ext), cold)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeConverged, warm.Terms[0].Outcome)

	require.Less(t, warm.Terms[0].Iterations, cold.Terms[0].Iterations)
	// Re-solving converged output must not degrade the fit.
	require.LessOrEqual(t, warm.ResidualNorm, cold.ResidualNorm+1e-9)
}

func TestSolver_DivergesWithoutInformation(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 3, NCorr: 1}
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}

	// A zero model gives a zero jacobian everywhere: no cell can ever be
	// updated, which must terminate as diverged rather than spin.
	nBl := ext.NBaselines()
	nVis := ext.NTime * nBl * ext.NChan * ext.NCorr
	nDatum := ext.NTime * nBl * ext.NChan
	visArr := make([]complex128, nVis)
	model := make([]complex128, nVis)
	weights := make([]float64, nDatum)
	flags := make([]bool, nDatum)
	for i := range visArr {
		visArr[i] = 1
	}
	for i := range weights {
		weights[i] = 1
	}

	src, err := vis.NewMemory(ext, visArr, model, weights, flags)
	require.NoError(t, err)

	s := newTestSolver(t, []types.GainTerm{def})
	result, err := s.Solve(context.Background(), fullChunk(t, src, ext), nil)
	require.NoError(t, err)

	require.Equal(t, types.OutcomeDiverged, result.Terms[0].Outcome)
}

func TestSolver_RespectsCancellation(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 3, NCorr: 1}
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 1, FreqInterval: 1}

	scene := vis.Scene{
		Extents: ext,
		Gains: []vis.SceneGain{{
			Term: def,
			At:   func(_, _, _ int) types.Jones { return types.JonesIdentity() },
		}},
	}
	src, err := scene.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSolver(t, []types.GainTerm{def})
	_, err = s.Solve(ctx, fullChunk(t, src, ext), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSolver_ValidatesChunkData(t *testing.T) {
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 1, FreqInterval: 1}
	s := newTestSolver(t, []types.GainTerm{def})

	data := &types.ChunkData{
		Spec: types.ChunkSpec{TimeCount: 2, FreqCount: 2, NAnt: 3, NCorr: 1},
		Vis:  make([]complex128, 3), // wrong length
		Ant1: []int{0, 0, 1},
		Ant2: []int{1, 2, 2},
	}

	_, err := s.Solve(context.Background(), data, nil)
	require.ErrorIs(t, err, types.ErrDataShape)
}
