package quartical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JSKenyon/quartical/types"
)

func TestOutputKind_Valid(t *testing.T) {
	require.True(t, OutputResidual.Valid())
	require.True(t, OutputCorrectedData.Valid())
	require.True(t, OutputCorrectedResidual.Valid())
	require.False(t, OutputKind("model").Valid())
}

func TestEngine_CorrectedChunk(t *testing.T) {
	ext := types.Extents{NTime: 8, NChan: 4, NAnt: 6, NCorr: 2}
	def := types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2}

	src, err := phaseScene(ext, def).Build()
	require.NoError(t, err)

	cfg := runConfig(def)
	eng, err := New(&cfg, src)
	require.NoError(t, err)

	table, err := eng.Run(context.Background())
	require.NoError(t, err)

	specs, err := eng.Plan(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, specs)
	spec := specs[0]

	t.Run("residuals vanish after calibration", func(t *testing.T) {
		out, err := eng.CorrectedChunk(context.Background(), table, spec, OutputResidual)
		require.NoError(t, err)
		require.Equal(t, OutputResidual, out.Kind)

		for i, v := range out.Data {
			require.InDelta(t, 0, real(v), 1e-4, "datum %d", i)
			require.InDelta(t, 0, imag(v), 1e-4, "datum %d", i)
		}
	})

	t.Run("corrected data matches the model", func(t *testing.T) {
		// Phase-only gains leave corrected data gauge-free: the unknown
		// reference phase cancels between the two antennas.
		data, err := src.FetchChunk(context.Background(), spec)
		require.NoError(t, err)

		out, err := eng.CorrectedChunk(context.Background(), table, spec, OutputCorrectedData)
		require.NoError(t, err)

		for i := range out.Data {
			require.InDelta(t, real(data.Model[i]), real(out.Data[i]), 1e-4, "datum %d", i)
			require.InDelta(t, imag(data.Model[i]), imag(out.Data[i]), 1e-4, "datum %d", i)
		}
	})

	t.Run("corrected residuals vanish", func(t *testing.T) {
		out, err := eng.CorrectedChunk(context.Background(), table, spec, OutputCorrectedResidual)
		require.NoError(t, err)

		for i, v := range out.Data {
			require.InDelta(t, 0, real(v), 1e-4, "datum %d", i)
			require.InDelta(t, 0, imag(v), 1e-4, "datum %d", i)
		}
	})

	t.Run("input flags carry through", func(t *testing.T) {
		src.Flag(0, 1, 2)

		out, err := eng.CorrectedChunk(context.Background(), table, spec, OutputResidual)
		require.NoError(t, err)

		data, err := src.FetchChunk(context.Background(), spec)
		require.NoError(t, err)
		require.Equal(t, data.Flags, out.Flags)
	})

	t.Run("rejects an unknown output kind", func(t *testing.T) {
		_, err := eng.CorrectedChunk(context.Background(), table, spec, OutputKind("model"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects a table missing a chain term", func(t *testing.T) {
		_, err := eng.CorrectedChunk(context.Background(), &types.SolutionTable{}, spec, OutputResidual)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}
