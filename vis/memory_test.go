package vis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JSKenyon/quartical/types"
)

func TestBaselines(t *testing.T) {
	ant1, ant2 := Baselines(4)

	require.Equal(t, []int{0, 0, 0, 1, 1, 2}, ant1)
	require.Equal(t, []int{1, 2, 3, 2, 3, 3}, ant2)
}

func TestNewMemory_ValidatesShapes(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 3, NCorr: 1}

	t.Run("rejects short visibility array", func(t *testing.T) {
		_, err := NewMemory(ext,
			make([]complex128, 3),
			make([]complex128, 12),
			make([]float64, 12),
			make([]bool, 12))

		require.ErrorIs(t, err, types.ErrDataShape)
	})

	t.Run("rejects short weight array", func(t *testing.T) {
		_, err := NewMemory(ext,
			make([]complex128, 12),
			make([]complex128, 12),
			make([]float64, 3),
			make([]bool, 12))

		require.ErrorIs(t, err, types.ErrDataShape)
	})

	t.Run("rejects invalid extents", func(t *testing.T) {
		bad := types.Extents{NTime: 2, NChan: 2, NAnt: 1, NCorr: 1}
		_, err := NewMemory(bad, nil, nil, nil, nil)

		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})
}

func TestMemory_FetchChunk(t *testing.T) {
	ext := types.Extents{NTime: 4, NChan: 6, NAnt: 3, NCorr: 2}
	nBl := ext.NBaselines()
	nVis := ext.NTime * nBl * ext.NChan * ext.NCorr
	nDatum := ext.NTime * nBl * ext.NChan

	visArr := make([]complex128, nVis)
	model := make([]complex128, nVis)
	weights := make([]float64, nDatum)
	flags := make([]bool, nDatum)
	for i := range visArr {
		visArr[i] = complex(float64(i), 0)
		model[i] = complex(0, float64(i))
	}
	for i := range weights {
		weights[i] = float64(i)
	}

	src, err := NewMemory(ext, visArr, model, weights, flags)
	require.NoError(t, err)

	t.Run("interior chunk round-trips values", func(t *testing.T) {
		spec := types.ChunkSpec{
			TimeIdx: 1, FreqIdx: 1,
			TimeStart: 2, TimeCount: 2,
			FreqStart: 3, FreqCount: 3,
			NAnt: ext.NAnt, NCorr: ext.NCorr,
		}
		data, err := src.FetchChunk(context.Background(), spec)
		require.NoError(t, err)
		require.NoError(t, data.Validate())

		for tLoc := range spec.TimeCount {
			for bl := range nBl {
				row := tLoc*nBl + bl
				gRow := (spec.TimeStart+tLoc)*nBl + bl
				for ch := range spec.FreqCount {
					gSrc := (gRow*ext.NChan + spec.FreqStart + ch) * ext.NCorr
					base := data.DatumIndex(row, ch)
					for c := range ext.NCorr {
						require.Equal(t, visArr[gSrc+c], data.Vis[base+c])
						require.Equal(t, model[gSrc+c], data.Model[base+c])
					}
					require.Equal(t, weights[gRow*ext.NChan+spec.FreqStart+ch],
						data.Weights[data.WeightIndex(row, ch)])
				}
			}
		}
	})

	t.Run("rejects out-of-range chunk", func(t *testing.T) {
		spec := types.ChunkSpec{
			TimeStart: 3, TimeCount: 3,
			FreqStart: 0, FreqCount: 6,
			NAnt: ext.NAnt, NCorr: ext.NCorr,
		}
		_, err := src.FetchChunk(context.Background(), spec)

		require.ErrorIs(t, err, types.ErrDataShape)
	})

	t.Run("returned arrays are copies", func(t *testing.T) {
		spec := types.ChunkSpec{
			TimeCount: 1, FreqCount: 1,
			NAnt: ext.NAnt, NCorr: ext.NCorr,
		}
		data, err := src.FetchChunk(context.Background(), spec)
		require.NoError(t, err)

		data.Vis[0] = complex(-1, -1)

		again, err := src.FetchChunk(context.Background(), spec)
		require.NoError(t, err)
		require.NotEqual(t, data.Vis[0], again.Vis[0])
	})
}

func TestMemory_Mutators(t *testing.T) {
	ext := types.Extents{NTime: 2, NChan: 2, NAnt: 3, NCorr: 1}
	scene := Scene{
		Extents: ext,
		Gains: []SceneGain{{
			Term: types.GainTerm{Name: "G", Kind: types.TermPhase, TimeInterval: 1, FreqInterval: 1},
			At:   func(_, _, _ int) types.Jones { return types.JonesIdentity() },
		}},
	}
	src, err := scene.Build()
	require.NoError(t, err)

	spec := types.ChunkSpec{
		TimeCount: ext.NTime, FreqCount: ext.NChan,
		NAnt: ext.NAnt, NCorr: ext.NCorr,
	}

	t.Run("Flag marks one datum", func(t *testing.T) {
		src.Flag(1, 1, 2)

		data, err := src.FetchChunk(context.Background(), spec)
		require.NoError(t, err)
		require.True(t, data.Flags[data.WeightIndex(1*3+2, 1)])
		require.False(t, data.Flags[data.WeightIndex(0, 0)])
	})

	t.Run("FlagAntenna covers all its baselines", func(t *testing.T) {
		src.FlagAntenna(0)

		data, err := src.FetchChunk(context.Background(), spec)
		require.NoError(t, err)
		for bl := range 3 {
			involved := data.Ant1[bl] == 0 || data.Ant2[bl] == 0
			for tLoc := range ext.NTime {
				for ch := range ext.NChan {
					if involved {
						require.True(t, data.Flags[data.WeightIndex(tLoc*3+bl, ch)])
					}
				}
			}
		}
	})

	t.Run("Poison injects NaN without flagging", func(t *testing.T) {
		src.Poison(0, 0, 1)

		data, err := src.FetchChunk(context.Background(), spec)
		require.NoError(t, err)
		base := data.DatumIndex(1, 0)
		require.True(t, math.IsNaN(real(data.Vis[base])))
	})
}
