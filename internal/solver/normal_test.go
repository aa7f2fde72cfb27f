package solver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSolveCell(t *testing.T) {
	t.Run("scalar system", func(t *testing.T) {
		dst := make([]float64, 1)
		err := solveCell([]float64{4}, []float64{2}, 1, dst)

		require.NoError(t, err)
		require.InDelta(t, 0.5, dst[0], 1e-12)
	})

	t.Run("two by two system", func(t *testing.T) {
		// [2 1; 1 3] * x = [5; 10] -> x = [1; 3]
		dst := make([]float64, 2)
		err := solveCell([]float64{2, 1, 1, 3}, []float64{5, 10}, 2, dst)

		require.NoError(t, err)
		require.InDelta(t, 1.0, dst[0], 1e-10)
		require.InDelta(t, 3.0, dst[1], 1e-10)
	})

	t.Run("empty system returns sentinel", func(t *testing.T) {
		dst := make([]float64, 2)
		err := solveCell([]float64{0, 0, 0, 0}, []float64{0, 0}, 2, dst)

		require.ErrorIs(t, err, errZeroSystem)
	})

	t.Run("zero scalar diagonal returns sentinel", func(t *testing.T) {
		dst := make([]float64, 1)
		err := solveCell([]float64{0}, []float64{1}, 1, dst)

		require.ErrorIs(t, err, errZeroSystem)
	})
}
