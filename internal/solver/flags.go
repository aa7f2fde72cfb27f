package solver

import (
	"math"

	"github.com/JSKenyon/quartical/types"
	"github.com/JSKenyon/quartical/weighting"
)

// propagator computes per-datum effective weights for each solver iteration
// and owns the chunk's working flag array.
//
// Flags are monotonic: once set within a solve they are never cleared. The
// robust kernel only scales the effective weight, which may reach zero for an
// iteration without setting the permanent flag.
type propagator struct {
	kernel weighting.Kernel

	// flags is the working copy of the input flags, extended with any
	// solver-detected permanent flags (non-finite input data).
	flags []bool

	// weights holds the effective per-datum weight for the current iteration.
	weights []float64

	// resid holds per-datum residual magnitudes from the previous iteration.
	resid []float64

	// scale is the robust spread estimate from the previous iteration.
	scale float64

	// unflagged counts data with a clear flag and positive noise weight.
	unflagged int
}

// newPropagator copies the chunk's input flags and permanently flags any
// datum carrying non-finite values.
func newPropagator(data *types.ChunkData, kernel weighting.Kernel) *propagator {
	n := len(data.Flags)
	fp := &propagator{
		kernel:  kernel,
		flags:   make([]bool, n),
		weights: make([]float64, n),
		resid:   make([]float64, n),
	}
	copy(fp.flags, data.Flags)

	for row := range data.Rows() {
		for ch := range data.Spec.FreqCount {
			idx := data.WeightIndex(row, ch)
			if fp.flags[idx] {
				continue
			}
			if !data.FiniteOrFlagged(row, ch) {
				fp.flags[idx] = true

				continue
			}
			if data.Weights[idx] > 0 {
				fp.unflagged++
			}
		}
	}

	return fp
}

// computeWeights fills the effective weight array for one iteration.
//
// The weight is zero for flagged data, otherwise the input noise weight
// multiplied by the robust kernel factor of the previous iteration's
// normalised residual. On the first iteration no residuals exist yet, so the
// factor is one (this avoids double-counting outliers before any model has
// been fitted).
func (fp *propagator) computeWeights(data *types.ChunkData, iter int) {
	useRobust := iter > 0 && fp.scale > 0 && !math.IsInf(fp.scale, 0) && !math.IsNaN(fp.scale)

	for idx := range fp.weights {
		if fp.flags[idx] {
			fp.weights[idx] = 0

			continue
		}
		w := data.Weights[idx]
		if w <= 0 {
			fp.weights[idx] = 0

			continue
		}
		if useRobust {
			w *= fp.kernel.Factor(fp.resid[idx] / fp.scale)
		}
		fp.weights[idx] = w
	}
}

// observeResiduals records per-datum residual magnitudes and refreshes the
// robust scale (weighted RMS of unflagged residuals) for the next iteration.
func (fp *propagator) observeResiduals(resid []float64) {
	copy(fp.resid, resid)

	var sum, wSum float64
	for idx, r := range fp.resid {
		if fp.flags[idx] || fp.weights[idx] <= 0 {
			continue
		}
		sum += fp.weights[idx] * r * r
		wSum += fp.weights[idx]
	}
	if wSum > 0 {
		fp.scale = math.Sqrt(sum / wSum)
	} else {
		fp.scale = 0
	}
}
