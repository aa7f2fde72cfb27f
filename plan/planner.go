package plan

import (
	"fmt"

	"github.com/JSKenyon/quartical/types"
)

// Chunks produces an ordered sequence of chunk specs covering the full
// observation extent with no gaps or overlaps.
//
// The chunk time/frequency spans are the largest multiples of the combined
// (least common multiple) solution-interval widths that fit within
// maxElements. Time is subdivided before frequency; the baseline dimension is
// kept whole.
//
// Parameters:
//   - ext: Full observation extents
//   - chain: Ordered gain-term chain (interval widths must be positive)
//   - maxElements: Maximum visibility elements per chunk
//
// Returns:
//   - []types.ChunkSpec: Chunks ordered by (TimeIdx, FreqIdx)
//   - error: Wrapped ErrInvalidConfig/ErrIntervalWidth/ErrChunkBudget on
//     invalid inputs or an unsatisfiable budget
func Chunks(ext types.Extents, chain []types.GainTerm, maxElements int64) ([]types.ChunkSpec, error) {
	if err := ext.Validate(); err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, types.ErrEmptyChain
	}
	for _, term := range chain {
		if err := term.Validate(); err != nil {
			return nil, err
		}
	}
	if maxElements <= 0 {
		return nil, fmt.Errorf("%w: max chunk elements must be positive, got %d",
			types.ErrInvalidConfig, maxElements)
	}

	// A chunk must hold the full baseline set for every (time, chan) cell.
	perCell := int64(ext.NBaselines()) * int64(ext.NCorr)
	if perCell > maxElements {
		return nil, fmt.Errorf(
			"%w: baseline dimension needs %d elements per cell but budget is %d and baselines cannot be subdivided",
			types.ErrChunkBudget, perCell, maxElements)
	}

	lcmT := intervalLCM(chain, ext.NTime, func(t types.GainTerm) int { return t.TimeInterval })
	lcmF := intervalLCM(chain, ext.NChan, func(t types.GainTerm) int { return t.FreqInterval })

	tSpan, fSpan, err := spans(ext, lcmT, lcmF, perCell, maxElements)
	if err != nil {
		return nil, err
	}

	nTChunks := (ext.NTime + tSpan - 1) / tSpan
	nFChunks := (ext.NChan + fSpan - 1) / fSpan

	specs := make([]types.ChunkSpec, 0, nTChunks*nFChunks)
	for ti := range nTChunks {
		tStart := ti * tSpan
		tCount := min(tSpan, ext.NTime-tStart)
		for fi := range nFChunks {
			fStart := fi * fSpan
			specs = append(specs, types.ChunkSpec{
				TimeIdx:   ti,
				FreqIdx:   fi,
				TimeStart: tStart,
				TimeCount: tCount,
				FreqStart: fStart,
				FreqCount: min(fSpan, ext.NChan-fStart),
				NAnt:      ext.NAnt,
				NCorr:     ext.NCorr,
			})
		}
	}

	return specs, nil
}

// spans picks the chunk time and frequency spans. Time shrinks first (down to
// one combined interval), then frequency.
func spans(ext types.Extents, lcmT, lcmF int, perCell, maxElements int64) (int, int, error) {
	// Whole observation in one chunk?
	if int64(ext.NTime)*int64(ext.NChan)*perCell <= maxElements {
		return ext.NTime, ext.NChan, nil
	}

	// Shrink time to the largest interval multiple that fits alongside the
	// whole frequency axis.
	if k := maxElements / (int64(ext.NChan) * perCell * int64(lcmT)); k > 0 {
		return min(int(k)*lcmT, ext.NTime), ext.NChan, nil
	}

	// Time is down to a single combined interval; now shrink frequency.
	if k := maxElements / (int64(lcmT) * perCell * int64(lcmF)); k > 0 {
		return lcmT, min(int(k)*lcmF, ext.NChan), nil
	}

	return 0, 0, fmt.Errorf(
		"%w: a single solution interval (%d time x %d chan) needs %d elements but budget is %d",
		types.ErrChunkBudget, lcmT, lcmF, int64(lcmT)*int64(lcmF)*perCell, maxElements)
}

// intervalLCM returns the least common multiple of all terms' interval widths
// along one axis, clamped to the axis length (an interval longer than the
// axis degenerates to covering it whole).
func intervalLCM(chain []types.GainTerm, axisLen int, width func(types.GainTerm) int) int {
	acc := 1
	for _, term := range chain {
		w := width(term)
		acc = acc / gcd(acc, w) * w
		if acc >= axisLen {
			return axisLen
		}
	}

	return acc
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}
