package quartical

import (
	"context"
	"fmt"

	"github.com/JSKenyon/quartical/types"
)

// OutputKind selects which derived visibility product CorrectedChunk makes.
type OutputKind string

// Visibility output products.
const (
	// OutputResidual is V - G_p M G_q^H with the estimated gains applied to
	// the model.
	OutputResidual OutputKind = "residual"

	// OutputCorrectedData is G_p^-1 V G_q^-H, the observed data with the
	// estimated gains removed.
	OutputCorrectedData OutputKind = "corrected_data"

	// OutputCorrectedResidual is G_p^-1 (V - G_p M G_q^H) G_q^-H.
	OutputCorrectedResidual OutputKind = "corrected_residual"
)

// Valid reports whether the kind is a known output product.
func (k OutputKind) Valid() bool {
	switch k {
	case OutputResidual, OutputCorrectedData, OutputCorrectedResidual:
		return true
	default:
		return false
	}
}

// VisOutput holds one derived visibility product for a chunk.
//
// Data is laid out exactly like ChunkData.Vis (rows * FreqCount * NCorr).
// Flags extends the input flags: a datum is additionally flagged when a gain
// needed for correction is not invertible.
type VisOutput struct {
	Spec  types.ChunkSpec `json:"spec"`
	Kind  OutputKind      `json:"kind"`
	Data  []complex128    `json:"data"`
	Flags []bool          `json:"flags"`
}

// CorrectedChunk fetches one chunk and applies a finalized solution table to
// it, producing the requested visibility product.
//
// The gains applied to each datum are sampled from the table at the datum's
// global (time, channel) coordinates, linearly interpolated between solution
// interval centres. Already-flagged input data passes through unchanged but
// stays flagged; data whose gains cannot be inverted is flagged in the output.
//
// Parameters:
//   - ctx: Context for the chunk fetch
//   - table: Finalized solution table from Run
//   - spec: Chunk to correct
//   - kind: Output product to compute
//
// Returns:
//   - *VisOutput: Derived visibilities with extended flags
//   - error: Fetch error, wrapped ErrDataShape, or ErrInvalidConfig for an
//     unknown kind or a table missing a chain term
func (e *Engine) CorrectedChunk(ctx context.Context, table *types.SolutionTable, spec types.ChunkSpec, kind OutputKind) (*VisOutput, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown output kind %q", ErrInvalidConfig, kind)
	}

	solutions := make([]*types.TermSolutions, len(e.cfg.Chain))
	for i, def := range e.cfg.Chain {
		ts := table.Term(def.Name)
		if ts == nil {
			return nil, fmt.Errorf("%w: solution table has no term %q", ErrInvalidConfig, def.Name)
		}
		solutions[i] = ts
	}

	data, err := e.src.FetchChunk(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("fetch chunk %s: %w", spec.Key(), err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	out := &VisOutput{
		Spec:  spec,
		Kind:  kind,
		Data:  make([]complex128, len(data.Vis)),
		Flags: make([]bool, len(data.Flags)),
	}
	copy(out.Flags, data.Flags)

	nBl := len(data.Ant1)
	for row := range data.Rows() {
		t := float64(spec.TimeStart + row/nBl)
		p, q := data.Ant1[row%nBl], data.Ant2[row%nBl]

		for ch := range spec.FreqCount {
			f := float64(spec.FreqStart + ch)
			gp := e.sampleChain(solutions, p, t, f)
			gq := e.sampleChain(solutions, q, t, f)

			base := data.DatumIndex(row, ch)
			v := types.DatumJones(data.Vis[base:base+spec.NCorr], spec.NCorr)
			m := types.DatumJones(data.Model[base:base+spec.NCorr], spec.NCorr)

			res, flagged := applyGains(v, m, gp, gq, kind)
			if flagged {
				out.Flags[data.WeightIndex(row, ch)] = true

				continue
			}
			types.StoreDatum(res, out.Data[base:base+spec.NCorr], spec.NCorr)
		}
	}

	return out, nil
}

// sampleChain composes the chain's interpolated gains for one antenna at a
// global (time, channel) coordinate.
func (e *Engine) sampleChain(solutions []*types.TermSolutions, ant int, t, f float64) types.Jones {
	g := types.JonesIdentity()
	for i, ts := range solutions {
		g = g.Mul(e.models[i].Jones(ts.Sample(ant, t, f)))
	}

	return g
}

// applyGains computes one output datum. Returns flagged=true when a needed
// inverse does not exist.
func applyGains(v, m, gp, gq types.Jones, kind OutputKind) (types.Jones, bool) {
	residual := v.Sub(gp.Mul(m).MulH(gq))
	if kind == OutputResidual {
		return residual, false
	}

	gpInv, okP := gp.Inverse()
	gqInv, okQ := gq.Inverse()
	if !okP || !okQ {
		return types.Jones{}, true
	}

	x := v
	if kind == OutputCorrectedResidual {
		x = residual
	}

	return gpInv.Mul(x).MulH(gqInv), false
}
