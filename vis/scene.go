package vis

import (
	"fmt"
	"math/rand/v2"

	"github.com/JSKenyon/quartical/types"
)

// SceneGain pairs a gain-term definition with its ground-truth values.
type SceneGain struct {
	// Term is the chain entry the gains belong to.
	Term types.GainTerm

	// At returns the true gain for a global solution-interval cell
	// (ti = t/TimeInterval, fi = f/FreqInterval).
	At func(ti, fi, ant int) types.Jones
}

// Scene describes a synthetic observation with known, recoverable gains.
//
// The observed visibilities are built by corrupting the model with the
// ground-truth gain chain, V_pq = (G1_p*...*Gn_p) * M_pq * (G1_q*...*Gn_q)^H,
// optionally with additive complex Gaussian noise. The same deterministic
// seed always produces the same observation.
type Scene struct {
	// Extents is the observation index space.
	Extents types.Extents

	// Model returns the true source coherency at (t, f). Nil means a unit
	// point source (identity coherency).
	Model func(t, f int) types.Jones

	// Gains lists the ground-truth chain in application order.
	Gains []SceneGain

	// NoiseSigma is the per-component standard deviation of additive noise.
	// Zero means a noiseless observation. Weights are set to the matching
	// inverse variance.
	NoiseSigma float64

	// Seed drives the deterministic noise generator.
	Seed uint64
}

// TrueJones returns the composed ground-truth gain for one antenna at sample
// resolution.
func (s Scene) TrueJones(t, f, ant int) types.Jones {
	g := types.JonesIdentity()
	for _, sg := range s.Gains {
		g = g.Mul(sg.At(t/sg.Term.TimeInterval, f/sg.Term.FreqInterval, ant))
	}

	return g
}

// Build materialises the scene into an in-memory visibility source.
//
// Returns:
//   - *Memory: Source holding the corrupted observation
//   - error: Wrapped ErrInvalidConfig for invalid extents or terms
func (s Scene) Build() (*Memory, error) {
	if err := s.Extents.Validate(); err != nil {
		return nil, err
	}
	for _, sg := range s.Gains {
		if err := sg.Term.Validate(); err != nil {
			return nil, err
		}
		if sg.At == nil {
			return nil, fmt.Errorf("%w: scene gain %q has no value function",
				types.ErrInvalidConfig, sg.Term.Name)
		}
	}

	model := s.Model
	if model == nil {
		model = func(_, _ int) types.Jones { return types.JonesIdentity() }
	}

	ext := s.Extents
	nBl := ext.NBaselines()
	ant1, ant2 := Baselines(ext.NAnt)

	nVis := ext.NTime * nBl * ext.NChan * ext.NCorr
	nDatum := ext.NTime * nBl * ext.NChan
	vis := make([]complex128, nVis)
	modelArr := make([]complex128, nVis)
	weights := make([]float64, nDatum)
	flags := make([]bool, nDatum)

	weight := 1.0
	if s.NoiseSigma > 0 {
		weight = 1.0 / (s.NoiseSigma * s.NoiseSigma)
	}

	rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))

	for t := range ext.NTime {
		for bl := range nBl {
			p, q := ant1[bl], ant2[bl]
			row := t*nBl + bl

			for f := range ext.NChan {
				m := model(t, f)
				obs := s.TrueJones(t, f, p).Mul(m).MulH(s.TrueJones(t, f, q))

				base := (row*ext.NChan + f) * ext.NCorr
				types.StoreDatum(m, modelArr[base:base+ext.NCorr], ext.NCorr)
				types.StoreDatum(obs, vis[base:base+ext.NCorr], ext.NCorr)
				if s.NoiseSigma > 0 {
					for c := range ext.NCorr {
						vis[base+c] += complex(rng.NormFloat64()*s.NoiseSigma,
							rng.NormFloat64()*s.NoiseSigma)
					}
				}
				weights[row*ext.NChan+f] = weight
			}
		}
	}

	return NewMemory(ext, vis, modelArr, weights, flags)
}
