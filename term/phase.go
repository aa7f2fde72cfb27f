package term

import (
	"math/cmplx"

	"github.com/JSKenyon/quartical/types"
)

// phaseModel is the phase-only diagonal gain G = exp(i*phi) * I with a single
// real parameter phi (radians).
type phaseModel struct{}

var _ Model = phaseModel{}

func (phaseModel) Kind() types.TermKind { return types.TermPhase }

func (phaseModel) NumParams() int { return 1 }

func (phaseModel) SetIdentity(p []float64) {
	p[0] = 0
}

func (phaseModel) Jones(p []float64) types.Jones {
	return types.JonesScalar(cmplx.Exp(complex(0, p[0])))
}

func (phaseModel) Derivs(p []float64, d []types.Jones) {
	// dG/dphi = i * exp(i*phi) * I
	g := cmplx.Exp(complex(0, p[0]))
	d[0] = types.JonesScalar(complex(0, 1) * g)
}
