package term

import (
	"math/cmplx"

	"github.com/JSKenyon/quartical/types"
)

// diagModel is the amplitude-plus-phase diagonal gain G = a*exp(i*phi) * I
// with two real parameters (a, phi).
type diagModel struct{}

var _ Model = diagModel{}

func (diagModel) Kind() types.TermKind { return types.TermDiag }

func (diagModel) NumParams() int { return 2 }

func (diagModel) SetIdentity(p []float64) {
	p[0] = 1
	p[1] = 0
}

func (diagModel) Jones(p []float64) types.Jones {
	g := complex(p[0], 0) * cmplx.Exp(complex(0, p[1]))

	return types.JonesScalar(g)
}

func (diagModel) Derivs(p []float64, d []types.Jones) {
	phase := cmplx.Exp(complex(0, p[1]))
	// dG/da = exp(i*phi) * I
	d[0] = types.JonesScalar(phase)
	// dG/dphi = i * a * exp(i*phi) * I
	d[1] = types.JonesScalar(complex(0, 1) * complex(p[0], 0) * phase)
}
