package term

import "github.com/JSKenyon/quartical/types"

// complexModel is the full complex 2x2 gain with eight real parameters: the
// paired real/imaginary components of each matrix entry in row-major order
// (reXX, imXX, reXY, imXY, reYX, imYX, reYY, imYY).
//
// Requires four-correlation data; the engine rejects the combination of a
// complex term with fewer correlations at validation time.
type complexModel struct{}

var _ Model = complexModel{}

func (complexModel) Kind() types.TermKind { return types.TermComplex }

func (complexModel) NumParams() int { return 8 }

func (complexModel) SetIdentity(p []float64) {
	for i := range p {
		p[i] = 0
	}
	p[0] = 1 // reXX
	p[6] = 1 // reYY
}

func (complexModel) Jones(p []float64) types.Jones {
	return types.Jones{
		complex(p[0], p[1]),
		complex(p[2], p[3]),
		complex(p[4], p[5]),
		complex(p[6], p[7]),
	}
}

func (complexModel) Derivs(_ []float64, d []types.Jones) {
	// The gain is linear in its parameters: the derivative with respect to
	// the real part of entry e is the basis matrix E_e, and with respect to
	// the imaginary part it is i*E_e.
	for e := range 4 {
		var re, im types.Jones
		re[e] = 1
		im[e] = complex(0, 1)
		d[2*e] = re
		d[2*e+1] = im
	}
}
