package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// errZeroSystem marks a normal-equation system with no information (fully
// flagged antenna/interval). Not a failure; the cell simply receives no update.
var errZeroSystem = errors.New("empty normal-equation system")

// solveCell solves the np x np real system jhj * dst = jhr for one
// (antenna, solution interval) cell using a QR factorisation.
//
// A system whose diagonal is entirely (near) zero carries no information and
// returns errZeroSystem. Rank-deficient systems surface gonum's
// singular/ill-conditioned errors; callers skip the update for that cell
// rather than aborting the solve.
func solveCell(jhj, jhr []float64, np int, dst []float64) error {
	const tiny = 1e-30

	empty := true
	for u := range np {
		if math.Abs(jhj[u*np+u]) > tiny {
			empty = false

			break
		}
	}
	if empty {
		return errZeroSystem
	}

	if np == 1 {
		// Scalar fast path; the QR machinery is overkill for phase-only terms.
		dst[0] = jhr[0] / jhj[0]
		if math.IsNaN(dst[0]) || math.IsInf(dst[0], 0) {
			return errZeroSystem
		}

		return nil
	}

	var qr mat.QR
	qr.Factorize(mat.NewDense(np, np, jhj))

	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, mat.NewVecDense(np, jhr)); err != nil {
		return err
	}

	for u := range np {
		dst[u] = x.AtVec(u)
	}

	return nil
}
