package types

import "math/cmplx"

// Jones is a 2x2 complex antenna response matrix in row-major order
// (XX, XY, YX, YY).
//
// complex128 entries are pairs of float64s, so all arithmetic below reduces to
// real-valued operations; the parameter-space linear algebra that consumes the
// results of these helpers is strictly real.
//
// Datasets with fewer than four correlations embed into the same
// representation: a single correlation occupies entry 0, two correlations
// occupy the diagonal (entries 0 and 3), and the unused entries stay zero.
// Because diagonal gains never mix entries, the unused entries remain zero
// through all products and can be summed over harmlessly.
type Jones [4]complex128

// JonesIdentity returns the 2x2 identity matrix.
func JonesIdentity() Jones {
	return Jones{1, 0, 0, 1}
}

// JonesScalar returns g scaled onto the identity (a diagonal matrix with g in
// both diagonal entries).
func JonesScalar(g complex128) Jones {
	return Jones{g, 0, 0, g}
}

// Mul returns the matrix product a*b.
func (a Jones) Mul(b Jones) Jones {
	return Jones{
		a[0]*b[0] + a[1]*b[2],
		a[0]*b[1] + a[1]*b[3],
		a[2]*b[0] + a[3]*b[2],
		a[2]*b[1] + a[3]*b[3],
	}
}

// H returns the conjugate transpose.
func (a Jones) H() Jones {
	return Jones{
		cmplx.Conj(a[0]), cmplx.Conj(a[2]),
		cmplx.Conj(a[1]), cmplx.Conj(a[3]),
	}
}

// MulH returns a*b^H.
func (a Jones) MulH(b Jones) Jones {
	return a.Mul(b.H())
}

// Add returns the entrywise sum a+b.
func (a Jones) Add(b Jones) Jones {
	return Jones{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
}

// Sub returns the entrywise difference a-b.
func (a Jones) Sub(b Jones) Jones {
	return Jones{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
}

// Scale returns s*a.
func (a Jones) Scale(s complex128) Jones {
	return Jones{s * a[0], s * a[1], s * a[2], s * a[3]}
}

// Dot returns the Frobenius inner product sum(conj(a_k)*b_k).
func (a Jones) Dot(b Jones) complex128 {
	var acc complex128
	for k := range a {
		acc += cmplx.Conj(a[k]) * b[k]
	}

	return acc
}

// Norm2 returns the squared Frobenius norm.
func (a Jones) Norm2() float64 {
	var acc float64
	for k := range a {
		re, im := real(a[k]), imag(a[k])
		acc += re*re + im*im
	}

	return acc
}

// IsFinite reports whether every entry is finite.
func (a Jones) IsFinite() bool {
	for k := range a {
		if cmplx.IsNaN(a[k]) || cmplx.IsInf(a[k]) {
			return false
		}
	}

	return true
}

// Inverse returns the matrix inverse and whether it exists.
//
// For single-correlation data the matrix is diagonal with equal entries, so
// the 2x2 inverse degenerates to the scalar reciprocal as expected.
func (a Jones) Inverse() (Jones, bool) {
	det := a[0]*a[3] - a[1]*a[2]
	if det == 0 || cmplx.IsNaN(det) || cmplx.IsInf(det) {
		return Jones{}, false
	}
	inv := 1 / det

	return Jones{inv * a[3], -inv * a[1], -inv * a[2], inv * a[0]}, true
}

// corrSlots maps a correlation count to the Jones entries it occupies.
var corrSlots = map[int][]int{
	1: {0},
	2: {0, 3},
	4: {0, 1, 2, 3},
}

// CorrSlots returns the Jones entry indices used by data with nCorr
// correlations, or nil when nCorr is unsupported.
func CorrSlots(nCorr int) []int {
	return corrSlots[nCorr]
}

// DatumJones embeds one visibility datum (nCorr consecutive complex values)
// into a Jones matrix, leaving unused entries zero.
func DatumJones(vals []complex128, nCorr int) Jones {
	var j Jones
	for i, slot := range corrSlots[nCorr] {
		j[slot] = vals[i]
	}

	return j
}

// StoreDatum writes the active entries of j back into a datum slice laid out
// with nCorr correlations.
func StoreDatum(j Jones, dst []complex128, nCorr int) {
	for i, slot := range corrSlots[nCorr] {
		dst[i] = j[slot]
	}
}
