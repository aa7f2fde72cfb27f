package weighting

// DefaultTukeyConstant is the conventional biweight tuning constant giving
// 95% efficiency under Gaussian noise.
const DefaultTukeyConstant = 4.685

// Tukey implements the Tukey biweight function: a smooth taper that assigns
// zero weight to residuals beyond the cutoff. More aggressive than Huber
// against gross outliers.
type Tukey struct {
	c float64
}

var _ Kernel = Tukey{}

// NewTukey creates a Tukey biweight kernel.
//
// Parameters:
//   - c: Cutoff constant; non-positive values fall back to the default
//
// Returns:
//   - Tukey: Configured kernel
func NewTukey(c float64) Tukey {
	if c <= 0 {
		c = DefaultTukeyConstant
	}

	return Tukey{c: c}
}

// Name returns "tukey".
func (Tukey) Name() string { return "tukey" }

// Factor returns (1-(x/c)^2)^2 inside the cutoff and 0 beyond.
func (t Tukey) Factor(x float64) float64 {
	if x < 0 {
		x = -x
	}
	if x >= t.c {
		return 0
	}
	u := x / t.c
	v := 1 - u*u

	return v * v
}
