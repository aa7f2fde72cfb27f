package weighting

// DefaultHuberThreshold is the conventional Huber tuning constant giving 95%
// efficiency under Gaussian noise.
const DefaultHuberThreshold = 1.345

// Huber implements the Huber weight function: residuals within the threshold
// keep full weight, larger residuals are down-weighted proportionally to
// their excess.
type Huber struct {
	threshold float64
}

var _ Kernel = Huber{}

// NewHuber creates a Huber kernel.
//
// Parameters:
//   - threshold: Tuning constant k; non-positive values fall back to the default
//
// Returns:
//   - Huber: Configured kernel
func NewHuber(threshold float64) Huber {
	if threshold <= 0 {
		threshold = DefaultHuberThreshold
	}

	return Huber{threshold: threshold}
}

// Name returns "huber".
func (Huber) Name() string { return "huber" }

// Factor returns 1 for |x| <= k and k/|x| beyond.
func (h Huber) Factor(x float64) float64 {
	if x < 0 {
		x = -x
	}
	if x <= h.threshold {
		return 1
	}

	return h.threshold / x
}
