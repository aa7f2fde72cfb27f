package weighting

import (
	"fmt"

	"github.com/JSKenyon/quartical/types"
)

// Kernel maps a normalised residual magnitude to a weight factor in [0,1].
//
// Implementations must be stateless and safe for concurrent use; one kernel
// instance is shared by all chunk solves.
type Kernel interface {
	// Name returns the kernel's configuration name.
	Name() string

	// Factor returns the multiplicative weight for a datum whose residual
	// magnitude is x robust standard deviations from zero. Must return a
	// value in [0,1], with Factor(0) == 1.
	Factor(x float64) float64
}

// New returns the named kernel with its default tuning constant.
//
// Parameters:
//   - name: "uniform", "huber" or "tukey"
//
// Returns:
//   - Kernel: Configured kernel
//   - error: Wrapped ErrInvalidConfig for unknown names
func New(name string) (Kernel, error) {
	switch name {
	case "", "uniform":
		return Uniform{}, nil
	case "huber":
		return NewHuber(DefaultHuberThreshold), nil
	case "tukey":
		return NewTukey(DefaultTukeyConstant), nil
	default:
		return nil, fmt.Errorf("%w: unknown robust kernel %q", types.ErrInvalidConfig, name)
	}
}
