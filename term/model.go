package term

import (
	"fmt"

	"github.com/JSKenyon/quartical/types"
)

// Model computes the Jones matrix and its parameter derivatives for one gain
// term. Implementations are stateless and shared read-only across all
// concurrent chunk solves.
type Model interface {
	// Kind returns the parameterisation this model implements.
	Kind() types.TermKind

	// NumParams returns the number of free real parameters per antenna per
	// solution interval.
	NumParams() int

	// SetIdentity writes the identity-gain parameter vector (unity gain,
	// zero phase) into p. len(p) == NumParams().
	SetIdentity(p []float64)

	// Jones returns the gain matrix for the parameter vector.
	Jones(p []float64) types.Jones

	// Derivs writes d[u] = dG/dp[u] for each parameter. len(d) == NumParams().
	Derivs(p []float64, d []types.Jones)
}

// New returns the model for a term definition.
//
// Returns:
//   - Model: Stateless model for the term's kind
//   - error: Wrapped ErrInvalidConfig for an unknown kind
func New(def types.GainTerm) (Model, error) {
	switch def.Kind {
	case types.TermPhase:
		return phaseModel{}, nil
	case types.TermDiag:
		return diagModel{}, nil
	case types.TermComplex:
		return complexModel{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown term kind %q", types.ErrInvalidConfig, def.Kind)
	}
}

// Chain builds models for an ordered term chain.
func Chain(defs []types.GainTerm) ([]Model, error) {
	models := make([]Model, len(defs))
	for i, def := range defs {
		model, err := New(def)
		if err != nil {
			return nil, err
		}
		models[i] = model
	}

	return models, nil
}
