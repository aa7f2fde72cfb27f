package types

import "fmt"

// TermKind identifies the parameterisation of a gain term.
//
// The set of kinds is closed: solver dispatch is over this enumeration rather
// than open-ended subclassing. Adding a parameterisation means adding a kind
// here and a model for it in the term package.
type TermKind string

// Supported gain-term parameterisations.
const (
	// TermPhase is a phase-only diagonal gain: one real parameter (radians)
	// per antenna per solution interval.
	TermPhase TermKind = "phase"

	// TermDiag is an amplitude-plus-phase diagonal gain: two real parameters
	// per antenna per solution interval.
	TermDiag TermKind = "diag"

	// TermComplex is a full complex 2x2 gain: eight real parameters
	// (paired real/imaginary components) per antenna per solution interval.
	// Requires four-correlation data.
	TermComplex TermKind = "complex"
)

// NumParams returns the number of free real parameters per antenna per
// solution interval for the kind, or 0 for an unknown kind.
func (k TermKind) NumParams() int {
	switch k {
	case TermPhase:
		return 1
	case TermDiag:
		return 2
	case TermComplex:
		return 8
	default:
		return 0
	}
}

// Valid reports whether the kind is a member of the closed set.
func (k TermKind) Valid() bool {
	return k.NumParams() > 0
}

// GainTerm is the immutable definition of one entry in the gain chain.
//
// Terms are multiplicatively composed in chain order: the corrected model for
// baseline (p,q) is (G1_p*G2_p*...*Gn_p) * M_pq * (G1_q*G2_q*...*Gn_q)^H.
// The definition is shared read-only across all concurrent chunk solves.
type GainTerm struct {
	// Name uniquely identifies the term within the chain (e.g. "G", "B").
	Name string `yaml:"name" json:"name"`

	// Kind selects the parameterisation.
	Kind TermKind `yaml:"kind" json:"kind"`

	// TimeInterval is the solution-interval width in time samples. Parameters
	// are assumed constant over each interval. Must be positive.
	TimeInterval int `yaml:"timeInterval" json:"timeInterval"`

	// FreqInterval is the solution-interval width in frequency channels.
	// Must be positive.
	FreqInterval int `yaml:"freqInterval" json:"freqInterval"`

	// MaxIter optionally caps this term's Gauss-Newton updates. Zero means
	// the global solver cap applies.
	MaxIter int `yaml:"maxIter" json:"maxIter"`
}

// Validate checks the term definition.
//
// Returns:
//   - error: Wrapped ErrInvalidConfig or ErrIntervalWidth, nil if valid
func (t GainTerm) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: gain term requires a name", ErrInvalidConfig)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: term %q has unknown kind %q", ErrInvalidConfig, t.Name, t.Kind)
	}
	if t.TimeInterval <= 0 {
		return fmt.Errorf("%w: term %q time interval %d", ErrIntervalWidth, t.Name, t.TimeInterval)
	}
	if t.FreqInterval <= 0 {
		return fmt.Errorf("%w: term %q freq interval %d", ErrIntervalWidth, t.Name, t.FreqInterval)
	}

	return nil
}

// TimeIntervals returns the number of solution intervals covering nTime
// samples. The final interval may be ragged.
func (t GainTerm) TimeIntervals(nTime int) int {
	return (nTime + t.TimeInterval - 1) / t.TimeInterval
}

// FreqIntervals returns the number of solution intervals covering nChan
// channels.
func (t GainTerm) FreqIntervals(nChan int) int {
	return (nChan + t.FreqInterval - 1) / t.FreqInterval
}
