package types

import "errors"

// Sentinel errors for the QuartiCal solver engine.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Configuration errors - fatal, surfaced before any chunk runs.
var (
	// ErrInvalidConfig is returned when the solver configuration is invalid
	// or contradictory.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrVisSourceRequired is returned when the visibility source is nil.
	ErrVisSourceRequired = errors.New("visibility source is required")

	// ErrEmptyChain is returned when the gain-term chain is empty.
	ErrEmptyChain = errors.New("gain-term chain is empty")

	// ErrIntervalWidth is returned when a solution-interval width is non-positive.
	ErrIntervalWidth = errors.New("solution-interval width must be positive")

	// ErrChunkBudget is returned when the chunk element budget cannot
	// accommodate a single solution interval with the baseline dimension whole.
	ErrChunkBudget = errors.New("chunk element budget too small")
)

// Per-chunk errors - isolated to the offending chunk.
var (
	// ErrDataShape is returned when chunk data dimensions are inconsistent
	// with the declared extents or term parameterisation. Fatal for that
	// chunk only; sibling chunks continue.
	ErrDataShape = errors.New("chunk data shape mismatch")

	// ErrNonFinite indicates a non-finite intermediate value was detected
	// during a solve. Recovered locally by reverting to the last finite
	// state; never fatal to the overall run.
	ErrNonFinite = errors.New("non-finite value in solver state")

	// ErrSingularSystem is returned when a per-antenna normal-equation
	// system cannot be solved (rank deficient beyond recovery).
	ErrSingularSystem = errors.New("singular normal-equation system")
)

// Run-level errors - surfaced after the join barrier.
var (
	// ErrAssembly is returned when a required term is entirely absent from
	// all chunk results, reflecting irrecoverable coverage loss.
	ErrAssembly = errors.New("term entirely unsolved across all chunks")
)

// Lifecycle errors.
var (
	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when operations require a started component.
	ErrNotStarted = errors.New("not started")

	// ErrNATSConnectionRequired is returned when a NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrNoWorkersAvailable is returned when the distributed coordinator has
	// no workers to dispatch chunks to.
	ErrNoWorkersAvailable = errors.New("no workers available")
)
