package quartical

import "github.com/JSKenyon/quartical/types"

// Sentinel errors re-exported from the types package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrVisSourceRequired is returned when the visibility source is nil.
	ErrVisSourceRequired = types.ErrVisSourceRequired

	// ErrEmptyChain is returned when the gain-term chain is empty.
	ErrEmptyChain = types.ErrEmptyChain

	// ErrIntervalWidth is returned when a solution-interval width is non-positive.
	ErrIntervalWidth = types.ErrIntervalWidth

	// ErrChunkBudget is returned when the chunk element budget cannot hold a
	// single solution interval.
	ErrChunkBudget = types.ErrChunkBudget

	// ErrDataShape is returned when chunk data dimensions are inconsistent.
	ErrDataShape = types.ErrDataShape

	// ErrAssembly is returned when a term is entirely unsolved across all chunks.
	ErrAssembly = types.ErrAssembly
)
