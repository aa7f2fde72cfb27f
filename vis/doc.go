// Package vis provides built-in visibility source implementations.
//
// Visibility sources supply chunked observation data to the engine.
// The package includes:
//
//   - Memory: Full in-memory observation, sliced per chunk on fetch
//   - Scene: Synthetic observation builder with known, recoverable gains
//
// Custom sources can be implemented by satisfying the types.VisSource interface.
package vis
