package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	metrics := NewNop()

	require.NotNil(t, metrics)
	require.IsType(t, &NopMetrics{}, metrics)
}

func TestNopMetrics_RecordChunkSolve(t *testing.T) {
	metrics := NewNop()

	// Should not panic with various inputs
	require.NotPanics(t, func() {
		metrics.RecordChunkSolve("converged", 1.5)
		metrics.RecordChunkSolve("", 0)
		metrics.RecordChunkSolve("unknown_outcome", -1.0)
	})
}

func TestNopMetrics_RecordIterations(t *testing.T) {
	metrics := NewNop()

	// Should not panic with various inputs
	require.NotPanics(t, func() {
		metrics.RecordIterations("G", 12)
		metrics.RecordIterations("", 0)
		metrics.RecordIterations("B", -1)
	})
}

func TestNopMetrics_RecordChunkFailure(t *testing.T) {
	metrics := NewNop()

	// Should not panic with various inputs
	require.NotPanics(t, func() {
		metrics.RecordChunkFailure("fetch")
		metrics.RecordChunkFailure("")
		metrics.RecordChunkFailure("data_shape")
	})
}

func TestNopMetrics_RecordCellOutcomes(t *testing.T) {
	metrics := NewNop()

	// Should not panic with various inputs
	require.NotPanics(t, func() {
		metrics.RecordCellOutcomes("G", "solved", 120)
		metrics.RecordCellOutcomes("", "", 0)
		metrics.RecordCellOutcomes("B", "fallback", -1)
	})
}

func BenchmarkNopMetrics_RecordChunkSolve(b *testing.B) {
	metrics := NewNop()
	for b.Loop() {
		metrics.RecordChunkSolve("converged", 1.5)
	}
}

func BenchmarkNopMetrics_RecordIterations(b *testing.B) {
	metrics := NewNop()
	for b.Loop() {
		metrics.RecordIterations("G", 12)
	}
}

func BenchmarkNopMetrics_RecordCellOutcomes(b *testing.B) {
	metrics := NewNop()
	for b.Loop() {
		metrics.RecordCellOutcomes("G", "solved", 120)
	}
}
