package types

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/zeebo/xxh3"
)

// Extents describes the full index space of an observation.
type Extents struct {
	// NTime is the number of time samples.
	NTime int `json:"nTime"`

	// NChan is the number of frequency channels.
	NChan int `json:"nChan"`

	// NAnt is the number of antennas.
	NAnt int `json:"nAnt"`

	// NCorr is the number of correlations per visibility (1, 2 or 4).
	NCorr int `json:"nCorr"`
}

// NBaselines returns the number of cross-correlation baselines (p < q).
func (e Extents) NBaselines() int {
	return e.NAnt * (e.NAnt - 1) / 2
}

// Validate checks the extents for basic sanity.
func (e Extents) Validate() error {
	if e.NTime <= 0 || e.NChan <= 0 {
		return fmt.Errorf("%w: extents require positive time/chan dimensions", ErrInvalidConfig)
	}
	if e.NAnt < 2 {
		return fmt.Errorf("%w: at least two antennas required", ErrInvalidConfig)
	}
	if CorrSlots(e.NCorr) == nil {
		return fmt.Errorf("%w: unsupported correlation count %d", ErrInvalidConfig, e.NCorr)
	}

	return nil
}

// ChunkSpec identifies a contiguous sub-grid of the observation assigned to
// one solver invocation. Specs are immutable once planned; the union of all
// specs in a plan covers the full extent with no overlaps.
type ChunkSpec struct {
	// TimeIdx and FreqIdx are the chunk's coordinates on the planner grid.
	TimeIdx int `json:"timeIdx"`
	FreqIdx int `json:"freqIdx"`

	// TimeStart/TimeCount select the chunk's time samples.
	TimeStart int `json:"timeStart"`
	TimeCount int `json:"timeCount"`

	// FreqStart/FreqCount select the chunk's frequency channels.
	FreqStart int `json:"freqStart"`
	FreqCount int `json:"freqCount"`

	// NAnt and NCorr are carried from the observation extents; the baseline
	// dimension is never subdivided.
	NAnt  int `json:"nAnt"`
	NCorr int `json:"nCorr"`
}

// Key returns the canonical chunk identifier, ordered so that lexicographic
// comparison of keys matches (TimeIdx, FreqIdx) ordering. Used for
// deterministic tie-breaks and as the work-distribution key.
func (c ChunkSpec) Key() string {
	return fmt.Sprintf("t%06d-f%06d", c.TimeIdx, c.FreqIdx)
}

// Fingerprint returns a stable 64-bit hash of the chunk key, suitable for
// consistent-hash placement of chunks onto workers.
func (c ChunkSpec) Fingerprint() uint64 {
	return xxh3.HashString(c.Key())
}

// NBaselines returns the number of baselines in the chunk.
func (c ChunkSpec) NBaselines() int {
	return c.NAnt * (c.NAnt - 1) / 2
}

// Elements returns the number of visibility elements the chunk addresses.
func (c ChunkSpec) Elements() int64 {
	return int64(c.TimeCount) * int64(c.FreqCount) * int64(c.NBaselines()) * int64(c.NCorr)
}

// Compare orders chunk specs by (TimeIdx, FreqIdx).
func (c ChunkSpec) Compare(o ChunkSpec) int {
	if c.TimeIdx != o.TimeIdx {
		if c.TimeIdx < o.TimeIdx {
			return -1
		}

		return 1
	}
	if c.FreqIdx != o.FreqIdx {
		if c.FreqIdx < o.FreqIdx {
			return -1
		}

		return 1
	}

	return 0
}

// ChunkData owns the visibility view for one chunk.
//
// Rows are ordered time-major: row r covers baseline (Ant1[b], Ant2[b]) with
// b = r % len(Ant1) at time sample TimeStart + r/len(Ant1). Visibility and
// model arrays hold NCorr consecutive complex values per (row, channel);
// weights and flags hold one value per (row, channel).
//
// A ChunkData is immutable once fetched and is consumed by exactly one solver
// invocation.
type ChunkData struct {
	Spec ChunkSpec

	// Vis holds observed visibilities: len = rows*FreqCount*NCorr.
	Vis []complex128

	// Model holds sky-model predicted visibilities, aligned with Vis.
	Model []complex128

	// Weights holds per-datum inverse noise variance: len = rows*FreqCount.
	Weights []float64

	// Flags holds per-datum input flags: len = rows*FreqCount. True marks a
	// datum as invalid.
	Flags []bool

	// Ant1 and Ant2 map each baseline index to its antenna pair.
	Ant1 []int
	Ant2 []int
}

// Rows returns the number of (time, baseline) rows.
func (d *ChunkData) Rows() int {
	return d.Spec.TimeCount * len(d.Ant1)
}

// DatumIndex returns the start offset into Vis/Model for (row, chan).
func (d *ChunkData) DatumIndex(row, ch int) int {
	return (row*d.Spec.FreqCount + ch) * d.Spec.NCorr
}

// WeightIndex returns the offset into Weights/Flags for (row, chan).
func (d *ChunkData) WeightIndex(row, ch int) int {
	return row*d.Spec.FreqCount + ch
}

// Validate checks that all arrays are dimensionally aligned with the chunk's
// ChunkSpec.
//
// Returns:
//   - error: Wrapped ErrDataShape describing the first mismatch, nil if valid
func (d *ChunkData) Validate() error {
	nBl := d.Spec.NBaselines()
	if len(d.Ant1) != nBl || len(d.Ant2) != nBl {
		return fmt.Errorf("%w: chunk %s has %d/%d baseline entries, want %d",
			ErrDataShape, d.Spec.Key(), len(d.Ant1), len(d.Ant2), nBl)
	}
	rows := d.Rows()
	nVis := rows * d.Spec.FreqCount * d.Spec.NCorr
	if len(d.Vis) != nVis {
		return fmt.Errorf("%w: chunk %s has %d visibilities, want %d",
			ErrDataShape, d.Spec.Key(), len(d.Vis), nVis)
	}
	if len(d.Model) != nVis {
		return fmt.Errorf("%w: chunk %s has %d model values, want %d",
			ErrDataShape, d.Spec.Key(), len(d.Model), nVis)
	}
	nDatum := rows * d.Spec.FreqCount
	if len(d.Weights) != nDatum {
		return fmt.Errorf("%w: chunk %s has %d weights, want %d",
			ErrDataShape, d.Spec.Key(), len(d.Weights), nDatum)
	}
	if len(d.Flags) != nDatum {
		return fmt.Errorf("%w: chunk %s has %d flags, want %d",
			ErrDataShape, d.Spec.Key(), len(d.Flags), nDatum)
	}
	for p := range d.Ant1 {
		if d.Ant1[p] < 0 || d.Ant1[p] >= d.Spec.NAnt || d.Ant2[p] < 0 || d.Ant2[p] >= d.Spec.NAnt {
			return fmt.Errorf("%w: chunk %s baseline %d references antenna out of range",
				ErrDataShape, d.Spec.Key(), p)
		}
	}

	return nil
}

// FiniteOrFlagged reports whether the datum at (row, chan) holds only finite
// values, treating already-flagged data as acceptable.
func (d *ChunkData) FiniteOrFlagged(row, ch int) bool {
	if d.Flags[d.WeightIndex(row, ch)] {
		return true
	}
	base := d.DatumIndex(row, ch)
	for c := range d.Spec.NCorr {
		if cmplx.IsNaN(d.Vis[base+c]) || cmplx.IsInf(d.Vis[base+c]) {
			return false
		}
		if cmplx.IsNaN(d.Model[base+c]) || cmplx.IsInf(d.Model[base+c]) {
			return false
		}
	}

	return true
}

// VisSource is the external data-access collaborator. Implementations return
// dimensionally aligned observed/model/weight/flag arrays for a chunk.
//
// Implementations must be safe for concurrent FetchChunk calls: the executor
// fetches chunks from multiple goroutines.
type VisSource interface {
	// Extents returns the full observation index space.
	Extents(ctx context.Context) (Extents, error)

	// FetchChunk returns the data view for one planned chunk.
	FetchChunk(ctx context.Context, spec ChunkSpec) (*ChunkData, error)
}
