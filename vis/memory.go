package vis

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/JSKenyon/quartical/types"
)

// Memory implements a visibility source backed by full in-memory arrays.
//
// Rows are ordered time-major over the canonical baseline enumeration
// (p < q, p-major). FetchChunk returns copies, so concurrent fetches and
// post-construction mutation through the helper methods are safe.
type Memory struct {
	mu      sync.RWMutex
	ext     types.Extents
	ant1    []int
	ant2    []int
	vis     []complex128
	model   []complex128
	weights []float64
	flags   []bool
}

var _ types.VisSource = (*Memory)(nil)

// Baselines returns the canonical baseline enumeration for nAnt antennas:
// all pairs (p, q) with p < q, ordered p-major.
func Baselines(nAnt int) (ant1, ant2 []int) {
	n := nAnt * (nAnt - 1) / 2
	ant1 = make([]int, 0, n)
	ant2 = make([]int, 0, n)
	for p := range nAnt {
		for q := p + 1; q < nAnt; q++ {
			ant1 = append(ant1, p)
			ant2 = append(ant2, q)
		}
	}

	return ant1, ant2
}

// NewMemory creates an in-memory visibility source.
//
// Array lengths must match the extents: vis and model hold
// nTime*nBaselines*nChan*nCorr complex values, weights and flags hold
// nTime*nBaselines*nChan entries. The arrays are retained, not copied.
//
// Parameters:
//   - ext: Observation extents
//   - vis: Observed visibilities
//   - model: Sky-model predicted visibilities
//   - weights: Per-datum inverse noise variance
//   - flags: Per-datum input flags
//
// Returns:
//   - *Memory: Initialized source
//   - error: Wrapped ErrDataShape on a dimension mismatch
func NewMemory(ext types.Extents, vis, model []complex128, weights []float64, flags []bool) (*Memory, error) {
	if err := ext.Validate(); err != nil {
		return nil, err
	}

	nBl := ext.NBaselines()
	nVis := ext.NTime * nBl * ext.NChan * ext.NCorr
	nDatum := ext.NTime * nBl * ext.NChan
	if len(vis) != nVis || len(model) != nVis {
		return nil, fmt.Errorf("%w: memory source has %d/%d visibility values, want %d",
			types.ErrDataShape, len(vis), len(model), nVis)
	}
	if len(weights) != nDatum || len(flags) != nDatum {
		return nil, fmt.Errorf("%w: memory source has %d/%d weight/flag entries, want %d",
			types.ErrDataShape, len(weights), len(flags), nDatum)
	}

	ant1, ant2 := Baselines(ext.NAnt)

	return &Memory{
		ext:     ext,
		ant1:    ant1,
		ant2:    ant2,
		vis:     vis,
		model:   model,
		weights: weights,
		flags:   flags,
	}, nil
}

// Extents returns the full observation index space.
func (m *Memory) Extents(_ context.Context) (types.Extents, error) {
	return m.ext, nil
}

// FetchChunk returns a copied data view for one planned chunk.
//
// Returns:
//   - *types.ChunkData: Chunk view with freshly allocated arrays
//   - error: Wrapped ErrDataShape when the chunk exceeds the extents
func (m *Memory) FetchChunk(_ context.Context, spec types.ChunkSpec) (*types.ChunkData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if spec.TimeStart < 0 || spec.TimeStart+spec.TimeCount > m.ext.NTime ||
		spec.FreqStart < 0 || spec.FreqStart+spec.FreqCount > m.ext.NChan ||
		spec.NAnt != m.ext.NAnt || spec.NCorr != m.ext.NCorr {
		return nil, fmt.Errorf("%w: chunk %s exceeds observation extents", types.ErrDataShape, spec.Key())
	}

	nBl := len(m.ant1)
	rows := spec.TimeCount * nBl
	data := &types.ChunkData{
		Spec:    spec,
		Vis:     make([]complex128, rows*spec.FreqCount*spec.NCorr),
		Model:   make([]complex128, rows*spec.FreqCount*spec.NCorr),
		Weights: make([]float64, rows*spec.FreqCount),
		Flags:   make([]bool, rows*spec.FreqCount),
		Ant1:    m.ant1,
		Ant2:    m.ant2,
	}

	for tLoc := range spec.TimeCount {
		for bl := range nBl {
			row := tLoc*nBl + bl
			gRow := (spec.TimeStart+tLoc)*nBl + bl

			src := (gRow*m.ext.NChan + spec.FreqStart) * m.ext.NCorr
			dst := data.DatumIndex(row, 0)
			copy(data.Vis[dst:dst+spec.FreqCount*spec.NCorr], m.vis[src:src+spec.FreqCount*spec.NCorr])
			copy(data.Model[dst:dst+spec.FreqCount*spec.NCorr], m.model[src:src+spec.FreqCount*spec.NCorr])

			srcW := gRow*m.ext.NChan + spec.FreqStart
			dstW := data.WeightIndex(row, 0)
			copy(data.Weights[dstW:dstW+spec.FreqCount], m.weights[srcW:srcW+spec.FreqCount])
			copy(data.Flags[dstW:dstW+spec.FreqCount], m.flags[srcW:srcW+spec.FreqCount])
		}
	}

	return data, nil
}

// Flag marks the datum at (t, f) on baseline bl as invalid.
func (m *Memory) Flag(t, f, bl int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[(t*len(m.ant1)+bl)*m.ext.NChan+f] = true
}

// FlagAntenna flags every datum on every baseline involving the antenna.
func (m *Memory) FlagAntenna(ant int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nBl := len(m.ant1)
	for bl := range nBl {
		if m.ant1[bl] != ant && m.ant2[bl] != ant {
			continue
		}
		for t := range m.ext.NTime {
			base := (t*nBl + bl) * m.ext.NChan
			for f := range m.ext.NChan {
				m.flags[base+f] = true
			}
		}
	}
}

// FlagAll flags the entire observation.
func (m *Memory) FlagAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.flags {
		m.flags[i] = true
	}
}

// Poison overwrites the datum at (t, f) on baseline bl with NaN values
// without flagging it.
func (m *Memory) Poison(t, f, bl int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nan := complex(math.NaN(), math.NaN())
	base := ((t*len(m.ant1)+bl)*m.ext.NChan + f) * m.ext.NCorr
	for c := range m.ext.NCorr {
		m.vis[base+c] = nan
	}
}
