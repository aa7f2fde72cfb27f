package types

// SolutionCell is one (antenna, time-interval, frequency-interval) entry of a
// term's solution grid.
type SolutionCell struct {
	// Params is the fixed-size real parameter vector for the cell.
	Params []float64 `json:"params"`

	// Flag records how the cell was produced.
	Flag CellFlag `json:"flag"`

	// Residual is the final residual norm of the chunk that produced the
	// cell. Used for tie-breaks; zero for fallback cells.
	Residual float64 `json:"residual"`
}

// TermSolutions is the global solution grid for one gain term.
//
// Cells are indexed ((ti*NFreqInt)+fi)*NAnt + ant over global interval
// indices. TimeCenters/FreqCenters hold the sample/channel coordinate of each
// interval's centre and drive interpolated lookups.
type TermSolutions struct {
	Term     GainTerm `json:"term"`
	NTimeInt int      `json:"nTimeInt"`
	NFreqInt int      `json:"nFreqInt"`
	NAnt     int      `json:"nAnt"`

	Cells []SolutionCell `json:"cells"`

	TimeCenters []float64 `json:"timeCenters"`
	FreqCenters []float64 `json:"freqCenters"`
}

// Cell returns the solution cell at global interval indices (ti, fi).
func (ts *TermSolutions) Cell(ti, fi, ant int) *SolutionCell {
	return &ts.Cells[((ti*ts.NFreqInt)+fi)*ts.NAnt+ant]
}

// Sample returns the parameter vector for an antenna at fractional
// (time sample, channel) coordinates, linearly interpolated between
// neighbouring interval centres. Singleton axes use the nearest value, as do
// coordinates outside the covered range.
func (ts *TermSolutions) Sample(ant int, t, f float64) []float64 {
	ti0, ti1, tw := bracket(ts.TimeCenters, t)
	fi0, fi1, fw := bracket(ts.FreqCenters, f)

	np := ts.Term.Kind.NumParams()
	out := make([]float64, np)

	p00 := ts.Cell(ti0, fi0, ant).Params
	p01 := ts.Cell(ti0, fi1, ant).Params
	p10 := ts.Cell(ti1, fi0, ant).Params
	p11 := ts.Cell(ti1, fi1, ant).Params

	for i := range np {
		lo := p00[i]*(1-fw) + p01[i]*fw
		hi := p10[i]*(1-fw) + p11[i]*fw
		out[i] = lo*(1-tw) + hi*tw
	}

	return out
}

// bracket locates the neighbouring centres around x and the interpolation
// weight toward the upper neighbour. Clamps outside the covered range.
func bracket(centers []float64, x float64) (lo, hi int, w float64) {
	n := len(centers)
	if n == 1 || x <= centers[0] {
		return 0, 0, 0
	}
	if x >= centers[n-1] {
		return n - 1, n - 1, 0
	}
	for i := 1; i < n; i++ {
		if x < centers[i] {
			span := centers[i] - centers[i-1]

			return i - 1, i, (x - centers[i-1]) / span
		}
	}

	return n - 1, n - 1, 0
}

// SolutionTable is the finalized, globally merged solution set.
//
// The table is produced by the assembler after the join barrier and is
// immutable once exposed. Every cell carries an explicit validity flag;
// unsolved coverage is filled by the fallback policy and flagged as such,
// never left undefined.
type SolutionTable struct {
	Terms []*TermSolutions `json:"terms"`

	// Diags holds one record per planned chunk, in chunk-key order.
	Diags []ChunkDiag `json:"diags"`
}

// Term returns the named term's solutions, or nil.
func (st *SolutionTable) Term(name string) *TermSolutions {
	for _, ts := range st.Terms {
		if ts.Term.Name == name {
			return ts
		}
	}

	return nil
}

// CellCounts returns the number of cells per flag for one term, for summary
// reporting.
func (ts *TermSolutions) CellCounts() map[CellFlag]int {
	counts := make(map[CellFlag]int)
	for i := range ts.Cells {
		counts[ts.Cells[i].Flag]++
	}

	return counts
}
