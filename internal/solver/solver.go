package solver

import (
	"context"
	"math"
	"time"

	"github.com/JSKenyon/quartical/term"
	"github.com/JSKenyon/quartical/types"
	"github.com/JSKenyon/quartical/weighting"
)

// Options carries the convergence-control settings for chunk solves.
type Options struct {
	// MaxIter caps outer iterations (sweeps of the full chain).
	MaxIter int

	// RelTol is the relative residual-norm decrease below which an
	// iteration counts toward convergence (two consecutive required).
	RelTol float64

	// AbsTol terminates immediately once the weighted residual norm falls
	// below it.
	AbsTol float64

	// DivergeStreak is the number of consecutive residual-norm increases
	// that trigger the Diverged state.
	DivergeStreak int

	// StepDamping scales each Gauss-Newton update before application.
	StepDamping float64

	// MaxStep clamps the per-cell update norm.
	MaxStep float64

	// UpdateTol is the per-cell update norm below which a cell counts as
	// converged in the converged-fraction diagnostic.
	UpdateTol float64

	// ChunkTimeout bounds the wall-clock time of one chunk solve. Zero
	// disables the bound. On expiry the solve finalizes as MaxIterReached
	// with the best state so far.
	ChunkTimeout time.Duration
}

// Solver runs per-chunk solves for a fixed gain chain. The solver itself is
// stateless across chunks and safe for concurrent Solve calls; all mutable
// state lives in the per-call chunk state.
type Solver struct {
	defs    []types.GainTerm
	models  []term.Model
	kernel  weighting.Kernel
	opts    Options
	logger  types.Logger
	metrics types.MetricsCollector
}

// New creates a chunk solver for the given chain.
//
// Parameters:
//   - defs: Ordered gain-term definitions
//   - models: Models matching defs index-for-index
//   - kernel: Robust weighting kernel
//   - opts: Convergence-control options
//   - logger: Structured logger
//   - metrics: Metrics collector
func New(defs []types.GainTerm, models []term.Model, kernel weighting.Kernel, opts Options,
	logger types.Logger, metrics types.MetricsCollector,
) *Solver {
	return &Solver{
		defs:    defs,
		models:  models,
		kernel:  kernel,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// termState is the mutable per-chunk, per-term solver state: the parameter
// array plus the iteration-scoped accumulation buffers. Buffers are acquired
// once per solve and reused across iterations, never retained beyond it.
type termState struct {
	def   types.GainTerm
	model term.Model
	np    int

	nTI, nFI, nAnt int

	// tMap/fMap map chunk-local samples/channels to local interval indices.
	tMap []int
	fMap []int

	params   []float64
	snapshot []float64

	gains  []types.Jones // per (interval cell, antenna)
	derivs []types.Jones // per (cell, antenna, param); active term only

	jhj   []float64
	jhr   []float64
	upd   []float64
	jac   []types.Jones
	cellW []float64
	delta []float64

	iterations int
	maxIter    int
	done       bool
}

func (ts *termState) cells() int {
	return ts.nTI * ts.nFI * ts.nAnt
}

// cellIndex returns the (interval cell, antenna) index for a datum position.
func (ts *termState) cellIndex(tLoc, ch, ant int) int {
	return ((ts.tMap[tLoc]*ts.nFI)+ts.fMap[ch])*ts.nAnt + ant
}

func (ts *termState) refreshGains() {
	for ca := range ts.cells() {
		ts.gains[ca] = ts.model.Jones(ts.params[ca*ts.np : (ca+1)*ts.np])
	}
}

func (ts *termState) refreshDerivs() {
	for ca := range ts.cells() {
		ts.model.Derivs(ts.params[ca*ts.np:(ca+1)*ts.np], ts.derivs[ca*ts.np:(ca+1)*ts.np])
	}
}

func (ts *termState) takeSnapshot() {
	copy(ts.snapshot, ts.params)
}

func (ts *termState) revert() {
	copy(ts.params, ts.snapshot)
	ts.refreshGains()
}

func (ts *termState) finite() bool {
	for _, v := range ts.params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// Solve runs the iterative solve for one chunk.
//
// The prior result, when present, warm-starts each term from the final time
// interval of the preceding chunk in the same frequency band. Cancellation is
// cooperative and checked at the top of each iteration; a cancelled chunk
// returns the context error without affecting sibling chunks.
//
// Parameters:
//   - ctx: Context for cooperative cancellation
//   - data: Validated chunk data (consumed by exactly this call)
//   - prior: Result of the warm-start predecessor chunk, or nil
//
// Returns:
//   - *types.ChunkResult: Finalized parameters, flags and diagnostics
//   - error: Context error on cancellation; data-shape errors surface here
func (s *Solver) Solve(ctx context.Context, data *types.ChunkData, prior *types.ChunkResult) (*types.ChunkResult, error) {
	start := time.Now()

	if err := data.Validate(); err != nil {
		return nil, err
	}

	states := s.initStates(data, prior)
	fp := newPropagator(data, s.kernel)

	if fp.unflagged == 0 {
		// Entirely flagged chunk: no solver invocation, cells fall back
		// during assembly.
		s.logger.Debug("chunk entirely flagged, skipping solve", "chunk", data.Spec.Key())
		s.metrics.RecordChunkSolve(string(types.OutcomeSkipped), time.Since(start).Seconds())

		return s.finalize(data, states, types.StateDiverged, types.OutcomeSkipped, 0, 0), nil
	}

	residBuf := make([]float64, len(data.Flags))

	// Baseline residual before the first update sweep.
	fp.computeWeights(data, 0)
	prevNorm, finiteNorm := s.residualPass(data, states, fp, residBuf)
	if !finiteNorm {
		s.metrics.RecordNonFinite()
		s.metrics.RecordChunkSolve(string(types.OutcomeDiverged), time.Since(start).Seconds())

		return s.finalize(data, states, types.StateDiverged, types.OutcomeDiverged, 0, prevNorm), nil
	}
	fp.observeResiduals(residBuf)

	state := types.StateIterating
	norm := prevNorm
	smallStreak, riseStreak := 0, 0
	iters := 0

	for iter := 0; iter < s.opts.MaxIter; iter++ {
		// Cooperative cancellation between iterations.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if s.opts.ChunkTimeout > 0 && time.Since(start) > s.opts.ChunkTimeout {
			s.logger.Warn("chunk solve timed out, keeping best state",
				"chunk", data.Spec.Key(), "iterations", iters)
			state = types.StateMaxIterReached

			break
		}

		fp.computeWeights(data, iter)

		for _, ts := range states {
			ts.takeSnapshot()
		}

		anyUpdated, nonFinite := s.sweep(data, states, fp)
		iters++

		if nonFinite {
			// Never propagate a non-finite value downstream. The offending
			// term was already reverted during the sweep; drop the other
			// terms' half-sweep updates too so the chunk yields the full
			// iteration-start parameters.
			for _, ts := range states {
				ts.revert()
			}
			s.metrics.RecordNonFinite()
			state = types.StateDiverged

			break
		}

		norm, finiteNorm = s.residualPass(data, states, fp, residBuf)
		if !finiteNorm {
			for _, ts := range states {
				ts.revert()
			}
			s.metrics.RecordNonFinite()
			state = types.StateDiverged
			norm = prevNorm

			break
		}
		fp.observeResiduals(residBuf)

		if !anyUpdated {
			// Every antenna system was empty or rank deficient; there is no
			// information left to iterate on.
			if allDone(states) {
				state = types.StateMaxIterReached
			} else {
				state = types.StateDiverged
			}

			break
		}

		if norm <= s.opts.AbsTol {
			state = types.StateConverged

			break
		}

		if norm > prevNorm {
			riseStreak++
			smallStreak = 0
		} else {
			riseStreak = 0
			rel := 0.0
			if prevNorm > 0 {
				rel = (prevNorm - norm) / prevNorm
			}
			if rel < s.opts.RelTol {
				smallStreak++
			} else {
				smallStreak = 0
			}
		}

		if smallStreak >= 2 {
			state = types.StateConverged

			break
		}
		if riseStreak >= s.opts.DivergeStreak {
			// Yield the prior-iteration parameters: the last state before
			// the terminal increase.
			for _, ts := range states {
				ts.revert()
			}
			state = types.StateDiverged
			norm = prevNorm

			break
		}

		prevNorm = norm
	}

	if state == types.StateIterating {
		state = types.StateMaxIterReached
	}

	outcome := outcomeFromState(state)
	for _, ts := range states {
		s.metrics.RecordIterations(ts.def.Name, ts.iterations)
	}
	s.metrics.RecordFinalResidual(norm)
	s.metrics.RecordChunkSolve(string(outcome), time.Since(start).Seconds())
	s.logger.Debug("chunk solve finalized",
		"chunk", data.Spec.Key(), "outcome", outcome, "iterations", iters, "residual", norm)

	return s.finalize(data, states, state, outcome, iters, norm), nil
}

// initStates builds per-term solver state, warm-starting from the prior
// chunk's final time interval where available and falling back to the
// identity gain otherwise.
func (s *Solver) initStates(data *types.ChunkData, prior *types.ChunkResult) []*termState {
	spec := data.Spec
	states := make([]*termState, len(s.defs))

	for i, def := range s.defs {
		np := s.models[i].NumParams()
		ts := &termState{
			def:   def,
			model: s.models[i],
			np:    np,
			nTI:   def.TimeIntervals(spec.TimeCount),
			nFI:   def.FreqIntervals(spec.FreqCount),
			nAnt:  spec.NAnt,
		}

		ts.tMap = make([]int, spec.TimeCount)
		for t := range ts.tMap {
			ts.tMap[t] = t / def.TimeInterval
		}
		ts.fMap = make([]int, spec.FreqCount)
		for f := range ts.fMap {
			ts.fMap[f] = f / def.FreqInterval
		}

		cells := ts.cells()
		ts.params = make([]float64, cells*np)
		ts.snapshot = make([]float64, cells*np)
		ts.gains = make([]types.Jones, cells)
		ts.derivs = make([]types.Jones, cells*np)
		ts.jhj = make([]float64, cells*np*np)
		ts.jhr = make([]float64, cells*np)
		ts.upd = make([]float64, np)
		ts.jac = make([]types.Jones, np)
		ts.cellW = make([]float64, cells)
		ts.delta = make([]float64, cells)

		ts.maxIter = def.MaxIter
		if ts.maxIter <= 0 {
			ts.maxIter = s.opts.MaxIter
		}

		var warm *types.TermResult
		if prior != nil {
			if pt := prior.Term(def.Name); pt != nil &&
				pt.NFreqInt == ts.nFI && pt.NAnt == ts.nAnt && pt.NParams == np {
				warm = pt
			}
		}

		for ti := range ts.nTI {
			for fi := range ts.nFI {
				for ant := range ts.nAnt {
					cell := ts.cellIndex(ti*def.TimeInterval, fi*def.FreqInterval, ant)
					dst := ts.params[cell*np : (cell+1)*np]
					if warm != nil {
						flag := warm.FlagAt(warm.NTimeInt-1, fi, ant)
						if flag == types.CellSolved || flag == types.CellNonConverged {
							copy(dst, warm.ParamsAt(warm.NTimeInt-1, fi, ant))

							continue
						}
					}
					ts.model.SetIdentity(dst)
				}
			}
		}

		ts.refreshGains()
		states[i] = ts
	}

	return states
}

// sweep takes one damped Gauss-Newton step per active term, in chain order.
// Returns whether any cell received an update and whether a non-finite
// parameter state was detected (and reverted).
func (s *Solver) sweep(data *types.ChunkData, states []*termState, fp *propagator) (anyUpdated, nonFinite bool) {
	for k, ts := range states {
		if ts.done {
			continue
		}

		s.accumulate(data, states, k, fp)

		updated := s.applyUpdates(ts)
		if !ts.finite() {
			ts.revert()

			return anyUpdated, true
		}
		if updated {
			anyUpdated = true
		}

		ts.iterations++
		if ts.iterations >= ts.maxIter {
			ts.done = true
		}

		ts.refreshGains()
	}

	return anyUpdated, false
}

// accumulate builds the weighted normal equations (JHWJ, JHWr) for the active
// term, holding all other terms fixed. Every unflagged datum contributes to
// the systems of both of its antennas.
func (s *Solver) accumulate(data *types.ChunkData, states []*termState, active int, fp *propagator) {
	ts := states[active]
	ts.refreshDerivs()

	for i := range ts.jhj {
		ts.jhj[i] = 0
	}
	for i := range ts.jhr {
		ts.jhr[i] = 0
	}
	for i := range ts.cellW {
		ts.cellW[i] = 0
	}

	spec := data.Spec
	nBl := len(data.Ant1)
	nTerms := len(states)

	gp := make([]types.Jones, nTerms)
	gq := make([]types.Jones, nTerms)

	for row := range data.Rows() {
		tLoc := row / nBl
		bl := row % nBl
		p, q := data.Ant1[bl], data.Ant2[bl]

		for ch := range spec.FreqCount {
			idx := data.WeightIndex(row, ch)
			w := fp.weights[idx]
			if w <= 0 {
				continue
			}

			base := data.DatumIndex(row, ch)
			vis := types.DatumJones(data.Vis[base:base+spec.NCorr], spec.NCorr)
			model := types.DatumJones(data.Model[base:base+spec.NCorr], spec.NCorr)

			for i, st := range states {
				gp[i] = st.gains[st.cellIndex(tLoc, ch, p)]
				gq[i] = st.gains[st.cellIndex(tLoc, ch, q)]
			}

			// Left/right composition around the active term (order matters:
			// 2x2 terms need not commute).
			left := types.JonesIdentity()
			for i := range active {
				left = left.Mul(gp[i])
			}
			right := types.JonesIdentity()
			for i := active + 1; i < nTerms; i++ {
				right = right.Mul(gp[i])
			}
			qAll := types.JonesIdentity()
			pAll := types.JonesIdentity()
			for i := range nTerms {
				pAll = pAll.Mul(gp[i])
				qAll = qAll.Mul(gq[i])
			}

			// Antenna p: model = left * G_p * (right * M * qAll^H).
			c := right.Mul(model).MulH(qAll)
			resid := vis.Sub(left.Mul(gp[active]).Mul(c))
			caP := ts.cellIndex(tLoc, ch, p)
			s.accumulateAntenna(ts, caP, left, c, resid, w)

			// Antenna q: the hermitian-transposed baseline, same machinery.
			leftQ := types.JonesIdentity()
			for i := range active {
				leftQ = leftQ.Mul(gq[i])
			}
			rightQ := types.JonesIdentity()
			for i := active + 1; i < nTerms; i++ {
				rightQ = rightQ.Mul(gq[i])
			}
			cq := rightQ.Mul(model.H()).MulH(pAll)
			caQ := ts.cellIndex(tLoc, ch, q)
			s.accumulateAntenna(ts, caQ, leftQ, cq, resid.H(), w)
		}
	}
}

// accumulateAntenna folds one datum into the normal equations of one
// (antenna, interval) cell. j_u = left * dG/dp_u * c is the model derivative;
// treating the complex residual as stacked real observations gives
// JHJ[u][v] += w*Re(<j_u, j_v>) and JHr[u] += w*Re(<j_u, r>).
func (s *Solver) accumulateAntenna(ts *termState, ca int, left, c, resid types.Jones, w float64) {
	np := ts.np
	jac := ts.jac
	for u := range np {
		jac[u] = left.Mul(ts.derivs[ca*np+u]).Mul(c)
	}

	jhj := ts.jhj[ca*np*np : (ca+1)*np*np]
	jhr := ts.jhr[ca*np : (ca+1)*np]
	for u := range np {
		jhr[u] += w * real(jac[u].Dot(resid))
		for v := u; v < np; v++ {
			e := w * real(jac[u].Dot(jac[v]))
			jhj[u*np+v] += e
			if v != u {
				jhj[v*np+u] += e
			}
		}
	}
	ts.cellW[ca] += w
}

// applyUpdates solves each cell's normal equations and applies the damped,
// clamped update. Cells with no accumulated weight or a singular system are
// skipped. Returns whether any cell was updated.
func (s *Solver) applyUpdates(ts *termState) bool {
	np := ts.np
	updated := false

	for ca := range ts.cells() {
		ts.delta[ca] = 0
		if ts.cellW[ca] <= 0 {
			continue
		}

		jhj := ts.jhj[ca*np*np : (ca+1)*np*np]
		jhr := ts.jhr[ca*np : (ca+1)*np]
		if err := solveCell(jhj, jhr, np, ts.upd); err != nil {
			continue
		}

		var norm2 float64
		for u := range np {
			ts.upd[u] *= s.opts.StepDamping
			norm2 += ts.upd[u] * ts.upd[u]
		}
		if s.opts.MaxStep > 0 && norm2 > s.opts.MaxStep*s.opts.MaxStep {
			scale := s.opts.MaxStep / math.Sqrt(norm2)
			for u := range np {
				ts.upd[u] *= scale
			}
			norm2 = s.opts.MaxStep * s.opts.MaxStep
		}

		dst := ts.params[ca*np : (ca+1)*np]
		for u := range np {
			dst[u] += ts.upd[u]
		}
		ts.delta[ca] = math.Sqrt(norm2)
		updated = true
	}

	return updated
}

// residualPass computes the full-chain weighted residual norm and records
// per-datum residual magnitudes for the next iteration's robust weighting.
func (s *Solver) residualPass(data *types.ChunkData, states []*termState, fp *propagator, residBuf []float64) (float64, bool) {
	spec := data.Spec
	nBl := len(data.Ant1)

	var sum, wSum float64
	finite := true

	for row := range data.Rows() {
		tLoc := row / nBl
		bl := row % nBl
		p, q := data.Ant1[bl], data.Ant2[bl]

		for ch := range spec.FreqCount {
			idx := data.WeightIndex(row, ch)
			if fp.flags[idx] {
				residBuf[idx] = 0

				continue
			}

			base := data.DatumIndex(row, ch)
			vis := types.DatumJones(data.Vis[base:base+spec.NCorr], spec.NCorr)
			model := types.DatumJones(data.Model[base:base+spec.NCorr], spec.NCorr)

			gP := types.JonesIdentity()
			gQ := types.JonesIdentity()
			for _, st := range states {
				gP = gP.Mul(st.gains[st.cellIndex(tLoc, ch, p)])
				gQ = gQ.Mul(st.gains[st.cellIndex(tLoc, ch, q)])
			}

			resid := vis.Sub(gP.Mul(model).MulH(gQ))
			if !resid.IsFinite() {
				finite = false
				residBuf[idx] = 0

				continue
			}

			r2 := resid.Norm2()
			residBuf[idx] = math.Sqrt(r2)
			if w := fp.weights[idx]; w > 0 {
				sum += w * r2
				wSum += w
			}
		}
	}

	if wSum == 0 {
		return 0, finite
	}

	return math.Sqrt(sum / wSum), finite
}

// finalize extracts the chunk result and applies the terminal flag policy:
// cells whose antenna accumulated no effective weight over a full solution
// interval are marked unsolved and reset to the identity gain rather than
// left undefined.
func (s *Solver) finalize(data *types.ChunkData, states []*termState,
	state types.SolveState, outcome types.Outcome, iters int, norm float64,
) *types.ChunkResult {
	result := &types.ChunkResult{
		Spec:         data.Spec,
		Terms:        make([]types.TermResult, len(states)),
		ResidualNorm: norm,
	}

	solvedFlag := types.CellSolved
	switch state {
	case types.StateMaxIterReached:
		solvedFlag = types.CellNonConverged
	case types.StateDiverged:
		solvedFlag = types.CellDiverged
	}

	for i, ts := range states {
		tr := types.TermResult{
			Name:          ts.def.Name,
			NTimeInt:      ts.nTI,
			NFreqInt:      ts.nFI,
			NAnt:          ts.nAnt,
			NParams:       ts.np,
			Params:        make([]float64, len(ts.params)),
			Flags:         make([]types.CellFlag, ts.cells()),
			Outcome:       outcome,
			Iterations:    ts.iterations,
			FinalResidual: norm,
		}
		copy(tr.Params, ts.params)

		withWeight, converged := 0, 0
		for ca := range ts.cells() {
			if ts.cellW[ca] <= 0 {
				tr.Flags[ca] = types.CellUnsolved
				ts.model.SetIdentity(tr.Params[ca*ts.np : (ca+1)*ts.np])

				continue
			}
			tr.Flags[ca] = solvedFlag
			withWeight++
			if ts.delta[ca] < s.opts.UpdateTol {
				converged++
			}
		}
		if withWeight > 0 {
			tr.ConvergedFraction = float64(converged) / float64(withWeight)
		}

		result.Terms[i] = tr
	}

	return result
}

func allDone(states []*termState) bool {
	for _, ts := range states {
		if !ts.done {
			return false
		}
	}

	return true
}

func outcomeFromState(state types.SolveState) types.Outcome {
	switch state {
	case types.StateConverged:
		return types.OutcomeConverged
	case types.StateDiverged:
		return types.OutcomeDiverged
	default:
		return types.OutcomeMaxIter
	}
}
