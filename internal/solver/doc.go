// Package solver runs the Gauss-Newton/StefCal-style update loop for one
// chunk across a chain of gain terms.
//
// Each outer iteration sweeps the chain in order, taking one damped
// block-coordinate step per term (other terms held fixed), then recomputes
// the global weighted residual norm. The loop terminates on convergence,
// iteration exhaustion, divergence or cancellation; the terminal state is
// recorded in the chunk result rather than raised as an error, so sibling
// chunks are never affected.
//
// All parameter-space linear algebra is real-valued: complex quantities are
// reduced to real normal equations (JHWJ, JHWr) per antenna per solution
// interval and solved with gonum.
package solver
