// Package term implements the gain-term parameterisations of the solver
// chain.
//
// Each model maps a fixed-size real parameter vector to a 2x2 Jones matrix
// and exposes the partial derivatives of that matrix with respect to its
// parameters. The solver composes models multiplicatively in chain order and
// solves each term block-coordinate style, holding the others fixed.
//
// The set of parameterisations is closed: phase-only, diagonal
// amplitude-plus-phase, and full complex 2x2. New parameterisations are added
// as new kinds, not by open-ended subclassing.
package term
