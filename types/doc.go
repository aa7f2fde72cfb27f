// Package types contains the shared types and interfaces used across the
// QuartiCal solver engine.
//
// Keeping these definitions in a leaf package allows internal packages to
// depend on them without importing the root quartical package, which would
// create import cycles. The root package re-exports the public subset via
// type aliases.
package types
