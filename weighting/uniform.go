package weighting

// Uniform applies no robust down-weighting: every unflagged datum keeps its
// full noise weight.
type Uniform struct{}

var _ Kernel = Uniform{}

// Name returns "uniform".
func (Uniform) Name() string { return "uniform" }

// Factor always returns 1.
func (Uniform) Factor(_ float64) float64 { return 1 }
