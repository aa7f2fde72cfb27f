package quartical

import (
	"github.com/JSKenyon/quartical/types"
	"github.com/JSKenyon/quartical/weighting"
)

// engineOptions holds the optional collaborators configured at construction.
type engineOptions struct {
	logger  types.Logger
	metrics types.MetricsCollector
	kernel  weighting.Kernel
}

// Option is a functional option for configuring the engine.
type Option func(*engineOptions)

// WithLogger sets a custom logger for the engine.
//
// Parameters:
//   - logger: Logger implementation to use
//
// Example:
//
//	eng, err := quartical.New(&cfg, src,
//	    quartical.WithLogger(logging.NewSlogDefault()))
func WithLogger(logger types.Logger) Option {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets a custom metrics collector for the engine.
//
// Parameters:
//   - collector: MetricsCollector implementation to use
//
// Example:
//
//	// nil registerer and empty namespace pick the package defaults.
//	collector := metrics.NewPrometheus(nil, "")
//	eng, err := quartical.New(&cfg, src, quartical.WithMetrics(collector))
func WithMetrics(collector types.MetricsCollector) Option {
	return func(o *engineOptions) {
		if collector != nil {
			o.metrics = collector
		}
	}
}

// WithKernel overrides the robust weighting kernel selected by the config.
//
// Use this to inject a kernel with non-default tuning constants; the config's
// RobustKernel name is ignored when set.
//
// Parameters:
//   - kernel: Kernel implementation to use
func WithKernel(kernel weighting.Kernel) Option {
	return func(o *engineOptions) {
		if kernel != nil {
			o.kernel = kernel
		}
	}
}
