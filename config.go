package quartical

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JSKenyon/quartical/types"
)

// Default configuration values.
const (
	// DefaultMaxChunkElements is the default visibility-element budget per chunk.
	DefaultMaxChunkElements = 4 << 20

	// DefaultMaxIter is the default outer-iteration cap per chunk.
	DefaultMaxIter = 30

	// DefaultRelTol is the default relative residual-decrease tolerance.
	DefaultRelTol = 1e-6

	// DefaultAbsTol is the default absolute residual-norm tolerance.
	DefaultAbsTol = 1e-10

	// DefaultDivergeStreak is the default number of consecutive residual
	// increases that flags divergence.
	DefaultDivergeStreak = 3

	// DefaultStepDamping is the default Gauss-Newton step scale.
	DefaultStepDamping = 0.5

	// DefaultMaxStep is the default per-cell update-norm clamp.
	DefaultMaxStep = 5.0

	// DefaultUpdateTol is the default per-cell convergence threshold.
	DefaultUpdateTol = 1e-6

	// DefaultRobustKernel is the default robust weighting kernel.
	DefaultRobustKernel = "uniform"
)

// SolverConfig carries the convergence-control settings shared by every
// chunk solve.
type SolverConfig struct {
	// MaxIter caps outer iterations (full sweeps of the chain) per chunk.
	// Individual terms may lower their own cap via GainTerm.MaxIter.
	MaxIter int `yaml:"maxIter"`

	// RelTol is the relative residual-norm decrease below which an iteration
	// counts toward convergence. Two consecutive small decreases converge the
	// chunk.
	RelTol float64 `yaml:"relTol"`

	// AbsTol terminates a solve immediately once the weighted residual norm
	// falls below it.
	AbsTol float64 `yaml:"absTol"`

	// DivergeStreak is the number of consecutive residual-norm increases that
	// mark the chunk diverged.
	DivergeStreak int `yaml:"divergeStreak"`

	// StepDamping scales each Gauss-Newton update before application.
	// Must lie in (0, 1].
	StepDamping float64 `yaml:"stepDamping"`

	// MaxStep clamps the per-cell update norm.
	MaxStep float64 `yaml:"maxStep"`

	// UpdateTol is the per-cell update norm below which a cell counts toward
	// the converged-fraction diagnostic.
	UpdateTol float64 `yaml:"updateTol"`

	// ChunkTimeout bounds the wall-clock time of a single chunk solve.
	// Zero disables the bound. On expiry the chunk finalizes as
	// max_iter_reached with its best state so far.
	ChunkTimeout time.Duration `yaml:"chunkTimeout"`

	// RobustKernel names the iterative-reweighting kernel: "uniform",
	// "huber" or "tukey".
	RobustKernel string `yaml:"robustKernel"`
}

// Config holds the complete engine configuration.
//
// Use DefaultConfig() to get a configuration with sensible defaults, then set
// the gain chain before constructing the engine:
//
//	cfg := quartical.DefaultConfig()
//	cfg.Chain = []quartical.GainTerm{
//	    {Name: "G", Kind: quartical.TermPhase, TimeInterval: 8, FreqInterval: 1},
//	}
type Config struct {
	// Chain is the ordered gain-term chain. Terms are applied multiplicatively
	// in slice order. Must be non-empty with unique names.
	Chain []types.GainTerm `yaml:"chain"`

	// MaxChunkElements bounds the visibility elements per planned chunk.
	MaxChunkElements int64 `yaml:"maxChunkElements"`

	// Parallelism is the maximum number of concurrent chunk solves.
	// Defaults to runtime.GOMAXPROCS(0).
	Parallelism int `yaml:"parallelism"`

	// DisableWarmStart turns off warm-start seeding between time-successive
	// chunks. With warm starts disabled every chunk solves independently and
	// the chunk graph is fully parallel.
	DisableWarmStart bool `yaml:"disableWarmStart"`

	// Solver holds the convergence-control settings.
	Solver SolverConfig `yaml:"solver"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// The returned config has an empty chain; callers must populate Chain before
// use.
//
// Returns:
//   - Config: Configuration populated with default values
func DefaultConfig() Config {
	return Config{
		MaxChunkElements: DefaultMaxChunkElements,
		Parallelism:      runtime.GOMAXPROCS(0),
		Solver: SolverConfig{
			MaxIter:       DefaultMaxIter,
			RelTol:        DefaultRelTol,
			AbsTol:        DefaultAbsTol,
			DivergeStreak: DefaultDivergeStreak,
			StepDamping:   DefaultStepDamping,
			MaxStep:       DefaultMaxStep,
			UpdateTol:     DefaultUpdateTol,
			RobustKernel:  DefaultRobustKernel,
		},
	}
}

// SetDefaults fills zero-valued fields with their defaults.
//
// Explicitly set fields are left untouched, so a partially specified config
// (e.g. loaded from YAML) picks up defaults only where it was silent.
func (c *Config) SetDefaults() {
	if c.MaxChunkElements == 0 {
		c.MaxChunkElements = DefaultMaxChunkElements
	}
	if c.Parallelism == 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	if c.Solver.MaxIter == 0 {
		c.Solver.MaxIter = DefaultMaxIter
	}
	if c.Solver.RelTol == 0 {
		c.Solver.RelTol = DefaultRelTol
	}
	if c.Solver.AbsTol == 0 {
		c.Solver.AbsTol = DefaultAbsTol
	}
	if c.Solver.DivergeStreak == 0 {
		c.Solver.DivergeStreak = DefaultDivergeStreak
	}
	if c.Solver.StepDamping == 0 {
		c.Solver.StepDamping = DefaultStepDamping
	}
	if c.Solver.MaxStep == 0 {
		c.Solver.MaxStep = DefaultMaxStep
	}
	if c.Solver.UpdateTol == 0 {
		c.Solver.UpdateTol = DefaultUpdateTol
	}
	if c.Solver.RobustKernel == "" {
		c.Solver.RobustKernel = DefaultRobustKernel
	}
}

// Validate checks the configuration for correctness.
//
// Returns:
//   - error: Wrapped ErrInvalidConfig/ErrEmptyChain/ErrIntervalWidth
//     describing the first problem found, nil if the config is valid
func (c *Config) Validate() error {
	if len(c.Chain) == 0 {
		return fmt.Errorf("%w: at least one gain term is required", ErrEmptyChain)
	}

	seen := make(map[string]struct{}, len(c.Chain))
	for _, term := range c.Chain {
		if err := term.Validate(); err != nil {
			return err
		}
		if _, dup := seen[term.Name]; dup {
			return fmt.Errorf("%w: duplicate gain term name %q", ErrInvalidConfig, term.Name)
		}
		seen[term.Name] = struct{}{}
		if term.MaxIter < 0 {
			return fmt.Errorf("%w: term %q max iterations %d", ErrInvalidConfig, term.Name, term.MaxIter)
		}
	}

	if c.MaxChunkElements <= 0 {
		return fmt.Errorf("%w: max chunk elements must be positive, got %d",
			ErrInvalidConfig, c.MaxChunkElements)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("%w: parallelism must be positive, got %d",
			ErrInvalidConfig, c.Parallelism)
	}

	s := c.Solver
	if s.MaxIter <= 0 {
		return fmt.Errorf("%w: solver max iterations must be positive, got %d",
			ErrInvalidConfig, s.MaxIter)
	}
	if s.RelTol <= 0 || s.AbsTol <= 0 {
		return fmt.Errorf("%w: solver tolerances must be positive (relTol=%g, absTol=%g)",
			ErrInvalidConfig, s.RelTol, s.AbsTol)
	}
	if s.DivergeStreak <= 0 {
		return fmt.Errorf("%w: diverge streak must be positive, got %d",
			ErrInvalidConfig, s.DivergeStreak)
	}
	if s.StepDamping <= 0 || s.StepDamping > 1 {
		return fmt.Errorf("%w: step damping must be in (0, 1], got %g",
			ErrInvalidConfig, s.StepDamping)
	}
	if s.MaxStep <= 0 {
		return fmt.Errorf("%w: max step must be positive, got %g",
			ErrInvalidConfig, s.MaxStep)
	}
	if s.UpdateTol <= 0 {
		return fmt.Errorf("%w: update tolerance must be positive, got %g",
			ErrInvalidConfig, s.UpdateTol)
	}
	if s.ChunkTimeout < 0 {
		return fmt.Errorf("%w: chunk timeout must be non-negative, got %v",
			ErrInvalidConfig, s.ChunkTimeout)
	}
	if !validKernel(s.RobustKernel) {
		return fmt.Errorf("%w: unknown robust kernel %q", ErrInvalidConfig, s.RobustKernel)
	}

	return nil
}

// ValidateWithWarnings validates the configuration and additionally reports
// settings that are legal but likely unintended.
//
// Returns:
//   - []string: Human-readable warnings (possibly empty)
//   - error: Same as Validate()
func (c *Config) ValidateWithWarnings() ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var warnings []string
	if c.Solver.MaxIter > 200 {
		warnings = append(warnings, fmt.Sprintf(
			"solver.maxIter=%d is unusually high; chunks that need this many iterations rarely converge",
			c.Solver.MaxIter))
	}
	if c.Solver.StepDamping == 1 {
		warnings = append(warnings,
			"solver.stepDamping=1 disables damping; full Gauss-Newton steps can oscillate on low-SNR chunks")
	}
	if c.Solver.ChunkTimeout > 0 && c.Solver.ChunkTimeout < time.Second {
		warnings = append(warnings, fmt.Sprintf(
			"solver.chunkTimeout=%v is very short; chunks may finalize before converging", c.Solver.ChunkTimeout))
	}
	for _, term := range c.Chain {
		if term.MaxIter > c.Solver.MaxIter {
			warnings = append(warnings, fmt.Sprintf(
				"term %q maxIter=%d exceeds the global cap %d and will never be reached",
				term.Name, term.MaxIter, c.Solver.MaxIter))
		}
	}

	return warnings, nil
}

// validKernel reports whether name selects a known robust kernel. Kept in
// sync with weighting.New.
func validKernel(name string) bool {
	switch name {
	case "", "uniform", "huber", "tukey":
		return true
	default:
		return false
	}
}

// LoadConfig reads a YAML configuration file, fills defaults and validates.
//
// Parameters:
//   - path: Path to the YAML config file
//
// Returns:
//   - Config: Parsed, defaulted and validated configuration
//   - error: File, parse or validation error
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %v", ErrInvalidConfig, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// TestConfig returns a Config tuned for fast tests: a single phase term with
// tight intervals and low iteration caps.
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.Chain = []types.GainTerm{
		{Name: "G", Kind: types.TermPhase, TimeInterval: 2, FreqInterval: 2},
	}
	cfg.MaxChunkElements = 1 << 16
	cfg.Parallelism = 2
	cfg.Solver.MaxIter = 50
	cfg.Solver.RelTol = 1e-8

	return cfg
}
