package distrib

import (
	"time"

	"github.com/JSKenyon/quartical/internal/logger"
	"github.com/JSKenyon/quartical/metrics"
	"github.com/JSKenyon/quartical/types"
)

// Default configuration values.
const (
	// DefaultTaskStream is the default JetStream stream name for chunk tasks.
	DefaultTaskStream = "QUARTICAL_TASKS"

	// DefaultResultStream is the default JetStream stream name for chunk results.
	DefaultResultStream = "QUARTICAL_RESULTS"

	// DefaultSubjectPrefix is the default subject prefix for tasks and results.
	DefaultSubjectPrefix = "quartical"

	// DefaultAckWait is the default redelivery window for an in-progress task.
	// Must comfortably exceed the longest expected chunk solve.
	DefaultAckWait = 2 * time.Minute

	// DefaultMaxDeliver is the default number of delivery attempts per task.
	DefaultMaxDeliver = 3

	// DefaultFetchTimeout is the default pull-iterator expiry.
	DefaultFetchTimeout = 5 * time.Second

	// DefaultRetryBackoff is the default base backoff for iterator recreation.
	DefaultRetryBackoff = 250 * time.Millisecond

	// DefaultVirtualNodes is the default number of hash-ring virtual nodes
	// per worker.
	DefaultVirtualNodes = 100
)

// Config holds the shared settings for coordinators and workers.
//
// The zero value is usable: all fields fall back to defaults. Coordinator and
// workers of one run must share the same stream names, subject prefix and
// ring settings or tasks will not reach their workers.
type Config struct {
	// TaskStream is the JetStream work-queue stream holding chunk tasks.
	TaskStream string `yaml:"taskStream"`

	// ResultStream is the JetStream work-queue stream holding chunk results.
	ResultStream string `yaml:"resultStream"`

	// SubjectPrefix prefixes all task and result subjects.
	SubjectPrefix string `yaml:"subjectPrefix"`

	// AckWait is the redelivery window for an unacknowledged task.
	AckWait time.Duration `yaml:"ackWait"`

	// MaxDeliver caps delivery attempts per task.
	MaxDeliver int `yaml:"maxDeliver"`

	// FetchTimeout is the pull-iterator expiry for worker consumers.
	FetchTimeout time.Duration `yaml:"fetchTimeout"`

	// RetryBackoff is the base backoff when a pull iterator must be recreated.
	RetryBackoff time.Duration `yaml:"retryBackoff"`

	// VirtualNodes is the number of hash-ring virtual nodes per worker.
	VirtualNodes int `yaml:"virtualNodes"`

	// RingSeed seeds the placement hash. Coordinator and workers only need to
	// agree on it when workers pre-compute their own assignments.
	RingSeed uint64 `yaml:"ringSeed"`

	// Balanced enables size-aware placement: chunks spill off a worker whose
	// assigned element count runs ahead of the average. A spilled chunk lands
	// on a worker without its band's lineage and cold-starts there; prefer
	// plain placement when warm starts matter more than an even load.
	Balanced bool `yaml:"balanced"`

	// Logger receives structured logs. Defaults to a no-op logger.
	Logger types.Logger `yaml:"-"`

	// Metrics receives operational metrics. Defaults to a no-op collector.
	Metrics types.MetricsCollector `yaml:"-"`
}

// applyDefaults fills zero-valued fields in place.
func (c *Config) applyDefaults() {
	if c.TaskStream == "" {
		c.TaskStream = DefaultTaskStream
	}
	if c.ResultStream == "" {
		c.ResultStream = DefaultResultStream
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.AckWait == 0 {
		c.AckWait = DefaultAckWait
	}
	if c.MaxDeliver == 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.VirtualNodes == 0 {
		c.VirtualNodes = DefaultVirtualNodes
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNop()
	}
}

// taskSubject returns the subject for one chunk task assigned to a worker.
func (c *Config) taskSubject(workerID, chunkKey string) string {
	return c.SubjectPrefix + ".tasks." + workerID + "." + chunkKey
}

// taskFilter returns the subject filter matching every task of a worker.
func (c *Config) taskFilter(workerID string) string {
	return c.SubjectPrefix + ".tasks." + workerID + ".>"
}

// resultSubject returns the subject for one chunk result.
func (c *Config) resultSubject(chunkKey string) string {
	return c.SubjectPrefix + ".results." + chunkKey
}

// taskSubjects returns the wildcard covering all task subjects.
func (c *Config) taskSubjects() string {
	return c.SubjectPrefix + ".tasks.>"
}

// resultSubjects returns the wildcard covering all result subjects.
func (c *Config) resultSubjects() string {
	return c.SubjectPrefix + ".results.>"
}
