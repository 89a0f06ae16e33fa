// Package config centralises the compile-time configuration tree for a
// reactive kernel deployment: priority count, nesting depth, queue
// capacities, event pool sizing, and the ambient observability toggles.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the runtime environment the kernel is deployed into.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// TelemetrySettings configures the optional OpenTelemetry export backend for
// observation-hook records. Leaving OTLPEndpoint empty keeps the exporter a
// no-op.
type TelemetrySettings struct {
	OTLPEndpoint   string        `yaml:"otlpEndpoint"`
	ServiceName    string        `yaml:"serviceName"`
	ExportInterval time.Duration `yaml:"exportInterval"`
}

// SchedulerSettings bounds the active-object scheduler and its event queues.
type SchedulerSettings struct {
	MaxPriorities   int `yaml:"maxPriorities"`
	QueueCapacity   int `yaml:"queueCapacity"`
	MaxNestingDepth int `yaml:"maxNestingDepth"`
}

// PoolSettings sizes the fixed-block event pools managed by the event pool
// manager. BlockSizes must be ascending; the manager walks them in order when
// satisfying a dynamic allocation request.
type PoolSettings struct {
	BlockSizes []int `yaml:"blockSizes"`
	Capacity   []int `yaml:"capacity"`
}

// Settings contains the kernel configuration tree loaded from defaults and
// overrides.
type Settings struct {
	Environment Environment       `yaml:"environment"`
	Scheduler   SchedulerSettings `yaml:"scheduler"`
	Pool        PoolSettings      `yaml:"pool"`
	Telemetry   TelemetrySettings `yaml:"telemetry"`
	MetricsAddr string            `yaml:"metricsAddr"`
}

// Default returns the default kernel configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Scheduler: SchedulerSettings{
			MaxPriorities:   64,
			QueueCapacity:   32,
			MaxNestingDepth: 8,
		},
		Pool: PoolSettings{
			BlockSizes: []int{32, 64, 128},
			Capacity:   []int{64, 32, 16},
		},
		Telemetry: TelemetrySettings{
			OTLPEndpoint:   "",
			ServiceName:    "rkh",
			ExportInterval: 10 * time.Second,
		},
		MetricsAddr: ":9090",
	}
}

// FromEnv loads configuration values from environment variables, overriding
// defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("RKH_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("RKH_MAX_PRIORITIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scheduler.MaxPriorities = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RKH_QUEUE_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scheduler.QueueCapacity = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RKH_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("RKH_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg
}

// LoadFile reads a YAML configuration document from path and overlays it
// onto Default, leaving fields the document omits at their default values.
func LoadFile(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithMaxPriorities overrides Scheduler.MaxPriorities. The ready set does not
// read this value; its range is fixed at 0..rkhset.MaxPriority.
func WithMaxPriorities(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.Scheduler.MaxPriorities = n
		}
	}
}

// WithQueueCapacity overrides the default per-active-object event queue
// capacity.
func WithQueueCapacity(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.Scheduler.QueueCapacity = n
		}
	}
}

// WithMaxNestingDepth overrides Scheduler.MaxNestingDepth. The dispatch
// engine does not read this value; each hsm.AO carries its own MaxDepth
// (8 by default).
func WithMaxNestingDepth(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.Scheduler.MaxNestingDepth = n
		}
	}
}

// WithPools overrides the event pool block-size/capacity table.
func WithPools(blockSizes, capacity []int) Option {
	return func(s *Settings) {
		if len(blockSizes) == 0 || len(blockSizes) != len(capacity) {
			return
		}
		s.Pool = PoolSettings{
			BlockSizes: append([]int(nil), blockSizes...),
			Capacity:   append([]int(nil), capacity...),
		}
	}
}

// WithOTLPEndpoint configures the OpenTelemetry collector endpoint. An empty
// value keeps telemetry export a no-op.
func WithOTLPEndpoint(endpoint string) Option {
	return func(s *Settings) {
		s.Telemetry.OTLPEndpoint = strings.TrimSpace(endpoint)
	}
}

// WithMetricsAddr overrides the Prometheus metrics listener address.
func WithMetricsAddr(addr string) Option {
	return func(s *Settings) {
		if strings.TrimSpace(addr) != "" {
			s.MetricsAddr = addr
		}
	}
}

func (s Settings) clone() Settings {
	clone := s
	clone.Pool = PoolSettings{
		BlockSizes: append([]int(nil), s.Pool.BlockSizes...),
		Capacity:   append([]int(nil), s.Pool.Capacity...),
	}
	return clone
}
