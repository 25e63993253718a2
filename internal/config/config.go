package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of a single node.
type Config struct {
	// NodeName is the display name sent to the nearest peer when the action fires.
	NodeName string `yaml:"node_name"`
	// ListenAddress is where the peer link and the presentation API are served.
	ListenAddress string `yaml:"listen_addr"`
	// Peers lists the addresses browsed for other nodes.
	Peers []string `yaml:"peers"`
	// Threshold is the distance below which a peer counts as in range.
	Threshold float64 `yaml:"threshold"`
	// Hold is how long the nearest distance must stay below Threshold.
	Hold time.Duration `yaml:"hold"`
	// Tick is the debounce evaluation period.
	Tick time.Duration `yaml:"tick"`
	// SampleTTL is the maximum age of a distance sample.
	SampleTTL time.Duration `yaml:"sample_ttl"`
	// Timeout bounds dials and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// RetryInterval is the delay between dial attempts to a browsed peer.
	RetryInterval time.Duration `yaml:"retry_interval"`
	// DepartedCapacity bounds how many disconnected peers are remembered.
	DepartedCapacity int `yaml:"departed_capacity"`
	// MetricsAddress enables the Prometheus endpoint when set.
	MetricsAddress string `yaml:"metrics_addr"`
	// LogLevel is parsed with logger.ParseLogLevel.
	LogLevel string `yaml:"log_level"`
	// Ranging configures the simulated ranging collaborator.
	Ranging Ranging `yaml:"ranging"`
}

// Ranging configures the distance profile produced by the simulator.
type Ranging struct {
	// Interval is the period between distance samples.
	Interval time.Duration `yaml:"interval"`
	// StartDistance is the distance reported when a session starts.
	StartDistance float64 `yaml:"start_distance"`
	// MinDistance is the distance reached at the end of the approach.
	MinDistance float64 `yaml:"min_distance"`
	// Approach is how long the simulated devices take to close the gap.
	Approach time.Duration `yaml:"approach"`
	// Jitter is the maximum random deviation added to every sample.
	Jitter float64 `yaml:"jitter"`
}

const (
	// DefaultConfigFilename is the default filename for node settings.
	DefaultConfigFilename = "nearby-settings.yaml"

	// DefaultThreshold is the in-range distance.
	DefaultThreshold = 0.05

	// DefaultHold is the debounce hold duration.
	DefaultHold = time.Second

	// DefaultTick is the debounce evaluation period.
	DefaultTick = 200 * time.Millisecond

	// DefaultSampleTTL is the default freshness window for distance samples.
	DefaultSampleTTL = 3 * time.Second

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultRetryInterval is the default delay between dial attempts.
	DefaultRetryInterval = time.Second

	// DefaultDepartedCapacity is the default size of the departed-peer cache.
	DefaultDepartedCapacity = 64

	// DefaultLogLevel is used when log_level is empty.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// Simulator defaults.
	DefaultRangingInterval = 100 * time.Millisecond
	DefaultStartDistance   = 1.0
	DefaultMinDistance     = 0.02
	DefaultApproach        = 5 * time.Second

	// nodeNamePrefix prefixes generated node names.
	nodeNamePrefix = "device-"
	// nodeNameSuffixLength is the number of uuid characters in generated names.
	nodeNameSuffixLength = 5
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errListenAddressRequired is returned when the listen address is missing.
	errListenAddressRequired = errors.New("listen address must be provided")
	// errInvalidThreshold is returned for non-positive or non-finite thresholds.
	errInvalidThreshold = errors.New("threshold must be a positive number")
	// errInvalidDistance is returned for a broken ranging profile.
	errInvalidDistance = errors.New("ranging distances must be non-negative")
	// errNegativeDuration is returned for negative durations.
	errNegativeDuration = errors.New("durations must not be negative")
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults for the optional ones.
//
//nolint:cyclop // A flat list of defaults reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddress == "" {
		return errListenAddressRequired
	}

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	for _, peer := range cfg.Peers {
		if _, _, err := net.SplitHostPort(peer); err != nil {
			return fmt.Errorf("invalid peer address %q: %w", peer, err)
		}
	}

	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}

	if cfg.Threshold < 0 || math.IsNaN(cfg.Threshold) || math.IsInf(cfg.Threshold, 0) {
		return errInvalidThreshold
	}

	if cfg.Hold < 0 || cfg.Tick < 0 || cfg.SampleTTL < 0 || cfg.Timeout < 0 ||
		cfg.RetryInterval < 0 || cfg.Ranging.Interval < 0 || cfg.Ranging.Approach < 0 {
		return errNegativeDuration
	}

	if cfg.NodeName == "" {
		cfg.NodeName = nodeNamePrefix + uuid.NewString()[:nodeNameSuffixLength]
	}

	if cfg.Hold == 0 {
		cfg.Hold = DefaultHold
	}

	if cfg.Tick == 0 {
		cfg.Tick = DefaultTick
	}

	if cfg.SampleTTL == 0 {
		cfg.SampleTTL = DefaultSampleTTL
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}

	if cfg.DepartedCapacity <= 0 {
		cfg.DepartedCapacity = DefaultDepartedCapacity
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return validateRanging(&cfg.Ranging)
}

// validateRanging fills simulator defaults and rejects negative distances.
func validateRanging(r *Ranging) error {
	if r.Interval == 0 {
		r.Interval = DefaultRangingInterval
	}

	if r.StartDistance == 0 {
		r.StartDistance = DefaultStartDistance
	}

	if r.MinDistance == 0 {
		r.MinDistance = DefaultMinDistance
	}

	if r.Approach == 0 {
		r.Approach = DefaultApproach
	}

	if r.StartDistance < 0 || r.MinDistance < 0 || r.Jitter < 0 {
		return errInvalidDistance
	}

	return nil
}
