package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing listen address.
	cfg := new(Config)

	err := Validate(cfg)
	require.Error(t, err)

	// Bad listen address.
	cfg = &Config{
		ListenAddress: "no-port",
	}

	err = Validate(cfg)
	require.Error(t, err)

	// Bad peer address.
	cfg = &Config{
		ListenAddress: "127.0.0.1:0",
		Peers:         []string{"127.0.0.1"},
	}

	err = Validate(cfg)
	require.Error(t, err)

	// Negative threshold.
	cfg = &Config{
		ListenAddress: "127.0.0.1:0",
		Threshold:     -1,
	}

	err = Validate(cfg)
	require.Error(t, err)

	// Negative duration.
	cfg = &Config{
		ListenAddress: "127.0.0.1:0",
		Hold:          -time.Second,
	}

	err = Validate(cfg)
	require.Error(t, err)

	// Okay with peers.
	cfg = &Config{
		ListenAddress: "127.0.0.1:0",
		Peers:         []string{"127.0.0.1:7451", "localhost:7452"},
	}

	err = Validate(cfg)
	require.NoError(t, err)
}

// TestValidate_Defaults verifies every optional setting receives its default.
func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{ListenAddress: ":7450"}
	require.NoError(t, Validate(cfg))

	require.True(t, strings.HasPrefix(cfg.NodeName, nodeNamePrefix))
	require.Len(t, cfg.NodeName, len(nodeNamePrefix)+nodeNameSuffixLength)
	require.InDelta(t, DefaultThreshold, cfg.Threshold, 1e-12)
	require.Equal(t, DefaultHold, cfg.Hold)
	require.Equal(t, DefaultTick, cfg.Tick)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultRetryInterval, cfg.RetryInterval)
	require.Equal(t, DefaultDepartedCapacity, cfg.DepartedCapacity)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.Equal(t, DefaultSampleTTL, cfg.SampleTTL)
	require.Equal(t, DefaultRangingInterval, cfg.Ranging.Interval)
	require.Equal(t, DefaultApproach, cfg.Ranging.Approach)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		NodeName:      "kitchen",
		ListenAddress: "127.0.0.1:7450",
		Peers:         []string{"127.0.0.1:7451"},
		Threshold:     0.1,
		Hold:          1500 * time.Millisecond,
		SampleTTL:     2 * time.Second,
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.NodeName, loaded.NodeName)
	require.Equal(t, cfg.ListenAddress, loaded.ListenAddress)
	require.Equal(t, cfg.Peers, loaded.Peers)
	require.InDelta(t, cfg.Threshold, loaded.Threshold, 1e-12)
	require.Equal(t, cfg.Hold, loaded.Hold)
	require.Equal(t, cfg.SampleTTL, loaded.SampleTTL)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_ParsesDurations checks human-readable durations in YAML.
func TestLoad_ParsesDurations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	contents := `
listen_addr: ":7450"
hold: 2s
tick: 100ms
ranging:
  interval: 50ms
  approach: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.Hold)
	require.Equal(t, 100*time.Millisecond, cfg.Tick)
	require.Equal(t, 50*time.Millisecond, cfg.Ranging.Interval)
	require.Equal(t, 10*time.Second, cfg.Ranging.Approach)
}

// TestSave_NilConfig rejects a nil configuration.
func TestSave_NilConfig(t *testing.T) {
	t.Parallel()

	require.Error(t, Save(filepath.Join(t.TempDir(), "x.yaml"), nil))
}
