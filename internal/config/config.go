// Package config provides configuration loading for schedscope.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default file location, relative to the user's home directory.
const (
	defaultDir  = ".schedscope"
	defaultFile = "config.yaml"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// ("5m", "1s") as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the settings of a trace run.
type Config struct {
	// SocketDir is where guest control sockets live; the socket name is
	// always <pid>.socket.
	SocketDir string `yaml:"socket_dir"`

	// OutputDir is where run artifacts are written.
	OutputDir string `yaml:"output_dir"`

	// MilestoneEvent is the guest event bounding the trace window.
	MilestoneEvent string `yaml:"milestone_event"`

	// PollInterval is the fixed interval for the control-socket
	// existence wait.
	PollInterval Duration `yaml:"poll_interval"`

	// WaitTimeout bounds the whole run. Zero means no bound: the run
	// suspends indefinitely at the milestone or exit wait.
	WaitTimeout Duration `yaml:"wait_timeout"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration, matching the guest's
// well-known socket and artifact locations.
func Default() Config {
	return Config{
		SocketDir:      "/tmp",
		OutputDir:      "/tmp",
		MilestoneEvent: "ACPI_DEVICE_OST",
		PollInterval:   Duration(time.Second),
		WaitTimeout:    0,
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load resolves the effective configuration. An explicit path must exist; an
// empty path falls back to ~/.schedscope/config.yaml when present, else
// defaults. File values override defaults field by field.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, defaultDir, defaultFile)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: user-chosen config path.
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.SocketDir == "" {
		return fmt.Errorf("socket_dir must not be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if c.MilestoneEvent == "" {
		return fmt.Errorf("milestone_event must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("wait_timeout must not be negative")
	}
	return nil
}

// SocketPath returns the guest's control socket path.
func (c Config) SocketPath(pid int) string {
	return filepath.Join(c.SocketDir, fmt.Sprintf("%d.socket", pid))
}
