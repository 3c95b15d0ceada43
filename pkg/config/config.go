package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default lvm binary used when neither the config file nor LVM_BINARY
// name one.
const DefaultLvmBinary = "/usr/sbin/lvm"

// Config holds the daemon configuration assembled from the optional YAML
// config file, environment variables and command line flags, in that
// order of increasing precedence.
type Config struct {
	// UseUdev keeps the udev monitor running even after the first
	// ExternalEvent arrives.
	UseUdev bool `yaml:"use_udev"`

	// Debug dumps debug messages.
	Debug bool `yaml:"debug"`

	// UseJSON asks lvm for JSON report output. The daemon refuses to run
	// without it; the flag exists so the operator gets a clear error.
	UseJSON bool `yaml:"use_json"`

	// UseLvmShell drives one persistent `lvm` shell instead of forking a
	// process per command.
	UseLvmShell bool `yaml:"use_lvm_shell"`

	// FlightRecorderSize is the number of command invocations retained
	// for post-mortem dumps. 0 disables the recorder.
	FlightRecorderSize int `yaml:"flight_recorder_size"`

	// LvmBinary is the lvm executable to drive.
	LvmBinary string `yaml:"lvm_binary"`

	// LockFile guards against a second daemon instance.
	LockFile string `yaml:"lock_file"`

	// MetricsAddr exposes Prometheus metrics when non-empty,
	// e.g. "127.0.0.1:9110".
	MetricsAddr string `yaml:"metrics_addr"`

	// SessionBus connects to the session bus instead of the system bus.
	// Also settable via LVMDBUSD_USE_SESSION for the test suites.
	SessionBus bool `yaml:"session_bus"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		UseJSON:            true,
		FlightRecorderSize: 10,
		LvmBinary:          DefaultLvmBinary,
		LockFile:           "/var/run/lvmdbusd.lock",
		LogLevel:           "info",
	}
}

// LoadFile merges the YAML file at path over cfg. A missing file is an
// error; callers skip the call when no --config was given.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnvironment folds the supported environment variables into cfg and
// forces the variables lvm depends on for parseable output.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv("LVM_BINARY"); v != "" {
		cfg.LvmBinary = v
	}
	if v := os.Getenv("LVMDBUSD_USE_SESSION"); v != "" && v != "0" && v != "false" {
		cfg.SessionBus = true
	}

	// Consistent, locale independent output and the daemon profile.
	os.Setenv("LC_ALL", "C")
	os.Setenv("LVM_COMMAND_PROFILE", "lvmdbusd")
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.FlightRecorderSize < 0 {
		return fmt.Errorf("flight recorder size must be >= 0, got %d", c.FlightRecorderSize)
	}
	if !c.UseJSON {
		return fmt.Errorf("daemon no longer supports lvm without JSON support")
	}
	if c.LvmBinary == "" {
		return fmt.Errorf("lvm binary path is empty")
	}
	return nil
}
