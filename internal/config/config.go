// Package config loads the tinyi2c runtime configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"periph.io/x/conn/v3/physic"
)

// Backend names a master implementation.
type Backend string

const (
	BackendUSI  Backend = "usi"
	BackendTWI  Backend = "twi"
	BackendTWIM Backend = "twim"
)

// Config is the persisted configuration. Zero fields are filled from Default
// on Load.
type Config struct {
	Backend Backend `json:"backend"`
	SCL     string  `json:"scl"`
	SDA     string  `json:"sda"`
	// CPUHz is the controller clock the hardware backends derive their bit
	// rate from.
	CPUHz     int64   `json:"cpu_hz"`
	Retries   int     `json:"retries"`
	OpsPerSec float64 `json:"ops_per_sec"`
	// CPU pins the bit-bang thread to one core; negative leaves it floating.
	CPU    int    `json:"cpu"`
	Serial string `json:"serial"`
	Baud   int    `json:"baud"`
	// Listen is the HTTP API address.
	Listen string `json:"listen"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Backend:   DefaultBackend,
		SCL:       "GPIO3",
		SDA:       "GPIO2",
		CPUHz:     16_000_000,
		Retries:   2,
		OpsPerSec: 500,
		CPU:       -1,
		Serial:    "/dev/serial0",
		Baud:      115200,
		Listen:    ":8080",
	}
}

// CPUFrequency returns CPUHz as a frequency.
func (c Config) CPUFrequency() physic.Frequency {
	return physic.Frequency(c.CPUHz) * physic.Hertz
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendUSI, BackendTWI, BackendTWIM:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Backend == BackendUSI && (c.SCL == "" || c.SDA == "") {
		return errors.New("config: usi backend needs scl and sda pins")
	}
	if c.CPUHz <= 0 {
		return fmt.Errorf("config: cpu_hz must be positive, got %d", c.CPUHz)
	}
	if c.Retries < 0 {
		return fmt.Errorf("config: retries must not be negative, got %d", c.Retries)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("config: baud must be positive, got %d", c.Baud)
	}
	return nil
}

// Load reads the configuration at path. Returns Default on ENOENT or parse
// errors; fields missing from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg, err := load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Default(), nil
	case errors.As(err, new(*parseError)):
		slog.Warn("config: corrupt JSON config, using defaults", "path", path, "err", err)
		return Default(), nil
	case err != nil:
		return Default(), err
	}
	return cfg, nil
}

// parseError wraps a file that exists but does not decode.
type parseError struct {
	path string
	err  error
}

func (e *parseError) Error() string { return fmt.Sprintf("config: parse %s: %v", e.path, e.err) }
func (e *parseError) Unwrap() error { return e.err }

// load reads path over the defaults and reports every read or parse error.
func load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, &parseError{path: path, err: err}
	}
	return cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Write to temp file, then rename (atomic on Linux)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
