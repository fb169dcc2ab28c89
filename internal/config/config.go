package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shmem/internal/driver"
	"github.com/roach88/shmem/internal/reconcile"
	"github.com/roach88/shmem/internal/transport"
)

// Config holds the settings shared by `shmem serve` and `shmem sync`.
// Command-line flags override values loaded from a file.
type Config struct {
	// URL is the Modbus endpoint the client dials.
	URL string `yaml:"url"`
	// Listen is the Modbus endpoint the server binds.
	Listen string `yaml:"listen"`
	// UnitID is the Modbus unit served and addressed.
	UnitID uint8 `yaml:"unit_id"`
	// Timeout bounds each client request.
	Timeout time.Duration `yaml:"timeout"`
	// IdleTimeout closes idle server connections.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// MaxClients bounds concurrent server connections.
	MaxClients uint `yaml:"max_clients"`

	// Size is the number of cells when no layout is given.
	Size int `yaml:"size"`
	// Layout is a CUE memory map. It fixes the size when set.
	Layout string `yaml:"layout"`

	// Period is the reconciliation cadence.
	Period time.Duration `yaml:"period"`
	// Mode is "bulk" or "each".
	Mode string `yaml:"mode"`

	// DiagnosticLog receives one line per period overrun. Empty disables it.
	DiagnosticLog string `yaml:"diagnostic_log"`
	// Journal is a SQLite file recording runs and passes. Empty disables it.
	Journal string `yaml:"journal"`
	// Monitor is the HTTP listen address of the websocket feed. Empty
	// disables it.
	Monitor string `yaml:"monitor"`

	// Supervise restarts the client driver after transport failures.
	Supervise bool `yaml:"supervise"`
	// MaxFailures consecutive failures stop supervision.
	MaxFailures int `yaml:"max_failures"`
	// RestartsPerMinute caps reconnect attempts.
	RestartsPerMinute int `yaml:"restarts_per_minute"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		URL:               transport.DefaultURL,
		Listen:            "tcp://0.0.0.0:5502",
		UnitID:            transport.DefaultUnitID,
		Timeout:           time.Second,
		IdleTimeout:       30 * time.Second,
		MaxClients:        4,
		Size:              100,
		Period:            driver.DefaultPeriod,
		Mode:              "bulk",
		DiagnosticLog:     "client_log.log",
		MaxFailures:       5,
		RestartsPerMinute: 6,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
// Relative file paths in the file are resolved against its directory.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.Layout, &cfg.Journal, &cfg.DiagnosticLog} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Layout == "" && (c.Size <= 0 || c.Size > 1<<16) {
		return fmt.Errorf("size %d outside 1..65536", c.Size)
	}
	if c.UnitID == 0 || c.UnitID > 247 {
		return fmt.Errorf("unit_id %d outside 1..247", c.UnitID)
	}
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive, got %s", c.Period)
	}
	if _, err := reconcile.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.Supervise && c.MaxFailures <= 0 {
		return fmt.Errorf("max_failures must be positive when supervise is set")
	}
	return nil
}
