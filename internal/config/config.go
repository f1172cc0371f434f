// Package config loads export settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres   Postgres   `yaml:"postgres"`
	SQLite     SQLite     `yaml:"sqlite"`
	Export     Export     `yaml:"export"`
	XLink      XLink      `yaml:"xlink"`
	Appearance Appearance `yaml:"appearance"`
	Log        Log        `yaml:"log"`
}

type Postgres struct {
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

type Export struct {
	Workers     int  `yaml:"workers"`
	BatchSize   int  `yaml:"batch_size"`
	FailOnError bool `yaml:"fail_on_error"`
	Implicit    bool `yaml:"implicit"`
}

// XLink controls how repeated geometries are written.
type XLink struct {
	// Reference writes repeated geometries as xlink references.
	Reference bool   `yaml:"reference"`
	AppendID  bool   `yaml:"append_id"`
	IDPrefix  string `yaml:"id_prefix"`
}

type Appearance struct {
	Enabled bool   `yaml:"enabled"`
	Table   string `yaml:"table"`

	// BatchSize overrides the cache flush threshold when it lies within
	// the source's maximum batch size.
	BatchSize int `yaml:"batch_size"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Postgres: Postgres{Schema: "citydb"},
		Export: Export{
			Workers:   4,
			BatchSize: 100,
		},
		XLink: XLink{
			Reference: true,
			IDPrefix:  "UUID_",
		},
		Appearance: Appearance{Table: "tmp_appearance_geometry"},
		Log:        Log{Level: "info"},
	}
}

// Load reads path on top of Default. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Export.Workers < 1 {
		errs = append(errs, fmt.Errorf("export.workers must be at least 1, got %d", c.Export.Workers))
	}
	if c.Export.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("export.batch_size must be at least 1, got %d", c.Export.BatchSize))
	}
	if c.Appearance.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("appearance.batch_size must not be negative, got %d", c.Appearance.BatchSize))
	}
	if c.Appearance.Enabled && c.Appearance.Table == "" {
		errs = append(errs, errors.New("appearance.table is required when appearance export is enabled"))
	}
	return errors.Join(errs...)
}
