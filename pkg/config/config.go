// Copyright 2025 the pg-upgrade-precheck authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the optional TOML runtime configuration. The CLI
// surface stays positional; tuning lives in precheck.toml next to the
// binary or wherever PG_PRECHECK_CONFIG points.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "PG_PRECHECK_CONFIG"

const defaultPath = "precheck.toml"

// Config tunes a precheck run. Every field has a usable default; an absent
// config file is not an error.
type Config struct {
	// ProbeTimeoutSeconds bounds each individual probe call.
	ProbeTimeoutSeconds int `toml:"probe_timeout_seconds"`
	// Workers bounds concurrent probe calls.
	Workers int `toml:"workers"`
	// ExcludeDatabases are skipped in addition to the system databases.
	ExcludeDatabases []string `toml:"exclude_databases"`
	// Format selects the report encoding: text, json or yaml.
	Format string `toml:"format"`
	// Output writes the report to a file instead of stdout.
	Output string `toml:"output"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ProbeTimeoutSeconds: 10,
		Workers:             4,
		Format:              "text",
	}
}

// Load reads the config file at path, or the default location when path is
// empty. A missing default file yields Default(); a file that exists but
// does not parse is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.ProbeTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("config %s: probe_timeout_seconds must be positive", path)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("config %s: workers must be positive", path)
	}
	return cfg, nil
}

// ProbeTimeout returns the probe timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}
