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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "precheck.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout())
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "text", cfg.Format)
}

func TestLoadExplicitMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
probe_timeout_seconds = 30
workers = 8
exclude_databases = ["staging", "scratch"]
format = "json"
output = "/tmp/report.json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.ProbeTimeout())
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"staging", "scratch"}, cfg.ExcludeDatabases)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "/tmp/report.json", cfg.Output)
}

// Unset fields keep their defaults.
func TestLoadPartialFile(t *testing.T) {
	path := writeConfig(t, `format = "yaml"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, 10, cfg.ProbeTimeoutSeconds)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `workers = 2`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoadEnvPointsAtMissingFile(t *testing.T) {
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "nope.toml"))
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, `workers = "many"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")

	_, err = Load(writeConfig(t, `probe_timeout_seconds = 0`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe_timeout_seconds")

	_, err = Load(writeConfig(t, `workers = -1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}
