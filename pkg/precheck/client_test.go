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

package precheck

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
)

// fakeClient is a canned-answer probe client. Unconfigured scalar probes
// answer "0" and unconfigured rows probes answer no rows, so the default
// cluster is clean.
type fakeClient struct {
	mu        sync.Mutex
	databases []string
	settings  map[string]string
	scalars   map[string]string
	rowsets   map[string][]probe.Row
	errs      map[string]error
	calls     []string
}

func newFakeClient(databases ...string) *fakeClient {
	return &fakeClient{
		databases: databases,
		settings: map[string]string{
			"server_version_num":              "130004",
			"server_version":                  "13.4",
			"max_replication_slots":           "20",
			"max_wal_senders":                 "20",
			"max_logical_replication_workers": "20",
			"max_worker_processes":            "20",
			"rds.logical_replication":         "on",
		},
		scalars: make(map[string]string),
		rowsets: make(map[string][]probe.Row),
		errs:    make(map[string]error),
	}
}

func probeKey(database, probeID string, args ...string) string {
	return strings.Join(append([]string{database, probeID}, args...), "|")
}

func (c *fakeClient) record(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, key)
}

func (c *fakeClient) called(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == key {
			return true
		}
	}
	return false
}

func (c *fakeClient) ScalarQuery(_ context.Context, database, probeID string, args ...string) (string, error) {
	key := probeKey(database, probeID, args...)
	c.record(key)
	if err := c.errs[key]; err != nil {
		return "", err
	}
	if value, ok := c.scalars[key]; ok {
		return value, nil
	}
	return "0", nil
}

func (c *fakeClient) RowsQuery(_ context.Context, database, probeID string, args ...string) ([]probe.Row, error) {
	key := probeKey(database, probeID, args...)
	c.record(key)
	if err := c.errs[key]; err != nil {
		return nil, err
	}
	return c.rowsets[key], nil
}

func (c *fakeClient) ListDatabases(context.Context) ([]string, error) {
	if err := c.errs["list-databases"]; err != nil {
		return nil, err
	}
	return c.databases, nil
}

func (c *fakeClient) ShowSetting(_ context.Context, name string) (string, error) {
	key := "setting|" + name
	c.record(key)
	if err := c.errs[key]; err != nil {
		return "", err
	}
	value, ok := c.settings[name]
	if !ok {
		return "", fmt.Errorf("unrecognized configuration parameter %q", name)
	}
	return value, nil
}
