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

package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnConfig carries the connection parameters shared by every probe.
type ConnConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// MaintenanceDB is the database probes connect to when no database is
	// named (cluster-wide catalogs). Defaults to "postgres".
	MaintenanceDB string
}

// PGXClient implements Client over pgx connection pools, one pool per
// probed database, created lazily and reused across probes.
type PGXClient struct {
	cfg ConnConfig

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewPGXClient creates a client. No connection is attempted until the first
// probe runs.
func NewPGXClient(cfg ConnConfig) *PGXClient {
	if cfg.MaintenanceDB == "" {
		cfg.MaintenanceDB = "postgres"
	}
	return &PGXClient{
		cfg:   cfg,
		pools: make(map[string]*pgxpool.Pool),
	}
}

// Close releases every pool the client has opened.
func (c *PGXClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pool := range c.pools {
		pool.Close()
	}
	c.pools = make(map[string]*pgxpool.Pool)
}

func (c *PGXClient) pool(ctx context.Context, database string) (*pgxpool.Pool, error) {
	if database == "" {
		database = c.cfg.MaintenanceDB
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pool, ok := c.pools[database]; ok {
		return pool, nil
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s pool_max_conns=2",
		quoteDSNValue(c.cfg.Host), c.cfg.Port, quoteDSNValue(c.cfg.User),
		quoteDSNValue(c.cfg.Password), quoteDSNValue(database))
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database %q: %w", database, err)
	}
	c.pools[database] = pool
	return pool, nil
}

// ScalarQuery implements Client.
func (c *PGXClient) ScalarQuery(ctx context.Context, database, probeID string, args ...string) (string, error) {
	sql, err := Render(probeID, args...)
	if err != nil {
		return "", err
	}
	pool, err := c.pool(ctx, database)
	if err != nil {
		return "", err
	}

	var value any
	err = pool.QueryRow(ctx, sql).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("probe %q on %q: %w", probeID, database, err)
	}
	if value == nil {
		return "", nil
	}
	return fmt.Sprint(value), nil
}

// RowsQuery implements Client.
func (c *PGXClient) RowsQuery(ctx context.Context, database, probeID string, args ...string) ([]Row, error) {
	sql, err := Render(probeID, args...)
	if err != nil {
		return nil, err
	}
	pool, err := c.pool(ctx, database)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("probe %q on %q: %w", probeID, database, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("probe %q on %q: %w", probeID, database, err)
		}
		row := make(Row, 0, len(values))
		for _, v := range values {
			if v == nil {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprint(v))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("probe %q on %q: %w", probeID, database, err)
	}
	return out, nil
}

// ListDatabases implements Client.
func (c *PGXClient) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := c.RowsQuery(ctx, "", ListDatabasesProbe)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			names = append(names, row[0])
		}
	}
	return names, nil
}

// ShowSetting implements Client.
func (c *PGXClient) ShowSetting(ctx context.Context, name string) (string, error) {
	if !ValidSetting(name) {
		return "", fmt.Errorf("setting name %q fails the allowlist", name)
	}
	pool, err := c.pool(ctx, "")
	if err != nil {
		return "", err
	}
	var value string
	// current_setting takes the name as a bind parameter, so no SHOW text
	// is ever assembled from input.
	if err := pool.QueryRow(ctx, "SELECT current_setting($1)", name).Scan(&value); err != nil {
		return "", fmt.Errorf("show setting %q: %w", name, err)
	}
	return value, nil
}

// quoteDSNValue quotes a keyword/value DSN component per libpq rules.
func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
