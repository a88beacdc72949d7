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

// Package probe defines the read-only query capability the precheck engine
// consumes, together with the fixed catalog of probe SQL templates. The
// engine never hands probe text any identifier that has not passed the
// allowlist in ValidIdentifier.
package probe

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Row is one row of tabular probe evidence, already stringified.
type Row []string

// Client executes read-only catalog probes against a PostgreSQL cluster.
// An empty database selects the maintenance database the client was
// configured with (cluster-wide catalogs are visible from any database).
type Client interface {
	// ScalarQuery runs the probe and returns the single value of the first
	// row, or "" when the probe returns no rows.
	ScalarQuery(ctx context.Context, database, probeID string, args ...string) (string, error)

	// RowsQuery runs the probe and returns every row.
	RowsQuery(ctx context.Context, database, probeID string, args ...string) ([]Row, error)

	// ListDatabases returns the raw, unvalidated list of connectable
	// database names.
	ListDatabases(ctx context.Context) ([]string, error)

	// ShowSetting returns the current value of a server configuration
	// parameter.
	ShowSetting(ctx context.Context, name string) (string, error)
}

// identifierPattern is the conservative allowlist for database, extension
// and type names that may be substituted into a probe template.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// settingPattern covers GUC names such as max_replication_slots and
// rds.logical_replication.
var settingPattern = regexp.MustCompile(`^[a-z_][a-z0-9_.]*$`)

// ValidIdentifier reports whether name is safe to substitute into a probe
// template.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValidSetting reports whether name is an acceptable configuration
// parameter name for ShowSetting.
func ValidSetting(name string) bool {
	return settingPattern.MatchString(name)
}

// Probe ids. Each names one entry in the template catalog below.
const (
	ListDatabasesProbe        = "list-databases"
	PreparedTransactionsProbe = "prepared-transactions"
	LogicalSlotsProbe         = "logical-replication-slots"
	RegTypeColumnsProbe       = "reg-type-columns"
	OutdatedExtensionsProbe   = "outdated-extensions"
	ExtensionInstalledProbe   = "extension-installed"
	TablesWithOIDsProbe       = "tables-with-oids"
	RemovedTypeColumnsProbe   = "removed-type-columns"
	ACLItemColumnsProbe       = "aclitem-columns"
	MD5RolePasswordsProbe     = "md5-role-passwords"
	InvalidIndexesProbe       = "invalid-indexes"
	SubscriptionsProbe        = "logical-subscriptions"
	TablesWithoutPKProbe      = "tables-without-primary-key"
	DDLEventTriggersProbe     = "ddl-event-triggers"
	DMSCaptureTriggerProbe    = "dms-capture-trigger"
)

// templates maps probe ids to fixed SQL. A %s placeholder is filled with an
// identifier that Render has already validated; templates without a
// placeholder take no arguments.
var templates = map[string]string{
	ListDatabasesProbe: `SELECT datname FROM pg_catalog.pg_database WHERE datallowconn ORDER BY datname`,

	PreparedTransactionsProbe: `SELECT count(*) FROM pg_catalog.pg_prepared_xacts`,

	LogicalSlotsProbe: `SELECT slot_name, plugin, coalesce(database, '') ` +
		`FROM pg_catalog.pg_replication_slots WHERE slot_type = 'logical' ORDER BY slot_name`,

	RegTypeColumnsProbe: `SELECT n.nspname, c.relname, a.attname, t.typname ` +
		`FROM pg_catalog.pg_attribute a ` +
		`JOIN pg_catalog.pg_class c ON a.attrelid = c.oid ` +
		`JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid ` +
		`JOIN pg_catalog.pg_type t ON a.atttypid = t.oid ` +
		`WHERE t.typname IN ('regproc', 'regprocedure', 'regoper', 'regoperator', 'regconfig', 'regdictionary') ` +
		`AND a.attnum > 0 AND NOT a.attisdropped ` +
		`AND c.relkind IN ('r', 'm', 'p') ` +
		`AND n.nspname NOT IN ('pg_catalog', 'information_schema') ` +
		`ORDER BY n.nspname, c.relname, a.attname`,

	OutdatedExtensionsProbe: `SELECT name, installed_version, default_version ` +
		`FROM pg_catalog.pg_available_extensions ` +
		`WHERE installed_version IS NOT NULL AND installed_version <> default_version ` +
		`ORDER BY name`,

	ExtensionInstalledProbe: `SELECT extversion FROM pg_catalog.pg_extension WHERE extname = '%s'`,

	TablesWithOIDsProbe: `SELECT n.nspname, c.relname ` +
		`FROM pg_catalog.pg_class c ` +
		`JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid ` +
		`WHERE c.relhasoids AND c.relkind = 'r' ` +
		`AND n.nspname NOT IN ('pg_catalog', 'information_schema') ` +
		`ORDER BY n.nspname, c.relname`,

	RemovedTypeColumnsProbe: `SELECT n.nspname, c.relname, a.attname ` +
		`FROM pg_catalog.pg_attribute a ` +
		`JOIN pg_catalog.pg_class c ON a.attrelid = c.oid ` +
		`JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid ` +
		`JOIN pg_catalog.pg_type t ON a.atttypid = t.oid ` +
		`WHERE t.typname = '%s' ` +
		`AND a.attnum > 0 AND NOT a.attisdropped ` +
		`AND c.relkind IN ('r', 'm', 'p') ` +
		`AND n.nspname NOT IN ('pg_catalog', 'information_schema') ` +
		`ORDER BY n.nspname, c.relname, a.attname`,

	ACLItemColumnsProbe: `SELECT n.nspname, c.relname, a.attname ` +
		`FROM pg_catalog.pg_attribute a ` +
		`JOIN pg_catalog.pg_class c ON a.attrelid = c.oid ` +
		`JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid ` +
		`JOIN pg_catalog.pg_type t ON a.atttypid = t.oid ` +
		`WHERE t.typname = 'aclitem' ` +
		`AND a.attnum > 0 AND NOT a.attisdropped ` +
		`AND c.relkind IN ('r', 'm', 'p') ` +
		`AND n.nspname NOT IN ('pg_catalog', 'information_schema') ` +
		`ORDER BY n.nspname, c.relname, a.attname`,

	MD5RolePasswordsProbe: `SELECT count(*) FROM pg_catalog.pg_authid WHERE rolpassword LIKE 'md5%'`,

	InvalidIndexesProbe: `SELECT n.nspname, c.relname ` +
		`FROM pg_catalog.pg_index i ` +
		`JOIN pg_catalog.pg_class c ON i.indexrelid = c.oid ` +
		`JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid ` +
		`WHERE NOT i.indisvalid ` +
		`AND n.nspname NOT IN ('pg_catalog', 'information_schema') ` +
		`ORDER BY n.nspname, c.relname`,

	SubscriptionsProbe: `SELECT subname, CASE WHEN subenabled THEN 'enabled' ELSE 'disabled' END ` +
		`FROM pg_catalog.pg_subscription ORDER BY subname`,

	TablesWithoutPKProbe: `SELECT n.nspname, c.relname ` +
		`FROM pg_catalog.pg_class c ` +
		`JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid ` +
		`WHERE c.relkind = 'r' ` +
		`AND n.nspname NOT IN ('pg_catalog', 'information_schema') ` +
		`AND NOT EXISTS (` +
		`SELECT 1 FROM pg_catalog.pg_constraint x ` +
		`WHERE x.conrelid = c.oid AND x.contype = 'p') ` +
		`ORDER BY n.nspname, c.relname`,

	DDLEventTriggersProbe: `SELECT evtname, evtevent ` +
		`FROM pg_catalog.pg_event_trigger ` +
		`WHERE evtname <> 'awsdms_intercept_ddl' ORDER BY evtname`,

	DMSCaptureTriggerProbe: `SELECT count(*) FROM pg_catalog.pg_event_trigger WHERE evtname = 'awsdms_intercept_ddl'`,
}

// Render resolves a probe id to its SQL text, substituting validated
// identifiers for any placeholders. It fails rather than render a template
// with a mismatched or non-conforming argument list.
func Render(probeID string, args ...string) (string, error) {
	tmpl, ok := templates[probeID]
	if !ok {
		return "", fmt.Errorf("unknown probe %q", probeID)
	}
	want := strings.Count(tmpl, "%s")
	if want != len(args) {
		return "", fmt.Errorf("probe %q expects %d argument(s), got %d", probeID, want, len(args))
	}
	if len(args) == 0 {
		return tmpl, nil
	}
	vals := make([]any, 0, len(args))
	for _, arg := range args {
		if !ValidIdentifier(arg) {
			return "", fmt.Errorf("probe %q: identifier %q fails the allowlist", probeID, arg)
		}
		vals = append(vals, arg)
	}
	return fmt.Sprintf(tmpl, vals...), nil
}
