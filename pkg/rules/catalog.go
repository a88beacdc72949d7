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

// Package rules holds the fixed precheck rule catalog. Catalog order is the
// canonical report order; extending the catalog is a build-time concern.
package rules

import (
	"github.com/pgtools/pg-upgrade-precheck/pkg/precheck"
	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
)

// versionBoundExtensions install version-specific objects that must be
// dropped or migrated by hand before a major version upgrade.
var versionBoundExtensions = []string{"pg_repack", "pgactive", "pglogical"}

// removedTypes were dropped from the catalog in PostgreSQL 12.
var removedTypes = []string{"abstime", "reltime", "tinterval"}

// Catalog returns the full rule list in report order. The slice is rebuilt
// on every call so callers can never mutate the canonical definitions.
func Catalog() []precheck.Rule {
	catalog := make([]precheck.Rule, 0, 16)
	catalog = append(catalog, auroraRules()...)
	catalog = append(catalog, engineInternalRules()...)
	catalog = append(catalog, blueGreenRules()...)
	return catalog
}

func auroraRules() []precheck.Rule {
	return []precheck.Rule{
		{
			ID:            "A-1",
			Title:         "Prepared transactions pending",
			Section:       precheck.SectionAuroraRDS,
			Scope:         precheck.ScopeCluster,
			Applicability: precheck.GateAlways(),
			Severity:      precheck.SeverityError,
			Probe:         precheck.ProbeRef{ID: probe.PreparedTransactionsProbe, Kind: precheck.ProbeScalar},
			Remediation:   "Commit or roll back all prepared transactions before the upgrade.",
		},
		{
			ID:            "A-2",
			Title:         "Logical replication slots present",
			Section:       precheck.SectionAuroraRDS,
			Scope:         precheck.ScopeCluster,
			Applicability: precheck.GateAlways(),
			Severity:      precheck.SeverityError,
			Probe: precheck.ProbeRef{
				ID:      probe.LogicalSlotsProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"slot", "plugin", "database"},
			},
			Remediation: "Drop logical replication slots; an in-place major version upgrade discards them.",
		},
		{
			ID:            "A-3",
			Title:         "Columns using unsupported reg* data types",
			Section:       precheck.SectionAuroraRDS,
			Scope:         precheck.ScopePerDatabase,
			Applicability: precheck.GateAlways(),
			Severity:      precheck.SeverityError,
			Probe: precheck.ProbeRef{
				ID:      probe.RegTypeColumnsProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"schema", "table", "column", "type"},
			},
			Remediation: "Drop or retype columns using OID-referencing reg* types; pg_upgrade cannot carry them across versions.",
		},
		{
			ID:            "A-4",
			Title:         "Installed extensions older than the default version",
			Section:       precheck.SectionAuroraRDS,
			Scope:         precheck.ScopePerDatabase,
			Applicability: precheck.GateAlways(),
			Severity:      precheck.SeverityWarning,
			Probe: precheck.ProbeRef{
				ID:      probe.OutdatedExtensionsProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"extension", "installed", "default"},
			},
			Remediation: "Run ALTER EXTENSION ... UPDATE before the upgrade.",
		},
		{
			ID:            "A-5",
			Title:         "Version-bound extension installed",
			Section:       precheck.SectionAuroraRDS,
			Scope:         precheck.ScopePerDatabasePerTarget,
			Applicability: precheck.GateAlways(),
			Severity:      precheck.SeverityWarning,
			Probe:         precheck.ProbeRef{ID: probe.ExtensionInstalledProbe, Kind: precheck.ProbeScalar},
			Targets:       versionBoundExtensions,
			Remediation:   "Follow the extension's own upgrade procedure, or drop and recreate it after the upgrade.",
		},
	}
}

func engineInternalRules() []precheck.Rule {
	return []precheck.Rule{
		{
			ID:            "E-1",
			Title:         "Tables declared WITH OIDS",
			Section:       precheck.SectionEngineInternal,
			Scope:         precheck.ScopePerDatabase,
			Applicability: precheck.GateSourceAtMost(11),
			Severity:      precheck.SeverityError,
			Probe: precheck.ProbeRef{
				ID:      probe.TablesWithOIDsProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"schema", "table"},
			},
			Remediation: "ALTER TABLE ... SET WITHOUT OIDS; WITH OIDS tables cannot be upgraded past version 11.",
		},
		{
			ID:            "E-2",
			Title:         "Columns using a removed data type",
			Section:       precheck.SectionEngineInternal,
			Scope:         precheck.ScopePerDatabasePerTarget,
			Applicability: precheck.GateSourceAtMost(11),
			Severity:      precheck.SeverityError,
			Probe: precheck.ProbeRef{
				ID:      probe.RemovedTypeColumnsProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"schema", "table", "column"},
			},
			Targets:     removedTypes,
			Remediation: "Convert abstime, reltime and tinterval columns to timestamptz or interval; the types were removed in version 12.",
		},
		{
			ID:            "E-3",
			Title:         "Columns of type aclitem",
			Section:       precheck.SectionEngineInternal,
			Scope:         precheck.ScopePerDatabase,
			Applicability: precheck.GateWindow(15, 16),
			Severity:      precheck.SeverityError,
			Probe: precheck.ProbeRef{
				ID:      probe.ACLItemColumnsProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"schema", "table", "column"},
			},
			Remediation: "Drop user columns of type aclitem; its internal format changed in version 16.",
		},
		{
			ID:            "E-4",
			Title:         "Roles with md5 password hashes",
			Section:       precheck.SectionEngineInternal,
			Scope:         precheck.ScopeCluster,
			Applicability: precheck.GateTargetAtLeast(14),
			Severity:      precheck.SeverityWarning,
			Probe:         precheck.ProbeRef{ID: probe.MD5RolePasswordsProbe, Kind: precheck.ProbeScalar},
			Remediation:   "Re-hash role passwords with scram-sha-256; version 14 defaults away from md5.",
		},
		{
			ID:            "E-5",
			Title:         "Invalid indexes",
			Section:       precheck.SectionEngineInternal,
			Scope:         precheck.ScopePerDatabase,
			Applicability: precheck.GateAlways(),
			Severity:      precheck.SeverityError,
			Probe: precheck.ProbeRef{
				ID:      probe.InvalidIndexesProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"schema", "index"},
			},
			Remediation: "REINDEX or drop invalid indexes; pg_upgrade refuses to copy them.",
		},
	}
}
