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

package rules

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/pgtools/pg-upgrade-precheck/pkg/precheck"
	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
)

// blueGreenRules is the sub-catalog selected only when a blue/green
// deployment is requested. The green environment is synchronized via
// logical replication, so every check here guards that path.
func blueGreenRules() []precheck.Rule {
	return []precheck.Rule{
		{
			ID:            "B-1",
			Title:         "Logical replication capacity",
			Section:       precheck.SectionBlueGreen,
			Scope:         precheck.ScopeCluster,
			Applicability: precheck.GateBlueGreen(),
			Severity:      precheck.SeverityError,
			Check:         capacityCheck,
			Remediation:   "Raise the replication and worker limits to cover one logical slot and worker per database plus one spare.",
		},
		{
			ID:            "B-2",
			Title:         "Existing logical replication subscriptions",
			Section:       precheck.SectionBlueGreen,
			Scope:         precheck.ScopeCluster,
			Applicability: precheck.GateBlueGreen(),
			Severity:      precheck.SeverityError,
			Probe: precheck.ProbeRef{
				ID:      probe.SubscriptionsProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"subscription", "state"},
			},
			Remediation: "Drop or disable subscriptions before the cutover; they compete for the same replication capacity.",
		},
		{
			ID:            "B-3",
			Title:         "Tables without a primary key",
			Section:       precheck.SectionBlueGreen,
			Scope:         precheck.ScopePerDatabase,
			Applicability: precheck.GateBlueGreen(),
			Severity:      precheck.SeverityWarning,
			Probe: precheck.ProbeRef{
				ID:      probe.TablesWithoutPKProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"schema", "table"},
			},
			Remediation: "Add a primary key or set REPLICA IDENTITY FULL; updates and deletes cannot replicate otherwise.",
		},
		{
			ID:            "B-4",
			Title:         "DDL event triggers present",
			Section:       precheck.SectionBlueGreen,
			Scope:         precheck.ScopePerDatabase,
			Applicability: precheck.GateBlueGreen(),
			Severity:      precheck.SeverityWarning,
			Probe: precheck.ProbeRef{
				ID:      probe.DDLEventTriggersProbe,
				Kind:    precheck.ProbeRows,
				Columns: []string{"trigger", "event"},
			},
			Remediation: "DDL is not replicated to the green environment; review event triggers that assume it is.",
		},
		{
			ID:            "B-5",
			Title:         "DMS capture trigger installed",
			Section:       precheck.SectionBlueGreen,
			Scope:         precheck.ScopePerDatabase,
			Applicability: precheck.GateBlueGreen(),
			Severity:      precheck.SeverityError,
			Probe:         precheck.ProbeRef{ID: probe.DMSCaptureTriggerProbe, Kind: precheck.ProbeScalar},
			Remediation:   "Drop the awsdms_intercept_ddl event trigger; it breaks logical replication to the green environment.",
		},
		{
			ID:            "B-6",
			Title:         "Logical replication parameter",
			Section:       precheck.SectionBlueGreen,
			Scope:         precheck.ScopeCluster,
			Applicability: precheck.GateBlueGreen(),
			Severity:      precheck.SeverityError,
			Check:         logicalReplicationCheck,
			Remediation:   "Set rds.logical_replication to on in the cluster parameter group and reboot.",
		},
	}
}

// capacitySetting is one of the four live limits compared against the
// derived minimums.
type capacitySetting struct {
	name       string
	strictOver bool // true: value must exceed the minimum, not just reach it
}

var capacitySettings = []capacitySetting{
	{name: "max_replication_slots"},
	{name: "max_wal_senders"},
	{name: "max_logical_replication_workers"},
	{name: "max_worker_processes", strictOver: true},
}

// capacityCheck verifies the cluster can host one logical replication slot
// and worker per database plus one spare. All four comparisons are
// evaluated even when earlier ones fail, so a single run surfaces every
// shortfall.
func capacityCheck(ctx context.Context, client probe.Client, databaseCount int) ([]precheck.Finding, error) {
	required := databaseCount + 1

	var findings []precheck.Finding
	var readErrs []error
	for _, setting := range capacitySettings {
		raw, err := client.ShowSetting(ctx, setting.name)
		if err != nil {
			readErrs = append(readErrs, fmt.Errorf("%s: %w", setting.name, err))
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			readErrs = append(readErrs, fmt.Errorf("%s: unexpected value %q", setting.name, raw))
			continue
		}

		ok := value >= required
		op := ">="
		if setting.strictOver {
			ok = value > required
			op = ">"
		}
		if !ok {
			findings = append(findings, precheck.Finding{
				Summary: fmt.Sprintf("%s is %d, need %s %d for %d database(s) plus one spare",
					setting.name, value, op, required, databaseCount),
			})
		}
	}

	if len(readErrs) > 0 {
		// Shortfalls found before a read failure still count; the failure
		// marks the rule unverified on top of them.
		return findings, errors.Join(readErrs...)
	}
	return findings, nil
}

// logicalReplicationCheck requires rds.logical_replication to equal its
// exact expected value.
func logicalReplicationCheck(ctx context.Context, client probe.Client, _ int) ([]precheck.Finding, error) {
	const setting = "rds.logical_replication"
	const expected = "on"

	value, err := client.ShowSetting(ctx, setting)
	if err != nil {
		return nil, err
	}
	if value == expected {
		return nil, nil
	}
	return []precheck.Finding{{
		Summary: fmt.Sprintf("%s is %q, must be %q", setting, value, expected),
	}}, nil
}
