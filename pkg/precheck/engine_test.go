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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
)

// testCatalog is a small catalog exercising every scope and gate shape.
func testCatalog() []Rule {
	return []Rule{
		{
			ID:            "T-1",
			Title:         "cluster scalar",
			Section:       SectionAuroraRDS,
			Scope:         ScopeCluster,
			Applicability: GateAlways(),
			Severity:      SeverityError,
			Probe:         ProbeRef{ID: probe.PreparedTransactionsProbe, Kind: ProbeScalar},
		},
		{
			ID:            "T-2",
			Title:         "per database rows",
			Section:       SectionEngineInternal,
			Scope:         ScopePerDatabase,
			Applicability: GateAlways(),
			Severity:      SeverityError,
			Probe:         ProbeRef{ID: probe.InvalidIndexesProbe, Kind: ProbeRows},
		},
		{
			ID:            "T-3",
			Title:         "old source only",
			Section:       SectionEngineInternal,
			Scope:         ScopePerDatabase,
			Applicability: GateSourceAtMost(11),
			Severity:      SeverityError,
			Probe:         ProbeRef{ID: probe.TablesWithOIDsProbe, Kind: ProbeRows},
		},
		{
			ID:            "T-4",
			Title:         "fan out",
			Section:       SectionAuroraRDS,
			Scope:         ScopePerDatabasePerTarget,
			Applicability: GateAlways(),
			Severity:      SeverityWarning,
			Probe:         ProbeRef{ID: probe.ExtensionInstalledProbe, Kind: ProbeScalar},
			Targets:       []string{"pglogical", "pg_repack"},
		},
	}
}

func runEngine(t *testing.T, client *fakeClient, target int, blueGreen bool) *Session {
	t.Helper()
	engine := NewEngine(testCatalog(), client, Options{Workers: 3})
	session, err := engine.Run(context.Background(), target, blueGreen)
	require.NoError(t, err)
	return session
}

func TestEngineCleanCluster(t *testing.T) {
	client := newFakeClient("app")
	session := runEngine(t, client, 16, false)

	assert.Equal(t, 13, session.SourceVersion)
	assert.Equal(t, "13.4", session.SourceVersionText)
	assert.Equal(t, []string{"app"}, session.Databases)
	assert.Equal(t, 0, session.ErrorCount)
	assert.Equal(t, 0, session.WarningCount)
	assert.Empty(t, session.FailedRuleIDs)
	assert.Empty(t, session.WarnedRuleIDs)
	assert.Empty(t, session.UnverifiedRuleIDs)
	require.Len(t, session.Outcomes, 4)

	// Source 13 skips the source<=11 rule, visibly.
	assert.False(t, session.Outcomes[2].Applicable)
	assert.NotEmpty(t, session.Outcomes[2].SkipReason)
	// And the gate skip means its probe never ran.
	assert.False(t, client.called(probeKey("app", probe.TablesWithOIDsProbe)))
}

func TestEngineClusterFinding(t *testing.T) {
	client := newFakeClient("app")
	client.scalars[probeKey("", probe.PreparedTransactionsProbe)] = "2"
	session := runEngine(t, client, 16, false)

	assert.GreaterOrEqual(t, session.ErrorCount, 1)
	assert.Equal(t, []string{"T-1"}, session.FailedRuleIDs)
	require.Len(t, session.Outcomes[0].Findings, 1)
	assert.Empty(t, session.Outcomes[0].Findings[0].Database)
}

func TestEngineOutcomesStayInCatalogOrder(t *testing.T) {
	client := newFakeClient("app", "crm", "erp")
	session := runEngine(t, client, 16, false)

	require.Len(t, session.Outcomes, 4)
	for i, id := range []string{"T-1", "T-2", "T-3", "T-4"} {
		assert.Equal(t, id, session.Outcomes[i].RuleID)
	}
}

func TestEngineProbeFailureIsolation(t *testing.T) {
	client := newFakeClient("app", "crm")
	client.errs[probeKey("app", probe.InvalidIndexesProbe)] = errors.New("connection refused")
	client.rowsets[probeKey("crm", probe.InvalidIndexesProbe)] = []probe.Row{{"public", "bad_idx"}}
	session := runEngine(t, client, 16, false)

	// The failing database did not stop the sibling probe.
	assert.True(t, client.called(probeKey("crm", probe.InvalidIndexesProbe)))

	outcome := session.Outcomes[1]
	require.Len(t, outcome.ProbeErrors, 1)
	assert.Equal(t, "app", outcome.ProbeErrors[0].Database)
	require.Len(t, outcome.Findings, 1)
	assert.Equal(t, "crm", outcome.Findings[0].Database)

	// The probe error is unverified, not an error: only crm's finding counts.
	assert.Equal(t, 1, session.ErrorCount)
	assert.Equal(t, []string{"T-2"}, session.FailedRuleIDs)
	assert.Equal(t, []string{"T-2"}, session.UnverifiedRuleIDs)
}

func TestEngineFanOutDedup(t *testing.T) {
	client := newFakeClient("app", "crm")
	client.scalars[probeKey("app", probe.ExtensionInstalledProbe, "pglogical")] = "2.4.1"
	client.scalars[probeKey("app", probe.ExtensionInstalledProbe, "pg_repack")] = "1.4.8"
	client.scalars[probeKey("crm", probe.ExtensionInstalledProbe, "pglogical")] = "2.4.1"
	session := runEngine(t, client, 16, false)

	// Three findings, one rule id in the warned list.
	assert.Equal(t, 3, session.WarningCount)
	assert.Equal(t, []string{"T-4"}, session.WarnedRuleIDs)

	outcome := session.Outcomes[3]
	require.Len(t, outcome.Findings, 3)
	// Deterministic order by (database, target).
	assert.Equal(t, "pg_repack", outcome.Findings[0].Target)
	assert.Equal(t, "pglogical", outcome.Findings[1].Target)
	assert.Equal(t, "crm", outcome.Findings[2].Database)
}

// Running twice against an unmodified cluster yields identical results;
// probe completion order must not leak into the report.
func TestEngineIdempotent(t *testing.T) {
	setup := func() *fakeClient {
		client := newFakeClient("app", "crm", "erp")
		client.scalars[probeKey("", probe.PreparedTransactionsProbe)] = "1"
		client.rowsets[probeKey("crm", probe.InvalidIndexesProbe)] = []probe.Row{{"public", "bad_idx"}}
		client.scalars[probeKey("erp", probe.ExtensionInstalledProbe, "pglogical")] = "2.4.1"
		return client
	}

	first := runEngine(t, setup(), 16, false)
	second := runEngine(t, setup(), 16, false)

	assert.Equal(t, first.ErrorCount, second.ErrorCount)
	assert.Equal(t, first.WarningCount, second.WarningCount)
	assert.Equal(t, first.FailedRuleIDs, second.FailedRuleIDs)
	assert.Equal(t, first.WarnedRuleIDs, second.WarnedRuleIDs)
	require.Equal(t, len(first.Outcomes), len(second.Outcomes))
	for i := range first.Outcomes {
		assert.Equal(t, first.Outcomes[i].Findings, second.Outcomes[i].Findings)
	}
}

func TestEngineFatalOnVersionDetection(t *testing.T) {
	client := newFakeClient("app")
	client.errs["setting|server_version_num"] = errors.New("connection refused")
	engine := NewEngine(testCatalog(), client, Options{})

	_, err := engine.Run(context.Background(), 16, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detect source version")
}

func TestEngineFatalOnEnumeration(t *testing.T) {
	client := newFakeClient("app")
	client.errs["list-databases"] = errors.New("connection refused")
	engine := NewEngine(testCatalog(), client, Options{})

	_, err := engine.Run(context.Background(), 16, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enumerate databases")
}

func TestEngineRejectedDatabaseNeverProbed(t *testing.T) {
	client := newFakeClient("app", "bad;name")
	session := runEngine(t, client, 16, false)

	assert.Equal(t, []string{"app"}, session.Databases)
	assert.Equal(t, []string{"bad;name"}, session.RejectedDatabases)
	assert.False(t, client.called(probeKey("bad;name", probe.InvalidIndexesProbe)))
}

func TestMajorFromVersionNum(t *testing.T) {
	major, err := MajorFromVersionNum("130004")
	require.NoError(t, err)
	assert.Equal(t, 13, major)

	major, err = MajorFromVersionNum("160001")
	require.NoError(t, err)
	assert.Equal(t, 16, major)

	_, err = MajorFromVersionNum("not-a-number")
	assert.Error(t, err)

	_, err = MajorFromVersionNum("90624")
	assert.Error(t, err, "pre-10 servers are out of scope")
}
