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

// Package precheck implements the upgrade precheck rule engine: the rule
// model, version gating, database enumeration, scope fan-out, and the
// aggregation of probe outcomes into a deterministic session report.
package precheck

import (
	"context"

	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
)

// Severity classifies a finding.
type Severity string

const (
	// SeverityError marks a finding that blocks the upgrade.
	SeverityError Severity = "error"
	// SeverityWarning marks an advisory finding.
	SeverityWarning Severity = "warning"
)

// Section groups rules in the report.
type Section string

const (
	// SectionAuroraRDS covers Aurora/RDS specific prechecks.
	SectionAuroraRDS Section = "aurora-rds-precheck"
	// SectionEngineInternal mirrors pg_upgrade's own compatibility checks.
	SectionEngineInternal Section = "engine-internal"
	// SectionBlueGreen covers blue/green deployment readiness.
	SectionBlueGreen Section = "blue-green"
)

// Scope describes how a rule fans out over probe targets.
type Scope string

const (
	// ScopeCluster runs one probe against a cluster-wide catalog.
	ScopeCluster Scope = "cluster"
	// ScopePerDatabase runs one probe per enumerated database.
	ScopePerDatabase Scope = "per-database"
	// ScopePerDatabasePerTarget runs one probe per database per entry in
	// the rule's fixed target list (extension or type names).
	ScopePerDatabasePerTarget Scope = "per-database-per-target"
)

// ProbeKind selects how a probe result is interpreted.
type ProbeKind string

const (
	// ProbeScalar treats an empty or "0" result as OK, anything else as a
	// finding.
	ProbeScalar ProbeKind = "scalar"
	// ProbeRows treats an empty row set as OK, anything else as a finding
	// carrying the rows as evidence.
	ProbeRows ProbeKind = "rows"
)

// ProbeRef names a fixed probe template and how to read its result.
type ProbeRef struct {
	ID      string
	Kind    ProbeKind
	// Columns are the evidence headers for rows probes.
	Columns []string
}

// Applicability is a pure predicate deciding whether a rule runs for a
// (source, target, blueGreen) triple. It returns a skip reason when the
// rule does not apply. It must never depend on probe results.
type Applicability func(sourceVersion, targetVersion int, blueGreenRequested bool) (bool, string)

// ClusterCheck is an imperative cluster-scope check for rules whose logic
// is richer than a single probe (the blue/green capacity rule compares four
// live settings against derived minimums). It returns findings, or an error
// when the cluster could not be interrogated.
type ClusterCheck func(ctx context.Context, client probe.Client, databaseCount int) ([]Finding, error)

// Rule is one immutable catalog entry. Rules are defined at process start
// and shared across workers without synchronization.
type Rule struct {
	ID            string
	Title         string
	Section       Section
	Scope         Scope
	Applicability Applicability
	Severity      Severity
	Probe         ProbeRef
	// Targets is the fixed inner fan-out list for ScopePerDatabasePerTarget.
	Targets     []string
	Check       ClusterCheck
	Remediation string
}

// Finding is one concrete, non-empty signal from a probe.
type Finding struct {
	RuleID   string      `json:"rule_id"`
	Database string      `json:"database,omitempty"`
	Target   string      `json:"target,omitempty"`
	Severity Severity    `json:"severity"`
	Summary  string      `json:"summary"`
	Detail   []probe.Row `json:"detail,omitempty"`
}

// ProbeError records a scope unit that could not be verified. It is never a
// finding and never counts toward the error or warning totals.
type ProbeError struct {
	RuleID   string `json:"rule_id"`
	Database string `json:"database,omitempty"`
	Target   string `json:"target,omitempty"`
	Message  string `json:"message"`
}

// RuleOutcome is the result of running one rule across its full scope.
type RuleOutcome struct {
	RuleID      string       `json:"rule_id"`
	Applicable  bool         `json:"applicable"`
	SkipReason  string       `json:"skip_reason,omitempty"`
	Findings    []Finding    `json:"findings,omitempty"`
	ProbeErrors []ProbeError `json:"probe_errors,omitempty"`
}
