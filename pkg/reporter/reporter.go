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

// Package reporter renders a sealed precheck session as a structured
// report and derives the process exit status.
package reporter

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pgtools/pg-upgrade-precheck/pkg/precheck"
)

// ReportFormat represents the format of the report.
type ReportFormat string

const (
	// TextFormat represents plain text format.
	TextFormat ReportFormat = "text"
	// JSONFormat represents JSON format.
	JSONFormat ReportFormat = "json"
	// YAMLFormat represents YAML format.
	YAMLFormat ReportFormat = "yaml"
)

// ParseFormat maps a config string to a ReportFormat.
func ParseFormat(s string) (ReportFormat, error) {
	switch ReportFormat(s) {
	case TextFormat, JSONFormat, YAMLFormat:
		return ReportFormat(s), nil
	case "":
		return TextFormat, nil
	}
	return "", fmt.Errorf("unsupported report format: %s", s)
}

// Status is the three-valued-plus rule outcome shown to the operator:
// a skipped rule is visibly skipped, an unverifiable rule is never shown
// as passing.
type Status string

const (
	StatusOK         Status = "ok"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
	StatusWarned     Status = "warned"
	StatusUnverified Status = "unverified"
)

// RuleResult is one rule's rendered outcome.
type RuleResult struct {
	ID          string                `json:"id" yaml:"id"`
	Title       string                `json:"title" yaml:"title"`
	Status      Status                `json:"status" yaml:"status"`
	SkipReason  string                `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`
	Findings    []precheck.Finding    `json:"findings,omitempty" yaml:"findings,omitempty"`
	ProbeErrors []precheck.ProbeError `json:"probe_errors,omitempty" yaml:"probe_errors,omitempty"`
	Remediation string                `json:"remediation,omitempty" yaml:"remediation,omitempty"`

	// columns are the evidence headers, carried for text rendering only.
	columns []string
}

// SectionReport groups rule results under one catalog section.
type SectionReport struct {
	Section precheck.Section `json:"section" yaml:"section"`
	Results []RuleResult     `json:"results" yaml:"results"`
}

// Summary is the closing block of the report.
type Summary struct {
	SourceVersion      int       `json:"source_version" yaml:"source_version"`
	SourceVersionText  string    `json:"source_version_text,omitempty" yaml:"source_version_text,omitempty"`
	TargetVersion      int       `json:"target_version" yaml:"target_version"`
	BlueGreenRequested bool      `json:"blue_green_requested" yaml:"blue_green_requested"`
	DatabaseCount      int       `json:"database_count" yaml:"database_count"`
	Databases          []string  `json:"databases" yaml:"databases"`
	RejectedDatabases  []string  `json:"rejected_databases,omitempty" yaml:"rejected_databases,omitempty"`
	ChecksRun          int       `json:"checks_run" yaml:"checks_run"`
	ChecksSkipped      int       `json:"checks_skipped" yaml:"checks_skipped"`
	ErrorCount         int       `json:"error_count" yaml:"error_count"`
	WarningCount       int       `json:"warning_count" yaml:"warning_count"`
	FailedRuleIDs      []string  `json:"failed_rule_ids" yaml:"failed_rule_ids"`
	WarnedRuleIDs      []string  `json:"warned_rule_ids" yaml:"warned_rule_ids"`
	UnverifiedRuleIDs  []string  `json:"unverified_rule_ids" yaml:"unverified_rule_ids"`
	StartedAt          time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt         time.Time `json:"finished_at" yaml:"finished_at"`
}

// Report is the full structured document.
type Report struct {
	Sections []SectionReport `json:"sections" yaml:"sections"`
	Summary  Summary         `json:"summary" yaml:"summary"`
}

// Build assembles the report view from a sealed session. Outcomes are in
// catalog order by construction, so sections come out deterministic.
func Build(session *precheck.Session, catalog []precheck.Rule) *Report {
	report := &Report{}
	bySection := make(map[precheck.Section]int)

	checksRun := 0
	checksSkipped := 0
	for i, rule := range catalog {
		if i >= len(session.Outcomes) {
			break
		}
		outcome := session.Outcomes[i]

		result := RuleResult{
			ID:          rule.ID,
			Title:       rule.Title,
			Status:      statusOf(outcome),
			SkipReason:  outcome.SkipReason,
			Findings:    outcome.Findings,
			ProbeErrors: outcome.ProbeErrors,
			columns:     rule.Probe.Columns,
		}
		if result.Status == StatusFailed || result.Status == StatusWarned {
			result.Remediation = rule.Remediation
		}
		if result.Status == StatusSkipped {
			checksSkipped++
		} else {
			checksRun++
		}

		idx, ok := bySection[rule.Section]
		if !ok {
			report.Sections = append(report.Sections, SectionReport{Section: rule.Section})
			idx = len(report.Sections) - 1
			bySection[rule.Section] = idx
		}
		report.Sections[idx].Results = append(report.Sections[idx].Results, result)
	}

	report.Summary = Summary{
		SourceVersion:      session.SourceVersion,
		SourceVersionText:  session.SourceVersionText,
		TargetVersion:      session.TargetVersion,
		BlueGreenRequested: session.BlueGreenRequested,
		DatabaseCount:      len(session.Databases),
		Databases:          session.Databases,
		RejectedDatabases:  session.RejectedDatabases,
		ChecksRun:          checksRun,
		ChecksSkipped:      checksSkipped,
		ErrorCount:         session.ErrorCount,
		WarningCount:       session.WarningCount,
		FailedRuleIDs:      session.FailedRuleIDs,
		WarnedRuleIDs:      session.WarnedRuleIDs,
		UnverifiedRuleIDs:  session.UnverifiedRuleIDs,
		StartedAt:          session.StartedAt,
		FinishedAt:         session.FinishedAt,
	}
	return report
}

func statusOf(outcome precheck.RuleOutcome) Status {
	if !outcome.Applicable {
		return StatusSkipped
	}
	var errs, warns int
	for _, f := range outcome.Findings {
		switch f.Severity {
		case precheck.SeverityError:
			errs++
		case precheck.SeverityWarning:
			warns++
		}
	}
	switch {
	case errs > 0:
		return StatusFailed
	case warns > 0:
		return StatusWarned
	case len(outcome.ProbeErrors) > 0:
		return StatusUnverified
	}
	return StatusOK
}

// Reporter is responsible for generating reports.
type Reporter struct {
	format ReportFormat
}

// NewReporter creates a new reporter.
func NewReporter(format ReportFormat) *Reporter {
	return &Reporter{format: format}
}

// Generate renders the session in the reporter's format.
func (r *Reporter) Generate(session *precheck.Session, catalog []precheck.Rule) ([]byte, error) {
	report := Build(session, catalog)
	switch r.format {
	case JSONFormat:
		return json.MarshalIndent(report, "", "  ")
	case YAMLFormat:
		return yaml.Marshal(report)
	case TextFormat:
		return renderText(report), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", r.format)
	}
}

// maxExitStatus keeps clear of shell-special exit codes (126, 127,
// 128+signal).
const maxExitStatus = 125

// ExitStatus is the process exit status for a sealed session: the error
// count, clamped to the host's usable range. Zero means every executed
// check passed.
func ExitStatus(session *precheck.Session) int {
	if session.ErrorCount > maxExitStatus {
		return maxExitStatus
	}
	return session.ErrorCount
}
