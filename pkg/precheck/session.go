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
	"sort"
	"time"
)

// Session is the aggregate result of one precheck run. Outcomes are stored
// in catalog order regardless of probe completion order; the counters and
// id lists are filled by a single reducer, never concurrently.
type Session struct {
	SourceVersion      int      `json:"source_version"`
	SourceVersionText  string   `json:"source_version_text,omitempty"`
	TargetVersion      int      `json:"target_version"`
	BlueGreenRequested bool     `json:"blue_green_requested"`
	Databases          []string `json:"databases"`
	// RejectedDatabases were dropped by the identifier allowlist and are
	// reported as warnings without ever being probed.
	RejectedDatabases []string `json:"rejected_databases,omitempty"`

	Outcomes []RuleOutcome `json:"outcomes"`

	ErrorCount        int      `json:"error_count"`
	WarningCount      int      `json:"warning_count"`
	FailedRuleIDs     []string `json:"failed_rule_ids"`
	WarnedRuleIDs     []string `json:"warned_rule_ids"`
	UnverifiedRuleIDs []string `json:"unverified_rule_ids"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func newSession(source int, sourceText string, target int, blueGreen bool, databases, rejected []string) *Session {
	return &Session{
		SourceVersion:      source,
		SourceVersionText:  sourceText,
		TargetVersion:      target,
		BlueGreenRequested: blueGreen,
		Databases:          databases,
		RejectedDatabases:  rejected,
		FailedRuleIDs:      []string{},
		WarnedRuleIDs:      []string{},
		UnverifiedRuleIDs:  []string{},
		StartedAt:          time.Now(),
	}
}

// accumulate folds one outcome into the session. Outcomes must arrive in
// catalog order; a rule id enters each list at most once no matter how many
// scope units produced findings under it.
func (s *Session) accumulate(outcome RuleOutcome) {
	sortOutcome(&outcome)
	s.Outcomes = append(s.Outcomes, outcome)

	var errs, warns int
	for _, f := range outcome.Findings {
		switch f.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warns++
		}
	}
	s.ErrorCount += errs
	s.WarningCount += warns
	if errs > 0 {
		s.FailedRuleIDs = appendUnique(s.FailedRuleIDs, outcome.RuleID)
	}
	if warns > 0 {
		s.WarnedRuleIDs = appendUnique(s.WarnedRuleIDs, outcome.RuleID)
	}
	if len(outcome.ProbeErrors) > 0 {
		s.UnverifiedRuleIDs = appendUnique(s.UnverifiedRuleIDs, outcome.RuleID)
	}
}

// seal freezes the session. Counts and lists do not change afterwards.
func (s *Session) seal() {
	s.FinishedAt = time.Now()
}

// sortOutcome restores a deterministic order inside one outcome: workers
// complete in arbitrary order, the report must not.
func sortOutcome(outcome *RuleOutcome) {
	sort.Slice(outcome.Findings, func(i, j int) bool {
		a, b := outcome.Findings[i], outcome.Findings[j]
		if a.Database != b.Database {
			return a.Database < b.Database
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Summary < b.Summary
	})
	sort.Slice(outcome.ProbeErrors, func(i, j int) bool {
		a, b := outcome.ProbeErrors[i], outcome.ProbeErrors[j]
		if a.Database != b.Database {
			return a.Database < b.Database
		}
		return a.Target < b.Target
	})
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
