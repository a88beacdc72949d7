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
	"time"

	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
)

// workItem is one indivisible probe target: a whole cluster, a single
// database, or a (database, named object) pair.
type workItem struct {
	ruleIndex int
	database  string
	target    string
}

// expand fans a rule out into its scope units. The rule must already have
// been judged applicable.
func expand(ruleIndex int, rule Rule, databases []string) []workItem {
	switch rule.Scope {
	case ScopeCluster:
		return []workItem{{ruleIndex: ruleIndex}}
	case ScopePerDatabase:
		items := make([]workItem, 0, len(databases))
		for _, db := range databases {
			items = append(items, workItem{ruleIndex: ruleIndex, database: db})
		}
		return items
	case ScopePerDatabasePerTarget:
		items := make([]workItem, 0, len(databases)*len(rule.Targets))
		for _, db := range databases {
			for _, target := range rule.Targets {
				items = append(items, workItem{ruleIndex: ruleIndex, database: db, target: target})
			}
		}
		return items
	}
	return nil
}

// Executor runs a single scope unit's probe. Probe failures come back as a
// ProbeError, never as a finding: "could not verify" must stay distinct
// from "verified clean".
type Executor struct {
	client  probe.Client
	timeout time.Duration
}

// NewExecutor creates an executor that bounds every probe call by timeout.
func NewExecutor(client probe.Client, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{client: client, timeout: timeout}
}

// RunUnit executes one scope unit and returns its findings, or the probe
// error that prevented verification. Failures never abort sibling units.
func (x *Executor) RunUnit(ctx context.Context, rule Rule, item workItem, databaseCount int) ([]Finding, *ProbeError) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	if rule.Check != nil {
		// A check may return findings alongside an error: comparisons that
		// completed before a read failure still count, the failure marks
		// the rule unverified on top of them.
		findings, err := rule.Check(ctx, x.client, databaseCount)
		for i := range findings {
			if findings[i].RuleID == "" {
				findings[i].RuleID = rule.ID
			}
			if findings[i].Severity == "" {
				findings[i].Severity = rule.Severity
			}
		}
		if err != nil {
			return findings, x.probeError(rule, item, err)
		}
		return findings, nil
	}

	var args []string
	if item.target != "" {
		args = []string{item.target}
	}

	switch rule.Probe.Kind {
	case ProbeScalar:
		value, err := x.client.ScalarQuery(ctx, item.database, rule.Probe.ID, args...)
		if err != nil {
			return nil, x.probeError(rule, item, err)
		}
		if value == "" || value == "0" {
			return nil, nil
		}
		return []Finding{{
			RuleID:   rule.ID,
			Database: item.database,
			Target:   item.target,
			Severity: rule.Severity,
			Summary:  unitSummary(rule.Title, item, fmt.Sprintf("value %s", value)),
		}}, nil

	case ProbeRows:
		rows, err := x.client.RowsQuery(ctx, item.database, rule.Probe.ID, args...)
		if err != nil {
			return nil, x.probeError(rule, item, err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return []Finding{{
			RuleID:   rule.ID,
			Database: item.database,
			Target:   item.target,
			Severity: rule.Severity,
			Summary:  unitSummary(rule.Title, item, fmt.Sprintf("%d object(s)", len(rows))),
			Detail:   rows,
		}}, nil
	}

	return nil, x.probeError(rule, item, fmt.Errorf("rule %s has no probe", rule.ID))
}

func (x *Executor) probeError(rule Rule, item workItem, err error) *ProbeError {
	return &ProbeError{
		RuleID:   rule.ID,
		Database: item.database,
		Target:   item.target,
		Message:  err.Error(),
	}
}

// unitSummary carries the scope unit identifiers into the finding text.
func unitSummary(title string, item workItem, detail string) string {
	label := ""
	switch {
	case item.database != "" && item.target != "":
		label = fmt.Sprintf(" [database %s, %s]", item.database, item.target)
	case item.database != "":
		label = fmt.Sprintf(" [database %s]", item.database)
	case item.target != "":
		label = fmt.Sprintf(" [%s]", item.target)
	}
	return fmt.Sprintf("%s%s: %s", title, label, detail)
}
