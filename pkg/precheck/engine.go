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
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
)

// Options tunes engine execution.
type Options struct {
	// Workers bounds the number of concurrent probe calls.
	Workers int
	// ProbeTimeout bounds each individual probe call.
	ProbeTimeout time.Duration
	// ExcludeDatabases are additional database names to skip.
	ExcludeDatabases []string
}

const (
	defaultWorkers      = 4
	defaultProbeTimeout = 10 * time.Second
)

// Engine runs the catalog against a cluster and produces a sealed session.
type Engine struct {
	catalog []Rule
	client  probe.Client
	opts    Options
}

// NewEngine creates an engine over an immutable catalog.
func NewEngine(catalog []Rule, client probe.Client, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	return &Engine{
		catalog: append([]Rule(nil), catalog...),
		client:  client,
		opts:    opts,
	}
}

// unitResult is what one worker hands to the reducer.
type unitResult struct {
	ruleIndex int
	findings  []Finding
	probeErr  *ProbeError
}

// Run detects the source version, enumerates databases, executes every
// applicable rule across its scope units, and returns the sealed session.
// A failure before any rule runs is fatal; a failure inside a rule's probe
// degrades only that scope unit.
func (e *Engine) Run(ctx context.Context, targetVersion int, blueGreenRequested bool) (*Session, error) {
	source, sourceText, err := e.detectSourceVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect source version: %w", err)
	}

	raw, err := e.client.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate databases: %w", err)
	}
	databases, rejected := EnumerateDatabases(raw, e.opts.ExcludeDatabases)

	session := newSession(source, sourceText, targetVersion, blueGreenRequested, databases, rejected)

	// Gating is cheap and sequential; only probe execution is parallel.
	outcomes := make([]RuleOutcome, len(e.catalog))
	var items []workItem
	for i, rule := range e.catalog {
		ok, reason := Applicable(rule, source, targetVersion, blueGreenRequested)
		outcomes[i] = RuleOutcome{RuleID: rule.ID, Applicable: ok, SkipReason: reason}
		if ok {
			items = append(items, expand(i, rule, databases)...)
		}
	}

	executor := NewExecutor(e.client, e.opts.ProbeTimeout)
	results := make(chan unitResult, len(items))

	var group errgroup.Group
	group.SetLimit(e.opts.Workers)
	for _, item := range items {
		item := item
		group.Go(func() error {
			findings, probeErr := executor.RunUnit(ctx, e.catalog[item.ruleIndex], item, len(databases))
			results <- unitResult{ruleIndex: item.ruleIndex, findings: findings, probeErr: probeErr}
			return nil
		})
	}
	go func() {
		// Workers never return errors; probe failures travel as results.
		_ = group.Wait()
		close(results)
	}()

	// Single reducer: the only writer of the shared outcome slices.
	for res := range results {
		outcome := &outcomes[res.ruleIndex]
		outcome.Findings = append(outcome.Findings, res.findings...)
		if res.probeErr != nil {
			outcome.ProbeErrors = append(outcome.ProbeErrors, *res.probeErr)
		}
	}

	for _, outcome := range outcomes {
		session.accumulate(outcome)
	}
	session.seal()
	return session, nil
}

// detectSourceVersion reads the server's major version, failing fast when
// the cluster is unreachable: without a version there is nothing to gate.
func (e *Engine) detectSourceVersion(ctx context.Context) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ProbeTimeout)
	defer cancel()

	num, err := e.client.ShowSetting(ctx, "server_version_num")
	if err != nil {
		return 0, "", err
	}
	major, err := MajorFromVersionNum(num)
	if err != nil {
		return 0, "", err
	}
	text, err := e.client.ShowSetting(ctx, "server_version")
	if err != nil {
		return 0, "", err
	}
	return major, text, nil
}

// MajorFromVersionNum derives the major version from server_version_num,
// e.g. 130004 -> 13.
func MajorFromVersionNum(num string) (int, error) {
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("unexpected server_version_num %q: %w", num, err)
	}
	major := n / 10000
	if major < 10 {
		return 0, fmt.Errorf("unsupported server version %q", num)
	}
	return major, nil
}
