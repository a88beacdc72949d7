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

package reporter

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/pgtools/pg-upgrade-precheck/pkg/precheck"
)

var sectionTitles = map[precheck.Section]string{
	precheck.SectionAuroraRDS:      "AURORA/RDS PRECHECK",
	precheck.SectionEngineInternal: "ENGINE-INTERNAL CHECKS",
	precheck.SectionBlueGreen:      "BLUE/GREEN DEPLOYMENT CHECKS",
}

var (
	failTag       = color.New(color.FgRed, color.Bold).Sprint("[FAIL]")
	warnTag       = color.New(color.FgYellow).Sprint("[WARN]")
	okTag         = color.New(color.FgGreen).Sprint("[ OK ]")
	skipTag       = "[SKIP]"
	unverifiedTag = color.New(color.FgYellow).Sprint("[????]")
)

func statusTag(status Status) string {
	switch status {
	case StatusFailed:
		return failTag
	case StatusWarned:
		return warnTag
	case StatusSkipped:
		return skipTag
	case StatusUnverified:
		return unverifiedTag
	default:
		return okTag
	}
}

// renderText produces the console report: one block per catalog section,
// then the summary.
func renderText(report *Report) []byte {
	var sb strings.Builder

	sb.WriteString("=== POSTGRESQL MAJOR VERSION UPGRADE PRECHECK ===\n\n")

	for _, section := range report.Sections {
		title, ok := sectionTitles[section.Section]
		if !ok {
			title = strings.ToUpper(string(section.Section))
		}
		sb.WriteString(title + "\n")
		sb.WriteString(strings.Repeat("-", len(title)) + "\n")

		for _, result := range section.Results {
			sb.WriteString(fmt.Sprintf("%s %s %s\n", statusTag(result.Status), result.ID, result.Title))
			if result.Status == StatusSkipped {
				sb.WriteString(fmt.Sprintf("       skipped: %s\n", result.SkipReason))
				continue
			}
			for _, finding := range result.Findings {
				sb.WriteString(fmt.Sprintf("       %s\n", finding.Summary))
				writeEvidence(&sb, result.columns, finding)
			}
			for _, perr := range result.ProbeErrors {
				sb.WriteString(fmt.Sprintf("       could not verify%s: %s\n", unitRef(perr), perr.Message))
			}
			if result.Remediation != "" {
				sb.WriteString(fmt.Sprintf("       remediation: %s\n", result.Remediation))
			}
		}
		sb.WriteString("\n")
	}

	writeSummary(&sb, report.Summary)
	return []byte(sb.String())
}

func unitRef(perr precheck.ProbeError) string {
	switch {
	case perr.Database != "" && perr.Target != "":
		return fmt.Sprintf(" (database %s, %s)", perr.Database, perr.Target)
	case perr.Database != "":
		return fmt.Sprintf(" (database %s)", perr.Database)
	case perr.Target != "":
		return fmt.Sprintf(" (%s)", perr.Target)
	}
	return ""
}

func writeEvidence(sb *strings.Builder, columns []string, finding precheck.Finding) {
	if len(finding.Detail) == 0 {
		return
	}
	table := tablewriter.NewWriter(sb)
	if len(columns) > 0 {
		table.SetHeader(columns)
	}
	table.SetBorder(false)
	for _, row := range finding.Detail {
		table.Append(row)
	}
	table.Render()
}

func writeSummary(sb *strings.Builder, summary Summary) {
	sb.WriteString("SUMMARY\n")
	sb.WriteString("-------\n")
	sb.WriteString(fmt.Sprintf("  Source version:  %d (%s)\n", summary.SourceVersion, summary.SourceVersionText))
	sb.WriteString(fmt.Sprintf("  Target version:  %d\n", summary.TargetVersion))
	mode := "in-place"
	if summary.BlueGreenRequested {
		mode = "blue/green"
	}
	sb.WriteString(fmt.Sprintf("  Deployment mode: %s\n", mode))
	sb.WriteString(fmt.Sprintf("  Databases:       %d (%s)\n", summary.DatabaseCount, strings.Join(summary.Databases, ", ")))
	for _, name := range summary.RejectedDatabases {
		sb.WriteString(fmt.Sprintf("  %s database name %q fails the identifier allowlist and was not checked\n",
			warnTag, name))
	}
	sb.WriteString(fmt.Sprintf("  Started:         %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("  Finished:        %s\n", summary.FinishedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString("\n")

	checks := summary.ChecksRun
	sb.WriteString(fmt.Sprintf("  %d error(s) across %d check(s)", summary.ErrorCount, checks))
	if len(summary.FailedRuleIDs) > 0 {
		sb.WriteString(fmt.Sprintf("  [%s]", strings.Join(summary.FailedRuleIDs, ", ")))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  %d warning(s) across %d check(s)", summary.WarningCount, checks))
	if len(summary.WarnedRuleIDs) > 0 {
		sb.WriteString(fmt.Sprintf("  [%s]", strings.Join(summary.WarnedRuleIDs, ", ")))
	}
	sb.WriteString("\n")
	if len(summary.UnverifiedRuleIDs) > 0 {
		sb.WriteString(fmt.Sprintf("  could not verify %d check(s)  [%s]\n",
			len(summary.UnverifiedRuleIDs), strings.Join(summary.UnverifiedRuleIDs, ", ")))
	}
	sb.WriteString(fmt.Sprintf("  %d check(s) skipped for this version pair\n", summary.ChecksSkipped))
}
