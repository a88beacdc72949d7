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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pgtools/pg-upgrade-precheck/pkg/config"
	"github.com/pgtools/pg-upgrade-precheck/pkg/precheck"
	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
	"github.com/pgtools/pg-upgrade-precheck/pkg/reporter"
	"github.com/pgtools/pg-upgrade-precheck/pkg/rules"
)

// supportedTargets is the closed set of upgradable major versions.
var supportedTargets = map[int]struct{}{
	11: {}, 12: {}, 13: {}, 14: {}, 15: {}, 16: {}, 17: {},
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "pg-upgrade-precheck <host> <port> <user> <target-version>",
		Short: "Check a PostgreSQL cluster for major version upgrade blockers",
		Long: `pg-upgrade-precheck evaluates a running PostgreSQL instance against a
catalog of version-gated compatibility rules before a major version upgrade.
It only reads catalogs and settings; nothing is ever modified.

The exit status equals the number of blocking errors found (0 means every
executed check passed). The password is read from an interactive prompt.`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pg-upgrade-precheck: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	host := strings.TrimSpace(args[0])
	if host == "" {
		return fmt.Errorf("host must not be empty")
	}
	port, err := strconv.Atoi(args[1])
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", args[1])
	}
	user := strings.TrimSpace(args[2])
	if user == "" {
		return fmt.Errorf("user must not be empty")
	}
	target, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid target version %q", args[3])
	}
	if _, ok := supportedTargets[target]; !ok {
		return fmt.Errorf("target version %d is not supported (11 through 17)", target)
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	format, err := reporter.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	password, err := promptPassword(stdin, user)
	if err != nil {
		return err
	}
	blueGreen, err := promptYesNo(stdin, "Run blue/green deployment checks? [y/n]: ")
	if err != nil {
		return err
	}

	client := probe.NewPGXClient(probe.ConnConfig{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
	})
	defer client.Close()

	engine := precheck.NewEngine(rules.Catalog(), client, precheck.Options{
		Workers:          cfg.Workers,
		ProbeTimeout:     cfg.ProbeTimeout(),
		ExcludeDatabases: cfg.ExcludeDatabases,
	})

	session, err := engine.Run(cmd.Context(), target, blueGreen)
	if err != nil {
		return err
	}

	output, err := reporter.NewReporter(format).Generate(session, rules.Catalog())
	if err != nil {
		return err
	}
	if cfg.Output != "" {
		if err := os.WriteFile(cfg.Output, output, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", cfg.Output)
	} else {
		fmt.Print(string(output))
	}

	os.Exit(reporter.ExitStatus(session))
	return nil
}

// promptPassword reads the password without echo when stdin is a terminal,
// and as a plain line otherwise (piped input in scripts and tests). The
// password never appears in arguments or logs.
func promptPassword(stdin *bufio.Reader, user string) (string, error) {
	fmt.Fprintf(os.Stderr, "Password for %s: ", user)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptYesNo keeps asking until it gets a yes or a no; an invalid answer
// is re-prompted, never defaulted.
func promptYesNo(stdin *bufio.Reader, prompt string) (bool, error) {
	for {
		fmt.Fprint(os.Stderr, prompt)
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return false, fmt.Errorf("read answer: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(os.Stderr, "Please answer yes or no.")
	}
}
