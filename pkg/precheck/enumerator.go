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

	"github.com/pgtools/pg-upgrade-precheck/pkg/probe"
)

// systemDatabases are never probed.
var systemDatabases = map[string]struct{}{
	"template0": {},
	"template1": {},
	"rdsadmin":  {},
}

// EnumerateDatabases turns the raw database list into the ordered,
// deduplicated set of names to probe. System databases and names in
// extraExclude are dropped silently; names failing the identifier allowlist
// are returned in rejected so the report can surface them as warnings.
// A rejected name never reaches any probe template.
func EnumerateDatabases(raw []string, extraExclude []string) (databases, rejected []string) {
	excluded := make(map[string]struct{}, len(extraExclude))
	for _, name := range extraExclude {
		excluded[name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(raw))
	for _, name := range raw {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		if _, sys := systemDatabases[name]; sys {
			continue
		}
		if _, skip := excluded[name]; skip {
			continue
		}
		if !probe.ValidIdentifier(name) {
			rejected = append(rejected, name)
			continue
		}
		databases = append(databases, name)
	}

	sort.Strings(databases)
	sort.Strings(rejected)
	return databases, rejected
}
