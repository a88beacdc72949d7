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

import "fmt"

// Applicable decides whether a rule runs for the given version pair and
// deployment mode. A rule without an explicit gate always applies. The
// decision is total and side-effect-free.
func Applicable(rule Rule, sourceVersion, targetVersion int, blueGreenRequested bool) (bool, string) {
	if rule.Applicability == nil {
		return true, ""
	}
	return rule.Applicability(sourceVersion, targetVersion, blueGreenRequested)
}

// GateAlways applies the rule to every version pair.
func GateAlways() Applicability {
	return func(int, int, bool) (bool, string) {
		return true, ""
	}
}

// GateSourceAtMost applies the rule only when the source major version is
// at most max.
func GateSourceAtMost(max int) Applicability {
	return func(source, _ int, _ bool) (bool, string) {
		if source > max {
			return false, fmt.Sprintf("source version %d is newer than %d", source, max)
		}
		return true, ""
	}
}

// GateTargetAtLeast applies the rule only when the target major version is
// at least min.
func GateTargetAtLeast(min int) Applicability {
	return func(_, target int, _ bool) (bool, string) {
		if target < min {
			return false, fmt.Sprintf("target version %d is older than %d", target, min)
		}
		return true, ""
	}
}

// GateWindow applies the rule only when source <= sourceMax and
// target >= targetMin.
func GateWindow(sourceMax, targetMin int) Applicability {
	return func(source, target int, _ bool) (bool, string) {
		if source > sourceMax {
			return false, fmt.Sprintf("source version %d is newer than %d", source, sourceMax)
		}
		if target < targetMin {
			return false, fmt.Sprintf("target version %d is older than %d", target, targetMin)
		}
		return true, ""
	}
}

// GateBlueGreen applies the rule only when a blue/green deployment was
// requested and the pair is an actual upgrade.
func GateBlueGreen() Applicability {
	return func(source, target int, blueGreen bool) (bool, string) {
		if !blueGreen {
			return false, "blue/green deployment not requested"
		}
		if target <= source {
			return false, fmt.Sprintf("target version %d is not newer than source version %d", target, source)
		}
		return true, ""
	}
}
