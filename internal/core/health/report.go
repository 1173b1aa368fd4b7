// Package health contains pure functions for building and aggregating
// deployment health reports.
// This is part of the Functional Core - all functions are pure with no I/O.
package health

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Check Results
// =============================================================================

// CheckResult is the outcome of one health probe.
type CheckResult struct {
	Name     string
	Required bool
	OK       bool
	Latency  time.Duration
	Err      string
}

// Report aggregates individual check results for one verification pass.
// Aggregate status is the logical AND of all required checks.
type Report struct {
	Checks    []CheckResult
	Retries   int
	CheckedAt time.Time
}

// Pass reports aggregate health: true only if every required check passed.
// An empty report does not pass - no evidence is not good news.
func (r *Report) Pass() bool {
	if len(r.Checks) == 0 {
		return false
	}
	for _, c := range r.Checks {
		if c.Required && !c.OK {
			return false
		}
	}
	return true
}

// Failed returns the names of required checks that failed.
func (r *Report) Failed() []string {
	var names []string
	for _, c := range r.Checks {
		if c.Required && !c.OK {
			names = append(names, c.Name)
		}
	}
	return names
}

// Add appends a check result.
func (r *Report) Add(c CheckResult) {
	r.Checks = append(r.Checks, c)
}

// Summary renders a one-line-per-check description for operator output.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, c := range r.Checks {
		status := "ok"
		if !c.OK {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%-28s %s", c.Name, status)
		if c.OK {
			fmt.Fprintf(&b, "  (%s)", c.Latency.Round(time.Millisecond))
		} else if c.Err != "" {
			fmt.Fprintf(&b, "  %s", c.Err)
		}
		b.WriteByte('\n')
	}
	if r.Pass() {
		b.WriteString("aggregate: pass\n")
	} else {
		fmt.Fprintf(&b, "aggregate: FAIL (%s)\n", strings.Join(r.Failed(), ", "))
	}
	return b.String()
}
