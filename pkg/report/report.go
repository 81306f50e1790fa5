// Package report formats and persists the outcome of one harness run: the
// test id, its start and end time, any run error, and the PASS/FAIL of
// every checklist check.
package report

import (
	"fmt"
	"strings"
	"time"
)

// CheckOutcome is one checklist check's name, args, and result, ready for
// display as "Check <name> <args> PASS|FAIL" (spec §7).
type CheckOutcome struct {
	Name    string `json:"name"`
	Args    string `json:"args,omitempty"`
	Success bool   `json:"success"`
	Info    string `json:"info,omitempty"`
}

// Run is the full record of one harness invocation.
type Run struct {
	TestID    string         `json:"test_id"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Success   bool           `json:"success"`
	Checks    []CheckOutcome `json:"checks"`
	Error     string         `json:"error,omitempty"`
}

// Duration is how long the run took, wall clock.
func (r *Run) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Text renders the run as the plain-text summary printed to the console.
func Text(r *Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "test id: %s\n", r.TestID)
	for _, c := range r.Checks {
		status := "PASS"
		if !c.Success {
			status = "FAIL"
		}
		args := c.Args
		if args == "" {
			args = "{}"
		}
		if c.Info != "" {
			fmt.Fprintf(&b, "Check %s %s %s (%s)\n", c.Name, args, status, c.Info)
		} else {
			fmt.Fprintf(&b, "Check %s %s %s\n", c.Name, args, status)
		}
	}
	overall := "PASS"
	if !r.Success {
		overall = "FAIL"
	}
	fmt.Fprintf(&b, "result: %s (%s)\n", overall, r.Duration())
	return b.String()
}
