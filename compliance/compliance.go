// Package compliance holds the report types shared by the validators and
// the before/after comparison of two reports.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
)

// Check is the outcome of one checklist requirement.
type Check struct {
	ID          string   `json:"id"`
	Requirement string   `json:"requirement"`
	Passed      bool     `json:"passed"`
	Reasons     []string `json:"reasons,omitempty"`
}

// Failf records a failure reason.
func (c *Check) Failf(format string, args ...any) {
	c.Passed = false
	c.Reasons = append(c.Reasons, fmt.Sprintf(format, args...))
}

// Report is an ordered checklist result.
type Report struct {
	Standard string  `json:"standard"`
	Checks   []Check `json:"checks"`
}

// Passed reports whether every check passed. An empty report never passes.
func (r Report) Passed() bool {
	return len(r.Checks) > 0 && r.PassCount() == len(r.Checks)
}

func (r Report) PassCount() int {
	n := 0
	for _, c := range r.Checks {
		if c.Passed {
			n++
		}
	}
	return n
}

// Check returns the check with id.
func (r Report) Check(id string) (Check, bool) {
	for _, c := range r.Checks {
		if c.ID == id {
			return c, true
		}
	}
	return Check{}, false
}

// Failures returns the failed checks in checklist order.
func (r Report) Failures() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// JSON encodes the report. Equal reports encode to identical bytes.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Validator checks serialized document bytes against a checklist.
type Validator interface {
	Validate(ctx context.Context, data []byte) (Report, error)
}

// ComparisonEntry pairs the results of one check before and after repair.
type ComparisonEntry struct {
	ID            string   `json:"id"`
	Requirement   string   `json:"requirement"`
	Before        bool     `json:"before"`
	After         bool     `json:"after"`
	BeforeReasons []string `json:"beforeReasons,omitempty"`
	AfterReasons  []string `json:"afterReasons,omitempty"`
}

// Fixed reports a check that failed before and passes after.
func (e ComparisonEntry) Fixed() bool { return !e.Before && e.After }

// Regressed reports a check that passed before and fails after.
func (e ComparisonEntry) Regressed() bool { return e.Before && !e.After }

// Comparison is the before/after report of one repair run.
type Comparison struct {
	Standard     string            `json:"standard"`
	Entries      []ComparisonEntry `json:"entries"`
	BeforePassed int               `json:"beforePassed"`
	AfterPassed  int               `json:"afterPassed"`
	Total        int               `json:"total"`
	// Accepted is set only when every check passes after repair.
	Accepted bool `json:"accepted"`
}

// Compare aligns two reports by check ID in the order of after, followed
// by checks only before has.
func Compare(before, after Report) Comparison {
	cmp := Comparison{
		Standard:     after.Standard,
		BeforePassed: before.PassCount(),
		AfterPassed:  after.PassCount(),
		Total:        len(after.Checks),
		Accepted:     after.Passed(),
	}
	if cmp.Standard == "" {
		cmp.Standard = before.Standard
	}
	seen := make(map[string]bool, len(after.Checks))
	for _, a := range after.Checks {
		seen[a.ID] = true
		e := ComparisonEntry{ID: a.ID, Requirement: a.Requirement, After: a.Passed, AfterReasons: a.Reasons}
		if b, ok := before.Check(a.ID); ok {
			e.Before = b.Passed
			e.BeforeReasons = b.Reasons
		}
		cmp.Entries = append(cmp.Entries, e)
	}
	for _, b := range before.Checks {
		if seen[b.ID] {
			continue
		}
		cmp.Entries = append(cmp.Entries, ComparisonEntry{ID: b.ID, Requirement: b.Requirement, Before: b.Passed, BeforeReasons: b.Reasons})
	}
	return cmp
}
