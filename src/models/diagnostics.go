package models

import (
	"fmt"
	"sync"
)

// IssueKind classifies a problem found while processing a statement.
type IssueKind string

const (
	IssueParse        IssueKind = "parse_error"
	IssueStructural   IssueKind = "structural_anomaly"
	IssueResolution   IssueKind = "resolution_failure"
	IssueUnattributed IssueKind = "unattributed_row"
)

// Issue is a non-fatal problem tied to a statement line where possible.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Section string    `json:"section,omitempty"`
	Line    int       `json:"line,omitempty"`
	Message string    `json:"message"`
	Row     []string  `json:"row,omitempty"`
}

// Diagnostics collects issues for one statement. It is safe for concurrent use.
type Diagnostics struct {
	mu     sync.Mutex
	issues []Issue
}

// Record appends an issue.
func (d *Diagnostics) Record(issue Issue) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.issues = append(d.issues, issue)
	d.mu.Unlock()
}

// Recordf appends an issue for row with a formatted message.
func (d *Diagnostics) Recordf(kind IssueKind, section string, row RawRow, format string, args ...any) {
	d.Record(Issue{
		Kind:    kind,
		Section: section,
		Line:    row.Line,
		Message: fmt.Sprintf(format, args...),
		Row:     row.Cells,
	})
}

// Issues returns a copy of the recorded issues in insertion order.
func (d *Diagnostics) Issues() []Issue {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Issue, len(d.issues))
	copy(out, d.issues)
	return out
}

// Count returns the number of issues of kind.
func (d *Diagnostics) Count(kind IssueKind) int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, is := range d.issues {
		if is.Kind == kind {
			n++
		}
	}
	return n
}
