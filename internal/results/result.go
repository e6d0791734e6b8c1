// Package results keeps the latest outcome of every test and derives the
// display state of suites from their descendants.
package results

import (
	"time"

	"github.com/jask/testdock/internal/testtree"
)

// Status is the terminal outcome reported by a framework.
type Status int

const (
	StatusPassed Status = iota + 1
	StatusFailed
	StatusSkipped
	StatusWarning
	StatusInconclusive
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusWarning:
		return "warning"
	case StatusInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// ParseStatus maps a status name back to a Status. Unknown names map to
// StatusInconclusive.
func ParseStatus(name string) Status {
	switch name {
	case "passed":
		return StatusPassed
	case "failed":
		return StatusFailed
	case "skipped":
		return StatusSkipped
	case "warning":
		return StatusWarning
	default:
		return StatusInconclusive
	}
}

// Result is one finished test. It is never mutated after the framework
// creates it.
type Result struct {
	Test       testtree.ID
	Status     Status
	Message    string
	Output     string
	StackTrace string
	Duration   time.Duration
}
