package gotest

import (
	"regexp"
	"strings"
)

var (
	goErrorLine = regexp.MustCompile(`^\s+\S+\.go:\d+: `)
	goTestLine  = regexp.MustCompile(`^\s*(=== (RUN|PAUSE|CONT|NAME)|--- (PASS|FAIL|SKIP):)`)
)

// failureMessage returns the first `file.go:N: message` line of a test's
// output with the location stripped.
func failureMessage(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if !goErrorLine.MatchString(line) {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if idx := strings.Index(trimmed, ".go:"); idx != -1 {
			afterFile := trimmed[idx+4:]
			if colonIdx := strings.Index(afterFile, ": "); colonIdx != -1 {
				return strings.TrimSpace(afterFile[colonIdx+2:])
			}
		}
		return trimmed
	}
	return ""
}

// stackTrace returns the panic report at the end of output, if any.
func stackTrace(output string) string {
	idx := strings.Index(output, "panic: ")
	if idx == -1 {
		return ""
	}
	return strings.TrimRight(output[idx:], "\n")
}

// cleanOutput drops the framing lines go test adds around every test.
func cleanOutput(output string) string {
	lines := strings.Split(output, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if goTestLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Trim(strings.Join(kept, "\n"), "\n")
}
