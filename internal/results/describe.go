package results

import (
	"strings"

	"github.com/jask/testdock/internal/testtree"
)

const (
	textNotRun     = "Test not run."
	textInProgress = "Test in progress..."
	textPassed     = "Test passed."
)

// Describe renders the output pane text for id.
func Describe(tree *testtree.Tree, store *Store, id testtree.ID) string {
	r, ok := store.Lookup(id)
	if !ok {
		return textNotRun
	}
	if r == nil {
		return textInProgress
	}
	if r.Status == StatusPassed {
		return textPassed
	}

	var b strings.Builder
	name := ""
	if n, ok := tree.Node(id); ok {
		name = n.FullName
	}
	b.WriteString(name)
	b.WriteString("\n")
	for _, part := range []string{r.Message, r.Output, r.StackTrace} {
		if strings.TrimSpace(part) == "" {
			continue
		}
		b.WriteString(strings.TrimRight(part, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
