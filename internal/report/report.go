// Package report runs tests without the dock and prints the projected tree
// as text.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/jask/testdock/internal/filter"
	"github.com/jask/testdock/internal/framework"
	"github.com/jask/testdock/internal/history"
	"github.com/jask/testdock/internal/projection"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/runner"
	"github.com/jask/testdock/internal/testtree"
	"github.com/jask/testdock/internal/uiqueue"
)

// ErrUnknownTest means the requested subtree is not in the discovered tree.
var ErrUnknownTest = errors.New("unknown test")

// RunSaver persists a finished run.
type RunSaver interface {
	SaveRun(ctx context.Context, run history.Run) error
}

// Options configures a headless run.
type Options struct {
	// Test is the full name of the subtree to run. Empty runs everything.
	Test    string
	Out     io.Writer
	History RunSaver
	Log     zerolog.Logger
}

// Outcome is what a headless run produced.
type Outcome struct {
	RunID   string
	State   results.State
	Summary results.Summary
}

// Failed reports whether the run should fail the process.
func (o Outcome) Failed() bool {
	return o.State == results.StateFailed
}

// Run discovers tests, runs the selected subtree and writes the tree with
// its results to opts.Out. The calling goroutine owns the queue for the
// duration of the run.
func Run(ctx context.Context, r *runner.Runner, q *uiqueue.Queue, opts Options) (Outcome, error) {
	if err := r.Init(ctx); err != nil {
		return Outcome{}, err
	}
	tree, _ := r.Tree()

	f, err := selectFilter(tree, opts.Test)
	if err != nil {
		return Outcome{}, err
	}

	surface := projection.NewMemorySurface()
	proj := projection.New(surface, r, opts.Log)
	proj.Load()

	recorder := history.NewRecorder()
	done := false
	l := framework.ListenerFuncs{
		Started: func(id testtree.ID) {
			proj.CreateIfAbsent(id)
			proj.RefreshLabel(id)
		},
		Finished: func(res results.Result) {
			proj.RefreshLabel(res.Test)
			recorder.Record(res)
		},
		Done: func() { done = true },
	}
	if err := r.StartRun(ctx, f, proj.RefreshLabel, l); err != nil {
		return Outcome{}, err
	}
	recorder.Begin(r.RunID(), f.String(), tree)

	for !done {
		if err := q.Wait(ctx); err != nil {
			return Outcome{}, fmt.Errorf("wait for run: %w", err)
		}
		q.Drain()
	}

	if opts.History != nil {
		if run, ok := recorder.Finish(r.RunID()); ok {
			if err := opts.History.SaveRun(ctx, run); err != nil {
				opts.Log.Warn().Err(err).Msg("saving run history failed")
			}
		}
	}

	root := tree.Root().ID
	out := Outcome{
		RunID:   r.RunID(),
		State:   results.StateOf(tree, r.Store(), root),
		Summary: results.Summarize(tree, r.Store(), root),
	}
	if opts.Out != nil {
		if err := Print(opts.Out, surface, proj, tree, r.Store()); err != nil {
			return out, err
		}
		if _, err := fmt.Fprintln(opts.Out, summaryLine(out.Summary)); err != nil {
			return out, err
		}
	}
	return out, nil
}

func selectFilter(tree *testtree.Tree, test string) (filter.Filter, error) {
	if test == "" {
		return filter.Everything, nil
	}
	n, ok := tree.Lookup(test)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTest, test)
	}
	return filter.MatchDescendantsOf(tree, n.ID), nil
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
)

func marker(st results.State) string {
	switch st {
	case results.StatePassed:
		return passStyle.Render("PASS")
	case results.StateFailed:
		return failStyle.Render("FAIL")
	case results.StateSkipped:
		return dimStyle.Render("SKIP")
	case results.StateWarning:
		return warnStyle.Render("WARN")
	case results.StateInconclusive:
		return warnStyle.Render("????")
	case results.StateInProgress:
		return dimStyle.Render("....")
	default:
		return dimStyle.Render("----")
	}
}

// Print writes the projected tree, one node per line. Failed leaves are
// followed by their description.
func Print(w io.Writer, surface *projection.MemorySurface, proj *projection.Projection, tree *testtree.Tree, store *results.Store) error {
	var b strings.Builder
	surface.Walk(func(n *projection.MemoryNode, depth int) {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(&b, "%s%s %s\n", indent, marker(n.State), n.Label)
		if n.State != results.StateFailed || len(n.Children) > 0 {
			return
		}
		id, ok := proj.Lookup(n.Handle)
		if !ok {
			return
		}
		for _, line := range strings.Split(strings.TrimRight(results.Describe(tree, store, id), "\n"), "\n")[1:] {
			fmt.Fprintf(&b, "%s     %s\n", indent, dimStyle.Render(line))
		}
	})
	_, err := io.WriteString(w, b.String())
	return err
}

func summaryLine(s results.Summary) string {
	line := fmt.Sprintf("%d tests: %d passed, %d failed, %d skipped", s.Total, s.Passed, s.Failed, s.Skipped)
	if s.NotRun > 0 {
		line += fmt.Sprintf(", %d not run", s.NotRun)
	}
	if s.Inconclusive+s.Warning > 0 {
		line += fmt.Sprintf(", %d other", s.Inconclusive+s.Warning)
	}
	return line
}
