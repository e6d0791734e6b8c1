// Package gotest drives `go test` as a test framework: discovery through
// `go test -list` and execution through `go test -json`.
package gotest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/jask/testdock/internal/filter"
	"github.com/jask/testdock/internal/framework"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
)

var (
	// ErrBusy is returned by RunAsync while a run is in progress.
	ErrBusy = errors.New("go test run already in progress")
	// ErrNotLoaded is returned by RunAsync before LoadTests succeeded.
	ErrNotLoaded = errors.New("tests not loaded")
	// ErrNoTests means discovery finished without finding any test.
	ErrNoTests = errors.New("no tests found")
)

// Process is a started command whose stdout is being streamed.
type Process struct {
	Stdout io.ReadCloser
	Wait   func() error
}

// StartFunc launches name with args in dir.
type StartFunc func(ctx context.Context, dir, name string, args ...string) (*Process, error)

// Options configures the adapter.
type Options struct {
	Command  string
	Dir      string
	Packages []string
	Args     []string
	Log      zerolog.Logger
	// Start replaces process creation, mainly for tests.
	Start StartFunc
}

// Framework implements framework.Framework on top of the go command.
type Framework struct {
	opts    Options
	mu      sync.Mutex
	tree    *testtree.Tree
	running atomic.Bool
}

// New returns an adapter. Empty options fall back to `go` in the current
// directory over ./...
func New(opts Options) *Framework {
	if opts.Command == "" {
		opts.Command = "go"
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if len(opts.Packages) == 0 {
		opts.Packages = []string{"./..."}
	}
	if opts.Start == nil {
		opts.Start = startProcess
	}
	return &Framework{opts: opts}
}

func startProcess(ctx context.Context, dir, name string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return &Process{
		Stdout: stdout,
		Wait: func() error {
			err := cmd.Wait()
			if err != nil && stderr.Len() > 0 {
				return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
			}
			return err
		},
	}, nil
}

func (f *Framework) rootName() string {
	abs, err := filepath.Abs(f.opts.Dir)
	if err != nil {
		return f.opts.Dir
	}
	return filepath.Base(abs)
}

// LoadTests lists the tests of the configured packages.
func (f *Framework) LoadTests(ctx context.Context) (*testtree.Tree, error) {
	args := append([]string{"test", "-list", "."}, f.opts.Args...)
	args = append(args, f.opts.Packages...)
	proc, err := f.opts.Start(ctx, f.opts.Dir, f.opts.Command, args...)
	if err != nil {
		return nil, err
	}
	pkgs, parseErr := parseList(proc.Stdout)
	_ = proc.Stdout.Close()
	waitErr := proc.Wait()
	if parseErr != nil {
		return nil, fmt.Errorf("read test list: %w", parseErr)
	}

	tree := buildTree(f.rootName(), pkgs)
	if tree.Root().TestCaseCount == 0 {
		if waitErr != nil {
			return nil, fmt.Errorf("go test -list: %w", waitErr)
		}
		return nil, ErrNoTests
	}
	if waitErr != nil {
		// Some packages failed to build; the rest are still usable.
		f.opts.Log.Warn().Err(waitErr).Msg("test listing reported errors")
	}
	f.opts.Log.Info().Int("packages", len(tree.Children(tree.Root().ID))).Int("tests", tree.Root().TestCaseCount).Msg("tests discovered")

	f.mu.Lock()
	f.tree = tree
	f.mu.Unlock()
	return tree, nil
}

func (f *Framework) IsRunning() bool {
	return f.running.Load()
}

// RunAsync runs one `go test -json` per package with matched tests, one
// package at a time, on a new goroutine.
func (f *Framework) RunAsync(ctx context.Context, l framework.Listener, flt filter.Filter) error {
	f.mu.Lock()
	tree := f.tree
	f.mu.Unlock()
	if tree == nil {
		return ErrNotLoaded
	}
	if !f.running.CompareAndSwap(false, true) {
		return ErrBusy
	}

	plan := planRun(tree, flt)
	go func() {
		defer func() {
			f.running.Store(false)
			framework.NotifyRunFinished(l)
		}()
		f.execute(ctx, tree, plan, l)
	}()
	return nil
}

// packagePlan is the work for one package suite. An empty Tests list with
// Whole set runs every test in the package.
type packagePlan struct {
	Suite testtree.ID
	Tests []testtree.ID
	Whole bool
}

func planRun(tree *testtree.Tree, flt filter.Filter) []packagePlan {
	var plan []packagePlan
	for _, suite := range tree.Children(tree.Root().ID) {
		p := packagePlan{Suite: suite.ID}
		p.Whole = flt.Pass(suite.ID) && flt.IsExplicitMatch(suite.ID)
		for _, leaf := range tree.Leaves(suite.ID) {
			if p.Whole || flt.Pass(leaf.ID) {
				p.Tests = append(p.Tests, leaf.ID)
			}
		}
		if len(p.Tests) > 0 {
			plan = append(plan, p)
		}
	}
	return plan
}

func (f *Framework) execute(ctx context.Context, tree *testtree.Tree, plan []packagePlan, l framework.Listener) {
	if len(plan) == 0 {
		return
	}
	root := tree.Root().ID
	l.TestStarted(root)
	rootStatus := results.StatusPassed
	for _, p := range plan {
		if f.runPackage(ctx, tree, p, l) == results.StatusFailed {
			rootStatus = results.StatusFailed
		}
	}
	l.TestFinished(results.Result{Test: root, Status: rootStatus})
}

func (f *Framework) runPackage(ctx context.Context, tree *testtree.Tree, p packagePlan, l framework.Listener) results.Status {
	suite, _ := tree.Node(p.Suite)
	l.TestStarted(p.Suite)
	pr := newPackageRun(tree, p.Suite, p.Tests, l)

	args := append([]string{"test", "-json"}, f.opts.Args...)
	if !p.Whole {
		args = append(args, "-run", runPattern(tree, p.Tests))
	}
	args = append(args, suite.Name)

	log := f.opts.Log.With().Str("package", suite.Name).Logger()
	log.Debug().Strs("args", args).Msg("running package")

	proc, err := f.opts.Start(ctx, f.opts.Dir, f.opts.Command, args...)
	if err != nil {
		log.Warn().Err(err).Msg("go test did not start")
		pr.output.WriteString(err.Error())
		return pr.finish(err)
	}
	if err := pr.consume(proc.Stdout); err != nil {
		log.Warn().Err(err).Msg("reading go test output")
	}
	_ = proc.Stdout.Close()
	waitErr := proc.Wait()
	if waitErr != nil {
		log.Debug().Err(waitErr).Msg("go test exited with error")
	}
	return pr.finish(waitErr)
}

// runPattern anchors each test name so -run matches exactly those tests.
func runPattern(tree *testtree.Tree, ids []testtree.ID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		n, ok := tree.Node(id)
		if !ok {
			continue
		}
		names = append(names, regexp.QuoteMeta(n.Name))
	}
	return "^(" + strings.Join(names, "|") + ")$"
}
