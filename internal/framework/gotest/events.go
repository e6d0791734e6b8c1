package gotest

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/jask/testdock/internal/framework"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
)

// event is one line of `go test -json` (test2json) output.
type event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

type testProgress struct {
	started  bool
	finished bool
	output   strings.Builder
}

// packageRun tracks one `go test -json` invocation for a package suite and
// turns its events into listener calls.
type packageRun struct {
	tree    *testtree.Tree
	suite   testtree.ID
	wanted  []testtree.ID
	l       framework.Listener
	tests   map[testtree.ID]*testProgress
	output  strings.Builder
	status  results.Status
	elapsed time.Duration
}

func newPackageRun(tree *testtree.Tree, suite testtree.ID, wanted []testtree.ID, l framework.Listener) *packageRun {
	pr := &packageRun{
		tree:   tree,
		suite:  suite,
		wanted: wanted,
		l:      l,
		tests:  make(map[testtree.ID]*testProgress, len(wanted)),
	}
	for _, id := range wanted {
		pr.tests[id] = &testProgress{}
	}
	return pr
}

// consume decodes events from r until EOF. Lines that are not JSON, such
// as build errors, are kept as package output.
func (pr *packageRun) consume(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		var ev event
		if len(line) == 0 || line[0] != '{' || json.Unmarshal(line, &ev) != nil {
			pr.output.Write(line)
			pr.output.WriteByte('\n')
			continue
		}
		pr.handle(ev)
	}
	return sc.Err()
}

func (pr *packageRun) lookup(test string) (testtree.ID, *testProgress, bool) {
	top, _, _ := strings.Cut(test, "/")
	suite, _ := pr.tree.Node(pr.suite)
	n, ok := pr.tree.Lookup(suite.FullName + "/" + top)
	if !ok {
		return 0, nil, false
	}
	tp, ok := pr.tests[n.ID]
	return n.ID, tp, ok
}

func (pr *packageRun) handle(ev event) {
	if ev.Test == "" {
		switch ev.Action {
		case "output", "build-output":
			pr.output.WriteString(ev.Output)
		case "pass", "fail", "skip":
			pr.status = actionStatus(ev.Action)
			pr.elapsed = seconds(ev.Elapsed)
		}
		return
	}

	id, tp, ok := pr.lookup(ev.Test)
	if !ok {
		return
	}
	subtest := strings.Contains(ev.Test, "/")
	switch ev.Action {
	case "run":
		if !subtest && !tp.started {
			tp.started = true
			pr.l.TestStarted(id)
		}
	case "output":
		tp.output.WriteString(ev.Output)
	case "pass", "fail", "skip":
		if subtest || tp.finished {
			return
		}
		if !tp.started {
			tp.started = true
			pr.l.TestStarted(id)
		}
		tp.finished = true
		pr.l.TestFinished(buildResult(id, actionStatus(ev.Action), tp.output.String(), seconds(ev.Elapsed)))
	}
}

// finish reports every wanted test the events did not settle, then the
// package suite itself. It returns the package status.
func (pr *packageRun) finish(runErr error) results.Status {
	pkgOutput := pr.output.String()
	status := pr.status
	if status == 0 {
		status = results.StatusFailed
		if runErr == nil {
			status = results.StatusPassed
		}
	}

	for _, id := range pr.wanted {
		tp := pr.tests[id]
		if tp.finished {
			continue
		}
		if !tp.started {
			pr.l.TestStarted(id)
		}
		var r results.Result
		switch {
		case tp.started:
			r = buildResult(id, results.StatusFailed, tp.output.String()+pkgOutput, 0)
			r.Message = "test did not finish"
		case status == results.StatusFailed:
			r = results.Result{Test: id, Status: results.StatusFailed, Message: "package failed before the test ran", Output: cleanOutput(pkgOutput)}
		default:
			r = results.Result{Test: id, Status: results.StatusInconclusive, Message: "test was not reported"}
		}
		pr.l.TestFinished(r)
		if r.Status == results.StatusFailed {
			status = results.StatusFailed
		}
	}

	res := results.Result{Test: pr.suite, Status: status, Output: cleanOutput(pkgOutput), Duration: pr.elapsed}
	if status == results.StatusFailed {
		res.Message = failureMessage(pkgOutput)
		res.StackTrace = stackTrace(pkgOutput)
	}
	pr.l.TestFinished(res)
	return status
}

func buildResult(id testtree.ID, status results.Status, output string, elapsed time.Duration) results.Result {
	r := results.Result{Test: id, Status: status, Duration: elapsed}
	body := output
	if status != results.StatusPassed {
		r.StackTrace = stackTrace(output)
		if r.StackTrace != "" {
			body = output[:strings.Index(output, "panic: ")]
		}
		r.Message = failureMessage(output)
	}
	r.Output = cleanOutput(body)
	return r
}

func actionStatus(action string) results.Status {
	switch action {
	case "pass":
		return results.StatusPassed
	case "fail":
		return results.StatusFailed
	case "skip":
		return results.StatusSkipped
	default:
		return results.StatusInconclusive
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
