package gotest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/testdock/internal/filter"
	"github.com/jask/testdock/internal/framework"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
)

const listOutput = `TestParse
TestParseError
BenchmarkParse
ok  	example.com/app/parser	0.004s
?   	example.com/app/cmd	[no test files]
TestLex
ExampleLex
ok  	example.com/app/lexer	(cached)
`

type call struct {
	dir  string
	name string
	args []string
}

// fakeGo serves canned stdout keyed by the last argument (the package).
type fakeGo struct {
	mu      sync.Mutex
	calls   []call
	list    string
	listErr error
	json    map[string]string
	exitErr map[string]error
}

func (g *fakeGo) start(_ context.Context, dir, name string, args ...string) (*Process, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{dir: dir, name: name, args: args})
	g.mu.Unlock()

	if args[1] == "-list" {
		return &Process{
			Stdout: io.NopCloser(strings.NewReader(g.list)),
			Wait:   func() error { return g.listErr },
		}, nil
	}
	pkg := args[len(args)-1]
	return &Process{
		Stdout: io.NopCloser(strings.NewReader(g.json[pkg])),
		Wait:   func() error { return g.exitErr[pkg] },
	}, nil
}

func (g *fakeGo) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call(nil), g.calls...)
}

type recorder struct {
	mu     sync.Mutex
	events []string
	byName map[string]results.Result
	tree   *testtree.Tree
	done   chan struct{}
}

func newRecorder(tree *testtree.Tree) *recorder {
	return &recorder{tree: tree, byName: make(map[string]results.Result), done: make(chan struct{})}
}

func (r *recorder) name(id testtree.ID) string {
	n, _ := r.tree.Node(id)
	return n.FullName
}

func (r *recorder) TestStarted(id testtree.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start "+r.name(id))
}

func (r *recorder) TestFinished(res results.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := r.name(res.Test)
	r.events = append(r.events, "finish "+name+" "+res.Status.String())
	r.byName[name] = res
}

func (r *recorder) RunFinished() { close(r.done) }

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
}

func jsonLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func newFramework(g *fakeGo) *Framework {
	return New(Options{Dir: "/src/app", Start: g.start})
}

func TestParseList(t *testing.T) {
	pkgs, err := parseList(strings.NewReader(listOutput))
	require.NoError(t, err)
	require.Equal(t, []packageTests{
		{ImportPath: "example.com/app/parser", Tests: []string{"TestParse", "TestParseError"}},
		{ImportPath: "example.com/app/lexer", Tests: []string{"TestLex", "ExampleLex"}},
	}, pkgs)
}

func TestLoadTestsBuildsTree(t *testing.T) {
	g := &fakeGo{list: listOutput}
	fw := newFramework(g)

	tree, err := fw.LoadTests(context.Background())
	require.NoError(t, err)
	require.Equal(t, "app", tree.Root().Name)
	require.Equal(t, 4, tree.Root().TestCaseCount)

	n, ok := tree.Lookup("example.com/app/parser/TestParseError")
	require.True(t, ok)
	require.False(t, n.Suite)

	calls := g.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "/src/app", calls[0].dir)
	require.Equal(t, "go", calls[0].name)
	require.Equal(t, []string{"test", "-list", ".", "./..."}, calls[0].args)
}

func TestLoadTestsErrors(t *testing.T) {
	_, err := newFramework(&fakeGo{list: "?   \texample.com/app\t[no test files]\n"}).LoadTests(context.Background())
	require.ErrorIs(t, err, ErrNoTests)

	exit := errors.New("exit status 1")
	_, err = newFramework(&fakeGo{list: "FAIL\texample.com/app [setup failed]\n", listErr: exit}).LoadTests(context.Background())
	require.ErrorIs(t, err, exit)
}

func TestRunAsyncBeforeLoad(t *testing.T) {
	fw := newFramework(&fakeGo{})
	require.ErrorIs(t, fw.RunAsync(context.Background(), framework.ListenerFuncs{}, filter.Everything), ErrNotLoaded)
}

func TestRunEverything(t *testing.T) {
	g := &fakeGo{
		list: listOutput,
		json: map[string]string{
			"example.com/app/parser": jsonLines(
				`{"Action":"start","Package":"example.com/app/parser"}`,
				`{"Action":"run","Package":"example.com/app/parser","Test":"TestParse"}`,
				`{"Action":"output","Package":"example.com/app/parser","Test":"TestParse","Output":"=== RUN   TestParse\n"}`,
				`{"Action":"pass","Package":"example.com/app/parser","Test":"TestParse","Elapsed":0.25}`,
				`{"Action":"run","Package":"example.com/app/parser","Test":"TestParseError"}`,
				`{"Action":"run","Package":"example.com/app/parser","Test":"TestParseError/empty"}`,
				`{"Action":"output","Package":"example.com/app/parser","Test":"TestParseError/empty","Output":"    parser_test.go:42: want error, got nil\n"}`,
				`{"Action":"fail","Package":"example.com/app/parser","Test":"TestParseError/empty"}`,
				`{"Action":"fail","Package":"example.com/app/parser","Test":"TestParseError"}`,
				`{"Action":"output","Package":"example.com/app/parser","Output":"FAIL\n"}`,
				`{"Action":"fail","Package":"example.com/app/parser","Elapsed":0.3}`,
			),
			"example.com/app/lexer": jsonLines(
				`{"Action":"run","Package":"example.com/app/lexer","Test":"TestLex"}`,
				`{"Action":"output","Package":"example.com/app/lexer","Test":"TestLex","Output":"    lexer_test.go:9: no input\n"}`,
				`{"Action":"skip","Package":"example.com/app/lexer","Test":"TestLex"}`,
				`{"Action":"run","Package":"example.com/app/lexer","Test":"ExampleLex"}`,
				`{"Action":"pass","Package":"example.com/app/lexer","Test":"ExampleLex"}`,
				`{"Action":"pass","Package":"example.com/app/lexer"}`,
			),
		},
		exitErr: map[string]error{"example.com/app/parser": errors.New("exit status 1")},
	}
	fw := newFramework(g)
	tree, err := fw.LoadTests(context.Background())
	require.NoError(t, err)

	rec := newRecorder(tree)
	require.NoError(t, fw.RunAsync(context.Background(), rec, filter.Everything))
	rec.wait(t)
	require.False(t, fw.IsRunning())

	require.Equal(t, []string{
		"start app",
		"start example.com/app/parser",
		"start example.com/app/parser/TestParse",
		"finish example.com/app/parser/TestParse passed",
		"start example.com/app/parser/TestParseError",
		"finish example.com/app/parser/TestParseError failed",
		"finish example.com/app/parser failed",
		"start example.com/app/lexer",
		"start example.com/app/lexer/TestLex",
		"finish example.com/app/lexer/TestLex skipped",
		"start example.com/app/lexer/ExampleLex",
		"finish example.com/app/lexer/ExampleLex passed",
		"finish example.com/app/lexer passed",
		"finish app failed",
	}, rec.events)

	parseErr := rec.byName["example.com/app/parser/TestParseError"]
	assert.Equal(t, "want error, got nil", parseErr.Message)
	assert.Contains(t, parseErr.Output, "parser_test.go:42")
	assert.Equal(t, 250*time.Millisecond, rec.byName["example.com/app/parser/TestParse"].Duration)
	assert.Equal(t, "no input", rec.byName["example.com/app/lexer/TestLex"].Message)

	// Whole packages run without -run.
	for _, c := range g.Calls()[1:] {
		assert.NotContains(t, c.args, "-run")
		assert.Equal(t, "-json", c.args[1])
	}
}

func TestRunSubtreeUsesRunPattern(t *testing.T) {
	g := &fakeGo{
		list: listOutput,
		json: map[string]string{
			"example.com/app/parser": jsonLines(
				`{"Action":"run","Package":"example.com/app/parser","Test":"TestParse"}`,
				`{"Action":"pass","Package":"example.com/app/parser","Test":"TestParse"}`,
				`{"Action":"pass","Package":"example.com/app/parser"}`,
			),
		},
	}
	fw := newFramework(g)
	tree, err := fw.LoadTests(context.Background())
	require.NoError(t, err)

	target, _ := tree.Lookup("example.com/app/parser/TestParse")
	rec := newRecorder(tree)
	require.NoError(t, fw.RunAsync(context.Background(), rec, filter.MatchDescendantsOf(tree, target.ID)))
	rec.wait(t)

	calls := g.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, []string{"test", "-json", "-run", "^(TestParse)$", "example.com/app/parser"}, calls[1].args)
	require.Equal(t, results.StatusPassed, rec.byName["example.com/app/parser/TestParse"].Status)
	_, ran := rec.byName["example.com/app/parser/TestParseError"]
	require.False(t, ran)
}

func TestBuildFailureFailsEveryWantedTest(t *testing.T) {
	g := &fakeGo{
		list: listOutput,
		json: map[string]string{
			"example.com/app/lexer": "# example.com/app/lexer\nlexer.go:3:1: syntax error\n" +
				jsonLines(`{"Action":"fail","Package":"example.com/app/lexer"}`),
		},
		exitErr: map[string]error{"example.com/app/lexer": errors.New("exit status 2")},
	}
	fw := newFramework(g)
	tree, err := fw.LoadTests(context.Background())
	require.NoError(t, err)

	lexer, _ := tree.Lookup("example.com/app/lexer")
	rec := newRecorder(tree)
	require.NoError(t, fw.RunAsync(context.Background(), rec, filter.MatchDescendantsOf(tree, lexer.ID)))
	rec.wait(t)

	res := rec.byName["example.com/app/lexer/TestLex"]
	require.Equal(t, results.StatusFailed, res.Status)
	require.Equal(t, "package failed before the test ran", res.Message)
	require.Contains(t, res.Output, "syntax error")
	require.Contains(t, rec.events, "start example.com/app/lexer/ExampleLex")
	require.Equal(t, results.StatusFailed, rec.byName["example.com/app/lexer"].Status)
}

func TestPanicBecomesStackTrace(t *testing.T) {
	out := "=== RUN   TestBoom\n" +
		"    boom_test.go:7: about to panic\n" +
		"--- FAIL: TestBoom (0.00s)\n" +
		"panic: runtime error: index out of range [recovered]\n" +
		"goroutine 7 [running]:\n"
	r := buildResult(3, results.StatusFailed, out, 0)

	require.Equal(t, "about to panic", r.Message)
	require.True(t, strings.HasPrefix(r.StackTrace, "panic: runtime error"))
	require.Contains(t, r.StackTrace, "goroutine 7")
	require.Equal(t, "    boom_test.go:7: about to panic", r.Output)
}

func TestRunAsyncRejectsOverlap(t *testing.T) {
	block := make(chan struct{})
	g := &fakeGo{list: listOutput}
	fw := New(Options{Start: func(ctx context.Context, dir, name string, args ...string) (*Process, error) {
		if args[1] == "-list" {
			return g.start(ctx, dir, name, args...)
		}
		<-block
		return &Process{Stdout: io.NopCloser(strings.NewReader("")), Wait: func() error { return nil }}, nil
	}})
	tree, err := fw.LoadTests(context.Background())
	require.NoError(t, err)

	rec := newRecorder(tree)
	require.NoError(t, fw.RunAsync(context.Background(), rec, filter.Everything))
	require.True(t, fw.IsRunning())
	require.ErrorIs(t, fw.RunAsync(context.Background(), rec, filter.Everything), ErrBusy)

	close(block)
	rec.wait(t)
	require.False(t, fw.IsRunning())
	// Nothing was reported by go test, so the tests are inconclusive.
	require.Equal(t, results.StatusInconclusive, rec.byName["example.com/app/lexer/TestLex"].Status)
}
