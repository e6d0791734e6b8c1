// Package tui is the interactive dock: a test tree, an output pane and the
// run controls, drawn with bubbletea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/jask/testdock/internal/config"
	"github.com/jask/testdock/internal/filter"
	"github.com/jask/testdock/internal/history"
	"github.com/jask/testdock/internal/projection"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/runner"
	"github.com/jask/testdock/internal/search"
	"github.com/jask/testdock/internal/testtree"
	"github.com/jask/testdock/internal/uiqueue"
)

const searchLimit = 8

// HistoryStore persists finished runs. A nil store disables history.
type HistoryStore interface {
	SaveRun(ctx context.Context, run history.Run) error
	LastRun(ctx context.Context) (history.RunSummary, bool, error)
	LastResult(ctx context.Context, test string) (history.Recorded, bool, error)
}

// Options configures the dock.
type Options struct {
	UI      config.UIConfig
	History HistoryStore
	Log     zerolog.Logger
}

// App is the dock model. All of its state, the runner's included, is owned
// by the bubbletea goroutine.
type App struct {
	ctx      context.Context
	runner   *runner.Runner
	queue    *uiqueue.Queue
	history  HistoryStore
	log      zerolog.Logger
	keys     *KeyRegistry
	surface  *treeSurface
	proj     *projection.Projection
	recorder *history.Recorder

	rows   []row
	cursor int
	offset int
	width  int
	height int

	output      viewport.Model
	spinner     spinner.Model
	search      textinput.Model
	searching   bool
	matches     []search.Match
	matchCursor int

	showOutput bool
	tick       time.Duration
	running    bool
	loading    bool
	status     string
	statusErr  bool
	lastRun    *history.RunSummary
	recorded   *lastResultMsg
	pending    []tea.Cmd
}

// New builds the dock around r. Worker callbacks reach the dock through q,
// which must be the queue r posts to.
func New(ctx context.Context, r *runner.Runner, q *uiqueue.Queue, opts Options) (*App, error) {
	keys := NewKeyRegistry()
	if err := keys.ApplyOverrides(opts.UI.Keys); err != nil {
		return nil, err
	}

	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "test name"
	ti.CharLimit = 128

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	tick := time.Duration(opts.UI.TickMillis) * time.Millisecond
	if tick <= 0 {
		tick = 150 * time.Millisecond
	}

	a := &App{
		ctx:        ctx,
		runner:     r,
		queue:      q,
		history:    opts.History,
		log:        opts.Log,
		keys:       keys,
		surface:    newTreeSurface(),
		recorder:   history.NewRecorder(),
		output:     viewport.New(40, 10),
		spinner:    sp,
		search:     ti,
		showOutput: opts.UI.ShowOutput,
		tick:       tick,
		loading:    true,
		status:     "discovering tests...",
	}
	a.proj = projection.New(a.surface, r, opts.Log)
	return a, nil
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.discover(false), a.waitForQueue(), a.tickCmd(), a.spinner.Tick, a.loadLastRun())
}

func (a *App) discover(reload bool) tea.Cmd {
	return func() tea.Msg {
		tree, err := a.runner.Discover(a.ctx)
		return discoveredMsg{tree: tree, err: err, reload: reload}
	}
}

func (a *App) waitForQueue() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-a.queue.Ready():
			return queueReadyMsg{}
		case <-a.ctx.Done():
			return nil
		}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(a.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) loadLastRun() tea.Cmd {
	if a.history == nil {
		return nil
	}
	return func() tea.Msg {
		sum, ok, err := a.history.LastRun(a.ctx)
		if err != nil {
			return errMsg{fmt.Errorf("load last run: %w", err)}
		}
		return lastRunMsg{summary: sum, ok: ok}
	}
}

func (a *App) loadLastResult(id testtree.ID) tea.Cmd {
	if a.history == nil {
		return nil
	}
	tree, ok := a.runner.Tree()
	if !ok {
		return nil
	}
	n, ok := tree.Node(id)
	if !ok || n.Suite {
		return nil
	}
	name := n.FullName
	return func() tea.Msg {
		rec, ok, err := a.history.LastResult(a.ctx, name)
		if err != nil {
			return errMsg{fmt.Errorf("load history for %s: %w", name, err)}
		}
		return lastResultMsg{id: id, rec: rec, ok: ok}
	}
}

func (a *App) saveRun(run history.Run) tea.Cmd {
	return func() tea.Msg {
		if err := a.history.SaveRun(a.ctx, run); err != nil {
			return errMsg{fmt.Errorf("save run: %w", err)}
		}
		sum, ok, err := a.history.LastRun(a.ctx)
		if err != nil {
			return errMsg{fmt.Errorf("load last run: %w", err)}
		}
		return lastRunMsg{summary: sum, ok: ok}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.layout()
		return a, nil
	case tea.KeyMsg:
		if a.searching {
			return a, a.updateSearch(msg)
		}
		return a, a.updateTree(msg)
	case discoveredMsg:
		return a, a.installTree(msg)
	case queueReadyMsg:
		n := a.queue.Drain()
		a.refreshRows()
		a.refreshOutput()
		cmds := append(a.pending, a.waitForQueue())
		a.pending = nil
		if n > 0 {
			a.log.Debug().Int("tasks", n).Msg("drained ui queue")
		}
		return a, tea.Batch(cmds...)
	case tickMsg:
		// running is cleared by the drained finish event, never by the poll.
		if a.runner.IsRunning() {
			a.running = true
		}
		return a, a.tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case lastRunMsg:
		if msg.ok {
			sum := msg.summary
			a.lastRun = &sum
		}
		return a, nil
	case lastResultMsg:
		if id, ok := a.selected(); ok && id == msg.id {
			a.recorded = &msg
			a.refreshOutput()
		}
		return a, nil
	case errMsg:
		a.setError(msg.err)
		return a, nil
	}
	return a, nil
}

func (a *App) installTree(msg discoveredMsg) tea.Cmd {
	a.loading = false
	if msg.err != nil {
		a.setError(msg.err)
		return nil
	}
	if a.runner.IsRunning() {
		a.setStatus("discovery finished during a run; results ignored")
		return nil
	}
	a.runner.Install(msg.tree)
	a.proj.Load()
	a.cursor, a.offset = 0, 0
	a.refreshRows()
	verb := "discovered"
	if msg.reload {
		verb = "reloaded"
	}
	a.setStatus(fmt.Sprintf("%d tests %s", msg.tree.Root().TestCaseCount, verb))
	return a.selectionChanged()
}

func (a *App) updateTree(msg tea.KeyMsg) tea.Cmd {
	b := a.keys.Lookup(msg, scopeTree)
	if b == nil {
		return nil
	}
	switch b.Action {
	case actionQuit:
		return tea.Quit
	case actionUp:
		return a.moveCursor(-1)
	case actionDown:
		return a.moveCursor(1)
	case actionJumpTop:
		return a.moveCursor(-len(a.rows))
	case actionJumpBottom:
		return a.moveCursor(len(a.rows))
	case actionToggle:
		if a.cursor < len(a.rows) {
			a.surface.Toggle(a.rows[a.cursor].Handle)
			a.refreshRows()
		}
	case actionRunAll:
		return a.runAll()
	case actionRunSelected:
		return a.runSelected()
	case actionRerunFailed:
		return a.rerunFailed()
	case actionReload:
		return a.reload()
	case actionSearch:
		if _, ok := a.runner.Tree(); !ok {
			a.setStatus("no tests to search")
			return nil
		}
		a.searching = true
		a.search.SetValue("")
		a.matches = nil
		a.matchCursor = 0
		return a.search.Focus()
	case actionScrollUp:
		a.output.HalfViewUp()
	case actionScrollDown:
		a.output.HalfViewDown()
	}
	return nil
}

func (a *App) updateSearch(msg tea.KeyMsg) tea.Cmd {
	if b := a.keys.Lookup(msg, scopeSearch); b != nil {
		switch b.Action {
		case actionClearSearch:
			a.closeSearch()
			return nil
		case actionConfirm:
			if a.matchCursor < len(a.matches) {
				id := a.matches[a.matchCursor].ID
				a.closeSearch()
				return a.jumpTo(id)
			}
			a.closeSearch()
			return nil
		case actionUp:
			a.matchCursor = max(0, a.matchCursor-1)
			return nil
		case actionDown:
			a.matchCursor = min(max(0, len(a.matches)-1), a.matchCursor+1)
			return nil
		case actionQuit:
			if msg.String() == "ctrl+c" {
				return tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	a.search, cmd = a.search.Update(msg)
	if tree, ok := a.runner.Tree(); ok {
		a.matches = search.Rank(tree, a.search.Value(), searchLimit)
	}
	a.matchCursor = 0
	return cmd
}

func (a *App) closeSearch() {
	a.searching = false
	a.search.Blur()
	a.matches = nil
}

// jumpTo unfolds the path to id and selects it.
func (a *App) jumpTo(id testtree.ID) tea.Cmd {
	a.proj.CreateIfAbsent(id)
	h, ok := a.proj.Handle(id)
	if !ok {
		return nil
	}
	a.surface.Reveal(h)
	a.refreshRows()
	for i, r := range a.rows {
		if r.Handle == h {
			a.cursor = i
			break
		}
	}
	a.scrollToCursor()
	return a.selectionChanged()
}

func (a *App) controlsLocked() bool {
	return a.loading || a.running || a.runner.IsRunning()
}

func (a *App) lockedStatus() {
	if a.loading {
		a.setStatus("discovery in progress")
		return
	}
	a.setStatus("a run is in progress")
}

func (a *App) runAll() tea.Cmd {
	if a.controlsLocked() {
		a.lockedStatus()
		return nil
	}
	a.proj.Load()
	return a.startRun(filter.Everything)
}

func (a *App) runSelected() tea.Cmd {
	if a.controlsLocked() {
		a.lockedStatus()
		return nil
	}
	tree, ok := a.runner.Tree()
	id, sel := a.selected()
	if !ok || !sel {
		return a.startRun(filter.Everything)
	}
	return a.startRun(filter.MatchDescendantsOf(tree, id))
}

func (a *App) rerunFailed() tea.Cmd {
	if a.controlsLocked() {
		a.lockedStatus()
		return nil
	}
	tree, ok := a.runner.Tree()
	if !ok {
		a.setStatus("no tests loaded")
		return nil
	}
	f := filter.MatchFailed(tree, a.runner.Store())
	if f.Empty() {
		a.setStatus("no failed tests")
		return nil
	}
	return a.startRun(f)
}

func (a *App) reload() tea.Cmd {
	if a.controlsLocked() {
		a.lockedStatus()
		return nil
	}
	a.loading = true
	a.setStatus("reloading tests...")
	return a.discover(true)
}

func (a *App) startRun(f filter.Filter) tea.Cmd {
	l := &dockListener{a: a}
	if err := a.runner.StartRun(a.ctx, f, a.resetNode, l); err != nil {
		a.setError(err)
		if errors.Is(err, runner.ErrNoTestTree) {
			a.proj.Clear()
			a.refreshRows()
		}
		return nil
	}
	l.runID = a.runner.RunID()
	if a.proj.Len() == 0 {
		a.proj.Load()
	}
	if a.history != nil {
		if a.recorder.Active() {
			a.log.Warn().Msg("previous run never finished; its results are not saved")
		}
		if tree, ok := a.runner.Tree(); ok {
			a.recorder.Begin(a.runner.RunID(), f.String(), tree)
		}
	}
	a.running = true
	a.refreshRows()
	a.refreshOutput()
	a.setStatus("running " + f.String())
	return nil
}

func (a *App) resetNode(id testtree.ID) {
	a.proj.RefreshLabel(id)
}

func (a *App) runFinished(runID string) {
	if runID != a.runner.RunID() {
		a.log.Debug().Str("run", runID).Msg("finish event of an earlier run ignored")
		return
	}
	a.running = false
	tree, ok := a.runner.Tree()
	if !ok {
		return
	}
	sum := results.Summarize(tree, a.runner.Store(), tree.Root().ID)
	a.setStatus(fmt.Sprintf("run finished: %d passed, %d failed, %d skipped of %d", sum.Passed, sum.Failed, sum.Skipped, sum.Total))
	if a.history == nil {
		return
	}
	if run, ok := a.recorder.Finish(runID); ok {
		a.pending = append(a.pending, a.saveRun(run))
	}
	if id, ok := a.selected(); ok {
		a.pending = append(a.pending, a.loadLastResult(id))
	}
}

// dockListener receives the events of one run on the UI goroutine, after
// the runner updated the store. runID is set before the queue is drained.
type dockListener struct {
	a     *App
	runID string
}

func (l *dockListener) TestStarted(id testtree.ID) {
	l.a.proj.CreateIfAbsent(id)
	l.a.proj.RefreshLabel(id)
}

func (l *dockListener) TestFinished(r results.Result) {
	l.a.proj.CreateIfAbsent(r.Test)
	l.a.proj.RefreshLabel(r.Test)
	l.a.recorder.Record(r)
}

func (l *dockListener) RunFinished() {
	l.a.runFinished(l.runID)
}

func (a *App) selected() (testtree.ID, bool) {
	if a.cursor < 0 || a.cursor >= len(a.rows) {
		return testtree.NoID, false
	}
	return a.proj.Lookup(a.rows[a.cursor].Handle)
}

func (a *App) moveCursor(delta int) tea.Cmd {
	if len(a.rows) == 0 {
		return nil
	}
	next := min(max(0, a.cursor+delta), len(a.rows)-1)
	if next == a.cursor {
		return nil
	}
	a.cursor = next
	a.scrollToCursor()
	return a.selectionChanged()
}

func (a *App) selectionChanged() tea.Cmd {
	a.recorded = nil
	a.output.GotoTop()
	a.refreshOutput()
	id, ok := a.selected()
	if !ok {
		return nil
	}
	return a.loadLastResult(id)
}

func (a *App) refreshRows() {
	a.rows = a.surface.Rows()
	if a.cursor >= len(a.rows) {
		a.cursor = max(0, len(a.rows)-1)
	}
	a.scrollToCursor()
}

func (a *App) refreshOutput() {
	a.output.SetContent(a.outputText())
}

func (a *App) outputText() string {
	tree, ok := a.runner.Tree()
	if !ok {
		if a.loading {
			return "Discovering tests..."
		}
		return "No tests found."
	}
	id, ok := a.selected()
	if !ok {
		return ""
	}
	text := results.Describe(tree, a.runner.Store(), id)
	if a.recorded != nil && a.recorded.id == id && a.recorded.ok {
		rec := a.recorded.rec
		text += fmt.Sprintf("\n\nLast recorded: %s at %s", rec.Status, rec.FinishedAt.Local().Format("2006-01-02 15:04:05"))
		if rec.Message != "" {
			text += "\n" + rec.Message
		}
	}
	return text
}

func (a *App) setStatus(text string) {
	a.status = text
	a.statusErr = false
}

func (a *App) setError(err error) {
	if err == nil {
		return
	}
	a.log.Warn().Err(err).Msg("dock error")
	a.status = err.Error()
	a.statusErr = true
}
