package history

import (
	"time"

	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
)

// Recorder collects the results of the current run on the UI goroutine and
// hands them over as a Run value once the run ends.
type Recorder struct {
	tree   *testtree.Tree
	run    Run
	index  map[testtree.ID]int
	active bool
	now    func() time.Time
}

// NewRecorder returns an idle recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: Now}
}

// Begin starts collecting a run. Results of a previous unfinished run are
// dropped.
func (r *Recorder) Begin(runID, filter string, tree *testtree.Tree) {
	r.tree = tree
	r.run = Run{ID: runID, Filter: filter, StartedAt: r.now()}
	r.index = make(map[testtree.ID]int)
	r.active = true
}

// Record adds a finished leaf result. Suite results are skipped because
// their outcome is derived from the leaves.
func (r *Recorder) Record(res results.Result) {
	if !r.active {
		return
	}
	n, ok := r.tree.Node(res.Test)
	if !ok || n.Suite {
		return
	}
	tr := TestResult{
		Test:       n.FullName,
		Status:     res.Status,
		Message:    res.Message,
		Output:     res.Output,
		StackTrace: res.StackTrace,
		Duration:   res.Duration,
	}
	if i, ok := r.index[res.Test]; ok {
		r.run.Results[i] = tr
		return
	}
	r.index[res.Test] = len(r.run.Results)
	r.run.Results = append(r.run.Results, tr)
}

// Finish ends the run and returns it. ok is false when no run was active or
// the ID does not match.
func (r *Recorder) Finish(runID string) (Run, bool) {
	if !r.active || r.run.ID != runID {
		return Run{}, false
	}
	run := r.run
	run.FinishedAt = r.now()
	r.active = false
	r.run = Run{}
	r.index = nil
	return run, true
}

// Active reports whether a run is being recorded.
func (r *Recorder) Active() bool {
	return r.active
}
