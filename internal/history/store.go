package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jask/testdock/internal/results"
)

// TestResult is one persisted test outcome, keyed by the test's full name
// since tree IDs do not survive a restart.
type TestResult struct {
	Test       string
	Status     results.Status
	Message    string
	Output     string
	StackTrace string
	Duration   time.Duration
}

// Run is a finished run ready to be saved.
type Run struct {
	ID         string
	Filter     string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []TestResult
}

// RunSummary is a saved run without its results.
type RunSummary struct {
	ID         string
	Filter     string
	StartedAt  time.Time
	FinishedAt time.Time
	Passed     int
	Failed     int
	Skipped    int
	Total      int
}

// Recorded is a test result together with the run that produced it.
type Recorded struct {
	TestResult
	RunID      string
	FinishedAt time.Time
}

// Store handles runs and results.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveRun writes run and its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	var passed, failed, skipped int
	for _, r := range run.Results {
		switch r.Status {
		case results.StatusPassed:
			passed++
		case results.StatusFailed:
			failed++
		case results.StatusSkipped:
			skipped++
		}
	}
	return WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO runs(id, started_at, finished_at, filter, passed, failed, skipped, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Filter,
			passed, failed, skipped, len(run.Results))
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results(run_id, test, status, message, output, stack_trace, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, test) DO UPDATE SET
		 status=excluded.status,
		 message=excluded.message,
		 output=excluded.output,
		 stack_trace=excluded.stack_trace,
		 duration_ms=excluded.duration_ms`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range run.Results {
			if _, err := stmt.ExecContext(ctx, run.ID, r.Test, r.Status.String(), r.Message, r.Output, r.StackTrace, r.Duration.Milliseconds()); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastRun returns the most recently started run.
func (s *Store) LastRun(ctx context.Context) (RunSummary, bool, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, filter, started_at, finished_at, passed, failed, skipped, total
	FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	var rs RunSummary
	var started, finished int64
	err := row.Scan(&rs.ID, &rs.Filter, &started, &finished, &rs.Passed, &rs.Failed, &rs.Skipped, &rs.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, false, nil
	}
	if err != nil {
		return RunSummary{}, false, err
	}
	rs.StartedAt = time.UnixMilli(started).UTC()
	rs.FinishedAt = time.UnixMilli(finished).UTC()
	return rs, true, nil
}

// LastResult returns the latest saved outcome of the named test.
func (s *Store) LastResult(ctx context.Context, test string) (Recorded, bool, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT r.run_id, r.status, r.message, r.output, r.stack_trace, r.duration_ms, runs.finished_at
	FROM results r JOIN runs ON runs.id = r.run_id
	WHERE r.test = ?
	ORDER BY runs.started_at DESC, runs.rowid DESC LIMIT 1`, test)
	rec := Recorded{TestResult: TestResult{Test: test}}
	var status string
	var durMS, finished int64
	err := row.Scan(&rec.RunID, &status, &rec.Message, &rec.Output, &rec.StackTrace, &durMS, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Recorded{}, false, nil
	}
	if err != nil {
		return Recorded{}, false, err
	}
	rec.Status = results.ParseStatus(status)
	rec.Duration = time.Duration(durMS) * time.Millisecond
	rec.FinishedAt = time.UnixMilli(finished).UTC()
	return rec, true, nil
}

// Prune deletes all but the newest keep runs.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
	DELETE FROM runs WHERE id NOT IN (
	 SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
