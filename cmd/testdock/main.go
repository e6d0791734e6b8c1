package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/jask/testdock/internal/config"
	"github.com/jask/testdock/internal/framework/gotest"
	"github.com/jask/testdock/internal/history"
	"github.com/jask/testdock/internal/logging"
	"github.com/jask/testdock/internal/report"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/runner"
	"github.com/jask/testdock/internal/tui"
	"github.com/jask/testdock/internal/uiqueue"
)

func main() {
	os.Exit(run())
}

func run() int {
	headless := pflag.Bool("headless", false, "run tests without the dock and print the result tree")
	only := pflag.String("run", "", "full name of the test or suite to run (headless only)")
	dir := pflag.StringP("dir", "C", "", "directory to run go test in")
	saveConfig := pflag.Bool("save-config", false, "write the effective configuration to the config file and exit")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if *dir != "" {
		cfg.Framework.Dir = *dir
	}
	if *saveConfig {
		if err := config.Save(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return 2
		}
		return 0
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log: %v\n", err)
		return 2
	}
	defer closer.Close()

	var store *history.Store
	if cfg.History.Enabled {
		s, closeDB, err := openHistory(ctx, cfg.History, logging.Component(logger, "history"))
		if err != nil {
			logger.Warn().Err(err).Msg("run history disabled")
			fmt.Fprintf(os.Stderr, "warn: run history disabled: %v\n", err)
		} else {
			store = s
			defer closeDB()
		}
	}

	fw := gotest.New(gotest.Options{
		Command:  cfg.Framework.Command,
		Dir:      cfg.Framework.Dir,
		Packages: cfg.Framework.Packages,
		Args:     cfg.Framework.Args,
		Log:      logging.Component(logger, "gotest"),
	})
	q := uiqueue.New()
	var r *runner.Runner
	r = runner.New(fw, q,
		runner.WithLogger(logging.Component(logger, "runner")),
		runner.WithRunFinished(func(runID string) { logRunSummary(logger, r, runID) }),
	)

	if *headless {
		opts := report.Options{Test: *only, Out: os.Stdout, Log: logging.Component(logger, "report")}
		if store != nil {
			opts.History = store
		}
		out, err := report.Run(ctx, r, q, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		if out.Failed() {
			return 1
		}
		return 0
	}

	uiOpts := tui.Options{UI: cfg.UI, Log: logging.Component(logger, "tui")}
	if store != nil {
		uiOpts.History = store
	}
	app, err := tui.New(ctx, r, q, uiOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keys: %v\n", err)
		return 2
	}
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		fmt.Printf("error: %v\n", err)
		return 1
	}
	return 0
}

func openHistory(ctx context.Context, cfg config.HistoryConfig, log zerolog.Logger) (*history.Store, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("mkdir history dir: %w", err)
	}
	if err := history.RunMigrations(cfg.Path); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := history.Open(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	store := history.NewStore(db)
	if cfg.Keep > 0 {
		n, err := store.Prune(ctx, cfg.Keep)
		if err != nil {
			log.Warn().Err(err).Msg("pruning run history failed")
		} else if n > 0 {
			log.Info().Int64("runs", n).Msg("pruned run history")
		}
	}
	return store, func() { _ = db.Close() }, nil
}

func logRunSummary(log zerolog.Logger, r *runner.Runner, runID string) {
	tree, ok := r.Tree()
	if !ok {
		return
	}
	sum := results.Summarize(tree, r.Store(), tree.Root().ID)
	log.Info().
		Str("run", runID).
		Int("passed", sum.Passed).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Int("total", sum.Total).
		Msg("run summary")
}
