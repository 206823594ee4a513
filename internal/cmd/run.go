package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/lifeshots/internal/config"
	"github.com/3leaps/lifeshots/internal/observability"
	"github.com/3leaps/lifeshots/pkg/catalog"
	"github.com/3leaps/lifeshots/pkg/layout"
	"github.com/3leaps/lifeshots/pkg/orchestrator"
	"github.com/3leaps/lifeshots/pkg/output"
	"github.com/3leaps/lifeshots/pkg/publish"
	"github.com/3leaps/lifeshots/pkg/runner"
	"github.com/3leaps/lifeshots/pkg/runstore"
)

// runOptions are per-invocation settings that never come from config.
type runOptions struct {
	records string
	dryRun  bool
}

type singleJob struct {
	pattern string
	output  string
	rows    int
	cols    int
}

func resolvePaths(cfg *config.Config) (layout.Paths, error) {
	return layout.Resolve(layout.Options{
		Root:           cfg.Paths.Root,
		PatternsDir:    cfg.Paths.PatternsDir,
		ScreenshotsDir: cfg.Paths.ScreenshotsDir,
		Simulator:      cfg.Paths.Simulator,
	})
}

func newRunner(cfg *config.Config, paths layout.Paths) *runner.Runner {
	return runner.New(runner.Config{
		Interpreter: cfg.Simulator.Interpreter,
		Simulator:   paths.Simulator,
		WorkDir:     paths.Root,
		FPS:         cfg.Simulator.FPS,
		Generations: cfg.Simulator.Generations,
		ExtraArgs:   cfg.Simulator.ExtraArgs,
		Env:         cfg.Simulator.Env,
		StderrLimit: cfg.Simulator.StderrLimit,
	})
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		Budget:    cfg.Batch.Timeout,
		Workers:   cfg.Batch.Workers,
		SpawnRate: cfg.Batch.SpawnRate,
	}
}

// loadCatalog picks the catalog source: a manifest, a discovery glob, or
// the built-in list. The returned string names the source for run records.
func loadCatalog(cfg *config.Config, paths layout.Paths) (*catalog.Catalog, string, error) {
	switch {
	case cfg.Batch.Catalog != "":
		cat, err := catalog.Load(cfg.Batch.Catalog)
		return cat, cfg.Batch.Catalog, err
	case cfg.Batch.Discover != "":
		cat, err := catalog.Discover(paths.PatternsDir, cfg.Batch.Discover, catalog.DefaultRows, catalog.DefaultCols)
		return cat, "discover:" + cfg.Batch.Discover, err
	default:
		return catalog.Default(), "builtin", nil
	}
}

func catalogExitCode(err error) int {
	if errors.Is(err, fs.ErrNotExist) {
		return foundry.ExitFileNotFound
	}
	return foundry.ExitInvalidArgument
}

func writesToStdout(dest string) bool {
	return dest == "-" || dest == "stdout"
}

// openRecords creates the JSONL record writer. An empty destination
// disables records; "-" writes them to stdout.
func openRecords(dest string, stdout io.Writer, runID string, mode runstore.Mode) (output.Writer, func(), error) {
	if dest == "" {
		return output.Discard, func() {}, nil
	}

	if writesToStdout(dest) {
		w := output.NewJSONLWriter(stdout, runID, string(mode))
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create records file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, runID, string(mode))
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}

// openStore returns the run registry, or nil when it is disabled.
func openStore(cfg *config.Config) *runstore.Store {
	if !cfg.Runs.Enabled {
		return nil
	}
	return runstore.NewStore(cfg.RunsDir())
}

func pruneRuns(store *runstore.Store, keep int) {
	if store == nil || keep <= 0 {
		return
	}
	removed, err := store.Prune(keep)
	if err != nil {
		observability.CLILogger.Warn("Failed to prune run registry",
			zap.String("dir", store.RootDir()),
			zap.Error(err))
		return
	}
	if removed > 0 {
		observability.CLILogger.Debug("Pruned run registry",
			zap.Int("removed", removed),
			zap.Int("keep", keep))
	}
}

// openPublisher returns nil when publishing is not configured.
func openPublisher(ctx context.Context, cfg *config.Config) (*publish.Publisher, error) {
	if strings.TrimSpace(cfg.Publish.URI) == "" {
		return nil, nil
	}
	pub, err := publish.Open(ctx, cfg.Publish.URI, publish.Options{
		Region:         cfg.Publish.Region,
		Endpoint:       cfg.Publish.Endpoint,
		Profile:        cfg.Publish.Profile,
		ForcePathStyle: cfg.Publish.ForcePathStyle,
		DetectRegion:   cfg.Publish.DetectRegion,
		Verify:         cfg.Publish.Verify,
	})
	if err != nil {
		if errors.Is(err, publish.ErrInvalidURI) ||
			errors.Is(err, publish.ErrUnsupportedProvider) ||
			errors.Is(err, publish.ErrMissingBucket) {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid publish destination", err)
		}
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Cannot open publish destination", err)
	}
	observability.CLILogger.Debug("Publishing enabled", zap.String("destination", pub.Destination()))
	return pub, nil
}

// attach wires records, the run registry and the publisher into orch.
// The returned cleanup must run after the orchestrator finishes.
func attach(ctx context.Context, orch *orchestrator.Orchestrator, cfg *config.Config, opts runOptions, mode runstore.Mode, stdout, stderr io.Writer) (func(), error) {
	status := stdout
	if writesToStdout(opts.records) {
		status = stderr
	}

	records, closeRecords, err := openRecords(opts.records, stdout, orch.RunID(), mode)
	if err != nil {
		return nil, exitError(foundry.ExitFileWriteError, "Cannot open records output", err)
	}
	orch.WithStatus(status).WithRecords(records)

	pub, err := openPublisher(ctx, cfg)
	if err != nil {
		closeRecords()
		return nil, err
	}
	if pub != nil {
		orch.WithPublisher(pub)
	}

	store := openStore(cfg)
	if store != nil {
		orch.WithStore(store)
	}

	return func() {
		if pub != nil {
			_ = pub.Close()
		}
		closeRecords()
		pruneRuns(store, cfg.Runs.Keep)
	}, nil
}

func runBatch(ctx context.Context, cfg *config.Config, opts runOptions, stdout, stderr io.Writer) error {
	paths, err := resolvePaths(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve project root", err)
	}

	cat, source, err := loadCatalog(cfg, paths)
	if err != nil {
		observability.CLILogger.Error("Failed to load catalog",
			zap.String("source", source),
			zap.Error(err))
		return exitError(catalogExitCode(err), "Invalid catalog", err)
	}

	r := newRunner(cfg, paths)
	orch := orchestrator.New(paths, cat, r, orchestratorConfig(cfg)).
		WithLogger(observability.CLILogger).
		WithCatalogSource(source)

	if opts.dryRun {
		showPlan(stdout, orch, r)
		return nil
	}

	cleanup, err := attach(ctx, orch, cfg, opts, runstore.ModeBatch, stdout, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	observability.CLILogger.Debug("Starting screenshot run",
		zap.String("run_id", orch.RunID()),
		zap.String("catalog", source),
		zap.Int("jobs", cat.Len()),
		zap.String("screenshots_dir", paths.ScreenshotsDir))

	reports, err := orch.RunBatch(ctx)
	if err != nil {
		observability.CLILogger.Error("Failed to create screenshots directory",
			zap.String("dir", paths.ScreenshotsDir),
			zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Cannot create screenshots directory", err)
	}

	if ctx.Err() != nil {
		return exitError(foundry.ExitSignalInt, "Screenshot run cancelled", ctx.Err())
	}
	if cfg.Batch.Strict && orchestrator.HasProblems(reports) {
		c := orchestrator.Tally(reports)
		return exitError(exitJobsFailed, "Screenshot run had failures",
			fmt.Errorf("failed=%d timed_out=%d", c.Failed, c.TimedOut))
	}
	return nil
}

func runSingle(ctx context.Context, cfg *config.Config, job singleJob, opts runOptions, stdout, stderr io.Writer) error {
	desc := catalog.NewJob(filepath.Base(job.pattern), job.rows, job.cols, "")
	if err := desc.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid screenshot request", err)
	}

	paths, err := resolvePaths(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve project root", err)
	}

	r := newRunner(cfg, paths)
	if opts.dryRun {
		inv := r.Invocation(desc, job.pattern, job.output)
		_, _ = fmt.Fprintf(stdout, "%s\n", strings.Join(inv.Argv(), " "))
		return nil
	}

	orch := orchestrator.New(paths, nil, r, orchestratorConfig(cfg)).
		WithLogger(observability.CLILogger)

	cleanup, err := attach(ctx, orch, cfg, opts, runstore.ModeSingle, stdout, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	res := orch.RunSingle(ctx, desc, job.pattern, job.output)

	if ctx.Err() != nil {
		return exitError(foundry.ExitSignalInt, "Screenshot cancelled", ctx.Err())
	}
	if cfg.Batch.Strict && res.Problem() {
		return exitError(exitJobsFailed, "Screenshot failed", fmt.Errorf("outcome=%s", res.Outcome))
	}
	return nil
}

// showPlan prints what a batch run would execute.
func showPlan(w io.Writer, orch *orchestrator.Orchestrator, r *runner.Runner) {
	plan := orch.Plan()
	_, _ = fmt.Fprintf(w, "Dry run: %d screenshot(s), budget %s each\n", len(plan), orch.Config().Budget)
	for _, pj := range plan {
		if pj.Missing {
			_, _ = fmt.Fprintf(w, "  [skip] %s: pattern not found: %s\n", pj.Job.PatternID, pj.PatternPath)
			continue
		}
		inv := r.Invocation(pj.Job, pj.PatternPath, pj.OutputPath)
		_, _ = fmt.Fprintf(w, "  %s\n", strings.Join(inv.Argv(), " "))
	}
}
