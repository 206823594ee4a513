// Package orchestrator drives screenshot jobs through the runner: a fixed
// catalog in batch mode, or one caller-supplied job in single mode.
//
// Job outcomes are values, never errors. A batch continues past missing
// patterns, failures and timeouts, and only setup problems (the output
// directory) abort it.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/lifeshots/pkg/catalog"
	"github.com/3leaps/lifeshots/pkg/layout"
	"github.com/3leaps/lifeshots/pkg/output"
	"github.com/3leaps/lifeshots/pkg/publish"
	"github.com/3leaps/lifeshots/pkg/runner"
	"github.com/3leaps/lifeshots/pkg/runstore"
)

// DefaultBudget is the wall-clock limit for a single simulator run.
const DefaultBudget = 10 * time.Second

// JobRunner executes one job. *runner.Runner satisfies it.
type JobRunner interface {
	Run(ctx context.Context, job catalog.JobDescriptor, patternPath, outputPath string, budget time.Duration) runner.Result
}

// Publisher copies a finished artifact somewhere else. *publish.Publisher
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, localPath, name string) (publish.Result, error)
	Destination() string
}

// Config tunes batch execution.
type Config struct {
	// Budget is the per-job time limit. Default: 10s
	Budget time.Duration

	// Workers bounds concurrent jobs. 1 runs jobs one at a time in catalog
	// order. Default: 1
	Workers int

	// SpawnRate caps simulator launches per second. Zero means unlimited.
	SpawnRate float64
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Budget:  DefaultBudget,
		Workers: 1,
	}
}

// JobReport pairs a job with its result and catalog position.
type JobReport struct {
	Index  int
	Job    catalog.JobDescriptor
	Result runner.Result

	// Published is the artifact's publish location, if it was published.
	Published string
}

// Orchestrator runs screenshot jobs.
//
// An Orchestrator is intended for a single run; RunID identifies it in
// records and the run registry.
type Orchestrator struct {
	paths   layout.Paths
	catalog *catalog.Catalog
	runner  JobRunner
	config  Config

	status        io.Writer
	records       output.Writer
	store         *runstore.Store
	publisher     Publisher
	logger        *zap.Logger
	runID         string
	catalogSource string

	limiter  *rate.Limiter
	statusMu sync.Mutex
}

// New creates an orchestrator over cat using paths for file locations.
// Status lines go to os.Stdout unless WithStatus overrides it.
func New(paths layout.Paths, cat *catalog.Catalog, r JobRunner, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cat == nil {
		cat = catalog.New()
	}

	o := &Orchestrator{
		paths:   paths,
		catalog: cat,
		runner:  r,
		config:  cfg,
		status:  os.Stdout,
		records: output.Discard,
		logger:  zap.NewNop(),
		runID:   uuid.NewString(),
	}
	if cfg.SpawnRate > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.SpawnRate), 1)
	}
	return o
}

// WithStatus sets the writer that receives human-readable status lines.
func (o *Orchestrator) WithStatus(w io.Writer) *Orchestrator {
	if w == nil {
		w = io.Discard
	}
	o.status = w
	return o
}

// WithRecords sets the JSONL record writer.
func (o *Orchestrator) WithRecords(w output.Writer) *Orchestrator {
	if w == nil {
		w = output.Discard
	}
	o.records = w
	return o
}

// WithStore enables persisting a run record.
func (o *Orchestrator) WithStore(s *runstore.Store) *Orchestrator {
	o.store = s
	return o
}

// WithPublisher enables publishing successful artifacts.
func (o *Orchestrator) WithPublisher(p Publisher) *Orchestrator {
	o.publisher = p
	return o
}

func (o *Orchestrator) WithLogger(l *zap.Logger) *Orchestrator {
	if l == nil {
		l = zap.NewNop()
	}
	o.logger = l
	return o
}

// WithRunID overrides the generated run id.
func (o *Orchestrator) WithRunID(id string) *Orchestrator {
	if strings.TrimSpace(id) != "" {
		o.runID = id
	}
	return o
}

// WithCatalogSource records where the catalog came from (a manifest path,
// a discovery glob, or "builtin").
func (o *Orchestrator) WithCatalogSource(src string) *Orchestrator {
	o.catalogSource = src
	return o
}

func (o *Orchestrator) RunID() string { return o.runID }

func (o *Orchestrator) Config() Config { return o.config }

// PlannedJob is a catalog entry with its resolved paths.
type PlannedJob struct {
	Index       int
	Job         catalog.JobDescriptor
	PatternPath string
	OutputPath  string

	// Missing is true when the pattern source does not exist.
	Missing bool
}

// Plan resolves every catalog entry against the layout without running
// anything.
func (o *Orchestrator) Plan() []PlannedJob {
	entries := o.catalog.Entries()
	plan := make([]PlannedJob, len(entries))
	for i, job := range entries {
		pattern := o.paths.PatternPath(job.PatternID)
		plan[i] = PlannedJob{
			Index:       i,
			Job:         job,
			PatternPath: pattern,
			OutputPath:  o.paths.ArtifactPath(job.PatternID),
			Missing:     !exists(pattern),
		}
	}
	return plan
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RunBatch generates a screenshot for every catalog entry.
//
// The returned reports are in catalog order. The only error is a failure to
// create the screenshots directory, in which case nothing runs.
func (o *Orchestrator) RunBatch(ctx context.Context) ([]JobReport, error) {
	start := time.Now()

	if err := o.paths.EnsureScreenshotsDir(); err != nil {
		return nil, fmt.Errorf("create screenshots dir %s: %w", o.paths.ScreenshotsDir, err)
	}

	o.printf("Generating screenshots in %s\n", o.paths.ScreenshotsDir)
	o.printf("%s\n", strings.Repeat("-", 50))

	plan := o.Plan()
	rec := o.beginRecord(runstore.ModeBatch, start)

	o.logger.Info("Starting batch",
		zap.String("run_id", o.runID),
		zap.Int("jobs", len(plan)),
		zap.Int("workers", o.config.Workers),
		zap.Duration("budget", o.config.Budget),
		zap.String("screenshots_dir", o.paths.ScreenshotsDir),
	)

	var reports []JobReport
	if o.config.Workers <= 1 {
		reports = o.runSequential(ctx, plan)
	} else {
		reports = o.runPool(ctx, plan)
	}

	o.printf("\nScreenshot generation complete!\n")

	o.finish(ctx, rec, reports, start, o.paths.ScreenshotsDir)
	return reports, nil
}

// RunSingle runs one job against explicit paths. Relative paths are made
// absolute; no directory is created and the pattern is not pre-checked.
func (o *Orchestrator) RunSingle(ctx context.Context, job catalog.JobDescriptor, patternPath, outputPath string) runner.Result {
	start := time.Now()

	if abs, err := filepath.Abs(patternPath); err == nil {
		patternPath = abs
	}
	if abs, err := filepath.Abs(outputPath); err == nil {
		outputPath = abs
	}

	rec := o.beginRecord(runstore.ModeSingle, start)

	o.printf("Generating %s...\n", filepath.Base(outputPath))
	report := o.execute(ctx, PlannedJob{Job: job, PatternPath: patternPath, OutputPath: outputPath})
	o.printf("%s\n", resultLine(report.Result))

	o.finish(ctx, rec, []JobReport{report}, start, "")
	return report.Result
}

func (o *Orchestrator) runSequential(ctx context.Context, plan []PlannedJob) []JobReport {
	reports := make([]JobReport, 0, len(plan))
	for _, pj := range plan {
		if pj.Missing {
			report := o.skip(ctx, pj)
			o.printf("%s\n", skipLine(report.Result))
			reports = append(reports, report)
			continue
		}
		if err := ctx.Err(); err != nil {
			reports = append(reports, o.cancelled(ctx, pj, err))
			continue
		}
		o.printf("Generating %s...\n", filepath.Base(pj.OutputPath))
		report := o.runPlanned(ctx, pj)
		o.printf("%s\n", resultLine(report.Result))
		reports = append(reports, report)
	}
	return reports
}

// runPool runs jobs on a semaphore-bounded pool. Status lines are held
// until every job has finished and then printed in catalog order, exactly
// as runSequential would print them.
func (o *Orchestrator) runPool(ctx context.Context, plan []PlannedJob) []JobReport {
	sem := make(chan struct{}, o.config.Workers)
	results := make(chan JobReport, len(plan))
	started := make([]bool, len(plan))

	var wg sync.WaitGroup
	for _, pj := range plan {
		if pj.Missing {
			results <- o.skip(ctx, pj)
			continue
		}

		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if err := ctx.Err(); err != nil {
			results <- o.cancelled(ctx, pj, err)
			continue
		}

		started[pj.Index] = true
		wg.Add(1)
		go func(pj PlannedJob) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- o.runPlanned(ctx, pj)
		}(pj)
	}

	wg.Wait()
	close(results)

	reports := make([]JobReport, len(plan))
	for r := range results {
		reports[r.Index] = r
	}

	for i, r := range reports {
		switch {
		case r.Result.Outcome == runner.OutcomeSkipped:
			o.printf("%s\n", skipLine(r.Result))
		case started[i]:
			o.printf("Generating %s...\n%s\n", filepath.Base(plan[i].OutputPath), resultLine(r.Result))
		}
	}
	return reports
}

// runPlanned creates the artifact's parent directory and executes a batch
// job. Pattern ids in subfolders put artifacts below the screenshots dir.
func (o *Orchestrator) runPlanned(ctx context.Context, pj PlannedJob) JobReport {
	if err := o.paths.EnsureArtifactDir(pj.OutputPath); err != nil {
		res := runner.Failed(runner.ExitCodeUnknown, err.Error())
		res.PatternPath = pj.PatternPath
		res.OutputPath = pj.OutputPath
		report := JobReport{Index: pj.Index, Job: pj.Job, Result: res}
		o.logResult(report)
		o.recordJob(ctx, report)
		return report
	}
	return o.execute(ctx, pj)
}

// execute runs one job, records it, and publishes its artifact on success.
func (o *Orchestrator) execute(ctx context.Context, pj PlannedJob) JobReport {
	report := JobReport{Index: pj.Index, Job: pj.Job}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			report.Result = runner.Cancelled(err)
			report.Result.PatternPath = pj.PatternPath
			report.Result.OutputPath = pj.OutputPath
			o.recordJob(ctx, report)
			return report
		}
	}

	o.logger.Debug("Running job",
		zap.String("pattern_id", pj.Job.PatternID),
		zap.String("pattern", pj.PatternPath),
		zap.String("output", pj.OutputPath),
	)

	report.Result = o.runner.Run(ctx, pj.Job, pj.PatternPath, pj.OutputPath, o.config.Budget)
	o.logResult(report)
	o.recordJob(ctx, report)

	if report.Result.OK() && o.publisher != nil {
		report.Published = o.publishArtifact(ctx, report)
	}
	return report
}

func (o *Orchestrator) skip(ctx context.Context, pj PlannedJob) JobReport {
	report := JobReport{Index: pj.Index, Job: pj.Job, Result: runner.Skipped(pj.PatternPath)}
	o.logger.Warn("Pattern not found", zap.String("pattern_id", pj.Job.PatternID), zap.String("pattern", pj.PatternPath))
	o.recordJob(ctx, report)
	return report
}

func (o *Orchestrator) cancelled(ctx context.Context, pj PlannedJob, cause error) JobReport {
	res := runner.Cancelled(cause)
	res.PatternPath = pj.PatternPath
	res.OutputPath = pj.OutputPath
	report := JobReport{Index: pj.Index, Job: pj.Job, Result: res}
	o.recordJob(ctx, report)
	return report
}

func (o *Orchestrator) publishArtifact(ctx context.Context, report JobReport) string {
	res, err := o.publisher.Publish(ctx, report.Result.OutputPath, o.artifactName(report.Result.OutputPath))
	rec := &output.PublishRecord{
		PatternID:   report.Job.PatternID,
		Source:      report.Result.OutputPath,
		Destination: res.Destination,
		Bytes:       res.Bytes,
	}
	if err != nil {
		rec.Error = err.Error()
		o.logger.Warn("Publish failed",
			zap.String("pattern_id", report.Job.PatternID),
			zap.String("destination", o.publisher.Destination()),
			zap.Error(err),
		)
		o.writeRecord("publish", o.records.WritePublish(ctx, rec))
		o.writeRecord("error", o.records.WriteError(ctx, &output.ErrorRecord{
			Code:      output.ErrCodePublish,
			Message:   err.Error(),
			PatternID: report.Job.PatternID,
		}))
		return ""
	}

	o.logger.Info("Published artifact",
		zap.String("pattern_id", report.Job.PatternID),
		zap.String("destination", res.Destination),
		zap.Int64("bytes", res.Bytes),
	)
	o.writeRecord("publish", o.records.WritePublish(ctx, rec))
	return res.Destination
}

// artifactName returns path relative to the screenshots dir in slash form,
// or its base name when it lies outside that dir.
func (o *Orchestrator) artifactName(path string) string {
	if o.paths.ScreenshotsDir != "" {
		rel, err := filepath.Rel(o.paths.ScreenshotsDir, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}

func (o *Orchestrator) logResult(report JobReport) {
	res := report.Result
	fields := []zap.Field{
		zap.String("pattern_id", report.Job.PatternID),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", res.Duration),
	}
	switch res.Outcome {
	case runner.OutcomeSuccess:
		o.logger.Debug("Job finished", fields...)
	case runner.OutcomeTimedOut:
		o.logger.Warn("Job timed out", append(fields, zap.Duration("budget", res.Budget))...)
	default:
		o.logger.Warn("Job failed", append(fields,
			zap.Int("exit_code", res.ExitCode),
			zap.String("cause", res.Cause),
			zap.String("stderr", res.Stderr),
		)...)
	}
}

// resultLine renders the per-job status line that follows "Generating ...".
func resultLine(res runner.Result) string {
	switch res.Outcome {
	case runner.OutcomeSuccess:
		return fmt.Sprintf("  ✓ Saved to %s", res.OutputPath)
	case runner.OutcomeTimedOut:
		return fmt.Sprintf("  ⚠️  Timed out generating %s", res.OutputPath)
	default:
		return fmt.Sprintf("  ❌ Error generating %s: %s", res.OutputPath, res.Cause)
	}
}

func skipLine(res runner.Result) string {
	return fmt.Sprintf("⚠️  Pattern not found: %s", res.PatternPath)
}

func (o *Orchestrator) printf(format string, args ...any) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	_, _ = fmt.Fprintf(o.status, format, args...)
}
