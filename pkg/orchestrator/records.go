package orchestrator

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/lifeshots/pkg/output"
	"github.com/3leaps/lifeshots/pkg/runner"
	"github.com/3leaps/lifeshots/pkg/runstore"
)

// Tally counts report outcomes.
func Tally(reports []JobReport) runstore.Counts {
	c := runstore.Counts{Total: len(reports)}
	for _, r := range reports {
		switch r.Result.Outcome {
		case runner.OutcomeSuccess:
			c.Succeeded++
		case runner.OutcomeTimedOut:
			c.TimedOut++
		case runner.OutcomeSkipped:
			c.Skipped++
		default:
			c.Failed++
		}
	}
	return c
}

// HasProblems reports whether any job failed or timed out.
func HasProblems(reports []JobReport) bool {
	for _, r := range reports {
		if r.Result.Problem() {
			return true
		}
	}
	return false
}

// recordJob emits the job record. Records are written even after the run
// context is cancelled so the stream stays complete.
func (o *Orchestrator) recordJob(ctx context.Context, report JobReport) {
	ctx = context.WithoutCancel(ctx)
	res := report.Result
	o.writeRecord("job", o.records.WriteJob(ctx, &output.JobRecord{
		Index:       report.Index,
		PatternID:   report.Job.PatternID,
		DisplayName: report.Job.DisplayName,
		Rows:        report.Job.Rows,
		Cols:        report.Job.Cols,
		Outcome:     string(res.Outcome),
		PatternPath: res.PatternPath,
		OutputPath:  res.OutputPath,
		ExitCode:    res.ExitCode,
		Cause:       res.Cause,
		Stderr:      res.Stderr,
		Budget:      o.config.Budget,
		Duration:    res.Duration,
	}))
}

func (o *Orchestrator) writeRecord(kind string, err error) {
	if err != nil {
		o.logger.Warn("Failed to write record", zap.String("record", kind), zap.Error(err))
	}
}

// beginRecord persists a running run record when a store is configured.
func (o *Orchestrator) beginRecord(mode runstore.Mode, start time.Time) *runstore.RunRecord {
	if o.store == nil {
		return nil
	}
	started := start.UTC()
	rec := &runstore.RunRecord{
		RunID:     o.runID,
		Mode:      mode,
		State:     runstore.RunStateRunning,
		PID:       os.Getpid(),
		Catalog:   o.catalogSource,
		CreatedAt: started,
		StartedAt: &started,
	}
	if mode == runstore.ModeBatch {
		rec.OutputDir = o.paths.ScreenshotsDir
	}
	o.persist(context.Background(), rec)
	return rec
}

// finish writes the summary record and the final run record.
func (o *Orchestrator) finish(ctx context.Context, rec *runstore.RunRecord, reports []JobReport, start time.Time, outputDir string) {
	ctx = context.WithoutCancel(ctx)
	counts := Tally(reports)
	elapsed := time.Since(start)

	o.writeRecord("summary", o.records.WriteSummary(ctx, &output.SummaryRecord{
		Total:         counts.Total,
		Succeeded:     counts.Succeeded,
		Failed:        counts.Failed,
		TimedOut:      counts.TimedOut,
		Skipped:       counts.Skipped,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
		OutputDir:     outputDir,
	}))

	o.logger.Info("Run complete",
		zap.String("run_id", o.runID),
		zap.Int("succeeded", counts.Succeeded),
		zap.Int("failed", counts.Failed),
		zap.Int("timed_out", counts.TimedOut),
		zap.Int("skipped", counts.Skipped),
		zap.Duration("duration", elapsed),
	)

	if rec == nil {
		return
	}
	ended := time.Now().UTC()
	rec.EndedAt = &ended
	rec.Counts = counts
	rec.State = runstore.StateFor(counts)
	if wasCancelled(reports) {
		rec.State = runstore.RunStateCancelled
	}
	rec.Jobs = make([]runstore.JobEntry, len(reports))
	for i, r := range reports {
		rec.Jobs[i] = runstore.JobEntry{
			Index:       r.Index,
			PatternID:   r.Job.PatternID,
			Rows:        r.Job.Rows,
			Cols:        r.Job.Cols,
			Outcome:     string(r.Result.Outcome),
			PatternPath: r.Result.PatternPath,
			OutputPath:  r.Result.OutputPath,
			ExitCode:    r.Result.ExitCode,
			Cause:       r.Result.Cause,
			DurationMs:  r.Result.Duration.Milliseconds(),
			Published:   r.Published,
		}
	}
	o.persist(ctx, rec)
}

func (o *Orchestrator) persist(ctx context.Context, rec *runstore.RunRecord) {
	if err := o.store.Write(rec); err != nil {
		o.logger.Warn("Failed to write run record", zap.String("run_id", rec.RunID), zap.Error(err))
		o.writeRecord("error", o.records.WriteError(ctx, &output.ErrorRecord{
			Code:    output.ErrCodeRegistry,
			Message: err.Error(),
		}))
	}
}

func wasCancelled(reports []JobReport) bool {
	for _, r := range reports {
		if r.Result.WasCancelled() {
			return true
		}
	}
	return false
}
