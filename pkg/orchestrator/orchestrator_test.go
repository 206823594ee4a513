package orchestrator_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lifeshots/internal/simtest"
	"github.com/3leaps/lifeshots/pkg/catalog"
	"github.com/3leaps/lifeshots/pkg/layout"
	"github.com/3leaps/lifeshots/pkg/orchestrator"
	"github.com/3leaps/lifeshots/pkg/output"
	"github.com/3leaps/lifeshots/pkg/publish"
	"github.com/3leaps/lifeshots/pkg/runner"
	"github.com/3leaps/lifeshots/pkg/runstore"
)

func testPaths(t *testing.T) layout.Paths {
	t.Helper()
	root := t.TempDir()
	paths := layout.Paths{
		Root:           root,
		PatternsDir:    filepath.Join(root, "examples", "patterns"),
		ScreenshotsDir: filepath.Join(root, "docs", "images", "screenshots"),
		Simulator:      filepath.Join(root, "life", "game_of_life.py"),
	}
	require.NoError(t, os.MkdirAll(paths.PatternsDir, 0o755))
	return paths
}

func addPattern(t *testing.T, paths layout.Paths, id string) {
	t.Helper()
	path := paths.PatternPath(id)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("!Name: test\n.O.\n.O.\n.O.\n"), 0o644))
}

func stubRunner(t *testing.T, paths layout.Paths) (*runner.Runner, string) {
	t.Helper()
	logPath := filepath.Join(paths.Root, "stub.log")
	return runner.New(simtest.StubConfig(t, paths.Root, logPath)), logPath
}

func spyRunner(spy *simtest.SpyLauncher) *runner.Runner {
	return runner.New(runner.Config{Interpreter: "python3", Simulator: "/proj/life/game_of_life.py"}).WithLauncher(spy)
}

// slowRunner holds the listed pattern ids for a while before running them.
type slowRunner struct {
	orchestrator.JobRunner
	delays map[string]time.Duration
}

func (s slowRunner) Run(ctx context.Context, job catalog.JobDescriptor, patternPath, outputPath string, budget time.Duration) runner.Result {
	if d, ok := s.delays[job.PatternID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}
	return s.JobRunner.Run(ctx, job, patternPath, outputPath, budget)
}

func outcomes(reports []orchestrator.JobReport) []runner.Outcome {
	out := make([]runner.Outcome, len(reports))
	for i, r := range reports {
		out[i] = r.Result.Outcome
	}
	return out
}

func logLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunBatchOnlyBlinkerPresent(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "blinker.cells")
	r, logPath := stubRunner(t, paths)

	var status bytes.Buffer
	o := orchestrator.New(paths, catalog.Default(), r, orchestrator.DefaultConfig()).WithStatus(&status)

	reports, err := o.RunBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 3)
	assert.Equal(t, []runner.Outcome{runner.OutcomeSkipped, runner.OutcomeSuccess, runner.OutcomeSkipped}, outcomes(reports))
	assert.Equal(t, paths.PatternPath("glider.cells"), reports[0].Result.PatternPath)
	assert.Equal(t, paths.PatternPath("glider_gun.cells"), reports[2].Result.PatternPath)

	artifact := paths.ArtifactPath("blinker.cells")
	assert.Equal(t, artifact, reports[1].Result.OutputPath)
	assert.FileExists(t, artifact)

	lines := logLines(t, logPath)
	require.Len(t, lines, 1, "exactly one simulator run")
	assert.Equal(t, paths.PatternPath("blinker.cells")+" "+artifact, lines[0])

	expected := strings.Join([]string{
		"Generating screenshots in " + paths.ScreenshotsDir,
		strings.Repeat("-", 50),
		"⚠️  Pattern not found: " + paths.PatternPath("glider.cells"),
		"Generating blinker.cells.png...",
		"  ✓ Saved to " + artifact,
		"⚠️  Pattern not found: " + paths.PatternPath("glider_gun.cells"),
		"",
		"Screenshot generation complete!",
		"",
	}, "\n")
	assert.Equal(t, expected, status.String())
}

func TestRunBatchMissingPatternsSpawnNothing(t *testing.T) {
	paths := testPaths(t)
	spy := &simtest.SpyLauncher{}

	reports, err := orchestrator.New(paths, catalog.Default(), spyRunner(spy), orchestrator.DefaultConfig()).
		WithStatus(nil).
		RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, spy.Count())
	for _, r := range reports {
		assert.Equal(t, runner.OutcomeSkipped, r.Result.Outcome)
		assert.Equal(t, "missing_source", r.Result.Cause)
	}
	assert.DirExists(t, paths.ScreenshotsDir)
}

func TestRunBatchFailuresAreIsolated(t *testing.T) {
	paths := testPaths(t)
	for _, id := range []string{"hang.cells", "fail.cells", "ok.cells"} {
		addPattern(t, paths, id)
	}
	r, logPath := stubRunner(t, paths)

	cat := catalog.New(
		catalog.NewJob("hang.cells", 10, 10, ""),
		catalog.NewJob("fail.cells", 10, 10, ""),
		catalog.NewJob("ok.cells", 10, 10, ""),
	)
	cfg := orchestrator.DefaultConfig()
	cfg.Budget = 300 * time.Millisecond

	var status bytes.Buffer
	start := time.Now()
	reports, err := orchestrator.New(paths, cat, r, cfg).WithStatus(&status).RunBatch(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 3*cfg.Budget+5*time.Second)
	assert.Equal(t, []runner.Outcome{runner.OutcomeTimedOut, runner.OutcomeFailed, runner.OutcomeSuccess}, outcomes(reports))
	assert.Equal(t, 3, reports[1].Result.ExitCode)
	assert.Len(t, logLines(t, logPath), 3, "every job ran despite earlier problems")

	out := status.String()
	assert.Contains(t, out, "  ⚠️  Timed out generating "+paths.ArtifactPath("hang.cells"))
	assert.Contains(t, out, "  ❌ Error generating "+paths.ArtifactPath("fail.cells")+": exit status 3")
	assert.Contains(t, out, "  ✓ Saved to "+paths.ArtifactPath("ok.cells"))
	assert.True(t, orchestrator.HasProblems(reports))
}

func TestRunBatchOutputDirIsIdempotent(t *testing.T) {
	paths := testPaths(t)
	spy := &simtest.SpyLauncher{}

	require.NoError(t, os.MkdirAll(paths.ScreenshotsDir, 0o755))
	keep := filepath.Join(paths.ScreenshotsDir, "existing.png")
	require.NoError(t, os.WriteFile(keep, []byte("old"), 0o644))

	for i := 0; i < 2; i++ {
		_, err := orchestrator.New(paths, catalog.Default(), spyRunner(spy), orchestrator.DefaultConfig()).
			WithStatus(nil).
			RunBatch(context.Background())
		require.NoError(t, err)
	}
	assert.FileExists(t, keep)
}

func TestRunBatchOutputDirFailure(t *testing.T) {
	paths := testPaths(t)
	blocker := filepath.Join(paths.Root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	paths.ScreenshotsDir = filepath.Join(blocker, "screenshots")
	addPattern(t, paths, "glider.cells")

	spy := &simtest.SpyLauncher{}
	var status bytes.Buffer
	reports, err := orchestrator.New(paths, catalog.Default(), spyRunner(spy), orchestrator.DefaultConfig()).
		WithStatus(&status).
		RunBatch(context.Background())

	require.Error(t, err)
	assert.Nil(t, reports)
	assert.Equal(t, 0, spy.Count())
	assert.Empty(t, status.String())
}

func TestRunBatchWorkerPoolKeepsCatalogOrder(t *testing.T) {
	paths := testPaths(t)
	var jobs []catalog.JobDescriptor
	for _, id := range []string{"a.cells", "b.cells", "c.cells", "d.cells", "e.cells"} {
		addPattern(t, paths, id)
		jobs = append(jobs, catalog.NewJob(id, 5, 5, ""))
	}
	spy := &simtest.SpyLauncher{Delay: 20 * time.Millisecond}
	r := slowRunner{JobRunner: spyRunner(spy), delays: map[string]time.Duration{"a.cells": 200 * time.Millisecond}}

	cfg := orchestrator.DefaultConfig()
	cfg.Workers = 3

	var status bytes.Buffer
	reports, err := orchestrator.New(paths, catalog.New(jobs...), r, cfg).WithStatus(&status).RunBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 5)
	for i, r := range reports {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, jobs[i].PatternID, r.Job.PatternID)
		assert.Equal(t, runner.OutcomeSuccess, r.Result.Outcome)
	}
	assert.Equal(t, 5, spy.Count())

	lines := []string{
		"Generating screenshots in " + paths.ScreenshotsDir,
		strings.Repeat("-", 50),
	}
	for _, job := range jobs {
		lines = append(lines,
			"Generating "+job.PatternID+".png...",
			"  ✓ Saved to "+paths.ArtifactPath(job.PatternID),
		)
	}
	lines = append(lines, "", "Screenshot generation complete!", "")
	assert.Equal(t, strings.Join(lines, "\n"), status.String())
}

func TestRunBatchWorkerPoolPrintsLikeSequential(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "a-slow.cells")
	addPattern(t, paths, "b.cells")
	addPattern(t, paths, "d.cells")
	cat := catalog.New(
		catalog.NewJob("a-slow.cells", 5, 5, ""),
		catalog.NewJob("b.cells", 5, 5, ""),
		catalog.NewJob("c-missing.cells", 5, 5, ""),
		catalog.NewJob("d.cells", 5, 5, ""),
	)
	delays := map[string]time.Duration{"a-slow.cells": 300 * time.Millisecond}

	render := func(workers int) string {
		cfg := orchestrator.DefaultConfig()
		cfg.Workers = workers
		r := slowRunner{JobRunner: spyRunner(&simtest.SpyLauncher{}), delays: delays}

		var status bytes.Buffer
		reports, err := orchestrator.New(paths, cat, r, cfg).WithStatus(&status).RunBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []runner.Outcome{
			runner.OutcomeSuccess, runner.OutcomeSuccess, runner.OutcomeSkipped, runner.OutcomeSuccess,
		}, outcomes(reports))
		return status.String()
	}

	pooled := render(2)
	assert.Equal(t, render(1), pooled)

	slow := strings.Index(pooled, "Generating a-slow.cells.png...")
	fast := strings.Index(pooled, "Generating b.cells.png...")
	missing := strings.Index(pooled, "⚠️  Pattern not found: "+paths.PatternPath("c-missing.cells"))
	require.True(t, slow >= 0 && fast >= 0 && missing >= 0, pooled)
	assert.Less(t, slow, fast)
	assert.Less(t, fast, missing)
}

func TestRunBatchCreatesSubfolderOutputDirs(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "spaceships/lwss.cells")
	r, _ := stubRunner(t, paths)

	cat := catalog.New(catalog.NewJob("spaceships/lwss.cells", 5, 5, ""))
	reports, err := orchestrator.New(paths, cat, r, orchestrator.DefaultConfig()).
		WithStatus(nil).
		RunBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, runner.OutcomeSuccess, reports[0].Result.Outcome, reports[0].Result.Stderr)
	assert.FileExists(t, filepath.Join(paths.ScreenshotsDir, "spaceships", "lwss.cells.png"))
}

func TestRunBatchWorkerPoolCreatesSubfolderOutputDirs(t *testing.T) {
	paths := testPaths(t)
	ids := []string{"oscillators/blinker.cells", "spaceships/lwss.cells", "spaceships/deep/hwss.cells"}
	var jobs []catalog.JobDescriptor
	for _, id := range ids {
		addPattern(t, paths, id)
		jobs = append(jobs, catalog.NewJob(id, 5, 5, ""))
	}
	spy := &simtest.SpyLauncher{}

	cfg := orchestrator.DefaultConfig()
	cfg.Workers = 2
	reports, err := orchestrator.New(paths, catalog.New(jobs...), spyRunner(spy), cfg).
		WithStatus(nil).
		RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []runner.Outcome{runner.OutcomeSuccess, runner.OutcomeSuccess, runner.OutcomeSuccess}, outcomes(reports))
	for _, id := range ids {
		assert.DirExists(t, filepath.Dir(paths.ArtifactPath(id)))
	}
}

func TestRunBatchSubfolderDirFailureIsIsolated(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "blocked/x.cells")
	addPattern(t, paths, "ok.cells")
	require.NoError(t, os.MkdirAll(paths.ScreenshotsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(paths.ScreenshotsDir, "blocked"), []byte("x"), 0o644))
	spy := &simtest.SpyLauncher{}

	cat := catalog.New(
		catalog.NewJob("blocked/x.cells", 5, 5, ""),
		catalog.NewJob("ok.cells", 5, 5, ""),
	)
	var status bytes.Buffer
	reports, err := orchestrator.New(paths, cat, spyRunner(spy), orchestrator.DefaultConfig()).
		WithStatus(&status).
		RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []runner.Outcome{runner.OutcomeFailed, runner.OutcomeSuccess}, outcomes(reports))
	assert.Equal(t, runner.ExitCodeUnknown, reports[0].Result.ExitCode)
	assert.Contains(t, reports[0].Result.Cause, "create output dir")
	assert.Equal(t, 1, spy.Count(), "only the unblocked job spawns")
	assert.Contains(t, status.String(), "  ❌ Error generating "+paths.ArtifactPath("blocked/x.cells"))
}

func TestRunBatchCancelledBeforeStart(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "glider.cells")
	addPattern(t, paths, "blinker.cells")
	spy := &simtest.SpyLauncher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := runstore.NewStore(filepath.Join(paths.Root, "runs"))
	o := orchestrator.New(paths, catalog.Default(), spyRunner(spy), orchestrator.DefaultConfig()).WithStatus(nil).WithStore(store)
	reports, err := o.RunBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, spy.Count())
	assert.True(t, reports[0].Result.WasCancelled())
	assert.True(t, reports[1].Result.WasCancelled())
	assert.Equal(t, runner.OutcomeSkipped, reports[2].Result.Outcome)

	rec, err := store.Get(o.RunID())
	require.NoError(t, err)
	assert.Equal(t, runstore.RunStateCancelled, rec.State)
}

func TestRunBatchWritesRecordsAndRunRecord(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "blinker.cells")
	spy := &simtest.SpyLauncher{}

	var records bytes.Buffer
	store := runstore.NewStore(filepath.Join(paths.Root, "runs"))
	o := orchestrator.New(paths, catalog.Default(), spyRunner(spy), orchestrator.DefaultConfig()).
		WithStatus(nil).
		WithRunID("run-1").
		WithCatalogSource("builtin").
		WithStore(store)
	o.WithRecords(output.NewJSONLWriter(&records, o.RunID(), "batch"))

	_, err := o.RunBatch(context.Background())
	require.NoError(t, err)

	var types []string
	scanner := bufio.NewScanner(&records)
	for scanner.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.Equal(t, "run-1", rec.RunID)
		types = append(types, rec.Type)
	}
	assert.Equal(t, []string{output.TypeJob, output.TypeJob, output.TypeJob, output.TypeSummary}, types)

	rec, err := store.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, runstore.ModeBatch, rec.Mode)
	assert.Equal(t, runstore.RunStateSuccess, rec.State)
	assert.Equal(t, "builtin", rec.Catalog)
	assert.Equal(t, paths.ScreenshotsDir, rec.OutputDir)
	assert.Equal(t, runstore.Counts{Total: 3, Succeeded: 1, Skipped: 2}, rec.Counts)
	require.Len(t, rec.Jobs, 3)
	assert.Equal(t, "blinker.cells", rec.Jobs[1].PatternID)
	require.NotNil(t, rec.EndedAt)
}

func TestRunBatchPublishesSuccessfulArtifacts(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "blinker.cells")
	r, _ := stubRunner(t, paths)

	dest := t.TempDir()
	pub, err := publish.Open(context.Background(), dest, publish.Options{})
	require.NoError(t, err)

	reports, err := orchestrator.New(paths, catalog.Default(), r, orchestrator.DefaultConfig()).
		WithStatus(nil).
		WithPublisher(pub).
		RunBatch(context.Background())
	require.NoError(t, err)

	published := filepath.Join(dest, "blinker.cells.png")
	assert.Equal(t, published, reports[1].Published)
	data, err := os.ReadFile(published)
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(data))
	assert.Empty(t, reports[0].Published)
}

func TestRunBatchPublishesSubfolderArtifactsSeparately(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "a/x.cells")
	addPattern(t, paths, "b/x.cells")
	r, _ := stubRunner(t, paths)

	dest := t.TempDir()
	pub, err := publish.Open(context.Background(), dest, publish.Options{})
	require.NoError(t, err)

	cat := catalog.New(
		catalog.NewJob("a/x.cells", 5, 5, ""),
		catalog.NewJob("b/x.cells", 5, 5, ""),
	)
	reports, err := orchestrator.New(paths, cat, r, orchestrator.DefaultConfig()).
		WithStatus(nil).
		WithPublisher(pub).
		RunBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, filepath.Join(dest, "a", "x.cells.png"), reports[0].Published)
	assert.Equal(t, filepath.Join(dest, "b", "x.cells.png"), reports[1].Published)
	assert.FileExists(t, reports[0].Published)
	assert.FileExists(t, reports[1].Published)
}

func TestRunSingleMissingPatternFails(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	spy := &simtest.SpyLauncher{ExitCode: 1}
	paths := layout.Paths{Root: dir, PatternsDir: filepath.Join(dir, "p"), ScreenshotsDir: filepath.Join(dir, "s")}

	var status bytes.Buffer
	o := orchestrator.New(paths, nil, spyRunner(spy), orchestrator.DefaultConfig()).WithStatus(&status)
	res := o.RunSingle(context.Background(), catalog.NewJob("nope.cells", catalog.DefaultRows, catalog.DefaultCols, ""), "nope.cells", filepath.Join("out", "nope.png"))

	assert.Equal(t, runner.OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, res.ExitCode)
	require.Equal(t, 1, spy.Count(), "single mode does not pre-check the pattern")

	args := spy.Invocations()[0].Args
	assert.Contains(t, args, filepath.Join(dir, "nope.cells"))
	assert.Contains(t, args, filepath.Join(dir, "out", "nope.png"))
	assert.Contains(t, args, "30")
	assert.Contains(t, args, "40")

	assert.NoDirExists(t, filepath.Join(dir, "out"), "single mode creates no directories")
	assert.NoDirExists(t, paths.ScreenshotsDir)
	assert.True(t, strings.HasPrefix(status.String(), "Generating nope.png...\n  ❌ Error generating "))
}

func TestRunSingleSuccess(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "glider.cells")
	r, _ := stubRunner(t, paths)
	out := filepath.Join(paths.Root, "glider.png")

	var status bytes.Buffer
	res := orchestrator.New(paths, nil, r, orchestrator.DefaultConfig()).
		WithStatus(&status).
		RunSingle(context.Background(), catalog.NewJob("glider.cells", 10, 10, ""), paths.PatternPath("glider.cells"), out)

	require.True(t, res.OK(), "cause=%s", res.Cause)
	assert.Equal(t, "Generating glider.png...\n  ✓ Saved to "+out+"\n", status.String())
	assert.FileExists(t, out)
}

func TestPlanMarksMissingSources(t *testing.T) {
	paths := testPaths(t)
	addPattern(t, paths, "glider.cells")

	plan := orchestrator.New(paths, catalog.Default(), nil, orchestrator.Config{}).Plan()
	require.Len(t, plan, 3)
	assert.False(t, plan[0].Missing)
	assert.True(t, plan[1].Missing)
	assert.True(t, plan[2].Missing)
	assert.Equal(t, paths.ArtifactPath("glider.cells"), plan[0].OutputPath)
}

func TestTally(t *testing.T) {
	reports := []orchestrator.JobReport{
		{Result: runner.Success("a")},
		{Result: runner.TimedOut(time.Second)},
		{Result: runner.Failed(2, "exit status 2")},
		{Result: runner.Skipped("b")},
		{Result: runner.Success("c")},
	}
	assert.Equal(t, runstore.Counts{Total: 5, Succeeded: 2, Failed: 1, TimedOut: 1, Skipped: 1}, orchestrator.Tally(reports))
	assert.True(t, orchestrator.HasProblems(reports))
	assert.False(t, orchestrator.HasProblems(reports[3:]))
}

func TestNewAppliesDefaults(t *testing.T) {
	o := orchestrator.New(layout.Paths{}, nil, nil, orchestrator.Config{})
	assert.Equal(t, orchestrator.DefaultBudget, o.Config().Budget)
	assert.Equal(t, 1, o.Config().Workers)
	assert.NotEmpty(t, o.RunID())
}
