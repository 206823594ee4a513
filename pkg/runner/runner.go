// Package runner executes one external simulator invocation per job and
// classifies the outcome.
//
// Each call spawns exactly one child process with a hard wall-clock budget.
// Outcomes are checked in priority order: budget exceeded (TimedOut, child
// process group killed), non-zero exit (Failed), zero exit (Success). The
// runner never retries and never inspects the artifact; writing it is the
// simulator's contract.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/lifeshots/pkg/catalog"
)

// Fixed render directives: one frame, one generation, then exit.
const (
	DefaultFPS         = 1
	DefaultGenerations = 1
)

// DefaultInterpreter runs the Python simulator.
const DefaultInterpreter = "python3"

// DefaultStderrLimit is how many trailing stderr bytes a Result keeps.
const DefaultStderrLimit = 4096

// ErrInvalidBudget indicates a non-positive time budget.
var ErrInvalidBudget = errors.New("invalid time budget")

// Config configures the simulator command line.
type Config struct {
	// Interpreter runs Simulator (e.g. "python3"). Empty executes Simulator
	// directly.
	Interpreter string

	// Simulator is the simulator entry point.
	Simulator string

	// WorkDir is the child's working directory (the project root).
	WorkDir string

	// FPS and Generations are the render directives.
	// Zero values use DefaultFPS/DefaultGenerations.
	FPS         int
	Generations int

	// ExtraArgs are appended after the standard flags.
	ExtraArgs []string

	// Env is added to the inherited environment as KEY=VALUE pairs.
	Env []string

	// Stdout receives the simulator's standard output. Nil discards it.
	Stdout io.Writer

	// StderrLimit bounds the stderr tail kept in results.
	// Zero uses DefaultStderrLimit.
	StderrLimit int
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		Interpreter: DefaultInterpreter,
		FPS:         DefaultFPS,
		Generations: DefaultGenerations,
		StderrLimit: DefaultStderrLimit,
	}
}

// Runner executes simulator jobs. A Runner is safe for concurrent use; each
// Run call owns its own child process.
type Runner struct {
	config   Config
	launcher Launcher
	environ  func() []string
}

// New creates a runner backed by real child processes.
func New(cfg Config) *Runner {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Generations <= 0 {
		cfg.Generations = DefaultGenerations
	}
	if cfg.StderrLimit <= 0 {
		cfg.StderrLimit = DefaultStderrLimit
	}
	return &Runner{
		config:   cfg,
		launcher: ExecLauncher{},
		environ:  os.Environ,
	}
}

// WithLauncher replaces the process launcher.
// Returns the runner for method chaining.
func (r *Runner) WithLauncher(l Launcher) *Runner {
	r.launcher = l
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config {
	return r.config
}

// Invocation builds the command for a job without running it.
func (r *Runner) Invocation(job catalog.JobDescriptor, patternPath, outputPath string) Invocation {
	args := []string{
		"--rows", strconv.Itoa(job.Rows),
		"--cols", strconv.Itoa(job.Cols),
		"--pattern", absPath(patternPath),
		"--screenshot", absPath(outputPath),
		"--fps", strconv.Itoa(r.config.FPS),
		"--generations", strconv.Itoa(r.config.Generations),
	}
	args = append(args, r.config.ExtraArgs...)

	inv := Invocation{Dir: r.config.WorkDir, Stdout: r.config.Stdout}
	if strings.TrimSpace(r.config.Interpreter) != "" {
		inv.Path = r.config.Interpreter
		inv.Args = append([]string{r.config.Simulator}, args...)
	} else {
		inv.Path = r.config.Simulator
		inv.Args = args
	}
	if len(r.config.Env) > 0 {
		inv.Env = append(r.environ(), r.config.Env...)
	}
	return inv
}

// Run executes one job with the given wall-clock budget.
//
// Run never returns an error: every failure is a Result. The child process
// is killed and reaped on every path out of Run.
func (r *Runner) Run(ctx context.Context, job catalog.JobDescriptor, patternPath, outputPath string, budget time.Duration) Result {
	start := time.Now()
	res := r.run(ctx, job, patternPath, outputPath, budget)
	res.OutputPath = outputPath
	if res.PatternPath == "" {
		res.PatternPath = patternPath
	}
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) run(ctx context.Context, job catalog.JobDescriptor, patternPath, outputPath string, budget time.Duration) Result {
	if err := job.Validate(); err != nil {
		return Failed(ExitCodeUnknown, err.Error())
	}
	if budget <= 0 {
		return Failed(ExitCodeUnknown, fmt.Sprintf("%v: must be > 0 (got %s)", ErrInvalidBudget, budget))
	}
	if err := ctx.Err(); err != nil {
		return Cancelled(err)
	}

	stderr := newTailBuffer(r.config.StderrLimit)
	inv := r.Invocation(job, patternPath, outputPath)
	inv.Stderr = stderr

	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	proc, err := r.launcher.Start(inv)
	if err != nil {
		return Failed(ExitCodeUnknown, "start simulator: "+err.Error())
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	select {
	case err := <-done:
		res := classifyExit(err)
		res.Stderr = stderr.String()
		return res
	case <-runCtx.Done():
		_ = proc.Kill()
		<-done

		res := TimedOut(budget)
		if ctx.Err() != nil {
			// Parent cancellation, not our budget.
			res = Cancelled(ctx.Err())
		}
		res.Stderr = stderr.String()
		return res
	}
}

// classifyExit maps a Wait error to a Result.
func classifyExit(err error) Result {
	if err == nil {
		return Result{Outcome: OutcomeSuccess}
	}
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) {
		return Failed(exitErr.ExitCode(), err.Error())
	}
	return Failed(ExitCodeUnknown, err.Error())
}

func absPath(p string) string {
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
