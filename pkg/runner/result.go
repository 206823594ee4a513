package runner

import (
	"fmt"
	"strings"
	"time"
)

// Outcome classifies a single job invocation.
//
// NOTE: These values appear in JSONL records and run.json files and are part
// of the stable output contract.
type Outcome string

const (
	// OutcomeSuccess means the simulator exited zero within its budget.
	OutcomeSuccess Outcome = "success"

	// OutcomeTimedOut means the simulator was killed after exceeding its budget.
	OutcomeTimedOut Outcome = "timed_out"

	// OutcomeFailed means the simulator exited non-zero or could not be run.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped means the pattern source was missing and nothing was spawned.
	OutcomeSkipped Outcome = "skipped"
)

// CauseCancelled prefixes the cause of jobs stopped by parent cancellation
// rather than by their own budget.
const CauseCancelled = "cancelled"

// ExitCodeUnknown is reported when a failure has no process exit status
// (launch errors, invalid jobs, cancellation).
const ExitCodeUnknown = -1

// Result is the outcome of one job. It is produced once and never merged.
type Result struct {
	Outcome Outcome `json:"outcome"`

	// OutputPath is the artifact path requested for the job. For
	// OutcomeSuccess it is the path the simulator was told to write.
	OutputPath string `json:"output_path,omitempty"`

	// PatternPath is the resolved source pattern. For OutcomeSkipped it is
	// the path that was not found.
	PatternPath string `json:"pattern_path,omitempty"`

	// Budget is the time budget that was exceeded (OutcomeTimedOut).
	Budget time.Duration `json:"budget_ns,omitempty"`

	// ExitCode is the simulator exit status (OutcomeFailed).
	ExitCode int `json:"exit_code,omitempty"`

	// Cause describes a failure in words.
	Cause string `json:"cause,omitempty"`

	// Stderr holds the tail of the simulator's standard error.
	Stderr string `json:"stderr,omitempty"`

	// Duration is the wall-clock time spent on the job.
	Duration time.Duration `json:"duration_ns"`
}

// Success reports a zero exit.
func Success(outputPath string) Result {
	return Result{Outcome: OutcomeSuccess, OutputPath: outputPath}
}

// TimedOut reports a killed process that exceeded budget.
func TimedOut(budget time.Duration) Result {
	return Result{Outcome: OutcomeTimedOut, Budget: budget, Cause: fmt.Sprintf("exceeded time budget of %s", budget)}
}

// Failed reports a non-zero exit or another failure cause.
func Failed(exitCode int, cause string) Result {
	return Result{Outcome: OutcomeFailed, ExitCode: exitCode, Cause: cause}
}

// Cancelled reports a job stopped, or never started, because the run was
// cancelled.
func Cancelled(err error) Result {
	return Failed(ExitCodeUnknown, CauseCancelled+": "+err.Error())
}

// Skipped reports a missing pattern source.
func Skipped(patternPath string) Result {
	return Result{Outcome: OutcomeSkipped, PatternPath: patternPath, Cause: "missing_source"}
}

// OK reports whether the job succeeded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// WasCancelled reports whether the job was stopped by run cancellation.
func (r Result) WasCancelled() bool {
	return r.Outcome == OutcomeFailed && strings.HasPrefix(r.Cause, CauseCancelled)
}

// Problem reports whether the job failed or timed out. Skips are not
// problems: a missing pattern is an expected catalog condition.
func (r Result) Problem() bool {
	return r.Outcome == OutcomeFailed || r.Outcome == OutcomeTimedOut
}
