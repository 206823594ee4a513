package runstore

import "time"

// RunState is the lifecycle state of a recorded run.
//
// NOTE: These values are persisted in run.json and are part of the stable
// on-disk contract.
type RunState string

const (
	RunStateRunning RunState = "running"

	// RunStateSuccess means every attempted job succeeded (skips allowed).
	RunStateSuccess RunState = "success"

	// RunStatePartial means some jobs succeeded and some failed or timed out.
	RunStatePartial RunState = "partial"

	// RunStateFailed means no job succeeded.
	RunStateFailed RunState = "failed"

	RunStateCancelled RunState = "cancelled"

	// RunStateUnknown marks a run whose process disappeared mid-run.
	RunStateUnknown RunState = "unknown"
)

// Mode distinguishes batch runs from single-job runs.
type Mode string

const (
	ModeBatch  Mode = "batch"
	ModeSingle Mode = "single"
)

// JobEntry is the persisted outcome of one job.
type JobEntry struct {
	Index       int    `json:"index"`
	PatternID   string `json:"pattern_id"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	Outcome     string `json:"outcome"`
	PatternPath string `json:"pattern_path,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
	ExitCode    int    `json:"exit_code,omitempty"`
	Cause       string `json:"cause,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	Published   string `json:"published,omitempty"`
}

// Counts tallies job outcomes.
type Counts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Skipped   int `json:"skipped"`
}

// RunRecord is the persistent record written to run.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type RunRecord struct {
	RunID     string     `json:"run_id"`
	Mode      Mode       `json:"mode"`
	State     RunState   `json:"state"`
	PID       int        `json:"pid,omitempty"`
	OutputDir string     `json:"output_dir,omitempty"`
	Catalog   string     `json:"catalog,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Jobs      []JobEntry `json:"jobs,omitempty"`
	Counts    Counts     `json:"counts"`
}

// StateFor derives the final run state from outcome counts.
func StateFor(c Counts) RunState {
	problems := c.Failed + c.TimedOut
	switch {
	case problems == 0:
		return RunStateSuccess
	case c.Succeeded > 0:
		return RunStatePartial
	default:
		return RunStateFailed
	}
}
