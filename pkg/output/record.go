// Package output provides JSONL records for screenshot runs.
//
// Output is structured as typed record envelopes containing per-job results,
// publish results, errors, and a final summary. Each line is a self-contained
// JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: lifeshots.<type>.v<version>
const (
	// TypeJob identifies per-job result records.
	TypeJob = "lifeshots.job.v1"

	// TypePublish identifies artifact publish records.
	TypePublish = "lifeshots.publish.v1"

	// TypeError identifies run-level error records.
	TypeError = "lifeshots.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "lifeshots.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "lifeshots.job.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this run.
	RunID string `json:"run_id"`

	// Mode is "batch" or "single".
	Mode string `json:"mode"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// JobRecord is the data payload for one job result.
type JobRecord struct {
	// Index is the job's position in the catalog.
	Index int `json:"index"`

	PatternID   string `json:"pattern_id"`
	DisplayName string `json:"display_name,omitempty"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`

	// Outcome is one of success, timed_out, failed, skipped.
	Outcome string `json:"outcome"`

	PatternPath string `json:"pattern_path,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`

	// ExitCode is set for failed jobs.
	ExitCode int `json:"exit_code,omitempty"`

	// Cause describes failures, timeouts, and skips.
	Cause string `json:"cause,omitempty"`

	// Stderr is the tail of the simulator's standard error.
	Stderr string `json:"stderr,omitempty"`

	// Budget is the per-job time budget.
	Budget time.Duration `json:"budget_ns"`

	// Duration is the wall-clock time spent on the job.
	Duration time.Duration `json:"duration_ns"`
}

// PublishRecord is the data payload for an artifact publish attempt.
type PublishRecord struct {
	PatternID   string `json:"pattern_id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Bytes       int64  `json:"bytes,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ErrorRecord is the data payload for run-level errors.
//
// Job failures are JobRecords, not ErrorRecords; these cover problems around
// the jobs (registry writes, publisher setup).
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// PatternID is the related job, if any.
	PatternID string `json:"pattern_id,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodePublish indicates an artifact could not be published.
	ErrCodePublish = "PUBLISH_FAILED"

	// ErrCodeRegistry indicates the run registry could not be updated.
	ErrCodeRegistry = "REGISTRY_FAILED"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for the final summary.
type SummaryRecord struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Skipped   int `json:"skipped"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// OutputDir is the screenshot directory (batch mode).
	OutputDir string `json:"output_dir,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
