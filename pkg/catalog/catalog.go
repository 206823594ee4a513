// Package catalog defines the job descriptors that drive screenshot
// generation and the ordered catalogs that group them.
//
// The built-in catalog mirrors the documentation screenshots:
//
//	glider.cells      10x10  Glider
//	blinker.cells      5x5   Blinker
//	glider_gun.cells  20x50  Gosper Glider Gun
//
// Catalogs can also be loaded from a YAML or JSON manifest (see Load) or
// discovered from a pattern directory (see Discover). Building a catalog never
// touches the pattern files themselves; existence is checked per job by the
// orchestrator.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Default grid dimensions used when a job does not specify them.
const (
	DefaultRows = 30
	DefaultCols = 40
)

// ErrInvalidJob indicates a job descriptor failed validation.
var ErrInvalidJob = errors.New("invalid job descriptor")

// JobDescriptor describes one screenshot job.
//
// JobDescriptor is a value type; copies are independent and nothing in this
// module mutates a descriptor after construction.
type JobDescriptor struct {
	// PatternID identifies the input pattern file, relative to the pattern
	// directory (e.g. "glider.cells"). It also names the output artifact.
	PatternID string `json:"pattern_id"`

	// Rows is the grid row count passed to the simulator.
	Rows int `json:"rows"`

	// Cols is the grid column count passed to the simulator.
	Cols int `json:"cols"`

	// DisplayName is a human label. It is never used for control flow.
	DisplayName string `json:"display_name,omitempty"`
}

// NewJob creates a descriptor, defaulting the display name to the pattern id.
func NewJob(patternID string, rows, cols int, displayName string) JobDescriptor {
	if strings.TrimSpace(displayName) == "" {
		displayName = patternID
	}
	return JobDescriptor{
		PatternID:   patternID,
		Rows:        rows,
		Cols:        cols,
		DisplayName: displayName,
	}
}

// Validate checks the descriptor's invariants.
func (j JobDescriptor) Validate() error {
	if strings.TrimSpace(j.PatternID) == "" {
		return fmt.Errorf("%w: pattern id is required", ErrInvalidJob)
	}
	if j.Rows <= 0 {
		return fmt.Errorf("%w: rows must be > 0 (got %d)", ErrInvalidJob, j.Rows)
	}
	if j.Cols <= 0 {
		return fmt.Errorf("%w: cols must be > 0 (got %d)", ErrInvalidJob, j.Cols)
	}
	return nil
}

// ArtifactName returns the deterministic artifact file name for the job.
func (j JobDescriptor) ArtifactName() string {
	return j.PatternID + ".png"
}

// String returns a short human description of the job.
func (j JobDescriptor) String() string {
	return fmt.Sprintf("%s (%dx%d)", j.PatternID, j.Rows, j.Cols)
}

// Catalog is a fixed, ordered list of jobs.
type Catalog struct {
	entries []JobDescriptor
}

// New creates a catalog from the given entries. The slice is copied.
func New(entries ...JobDescriptor) *Catalog {
	c := &Catalog{entries: make([]JobDescriptor, len(entries))}
	copy(c.entries, entries)
	return c
}

// Default returns the built-in documentation catalog.
func Default() *Catalog {
	return New(
		NewJob("glider.cells", 10, 10, "Glider"),
		NewJob("blinker.cells", 5, 5, "Blinker"),
		NewJob("glider_gun.cells", 20, 50, "Gosper Glider Gun"),
	)
}

// Entries returns the catalog entries in order.
//
// The returned slice is a copy; callers may modify it freely.
func (c *Catalog) Entries() []JobDescriptor {
	if c == nil {
		return nil
	}
	out := make([]JobDescriptor, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Validate checks every entry and rejects duplicate pattern ids, since two
// entries with the same id would write the same artifact.
func (c *Catalog) Validate() error {
	seen := make(map[string]int, c.Len())
	for i, j := range c.Entries() {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if prev, ok := seen[j.PatternID]; ok {
			return fmt.Errorf("%w: entry %d duplicates pattern id %q from entry %d", ErrInvalidJob, i, j.PatternID, prev)
		}
		seen[j.PatternID] = i
	}
	return nil
}
