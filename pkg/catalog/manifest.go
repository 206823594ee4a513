package catalog

// Manifest is the on-disk form of a catalog.
//
// Example (YAML):
//
//	version: "1.0"
//	defaults:
//	  rows: 30
//	  cols: 40
//	patterns:
//	  - id: glider.cells
//	    rows: 10
//	    cols: 10
//	    name: Glider
//	  - id: spaceships/lwss.cells
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Defaults supplies grid dimensions for entries that omit them.
	Defaults GridDefaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Patterns lists the jobs in run order.
	Patterns []PatternEntry `json:"patterns" yaml:"patterns"`
}

// GridDefaults holds fallback grid dimensions.
type GridDefaults struct {
	Rows int `json:"rows,omitempty" yaml:"rows,omitempty"`
	Cols int `json:"cols,omitempty" yaml:"cols,omitempty"`
}

// PatternEntry is one manifest job.
type PatternEntry struct {
	ID   string `json:"id" yaml:"id"`
	Rows int    `json:"rows,omitempty" yaml:"rows,omitempty"`
	Cols int    `json:"cols,omitempty" yaml:"cols,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ApplyDefaults fills in grid defaults. Entry-level values win over
// manifest-level defaults, which win over DefaultRows/DefaultCols.
func (m *Manifest) ApplyDefaults() {
	if m.Defaults.Rows == 0 {
		m.Defaults.Rows = DefaultRows
	}
	if m.Defaults.Cols == 0 {
		m.Defaults.Cols = DefaultCols
	}
	for i := range m.Patterns {
		if m.Patterns[i].Rows == 0 {
			m.Patterns[i].Rows = m.Defaults.Rows
		}
		if m.Patterns[i].Cols == 0 {
			m.Patterns[i].Cols = m.Defaults.Cols
		}
	}
}

// Catalog converts the manifest into a catalog, preserving entry order.
func (m *Manifest) Catalog() *Catalog {
	entries := make([]JobDescriptor, 0, len(m.Patterns))
	for _, p := range m.Patterns {
		entries = append(entries, NewJob(p.ID, p.Rows, p.Cols, p.Name))
	}
	return New(entries...)
}
