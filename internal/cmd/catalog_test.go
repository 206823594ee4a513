package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowCatalog(t *testing.T) {
	p := newProject(t, "blinker.cells")
	cfg := loadTestConfig(t, p, nil)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showCatalog(&buf, cfg, false))

		out := buf.String()
		assert.Contains(t, out, "Catalog:     builtin")
		assert.Contains(t, out, "Patterns:    "+p.patterns)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		rows := lines[len(lines)-3:]
		assert.Contains(t, rows[0], "glider.cells")
		assert.Contains(t, rows[0], "missing")
		assert.Contains(t, rows[1], "blinker.cells")
		assert.Contains(t, rows[1], "5x5")
		assert.Contains(t, rows[1], " ok ")
		assert.Contains(t, rows[2], "20x50")
		assert.Contains(t, rows[2], "missing")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showCatalog(&buf, cfg, true))

		var view catalogView
		require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
		require.Len(t, view.Entries, 3)
		assert.Equal(t, "builtin", view.Source)
		assert.True(t, view.Entries[0].Missing)
		assert.False(t, view.Entries[1].Missing)
		assert.Equal(t, filepath.Join(p.screenshots, "blinker.cells.png"), view.Entries[1].OutputPath)
	})
}

func TestShowCatalogManifest(t *testing.T) {
	p := newProject(t, "a.cells")
	manifest := filepath.Join(p.root, "shots.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`version: "1.0"
defaults:
  rows: 12
patterns:
  - id: a.cells
  - id: b.cells
    cols: 7
`), 0o644))
	cfg := loadTestConfig(t, p, map[string]any{"batch.catalog": manifest})

	var buf bytes.Buffer
	require.NoError(t, showCatalog(&buf, cfg, true))

	var view catalogView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, manifest, view.Source)
	require.Len(t, view.Entries, 2)
	assert.Equal(t, 12, view.Entries[0].Rows)
	assert.Equal(t, 7, view.Entries[1].Cols)
	assert.True(t, view.Entries[1].Missing)
}
