package catalog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCatalogYAML() string {
	return `version: "1.0"
defaults:
  rows: 12
patterns:
  - id: glider.cells
    rows: 10
    cols: 10
    name: Glider
  - id: blinker.cells
`
}

func validCatalogJSON() string {
	return `{
  "version": "1.0",
  "patterns": [
    {"id": "glider_gun.cells", "rows": 20, "cols": 50, "name": "Gosper Glider Gun"}
  ]
}`
}

func TestLoadFromBytes(t *testing.T) {
	t.Run("YAML with defaults", func(t *testing.T) {
		c, err := LoadFromBytes([]byte(validCatalogYAML()), "catalog.yaml")
		require.NoError(t, err)

		entries := c.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, NewJob("glider.cells", 10, 10, "Glider"), entries[0])
		// rows from manifest defaults, cols from package default
		assert.Equal(t, NewJob("blinker.cells", 12, DefaultCols, ""), entries[1])
	})

	t.Run("JSON", func(t *testing.T) {
		c, err := LoadFromBytes([]byte(validCatalogJSON()), "catalog.json")
		require.NoError(t, err)
		require.Equal(t, 1, c.Len())
		assert.Equal(t, "Gosper Glider Gun", c.Entries()[0].DisplayName)
	})

	t.Run("unknown extension falls back", func(t *testing.T) {
		c, err := LoadFromBytes([]byte(validCatalogJSON()), "catalog.txt")
		require.NoError(t, err)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := LoadFromBytes(nil, "catalog.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("malformed YAML", func(t *testing.T) {
		_, err := LoadFromBytes([]byte("version: [unclosed"), "catalog.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid YAML")
	})
}

func TestLoadFromBytesSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "missing patterns",
			doc:  `version: "1.0"`,
		},
		{
			name: "wrong version",
			doc: `version: "2.0"
patterns:
  - id: a.cells
`,
		},
		{
			name: "unknown field",
			doc: `version: "1.0"
patterns:
  - id: a.cells
    colour: red
`,
		},
		{
			name: "non-positive rows",
			doc: `version: "1.0"
patterns:
  - id: a.cells
    rows: 0
`,
		},
		{
			name: "empty pattern list",
			doc: `version: "1.0"
patterns: []
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.doc), "catalog.yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidationFailed), "expected validation error, got %v", err)
		})
	}
}

func TestLoadFromBytesRejectsDuplicateIDs(t *testing.T) {
	doc := `version: "1.0"
patterns:
  - id: a.cells
  - id: a.cells
`
	_, err := LoadFromBytes([]byte(doc), "catalog.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(dir, "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte(validCatalogYAML()), 0o644))

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("reader", func(t *testing.T) {
		c, err := LoadFromReader(strings.NewReader(validCatalogJSON()), "catalog.json")
		require.NoError(t, err)
		assert.Equal(t, 1, c.Len())
	})
}

func TestValidationErrorsFormatting(t *testing.T) {
	one := ValidationErrors{{Path: "/version", Message: "bad"}}
	assert.Equal(t, "/version: bad", one.Error())

	many := ValidationErrors{{Path: "/a", Message: "x"}, {Message: "y"}}
	assert.Contains(t, many.Error(), "2 errors")
	assert.Contains(t, many.Error(), "  - y")
	assert.ErrorIs(t, many, ErrValidationFailed)
}
