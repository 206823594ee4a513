package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExplicitRoot(t *testing.T) {
	root := t.TempDir()

	p, err := Resolve(Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, root, p.Root)
	assert.Equal(t, filepath.Join(root, "examples", "patterns"), p.PatternsDir)
	assert.Equal(t, filepath.Join(root, "docs", "images", "screenshots"), p.ScreenshotsDir)
	assert.Equal(t, filepath.Join(root, "life", "game_of_life.py"), p.Simulator)
}

func TestResolveOverrides(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(t.TempDir(), "shots")

	p, err := Resolve(Options{Root: root, PatternsDir: "pats", ScreenshotsDir: abs, Simulator: "bin/sim"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "pats"), p.PatternsDir)
	assert.Equal(t, abs, p.ScreenshotsDir)
	assert.Equal(t, filepath.Join(root, "bin", "sim"), p.Simulator)
}

func TestResolveFromExecutable(t *testing.T) {
	root := t.TempDir()
	orig := executable
	executable = func() (string, error) { return filepath.Join(root, "examples", "lifeshots"), nil }
	defer func() { executable = orig }()

	p, err := Resolve(Options{})
	require.NoError(t, err)
	assert.Equal(t, root, p.Root)
}

func TestArtifactAndPatternPaths(t *testing.T) {
	p := Paths{PatternsDir: "/proj/examples/patterns", ScreenshotsDir: "/proj/docs/images/screenshots"}

	assert.Equal(t, filepath.FromSlash("/proj/examples/patterns/blinker.cells"), p.PatternPath("blinker.cells"))
	assert.Equal(t, filepath.FromSlash("/proj/docs/images/screenshots/blinker.cells.png"), p.ArtifactPath("blinker.cells"))
}

func TestEnsureScreenshotsDirIdempotent(t *testing.T) {
	p := Paths{ScreenshotsDir: filepath.Join(t.TempDir(), "docs", "images", "screenshots")}

	require.NoError(t, p.EnsureScreenshotsDir())
	require.NoError(t, p.EnsureScreenshotsDir())

	st, err := os.Stat(p.ScreenshotsDir)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	assert.Error(t, Paths{}.EnsureScreenshotsDir())
}

func TestEnsureArtifactDirCreatesSubfolders(t *testing.T) {
	root := t.TempDir()
	p := Paths{ScreenshotsDir: filepath.Join(root, "shots")}
	artifact := p.ArtifactPath("spaceships/lwss.cells")

	require.NoError(t, p.EnsureArtifactDir(artifact))
	require.NoError(t, p.EnsureArtifactDir(artifact))
	assert.DirExists(t, filepath.Join(root, "shots", "spaceships"))
	assert.NoFileExists(t, artifact)

	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	assert.Error(t, p.EnsureArtifactDir(filepath.Join(blocker, "x.png")))
}
