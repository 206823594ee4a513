// Package layout resolves the filesystem locations used by a screenshot run.
//
// Locations are derived once, from an explicit root or from the location of
// the running executable, and are not reconfigurable per job.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default locations relative to the project root.
const (
	DefaultPatternsDir    = "examples/patterns"
	DefaultScreenshotsDir = "docs/images/screenshots"
	DefaultSimulator      = "life/game_of_life.py"
)

// Options configures path resolution. Relative paths are resolved against
// the root; empty values use the defaults above.
type Options struct {
	Root           string
	PatternsDir    string
	ScreenshotsDir string
	Simulator      string
}

// Paths is the resolved set of absolute locations.
type Paths struct {
	// Root is the project root and the simulator's working directory.
	Root string

	// PatternsDir holds the input pattern files.
	PatternsDir string

	// ScreenshotsDir receives the rendered artifacts in batch mode.
	ScreenshotsDir string

	// Simulator is the external simulator entry point.
	Simulator string
}

// executable is swapped in tests.
var executable = os.Executable

// Resolve computes absolute paths from opts.
//
// When opts.Root is empty, the root is the parent of the directory holding
// the running executable (the binary lives in <root>/bin or <root>/examples).
func Resolve(opts Options) (Paths, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		exe, err := executable()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		root = filepath.Dir(filepath.Dir(exe))
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve root: %w", err)
	}

	return Paths{
		Root:           absRoot,
		PatternsDir:    under(absRoot, opts.PatternsDir, DefaultPatternsDir),
		ScreenshotsDir: under(absRoot, opts.ScreenshotsDir, DefaultScreenshotsDir),
		Simulator:      under(absRoot, opts.Simulator, DefaultSimulator),
	}, nil
}

func under(root, p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = fallback
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

// PatternPath returns the absolute path of a pattern id.
func (p Paths) PatternPath(patternID string) string {
	return filepath.Join(p.PatternsDir, filepath.FromSlash(patternID))
}

// ArtifactPath returns <ScreenshotsDir>/<patternID>.png.
func (p Paths) ArtifactPath(patternID string) string {
	return filepath.Join(p.ScreenshotsDir, filepath.FromSlash(patternID)+".png")
}

// EnsureScreenshotsDir creates the screenshot directory if it is missing.
// Calling it again when the directory exists is a no-op.
func (p Paths) EnsureScreenshotsDir() error {
	if strings.TrimSpace(p.ScreenshotsDir) == "" {
		return fmt.Errorf("screenshots dir is empty")
	}
	if err := os.MkdirAll(p.ScreenshotsDir, 0o755); err != nil {
		return fmt.Errorf("create screenshots dir: %w", err)
	}
	return nil
}

// EnsureArtifactDir creates the parent directory of an artifact path. It is
// a no-op when the directory exists.
func (p Paths) EnsureArtifactDir(artifactPath string) error {
	if err := os.MkdirAll(filepath.Dir(artifactPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
