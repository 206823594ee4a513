package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultDiscoverGlob matches plaintext Life patterns at any depth.
const DefaultDiscoverGlob = "**/*.cells"

// Discover builds a catalog from the pattern files under dir matching glob.
//
// Entries are ordered by slash-separated relative path so repeated runs report
// in the same order. Every entry uses the given grid dimensions; zero values
// fall back to DefaultRows/DefaultCols.
func Discover(dir, glob string, rows, cols int) (*Catalog, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("pattern dir is required")
	}
	if glob == "" {
		glob = DefaultDiscoverGlob
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid discover pattern: %q", glob)
	}
	if rows == 0 {
		rows = DefaultRows
	}
	if cols == 0 {
		cols = DefaultCols
	}

	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("pattern dir: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("pattern dir is not a directory: %s", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), glob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("discover patterns: %w", err)
	}
	sort.Strings(matches)

	entries := make([]JobDescriptor, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, NewJob(m, rows, cols, ""))
	}
	return New(entries...), nil
}
