package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps stray lifeshots.yaml files out of the search path.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)
		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Empty(t, cfg.Paths.Root)
		assert.Equal(t, "examples/patterns", cfg.Paths.PatternsDir)
		assert.Equal(t, "docs/images/screenshots", cfg.Paths.ScreenshotsDir)
		assert.Equal(t, "life/game_of_life.py", cfg.Paths.Simulator)

		assert.Equal(t, "python3", cfg.Simulator.Interpreter)
		assert.Equal(t, 1, cfg.Simulator.FPS)
		assert.Equal(t, 1, cfg.Simulator.Generations)
		assert.Empty(t, cfg.Simulator.ExtraArgs)

		assert.Equal(t, 10*time.Second, cfg.Batch.Timeout)
		assert.Equal(t, 1, cfg.Batch.Workers)
		assert.Zero(t, cfg.Batch.SpawnRate)
		assert.False(t, cfg.Batch.Strict)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)

		assert.Empty(t, cfg.Publish.URI)
		assert.True(t, cfg.Runs.Enabled)
		assert.Equal(t, 50, cfg.Runs.Keep)
		assert.Empty(t, cfg.Source)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"batch": map[string]any{
				"workers": 4,
				"timeout": 3 * time.Second,
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, 4, cfg.Batch.Workers)
		assert.Equal(t, 3*time.Second, cfg.Batch.Timeout)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("LIFESHOTS_WORKERS", "3")
		t.Setenv("LIFESHOTS_LOG_LEVEL", "warn")
		t.Setenv("LIFESHOTS_TIMEOUT", "45s")
		t.Setenv("LIFESHOTS_STRICT", "true")
		t.Setenv("LIFESHOTS_EXTRA_ARGS", "--theme,dark")
		t.Setenv("LIFESHOTS_RUNS_ENABLED", "false")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.Batch.Workers)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 45*time.Second, cfg.Batch.Timeout)
		assert.True(t, cfg.Batch.Strict)
		assert.Equal(t, []string{"--theme", "dark"}, cfg.Simulator.ExtraArgs)
		assert.False(t, cfg.Runs.Enabled)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lifeshots.yaml"), []byte(strings.Join([]string{
			"batch:",
			"  workers: 2",
			"  timeout: 20s",
			"paths:",
			"  root: /srv/life",
		}, "\n")), 0o644))
		t.Setenv("LIFESHOTS_WORKERS", "5")

		cfg, err := Load(ctx, map[string]any{"batch": map[string]any{"workers": 7}})
		require.NoError(t, err)

		assert.Equal(t, 7, cfg.Batch.Workers, "override beats env and file")
		assert.Equal(t, 20*time.Second, cfg.Batch.Timeout, "file beats default")
		assert.Equal(t, "/srv/life", cfg.Paths.Root)
		assert.Equal(t, "lifeshots.yaml", filepath.Base(cfg.Source))
	})
}

func TestLoadFileExplicit(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("publish:\n  uri: s3://docs/shots\n  force_path_style: true\n"), 0o644))

	cfg, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "s3://docs/shots", cfg.Publish.URI)
	assert.True(t, cfg.Publish.ForcePathStyle)
	assert.Equal(t, path, cfg.Source)

	_, err = LoadFile(context.Background(), filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		override map[string]any
		want     string
	}{
		{"zero workers", map[string]any{"batch": map[string]any{"workers": 0}}, "batch.workers"},
		{"negative timeout", map[string]any{"batch": map[string]any{"timeout": "-1s"}}, "batch.timeout"},
		{"bad format", map[string]any{"logging": map[string]any{"format": "xml"}}, "logging.format"},
		{"catalog and discover", map[string]any{"batch": map[string]any{"catalog": "c.yaml", "discover": "**/*.cells"}}, "mutually exclusive"},
		{"negative keep", map[string]any{"runs": map[string]any{"keep": -1}}, "runs.keep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(ctx, tt.override)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{"batch": map[string]any{"workers": 6}})
	require.NoError(t, err)

	got := GetConfig()
	require.NotNil(t, got)
	assert.Equal(t, cfg.Batch.Workers, got.Batch.Workers)
}

func TestEnvSpecsPrefixHandling(t *testing.T) {
	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		assert.True(t, strings.HasPrefix(spec.Name, "LIFESHOTS_"), spec.Name)
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
		names[spec.Name] = true
	}
	assert.True(t, names["LIFESHOTS_LOG_LEVEL"])
	assert.True(t, names["LIFESHOTS_TIMEOUT"])
	assert.True(t, names["LIFESHOTS_PUBLISH_URI"])
}

func TestRunsDir(t *testing.T) {
	cfg := &Config{Runs: RunsConfig{Dir: "/var/lib/lifeshots/runs"}}
	assert.Equal(t, "/var/lib/lifeshots/runs", cfg.RunsDir())

	cfg.Runs.Dir = ""
	assert.Equal(t, "runs", filepath.Base(cfg.RunsDir()))
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"batch": map[string]any{"workers": 2, "nested": map[string]any{"x": true}},
		"top":   "v",
	})
	assert.Equal(t, map[string]any{"batch.workers": 2, "batch.nested.x": true, "top": "v"}, got)
}
