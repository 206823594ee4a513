// Package config loads lifeshots configuration.
//
// Sources, lowest precedence first: built-in defaults, a config file
// (lifeshots.yaml in the working directory or the user config dir, or an
// explicit --config path), LIFESHOTS_* environment variables, then runtime
// overrides from command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"
)

// AppName names the config file, env prefix and data directory.
const AppName = "lifeshots"

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "LIFESHOTS"

// Config is the fully merged configuration.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Runs      RunsConfig      `mapstructure:"runs"`

	// Source is the config file that was read, if any.
	Source string `mapstructure:"-"`
}

// PathsConfig locates the project. Relative paths resolve against Root;
// an empty Root means the parent of the executable's directory.
type PathsConfig struct {
	Root           string `mapstructure:"root"`
	PatternsDir    string `mapstructure:"patterns_dir"`
	ScreenshotsDir string `mapstructure:"screenshots_dir"`
	Simulator      string `mapstructure:"simulator"`
}

// SimulatorConfig shapes the simulator command line.
type SimulatorConfig struct {
	// Interpreter runs the simulator script. Empty runs it directly.
	Interpreter string   `mapstructure:"interpreter"`
	FPS         int      `mapstructure:"fps"`
	Generations int      `mapstructure:"generations"`
	ExtraArgs   []string `mapstructure:"extra_args"`

	// Env entries (KEY=VALUE) are added to the inherited environment.
	Env         []string `mapstructure:"env"`
	StderrLimit int      `mapstructure:"stderr_limit"`
}

// BatchConfig tunes job execution.
type BatchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	Workers   int           `mapstructure:"workers"`
	SpawnRate float64       `mapstructure:"spawn_rate"`

	// Catalog is a manifest path replacing the built-in catalog.
	Catalog string `mapstructure:"catalog"`

	// Discover, when set, builds the catalog from pattern files matching
	// this glob under the patterns dir.
	Discover string `mapstructure:"discover"`

	// Strict makes the process exit non-zero when any job failed or timed out.
	Strict bool `mapstructure:"strict"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`

	// Format is "console" or "json".
	Format string `mapstructure:"format"`
}

// PublishConfig configures optional artifact publishing.
type PublishConfig struct {
	// URI is the destination (s3://bucket/prefix or file:///dir). Empty disables publishing.
	URI            string `mapstructure:"uri"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	DetectRegion   bool   `mapstructure:"detect_region"`
	Verify         bool   `mapstructure:"verify"`
}

// RunsConfig controls the run registry.
type RunsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Dir holds one directory per run. Empty uses the app data dir.
	Dir string `mapstructure:"dir"`

	// Keep is how many runs to retain. Zero keeps everything.
	Keep int `mapstructure:"keep"`
}

// Validate checks values that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Batch.Timeout <= 0 {
		return fmt.Errorf("batch.timeout must be > 0 (got %s)", c.Batch.Timeout)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be >= 1 (got %d)", c.Batch.Workers)
	}
	if c.Batch.SpawnRate < 0 {
		return fmt.Errorf("batch.spawn_rate must be >= 0 (got %g)", c.Batch.SpawnRate)
	}
	if c.Batch.Catalog != "" && c.Batch.Discover != "" {
		return fmt.Errorf("batch.catalog and batch.discover are mutually exclusive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	if c.Simulator.FPS < 1 || c.Simulator.Generations < 1 {
		return fmt.Errorf("simulator.fps and simulator.generations must be >= 1")
	}
	if c.Runs.Keep < 0 {
		return fmt.Errorf("runs.keep must be >= 0 (got %d)", c.Runs.Keep)
	}
	return nil
}
