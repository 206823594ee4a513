package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// EnvSpec maps one environment variable to a config key path.
type EnvSpec struct {
	Name string
	Path []string
}

// Key returns the dotted viper key.
func (s EnvSpec) Key() string {
	return strings.Join(s.Path, ".")
}

func getEnvSpecs() []EnvSpec {
	specs := []EnvSpec{
		{Name: "ROOT", Path: []string{"paths", "root"}},
		{Name: "PATTERNS_DIR", Path: []string{"paths", "patterns_dir"}},
		{Name: "SCREENSHOTS_DIR", Path: []string{"paths", "screenshots_dir"}},
		{Name: "SIMULATOR", Path: []string{"paths", "simulator"}},
		{Name: "INTERPRETER", Path: []string{"simulator", "interpreter"}},
		{Name: "EXTRA_ARGS", Path: []string{"simulator", "extra_args"}},
		{Name: "TIMEOUT", Path: []string{"batch", "timeout"}},
		{Name: "WORKERS", Path: []string{"batch", "workers"}},
		{Name: "SPAWN_RATE", Path: []string{"batch", "spawn_rate"}},
		{Name: "CATALOG", Path: []string{"batch", "catalog"}},
		{Name: "STRICT", Path: []string{"batch", "strict"}},
		{Name: "LOG_LEVEL", Path: []string{"logging", "level"}},
		{Name: "LOG_FORMAT", Path: []string{"logging", "format"}},
		{Name: "PUBLISH_URI", Path: []string{"publish", "uri"}},
		{Name: "PUBLISH_REGION", Path: []string{"publish", "region"}},
		{Name: "PUBLISH_ENDPOINT", Path: []string{"publish", "endpoint"}},
		{Name: "PUBLISH_PROFILE", Path: []string{"publish", "profile"}},
		{Name: "RUNS_ENABLED", Path: []string{"runs", "enabled"}},
		{Name: "RUNS_DIR", Path: []string{"runs", "dir"}},
		{Name: "RUNS_KEEP", Path: []string{"runs", "keep"}},
	}
	for i := range specs {
		specs[i].Name = EnvPrefix + "_" + specs[i].Name
	}
	return specs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.root", "")
	v.SetDefault("paths.patterns_dir", "examples/patterns")
	v.SetDefault("paths.screenshots_dir", "docs/images/screenshots")
	v.SetDefault("paths.simulator", "life/game_of_life.py")

	v.SetDefault("simulator.interpreter", "python3")
	v.SetDefault("simulator.fps", 1)
	v.SetDefault("simulator.generations", 1)
	v.SetDefault("simulator.extra_args", []string{})
	v.SetDefault("simulator.env", []string{})
	v.SetDefault("simulator.stderr_limit", 4096)

	v.SetDefault("batch.timeout", "10s")
	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.spawn_rate", 0)
	v.SetDefault("batch.catalog", "")
	v.SetDefault("batch.discover", "")
	v.SetDefault("batch.strict", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("publish.uri", "")
	v.SetDefault("publish.force_path_style", false)
	v.SetDefault("publish.detect_region", false)
	v.SetDefault("publish.verify", false)

	v.SetDefault("runs.enabled", true)
	v.SetDefault("runs.dir", "")
	v.SetDefault("runs.keep", 50)
}

// Load merges defaults, the discovered config file, environment and
// overrides. See LoadFile.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile is Load with an explicit config file. An explicit file must
// exist; a discovered one is optional. Overrides are nested maps keyed like
// the config file, applied in order.
func LoadFile(ctx context.Context, configFile string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Key(), spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded config, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// RunsDir returns the run registry directory: runs.dir when set, else
// <app data dir>/runs.
func (c *Config) RunsDir() string {
	if strings.TrimSpace(c.Runs.Dir) != "" {
		return c.Runs.Dir
	}
	return filepath.Join(gfconfig.GetAppDataDir(AppName), "runs")
}

func searchPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, AppName))
	}
	return paths
}

// flatten turns nested override maps into dotted keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := m[k].(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = m[k]
	}
	return out
}
