package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/3leaps/lifeshots/internal/config"
	"github.com/3leaps/lifeshots/internal/observability"
	"github.com/3leaps/lifeshots/pkg/catalog"
)

// exitJobsFailed is returned under --strict when any job failed or timed out.
const exitJobsFailed = 1

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata from main.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile string
	appCfg  *config.Config

	singlePattern string
	singleOutput  string
	singleRows    int
	singleCols    int

	recordsDest string
	dryRun      bool
)

var rootCmd = &cobra.Command{
	Use:   "lifeshots",
	Short: "Render Game of Life pattern screenshots",
	Long: `Render screenshots of Game of Life patterns by driving the external
simulator once per pattern.

With no flags every catalog entry is rendered into the screenshots
directory. Passing both --pattern and --output renders a single screenshot
instead.

Examples:
  lifeshots                                   # Render the built-in catalog
  lifeshots --pattern glider.cells --output glider.png --rows 20 --cols 20
  lifeshots --discover --workers 4            # Render every *.cells file
  lifeshots --catalog shots.yaml --publish s3://bucket/screenshots
  lifeshots --dry-run                         # Show simulator invocations`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupCommand,
	RunE:              runRoot,
}

// configFlags maps flags onto config keys. Only flags the user actually
// set become overrides, so config files and env keep working underneath.
var configFlags = map[string]string{
	"root":            "paths.root",
	"patterns-dir":    "paths.patterns_dir",
	"screenshots-dir": "paths.screenshots_dir",
	"simulator":       "paths.simulator",
	"interpreter":     "simulator.interpreter",
	"log-level":       "logging.level",
	"log-format":      "logging.format",
	"timeout":         "batch.timeout",
	"workers":         "batch.workers",
	"spawn-rate":      "batch.spawn_rate",
	"catalog":         "batch.catalog",
	"discover":        "batch.discover",
	"strict":          "batch.strict",
	"publish":         "publish.uri",
	"verify":          "publish.verify",
	"no-runs":         "runs.enabled",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./lifeshots.yaml or <user config dir>/lifeshots/lifeshots.yaml)")
	pf.String("root", "", "Project root (default: parent of the executable's directory)")
	pf.String("patterns-dir", "", "Pattern directory, relative to the root")
	pf.String("screenshots-dir", "", "Screenshot directory, relative to the root")
	pf.String("simulator", "", "Simulator entry point, relative to the root")
	pf.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	pf.String("log-format", "", "Log format (console|json)")
	pf.String("catalog", "", "Catalog manifest (YAML or JSON) replacing the built-in catalog")
	pf.String("discover", "", "Build the catalog from pattern files matching a glob")
	pf.Lookup("discover").NoOptDefVal = catalog.DefaultDiscoverGlob

	f := rootCmd.Flags()
	f.StringVar(&singlePattern, "pattern", "", "Pattern file for single-screenshot mode")
	f.StringVar(&singleOutput, "output", "", "Screenshot path for single-screenshot mode")
	f.IntVar(&singleRows, "rows", catalog.DefaultRows, "Grid rows in single-screenshot mode")
	f.IntVar(&singleCols, "cols", catalog.DefaultCols, "Grid columns in single-screenshot mode")
	f.String("interpreter", "", "Interpreter for the simulator script (empty runs it directly)")
	f.Duration("timeout", 0, "Per-screenshot time budget (default 10s)")
	f.Int("workers", 0, "Concurrent simulator processes (default 1)")
	f.Float64("spawn-rate", 0, "Maximum simulator launches per second (0 = unlimited)")
	f.StringVar(&recordsDest, "records", "", "Write JSONL run records to a file, or - for stdout")
	f.String("publish", "", "Copy each screenshot to a destination (s3://bucket/prefix or a directory)")
	f.Bool("verify", false, "Check each published object's size after upload")
	f.Bool("strict", false, "Exit non-zero when any screenshot failed or timed out")
	f.Bool("no-runs", false, "Do not record this run in the run registry")
	f.BoolVar(&dryRun, "dry-run", false, "Print the simulator invocations without running them")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitError(foundry.ExitInvalidArgument, "Invalid flag", err)
	})
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCodeOf(err)
	}
	return 0
}

// setupCommand loads configuration and initializes logging before any
// command runs.
func setupCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(cmd.Context(), cfgFile, flagOverrides(cmd.Flags()))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	observability.InitCLILogger(config.AppName, cfg.Logging.Format == "json")
	if err := observability.SetLevel(cfg.Logging.Level); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid log level", err)
	}

	observability.CLILogger.Debug("Configuration loaded",
		zap.String("source", cfg.Source),
		zap.String("root", cfg.Paths.Root),
		zap.Duration("timeout", cfg.Batch.Timeout),
		zap.Int("workers", cfg.Batch.Workers))

	appCfg = cfg
	return nil
}

// flagOverrides collects changed flags as config overrides.
func flagOverrides(flags *pflag.FlagSet) map[string]any {
	overrides := make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		key, ok := configFlags[f.Name]
		if !ok {
			return
		}
		if f.Name == "no-runs" {
			overrides[key] = f.Value.String() != "true"
			return
		}
		overrides[key] = f.Value.String()
	})
	return overrides
}

func runRoot(cmd *cobra.Command, _ []string) error {
	opts := runOptions{records: recordsDest, dryRun: dryRun}
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if singlePattern != "" && singleOutput != "" {
		job := singleJob{
			pattern: singlePattern,
			output:  singleOutput,
			rows:    singleRows,
			cols:    singleCols,
		}
		return runSingle(cmd.Context(), appCfg, job, opts, stdout, stderr)
	}
	if singlePattern != "" || singleOutput != "" {
		observability.CLILogger.Warn("Both --pattern and --output are needed for a single screenshot; rendering the catalog")
	}
	return runBatch(cmd.Context(), appCfg, opts, stdout, stderr)
}

type exitCodeError struct {
	code    int
	message string
	err     error
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *exitCodeError) Unwrap() error { return e.err }

func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, message: message, err: err}
}

// exitCodeOf returns the exit code carried by err, or 1.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return 1
}
