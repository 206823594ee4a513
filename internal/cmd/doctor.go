package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	lsconfig "github.com/3leaps/lifeshots/internal/config"
	"github.com/3leaps/lifeshots/internal/observability"
	"github.com/3leaps/lifeshots/pkg/orchestrator"
	"github.com/3leaps/lifeshots/pkg/publish"
)

var (
	doctorProvider string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and suggest fixes for common issues.

Examples:
  lifeshots doctor                 # Interpreter, simulator and directory checks
  lifeshots doctor --provider s3   # Also check AWS credentials for publishing`,
	Args: cobra.NoArgs,
	Run:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3)")
}

func runDoctor(cmd *cobra.Command, _ []string) {
	provider := doctorProvider
	if provider == "" && strings.HasPrefix(appCfg.Publish.URI, "s3://") {
		provider = "s3"
	}
	runDoctorChecks(cmd.Context(), appCfg, provider)
}

// runDoctorChecks logs each check and reports whether all of them passed.
func runDoctorChecks(ctx context.Context, cfg *lsconfig.Config, provider string) bool {
	log := observability.CLILogger
	log.Info("=== lifeshots doctor ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 7
	if provider == "s3" {
		totalChecks = 9
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	log.Info(fmt.Sprintf("[%d/%d] Checking Go runtime... ✅ %s %s/%s", checkNum, totalChecks, goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 2: Config source
	source := cfg.Source
	if source == "" {
		source = "defaults (no config file)"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking config... ✅ %s", checkNum, totalChecks, source),
		zap.String("config_source", cfg.Source))
	checkNum++

	paths, err := resolvePaths(cfg)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking project root... ❌ Cannot resolve", checkNum, totalChecks), zap.Error(err))
		log.Warn("⚠️  Set --root or paths.root and re-run doctor.")
		return false
	}

	// Check 3: Interpreter
	if interp := strings.TrimSpace(cfg.Simulator.Interpreter); interp != "" {
		if resolved, err := exec.LookPath(interp); err != nil {
			log.Error(fmt.Sprintf("[%d/%d] Checking interpreter... ❌ %s not found on PATH", checkNum, totalChecks, interp),
				zap.Error(err))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[%d/%d] Checking interpreter... ✅ %s", checkNum, totalChecks, resolved),
				zap.String("interpreter", resolved))
		}
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking interpreter... ✅ none (simulator runs directly)", checkNum, totalChecks))
	}
	checkNum++

	// Check 4: Simulator
	if isFile(paths.Simulator) {
		log.Info(fmt.Sprintf("[%d/%d] Checking simulator... ✅ %s", checkNum, totalChecks, paths.Simulator),
			zap.String("simulator", paths.Simulator))
	} else {
		log.Error(fmt.Sprintf("[%d/%d] Checking simulator... ❌ %s not found", checkNum, totalChecks, paths.Simulator))
		allChecks = false
	}
	checkNum++

	// Check 5: Pattern sources for the configured catalog
	cat, catSource, err := loadCatalog(cfg, paths)
	switch {
	case err != nil:
		log.Error(fmt.Sprintf("[%d/%d] Checking catalog... ❌ %s", checkNum, totalChecks, catSource), zap.Error(err))
		allChecks = false
	default:
		plan := orchestrator.New(paths, cat, nil, orchestrator.Config{}).Plan()
		missing := 0
		for _, pj := range plan {
			if pj.Missing {
				missing++
				log.Warn(fmt.Sprintf("    missing pattern: %s", pj.PatternPath))
			}
		}
		if missing == 0 {
			log.Info(fmt.Sprintf("[%d/%d] Checking catalog... ✅ %d pattern(s) in %s", checkNum, totalChecks, len(plan), paths.PatternsDir),
				zap.String("catalog", catSource))
		} else {
			log.Warn(fmt.Sprintf("[%d/%d] Checking catalog... ⚠️  %d of %d pattern(s) missing (they will be skipped)", checkNum, totalChecks, missing, len(plan)),
				zap.String("catalog", catSource))
			allChecks = false
		}
	}
	checkNum++

	// Check 6: Screenshots directory
	if ok, detail := creatableDir(paths.ScreenshotsDir); ok {
		log.Info(fmt.Sprintf("[%d/%d] Checking screenshots directory... ✅ %s (%s)", checkNum, totalChecks, paths.ScreenshotsDir, detail))
	} else {
		log.Error(fmt.Sprintf("[%d/%d] Checking screenshots directory... ❌ %s (%s)", checkNum, totalChecks, paths.ScreenshotsDir, detail))
		allChecks = false
	}
	checkNum++

	// Check 7: Run registry
	if !cfg.Runs.Enabled {
		log.Info(fmt.Sprintf("[%d/%d] Checking run registry... ✅ disabled", checkNum, totalChecks))
	} else if ok, detail := creatableDir(cfg.RunsDir()); ok {
		log.Info(fmt.Sprintf("[%d/%d] Checking run registry... ✅ %s (%s)", checkNum, totalChecks, cfg.RunsDir(), detail))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking run registry... ⚠️  %s (%s)", checkNum, totalChecks, cfg.RunsDir(), detail))
		allChecks = false
	}
	checkNum++

	if provider == "s3" {
		if !runS3Checks(ctx, cfg, checkNum, totalChecks) {
			allChecks = false
		}
	}

	log.Info("")
	if allChecks {
		log.Info("✅ All checks passed! lifeshots is ready to render screenshots.")
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
	return allChecks
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// creatableDir reports whether dir exists or its nearest existing ancestor
// is a directory it could be created under.
func creatableDir(dir string) (bool, string) {
	st, err := os.Stat(dir)
	if err == nil {
		if !st.IsDir() {
			return false, "exists but is not a directory"
		}
		return true, "exists"
	}
	for parent := filepath.Dir(dir); ; parent = filepath.Dir(parent) {
		st, err := os.Stat(parent)
		if err == nil {
			if !st.IsDir() {
				return false, parent + " is not a directory"
			}
			return true, "will be created"
		}
		if filepath.Dir(parent) == parent {
			return false, "no existing parent"
		}
	}
}

// runS3Checks checks that AWS credentials resolve for S3 publishing.
func runS3Checks(ctx context.Context, cfg *lsconfig.Config, checkNum, totalChecks int) bool {
	log := observability.CLILogger
	log.Info("")
	log.Info("S3 Publish Checks:")

	if cfg.Publish.URI != "" {
		if dest, err := publish.ParseDestination(cfg.Publish.URI); err != nil {
			log.Warn("    publish.uri is invalid", zap.String("uri", cfg.Publish.URI), zap.Error(err))
		} else {
			log.Info("    destination: "+dest.String(), zap.String("bucket", dest.Bucket))
		}
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Publish.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Publish.Region))
	}
	if cfg.Publish.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Publish.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))
	checkNum++

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking credential source... ✅ %s", checkNum, totalChecks, source),
		zap.String("credential_source", source))

	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile (publish.profile), or")
	observability.CLILogger.Info("  3. Use an IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	observability.CLILogger.Info("  - publish.endpoint and publish.force_path_style in lifeshots.yaml")
	observability.CLILogger.Info("")
}
