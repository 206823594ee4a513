package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/lifeshots/internal/config"
	"github.com/3leaps/lifeshots/pkg/orchestrator"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the screenshot catalog and resolved paths",
	Long: `Show every catalog entry with its pattern source and screenshot path.

Entries whose pattern file is missing are marked; a batch run skips them.

Examples:
  lifeshots catalog
  lifeshots catalog --discover
  lifeshots catalog --catalog shots.yaml --json`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().Bool("json", false, "Output as JSON")
}

type catalogEntry struct {
	Index       int    `json:"index"`
	PatternID   string `json:"pattern_id"`
	DisplayName string `json:"display_name"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	PatternPath string `json:"pattern_path"`
	OutputPath  string `json:"output_path"`
	Missing     bool   `json:"missing"`
}

type catalogView struct {
	Source         string         `json:"source"`
	Root           string         `json:"root"`
	PatternsDir    string         `json:"patterns_dir"`
	ScreenshotsDir string         `json:"screenshots_dir"`
	Simulator      string         `json:"simulator"`
	Entries        []catalogEntry `json:"entries"`
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return showCatalog(cmd.OutOrStdout(), appCfg, jsonOutput)
}

func showCatalog(w io.Writer, cfg *config.Config, jsonOutput bool) error {
	paths, err := resolvePaths(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve project root", err)
	}
	cat, source, err := loadCatalog(cfg, paths)
	if err != nil {
		return exitError(catalogExitCode(err), "Invalid catalog", err)
	}

	view := catalogView{
		Source:         source,
		Root:           paths.Root,
		PatternsDir:    paths.PatternsDir,
		ScreenshotsDir: paths.ScreenshotsDir,
		Simulator:      paths.Simulator,
		Entries:        []catalogEntry{},
	}
	for _, pj := range orchestrator.New(paths, cat, nil, orchestrator.Config{}).Plan() {
		view.Entries = append(view.Entries, catalogEntry{
			Index:       pj.Index,
			PatternID:   pj.Job.PatternID,
			DisplayName: pj.Job.DisplayName,
			Rows:        pj.Job.Rows,
			Cols:        pj.Job.Cols,
			PatternPath: pj.PatternPath,
			OutputPath:  pj.OutputPath,
			Missing:     pj.Missing,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	_, _ = fmt.Fprintf(w, "Catalog:     %s\n", view.Source)
	_, _ = fmt.Fprintf(w, "Patterns:    %s\n", view.PatternsDir)
	_, _ = fmt.Fprintf(w, "Screenshots: %s\n", view.ScreenshotsDir)
	_, _ = fmt.Fprintf(w, "Simulator:   %s\n", view.Simulator)
	_, _ = fmt.Fprintln(w)

	if len(view.Entries) == 0 {
		_, _ = fmt.Fprintln(w, "No catalog entries")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw, "#\tPATTERN\tGRID\tNAME\tSOURCE\tSCREENSHOT")
	for _, e := range view.Entries {
		source := "ok"
		if e.Missing {
			source = "missing"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%dx%d\t%s\t%s\t%s\n",
			e.Index, e.PatternID, e.Rows, e.Cols, e.DisplayName, source, e.OutputPath)
	}
	return nil
}
