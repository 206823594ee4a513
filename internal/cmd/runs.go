package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/lifeshots/pkg/runstore"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded screenshot runs",
	Long: `Inspect the run registry.

Every batch or single-screenshot run writes a run.json record under the
runs directory (runs.dir, default <app data dir>/runs). Run ids can be
shortened to any unique prefix.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show one run and its jobs",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsPrune,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsPruneCmd)

	runsListCmd.Flags().Bool("json", false, "Output as JSON")
	runsShowCmd.Flags().Bool("json", false, "Output as JSON")
	runsPruneCmd.Flags().Int("keep", 0, "Runs to keep (default: runs.keep)")
}

func runsStore() *runstore.Store {
	return runstore.NewStore(appCfg.RunsDir())
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return listRuns(cmd.OutOrStdout(), runsStore(), jsonOutput)
}

func listRuns(w io.Writer, store *runstore.Store, jsonOutput bool) error {
	runs, err := store.List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read run registry", err)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw, "RUN ID\tMODE\tSTATE\tSTARTED\tENDED\tOK\tFAILED\tTIMED OUT\tSKIPPED\tCATALOG")
	for _, r := range runs {
		catalogSource := r.Catalog
		if catalogSource == "" {
			catalogSource = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			shortRunID(r.RunID),
			r.Mode,
			r.State,
			formatOptionalTime(r.StartedAt),
			formatOptionalTime(r.EndedAt),
			r.Counts.Succeeded,
			r.Counts.Failed,
			r.Counts.TimedOut,
			r.Counts.Skipped,
			catalogSource,
		)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return showRun(cmd.OutOrStdout(), runsStore(), args[0], jsonOutput)
}

func showRun(w io.Writer, store *runstore.Store, input string, jsonOutput bool) error {
	runID, err := store.Resolve(input)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown run", err)
	}
	rec, err := store.Get(runID)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read run", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(w, "run_id=%s\n", rec.RunID)
	_, _ = fmt.Fprintf(w, "mode=%s\n", rec.Mode)
	_, _ = fmt.Fprintf(w, "state=%s\n", rec.State)
	if rec.Catalog != "" {
		_, _ = fmt.Fprintf(w, "catalog=%s\n", rec.Catalog)
	}
	if rec.OutputDir != "" {
		_, _ = fmt.Fprintf(w, "output_dir=%s\n", rec.OutputDir)
	}
	if rec.StartedAt != nil {
		_, _ = fmt.Fprintf(w, "started_at=%s\n", rec.StartedAt.UTC().Format(time.RFC3339))
	}
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(w, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "counts=total:%d succeeded:%d failed:%d timed_out:%d skipped:%d\n",
		rec.Counts.Total, rec.Counts.Succeeded, rec.Counts.Failed, rec.Counts.TimedOut, rec.Counts.Skipped)

	if len(rec.Jobs) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw, "#\tPATTERN\tGRID\tOUTCOME\tDURATION\tDETAIL")
	for _, j := range rec.Jobs {
		detail := j.Cause
		if detail == "" {
			detail = j.OutputPath
		}
		if j.Published != "" {
			detail += " -> " + j.Published
		}
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%dx%d\t%s\t%s\t%s\n",
			j.Index,
			j.PatternID,
			j.Rows, j.Cols,
			j.Outcome,
			(time.Duration(j.DurationMs) * time.Millisecond).String(),
			detail,
		)
	}
	return nil
}

func runRunsPrune(cmd *cobra.Command, _ []string) error {
	keep, _ := cmd.Flags().GetInt("keep")
	if !cmd.Flags().Changed("keep") {
		keep = appCfg.Runs.Keep
	}
	if keep <= 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --keep", fmt.Errorf("keep must be > 0 (got %d)", keep))
	}

	removed, err := runsStore().Prune(keep)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot prune run registry", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s), kept the newest %d\n", removed, keep)
	return nil
}

func shortRunID(runID string) string {
	runID = strings.TrimSpace(runID)
	if len(runID) <= 12 {
		return runID
	}
	return runID[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
