package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/amenity-cli/internal/config"
	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/monitoring"
	"github.com/sells-group/amenity-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect ranking run history",
	Long:  "Commands for listing and viewing stored ranking runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ranking runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, cfg, config.ModeRuns)
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := env.Store.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Query:  query,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, cfg, config.ModeRuns)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Store.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent run health and spend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, cfg, config.ModeRuns)
		if err != nil {
			return err
		}
		defer env.Close()

		since, _ := cmd.Flags().GetInt("since")
		if since <= 0 {
			since = cfg.Monitoring.LookbackWindowHours
		}

		snap, err := monitoring.NewCollector(env.Store).Collect(ctx, since)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatStats(os.Stdout, snap)
		return nil
	},
}

func formatStats(w io.Writer, snap *monitoring.MetricsSnapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Window\tlast %dh\n", snap.LookbackHours)
	fmt.Fprintf(tw, "Runs\t%d (%d complete, %d failed, %d running)\n",
		snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsRunning)
	fmt.Fprintf(tw, "Failure rate\t%.1f%%\n", snap.FailRate*100)
	fmt.Fprintf(tw, "Quota failures\t%d\n", snap.QuotaFailures)
	fmt.Fprintf(tw, "Avg records\t%.1f\n", snap.AvgRecords)
	fmt.Fprintf(tw, "Calls\t%d nearby, %d geocode\n", snap.NearbyCalls, snap.GeocodeCalls)
	fmt.Fprintf(tw, "Cost\t$%.3f\n", snap.CostUSD)
	_ = tw.Flush()
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tQUERY\tSTATUS\tRECORDS\tCALLS\tCOST\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t$%.3f\t%s\n",
			r.ID,
			truncate(r.Query.Text, 40),
			r.Status,
			r.RecordCount,
			r.Usage.NearbyCalls+r.Usage.GeocodeCalls,
			r.Usage.CostUSD,
			r.CreatedAt.Local().Format(time.DateTime),
		)
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, failed)")
	runsListCmd.Flags().String("query", "", "filter by query text")
	runsListCmd.Flags().Int("limit", 20, "max runs to show")
	runsListCmd.Flags().Int("offset", 0, "runs to skip")

	runsStatsCmd.Flags().Int("since", 0, "lookback window in hours (default from config)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}
