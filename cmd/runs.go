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

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/monitoring"
	"github.com/sells-group/rayven/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect simulation run history",
	Long:  "Commands for listing, viewing, and summarizing stored simulation runs and their ghosts.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List simulation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		band, _ := cmd.Flags().GetString("band")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status: model.RunStatus(status),
			Band:   model.Band(band),
			Limit:  limit,
		}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
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

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs ghosts --

var runsGhostsCmd = &cobra.Command{
	Use:   "ghosts <run-id>",
	Short: "List the ghosts stored for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ghosts, err := st.ListGhosts(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs ghosts")
		}

		if len(ghosts) == 0 {
			fmt.Fprintln(os.Stderr, "No ghosts found.")
			return nil
		}

		formatGhostList(os.Stdout, ghosts)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}

		collector := monitoring.NewCollector(st, time.Duration(cfg.Monitoring.StaleRunHours)*time.Hour)
		snap, err := collector.Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, failed)")
	runsListCmd.Flags().String("band", "", "filter by band (u, g, r, i, z, y)")
	runsListCmd.Flags().Duration("since", 0, "only runs created within this window (e.g. 24h)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsGhostsCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tBAND\tMOUNT\tSTATUS\tSTARS\tGHOSTS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t-----\t------\t-------\t--------")

	for _, r := range runs {
		ghosts := ""
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		if r.Summary != nil {
			ghosts = fmt.Sprintf("%d", r.Summary.Ghosts)
			dur = (time.Duration(r.Summary.DurationMs) * time.Millisecond).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Spec.Band,
			formatMount(r.Spec.Mount),
			r.Status,
			r.Spec.NumStars,
			ghosts,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatMount renders mount angles compactly, e.g. "tma 30/60".
func formatMount(m model.MountSpec) string {
	s := fmt.Sprintf("%s %g/%g", m.Kind, m.Az, m.Alt)
	if m.Kind == model.MountCBP {
		s += fmt.Sprintf(" dome %g", m.DomeAz)
	}
	return s
}

// formatGhostList writes a tabular list of ghosts to w.
func formatGhostList(out io.Writer, ghosts []model.GhostRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAR\tNAME\tSAMPLES\tFLUX\tSCALE\tFOOTPRINT (mm)")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t-------\t----\t-----\t--------------")

	for _, g := range ghosts {
		fp := g.Footprint
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%.4g\t%g\t[%.1f, %.1f] x [%.1f, %.1f]\n",
			truncateID(g.ID),
			g.StarIndex,
			g.Name,
			g.Samples,
			g.TotalFlux,
			g.Scale,
			fp[0], fp[2], fp[1], fp[3],
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s *monitoring.RunSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "  Stale:\t%d\n", s.Stale)
	_, _ = fmt.Fprintf(w, "Queued:\t%d\n", s.Queued)
	_, _ = fmt.Fprintf(w, "Stars traced:\t%d\n", s.Stars)
	_, _ = fmt.Fprintf(w, "Ghosts:\t%d\n", s.Ghosts)
	if s.Complete+s.Failed > 0 {
		_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", s.FailRate*100)
	}
	if s.AvgMs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", float64(s.AvgMs)/1000)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
