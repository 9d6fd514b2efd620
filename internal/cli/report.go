package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/cohortsim/internal/analytics"
	"github.com/lazypower/cohortsim/internal/store"
)

var (
	reportAsOf    int
	reportFunnelN int
	reportFormat  string
	reportDB      string
	reportDays    bool
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print analytics for a stored run",
	Long:  "Recompute cohort, funnel, persona, revenue and churn-risk tables from a stored run's roster and event log.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportAsOf, "as-of", -1, "last day to include (-1 for the whole run)")
	reportCmd.Flags().IntVar(&reportFunnelN, "funnel-n", 10, "check-ins required by the N-check-ins funnel stage")
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "output format: text or json")
	reportCmd.Flags().StringVar(&reportDB, "db", "", "run database path")
	reportCmd.Flags().BoolVar(&reportDays, "days", false, "print every cohort day instead of a weekly sample")
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := checkFormat(reportFormat); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg, reportDB)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", args[0])
	}
	if reportAsOf >= run.HorizonDays {
		return fmt.Errorf("--as-of %d is past the last day of the run (%d)", reportAsOf, run.HorizonDays-1)
	}
	res, err := db.LoadResult(run.ID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	opts := analytics.DefaultOptions()
	opts.AsOfDay = reportAsOf
	opts.HorizonDays = run.HorizonDays
	opts.FunnelCheckIns = reportFunnelN
	report, err := analytics.Aggregate(res.Events, res.Roster, opts)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	out := cmd.OutOrStdout()
	if reportFormat == "json" {
		return writeJSON(out, map[string]any{"run": run, "report": report})
	}
	printRun(out, run)
	printReport(out, report, reportDays)
	return nil
}

func checkFormat(f string) error {
	if f != "text" && f != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", f)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printRun(w io.Writer, run *store.Run) {
	name := run.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "Run %s %s\n", run.ID, name)
	fmt.Fprintf(w, "  seed %d, %s agents, %d days, insights %s, created %s\n",
		run.Seed, humanize.Comma(int64(run.Agents)), run.HorizonDays,
		onOff(run.InsightsEnabled), humanize.Time(time.UnixMilli(run.CreatedAt)))
	fmt.Fprintf(w, "  %s events, %s churned, %s premium\n",
		humanize.Comma(int64(run.EventCount)), humanize.Comma(int64(run.Churned)), humanize.Comma(int64(run.Premium)))
	if run.PushedAt != nil {
		fmt.Fprintf(w, "  pushed %s\n", humanize.Time(time.UnixMilli(*run.PushedAt)))
	}
	fmt.Fprintln(w)
}

func pct(v float64) string {
	return humanize.FormatFloat("#,###.#", v) + "%"
}

// printReport renders r as plain-text tables. Unless all is set the cohort
// table shows every seventh day plus the last.
func printReport(w io.Writer, r *analytics.Report, all bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "## Cohort (as of day %d, %s agents)\n\n", r.AsOfDay, humanize.Comma(int64(r.Agents)))
	fmt.Fprintln(tw, "day\tjoined\tactive\tchurned\tretention\tcheck-ins\tavg\tmeaningful\tpremium\t")
	for i, row := range r.Cohort {
		if !all && i%7 != 6 && i != len(r.Cohort)-1 && i != 0 {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%.2f\t%d\t%d\t\n",
			row.Day, humanize.Comma(int64(row.Joined)), humanize.Comma(int64(row.Active)), row.Churned,
			pct(100*row.RetentionRate), humanize.Comma(int64(row.CheckIns)), row.AvgCheckIns,
			row.MeaningfulDays, row.CumulativePremium)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n## Funnel\n\n")
	fmt.Fprintln(tw, "stage\tcount\tof cohort\tdrop-off\t")
	for _, st := range r.Funnel {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", st.Stage, humanize.Comma(int64(st.Count)), pct(st.Percent), pct(st.DropOffPercent))
	}
	tw.Flush()

	fmt.Fprintf(w, "\n## Personas\n\n")
	fmt.Fprintln(tw, "persona\tagents\tcheck-ins\tmeaningful\tfulfillment\tinsights\tchurn\tpremium\t")
	for _, p := range r.Personas {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t%s\t%s\t\n",
			p.Persona, p.Agents, p.AvgCheckIns, p.AvgMeaningfulDays, p.AvgFulfillment, p.AvgInsights,
			pct(100*p.ChurnRate), pct(100*p.PremiumRate))
	}
	tw.Flush()

	rev := r.Revenue
	fmt.Fprintf(w, "\n## Revenue\n\n")
	fmt.Fprintf(w, "  paying %s (%s monthly, %s annual), conversion %s\n",
		humanize.Comma(int64(rev.Paying)), humanize.Comma(int64(rev.MonthlySubscribers)),
		humanize.Comma(int64(rev.AnnualSubscribers)), pct(100*rev.ConversionRate))
	fmt.Fprintf(w, "  MRR $%s  ARR $%s  ARPU $%.2f\n",
		humanize.CommafWithDigits(rev.MRR, 2), humanize.CommafWithDigits(rev.ARR, 2), rev.ARPU)

	rs := r.RiskSummary
	fmt.Fprintf(w, "\n## Churn risk\n\n")
	fmt.Fprintf(w, "  low %d, medium %d, high %d\n", rs.Low, rs.Medium, rs.High)
}
