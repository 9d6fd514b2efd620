package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	runsLimit int
	runsDB    string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored simulation runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete stored runs with their roster, events and snapshots",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	runsCmd.PersistentFlags().StringVar(&runsDB, "db", "", "run database path")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
	runsCmd.AddCommand(runsDeleteCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg, runsDB)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs stored. Start one with `cohortsim simulate`.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSEED\tAGENTS\tDAYS\tINSIGHTS\tCHURNED\tPREMIUM\tCREATED\tPUSHED")
	for _, r := range runs {
		pushed := "-"
		if r.PushedAt != nil {
			pushed = humanize.Time(time.UnixMilli(*r.PushedAt))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.Name, r.Seed, humanize.Comma(int64(r.Agents)), r.HorizonDays, onOff(r.InsightsEnabled),
			r.Churned, r.Premium, humanize.Time(time.UnixMilli(r.CreatedAt)), pushed)
	}
	return tw.Flush()
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg, runsDB)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, id := range args {
		if err := db.DeleteRun(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	}
	return nil
}
