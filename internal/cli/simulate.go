package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/cohortsim/internal/analytics"
	"github.com/lazypower/cohortsim/internal/config"
	"github.com/lazypower/cohortsim/internal/engine"
	"github.com/lazypower/cohortsim/internal/sink"
	"github.com/lazypower/cohortsim/internal/store"
)

var (
	simAgents     int
	simHorizon    int
	simSeed       int64
	simWorkers    int
	simNoInsights bool
	simCompare    bool
	simName       string
	simDB         string
	simNoStore    bool
	simPush       bool
	simFormat     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a cohort simulation",
	Long: "Run a simulation with the configured scenario, store it in the run database and\n" +
		"print the analytics report. Flags override the simulation section of the config.",
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.IntVarP(&simAgents, "agents", "n", 0, "total agents to acquire")
	f.IntVar(&simHorizon, "horizon", 0, "days to simulate")
	f.Int64Var(&simSeed, "seed", 0, "random seed")
	f.IntVar(&simWorkers, "workers", 0, "activity workers (0 uses GOMAXPROCS)")
	f.BoolVar(&simNoInsights, "no-insights", false, "disable insight delivery")
	f.BoolVar(&simCompare, "compare", false, "run with and without insights and compare")
	f.StringVar(&simName, "name", "", "label for the stored run")
	f.StringVar(&simDB, "db", "", "run database path")
	f.BoolVar(&simNoStore, "no-store", false, "do not persist the run")
	f.BoolVar(&simPush, "push", false, "push the run to the configured sink")
	f.StringVar(&simFormat, "format", "text", "output format: text or json")
}

// simulationParams applies the flags that were set over the config.
func simulationParams(cmd *cobra.Command, cfg *config.Config) engine.Params {
	p := cfg.Simulation
	f := cmd.Flags()
	if f.Changed("agents") {
		p.TotalAgents = simAgents
	}
	if f.Changed("horizon") {
		p.HorizonDays = simHorizon
		if p.AcquisitionDays > p.HorizonDays {
			p.AcquisitionDays = p.HorizonDays
		}
	}
	if f.Changed("seed") {
		p.Seed = simSeed
	}
	if f.Changed("workers") {
		p.Workers = simWorkers
	}
	if simNoInsights {
		p.Insight.Enabled = false
	}
	return p
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := checkFormat(simFormat); err != nil {
		return err
	}
	if simNoStore && simPush {
		return fmt.Errorf("--push needs a stored run; drop --no-store")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	params := simulationParams(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if simCompare {
		return runCompare(ctx, cmd.OutOrStdout(), params, logger)
	}

	var client *sink.Client
	if simPush {
		if client, err = sink.NewClient(cfg.Sink.URL, cfg.Sink.BatchSize, cfg.Sink.Timeout); err != nil {
			return err
		}
		if !client.Healthy(ctx) {
			return fmt.Errorf("sink %s is not reachable", cfg.Sink.URL)
		}
	}

	res, err := engine.Simulate(ctx, params, logger)
	if err != nil {
		return err
	}
	report, err := analytics.Aggregate(res.Events, res.Roster, analytics.DefaultOptions())
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	var run *store.Run
	if !simNoStore {
		db, err := openDB(cfg, simDB)
		if err != nil {
			return err
		}
		defer db.Close()

		if run, err = db.SaveRun(simName, res); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		logger.Info("run stored", "run", run.ID, "db", db.Path)

		if client != nil {
			st, err := client.Push(ctx, run.ID, res)
			if err != nil {
				return fmt.Errorf("push run %s: %w", run.ID, err)
			}
			if err := db.MarkPushed(run.ID); err != nil {
				return err
			}
			if run, err = db.GetRun(run.ID); err != nil {
				return fmt.Errorf("reload run: %w", err)
			}
			logger.Info("run pushed", "run", run.ID, "agents", st.Agents, "events", st.Events, "batches", st.Batches)
		}
	}

	out := cmd.OutOrStdout()
	if simFormat == "json" {
		return writeJSON(out, map[string]any{"run": run, "report": report})
	}
	if run != nil {
		printRun(out, run)
	}
	printReport(out, report, false)
	return nil
}

type outcome struct {
	label   string
	report  *analytics.Report
	churned int
	premium int
	events  int
}

func simulateOutcome(ctx context.Context, label string, p engine.Params, logger *slog.Logger) (outcome, error) {
	res, err := engine.Simulate(ctx, p, nil)
	if err != nil {
		return outcome{}, fmt.Errorf("%s: %w", label, err)
	}
	report, err := analytics.Aggregate(res.Events, res.Roster, analytics.DefaultOptions())
	if err != nil {
		return outcome{}, fmt.Errorf("%s: %w", label, err)
	}
	o := outcome{label: label, report: report, events: len(res.Events)}
	for _, a := range res.Roster {
		if a.Churned() {
			o.churned++
		}
		if a.Premium {
			o.premium++
		}
	}
	logger.Info("scenario complete", "scenario", label, "churned", o.churned, "premium", o.premium)
	return o, nil
}

// runCompare runs the scenario without and with insights on the same seed.
// Nothing is stored.
func runCompare(ctx context.Context, w io.Writer, p engine.Params, logger *slog.Logger) error {
	without, with := p, p
	without.Insight.Enabled = false
	with.Insight.Enabled = true

	a, err := simulateOutcome(ctx, "without insights", without, logger)
	if err != nil {
		return err
	}
	b, err := simulateOutcome(ctx, "with insights", with, logger)
	if err != nil {
		return err
	}

	if simFormat == "json" {
		return writeJSON(w, map[string]any{"without_insights": a.report, "with_insights": b.report})
	}
	fmt.Fprintf(w, "seed %d, %s agents, %d days\n\n", p.Seed, humanize.Comma(int64(p.TotalAgents)), p.HorizonDays)
	for _, o := range []outcome{a, b} {
		fmt.Fprintf(w, "%-17s churned %s, premium %s, MRR $%s, %s events\n",
			o.label, humanize.Comma(int64(o.churned)), humanize.Comma(int64(o.premium)),
			humanize.CommafWithDigits(o.report.Revenue.MRR, 2), humanize.Comma(int64(o.events)))
	}
	fmt.Fprintf(w, "\nchurn delta %+d, premium delta %+d\n", b.churned-a.churned, b.premium-a.premium)
	return nil
}
