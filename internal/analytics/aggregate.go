// Package analytics rolls an event log and roster up into reporting tables.
// Everything here is a pure read: inputs are never mutated and the same input
// always produces the same output, in the same order.
package analytics

import (
	"fmt"
	"math"

	"github.com/lazypower/cohortsim/internal/model"
)

// Pricing is the fixed subscription price split used for revenue projection.
type Pricing struct {
	Monthly     float64 `json:"monthly" yaml:"monthly"`
	Annual      float64 `json:"annual" yaml:"annual"`
	AnnualShare float64 `json:"annual_share" yaml:"annual_share"`
}

// Options control the rollup.
type Options struct {
	// AsOfDay is the last day included. Negative means the latest day seen
	// in the log or roster. Larger values are clamped to the last day.
	AsOfDay int `json:"as_of_day" yaml:"as_of_day"`
	// HorizonDays, when positive, makes day HorizonDays-1 the last day.
	// Otherwise the latest day seen in the log or roster is.
	HorizonDays int `json:"horizon_days,omitempty" yaml:"horizon_days,omitempty"`
	// FunnelCheckIns is N in the "N check-ins" funnel stage.
	FunnelCheckIns int `json:"funnel_check_ins" yaml:"funnel_check_ins"`
	// RecentWindow is the trailing window (days) for churn-risk bucketing.
	RecentWindow int     `json:"recent_window" yaml:"recent_window"`
	Pricing      Pricing `json:"pricing" yaml:"pricing"`
}

// DefaultOptions returns the standard rollup settings.
func DefaultOptions() Options {
	return Options{
		AsOfDay:        -1,
		FunnelCheckIns: 10,
		RecentWindow:   3,
		Pricing: Pricing{
			Monthly:     9.99,
			Annual:      79.99,
			AnnualShare: 0.30,
		},
	}
}

// Report is the full set of analytics tables for one point in time.
type Report struct {
	AsOfDay     int           `json:"as_of_day"`
	Agents      int           `json:"agents"`
	Cohort      []CohortRow   `json:"cohort"`
	Funnel      []FunnelStage `json:"funnel"`
	Personas    []PersonaRow  `json:"personas"`
	Revenue     Revenue       `json:"revenue"`
	ChurnRisk   []ChurnRisk   `json:"churn_risk"`
	RiskSummary RiskSummary   `json:"risk_summary"`
	JoinCohorts []JoinCohort  `json:"join_cohorts"`
}

// Snapshot pairs a report with the tick it was taken after.
type Snapshot struct {
	Day    int     `json:"day"`
	Report *Report `json:"report"`
}

// tally is the per-agent event count used by every table.
type tally struct {
	checkIns   int
	details    int
	meaningful int
	insights   int
	recent     int
}

// Aggregate builds a Report from the event log and roster. Events that name
// an agent missing from the roster fail with MissingDependencyData.
func Aggregate(events []model.Event, roster []*model.Agent, opts Options) (*Report, error) {
	if opts.FunnelCheckIns < 1 {
		opts.FunnelCheckIns = DefaultOptions().FunnelCheckIns
	}
	if opts.RecentWindow < 1 {
		opts.RecentWindow = DefaultOptions().RecentWindow
	}

	index := make(map[string]int, len(roster))
	for i, a := range roster {
		if a == nil {
			return nil, fmt.Errorf("roster entry %d is nil", i)
		}
		if _, dup := index[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent %q in roster", a.ID)
		}
		index[a.ID] = i
	}

	last := latestDay(events, roster)
	if opts.HorizonDays > 0 {
		last = opts.HorizonDays - 1
	}
	asOf := opts.AsOfDay
	if asOf < 0 || asOf > last {
		asOf = last
	}

	tallies := make([]tally, len(roster))
	checkInsByDay := make([]int, asOf+1)
	meaningfulByDay := make([]int, asOf+1)
	for _, ev := range events {
		i, ok := index[ev.AgentID]
		if !ok {
			return nil, &model.MissingDependencyData{AgentID: ev.AgentID, Seq: ev.Seq, Kind: ev.Kind}
		}
		if ev.Day < 0 || ev.Day > asOf {
			continue
		}
		t := &tallies[i]
		switch ev.Kind {
		case model.EventCheckIn:
			t.checkIns++
			checkInsByDay[ev.Day]++
			if ev.Day > asOf-opts.RecentWindow {
				t.recent++
			}
		case model.EventDetail:
			t.details++
		case model.EventMeaningfulDay:
			t.meaningful++
			meaningfulByDay[ev.Day]++
		case model.EventInsightDelivered:
			t.insights++
		}
	}

	members := make([]int, 0, len(roster))
	for i, a := range roster {
		if a.JoinDay <= asOf {
			members = append(members, i)
		}
	}

	report := &Report{
		AsOfDay: asOf,
		Agents:  len(members),
	}
	report.Cohort = cohortTable(roster, members, asOf, checkInsByDay, meaningfulByDay)
	report.Funnel = funnelTable(roster, members, tallies, asOf, opts.FunnelCheckIns)
	report.Personas = personaTable(roster, members, tallies, asOf)
	report.Revenue = revenue(roster, members, asOf, opts.Pricing)
	report.ChurnRisk, report.RiskSummary = churnRisk(roster, members, tallies, asOf, opts.RecentWindow)
	report.JoinCohorts = joinCohorts(roster, members, asOf)
	return report, nil
}

func latestDay(events []model.Event, roster []*model.Agent) int {
	latest := 0
	for _, ev := range events {
		if ev.Day > latest {
			latest = ev.Day
		}
	}
	for _, a := range roster {
		if a.JoinDay > latest {
			latest = a.JoinDay
		}
	}
	return latest
}

// churnedBy reports whether a left at or before the end of day.
func churnedBy(a *model.Agent, day int) bool {
	return a.ChurnDay != nil && *a.ChurnDay <= day
}

func convertedBy(a *model.Agent, day int) bool {
	return a.ConversionDay != nil && *a.ConversionDay <= day
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
