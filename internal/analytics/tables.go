package analytics

import (
	"fmt"
	"math"

	"github.com/lazypower/cohortsim/internal/model"
)

// CohortRow is one day of the population-level table. Active is measured at
// the end of the day, after churn; AvgCheckIns divides by the agents active
// at the start of the day.
type CohortRow struct {
	Day               int     `json:"day"`
	Joined            int     `json:"joined"`
	Active            int     `json:"active"`
	Churned           int     `json:"churned"`
	RetentionRate     float64 `json:"retention_rate"`
	CheckIns          int     `json:"check_ins"`
	AvgCheckIns       float64 `json:"avg_check_ins"`
	MeaningfulDays    int     `json:"meaningful_days"`
	NewPremium        int     `json:"new_premium"`
	CumulativePremium int     `json:"cumulative_premium"`
}

func cohortTable(roster []*model.Agent, members []int, asOf int, checkIns, meaningful []int) []CohortRow {
	rows := make([]CohortRow, 0, asOf+1)
	for d := 0; d <= asOf; d++ {
		row := CohortRow{Day: d, CheckIns: checkIns[d], MeaningfulDays: meaningful[d]}
		startActive := 0
		for _, i := range members {
			a := roster[i]
			if a.JoinDay > d {
				continue
			}
			row.Joined++
			if churnedBy(a, d) {
				row.Churned++
			}
			if !churnedBy(a, d-1) {
				startActive++
			}
			if a.ConversionDay != nil {
				if *a.ConversionDay == d {
					row.NewPremium++
				}
				if *a.ConversionDay <= d {
					row.CumulativePremium++
				}
			}
		}
		row.Active = row.Joined - row.Churned
		row.RetentionRate = round4(ratio(row.Active, row.Joined))
		// Agents churned today still checked in today.
		row.AvgCheckIns = round4(ratio(row.CheckIns, startActive))
		rows = append(rows, row)
	}
	return rows
}

// FunnelStage is one step of the cumulative engagement funnel. Each stage's
// population is a subset of the previous stage's.
type FunnelStage struct {
	Stage          string  `json:"stage"`
	Count          int     `json:"count"`
	Percent        float64 `json:"percent"`
	DropOff        int     `json:"drop_off"`
	DropOffPercent float64 `json:"drop_off_percent"`
}

func funnelTable(roster []*model.Agent, members []int, tallies []tally, asOf, n int) []FunnelStage {
	names := []string{
		"signed_up",
		"first_check_in",
		fmt.Sprintf("%d_check_ins", n),
		"logged_details",
		"first_meaningful_day",
		"three_meaningful_days",
		"premium",
	}
	gates := []func(a *model.Agent, t tally) bool{
		func(*model.Agent, tally) bool { return true },
		func(_ *model.Agent, t tally) bool { return t.checkIns >= 1 },
		func(_ *model.Agent, t tally) bool { return t.checkIns >= n },
		func(_ *model.Agent, t tally) bool { return t.details >= 1 },
		func(_ *model.Agent, t tally) bool { return t.meaningful >= 1 },
		func(_ *model.Agent, t tally) bool { return t.meaningful >= 3 },
		func(a *model.Agent, _ tally) bool { return convertedBy(a, asOf) },
	}

	counts := make([]int, len(gates))
	for _, i := range members {
		for stage, gate := range gates {
			if !gate(roster[i], tallies[i]) {
				break
			}
			counts[stage]++
		}
	}

	total := len(members)
	stages := make([]FunnelStage, len(names))
	for k, name := range names {
		st := FunnelStage{Stage: name, Count: counts[k], Percent: round4(100 * ratio(counts[k], total))}
		if k > 0 {
			st.DropOff = counts[k-1] - counts[k]
			st.DropOffPercent = round4(100 * ratio(st.DropOff, counts[k-1]))
		}
		stages[k] = st
	}
	return stages
}

// PersonaRow compares personas side by side.
type PersonaRow struct {
	Persona           model.Persona `json:"persona"`
	Agents            int           `json:"agents"`
	AvgCheckIns       float64       `json:"avg_check_ins"`
	AvgMeaningfulDays float64       `json:"avg_meaningful_days"`
	AvgFulfillment    float64       `json:"avg_fulfillment"`
	AvgInsights       float64       `json:"avg_insights"`
	ChurnRate         float64       `json:"churn_rate"`
	PremiumRate       float64       `json:"premium_rate"`
}

func personaTable(roster []*model.Agent, members []int, tallies []tally, asOf int) []PersonaRow {
	type acc struct {
		agents      int
		checkIns    int
		meaningful  int
		insights    int
		churned     int
		premium     int
		fulfillment float64
	}
	sums := make(map[model.Persona]*acc, len(model.Personas))
	for _, p := range model.Personas {
		sums[p] = &acc{}
	}
	for _, i := range members {
		a := roster[i]
		s, ok := sums[a.Persona]
		if !ok {
			continue
		}
		t := tallies[i]
		s.agents++
		s.checkIns += t.checkIns
		s.meaningful += t.meaningful
		s.insights += t.insights
		s.fulfillment += a.Scores.Fulfillment()
		if churnedBy(a, asOf) {
			s.churned++
		}
		if convertedBy(a, asOf) {
			s.premium++
		}
	}

	rows := make([]PersonaRow, 0, len(model.Personas))
	for _, p := range model.Personas {
		s := sums[p]
		row := PersonaRow{
			Persona:           p,
			Agents:            s.agents,
			AvgCheckIns:       round4(ratio(s.checkIns, s.agents)),
			AvgMeaningfulDays: round4(ratio(s.meaningful, s.agents)),
			AvgInsights:       round4(ratio(s.insights, s.agents)),
			ChurnRate:         round4(ratio(s.churned, s.agents)),
			PremiumRate:       round4(ratio(s.premium, s.agents)),
		}
		if s.agents > 0 {
			row.AvgFulfillment = round4(s.fulfillment / float64(s.agents))
		}
		rows = append(rows, row)
	}
	return rows
}

// Revenue projects recurring revenue from premium agents still present.
type Revenue struct {
	Converted          int     `json:"converted"`
	Paying             int     `json:"paying"`
	MonthlySubscribers int     `json:"monthly_subscribers"`
	AnnualSubscribers  int     `json:"annual_subscribers"`
	MRR                float64 `json:"mrr"`
	ARR                float64 `json:"arr"`
	ARPU               float64 `json:"arpu"`
	ConversionRate     float64 `json:"conversion_rate"`
}

func revenue(roster []*model.Agent, members []int, asOf int, price Pricing) Revenue {
	var rev Revenue
	active := 0
	for _, i := range members {
		a := roster[i]
		churned := churnedBy(a, asOf)
		if !churned {
			active++
		}
		if !convertedBy(a, asOf) {
			continue
		}
		rev.Converted++
		if !churned {
			rev.Paying++
		}
	}
	rev.AnnualSubscribers = int(math.Round(float64(rev.Paying) * price.AnnualShare))
	rev.MonthlySubscribers = rev.Paying - rev.AnnualSubscribers
	mrr := float64(rev.MonthlySubscribers)*price.Monthly + float64(rev.AnnualSubscribers)*price.Annual/12
	rev.MRR = math.Round(mrr*100) / 100
	rev.ARR = math.Round(mrr*12*100) / 100
	if active > 0 {
		rev.ARPU = math.Round(mrr/float64(active)*100) / 100
	}
	rev.ConversionRate = round4(ratio(rev.Converted, len(members)))
	return rev
}

// RiskBucket classifies how far recent engagement has fallen from an
// agent's own baseline.
type RiskBucket string

const (
	RiskLow    RiskBucket = "low"
	RiskMedium RiskBucket = "medium"
	RiskHigh   RiskBucket = "high"
)

const (
	lowRiskRatio    = 0.8
	mediumRiskRatio = 0.4
)

// ChurnRisk is one present agent's engagement trend.
type ChurnRisk struct {
	AgentID        string        `json:"agent_id"`
	Persona        model.Persona `json:"persona"`
	RecentRate     float64       `json:"recent_rate"`
	HistoricalRate float64       `json:"historical_rate"`
	Ratio          float64       `json:"ratio"`
	Bucket         RiskBucket    `json:"bucket"`
}

// RiskSummary counts agents per bucket.
type RiskSummary struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

func bucketFor(r float64) RiskBucket {
	switch {
	case r >= lowRiskRatio:
		return RiskLow
	case r >= mediumRiskRatio:
		return RiskMedium
	}
	return RiskHigh
}

func churnRisk(roster []*model.Agent, members []int, tallies []tally, asOf, window int) ([]ChurnRisk, RiskSummary) {
	var summary RiskSummary
	risks := make([]ChurnRisk, 0, len(members))
	for _, i := range members {
		a := roster[i]
		if churnedBy(a, asOf) {
			continue
		}
		days := asOf - a.JoinDay + 1
		w := min(window, days)
		hist := ratio(tallies[i].checkIns, days)
		recent := ratio(tallies[i].recent, w)
		r := 0.0
		if hist > 0 {
			r = recent / hist
		}
		cr := ChurnRisk{
			AgentID:        a.ID,
			Persona:        a.Persona,
			RecentRate:     round4(recent),
			HistoricalRate: round4(hist),
			Ratio:          round4(r),
			Bucket:         bucketFor(r),
		}
		switch cr.Bucket {
		case RiskLow:
			summary.Low++
		case RiskMedium:
			summary.Medium++
		default:
			summary.High++
		}
		risks = append(risks, cr)
	}
	return risks, summary
}

// JoinCohort tracks the agents who joined on one day. Retained[e] is how many
// were still present at the end of day JoinDay+e.
type JoinCohort struct {
	JoinDay  int   `json:"join_day"`
	Size     int   `json:"size"`
	Retained []int `json:"retained"`
}

func joinCohorts(roster []*model.Agent, members []int, asOf int) []JoinCohort {
	byDay := make([][]*model.Agent, asOf+1)
	for _, i := range members {
		a := roster[i]
		byDay[a.JoinDay] = append(byDay[a.JoinDay], a)
	}

	var cohorts []JoinCohort
	for jd, agents := range byDay {
		if len(agents) == 0 {
			continue
		}
		c := JoinCohort{JoinDay: jd, Size: len(agents), Retained: make([]int, asOf-jd+1)}
		for e := range c.Retained {
			for _, a := range agents {
				if !churnedBy(a, jd+e) {
					c.Retained[e]++
				}
			}
		}
		cohorts = append(cohorts, c)
	}
	return cohorts
}
