package engine

import "github.com/lazypower/cohortsim/internal/model"

// rung is one step of the insight ladder.
type rung struct {
	tier     model.ContentTier
	access   model.AccessTier
	minDays  int
	minPrior int
}

// ladder is delivered in order; the first rung's day threshold comes from
// InsightParams.FirstMinDays.
var ladder = []rung{
	{tier: model.TierCorrelation, access: model.AccessFree},
	{tier: model.TierLag, access: model.AccessFree, minDays: 7, minPrior: 1},
	{tier: model.TierBreakpoint, access: model.AccessPremium, minDays: 14, minPrior: 2},
	{tier: model.TierPurposePath, access: model.AccessPremiumGated, minDays: 21, minPrior: 3},
}

// refresh is repeated once the ladder is exhausted.
var refresh = rung{tier: model.TierCorrelation, access: model.AccessFree, minPrior: len(ladder)}

func nextRung(delivered int) rung {
	if delivered < len(ladder) {
		return ladder[delivered]
	}
	return refresh
}

// deliverInsight evaluates one agent's eligibility for today and returns the
// resulting events: a delivery (plus aha moment on the first), a gate, or
// nothing.
func (s *Simulation) deliverInsight(a *model.Agent, day int) ([]model.Event, error) {
	ip := s.params.Insight
	if !ip.Enabled || !a.Active() {
		return nil, nil
	}

	dsj := a.DaysSinceJoin(day)
	delivered := len(a.Insights)
	next := nextRung(delivered)

	if delivered == 0 {
		if dsj < ip.FirstMinDays || a.TotalCheckIns < ip.FirstMinCheckIns {
			return nil, nil
		}
	} else if day-a.LastInsightActivity() < ip.SpacingDays {
		return nil, nil
	}
	if dsj < next.minDays || delivered < next.minPrior {
		return nil, nil
	}
	rec := model.InsightRecord{AgentID: a.ID, Day: day, Tier: next.tier, Access: next.access}

	if next.access.RequiresPremium() && !a.Premium {
		if !a.RecordGate(day) {
			return nil, nil
		}
		return []model.Event{{Day: day, Kind: model.EventInsightGated, AgentID: a.ID, Insight: &rec}}, nil
	}

	ok, err := a.ApplyInsight(rec, ip.FirstBoost, ip.BoostIncrement, ip.MaxBoost)
	if err != nil || !ok {
		return nil, err
	}
	events := []model.Event{{Day: day, Kind: model.EventInsightDelivered, AgentID: a.ID, Insight: &rec}}
	if delivered == 0 {
		events = append(events, model.Event{Day: day, Kind: model.EventAhaMoment, AgentID: a.ID})
	}
	return events, nil
}

// protection is the churn-score divisor: agents holding at least one insight
// are harder to lose.
func (s *Simulation) protection(a *model.Agent) float64 {
	if len(a.Insights) > 0 {
		return 1 - s.params.Insight.Protection
	}
	return 1
}
