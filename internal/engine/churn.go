package engine

import (
	"math"
	"sort"

	"github.com/lazypower/cohortsim/internal/model"
)

// ChurnScore ranks how attached an agent is; the lowest scores leave first.
func (s *Simulation) ChurnScore(a *model.Agent, day int) float64 {
	return a.CheckInRate(day) * a.Traits.Motivation / s.protection(a)
}

// churnBudget is how many more agents should leave today so the cumulative
// curve tracks target × population × progress. Population weights agents who
// hold an insight by their protection factor.
func (s *Simulation) churnBudget(day int) (budget int, candidates []*model.Agent) {
	churned := 0
	population := 0.0
	for _, a := range s.agents {
		switch {
		case a.Churned():
			churned++
			population++
		case a.Active():
			population += s.protection(a)
			candidates = append(candidates, a)
		}
	}

	progress := math.Min(1, float64(day+1)/float64(s.params.HorizonDays))
	target := int(math.Floor(s.params.TargetChurnRate*population*progress + 1e-9))
	return target - churned, candidates
}

// evaluateChurn churns the lowest-ranked active agents up to today's budget.
func (s *Simulation) evaluateChurn(day int) ([]model.Event, error) {
	budget, candidates := s.churnBudget(day)
	if budget <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	scores := make(map[*model.Agent]float64, len(candidates))
	for _, a := range candidates {
		scores[a] = s.ChurnScore(a, day)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := scores[candidates[i]], scores[candidates[j]]
		if si != sj {
			return si < sj
		}
		return candidates[i].Index < candidates[j].Index
	})

	if budget > len(candidates) {
		budget = len(candidates)
	}
	events := make([]model.Event, 0, budget)
	for _, a := range candidates[:budget] {
		if err := a.SetChurned(day); err != nil {
			return nil, err
		}
		s.trace("churn", "day", day, "agent", a.Index, "persona", a.Persona, "score", scores[a])
		events = append(events, model.Event{Day: day, Kind: model.EventChurn, AgentID: a.ID})
	}
	return events, nil
}
