package engine

import (
	"math"

	"github.com/lazypower/cohortsim/internal/model"
)

const (
	eligibleMeaningfulDays = 3
	eligibleMinDays        = 6
	eligibleRatePerDay     = 3
	journalMinEntries      = 3

	reasonLockedClicks = 2
	reasonLongStreak   = 5
	reasonHighRate     = 3.0
)

// ConversionEligible reports whether a free agent may be offered premium today.
func ConversionEligible(a *model.Agent, day int) bool {
	if !a.Active() || a.Premium {
		return false
	}
	if a.MeaningfulDays >= eligibleMeaningfulDays {
		return true
	}
	dsj := a.DaysSinceJoin(day)
	return dsj >= eligibleMinDays && a.TotalCheckIns >= eligibleRatePerDay*dsj
}

// ConversionProbability applies the multipliers in canonical order:
// persona base, insight, meaningful days, journal engagement, then the cap.
func ConversionProbability(a *model.Agent, prof PersonaProfile, cp ConversionParams) float64 {
	p := prof.ConversionRate
	switch n := len(a.Insights); {
	case n >= cp.HighInsightCount:
		p *= cp.HighInsightFactor
	case n > 0:
		p *= cp.AnyInsightFactor
	}
	if a.MeaningfulDays >= eligibleMeaningfulDays {
		p *= cp.MeaningfulFactor
	}
	if a.JournalEntries >= journalMinEntries {
		p *= cp.JournalFactor
	}
	return math.Min(p, cp.MaxProbability)
}

// ConversionTrigger picks the highest-priority reason that applies.
func ConversionTrigger(a *model.Agent, day int) model.ConversionReason {
	switch {
	case a.MissedIntentions > 0:
		return model.ReasonMissedIntention
	case a.LockedContentClicks >= reasonLockedClicks:
		return model.ReasonLockedContentClicks
	case a.LongestStreak >= reasonLongStreak:
		return model.ReasonLongStreak
	case a.CheckInRate(day) >= reasonHighRate:
		return model.ReasonHighCheckInRate
	}
	return model.ReasonBase
}

// evaluateConversion makes one Bernoulli draw per eligible agent.
func (s *Simulation) evaluateConversion(day int) ([]model.Event, error) {
	var events []model.Event
	for _, a := range s.agents {
		if !ConversionEligible(a, day) {
			continue
		}
		p := ConversionProbability(a, s.params.Personas[a.Persona], s.params.Conversion)
		if stream(s.params.Seed, a.Index, day, purposeConversion).Float64() >= p {
			continue
		}
		reason := ConversionTrigger(a, day)
		if err := a.SetPremium(day, reason); err != nil {
			return nil, err
		}
		s.trace("conversion", "day", day, "agent", a.Index, "persona", a.Persona, "p", p, "reason", reason)
		events = append(events, model.Event{Day: day, Kind: model.EventConversion, AgentID: a.ID, Reason: reason})
	}
	return events, nil
}
