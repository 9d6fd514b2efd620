package engine

import (
	"math"
	"math/rand/v2"

	"github.com/lazypower/cohortsim/internal/model"
)

// Fixed multipliers of the check-in probability product.
const (
	morningFactor = 1.2
	nightFactor   = 0.85
	streakFactor  = 1.15
	streakMin     = 3
	premiumFactor = 1.25
	noveltyFactor = 1.1
	noveltyDays   = 7

	detailPremiumFactor = 2.0
	detailMorningFactor = 1.5
	maxDetailRate       = 0.9

	minDurationSec = 30
	maxDurationSec = 300

	// Per-check-in score drift independent of mood.
	checkInDrift = 0.5
)

// Mood sensitivity per domain.
var domainGain = model.Scores{Body: 3.0, Mind: 3.5, Soul: 4.0, Purpose: 3.0}

func daypartFactor(part model.Daypart) float64 {
	switch part {
	case model.Morning:
		return morningFactor
	case model.Night:
		return nightFactor
	}
	return 1.0
}

// timeDecay blends exponential decay with a floor so long-tenured agents
// settle near floor of their initial rate instead of vanishing.
func timeDecay(lambda, floor float64, daysSinceJoin int) float64 {
	return floor + (1-floor)*math.Exp(-lambda*float64(daysSinceJoin))
}

// CheckInProbability is the product of the named multipliers, capped at
// MaxProbability.
func CheckInProbability(a *model.Agent, prof PersonaProfile, ap ActivityParams, day int, part model.Daypart) float64 {
	dsj := a.DaysSinceJoin(day)

	boost := math.Min(a.EngagementBoost, ap.BoostCap)
	p := prof.CheckInRate
	p *= 1 + boost
	p *= timeDecay(ap.DecayLambda, ap.DecayFloor, dsj)
	p *= daypartFactor(part)
	if a.CurrentStreak >= streakMin {
		p *= streakFactor
	}
	if a.Premium {
		p *= premiumFactor
	}
	if dsj < noveltyDays {
		p *= noveltyFactor
	}
	return math.Min(p, ap.MaxProbability)
}

// simulateAgentDay runs all four dayparts for one agent and closes the day.
// It touches only a, so callers may run agents concurrently.
func (s *Simulation) simulateAgentDay(a *model.Agent, day int) ([]model.Event, error) {
	if !a.Active() {
		return nil, nil
	}
	prof := s.params.Personas[a.Persona]
	ap := s.params.Activity

	var events []model.Event
	checkIns := 0
	for _, part := range model.Dayparts {
		r := stream(s.params.Seed, a.Index, day, purposeActivity+string(part))
		if r.Float64() >= CheckInProbability(a, prof, ap, day, part) {
			continue
		}

		ci := model.CheckInEvent{
			AgentID:     a.ID,
			Day:         day,
			Daypart:     part,
			Mood:        model.Mood(pick(r, prof.MoodWeights) + 1),
			DurationSec: minDurationSec + r.IntN(maxDurationSec-minDurationSec+1),
		}
		if r.Float64() < ap.ActivityRate {
			ci.Activity = model.MicroActivities[r.IntN(len(model.MicroActivities))]
		}

		ok, err := a.ApplyCheckIn(ci, scoreDelta(r, a.Traits, ci.Mood, ap.ScoreNoise))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		checkIns++
		events = append(events, model.Event{Day: day, Kind: model.EventCheckIn, AgentID: a.ID, CheckIn: &ci})

		if r.Float64() < detailRate(ap.DetailRate, a.Premium, part) && a.ApplyDetail() {
			d := detailEntry(r, a, day, part)
			events = append(events, model.Event{Day: day, Kind: model.EventDetail, AgentID: a.ID, Detail: &d})
		}
	}

	if a.CloseDay(checkIns) {
		events = append(events, model.Event{Day: day, Kind: model.EventMeaningfulDay, AgentID: a.ID})
	}
	return events, nil
}

func detailRate(base float64, premium bool, part model.Daypart) float64 {
	p := base
	if premium {
		p *= detailPremiumFactor
	}
	if part == model.Morning {
		p *= detailMorningFactor
	}
	return math.Min(p, maxDetailRate)
}

// scoreDelta maps a mood to per-domain changes. Mood 3 is mildly positive;
// traits tilt the domain they relate to.
func scoreDelta(r *rand.Rand, t model.Traits, mood model.Mood, noise float64) model.Scores {
	signal := (float64(mood) - 2.5) / 2.5
	jitter := func() float64 { return (r.Float64()*2 - 1) * noise }
	return model.Scores{
		Body:    domainGain.Body*signal + checkInDrift + (t.SleepQuality - 0.5) + jitter(),
		Mind:    domainGain.Mind*signal + checkInDrift - (t.Stress - 0.5) + jitter(),
		Soul:    domainGain.Soul*signal + checkInDrift - (t.SocialMediaMinutes-0.5)*0.5 + jitter(),
		Purpose: domainGain.Purpose*signal + checkInDrift + (t.Motivation - 0.5) + jitter(),
	}
}

func detailEntry(r *rand.Rand, a *model.Agent, day int, part model.Daypart) model.DetailEntry {
	t := a.Traits
	sleep := 5 + 4*t.SleepQuality + (r.Float64()*2-1)*0.75
	steps := 2000 + int(10000*t.Motivation) + r.IntN(2001) - 1000
	if steps < 0 {
		steps = 0
	}
	screen := 60 + int(300*t.SocialMediaMinutes) + r.IntN(61) - 30
	if screen < 0 {
		screen = 0
	}
	return model.DetailEntry{
		AgentID:      a.ID,
		Day:          day,
		Daypart:      part,
		SleepHours:   math.Round(sleep*10) / 10,
		Steps:        steps,
		ScreenTimeMn: screen,
	}
}
