package engine

import (
	"fmt"
	"math"
	"runtime"

	"github.com/lazypower/cohortsim/internal/model"
)

// Range is a closed interval [Min, Max].
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) at(u float64) float64 { return r.Min + (r.Max-r.Min)*u }

// TraitRanges bound the uniform draw for each trait.
type TraitRanges struct {
	SleepQuality       Range `json:"sleep_quality" yaml:"sleep_quality"`
	Stress             Range `json:"stress" yaml:"stress"`
	SocialMediaMinutes Range `json:"social_media_minutes" yaml:"social_media_minutes"`
	Motivation         Range `json:"motivation" yaml:"motivation"`
}

// ScoreRanges bound the initial domain scores.
type ScoreRanges struct {
	Body    Range `json:"body" yaml:"body"`
	Mind    Range `json:"mind" yaml:"mind"`
	Soul    Range `json:"soul" yaml:"soul"`
	Purpose Range `json:"purpose" yaml:"purpose"`
}

// PersonaProfile fixes the baseline behavior of one persona.
type PersonaProfile struct {
	CheckInRate    float64     `json:"check_in_rate" yaml:"check_in_rate"`
	ConversionRate float64     `json:"conversion_rate" yaml:"conversion_rate"`
	MoodWeights    []float64   `json:"mood_weights" yaml:"mood_weights"` // awful..great
	Traits         TraitRanges `json:"traits" yaml:"traits"`
	InitialScores  ScoreRanges `json:"initial_scores" yaml:"initial_scores"`
}

// ActivityParams tune the check-in probability model.
type ActivityParams struct {
	BoostCap       float64 `json:"boost_cap" yaml:"boost_cap"`
	DecayLambda    float64 `json:"decay_lambda" yaml:"decay_lambda"`
	DecayFloor     float64 `json:"decay_floor" yaml:"decay_floor"`
	MaxProbability float64 `json:"max_probability" yaml:"max_probability"`
	DetailRate     float64 `json:"detail_rate" yaml:"detail_rate"`
	ActivityRate   float64 `json:"activity_rate" yaml:"activity_rate"`
	ScoreNoise     float64 `json:"score_noise" yaml:"score_noise"`
}

// InsightParams tune the insight ladder and engagement feedback.
type InsightParams struct {
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	FirstMinDays     int     `json:"first_min_days" yaml:"first_min_days"`
	FirstMinCheckIns int     `json:"first_min_check_ins" yaml:"first_min_check_ins"`
	SpacingDays      int     `json:"spacing_days" yaml:"spacing_days"`
	FirstBoost       float64 `json:"first_boost" yaml:"first_boost"`
	BoostIncrement   float64 `json:"boost_increment" yaml:"boost_increment"`
	MaxBoost         float64 `json:"max_boost" yaml:"max_boost"`
	Protection       float64 `json:"protection" yaml:"protection"`
}

// ConversionParams tune the daily premium conversion draw.
type ConversionParams struct {
	HighInsightCount  int     `json:"high_insight_count" yaml:"high_insight_count"`
	HighInsightFactor float64 `json:"high_insight_factor" yaml:"high_insight_factor"`
	AnyInsightFactor  float64 `json:"any_insight_factor" yaml:"any_insight_factor"`
	MeaningfulFactor  float64 `json:"meaningful_factor" yaml:"meaningful_factor"`
	JournalFactor     float64 `json:"journal_factor" yaml:"journal_factor"`
	MaxProbability    float64 `json:"max_probability" yaml:"max_probability"`
}

// Params is the complete scalar configuration of a run.
type Params struct {
	TotalAgents      int     `json:"total_agents" yaml:"total_agents"`
	HorizonDays      int     `json:"horizon_days" yaml:"horizon_days"`
	AcquisitionDays  int     `json:"acquisition_days" yaml:"acquisition_days"`
	AcquisitionDecay float64 `json:"acquisition_decay" yaml:"acquisition_decay"`
	MinDailyWindow   int     `json:"min_daily_window" yaml:"min_daily_window"`
	TargetChurnRate  float64 `json:"target_churn_rate" yaml:"target_churn_rate"`
	Seed             int64   `json:"seed" yaml:"seed"`
	Workers          int     `json:"workers" yaml:"workers"`
	SnapshotEvery    int     `json:"snapshot_every" yaml:"snapshot_every"`

	PersonaMix map[model.Persona]float64        `json:"persona_mix" yaml:"persona_mix"`
	Personas   map[model.Persona]PersonaProfile `json:"personas" yaml:"personas"`

	Activity   ActivityParams   `json:"activity" yaml:"activity"`
	Insight    InsightParams    `json:"insight" yaml:"insight"`
	Conversion ConversionParams `json:"conversion" yaml:"conversion"`
}

// DefaultParams returns a 1,000 agent, 30 day scenario.
func DefaultParams() Params {
	return Params{
		TotalAgents:      1000,
		HorizonDays:      30,
		AcquisitionDays:  14,
		AcquisitionDecay: 0.15,
		MinDailyWindow:   7,
		TargetChurnRate:  0.25,
		Seed:             1,
		Workers:          4,
		SnapshotEvery:    7,
		PersonaMix: map[model.Persona]float64{
			model.Casual:    0.45,
			model.Engaged:   0.30,
			model.Struggler: 0.20,
			model.PowerUser: 0.05,
		},
		Personas: DefaultPersonas(),
		Activity: ActivityParams{
			BoostCap:       0.5,
			DecayLambda:    0.03,
			DecayFloor:     0.67,
			MaxProbability: 0.98,
			DetailRate:     0.15,
			ActivityRate:   0.4,
			ScoreNoise:     1.5,
		},
		Insight: InsightParams{
			Enabled:          true,
			FirstMinDays:     3,
			FirstMinCheckIns: 6,
			SpacingDays:      3,
			FirstBoost:       0.15,
			BoostIncrement:   0.10,
			MaxBoost:         0.5,
			Protection:       0.4,
		},
		Conversion: ConversionParams{
			HighInsightCount:  4,
			HighInsightFactor: 2.0,
			AnyInsightFactor:  1.5,
			MeaningfulFactor:  1.3,
			JournalFactor:     1.3,
			MaxProbability:    0.95,
		},
	}
}

// DefaultPersonas returns the built-in persona profiles.
func DefaultPersonas() map[model.Persona]PersonaProfile {
	return map[model.Persona]PersonaProfile{
		model.Casual: {
			CheckInRate:    0.35,
			ConversionRate: 0.02,
			MoodWeights:    []float64{0.05, 0.15, 0.40, 0.30, 0.10},
			Traits: TraitRanges{
				SleepQuality:       Range{0.4, 0.7},
				Stress:             Range{0.3, 0.6},
				SocialMediaMinutes: Range{0.4, 0.8},
				Motivation:         Range{0.3, 0.6},
			},
			InitialScores: ScoreRanges{
				Body: Range{50, 65}, Mind: Range{50, 62}, Soul: Range{55, 70}, Purpose: Range{40, 52},
			},
		},
		model.Engaged: {
			CheckInRate:    0.60,
			ConversionRate: 0.05,
			MoodWeights:    []float64{0.03, 0.10, 0.30, 0.37, 0.20},
			Traits: TraitRanges{
				SleepQuality:       Range{0.5, 0.85},
				Stress:             Range{0.2, 0.5},
				SocialMediaMinutes: Range{0.2, 0.5},
				Motivation:         Range{0.6, 0.9},
			},
			InitialScores: ScoreRanges{
				Body: Range{60, 72}, Mind: Range{55, 68}, Soul: Range{65, 78}, Purpose: Range{45, 58},
			},
		},
		model.Struggler: {
			CheckInRate:    0.30,
			ConversionRate: 0.03,
			MoodWeights:    []float64{0.15, 0.30, 0.35, 0.15, 0.05},
			Traits: TraitRanges{
				SleepQuality:       Range{0.1, 0.45},
				Stress:             Range{0.6, 0.95},
				SocialMediaMinutes: Range{0.6, 1.0},
				Motivation:         Range{0.2, 0.5},
			},
			InitialScores: ScoreRanges{
				Body: Range{35, 50}, Mind: Range{30, 45}, Soul: Range{40, 55}, Purpose: Range{25, 40},
			},
		},
		model.PowerUser: {
			CheckInRate:    0.80,
			ConversionRate: 0.08,
			MoodWeights:    []float64{0.02, 0.06, 0.22, 0.40, 0.30},
			Traits: TraitRanges{
				SleepQuality:       Range{0.6, 0.95},
				Stress:             Range{0.1, 0.4},
				SocialMediaMinutes: Range{0.1, 0.4},
				Motivation:         Range{0.8, 1.0},
			},
			InitialScores: ScoreRanges{
				Body: Range{65, 78}, Mind: Range{60, 72}, Soul: Range{70, 82}, Purpose: Range{50, 62},
			},
		},
	}
}

// FillDefaults supplies the default persona mix and profiles where p leaves
// them unset. Profiles given explicitly are kept whole.
func (p *Params) FillDefaults() {
	if len(p.PersonaMix) == 0 {
		p.PersonaMix = DefaultParams().PersonaMix
	}
	if p.Personas == nil {
		p.Personas = make(map[model.Persona]PersonaProfile, len(model.Personas))
	}
	for persona, prof := range DefaultPersonas() {
		if _, ok := p.Personas[persona]; !ok {
			p.Personas[persona] = prof
		}
	}
}

// mixTolerance is how far persona weights may drift from summing to 1.
const mixTolerance = 0.01

func cfgErr(field, format string, args ...any) error {
	return &model.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate reports the first invalid parameter as a ConfigurationError.
func (p Params) Validate() error {
	if p.TotalAgents < 0 {
		return cfgErr("total_agents", "must be >= 0, got %d", p.TotalAgents)
	}
	if p.HorizonDays < 1 {
		return cfgErr("horizon_days", "must be >= 1, got %d", p.HorizonDays)
	}
	if p.AcquisitionDays < 1 || p.AcquisitionDays > p.HorizonDays {
		return cfgErr("acquisition_days", "must be in [1, horizon_days], got %d", p.AcquisitionDays)
	}
	if p.AcquisitionDecay <= 0 || p.AcquisitionDecay > 1 {
		return cfgErr("acquisition_decay", "must be in (0, 1], got %g", p.AcquisitionDecay)
	}
	if p.MinDailyWindow < 0 {
		return cfgErr("min_daily_window", "must be >= 0, got %d", p.MinDailyWindow)
	}
	if p.TargetChurnRate < 0 || p.TargetChurnRate > 1 {
		return cfgErr("target_churn_rate", "must be in [0, 1], got %g", p.TargetChurnRate)
	}
	if p.Workers < 0 {
		return cfgErr("workers", "must be >= 0, got %d", p.Workers)
	}
	if p.SnapshotEvery < 0 {
		return cfgErr("snapshot_every", "must be >= 0, got %d", p.SnapshotEvery)
	}

	sum := 0.0
	for persona, w := range p.PersonaMix {
		if !persona.Valid() {
			return cfgErr("persona_mix", "unknown persona %q", persona)
		}
		if w < 0 || math.IsNaN(w) {
			return cfgErr("persona_mix", "weight for %s must be >= 0, got %g", persona, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > mixTolerance {
		return cfgErr("persona_mix", "weights must sum to 1, got %.4f", sum)
	}

	for persona, w := range p.PersonaMix {
		if w == 0 {
			continue
		}
		prof, ok := p.Personas[persona]
		if !ok {
			return cfgErr("personas", "no profile for %s", persona)
		}
		if err := prof.validate(string(persona)); err != nil {
			return err
		}
	}

	a := p.Activity
	if a.BoostCap < 0 || a.DecayLambda < 0 || a.ScoreNoise < 0 {
		return cfgErr("activity", "boost_cap, decay_lambda and score_noise must be >= 0")
	}
	if a.DecayFloor < 0 || a.DecayFloor > 1 {
		return cfgErr("activity.decay_floor", "must be in [0, 1], got %g", a.DecayFloor)
	}
	if a.MaxProbability <= 0 || a.MaxProbability > 0.98 {
		return cfgErr("activity.max_probability", "must be in (0, 0.98], got %g", a.MaxProbability)
	}
	if !unit(a.DetailRate) || !unit(a.ActivityRate) {
		return cfgErr("activity", "detail_rate and activity_rate must be in [0, 1]")
	}

	in := p.Insight
	if in.FirstMinDays < 0 || in.FirstMinCheckIns < 0 || in.SpacingDays < 0 {
		return cfgErr("insight", "day and count thresholds must be >= 0")
	}
	if in.FirstBoost < 0 || in.BoostIncrement < 0 || in.MaxBoost < in.FirstBoost {
		return cfgErr("insight", "boosts must be >= 0 and max_boost >= first_boost")
	}
	if !unit(in.Protection) || in.Protection == 1 {
		return cfgErr("insight.protection", "must be in [0, 1), got %g", in.Protection)
	}

	c := p.Conversion
	if c.HighInsightCount < 1 {
		return cfgErr("conversion.high_insight_count", "must be >= 1, got %d", c.HighInsightCount)
	}
	if c.HighInsightFactor < 0 || c.AnyInsightFactor < 0 || c.MeaningfulFactor < 0 || c.JournalFactor < 0 {
		return cfgErr("conversion", "factors must be >= 0")
	}
	if !unit(c.MaxProbability) {
		return cfgErr("conversion.max_probability", "must be in [0, 1], got %g", c.MaxProbability)
	}
	return nil
}

func (pp PersonaProfile) validate(name string) error {
	field := "personas." + name
	if !unit(pp.CheckInRate) {
		return cfgErr(field+".check_in_rate", "must be in [0, 1], got %g", pp.CheckInRate)
	}
	if !unit(pp.ConversionRate) {
		return cfgErr(field+".conversion_rate", "must be in [0, 1], got %g", pp.ConversionRate)
	}
	if len(pp.MoodWeights) != 5 {
		return cfgErr(field+".mood_weights", "need 5 weights, got %d", len(pp.MoodWeights))
	}
	total := 0.0
	for _, w := range pp.MoodWeights {
		if w < 0 {
			return cfgErr(field+".mood_weights", "weights must be >= 0")
		}
		total += w
	}
	if total <= 0 {
		return cfgErr(field+".mood_weights", "weights must not all be zero")
	}

	traits := map[string]Range{
		"sleep_quality":        pp.Traits.SleepQuality,
		"stress":               pp.Traits.Stress,
		"social_media_minutes": pp.Traits.SocialMediaMinutes,
		"motivation":           pp.Traits.Motivation,
	}
	for trait, r := range traits {
		if r.Min < 0 || r.Max > 1 || r.Min > r.Max {
			return cfgErr(field+".traits."+trait, "malformed range [%g, %g]", r.Min, r.Max)
		}
	}

	scores := map[string]Range{
		"body":    pp.InitialScores.Body,
		"mind":    pp.InitialScores.Mind,
		"soul":    pp.InitialScores.Soul,
		"purpose": pp.InitialScores.Purpose,
	}
	for domain, r := range scores {
		if r.Min < 0 || r.Max > 100 || r.Min > r.Max {
			return cfgErr(field+".initial_scores."+domain, "malformed range [%g, %g]", r.Min, r.Max)
		}
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 && !math.IsNaN(v) }

// workers resolves the configured worker count; zero means GOMAXPROCS.
func (p Params) workers() int {
	if p.Workers < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return p.Workers
}
