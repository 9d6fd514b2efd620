package model

import "math"

// Persona is the behavioral archetype an agent is generated from.
type Persona string

const (
	Casual    Persona = "casual"
	Engaged   Persona = "engaged"
	Struggler Persona = "struggler"
	PowerUser Persona = "power-user"
)

// Personas lists every persona in canonical report order.
var Personas = []Persona{Casual, Engaged, Struggler, PowerUser}

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	switch p {
	case Casual, Engaged, Struggler, PowerUser:
		return true
	}
	return false
}

// Daypart is one of the four check-in windows of a simulated day.
type Daypart string

const (
	Morning Daypart = "morning"
	Day     Daypart = "day"
	Evening Daypart = "evening"
	Night   Daypart = "night"
)

// Dayparts is the order dayparts are simulated within a tick.
var Dayparts = []Daypart{Morning, Day, Evening, Night}

// Mood is an ordinal 1 (awful) .. 5 (great).
type Mood int

const (
	MoodAwful Mood = iota + 1
	MoodLow
	MoodOkay
	MoodGood
	MoodGreat
)

func (m Mood) String() string {
	switch m {
	case MoodAwful:
		return "awful"
	case MoodLow:
		return "low"
	case MoodOkay:
		return "okay"
	case MoodGood:
		return "good"
	case MoodGreat:
		return "great"
	}
	return "unknown"
}

// Micro-activity tags attached to some check-ins.
const (
	TagBreathing = "breathing"
	TagWalk      = "walk"
	TagGratitude = "gratitude"
	TagStretch   = "stretch"
	TagJournal   = "journal"
)

// MicroActivities lists the tags in draw order.
var MicroActivities = []string{TagBreathing, TagWalk, TagGratitude, TagStretch, TagJournal}

// ContentTier is the analytical depth of an insight.
type ContentTier string

const (
	TierCorrelation ContentTier = "correlation"
	TierLag         ContentTier = "lag"
	TierBreakpoint  ContentTier = "breakpoint"
	TierPurposePath ContentTier = "purpose-path"
)

// AccessTier decides which subscribers may receive an insight.
type AccessTier string

const (
	AccessFree         AccessTier = "free"
	AccessPremium      AccessTier = "premium"
	AccessPremiumGated AccessTier = "premium-gated"
)

// RequiresPremium reports whether content at this tier is withheld from free agents.
func (a AccessTier) RequiresPremium() bool {
	return a == AccessPremium || a == AccessPremiumGated
}

// Traits are the fixed per-agent behavioral inputs, each in [0,1].
type Traits struct {
	SleepQuality       float64 `json:"sleep_quality" yaml:"sleep_quality"`
	Stress             float64 `json:"stress" yaml:"stress"`
	SocialMediaMinutes float64 `json:"social_media_minutes" yaml:"social_media_minutes"`
	Motivation         float64 `json:"motivation" yaml:"motivation"`
}

// Meaningful-day thresholds. All four must hold on the same day.
const (
	MeaningfulBody    = 70.0
	MeaningfulMind    = 65.0
	MeaningfulSoul    = 80.0
	MeaningfulPurpose = 55.0
)

const (
	minScore = 0.0
	maxScore = 100.0
)

// Scores are the four domain scores, each kept in [0,100].
type Scores struct {
	Body    float64 `json:"body"`
	Mind    float64 `json:"mind"`
	Soul    float64 `json:"soul"`
	Purpose float64 `json:"purpose"`
}

// Fulfillment is the mean of the four domain scores.
func (s Scores) Fulfillment() float64 {
	return (s.Body + s.Mind + s.Soul + s.Purpose) / 4
}

// Add returns s shifted by d, unclamped.
func (s Scores) Add(d Scores) Scores {
	return Scores{
		Body:    s.Body + d.Body,
		Mind:    s.Mind + d.Mind,
		Soul:    s.Soul + d.Soul,
		Purpose: s.Purpose + d.Purpose,
	}
}

// Clamp pins every score into [0,100].
func (s Scores) Clamp() Scores {
	return Scores{
		Body:    clamp(s.Body),
		Mind:    clamp(s.Mind),
		Soul:    clamp(s.Soul),
		Purpose: clamp(s.Purpose),
	}
}

// Valid reports whether every score is a number inside [0,100].
func (s Scores) Valid() bool {
	for _, v := range []float64{s.Body, s.Mind, s.Soul, s.Purpose} {
		if math.IsNaN(v) || v < minScore || v > maxScore {
			return false
		}
	}
	return true
}

// Meaningful reports whether all four thresholds are cleared.
func (s Scores) Meaningful() bool {
	return s.Body >= MeaningfulBody &&
		s.Mind >= MeaningfulMind &&
		s.Soul >= MeaningfulSoul &&
		s.Purpose >= MeaningfulPurpose
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(minScore, math.Min(maxScore, v))
}

// CheckInEvent is one mood check-in.
type CheckInEvent struct {
	AgentID     string  `json:"agent_id"`
	Day         int     `json:"day"`
	Daypart     Daypart `json:"daypart"`
	Mood        Mood    `json:"mood"`
	Activity    string  `json:"activity,omitempty"`
	DurationSec int     `json:"duration_sec"`
}

// DetailEntry holds supplementary daily metrics logged alongside a check-in.
type DetailEntry struct {
	AgentID      string  `json:"agent_id"`
	Day          int     `json:"day"`
	Daypart      Daypart `json:"daypart"`
	SleepHours   float64 `json:"sleep_hours"`
	Steps        int     `json:"steps"`
	ScreenTimeMn int     `json:"screen_time_min"`
}

// InsightRecord is one delivered (or gated) insight.
type InsightRecord struct {
	AgentID string      `json:"agent_id"`
	Day     int         `json:"day"`
	Tier    ContentTier `json:"tier"`
	Access  AccessTier  `json:"access"`
}

// ConversionReason is the trigger recorded when an agent goes premium.
type ConversionReason string

const (
	ReasonMissedIntention     ConversionReason = "missed-intention"
	ReasonLockedContentClicks ConversionReason = "high-locked-content-clicks"
	ReasonLongStreak          ConversionReason = "long-streak"
	ReasonHighCheckInRate     ConversionReason = "high-check-in-rate"
	ReasonBase                ConversionReason = "base"
)
