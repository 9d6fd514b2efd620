package model

// State is the lifecycle state of an agent. Premium is an overlay, not a state.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateChurned State = "churned"
)

// noDay marks "never happened" for day-valued counters that are not pointers.
const noDay = -1

// Agent is one simulated user. Fields are exported for serialization; all
// mutation during a run goes through the guarded methods below.
type Agent struct {
	ID      string  `json:"id"`
	Index   int     `json:"index"`
	Persona Persona `json:"persona"`
	JoinDay int     `json:"join_day"`
	Traits  Traits  `json:"traits"`

	TotalCheckIns       int `json:"total_check_ins"`
	MeaningfulDays      int `json:"meaningful_days"`
	CurrentStreak       int `json:"current_streak"`
	LongestStreak       int `json:"longest_streak"`
	JournalEntries      int `json:"journal_entries"`
	DetailEntries       int `json:"detail_entries"`
	LockedContentClicks int `json:"locked_content_clicks"`
	MissedIntentions    int `json:"missed_intentions"`

	Scores Scores `json:"scores"`

	Insights        []InsightRecord `json:"insights"`
	EngagementBoost float64         `json:"engagement_boost"`
	AhaMoment       bool            `json:"aha_moment"`
	LastInsightDay  int             `json:"last_insight_day"`
	LastGateDay     int             `json:"last_gate_day"`

	State         State            `json:"state"`
	ChurnDay      *int             `json:"churn_day,omitempty"`
	Premium       bool             `json:"premium"`
	ConversionDay *int             `json:"conversion_day,omitempty"`
	Reason        ConversionReason `json:"conversion_reason,omitempty"`
}

// NewAgent creates a pending agent. The join day never changes afterwards.
func NewAgent(id string, index int, persona Persona, joinDay int, traits Traits, scores Scores) *Agent {
	return &Agent{
		ID:             id,
		Index:          index,
		Persona:        persona,
		JoinDay:        joinDay,
		Traits:         traits,
		Scores:         scores.Clamp(),
		Insights:       []InsightRecord{},
		LastInsightDay: noDay,
		LastGateDay:    noDay,
		State:          StatePending,
	}
}

// Active reports whether the agent is currently in the active state.
func (a *Agent) Active() bool { return a.State == StateActive }

// Churned reports whether the agent has left.
func (a *Agent) Churned() bool { return a.State == StateChurned }

// DaysSinceJoin is the number of whole days elapsed since joining.
func (a *Agent) DaysSinceJoin(day int) int {
	if day < a.JoinDay {
		return 0
	}
	return day - a.JoinDay
}

// ActiveDays counts the days the agent has been (or was) present, inclusive
// of day. Churned agents stop accruing at their churn day.
func (a *Agent) ActiveDays(day int) int {
	end := day
	if a.ChurnDay != nil && *a.ChurnDay < end {
		end = *a.ChurnDay
	}
	if end < a.JoinDay {
		return 0
	}
	return end - a.JoinDay + 1
}

// CheckInRate is check-ins per active day as of day.
func (a *Agent) CheckInRate(day int) float64 {
	n := a.ActiveDays(day)
	if n == 0 {
		return 0
	}
	return float64(a.TotalCheckIns) / float64(n)
}

// LastInsightActivity returns the latest day an insight was delivered or
// gated, or -1 when neither happened.
func (a *Agent) LastInsightActivity() int {
	if a.LastGateDay > a.LastInsightDay {
		return a.LastGateDay
	}
	return a.LastInsightDay
}

// Activate moves a pending agent to active once day reaches its join day.
func (a *Agent) Activate(day int) bool {
	if a.State != StatePending || day < a.JoinDay {
		return false
	}
	a.State = StateActive
	return true
}

// ApplyCheckIn records a check-in and applies the score delta. Non-active
// agents are silently ignored (false, nil).
func (a *Agent) ApplyCheckIn(ci CheckInEvent, delta Scores) (bool, error) {
	if !a.Active() {
		return false, nil
	}
	if ci.Day < a.JoinDay {
		return false, &InvariantViolation{AgentID: a.ID, Day: ci.Day, Rule: "check-in before join day"}
	}
	a.TotalCheckIns++
	if ci.Activity == TagJournal {
		a.JournalEntries++
	}
	a.Scores = a.Scores.Add(delta).Clamp()
	if !a.Scores.Valid() {
		return true, &InvariantViolation{AgentID: a.ID, Day: ci.Day, Rule: "score outside [0,100]"}
	}
	return true, nil
}

// ApplyDetail counts a logged detail entry.
func (a *Agent) ApplyDetail() bool {
	if !a.Active() {
		return false
	}
	a.DetailEntries++
	return true
}

// CloseDay settles streak bookkeeping at the end of the activity pass and
// reports whether the day was meaningful.
func (a *Agent) CloseDay(checkIns int) bool {
	if !a.Active() {
		return false
	}
	if checkIns == 0 {
		if a.CurrentStreak > 0 {
			a.MissedIntentions++
		}
		a.CurrentStreak = 0
		return false
	}
	if !a.Scores.Meaningful() {
		return false
	}
	a.MeaningfulDays++
	a.CurrentStreak++
	if a.CurrentStreak > a.LongestStreak {
		a.LongestStreak = a.CurrentStreak
	}
	return true
}

// ApplyInsight delivers an insight and updates the engagement boost. The
// first delivery sets the boost to firstBoost; later ones add increment up to
// maxBoost. Delivering premium content to a free agent is an invariant
// violation.
func (a *Agent) ApplyInsight(rec InsightRecord, firstBoost, increment, maxBoost float64) (bool, error) {
	if !a.Active() {
		return false, nil
	}
	if rec.Access.RequiresPremium() && !a.Premium {
		return false, &InvariantViolation{AgentID: a.ID, Day: rec.Day, Rule: "premium content delivered to free agent"}
	}
	if len(a.Insights) == 0 {
		a.EngagementBoost = firstBoost
		a.AhaMoment = true
	} else {
		a.EngagementBoost += increment
	}
	if a.EngagementBoost > maxBoost {
		a.EngagementBoost = maxBoost
	}
	a.Insights = append(a.Insights, rec)
	a.LastInsightDay = rec.Day
	return true, nil
}

// RecordGate logs that premium content was shown locked to a free agent.
func (a *Agent) RecordGate(day int) bool {
	if !a.Active() {
		return false
	}
	a.LockedContentClicks++
	a.LastGateDay = day
	return true
}

// SetChurned is the one-way active→churned transition.
func (a *Agent) SetChurned(day int) error {
	switch a.State {
	case StateChurned:
		return &InvariantViolation{AgentID: a.ID, Day: day, Rule: "agent already churned"}
	case StatePending:
		return &InvariantViolation{AgentID: a.ID, Day: day, Rule: "churning an agent that never activated"}
	}
	a.State = StateChurned
	a.ChurnDay = &day
	return nil
}

// SetPremium is the one-way free→premium transition.
func (a *Agent) SetPremium(day int, reason ConversionReason) error {
	if a.Premium || a.ConversionDay != nil {
		return &InvariantViolation{AgentID: a.ID, Day: day, Rule: "agent already premium"}
	}
	if !a.Active() {
		return &InvariantViolation{AgentID: a.ID, Day: day, Rule: "converting a non-active agent"}
	}
	a.Premium = true
	a.ConversionDay = &day
	a.Reason = reason
	return nil
}

// Validate checks the invariants that must hold between ticks.
func (a *Agent) Validate() error {
	if !a.Scores.Valid() {
		return &InvariantViolation{AgentID: a.ID, Rule: "score outside [0,100]"}
	}
	if a.Churned() && a.ChurnDay == nil {
		return &InvariantViolation{AgentID: a.ID, Rule: "churned without churn day"}
	}
	if a.Premium != (a.ConversionDay != nil) {
		return &InvariantViolation{AgentID: a.ID, Rule: "premium flag and conversion day disagree"}
	}
	if !a.Premium {
		for _, ins := range a.Insights {
			if ins.Access.RequiresPremium() {
				return &InvariantViolation{AgentID: a.ID, Day: ins.Day, Rule: "free agent holds premium insight"}
			}
		}
	}
	return nil
}

// Clone returns a deep copy, so snapshots never alias live state.
func (a *Agent) Clone() *Agent {
	c := *a
	c.Insights = append([]InsightRecord(nil), a.Insights...)
	if c.Insights == nil {
		c.Insights = []InsightRecord{}
	}
	if a.ChurnDay != nil {
		d := *a.ChurnDay
		c.ChurnDay = &d
	}
	if a.ConversionDay != nil {
		d := *a.ConversionDay
		c.ConversionDay = &d
	}
	return &c
}
