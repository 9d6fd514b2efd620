package model

import (
	"errors"
	"testing"
)

func testAgent(t *testing.T) *Agent {
	t.Helper()
	a := NewAgent("agent-1", 0, Engaged, 2, Traits{Motivation: 0.7}, Scores{Body: 60, Mind: 60, Soul: 60, Purpose: 60})
	if a.State != StatePending {
		t.Fatalf("State = %s, want pending", a.State)
	}
	return a
}

func TestActivateWaitsForJoinDay(t *testing.T) {
	a := testAgent(t)
	if a.Activate(1) {
		t.Error("Activate before join day should be rejected")
	}
	if !a.Activate(2) {
		t.Fatal("Activate on join day should succeed")
	}
	if a.Activate(3) {
		t.Error("second Activate should be a no-op")
	}
}

func TestApplyCheckInClampsScores(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)

	ok, err := a.ApplyCheckIn(CheckInEvent{AgentID: a.ID, Day: 2, Daypart: Morning, Mood: MoodGreat}, Scores{Body: 500, Mind: -500, Soul: 10, Purpose: 0})
	if err != nil {
		t.Fatalf("ApplyCheckIn: %v", err)
	}
	if !ok {
		t.Fatal("expected check-in to be applied")
	}
	if a.Scores.Body != 100 || a.Scores.Mind != 0 || a.Scores.Soul != 70 {
		t.Errorf("scores = %+v, want body 100, mind 0, soul 70", a.Scores)
	}
	if a.TotalCheckIns != 1 {
		t.Errorf("TotalCheckIns = %d, want 1", a.TotalCheckIns)
	}
}

func TestApplyCheckInIgnoredWhenChurned(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)
	if err := a.SetChurned(4); err != nil {
		t.Fatalf("SetChurned: %v", err)
	}

	ok, err := a.ApplyCheckIn(CheckInEvent{AgentID: a.ID, Day: 5, Mood: MoodGood}, Scores{Body: 1})
	if err != nil {
		t.Fatalf("ApplyCheckIn on churned agent returned error: %v", err)
	}
	if ok || a.TotalCheckIns != 0 {
		t.Errorf("check-in recorded after churn: ok=%v total=%d", ok, a.TotalCheckIns)
	}
}

func TestChurnIsTerminal(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)
	if err := a.SetChurned(3); err != nil {
		t.Fatalf("SetChurned: %v", err)
	}
	err := a.SetChurned(4)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("second SetChurned err = %v, want ErrInvariant", err)
	}
	if *a.ChurnDay != 3 {
		t.Errorf("ChurnDay = %d, want 3", *a.ChurnDay)
	}
	if a.Activate(5) {
		t.Error("churned agent reactivated")
	}
}

func TestPremiumIsMonotonic(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)
	if err := a.SetPremium(5, ReasonBase); err != nil {
		t.Fatalf("SetPremium: %v", err)
	}
	if err := a.SetPremium(6, ReasonLongStreak); !errors.Is(err, ErrInvariant) {
		t.Fatalf("double conversion err = %v, want ErrInvariant", err)
	}
	if *a.ConversionDay != 5 || a.Reason != ReasonBase {
		t.Errorf("conversion overwritten: day=%d reason=%s", *a.ConversionDay, a.Reason)
	}
}

func TestSetPremiumRejectsChurned(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)
	a.SetChurned(3)
	if err := a.SetPremium(4, ReasonBase); !errors.Is(err, ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
}

func TestCloseDayStreaks(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)
	a.Scores = Scores{Body: 90, Mind: 90, Soul: 90, Purpose: 90}

	for i := 0; i < 3; i++ {
		if !a.CloseDay(2) {
			t.Fatalf("day %d should be meaningful", i)
		}
	}
	if a.CurrentStreak != 3 || a.LongestStreak != 3 || a.MeaningfulDays != 3 {
		t.Fatalf("streak=%d longest=%d meaningful=%d, want 3/3/3", a.CurrentStreak, a.LongestStreak, a.MeaningfulDays)
	}

	if a.CloseDay(0) {
		t.Error("zero check-in day cannot be meaningful")
	}
	if a.CurrentStreak != 0 {
		t.Errorf("CurrentStreak = %d, want reset to 0", a.CurrentStreak)
	}
	if a.LongestStreak != 3 {
		t.Errorf("LongestStreak = %d, want 3", a.LongestStreak)
	}
	if a.MissedIntentions != 1 {
		t.Errorf("MissedIntentions = %d, want 1", a.MissedIntentions)
	}

	a.Scores = Scores{Body: 90, Mind: 90, Soul: 10, Purpose: 90}
	if a.CloseDay(1) {
		t.Error("soul below threshold must not be meaningful")
	}
}

func TestApplyInsightBoost(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)

	ok, err := a.ApplyInsight(InsightRecord{AgentID: a.ID, Day: 5, Tier: TierCorrelation, Access: AccessFree}, 0.15, 0.1, 0.3)
	if err != nil || !ok {
		t.Fatalf("ApplyInsight: ok=%v err=%v", ok, err)
	}
	if a.EngagementBoost != 0.15 || !a.AhaMoment {
		t.Errorf("boost=%f aha=%v, want 0.15 true", a.EngagementBoost, a.AhaMoment)
	}

	a.ApplyInsight(InsightRecord{AgentID: a.ID, Day: 8, Tier: TierLag, Access: AccessFree}, 0.15, 0.1, 0.3)
	a.ApplyInsight(InsightRecord{AgentID: a.ID, Day: 11, Tier: TierCorrelation, Access: AccessFree}, 0.15, 0.1, 0.3)
	if a.EngagementBoost != 0.3 {
		t.Errorf("boost = %f, want capped at 0.3", a.EngagementBoost)
	}
	if a.LastInsightDay != 11 || len(a.Insights) != 3 {
		t.Errorf("LastInsightDay=%d insights=%d", a.LastInsightDay, len(a.Insights))
	}
}

func TestApplyInsightRejectsPremiumForFreeAgent(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)

	_, err := a.ApplyInsight(InsightRecord{AgentID: a.ID, Day: 20, Tier: TierBreakpoint, Access: AccessPremium}, 0.15, 0.1, 0.5)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
	if len(a.Insights) != 0 {
		t.Error("premium insight was recorded on a free agent")
	}
}

func TestValidate(t *testing.T) {
	a := testAgent(t)
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	a.Scores.Soul = 101
	if err := a.Validate(); !errors.Is(err, ErrInvariant) {
		t.Errorf("err = %v, want ErrInvariant", err)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)
	a.ApplyInsight(InsightRecord{AgentID: a.ID, Day: 5, Tier: TierCorrelation, Access: AccessFree}, 0.15, 0.1, 0.5)
	a.SetChurned(6)

	c := a.Clone()
	c.Insights[0].Day = 99
	*c.ChurnDay = 42
	if a.Insights[0].Day != 5 || *a.ChurnDay != 6 {
		t.Error("clone shares memory with original")
	}
}

func TestActiveDays(t *testing.T) {
	a := testAgent(t)
	a.Activate(2)
	if got := a.ActiveDays(4); got != 3 {
		t.Errorf("ActiveDays(4) = %d, want 3", got)
	}
	a.SetChurned(5)
	if got := a.ActiveDays(10); got != 4 {
		t.Errorf("ActiveDays after churn = %d, want 4", got)
	}
	if got := a.ActiveDays(1); got != 0 {
		t.Errorf("ActiveDays before join = %d, want 0", got)
	}
}
