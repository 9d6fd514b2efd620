package engine

import (
	"context"
	"errors"
	"math"
	"reflect"
	"runtime"
	"testing"

	"github.com/lazypower/cohortsim/internal/model"
)

// scenarioParams is the reference scenario: 100 agents all joining on day 0,
// a 12 day horizon and a fixed persona mix.
func scenarioParams(insights bool) Params {
	p := DefaultParams()
	p.TotalAgents = 100
	p.HorizonDays = 12
	p.AcquisitionDays = 1
	p.MinDailyWindow = 1
	p.SnapshotEvery = 0
	p.PersonaMix = map[model.Persona]float64{
		model.Engaged:   0.30,
		model.Casual:    0.45,
		model.Struggler: 0.20,
		model.PowerUser: 0.05,
	}
	p.Insight.Enabled = insights
	return p
}

func run(t *testing.T, p Params) *Result {
	t.Helper()
	res, err := Simulate(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	return res
}

func count(events []model.Event, kind model.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func byID(roster []*model.Agent) map[string]*model.Agent {
	m := make(map[string]*model.Agent, len(roster))
	for _, a := range roster {
		m[a.ID] = a
	}
	return m
}

func TestScenarioABaseline(t *testing.T) {
	res := run(t, scenarioParams(false))

	if len(res.Roster) != 100 {
		t.Fatalf("roster = %d, want 100", len(res.Roster))
	}
	for _, a := range res.Roster {
		if a.JoinDay != 0 {
			t.Fatalf("agent %d joined on day %d, want 0", a.Index, a.JoinDay)
		}
	}

	want := int(math.Floor(0.25 * 100))
	if got := count(res.Events, model.EventChurn); got != want {
		t.Errorf("churned = %d, want %d", got, want)
	}
	if n := count(res.Events, model.EventInsightDelivered) + count(res.Events, model.EventInsightGated); n != 0 {
		t.Errorf("insight events = %d with insights disabled", n)
	}

	agents := byID(res.Roster)
	meaningful := false
	for _, ev := range res.Events {
		if ev.Kind != model.EventMeaningfulDay {
			continue
		}
		p := agents[ev.AgentID].Persona
		if p == model.Engaged || p == model.PowerUser {
			meaningful = true
			break
		}
	}
	if !meaningful {
		t.Error("no meaningful day recorded for engaged or power-user agents")
	}
}

func TestScenarioBInsightsReduceChurn(t *testing.T) {
	convA, convB := 0, 0
	for seed := int64(1); seed <= 3; seed++ {
		pa := scenarioParams(false)
		pa.Seed = seed
		pb := scenarioParams(true)
		pb.Seed = seed

		a := run(t, pa)
		b := run(t, pb)

		churnA, churnB := count(a.Events, model.EventChurn), count(b.Events, model.EventChurn)
		if churnB >= churnA {
			t.Errorf("seed %d: churn with insights = %d, without = %d; want strictly lower", seed, churnB, churnA)
		}
		if count(b.Events, model.EventAhaMoment) == 0 {
			t.Errorf("seed %d: no aha moments with insights enabled", seed)
		}
		convA += count(a.Events, model.EventConversion)
		convB += count(b.Events, model.EventConversion)
	}
	if convB <= convA {
		t.Errorf("conversions with insights = %d, without = %d; want strictly higher", convB, convA)
	}
}

func TestRunInvariants(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		p := DefaultParams()
		p.TotalAgents = 150
		p.HorizonDays = 30
		p.Seed = seed
		p.Activity.ScoreNoise = 40
		res := run(t, p)

		agents := byID(res.Roster)
		churns := map[string]int{}
		conversions := map[string]int{}
		cumulative := 0
		day := -1
		for i, ev := range res.Events {
			if ev.Seq != i {
				t.Fatalf("seed %d: event %d has seq %d", seed, i, ev.Seq)
			}
			if ev.Day < day {
				t.Fatalf("seed %d: event %d goes back in time", seed, ev.Seq)
			}
			day = ev.Day

			a, ok := agents[ev.AgentID]
			if !ok {
				t.Fatalf("seed %d: event %d names unknown agent", seed, ev.Seq)
			}
			if ev.Day < a.JoinDay {
				t.Errorf("seed %d: %s event before join day", seed, ev.Kind)
			}

			switch ev.Kind {
			case model.EventCheckIn, model.EventInsightDelivered, model.EventInsightGated:
				if a.ChurnDay != nil && ev.Day > *a.ChurnDay {
					t.Errorf("seed %d: %s after churn for agent %d", seed, ev.Kind, a.Index)
				}
			case model.EventChurn:
				churns[ev.AgentID]++
				cumulative++
				bound := math.Ceil(p.TargetChurnRate * float64(p.TotalAgents) * float64(ev.Day+1) / float64(p.HorizonDays))
				if float64(cumulative) > bound {
					t.Errorf("seed %d day %d: cumulative churn %d exceeds %v", seed, ev.Day, cumulative, bound)
				}
			case model.EventConversion:
				conversions[ev.AgentID]++
			}

			if ev.Kind == model.EventInsightDelivered && ev.Insight.Access.RequiresPremium() {
				if a.ConversionDay == nil || *a.ConversionDay >= ev.Day {
					t.Errorf("seed %d: premium insight delivered to agent %d before conversion", seed, a.Index)
				}
			}
		}

		for id, n := range churns {
			if n != 1 {
				t.Errorf("seed %d: agent %s churned %d times", seed, id, n)
			}
		}
		for id, n := range conversions {
			if n != 1 {
				t.Errorf("seed %d: agent %s converted %d times", seed, id, n)
			}
		}
		for _, a := range res.Roster {
			if err := a.Validate(); err != nil {
				t.Errorf("seed %d: %v", seed, err)
			}
		}
	}
}

func TestWorkerCountDoesNotChangeLog(t *testing.T) {
	p := DefaultParams()
	p.TotalAgents = 200
	p.HorizonDays = 15

	p.Workers = 1
	serial := run(t, p)
	p.Workers = 8
	parallel := run(t, p)

	if !reflect.DeepEqual(serial.Events, parallel.Events) {
		t.Fatal("event log differs between 1 and 8 workers")
	}
	if !reflect.DeepEqual(serial.Roster, parallel.Roster) {
		t.Fatal("roster differs between 1 and 8 workers")
	}
}

func TestWorkersResolution(t *testing.T) {
	tests := []struct {
		workers int
		want    int
	}{
		{0, runtime.GOMAXPROCS(0)},
		{-3, runtime.GOMAXPROCS(0)},
		{1, 1},
		{6, 6},
	}
	for _, tt := range tests {
		p := DefaultParams()
		p.Workers = tt.workers
		if got := p.workers(); got != tt.want {
			t.Errorf("workers(%d) = %d, want %d", tt.workers, got, tt.want)
		}
	}
}

func TestSeedReproducibility(t *testing.T) {
	p := DefaultParams()
	p.TotalAgents = 120
	p.HorizonDays = 10

	first := run(t, p)
	second := run(t, p)
	if !reflect.DeepEqual(first.Events, second.Events) {
		t.Fatal("same seed produced different logs")
	}

	p.Seed = 99
	other := run(t, p)
	if reflect.DeepEqual(first.Events, other.Events) {
		t.Fatal("different seeds produced identical logs")
	}
}

func TestSnapshots(t *testing.T) {
	p := scenarioParams(true)
	p.SnapshotEvery = 5
	res := run(t, p)

	var days []int
	for _, s := range res.Snapshots {
		days = append(days, s.Day)
		if s.Report == nil || s.Report.AsOfDay != s.Day {
			t.Errorf("snapshot %d has mismatched report", s.Day)
		}
	}
	if want := []int{4, 9, 11}; !reflect.DeepEqual(days, want) {
		t.Errorf("snapshot days = %v, want %v", days, want)
	}
}

func TestNewRejectsBadParams(t *testing.T) {
	p := DefaultParams()
	p.TargetChurnRate = 1.5
	if _, err := New(p, nil); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("New = %v, want configuration error", err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	sim, err := New(scenarioParams(false), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if sim.Day() != 0 {
		t.Errorf("day = %d after cancelled run, want 0", sim.Day())
	}
}

func TestStepAfterFinish(t *testing.T) {
	p := scenarioParams(false)
	p.HorizonDays = 2
	p.TotalAgents = 5
	sim, err := New(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	for !sim.Done() {
		if err := sim.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if err := sim.Step(); err == nil {
		t.Fatal("expected error stepping a finished simulation")
	}
}

func TestAgentIDStable(t *testing.T) {
	if AgentID(1, 0) != AgentID(1, 0) {
		t.Fatal("agent id not deterministic")
	}
	if AgentID(1, 0) == AgentID(1, 1) || AgentID(1, 0) == AgentID(2, 0) {
		t.Fatal("agent ids collide")
	}
}
