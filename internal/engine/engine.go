// Package engine runs the agent-based cohort simulation: acquisition, daily
// activity, insight delivery, churn and conversion, one tick per day.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/cohortsim/internal/analytics"
	"github.com/lazypower/cohortsim/internal/logging"
	"github.com/lazypower/cohortsim/internal/model"
)

// Simulation is the explicit context of one run. It owns the roster and the
// event log; nothing else mutates them.
type Simulation struct {
	params   Params
	logger   *slog.Logger
	schedule []int
	personas []model.Persona

	agents    []*model.Agent
	events    []model.Event
	snapshots []analytics.Snapshot

	day     int
	nextSeq int
}

// Result is the serialisable outcome of a completed run.
type Result struct {
	Params    Params               `json:"params"`
	Roster    []*model.Agent       `json:"roster"`
	Events    []model.Event        `json:"events"`
	Snapshots []analytics.Snapshot `json:"snapshots"`
}

// New validates p and prepares a run. A nil logger discards output.
func New(p Params, logger *slog.Logger) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sched, err := Schedule(p.TotalAgents, p.AcquisitionDays, p.AcquisitionDecay, p.MinDailyWindow)
	if err != nil {
		return nil, err
	}
	padded := make([]int, p.HorizonDays)
	copy(padded, sched)

	return &Simulation{
		params:   p,
		logger:   logger,
		schedule: padded,
		personas: assignPersonas(p.TotalAgents, p.PersonaMix, p.Seed),
		agents:   make([]*model.Agent, 0, p.TotalAgents),
	}, nil
}

// Day is the next tick to run; it equals HorizonDays once the run is over.
func (s *Simulation) Day() int { return s.day }

// Done reports whether every tick has run.
func (s *Simulation) Done() bool { return s.day >= s.params.HorizonDays }

// Params returns the validated parameters of the run.
func (s *Simulation) Params() Params { return s.params }

// Roster returns deep copies of every agent that has joined so far.
func (s *Simulation) Roster() []*model.Agent {
	out := make([]*model.Agent, len(s.agents))
	for i, a := range s.agents {
		out[i] = a.Clone()
	}
	return out
}

// Events returns a copy of the event log.
func (s *Simulation) Events() []model.Event {
	return append([]model.Event(nil), s.events...)
}

// Snapshots returns the analytics snapshots taken so far.
func (s *Simulation) Snapshots() []analytics.Snapshot {
	return append([]analytics.Snapshot(nil), s.snapshots...)
}

// Run executes the remaining ticks. ctx is checked between ticks only.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	for !s.Done() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run stopped at day %d: %w", s.day, err)
		}
		if err := s.Step(); err != nil {
			return nil, err
		}
	}

	churned, premium := 0, 0
	for _, a := range s.agents {
		if a.Churned() {
			churned++
		}
		if a.Premium {
			premium++
		}
	}
	s.logger.Info("simulation complete",
		"agents", len(s.agents),
		"days", s.params.HorizonDays,
		"events", len(s.events),
		"churned", churned,
		"premium", premium,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &Result{
		Params:    s.params,
		Roster:    s.Roster(),
		Events:    s.Events(),
		Snapshots: s.Snapshots(),
	}, nil
}

// Step runs one day: acquisition, activity, insights, churn, conversion,
// invariant checks and an optional snapshot.
func (s *Simulation) Step() error {
	if s.Done() {
		return fmt.Errorf("simulation already finished after %d days", s.params.HorizonDays)
	}
	day := s.day
	before := len(s.events)

	s.emit(s.acquire(day))

	activity, err := s.simulateActivity(day)
	if err != nil {
		return fmt.Errorf("day %d activity: %w", day, err)
	}
	s.emit(activity)

	insights, err := s.deliverInsights(day)
	if err != nil {
		return fmt.Errorf("day %d insights: %w", day, err)
	}
	s.emit(insights)

	churn, err := s.evaluateChurn(day)
	if err != nil {
		return fmt.Errorf("day %d churn: %w", day, err)
	}
	s.emit(churn)

	conversions, err := s.evaluateConversion(day)
	if err != nil {
		return fmt.Errorf("day %d conversion: %w", day, err)
	}
	s.emit(conversions)

	for _, a := range s.agents {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("day %d: %w", day, err)
		}
	}

	s.day++
	if s.snapshotDue(day) {
		if err := s.snapshot(day); err != nil {
			return fmt.Errorf("day %d snapshot: %w", day, err)
		}
	}

	s.logger.Debug("tick",
		"day", day,
		"events", len(s.events)-before,
		"churned", len(churn),
		"converted", len(conversions),
	)
	return nil
}

// trace logs a per-agent decision at trace level.
func (s *Simulation) trace(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), logging.LevelTrace, msg, args...)
}

// emit appends events to the log, assigning sequence numbers in order.
func (s *Simulation) emit(events []model.Event) {
	for _, ev := range events {
		ev.Seq = s.nextSeq
		s.nextSeq++
		s.events = append(s.events, ev)
	}
}

// acquire creates and activates the agents scheduled to join today.
func (s *Simulation) acquire(day int) []model.Event {
	n := s.schedule[day]
	events := make([]model.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := len(s.agents)
		a := s.newAgent(idx, day)
		a.Activate(day)
		s.agents = append(s.agents, a)
		events = append(events, model.Event{Day: day, Kind: model.EventJoin, AgentID: a.ID})
	}
	return events
}

// AgentID is the stable identifier of agent idx in a run with seed.
func AgentID(seed int64, idx int) string {
	name := fmt.Sprintf("cohortsim://agent/%d/%d", seed, idx)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func (s *Simulation) newAgent(idx, day int) *model.Agent {
	persona := s.personas[idx]
	prof := s.params.Personas[persona]

	tr := stream(s.params.Seed, idx, day, purposeTraits)
	traits := model.Traits{
		SleepQuality:       prof.Traits.SleepQuality.at(tr.Float64()),
		Stress:             prof.Traits.Stress.at(tr.Float64()),
		SocialMediaMinutes: prof.Traits.SocialMediaMinutes.at(tr.Float64()),
		Motivation:         prof.Traits.Motivation.at(tr.Float64()),
	}

	sr := stream(s.params.Seed, idx, day, purposeScores)
	scores := model.Scores{
		Body:    prof.InitialScores.Body.at(sr.Float64()),
		Mind:    prof.InitialScores.Mind.at(sr.Float64()),
		Soul:    prof.InitialScores.Soul.at(sr.Float64()),
		Purpose: prof.InitialScores.Purpose.at(sr.Float64()),
	}

	return model.NewAgent(AgentID(s.params.Seed, idx), idx, persona, day, traits, scores)
}

// simulateActivity fans the agents out over the worker pool. Each worker owns
// a disjoint slice of agents and buffers its own events; buffers are merged in
// agent order so the log does not depend on the worker count.
func (s *Simulation) simulateActivity(day int) ([]model.Event, error) {
	buffers := make([][]model.Event, len(s.agents))
	workers := s.params.workers()
	chunk := (len(s.agents) + workers - 1) / workers

	var g errgroup.Group
	for lo := 0; lo < len(s.agents); lo += chunk {
		hi := min(lo+chunk, len(s.agents))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				evs, err := s.simulateAgentDay(s.agents[i], day)
				if err != nil {
					return err
				}
				buffers[i] = evs
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []model.Event
	for _, b := range buffers {
		merged = append(merged, b...)
	}
	return merged, nil
}

// deliverInsights evaluates every agent in index order.
func (s *Simulation) deliverInsights(day int) ([]model.Event, error) {
	var events []model.Event
	for _, a := range s.agents {
		evs, err := s.deliverInsight(a, day)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

func (s *Simulation) snapshotDue(day int) bool {
	if day == s.params.HorizonDays-1 {
		return true
	}
	every := s.params.SnapshotEvery
	return every > 0 && (day+1)%every == 0
}

func (s *Simulation) snapshot(day int) error {
	opts := analytics.DefaultOptions()
	opts.AsOfDay = day
	opts.HorizonDays = s.params.HorizonDays
	report, err := analytics.Aggregate(s.events, s.agents, opts)
	if err != nil {
		return err
	}
	s.snapshots = append(s.snapshots, analytics.Snapshot{Day: day, Report: report})
	return nil
}

// Simulate is a convenience wrapper around New and Run.
func Simulate(ctx context.Context, p Params, logger *slog.Logger) (*Result, error) {
	sim, err := New(p, logger)
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx)
}
