package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/cohortsim/internal/analytics"
	"github.com/lazypower/cohortsim/internal/engine"
	"github.com/lazypower/cohortsim/internal/model"
)

// Run is the summary row of a persisted simulation.
type Run struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Seed            int64         `json:"seed"`
	Agents          int           `json:"agents"`
	HorizonDays     int           `json:"horizon_days"`
	InsightsEnabled bool          `json:"insights_enabled"`
	Churned         int           `json:"churned"`
	Premium         int           `json:"premium"`
	EventCount      int           `json:"event_count"`
	CreatedAt       int64         `json:"created_at"`
	PushedAt        *int64        `json:"pushed_at,omitempty"`
	Params          engine.Params `json:"params"`
}

// EventFilter narrows LoadEvents. Zero values match everything.
type EventFilter struct {
	Kind  model.EventKind
	Day   *int
	Limit int
}

const runColumns = `id, name, seed, agents, horizon_days, insights_enabled, churned, premium, event_count, created_at, pushed_at, params`

// SaveRun stores a completed result under a fresh run ID in one transaction.
func (db *DB) SaveRun(name string, res *engine.Result) (*Run, error) {
	params, err := json.Marshal(res.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	run := &Run{
		ID:              uuid.NewString(),
		Name:            name,
		Seed:            res.Params.Seed,
		Agents:          len(res.Roster),
		HorizonDays:     res.Params.HorizonDays,
		InsightsEnabled: res.Params.Insight.Enabled,
		EventCount:      len(res.Events),
		CreatedAt:       time.Now().UnixMilli(),
		Params:          res.Params,
	}
	for _, a := range res.Roster {
		if a.Churned() {
			run.Churned++
		}
		if a.Premium {
			run.Premium++
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO runs (id, name, seed, agents, horizon_days, insights_enabled, params, churned, premium, event_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Name, run.Seed, run.Agents, run.HorizonDays, run.InsightsEnabled, string(params),
		run.Churned, run.Premium, run.EventCount, run.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	if err := insertAgents(tx, run.ID, res.Roster); err != nil {
		return nil, err
	}
	if err := insertEvents(tx, run.ID, res.Events); err != nil {
		return nil, err
	}
	if err := insertSnapshots(tx, run.ID, res.Snapshots); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run: %w", err)
	}
	return run, nil
}

func insertAgents(tx *sql.Tx, runID string, roster []*model.Agent) error {
	stmt, err := tx.Prepare(`
		INSERT INTO agents (run_id, idx, agent_id, persona, join_day, state, churn_day, premium, conversion_day, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare agents: %w", err)
	}
	defer stmt.Close()

	for _, a := range roster {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal agent %s: %w", a.ID, err)
		}
		if _, err := stmt.Exec(runID, a.Index, a.ID, string(a.Persona), a.JoinDay, string(a.State),
			a.ChurnDay, a.Premium, a.ConversionDay, string(data)); err != nil {
			return fmt.Errorf("insert agent %s: %w", a.ID, err)
		}
	}
	return nil
}

func insertEvents(tx *sql.Tx, runID string, events []model.Event) error {
	stmt, err := tx.Prepare(`
		INSERT INTO events (run_id, seq, day, kind, agent_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", ev.Seq, err)
		}
		if _, err := stmt.Exec(runID, ev.Seq, ev.Day, string(ev.Kind), ev.AgentID, string(payload)); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}
	return nil
}

func insertSnapshots(tx *sql.Tx, runID string, snaps []analytics.Snapshot) error {
	for _, s := range snaps {
		report, err := json.Marshal(s.Report)
		if err != nil {
			return fmt.Errorf("marshal snapshot day %d: %w", s.Day, err)
		}
		if _, err := tx.Exec(`INSERT INTO snapshots (run_id, day, report) VALUES (?, ?, ?)`,
			runID, s.Day, string(report)); err != nil {
			return fmt.Errorf("insert snapshot day %d: %w", s.Day, err)
		}
	}
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var params string
	if err := row.Scan(&r.ID, &r.Name, &r.Seed, &r.Agents, &r.HorizonDays, &r.InsightsEnabled,
		&r.Churned, &r.Premium, &r.EventCount, &r.CreatedAt, &r.PushedAt, &params); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("decode params for run %s: %w", r.ID, err)
	}
	return &r, nil
}

// GetRun returns a run by ID, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LoadRoster returns the stored agents of a run in index order.
func (db *DB) LoadRoster(runID string) ([]*model.Agent, error) {
	rows, err := db.Query(`SELECT data FROM agents WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	defer rows.Close()

	var roster []*model.Agent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		var a model.Agent
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("decode agent: %w", err)
		}
		roster = append(roster, &a)
	}
	return roster, rows.Err()
}

// LoadEvents returns a run's events in sequence order.
func (db *DB) LoadEvents(runID string, f EventFilter) ([]model.Event, error) {
	where := []string{"run_id = ?"}
	args := []any{runID}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Day != nil {
		where = append(where, "day = ?")
		args = append(args, *f.Day)
	}
	query := `SELECT payload FROM events WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LoadSnapshots returns a run's snapshots ordered by day.
func (db *DB) LoadSnapshots(runID string) ([]analytics.Snapshot, error) {
	rows, err := db.Query(`SELECT day, report FROM snapshots WHERE run_id = ? ORDER BY day`, runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []analytics.Snapshot
	for rows.Next() {
		var s analytics.Snapshot
		var report string
		if err := rows.Scan(&s.Day, &report); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Report = &analytics.Report{}
		if err := json.Unmarshal([]byte(report), s.Report); err != nil {
			return nil, fmt.Errorf("decode snapshot day %d: %w", s.Day, err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// LoadResult reassembles the full result of a run, or nil if it does not exist.
func (db *DB) LoadResult(runID string) (*engine.Result, error) {
	run, err := db.GetRun(runID)
	if err != nil || run == nil {
		return nil, err
	}
	roster, err := db.LoadRoster(runID)
	if err != nil {
		return nil, err
	}
	events, err := db.LoadEvents(runID, EventFilter{})
	if err != nil {
		return nil, err
	}
	snaps, err := db.LoadSnapshots(runID)
	if err != nil {
		return nil, err
	}
	return &engine.Result{Params: run.Params, Roster: roster, Events: events, Snapshots: snaps}, nil
}

// MarkPushed records that a run was delivered to the sink.
func (db *DB) MarkPushed(runID string) error {
	result, err := db.Exec(`UPDATE runs SET pushed_at = ? WHERE id = ?`, time.Now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("mark pushed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("no run found for %s", runID)
	}
	return nil
}

// DeleteRun removes a run and, through cascading keys, everything it owns.
func (db *DB) DeleteRun(runID string) error {
	result, err := db.Exec(`DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("no run found for %s", runID)
	}
	return nil
}
