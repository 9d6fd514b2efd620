package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/lazypower/cohortsim/internal/analytics"
	"github.com/lazypower/cohortsim/internal/engine"
	"github.com/lazypower/cohortsim/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testResult(t *testing.T) *engine.Result {
	t.Helper()
	p := engine.DefaultParams()
	p.TotalAgents = 40
	p.HorizonDays = 10
	p.AcquisitionDays = 5
	p.SnapshotEvery = 5
	res, err := engine.Simulate(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	return res
}

func TestSaveAndGetRun(t *testing.T) {
	db := testDB(t)
	res := testResult(t)

	run, err := db.SaveRun("baseline", res)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID == "" || run.Agents != 40 || run.EventCount != len(res.Events) {
		t.Fatalf("run = %+v", run)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("run not found")
	}
	if got.Name != "baseline" || got.Seed != res.Params.Seed || got.HorizonDays != 10 || !got.InsightsEnabled {
		t.Errorf("run = %+v", got)
	}
	if got.Churned != run.Churned || got.Premium != run.Premium {
		t.Errorf("summary = %d/%d, want %d/%d", got.Churned, got.Premium, run.Churned, run.Premium)
	}
	if !reflect.DeepEqual(got.Params, res.Params) {
		t.Error("params did not survive the round trip")
	}
	if got.PushedAt != nil {
		t.Error("new run should not be marked pushed")
	}
}

func TestGetRunMissing(t *testing.T) {
	db := testDB(t)
	got, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestLoadResultRoundTrip(t *testing.T) {
	db := testDB(t)
	res := testResult(t)
	run, err := db.SaveRun("", res)
	if err != nil {
		t.Fatal(err)
	}

	back, err := db.LoadResult(run.ID)
	if err != nil {
		t.Fatalf("LoadResult: %v", err)
	}
	if !reflect.DeepEqual(back.Roster, res.Roster) {
		t.Error("roster differs after round trip")
	}
	if !reflect.DeepEqual(back.Events, res.Events) {
		t.Error("events differ after round trip")
	}
	if len(back.Snapshots) != len(res.Snapshots) {
		t.Fatalf("snapshots = %d, want %d", len(back.Snapshots), len(res.Snapshots))
	}

	// Aggregating the stored copy matches aggregating the original.
	want, err := analytics.Aggregate(res.Events, res.Roster, analytics.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	got, err := analytics.Aggregate(back.Events, back.Roster, analytics.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Cohort, want.Cohort) || !reflect.DeepEqual(got.Funnel, want.Funnel) {
		t.Error("analytics differ after store round trip")
	}
}

func TestLoadEventsFilter(t *testing.T) {
	db := testDB(t)
	res := testResult(t)
	run, err := db.SaveRun("", res)
	if err != nil {
		t.Fatal(err)
	}

	joins, err := db.LoadEvents(run.ID, EventFilter{Kind: model.EventJoin})
	if err != nil {
		t.Fatal(err)
	}
	if len(joins) != 40 {
		t.Errorf("join events = %d, want 40", len(joins))
	}

	day := 3
	dayEvents, err := db.LoadEvents(run.ID, EventFilter{Day: &day})
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range dayEvents {
		if ev.Day != 3 {
			t.Fatalf("event on day %d in day 3 filter", ev.Day)
		}
	}

	limited, err := db.LoadEvents(run.ID, EventFilter{Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 5 {
		t.Fatalf("limited = %d, want 5", len(limited))
	}
	for i, ev := range limited {
		if ev.Seq != i {
			t.Errorf("event %d has seq %d", i, ev.Seq)
		}
	}
}

func TestListRunsAndDelete(t *testing.T) {
	db := testDB(t)
	res := testResult(t)

	first, err := db.SaveRun("first", res)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.SaveRun("second", res); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}

	if err := db.DeleteRun(first.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE run_id = ?`, first.ID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("events left after delete = %d", n)
	}
	if err := db.DeleteRun(first.ID); err == nil {
		t.Error("expected error deleting a missing run")
	}
}

func TestMarkPushed(t *testing.T) {
	db := testDB(t)
	run, err := db.SaveRun("", testResult(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.MarkPushed(run.ID); err != nil {
		t.Fatalf("MarkPushed: %v", err)
	}
	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PushedAt == nil {
		t.Error("pushed_at not set")
	}
	if err := db.MarkPushed("missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}
