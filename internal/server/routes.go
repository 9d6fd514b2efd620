package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/cohortsim/internal/analytics"
	"github.com/lazypower/cohortsim/internal/engine"
	"github.com/lazypower/cohortsim/internal/model"
	"github.com/lazypower/cohortsim/internal/store"
)

const (
	defaultEventLimit = 1000
	maxEventLimit     = 10000
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// decodeParams reads a params object over the server defaults. Persona maps
// are replaced rather than merged.
func (s *Server) decodeParams(raw json.RawMessage) (engine.Params, error) {
	p := s.defaults
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	p.PersonaMix = nil
	p.Personas = nil
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid params: %w", err)
	}
	p.FillDefaults()
	return p, nil
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string          `json:"name"`
		Params json.RawMessage `json:"params"`
		Push   bool            `json:"push"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	params, err := s.decodeParams(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.TotalAgents > s.maxAgents {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("total_agents %d exceeds limit %d", params.TotalAgents, s.maxAgents))
		return
	}
	if req.Push && s.sink == nil {
		writeError(w, http.StatusBadRequest, "no sink configured")
		return
	}

	res, err := engine.Simulate(r.Context(), params, s.logger)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, model.ErrConfiguration) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err.Error())
		return
	}

	run, err := s.db.SaveRun(req.Name, res)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("run stored", "run", run.ID, "agents", run.Agents, "events", run.EventCount)

	resp := map[string]any{"run": run}
	if req.Push {
		st, err := s.sink.Push(r.Context(), run.ID, res)
		if err != nil {
			// The run is stored either way; report the sink failure alongside it.
			s.logger.Warn("sink push failed", "run", run.ID, "error", err)
			resp["sink_error"] = err.Error()
		} else {
			if err := s.db.MarkPushed(run.ID); err != nil {
				s.logger.Warn("mark pushed", "run", run.ID, "error", err)
			} else if fresh, err := s.db.GetRun(run.ID); err == nil && fresh != nil {
				resp["run"] = fresh
			}
			resp["sink"] = st
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// loadRun resolves {runID} or writes a 404.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	runID := chi.URLParam(r, "runID")
	run, err := s.db.GetRun(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found: "+runID)
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunAgents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	roster, err := s.db.LoadRoster(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if p := r.URL.Query().Get("persona"); p != "" {
		persona := model.Persona(p)
		if !persona.Valid() {
			writeError(w, http.StatusBadRequest, "unknown persona: "+p)
			return
		}
		filtered := roster[:0]
		for _, a := range roster {
			if a.Persona == persona {
				filtered = append(filtered, a)
			}
		}
		roster = filtered
	}
	if roster == nil {
		roster = []*model.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": roster, "count": len(roster)})
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var f store.EventFilter
	if k := q.Get("kind"); k != "" {
		f.Kind = model.EventKind(k)
		if !f.Kind.Valid() {
			writeError(w, http.StatusBadRequest, "unknown event kind: "+k)
			return
		}
	}
	if q.Get("day") != "" {
		day, err := intParam(r, "day", 0)
		if err != nil || day < 0 {
			writeError(w, http.StatusBadRequest, "day must be a non-negative integer")
			return
		}
		f.Day = &day
	}
	limit, err := intParam(r, "limit", defaultEventLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	f.Limit = min(limit, maxEventLimit)

	events, err := s.db.LoadEvents(run.ID, f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (s *Server) handleRunAnalytics(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	opts := analytics.DefaultOptions()
	var err error
	if opts.AsOfDay, err = intParam(r, "as_of", -1); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.AsOfDay >= run.HorizonDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("as_of must be at most %d", run.HorizonDays-1))
		return
	}
	if opts.FunnelCheckIns, err = intParam(r, "funnel_n", opts.FunnelCheckIns); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.HorizonDays = run.HorizonDays

	roster, err := s.db.LoadRoster(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	events, err := s.db.LoadEvents(run.ID, store.EventFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	report, err := analytics.Aggregate(events, roster, opts)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, model.ErrMissingDependency) {
			code = http.StatusUnprocessableEntity
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRunSnapshots(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	snaps, err := s.db.LoadSnapshots(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snaps == nil {
		snaps = []analytics.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
