package monitor

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/balltrack/internal/ballfilter"
	"github.com/banshee-data/balltrack/internal/cycler"
	"github.com/banshee-data/balltrack/internal/geometry"
	"github.com/banshee-data/balltrack/internal/httputil"
	"github.com/banshee-data/balltrack/internal/storage/sqlite"
)

const noCycleYet = "no cycle has completed yet"

// HypothesisView is one hypothesis as shown to a human.
type HypothesisView struct {
	ID              string           `json:"id"`
	Validity        float64          `json:"validity"`
	Resting         bool             `json:"resting"`
	Best            bool             `json:"best"`
	Position        geometry.Point2  `json:"position"`
	Velocity        geometry.Vector2 `json:"velocity"`
	MovingPosition  geometry.Point2  `json:"moving_position"`
	RestingPosition geometry.Point2  `json:"resting_position"`
	LastUpdate      time.Time        `json:"last_update"`
}

// HypothesesResponse is the body of /debug/ballfilter/hypotheses.
type HypothesesResponse struct {
	Cycle      uint64                   `json:"cycle"`
	Now        time.Time                `json:"now"`
	Ball       *ballfilter.BallPosition `json:"ball,omitempty"`
	Hypotheses []HypothesisView         `json:"hypotheses"`
	Removed    []geometry.Point2        `json:"removed"`
}

func (ws *WebServer) latestRecord(w http.ResponseWriter, r *http.Request) (cycler.Record, bool) {
	if !httputil.RequireGET(w, r) {
		return cycler.Record{}, false
	}
	if ws.latest == nil {
		httputil.NotFound(w, noCycleYet)
		return cycler.Record{}, false
	}
	record, ok := ws.latest.Latest()
	if !ok {
		httputil.NotFound(w, noCycleYet)
		return cycler.Record{}, false
	}
	return record, true
}

func (ws *WebServer) hypothesisViews(out ballfilter.CycleOutput) []HypothesisView {
	threshold := ws.params.RestingBallVelocityThreshold
	views := make([]HypothesisView, 0, len(out.Hypotheses))
	for i := range out.Hypotheses {
		h := &out.Hypotheses[i]
		selected := h.SelectedPosition(threshold)
		views = append(views, HypothesisView{
			ID:              h.ID,
			Validity:        h.Validity,
			Resting:         h.IsResting(threshold),
			Best:            out.BestHypothesis != nil && out.BestHypothesis.ID == h.ID,
			Position:        selected.Position,
			Velocity:        selected.Velocity,
			MovingPosition:  h.Moving.Position(),
			RestingPosition: h.Resting.Position(),
			LastUpdate:      h.LastUpdate,
		})
	}
	return views
}

func (ws *WebServer) handleHypotheses(w http.ResponseWriter, r *http.Request) {
	record, ok := ws.latestRecord(w, r)
	if !ok {
		return
	}
	removed := record.Output.RemovedBallPositions
	if removed == nil {
		removed = []geometry.Point2{}
	}
	httputil.WriteJSONOK(w, HypothesesResponse{
		Cycle:      record.Index,
		Now:        record.Output.Now,
		Ball:       record.Output.BallPosition,
		Hypotheses: ws.hypothesisViews(record.Output),
		Removed:    removed,
	})
}

func (ws *WebServer) handleTrace(w http.ResponseWriter, r *http.Request) {
	record, ok := ws.latestRecord(w, r)
	if !ok {
		return
	}
	if record.Debug == nil {
		httputil.NotFound(w, "debug tracing is disabled")
		return
	}
	httputil.WriteJSONOK(w, record.Debug)
}

func (ws *WebServer) handleCycles(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		httputil.BadRequest(w, "missing 'run_id' parameter")
		return
	}
	if _, err := ws.store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, sqlite.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	cycles, err := ws.store.ListCycles(r.Context(), runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list cycles: %v", err))
		return
	}
	if cycles == nil {
		cycles = []sqlite.CycleSummary{}
	}
	httputil.WriteJSONOK(w, cycles)
}
