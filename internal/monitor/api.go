package monitor

import (
	"net/http"
	"strconv"

	"github.com/banshee-data/pulse.lab/internal/httputil"
	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
)

const (
	defaultPointLimit   = 200
	defaultSessionLimit = 20
	maxQueryLimit       = 10000
)

// queryLimit parses ?limit=, falling back to def for missing, malformed or
// out of range values.
func queryLimit(r *http.Request, def int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 || v > maxQueryLimit {
		return def
	}
	return v
}

func algorithmName(k estimate.Kind) string {
	a, err := estimate.New(k, estimate.DefaultThresholds(), 0)
	if err != nil {
		return k.String()
	}
	return a.Name()
}

func (ws *WebServer) handleReadout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.engine.Latest())
}

// handlePoints returns the newest processed points, oldest first.
// Query params:
//
//	limit (optional, default 200)
func (ws *WebServer) handlePoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	points := ws.engine.Points()
	if limit := queryLimit(r, defaultPointLimit); len(points) > limit {
		points = points[len(points)-limit:]
	}
	if points == nil {
		points = []ppg.ProcessedPoint{}
	}
	httputil.WriteJSONOK(w, points)
}

// handleParams reads or updates the simulation parameters. POST bodies are
// merged over the current values so clients may send a subset of fields.
func (ws *WebServer) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, ws.engine.Params())
	case http.MethodPost, http.MethodPut:
		p := ws.engine.Params()
		if err := httputil.DecodeJSON(r, &p); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := ws.engine.SetParams(p); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, ws.engine.Params())
	default:
		httputil.MethodNotAllowed(w)
	}
}

type algorithmBody struct {
	Algorithm estimate.Kind `json:"algorithm"`
	Name      string        `json:"name,omitempty"`
}

func (ws *WebServer) handleAlgorithm(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost, http.MethodPut:
		body := algorithmBody{Algorithm: ws.engine.Algorithm()}
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := ws.engine.SetAlgorithm(body.Algorithm); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	kind := ws.engine.Algorithm()
	httputil.WriteJSONOK(w, algorithmBody{Algorithm: kind, Name: algorithmName(kind)})
}

type emitterBody struct {
	Emitter      ppg.Emitter `json:"emitter"`
	SupportsSpO2 bool        `json:"supports_spo2"`
}

func (ws *WebServer) handleEmitter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost, http.MethodPut:
		body := emitterBody{Emitter: ws.engine.Emitter()}
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := ws.engine.SetEmitter(body.Emitter); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	em := ws.engine.Emitter()
	httputil.WriteJSONOK(w, emitterBody{Emitter: em, SupportsSpO2: em.SupportsSpO2()})
}

type runState struct {
	Running bool       `json:"running"`
	Params  ppg.Params `json:"params"`
}

func (ws *WebServer) state() runState {
	return runState{Running: ws.engine.Running(), Params: ws.engine.Params()}
}

// handleReset restores the default parameters and clears all buffers. A
// running engine is restarted afterwards.
func (ws *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	wasRunning := ws.engine.Running()
	ws.engine.Reset()
	if wasRunning {
		if err := ws.engine.Start(ws.context()); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
	}
	httputil.WriteJSONOK(w, ws.state())
}

func (ws *WebServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := ws.engine.Start(ws.context()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, ws.state())
}

func (ws *WebServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	ws.engine.Stop()
	httputil.WriteJSONOK(w, ws.state())
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.ServiceUnavailable(w, "recording is disabled")
		return
	}
	sessions, err := ws.db.Sessions(queryLimit(r, defaultSessionLimit))
	if err != nil {
		httputil.InternalServerError(w, "list sessions: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"active":   ws.db.ActiveSession(),
		"sessions": sessions,
	})
}

// handleSessionReadouts returns stored readouts of one session.
// Query params:
//
//	session_id (optional, default the active session)
//	limit (optional, default 1000)
func (ws *WebServer) handleSessionReadouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.ServiceUnavailable(w, "recording is disabled")
		return
	}
	rows, err := ws.db.Readouts(r.URL.Query().Get("session_id"), queryLimit(r, 1000))
	if err != nil {
		httputil.InternalServerError(w, "list readouts: "+err.Error())
		return
	}
	if rows == nil {
		httputil.WriteJSONOK(w, []struct{}{})
		return
	}
	httputil.WriteJSONOK(w, rows)
}
