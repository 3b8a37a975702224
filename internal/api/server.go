// Package api exposes the wall-paint core to the UI collaborator over HTTP:
// a REST query/command surface plus SSE and websocket event streams. The
// package holds no entity state of its own; it subscribes to core events and
// reads snapshots, never reaching into the registry.
package api

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hueview/wallpaint/internal/httputil"
	"github.com/hueview/wallpaint/internal/monitoring"
	"github.com/hueview/wallpaint/internal/units"
	"github.com/hueview/wallpaint/internal/version"
	"github.com/hueview/wallpaint/internal/wall"
)

// Server serves the UI-facing HTTP surface for one controller.
type Server struct {
	ctrl *wall.Controller
}

// NewServer creates a server over the given controller.
func NewServer(ctrl *wall.Controller) *Server {
	return &Server{ctrl: ctrl}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/walls", s.handleWalls)
	mux.HandleFunc("/api/walls/", s.handleWall)
	mux.HandleFunc("/api/selection", s.handleSelection)
	mux.HandleFunc("/api/color", s.handleColor)
	mux.HandleFunc("/api/color/undo", s.handleUndo)
	mux.HandleFunc("/api/color/redo", s.handleRedo)
	mux.HandleFunc("/api/finish", s.handleFinish)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/estimate", s.handleEstimate)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// randomID generates a random subscriber ID (8 byte random hex encoded value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// writeError maps core sentinel errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wall.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, wall.ErrNoSelection), errors.Is(err, wall.ErrSessionFailed):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) handleWalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.ctrl.ListEntities())
}

func (s *Server) handleWall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/walls/")
	if id == "" {
		writeError(w, wall.ErrNotFound)
		return
	}
	snap, ok := s.ctrl.GetEntity(id)
	if !ok {
		writeError(w, wall.ErrNotFound)
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if snap, ok := s.ctrl.GetSelected(); ok {
			httputil.WriteJSONOK(w, map[string]interface{}{"selected": snap})
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{"selected": nil})
	case http.MethodPost:
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			httputil.BadRequest(w, `body must be {"id": "..."}`)
			return
		}
		if err := s.ctrl.SelectEntity(req.ID); err != nil {
			writeError(w, err)
			return
		}
		snap, _ := s.ctrl.GetSelected()
		httputil.WriteJSONOK(w, map[string]interface{}{"selected": snap})
	case http.MethodDelete:
		s.ctrl.ClearSelection()
		httputil.WriteJSONOK(w, map[string]interface{}{"selected": nil})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleColor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, `body must be {"color": "#rrggbb"}`)
		return
	}
	col, err := wall.ParseHex(req.Color)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, err := s.ctrl.ApplyColor(col)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.handleHistoryStep(w, r, s.ctrl.UndoColor)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.handleHistoryStep(w, r, s.ctrl.RedoColor)
}

func (s *Server) handleHistoryStep(w http.ResponseWriter, r *http.Request, step func() (bool, error)) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	moved, err := step()
	if err != nil {
		writeError(w, err)
		return
	}
	snap, _ := s.ctrl.GetSelected()
	httputil.WriteJSONOK(w, map[string]interface{}{"moved": moved, "selected": snap})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Finish string `json:"finish"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, `body must be {"finish": "matte|satin|gloss"}`)
		return
	}
	snap, err := s.ctrl.SetFinish(wall.Finish(req.Finish))
	if err != nil {
		if errors.Is(err, wall.ErrNoSelection) {
			writeError(w, err)
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.ctrl.Stats())
}

// handleEstimate reports the paint volume needed for the selected wall.
// Query parameters: coats (default 1) and units (sqm or sqft, default sqm).
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	coats := 1
	if v := r.URL.Query().Get("coats"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "coats must be a positive integer")
			return
		}
		coats = n
	}
	unit := units.SQM
	if v := r.URL.Query().Get("units"); v != "" {
		if !units.IsValid(v) {
			httputil.BadRequest(w, "units must be one of: "+units.GetValidUnitsString())
			return
		}
		unit = v
	}

	snap, ok := s.ctrl.GetSelected()
	if !ok {
		writeError(w, wall.ErrNoSelection)
		return
	}

	areaSqm := snap.Geometry.Extent.Width * snap.Geometry.Extent.Height
	httputil.WriteJSONOK(w, map[string]interface{}{
		"wall_id": snap.ID,
		"area":    units.ConvertArea(areaSqm, unit),
		"units":   unit,
		"coats":   coats,
		"liters":  units.PaintLiters(areaSqm, coats),
	})
}

// sessionPayload flattens SessionState for transport; the failure payload
// travels as a string since errors do not marshal.
func sessionPayload(state wall.SessionState) map[string]interface{} {
	payload := map[string]interface{}{"phase": string(state.Phase)}
	if state.Reason != "" {
		payload["reason"] = state.Reason
	}
	if state.Err != nil {
		payload["error"] = state.Err.Error()
	}
	return payload
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, sessionPayload(s.ctrl.SessionState()))
	case http.MethodPost:
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, `body must be {"action": "pause|resume|restart"}`)
			return
		}
		switch req.Action {
		case "pause":
			s.ctrl.Pause()
		case "resume":
			s.ctrl.Resume()
		case "restart":
			if err := s.ctrl.Restart(); err != nil {
				writeError(w, err)
				return
			}
		default:
			httputil.BadRequest(w, "unknown action "+req.Action)
			return
		}
		httputil.WriteJSONOK(w, sessionPayload(s.ctrl.SessionState()))
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// subscribe attaches a buffered event channel to the controller. Events are
// dropped, never queued unbounded, when the consumer cannot keep up.
func (s *Server) subscribe(prefix string) (string, chan wall.Event, error) {
	id := prefix + "-" + randomID()
	ch := make(chan wall.Event, 64)
	err := s.ctrl.Attach(id, func(ev wall.Event) {
		select {
		case ch <- ev:
		default:
			monitoring.Logf("api: subscriber %s lagging, dropping %s", id, ev.Kind)
		}
	})
	if err != nil {
		return "", nil, err
	}
	return id, ch, nil
}
