package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"solara/internal/events"
	"solara/internal/grid"
	appLog "solara/internal/log"
)

const maxBodyBytes = 64 << 10

// pointerRequest is the body of POST /api/grid/pointer and of stream
// messages sent by the page.
type pointerRequest struct {
	Phase string `json:"phase"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

type pointerResponse struct {
	Outcome grid.Outcome `json:"outcome"`
	Grid    grid.Event   `json:"grid"`
}

type measureRequest struct {
	Sizes map[string]grid.Size `json:"sizes"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// handleDashboard returns the full view for a page load.
//
// GET /api/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.State())
}

// handlePointer forwards one pointer sample to the grid.
//
// POST /api/grid/pointer {"phase":"down|move|up|cancel","x":0,"y":0}
func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pointer body")
		return
	}
	out, err := s.dash.Pointer(req.Phase, grid.Point{X: req.X, Y: req.Y})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pointerResponse{Outcome: out, Grid: s.dash.Engine().State()})
}

// handleMeasure applies card sizes measured by the page. Unknown ids are
// logged; the known sizes still apply.
//
// POST /api/grid/measure {"sizes":{"weather":{"width":280,"height":210}}}
func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	var req measureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid measure body")
		return
	}
	err := s.dash.Measure(req.Sizes)
	switch {
	case errors.Is(err, grid.ErrNotReady):
		writeError(w, http.StatusConflict, "grid not ready")
		return
	case err != nil:
		appLog.Warn("measure: some sizes were not applied", "err", err.Error())
	}
	writeJSON(w, http.StatusOK, s.dash.Engine().State())
}

// POST /api/grid/relayout
func (s *Server) handleRelayout(w http.ResponseWriter, _ *http.Request) {
	s.dash.Relayout()
	writeJSON(w, http.StatusOK, s.dash.Engine().State())
}

// POST /api/weather/refresh
func (s *Server) handleWeatherRefresh(w http.ResponseWriter, r *http.Request) {
	s.dash.RefreshWeather(r.Context())
	writeJSON(w, http.StatusOK, s.dash.State().Weather)
}

// POST /api/events/refresh
func (s *Server) handleEventsRefresh(w http.ResponseWriter, r *http.Request) {
	s.dash.RefreshEvents(r.Context())
	writeJSON(w, http.StatusOK, s.dash.Events().State())
}

// handleSignIn redirects to the consent page.
//
// GET /auth/signin
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	auth := s.dash.Auth()
	if auth == nil {
		writeError(w, http.StatusNotFound, "calendar sign in is not configured")
		return
	}
	http.Redirect(w, r, auth.Begin(), http.StatusFound)
}

// handleCallback completes the authorization code flow and sends the
// browser back to the dashboard.
//
// GET /auth/callback?state=...&code=...
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	auth := s.dash.Auth()
	if auth == nil {
		writeError(w, http.StatusNotFound, "calendar sign in is not configured")
		return
	}
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		appLog.Warn("auth: consent denied", "reason", reason)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	err := auth.Complete(r.Context(), q.Get("state"), q.Get("code"))
	switch {
	case errors.Is(err, events.ErrBadState):
		writeError(w, http.StatusBadRequest, "invalid or expired sign in attempt")
		return
	case err != nil:
		appLog.Error("auth: callback failed", err)
		writeError(w, http.StatusBadGateway, "sign in failed")
		return
	}
	s.dash.Events().SignedIn(r.Context())
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleSignOut revokes the token. The card is signed out even when the
// provider could not be reached.
//
// POST /auth/signout
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if s.dash.Auth() == nil {
		writeError(w, http.StatusNotFound, "calendar sign in is not configured")
		return
	}
	_ = s.dash.Events().SignOut(r.Context())
	writeJSON(w, http.StatusOK, s.dash.Events().State())
}
