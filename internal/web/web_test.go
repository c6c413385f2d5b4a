package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solara/internal/config"
	"solara/internal/dashboard"
	"solara/internal/grid"
	"solara/internal/storage"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *dashboard.Dashboard) {
	t.Helper()
	weatherSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"main":{"temp":70.2,"temp_max":75,"temp_min":61},"weather":[{"main":"Clear"}]}`))
	}))
	t.Cleanup(weatherSrv.Close)

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.New(filepath.Join(cfg.DataDir, "solara.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d, err := dashboard.New(context.Background(), dashboard.Options{
		Config:         cfg,
		Store:          store,
		Page:           Page(),
		HTTPClient:     weatherSrv.Client(),
		WeatherBaseURL: weatherSrv.URL,
	})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)
	return NewServer(cfg, d), d
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPageHasCards(t *testing.T) {
	c, err := grid.Discover(strings.NewReader(string(Page())), grid.DefaultSelectors())
	require.NoError(t, err)
	var ids []string
	for _, card := range c.Cards {
		ids = append(ids, card.ID)
		assert.Positive(t, card.HandleHeight, card.ID)
	}
	assert.Equal(t, []string{"clock", "weather", "events", "calendar"}, ids)
}

func TestHealthSkipsBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "hunter2"}
	})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="Solara"`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="grid"`)
}

func TestDashboardState(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var v struct {
		Ready bool `json:"ready"`
		Grid  struct {
			Order []string `json:"order"`
		} `json:"grid"`
		Weather struct {
			Location string `json:"location"`
		} `json:"weather"`
		Events struct {
			ShowAuthButtons bool `json:"show_auth_buttons"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Ready)
	assert.Equal(t, []string{"clock", "weather", "events", "calendar"}, v.Grid.Order)
	assert.Equal(t, "Austin, TX", v.Weather.Location)
	assert.False(t, v.Events.ShowAuthButtons, "no client id configured")
}

func TestPointerDragOverHTTP(t *testing.T) {
	s, d := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/grid/pointer", `{"phase":"down","x":20,"y":20}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp pointerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, grid.OutcomeNone, resp.Outcome)
	require.NotEmpty(t, resp.Grid.Positions)
	assert.True(t, resp.Grid.Positions[0].Arming)

	rec = do(t, h, http.MethodPost, "/api/grid/pointer", `{"phase":"move","x":450,"y":130}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/grid/pointer", `{"phase":"up","x":450,"y":130}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, grid.OutcomeCommitted, resp.Outcome)
	assert.Equal(t, []string{"weather", "clock", "events", "calendar"}, d.Engine().Order())
}

func TestPointerRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/grid/pointer", `{"phase":"hover"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/grid/pointer", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/grid/pointer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "GET falls through to the page handler, which refuses /api/")
}

func TestMeasureAppliesKnownSizes(t *testing.T) {
	s, d := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodPost, "/api/grid/measure",
		`{"sizes":{"clock":{"width":280,"height":260},"nope":{"width":1,"height":1}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range d.Engine().Cards() {
		if c.ID == "clock" {
			assert.Equal(t, 260, c.NaturalHeight)
		}
	}
}

func TestUnknownAPIPathIsNotThePage(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<html")
}

func TestAuthRoutesWithoutClient(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/auth/signin", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/auth/signout", "").Code)
}

func TestSignInRedirectsAndRejectsBadState(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Calendar.ClientID = "client-id"
		c.Calendar.ClientSecret = "client-secret"
	})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/auth/signin", "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(loc, "https://accounts.google.com/"), loc)
	assert.Contains(t, loc, "client_id=client-id")
	assert.Contains(t, loc, "access_type=offline")

	rec = do(t, h, http.MethodGet, "/auth/callback?state=forged&code=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/auth/callback?error=access_denied", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/weather/refresh", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "solara_widget_refreshes_total")
}

func TestPreview(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/preview.png", "").Code)

	require.NoError(t, os.WriteFile(s.PreviewPath, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	rec := do(t, h, http.MethodGet, "/preview.png", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestStreamSendsSnapshotAndAcceptsPointers(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first struct {
		Type string `json:"type"`
		Data struct {
			Ready bool `json:"ready"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, MsgSnapshot, first.Type)
	assert.True(t, first.Data.Ready)

	require.NoError(t, conn.WriteJSON(pointerRequest{Phase: "hover"}))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if e, ok := msg["error"].(string); ok {
			assert.Contains(t, e, "unknown pointer phase")
			break
		}
	}

	require.NoError(t, conn.WriteJSON(pointerRequest{Phase: "down", X: 20, Y: 20}))
	require.NoError(t, conn.WriteJSON(pointerRequest{Phase: "move", X: 25, Y: 20}))
	for {
		var msg struct {
			Type string     `json:"type"`
			Data grid.Event `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != dashboard.MsgGrid {
			continue
		}
		if msg.Data.Type == grid.EventDragStart {
			assert.Equal(t, "clock", msg.Data.CardID)
			break
		}
	}

	require.NoError(t, conn.WriteJSON(pointerRequest{Phase: "move", X: 30, Y: 22}))
	for {
		var msg struct {
			Type string     `json:"type"`
			Data grid.Event `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != dashboard.MsgGrid || msg.Data.Type != grid.EventDragMove {
			continue
		}
		require.NotEmpty(t, msg.Data.Positions)
		clock := msg.Data.Positions[0]
		assert.Equal(t, "clock", clock.ID)
		assert.True(t, clock.Dragging)
		assert.Equal(t, grid.Point{X: 10, Y: 2}, grid.Point{X: clock.X, Y: clock.Y})
		break
	}
}
