package web

import (
	"crypto/subtle"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"solara/internal/config"
	"solara/internal/dashboard"
	appLog "solara/internal/log"
	"solara/internal/metrics"
)

// Server serves the dashboard page, its API and the push stream.
type Server struct {
	cfg  *config.Config
	dash *dashboard.Dashboard
	mux  *http.ServeMux

	// PreviewPath is the PNG served at /preview.png.
	PreviewPath string
}

// embeddedStatic holds the dashboard page and its assets.
//
//go:embed all:static
var embeddedStatic embed.FS

// Page returns the dashboard markup the grid discovers its cards from.
func Page() []byte {
	b, err := embeddedStatic.ReadFile("static/index.html")
	if err != nil {
		appLog.Error("embedded index.html missing", err)
		return nil
	}
	return b
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, dash *dashboard.Dashboard) *Server {
	s := &Server{
		cfg:         cfg,
		dash:        dash,
		mux:         http.NewServeMux(),
		PreviewPath: filepath.Join(cfg.DataDir, "preview.png"),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Solara", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	s.mux.HandleFunc("POST /api/grid/pointer", s.handlePointer)
	s.mux.HandleFunc("POST /api/grid/measure", s.handleMeasure)
	s.mux.HandleFunc("POST /api/grid/relayout", s.handleRelayout)
	s.mux.HandleFunc("POST /api/weather/refresh", s.handleWeatherRefresh)
	s.mux.HandleFunc("POST /api/events/refresh", s.handleEventsRefresh)

	s.mux.HandleFunc("GET /auth/signin", s.handleSignIn)
	s.mux.HandleFunc("GET /auth/callback", s.handleCallback)
	s.mux.HandleFunc("POST /auth/signout", s.handleSignOut)

	s.mux.HandleFunc("GET /ws", s.handleStream)
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	s.mux.Handle("GET /", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		// Unknown API paths get a 404, never the page.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// handlePreview serves the last captured screenshot from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.PreviewPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
