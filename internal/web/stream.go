package web

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solara/internal/dashboard"
	"solara/internal/grid"
	appLog "solara/internal/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	maxMessage = 4 << 10
)

// MsgSnapshot is the first message on a new stream: the full view.
const MsgSnapshot = "snapshot"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header and those whose
// origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// handleStream pushes dashboard updates to the page and accepts pointer
// samples in the opposite direction.
//
// GET /ws
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		appLog.Error("stream: websocket upgrade failed", err, "remote_addr", r.RemoteAddr)
		return
	}
	msgs, cancel := s.dash.Hub().Subscribe()
	appLog.Info("stream: client connected", "remote_addr", r.RemoteAddr)

	var writeMu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readPump(conn, &writeMu)
	}()
	s.writePump(conn, &writeMu, msgs, done)

	cancel()
	_ = conn.Close()
	<-done
	appLog.Info("stream: client disconnected", "remote_addr", r.RemoteAddr)
}

// readPump applies pointer samples from the client until the connection
// fails. Malformed messages are answered with an error and skipped.
func (s *Server) readPump(conn *websocket.Conn, writeMu *sync.Mutex) {
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req pointerRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				appLog.Warn("stream: read failed", "err", err.Error())
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if _, err := s.dash.Pointer(req.Phase, grid.Point{X: req.X, Y: req.Y}); err != nil {
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			writeMu.Unlock()
		}
	}
}

// writePump sends the current view, then every hub message, with periodic
// pings. It returns when the hub closes, the reader stops, or a write fails.
func (s *Server) writePump(conn *websocket.Conn, writeMu *sync.Mutex, msgs <-chan dashboard.Message, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	if err := write(dashboard.Message{Type: MsgSnapshot, Data: s.dash.State(), At: time.Now()}); err != nil {
		return
	}
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				writeMu.Unlock()
				return
			}
			if err := write(msg); err != nil {
				return
			}
		case <-ticker.C:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
