package weather

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "solara/internal/log"
	"solara/internal/metrics"
)

// Failure texts shown in place of the condition.
const (
	MsgUnavailable     = "Unable to load weather"
	MsgConnectionError = "Connection error"
)

// Relayouter is the grid handle a widget uses after its content changed.
type Relayouter interface {
	RefreshAndRelayout()
}

// Widget keeps the current weather display. Refreshes may overlap; the
// one that finishes last sets the display.
type Widget struct {
	client *Client
	grid   Relayouter
	now    func() time.Time

	mu      sync.RWMutex
	display Display

	// OnChange, if set, receives every new display.
	OnChange func(Display)
}

// NewWidget returns a widget showing placeholders until the first refresh.
// grid may be nil.
func NewWidget(c *Client, grid Relayouter) *Widget {
	return &Widget{
		client: c,
		grid:   grid,
		now:    time.Now,
		display: Display{
			Location:    c.Location(),
			Temperature: "--°",
			Condition:   "Loading…",
			Details:     "High: --° Low: --°",
		},
	}
}

// Display returns the current display.
func (w *Widget) Display() Display {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.display
}

// Refresh fetches a report and updates the display. Failures only change
// the condition text and are never returned.
func (w *Widget) Refresh(ctx context.Context) {
	report, err := w.client.Fetch(ctx)

	w.mu.Lock()
	next := w.display
	var apiErr *APIError
	switch {
	case err == nil:
		next = Render(report)
		next.Location = w.client.Location()
		next.UpdatedAt = w.now()
		metrics.WidgetRefreshes.WithLabelValues("weather", "ok").Inc()
	case errors.As(err, &apiErr):
		appLog.Warn("weather: api error", "status", apiErr.Status, "message", apiErr.Message)
		next.Condition = MsgUnavailable
		next.OK = false
		metrics.WidgetRefreshes.WithLabelValues("weather", "api_error").Inc()
	default:
		appLog.Error("weather: fetch failed", err)
		next.Condition = MsgConnectionError
		next.OK = false
		metrics.WidgetRefreshes.WithLabelValues("weather", "network_error").Inc()
	}
	w.display = next
	w.mu.Unlock()

	if w.OnChange != nil {
		w.OnChange(next)
	}
	if err == nil && w.grid != nil {
		w.grid.RefreshAndRelayout()
	}
}
