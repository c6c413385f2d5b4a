// Package metrics holds the Prometheus collectors of the dashboard host.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WidgetRefreshes counts widget refreshes by widget and result
	// ("ok", "api_error", "network_error", "unauthorized", "error").
	WidgetRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solara",
		Name:      "widget_refreshes_total",
		Help:      "Widget refreshes by widget and result.",
	}, []string{"widget", "result"})

	// DragOutcomes counts finished pointer gestures by outcome.
	DragOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solara",
		Name:      "drag_outcomes_total",
		Help:      "Pointer gestures on the card grid by outcome.",
	}, []string{"outcome"})

	// LayoutSaves counts layout snapshot writes by result.
	LayoutSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solara",
		Name:      "layout_saves_total",
		Help:      "Layout snapshot writes by result.",
	}, []string{"result"})

	// StreamClients is the number of connected push clients.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "solara",
		Name:      "stream_clients",
		Help:      "Connected websocket clients.",
	})
)

// Result maps an error to the "result" label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
