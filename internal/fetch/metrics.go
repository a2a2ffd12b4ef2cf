package fetch

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	controlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_control_requests_total",
			Help: "Total number of fetch-service control API requests",
		},
		[]string{"method", "route", "result"},
	)

	controlRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_control_request_duration_seconds",
			Help:    "Fetch-service control API request duration in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{"method", "route"},
	)

	daemonStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_daemon_starts_total",
			Help: "Fetch-service start attempts by outcome",
		},
		[]string{"result"},
	)

	sessionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_session_events_total",
			Help: "Fetch-service session lifecycle events",
		},
		[]string{"event", "result"},
	)
)

// routeLabel collapses session ids out of a control path:
// "session/abc/token" becomes "session/{id}/token".
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && (parts[0] == "session" || parts[0] == "resources") {
		parts[1] = "{id}"
	}
	return strings.Join(parts, "/")
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
