// Package metrics exposes client-side Prometheus collectors for REST calls
// and push-channel traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// REST metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_api_requests_total",
			Help: "Total number of REST requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskboard_api_request_duration_seconds",
			Help:    "REST request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Channel metrics
	ChannelEventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_channel_events_received_total",
			Help: "Inbound push-channel events by name",
		},
		[]string{"event"},
	)

	ChannelEventsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_channel_events_sent_total",
			Help: "Outbound push-channel events by name and result",
		},
		[]string{"event", "result"},
	)

	ChannelReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskboard_channel_reconnect_attempts_total",
			Help: "Total number of push-channel reconnect attempts",
		},
	)

	ChannelConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskboard_channel_connected",
			Help: "Whether the push channel is open (1) or not (0)",
		},
	)

	// View metrics
	TasksLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskboard_view_tasks",
			Help: "Number of tasks in the local view by filter",
		},
		[]string{"filter"},
	)
)

func init() {
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(ChannelEventsReceived)
	prometheus.MustRegister(ChannelEventsSent)
	prometheus.MustRegister(ChannelReconnects)
	prometheus.MustRegister(ChannelConnected)
	prometheus.MustRegister(TasksLoaded)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on o.
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed seconds on the labeled child of vec.
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labels ...string) {
	vec.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
