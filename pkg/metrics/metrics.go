package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Entity metrics
	EntitiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lvmdbusd_entities_total",
			Help: "Number of registered D-Bus entities by kind",
		},
		[]string{"kind"},
	)

	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lvmdbusd_jobs_in_flight",
			Help: "Number of job objects registered and not yet removed",
		},
	)

	// lvm command metrics
	LvmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvmdbusd_lvm_calls_total",
			Help: "Total lvm invocations by execution mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	LvmCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lvmdbusd_lvm_call_duration_seconds",
			Help:    "Wall clock duration of lvm invocations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// Refresh metrics
	RefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lvmdbusd_refreshes_total",
			Help: "Total full state refreshes",
		},
	)

	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lvmdbusd_refresh_duration_seconds",
			Help:    "Duration of one refresh plus reconciliation pass",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	CoalescedRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lvmdbusd_coalesced_refresh_requests_total",
			Help: "Refresh requests satisfied by a shared refresh pass",
		},
	)

	// Worker metrics
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lvmdbusd_worker_queue_depth",
			Help: "Pending requests in the worker queue",
		},
	)

	RequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lvmdbusd_request_duration_seconds",
			Help:    "Duration of request handler execution on the worker",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	FlightRecorderDumps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lvmdbusd_flight_recorder_dumps_total",
			Help: "Times the command flight recorder was dumped",
		},
	)

	UdevEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvmdbusd_udev_events_total",
			Help: "Block device uevents seen, by disposition",
		},
		[]string{"disposition"},
	)
)

func init() {
	prometheus.MustRegister(EntitiesTotal)
	prometheus.MustRegister(JobsInFlight)
	prometheus.MustRegister(LvmCallsTotal)
	prometheus.MustRegister(LvmCallDuration)
	prometheus.MustRegister(RefreshesTotal)
	prometheus.MustRegister(RefreshDuration)
	prometheus.MustRegister(CoalescedRequests)
	prometheus.MustRegister(WorkerQueueDepth)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(FlightRecorderDumps)
	prometheus.MustRegister(UdevEventsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
