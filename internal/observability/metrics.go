package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	callsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vimctl",
			Subsystem: "session",
			Name:      "calls_issued_total",
			Help:      "Expression calls issued with a serial.",
		},
	)
	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vimctl",
			Subsystem: "session",
			Name:      "replies_total",
			Help:      "Replies received, by outcome.",
		},
		[]string{"outcome"},
	)
	pendingCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vimctl",
			Subsystem: "session",
			Name:      "pending_calls",
			Help:      "Expression calls awaiting a reply.",
		},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vimctl",
			Subsystem: "session",
			Name:      "notifications_total",
			Help:      "Spontaneous notifications, by outcome.",
		},
		[]string{"outcome"},
	)
	hiddenSpawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vimctl",
			Subsystem: "hidden",
			Name:      "spawns_total",
			Help:      "Hidden session spawn attempts, by result.",
		},
		[]string{"result"},
	)
	discoveryCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vimctl",
			Subsystem: "discovery",
			Name:      "cycles_total",
			Help:      "Discovery cycles, by outcome.",
		},
		[]string{"outcome"},
	)
	serverListChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vimctl",
			Subsystem: "discovery",
			Name:      "server_list_changes_total",
			Help:      "Server list deliveries to the application.",
		},
	)
	servers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vimctl",
			Subsystem: "discovery",
			Name:      "servers",
			Help:      "Servers in the last delivered list.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vimctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vimctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			callsIssued,
			replies,
			pendingCalls,
			notifications,
			hiddenSpawns,
			discoveryCycles,
			serverListChanges,
			servers,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordCallIssued(pending int) {
	RegisterMetrics()
	callsIssued.Inc()
	pendingCalls.Set(float64(pending))
}

// RecordReply counts a reply; resolved is false when no call was waiting.
func RecordReply(resolved bool, pending int) {
	RegisterMetrics()
	outcome := "dropped"
	if resolved {
		outcome = "resolved"
	}
	replies.WithLabelValues(outcome).Inc()
	pendingCalls.Set(float64(pending))
}

func RecordPending(pending int) {
	RegisterMetrics()
	pendingCalls.Set(float64(pending))
}

func RecordNotification(delivered bool) {
	RegisterMetrics()
	outcome := "malformed"
	if delivered {
		outcome = "delivered"
	}
	notifications.WithLabelValues(outcome).Inc()
}

// RecordSpawn counts a hidden session spawn attempt: ok, error or backoff.
func RecordSpawn(result string) {
	RegisterMetrics()
	hiddenSpawns.WithLabelValues(result).Inc()
}

// RecordDiscoveryCycle counts a cycle: restart (hidden session was down) or query.
func RecordDiscoveryCycle(outcome string) {
	RegisterMetrics()
	discoveryCycles.WithLabelValues(outcome).Inc()
}

func RecordServerListChange(count int) {
	RegisterMetrics()
	serverListChanges.Inc()
	servers.Set(float64(count))
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
