package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitchat_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// DatabaseQueryLatency records repository call latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chitchat_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// PostsCreated counts created posts split by reply flag.
	PostsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitchat_posts_created_total",
		Help: "Total number of posts created",
	}, []string{"kind"})

	// Toggles counts like, repost and follow toggles by resulting state.
	Toggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitchat_toggles_total",
		Help: "Total number of relationship toggles",
	}, []string{"relation", "action"})

	// AuthFailures counts rejected authentications by error code.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitchat_auth_failures_total",
		Help: "Total number of rejected authentication attempts",
	}, []string{"code"})

	// WebSocketConnections is the gauge of open notification sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chitchat_websocket_connections",
		Help: "Number of open notification websocket connections",
	})

	// WebSocketDrops counts events dropped because a client send buffer was full.
	WebSocketDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chitchat_websocket_backpressure_drops_total",
		Help: "Total number of websocket messages dropped due to backpressure",
	})

	// MediaUploads counts image uploads by result.
	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chitchat_media_uploads_total",
		Help: "Total number of media uploads by result",
	}, []string{"result"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// ToggleAction renders a toggle outcome as a metric label.
func ToggleAction(on bool) string {
	if on {
		return "add"
	}
	return "remove"
}
