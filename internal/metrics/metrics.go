package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thatsimonsguy/intersection-view/internal/datadog"
)

const namespace = "intersection_view"

var (
	registry = prometheus.NewRegistry()

	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_messages_total",
		Help:      "Messages received per feed source and outcome.",
	}, []string{"source", "outcome"})

	feedStateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_state_changes_total",
		Help:      "Feed lifecycle transitions per source and state.",
	}, []string{"source", "state"})

	droppedEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signal_entries_dropped_total",
		Help:      "Signal batch entries dropped because their road did not parse.",
	}, []string{"source"})

	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Control commands dispatched per kind and result.",
	}, []string{"kind", "result"})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Intersection views currently open.",
	})
)

func init() {
	registry.MustRegister(
		messagesTotal,
		feedStateTotal,
		droppedEntries,
		commandsTotal,
		activeSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func Registry() *prometheus.Registry {
	return registry
}

func FeedMessage(source, outcome string) {
	messagesTotal.WithLabelValues(source, outcome).Inc()
	datadog.Incr("feed.messages", "source:"+source, "outcome:"+outcome)
}

func FeedState(source, state string) {
	feedStateTotal.WithLabelValues(source, state).Inc()
	datadog.Incr("feed.state_changes", "source:"+source, "state:"+state)
}

func DroppedEntries(source string, n int) {
	if n <= 0 {
		return
	}
	droppedEntries.WithLabelValues(source).Add(float64(n))
	datadog.Count("signal.dropped_entries", int64(n), "source:"+source)
}

func Command(kind, result string) {
	commandsTotal.WithLabelValues(kind, result).Inc()
	datadog.Incr("commands", "kind:"+kind, "result:"+result)
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
	datadog.Gauge("sessions.active", float64(n))
}
