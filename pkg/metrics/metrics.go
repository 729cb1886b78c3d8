package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "mesbridge"
	subsystem = "acquisition"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// Registry holds every bridge collector plus the go runtime collectors.
	Registry = prometheus.NewRegistry()

	ReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reads_total",
		Help:      "Device tag batch reads by result",
	}, []string{"result"})

	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "publish_total",
		Help:      "Snapshot deliveries by sink and result",
	}, []string{"sink", "result"})

	PingFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ping_failures_total",
		Help:      "Devices skipped because the reachability probe failed",
	})

	NotificationsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "notifications_dropped_total",
		Help:      "Subscription notifications dropped before a read, by reason",
	}, []string{"reason"})

	ConnectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_state",
		Help:      "Current protocol connection state (see ConnectionState ordinal)",
	}, []string{"protocol"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ReadsTotal,
		PublishTotal,
		PingFailuresTotal,
		NotificationsDroppedTotal,
		ConnectionState,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
