package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics: the ops HTTP surface and
// the Kafka ingest loop. Matching metrics live with the matching core.
type Metrics struct {
	HTTPDuration *prometheus.HistogramVec

	// Inbound messages by topic and result ("ok", "error")
	MessagesHandled *prometheus.CounterVec
	HandleDuration  *prometheus.HistogramVec
}

// New creates and registers all process metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hemolink_http_request_duration_seconds",
			Help:    "Ops HTTP request duration by method, route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		MessagesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemolink_ingest_messages_total",
			Help: "Inbound Kafka messages handled by topic and result",
		}, []string{"topic", "result"}),

		HandleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hemolink_ingest_handle_duration_seconds",
			Help:    "Time spent handling one inbound message",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"topic"}),
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveMessage(topic string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MessagesHandled.WithLabelValues(topic, result).Inc()
	m.HandleDuration.WithLabelValues(topic).Observe(d.Seconds())
}
