package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AllChannels labels a delivery failure after every channel was tried.
const AllChannels = "all_channels"

// Metrics provides observability for the matching core. All methods are
// nil-safe so components can run without metrics in tests.
type Metrics struct {
	// Candidate searches by urgency and result ("found", "none", "error")
	Searches *prometheus.CounterVec

	// Radius expansion steps taken per search
	ExpansionSteps prometheus.Histogram

	// Eligible candidates returned per search
	CandidatesFound prometheus.Histogram

	SearchLatency prometheus.Histogram

	// Attempt outcomes ("accepted", "declined", "timed_out", "withdrawn")
	Attempts *prometheus.CounterVec

	// Alert delivery failures by channel
	DeliveryFailures *prometheus.CounterVec

	// Request transitions by target status and reason
	Transitions *prometheus.CounterVec

	// Internal invariant violations by kind; any increment should page
	InvariantViolations *prometheus.CounterVec

	ActiveRequests prometheus.Gauge

	// Time from submission to the accepted attempt
	TimeToMatch *prometheus.HistogramVec

	IndexedDonors  prometheus.Gauge
	StaleFallbacks prometheus.Counter

	// 1 while a channel's circuit is open
	ChannelCircuitOpen *prometheus.GaugeVec
}

// New registers all matching metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all matching metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemolink_matching_searches_total",
			Help: "Candidate searches by urgency and result",
		}, []string{"urgency", "result"}),

		ExpansionSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hemolink_matching_expansion_steps",
			Help:    "Radius expansion steps taken per candidate search",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8},
		}),

		CandidatesFound: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hemolink_matching_candidates_found",
			Help:    "Eligible candidates returned per search",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hemolink_matching_search_duration_seconds",
			Help:    "Duration of a full candidate search including expansion",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemolink_matching_attempts_total",
			Help: "Resolved match attempts by outcome",
		}, []string{"outcome"}),

		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemolink_matching_delivery_failures_total",
			Help: "Alert delivery failures by channel; all_channels counts alerts no channel delivered",
		}, []string{"channel"}),

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemolink_matching_transitions_total",
			Help: "Request status transitions by target status and reason",
		}, []string{"to", "reason"}),

		InvariantViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemolink_matching_invariant_violations_total",
			Help: "Internal consistency violations detected by the matching core",
		}, []string{"kind"}),

		ActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hemolink_matching_active_requests",
			Help: "Requests with a live lifecycle actor",
		}),

		TimeToMatch: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hemolink_matching_time_to_match_seconds",
			Help:    "Time from request submission to an accepted attempt",
			Buckets: []float64{15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"urgency"}),

		IndexedDonors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hemolink_geo_indexed_donors",
			Help: "Donors currently present in the location index",
		}),

		StaleFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "hemolink_geo_stale_fallbacks_total",
			Help: "Radius queries answered only with stale locations",
		}),

		ChannelCircuitOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hemolink_notify_channel_circuit_open",
			Help: "1 while a notification channel circuit breaker is open",
		}, []string{"channel"}),
	}
}

func (m *Metrics) IncrementSearch(urgency, result string) {
	if m != nil {
		m.Searches.WithLabelValues(urgency, result).Inc()
	}
}

func (m *Metrics) ObserveSearch(steps, candidates int, d time.Duration) {
	if m != nil {
		m.ExpansionSteps.Observe(float64(steps))
		m.CandidatesFound.Observe(float64(candidates))
		m.SearchLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementAttempt(outcome string) {
	if m != nil {
		m.Attempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementDeliveryFailure(channel string) {
	if m != nil {
		m.DeliveryFailures.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) IncrementTransition(to, reason string) {
	if m != nil {
		m.Transitions.WithLabelValues(to, reason).Inc()
	}
}

func (m *Metrics) IncrementInvariantViolation(kind string) {
	if m != nil {
		m.InvariantViolations.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) AddActiveRequests(delta float64) {
	if m != nil {
		m.ActiveRequests.Add(delta)
	}
}

func (m *Metrics) ObserveTimeToMatch(urgency string, d time.Duration) {
	if m != nil {
		m.TimeToMatch.WithLabelValues(urgency).Observe(d.Seconds())
	}
}

func (m *Metrics) SetIndexedDonors(n int) {
	if m != nil {
		m.IndexedDonors.Set(float64(n))
	}
}

func (m *Metrics) IncrementStaleFallback() {
	if m != nil {
		m.StaleFallbacks.Inc()
	}
}

func (m *Metrics) SetCircuitOpen(channel string, open bool) {
	if m != nil {
		v := 0.0
		if open {
			v = 1
		}
		m.ChannelCircuitOpen.WithLabelValues(channel).Set(v)
	}
}
