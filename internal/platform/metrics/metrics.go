package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the election-core modules.
type Metrics struct {
	// Vote lifecycle by outcome: cast, undone, confirmed.
	VoteTransitions *prometheus.CounterVec

	// Tally reads by disclosure outcome: served, forbidden, not_configured.
	TallyReads *prometheus.CounterVec

	// HTTP requests by route pattern and status code.
	HTTPRequests *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		VoteTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_vote_transitions_total",
			Help: "Total vote lifecycle transitions by outcome",
		}, []string{"outcome"}),

		TallyReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_tally_reads_total",
			Help: "Total tally read attempts by disclosure outcome",
		}, []string{"outcome"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_http_requests_total",
			Help: "Total HTTP requests by route and status",
		}, []string{"route", "status"}),
	}
}

// IncrementVoteTransition records one vote lifecycle transition.
func (m *Metrics) IncrementVoteTransition(outcome string) {
	if m != nil {
		m.VoteTransitions.WithLabelValues(outcome).Inc()
	}
}

// IncrementTallyRead records one gated tally read.
func (m *Metrics) IncrementTallyRead(outcome string) {
	if m != nil {
		m.TallyReads.WithLabelValues(outcome).Inc()
	}
}

// IncrementHTTPRequest records one served request.
func (m *Metrics) IncrementHTTPRequest(route, status string) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(route, status).Inc()
	}
}
