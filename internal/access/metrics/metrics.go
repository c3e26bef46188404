package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the access ledger and the gate.
type Metrics struct {
	// Access requests by outcome: created, or the error code that refused them.
	Requests *prometheus.CounterVec

	// Transitions by target status.
	Transitions *prometheus.CounterVec

	// Gate checks by reason (owner, granted, no_grant, unknown_record).
	GateChecks *prometheus.CounterVec
}

// New registers the access metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medledger_access_requests_total",
			Help: "Access requests by outcome",
		}, []string{"outcome"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medledger_access_transitions_total",
			Help: "Access request state transitions by target status",
		}, []string{"status"}),

		GateChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medledger_gate_checks_total",
			Help: "Authorization gate checks by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementRequest(outcome string) {
	if m != nil {
		m.Requests.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementTransition(status string) {
	if m != nil {
		m.Transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementGateCheck(reason string) {
	if m != nil {
		m.GateChecks.WithLabelValues(reason).Inc()
	}
}
