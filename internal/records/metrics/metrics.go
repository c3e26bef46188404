package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the record store.
type Metrics struct {
	RecordsCreated prometheus.Counter
	CreateRejected *prometheus.CounterVec
}

// New registers the record store metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "medledger_records_created_total",
			Help: "Records appended to the ledger",
		}),
		CreateRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medledger_records_create_rejected_total",
			Help: "Record creations rejected, by error code",
		}, []string{"code"}),
	}
}

// IncrementCreated records one created record.
func (m *Metrics) IncrementCreated() {
	if m != nil {
		m.RecordsCreated.Inc()
	}
}

// IncrementRejected records a failed creation.
func (m *Metrics) IncrementRejected(code string) {
	if m != nil {
		m.CreateRejected.WithLabelValues(code).Inc()
	}
}
