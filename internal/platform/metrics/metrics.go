package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"medledger/internal/ledger"
	dErrors "medledger/pkg/domain-errors"
)

// Metrics holds the process-wide Prometheus metrics: HTTP traffic, ledger
// transactions and audit delivery. Every method is safe on a nil receiver.
type Metrics struct {
	HTTPDuration   *prometheus.HistogramVec
	LedgerTx       *prometheus.HistogramVec
	AuditFailures  *prometheus.CounterVec
	AuditDropped   prometheus.Counter
	IdempotentHits *prometheus.CounterVec
}

// New creates and registers all platform metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),

		LedgerTx: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medledger_ledger_tx_duration_seconds",
			Help:    "Ledger transaction latency by operation, mode and result code",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op", "mode", "code"}),

		AuditFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medledger_audit_publish_failures_total",
			Help: "Audit events a sink failed to accept",
		}, []string{"sink"}),

		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "medledger_audit_dropped_total",
			Help: "Audit events dropped because the queue was full",
		}),

		IdempotentHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medledger_idempotency_outcomes_total",
			Help: "Idempotency-Key handling outcomes (reserved, replayed, conflict, released, error)",
		}, []string{"outcome"}),
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

// ObserveTx implements ledger.TxObserver.
func (m *Metrics) ObserveTx(op, mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	code := "ok"
	if err != nil {
		code = string(dErrors.CodeOf(ledger.TranslateError(err, "")))
	}
	m.LedgerTx.WithLabelValues(op, mode, code).Observe(d.Seconds())
}

// IncAuditPublishFailure implements audit.FailureCounter.
func (m *Metrics) IncAuditPublishFailure(sink string) {
	if m != nil {
		m.AuditFailures.WithLabelValues(sink).Inc()
	}
}

// IncAuditDropped implements audit.DropCounter.
func (m *Metrics) IncAuditDropped() {
	if m != nil {
		m.AuditDropped.Inc()
	}
}

// IncIdempotency records an idempotency outcome.
func (m *Metrics) IncIdempotency(outcome string) {
	if m != nil {
		m.IdempotentHits.WithLabelValues(outcome).Inc()
	}
}
