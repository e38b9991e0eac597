package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: время выполнения use-case целиком
	UseCaseDuration *prometheus.HistogramVec

	// Traffic/Errors: исход use-case (ok или вид ошибки)
	UseCaseTotal *prometheus.CounterVec

	// Best-effort вызовы внешних систем, которые не удались
	SideEffectFailures *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
	AuditDropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		UseCaseDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "requestflow_usecase_duration_seconds",
			Help:    "Histogram of use-case latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"usecase"}),

		UseCaseTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "requestflow_usecase_total",
			Help: "Total number of executed use-cases by outcome.",
		}, []string{"usecase", "outcome"}),

		SideEffectFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "requestflow_side_effect_failures_total",
			Help: "Best-effort external calls that failed.",
		}, []string{"target", "operation"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "requestflow_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "requestflow_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		AuditDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "requestflow_audit_dropped_total",
			Help: "Audit events dropped due to overflow or shutdown.",
		}),
	}
}

// ObserveUseCase фиксирует длительность и исход одного выполнения.
func (m *Metrics) ObserveUseCase(name string, started time.Time, outcome string) {
	m.UseCaseDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	m.UseCaseTotal.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) SideEffectFailed(target, operation string) {
	m.SideEffectFailures.WithLabelValues(target, operation).Inc()
}
