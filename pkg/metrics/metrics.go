package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecom",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecom",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	prometheus.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// SagaMetrics covers the orchestrator: per-step outcomes, compensation
// failures (the operator-alert signal) and the number of sagas in flight.
type SagaMetrics struct {
	Steps                *prometheus.CounterVec
	Outcomes             *prometheus.CounterVec
	CompensationFailures prometheus.Counter
	InFlight             prometheus.Gauge
}

func NewSagaMetrics(service string) *SagaMetrics {
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecom",
		Subsystem: service,
		Name:      "saga_steps_total",
		Help:      "Saga step executions by step name and result.",
	}, []string{"step", "result"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecom",
		Subsystem: service,
		Name:      "saga_outcomes_total",
		Help:      "Terminal saga outcomes.",
	}, []string{"outcome"})
	compFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecom",
		Subsystem: service,
		Name:      "saga_compensation_failures_total",
		Help:      "Compensation steps that failed and need operator attention.",
	})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecom",
		Subsystem: service,
		Name:      "saga_in_flight",
		Help:      "Sagas currently between STARTED and a terminal state.",
	})

	prometheus.MustRegister(steps, outcomes, compFailures, inFlight)
	return &SagaMetrics{
		Steps:                steps,
		Outcomes:             outcomes,
		CompensationFailures: compFailures,
		InFlight:             inFlight,
	}
}

// InventoryMetrics tracks reservation traffic and the expiry sweeper.
type InventoryMetrics struct {
	Reservations *prometheus.CounterVec
	Expired      prometheus.Counter
}

func NewInventoryMetrics(service string) *InventoryMetrics {
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecom",
		Subsystem: service,
		Name:      "inventory_reservations_total",
		Help:      "Reservation operations by kind and result.",
	}, []string{"op", "result"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecom",
		Subsystem: service,
		Name:      "inventory_reservations_expired_total",
		Help:      "Reservations transitioned to EXPIRED by the sweeper.",
	})

	prometheus.MustRegister(reservations, expired)
	return &InventoryMetrics{Reservations: reservations, Expired: expired}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
