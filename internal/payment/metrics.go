package payment

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	SessionsOpened prometheus.Counter
	Outcomes       *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	InFlight       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "sessions_opened_total",
			Help:      "Checkout sessions opened.",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "payments_total",
			Help:      "Settled payment attempts by method and outcome.",
		}, []string{"method", "outcome", "code"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each gateway stage.",
			Buckets:   []float64{0.05, 0.25, 0.5, 1, 2, 3, 4, 5, 7.5, 10},
		}, []string{"stage", "result"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "checkout",
			Name:      "payments_in_flight",
			Help:      "Payment attempts currently processing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.SessionsOpened, m.Outcomes, m.StageDuration, m.InFlight)
	}
	return m
}
