package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/syncwavelabs/syncwave/internal/domain/action"
)

var (
	inflightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncwave_actions_in_flight",
		Help: "Number of actions currently being executed upstream.",
	})

	outcomeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncwave_dispatch_outcomes_total",
		Help: "Execution attempt outcomes by classification.",
	}, []string{"outcome"})
)

func recordInFlight(delta float64) {
	inflightGauge.Add(delta)
}

func recordOutcome(kind action.OutcomeKind) {
	outcomeCounter.WithLabelValues(string(kind)).Inc()
}
