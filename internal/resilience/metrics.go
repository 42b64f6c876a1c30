package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker and retry collectors, labelled by outbound dependency ("ga4", "stripe").
var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "outbound_breaker_state",
		Help: "Current breaker state: 0=closed,1=open,2=half-open",
	}, []string{"target"})
	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_breaker_transition_total",
		Help: "Count of outbound breaker state transitions",
	}, []string{"target", "from", "to"})
	breakerOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_breaker_open_total",
		Help: "Number of times a breaker transitioned into open state",
	}, []string{"target"})
	outboundAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_attempts_total",
		Help: "Outbound HTTP attempts by result (ok, retry, client_error, rejected)",
	}, []string{"target", "result"})
)
