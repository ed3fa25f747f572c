package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the escrow engine.
// Tracks command outcomes, funds moved and command durations.
type Metrics struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	FundsDeposited  prometheus.Counter
	FundsReleased   prometheus.Counter
	FundsRefunded   prometheus.Counter
	BountiesByState *prometheus.CounterVec
	InvariantAlarms prometheus.Counter
}

// New registers the engine metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexbounty_escrow_commands_total",
			Help: "Escrow commands by name and outcome code",
		}, []string{"command", "outcome"}),
		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexbounty_escrow_command_duration_seconds",
			Help:    "Duration of escrow commands including the transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"command"}),
		FundsDeposited: f.NewCounter(prometheus.CounterOpts{
			Name: "lexbounty_escrow_funds_deposited_total",
			Help: "Token units moved from donors into escrow",
		}),
		FundsReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "lexbounty_escrow_funds_released_total",
			Help: "Token units paid from escrow to lawyers",
		}),
		FundsRefunded: f.NewCounter(prometheus.CounterOpts{
			Name: "lexbounty_escrow_funds_refunded_total",
			Help: "Token units returned from escrow to donors",
		}),
		BountiesByState: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexbounty_bounty_transitions_total",
			Help: "Bounty lifecycle transitions by target status",
		}, []string{"status"}),
		InvariantAlarms: f.NewCounter(prometheus.CounterOpts{
			Name: "lexbounty_escrow_invariant_violations_total",
			Help: "Consistency checks that failed after a command",
		}),
	}
}

// ObserveCommand records the outcome and duration of a command.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCommand(command, outcome string, start time.Time) {
	m.Commands.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementTransition(status string) {
	m.BountiesByState.WithLabelValues(status).Inc()
}
