package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"todochat/internal/intent"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
	outcomeBusy   = "busy"
)

// Metrics counts executed commands. A nil *Metrics records nothing.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		return nil
	}
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todochat_commands_total",
				Help: "Chat commands by intent kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "todochat_command_duration_seconds",
				Help:    "Chat command latency including store calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
	registry.MustRegister(m.commands, m.duration)
	return m
}

func (m *Metrics) observe(kind intent.Kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(string(kind), outcome).Inc()
	if outcome != outcomeBusy {
		m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}
