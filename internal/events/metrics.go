package events

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

type busMetrics struct {
	published *prometheus.CounterVec
	delivered *prometheus.CounterVec
}

func newBusMetrics(registry *prometheus.Registry) *busMetrics {
	if registry == nil {
		return nil
	}
	m := &busMetrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todochat_bus_published_total",
				Help: "Notifications published by topic",
			},
			[]string{"topic"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todochat_bus_delivered_total",
				Help: "Notifications delivered to handlers by topic",
			},
			[]string{"topic"},
		),
	}
	registry.MustRegister(m.published, m.delivered)
	return m
}

func (m *busMetrics) incPublished(topic string) {
	if m != nil {
		m.published.WithLabelValues(metricTopic(topic)).Inc()
	}
}

func (m *busMetrics) incDelivered(topic string) {
	if m != nil {
		m.delivered.WithLabelValues(metricTopic(topic)).Inc()
	}
}

// metricTopic drops the per-user suffix to keep label cardinality bounded.
func metricTopic(topic string) string {
	if strings.HasPrefix(topic, TopicTasksChanged+"/") {
		return TopicTasksChanged
	}
	return topic
}
