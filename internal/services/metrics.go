package services

import "github.com/prometheus/client_golang/prometheus"

var (
	relayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Messages that completed the relay pipeline, by result.",
		},
		[]string{"result"}, // delivered|offline|failed
	)

	relayStageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_stage_failures_total",
			Help: "Pipeline stages that fell back or failed, by stage.",
		},
		[]string{"stage"}, // encrypt|persist|conversation|audit|deliver
	)

	relayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_pipeline_duration_seconds",
			Help:    "Time from accepting a message to routing it.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(relayMessages, relayStageFailures, relayDuration)
}
