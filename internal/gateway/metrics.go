package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "Open WebSocket sessions.",
	})

	presenceOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_presence_online",
		Help: "Identities currently registered in the presence registry.",
	})

	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_total",
		Help: "Inbound events handled, by event name.",
	}, []string{"event"})

	eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_dropped_total",
		Help: "Inbound frames dropped before dispatch, by reason.",
	}, []string{"reason"}) // malformed|rate_limited|unknown_event
)

func init() {
	prometheus.MustRegister(connectionsActive, presenceOnline, eventsTotal, eventsDropped)
}
