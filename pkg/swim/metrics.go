package swim

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// Probes is the number of completed probes labelled by result, which is
	// one of 'direct', 'indirect' or 'failed'.
	Probes *prometheus.CounterVec

	// MessagesInbound is the number of processed inbound messages labelled
	// by message type.
	MessagesInbound *prometheus.CounterVec

	// MessagesRelayed is the number of messages forwarded on behalf of
	// another node, labelled by message type.
	MessagesRelayed *prometheus.CounterVec

	// SendErrors is the number of outbound messages that failed to send.
	SendErrors prometheus.Counter

	// Members is the number of known members, including stale members and
	// the local node.
	Members prometheus.Gauge

	// LiveMembers is the number of members heard from within the failure
	// timeout, as of the last liveness update.
	LiveMembers prometheus.Gauge

	// PendingProbes is the number of probes waiting for a pong.
	PendingProbes prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swim",
				Subsystem: "node",
				Name:      "probes_total",
				Help:      "Number of completed probes",
			},
			[]string{"result"},
		),
		MessagesInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swim",
				Subsystem: "node",
				Name:      "messages_inbound_total",
				Help:      "Number of processed inbound messages",
			},
			[]string{"type"},
		),
		MessagesRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swim",
				Subsystem: "node",
				Name:      "messages_relayed_total",
				Help:      "Number of messages forwarded for another node",
			},
			[]string{"type"},
		),
		SendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swim",
				Subsystem: "node",
				Name:      "send_errors_total",
				Help:      "Number of outbound messages that failed to send",
			},
		),
		Members: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "swim",
				Subsystem: "node",
				Name:      "members",
				Help:      "Number of known members",
			},
		),
		LiveMembers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "swim",
				Subsystem: "node",
				Name:      "live_members",
				Help:      "Number of members heard from within the failure timeout",
			},
		),
		PendingProbes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "swim",
				Subsystem: "node",
				Name:      "pending_probes",
				Help:      "Number of probes waiting for a pong",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.Probes,
		m.MessagesInbound,
		m.MessagesRelayed,
		m.SendErrors,
		m.Members,
		m.LiveMembers,
		m.PendingProbes,
	)
}
