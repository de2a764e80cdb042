package transport

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// PacketBytesInbound is the total number of read bytes.
	PacketBytesInbound prometheus.Counter

	// PacketBytesOutbound is the total number of written bytes.
	PacketBytesOutbound prometheus.Counter

	// DecodeErrors is the number of received packets that could not be
	// decoded.
	DecodeErrors prometheus.Counter

	// PacketsDropped is the number of decoded packets dropped as the
	// inbound queue was full.
	PacketsDropped prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		PacketBytesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swim",
				Subsystem: "transport",
				Name:      "packet_bytes_inbound_total",
				Help:      "Total number of read bytes",
			},
		),
		PacketBytesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swim",
				Subsystem: "transport",
				Name:      "packet_bytes_outbound_total",
				Help:      "Total number of written bytes",
			},
		),
		DecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swim",
				Subsystem: "transport",
				Name:      "decode_errors_total",
				Help:      "Number of received packets that could not be decoded",
			},
		),
		PacketsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swim",
				Subsystem: "transport",
				Name:      "packets_dropped_total",
				Help:      "Number of packets dropped as the inbound queue was full",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.PacketBytesInbound,
		m.PacketBytesOutbound,
		m.DecodeErrors,
		m.PacketsDropped,
	)
}
