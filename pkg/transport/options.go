package transport

import (
	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
)

type options struct {
	codec         swim.Codec
	metrics       *Metrics
	inboundBuffer int
	maxPacketSize int
	logger        log.Logger
}

func defaultOptions() options {
	return options{
		codec:         swim.NewWireCodec(),
		metrics:       NewMetrics(),
		inboundBuffer: 1024,
		maxPacketSize: 65507,
		logger:        log.NewNopLogger(),
	}
}

type Option interface {
	apply(*options)
}

type codecOption struct {
	Codec swim.Codec
}

func (o codecOption) apply(opts *options) {
	opts.codec = o.Codec
}

// WithCodec sets the codec used to encode and decode messages. Defaults to
// the wire codec.
func WithCodec(codec swim.Codec) Option {
	return codecOption{Codec: codec}
}

type metricsOption struct {
	Metrics *Metrics
}

func (o metricsOption) apply(opts *options) {
	opts.metrics = o.Metrics
}

func WithMetrics(metrics *Metrics) Option {
	return metricsOption{Metrics: metrics}
}

type inboundBufferOption int

func (o inboundBufferOption) apply(opts *options) {
	opts.inboundBuffer = int(o)
}

// WithInboundBuffer sets the number of received envelopes that can be
// queued before envelopes are dropped.
func WithInboundBuffer(n int) Option {
	return inboundBufferOption(n)
}

type maxPacketSizeOption int

func (o maxPacketSizeOption) apply(opts *options) {
	opts.maxPacketSize = int(o)
}

// WithMaxPacketSize sets the maximum size of a packet. Only used by the UDP
// transport.
func WithMaxPacketSize(n int) Option {
	return maxPacketSizeOption(n)
}

type loggerOption struct {
	Logger log.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.logger = o.Logger
}

func WithLogger(logger log.Logger) Option {
	return loggerOption{Logger: logger}
}
