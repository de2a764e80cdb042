package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net/netip"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
)

type link struct {
	from swim.Address
	to   swim.Address
}

// MemNetwork is an in-memory network connecting MemTransports.
//
// Messages are encoded and decoded with the network codec, so nodes never
// share message state. Links between nodes can be blocked to simulate
// network partitions, and a drop rate can be configured to simulate packet
// loss.
type MemNetwork struct {
	transports map[swim.Address]*MemTransport
	blocked    map[link]struct{}
	dropRate   float64
	nextPort   uint16

	// mu protects the above fields.
	mu sync.Mutex

	codec         swim.Codec
	inboundBuffer int

	metrics *Metrics

	logger log.Logger
}

func NewMemNetwork(opts ...Option) *MemNetwork {
	options := defaultOptions()
	for _, o := range opts {
		o.apply(&options)
	}

	return &MemNetwork{
		transports:    make(map[swim.Address]*MemTransport),
		blocked:       make(map[link]struct{}),
		nextPort:      10000,
		codec:         options.codec,
		inboundBuffer: options.inboundBuffer,
		metrics:       options.metrics,
		logger:        options.logger.WithSubsystem("swim.transport"),
	}
}

// Listen adds a transport with the given address to the network.
func (n *MemNetwork) Listen(addr swim.Address) (*MemTransport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.transports[addr]; ok {
		return nil, fmt.Errorf("address in use: %s", addr)
	}
	return n.listenLocked(addr), nil
}

// ListenNext adds a transport to the network with the next unused loopback
// address.
func (n *MemNetwork) ListenNext() *MemTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		addr := netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), n.nextPort)
		n.nextPort++
		if _, ok := n.transports[addr]; !ok {
			return n.listenLocked(addr)
		}
	}
}

// Block drops all messages sent from 'from' to 'to'. The reverse direction
// is unaffected.
func (n *MemNetwork) Block(from, to swim.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.blocked[link{from: from, to: to}] = struct{}{}
}

func (n *MemNetwork) Unblock(from, to swim.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.blocked, link{from: from, to: to})
}

// SetDropRate sets the probability in [0, 1] that any message is dropped.
func (n *MemNetwork) SetDropRate(rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.dropRate = rate
}

func (n *MemNetwork) listenLocked(addr swim.Address) *MemTransport {
	t := &MemTransport{
		addr:    addr,
		network: n,
		inbound: make(chan swim.Envelope, n.inboundBuffer),
		closed:  atomic.NewBool(false),
	}
	n.transports[addr] = t
	return t
}

func (n *MemNetwork) remove(t *MemTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.transports[t.addr] == t {
		delete(n.transports, t.addr)
	}
}

// route returns the transport to deliver a message from 'from' to 'to', or
// nil if the message should be dropped.
func (n *MemNetwork) route(from, to swim.Address) *MemTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.blocked[link{from: from, to: to}]; ok {
		return nil
	}
	if n.dropRate > 0 && rand.Float64() < n.dropRate {
		return nil
	}
	return n.transports[to]
}

func (n *MemNetwork) deliver(from swim.Address, envelope swim.Envelope) error {
	b, err := n.codec.Encode(envelope.Message)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	n.metrics.PacketBytesOutbound.Add(float64(len(b)))

	dest := n.route(from, envelope.To)
	if dest == nil {
		n.logger.Debug(
			"dropping message",
			zap.String("from", from.String()),
			zap.String("to", envelope.To.String()),
		)
		return nil
	}

	n.metrics.PacketBytesInbound.Add(float64(len(b)))

	m, err := n.codec.Decode(b)
	if err != nil {
		n.metrics.DecodeErrors.Inc()
		n.logger.Warn(
			"failed to decode packet",
			zap.String("from", from.String()),
			zap.Error(err),
		)
		return nil
	}

	dest.push(swim.Envelope{
		From:    from,
		To:      envelope.To,
		Message: m,
	})
	return nil
}

// MemTransport is a transport connected to a MemNetwork.
type MemTransport struct {
	addr    swim.Address
	network *MemNetwork

	inbound chan swim.Envelope

	// mu guards closing inbound against concurrent pushes.
	mu     sync.RWMutex
	closed *atomic.Bool
}

func (t *MemTransport) Addr() swim.Address {
	return t.addr
}

func (t *MemTransport) Inbound() <-chan swim.Envelope {
	return t.inbound
}

// Send delivers the envelope to the transport at envelope.To if the link is
// up. The source address is always the transport's own address.
func (t *MemTransport) Send(ctx context.Context, envelope swim.Envelope) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.network.deliver(t.addr, envelope)
}

// Close removes the transport from the network and closes the inbound
// channel.
func (t *MemTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.network.remove(t)

	t.mu.Lock()
	close(t.inbound)
	t.mu.Unlock()

	return nil
}

func (t *MemTransport) push(envelope swim.Envelope) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed.Load() {
		return
	}

	select {
	case t.inbound <- envelope:
	default:
		t.network.metrics.PacketsDropped.Inc()
	}
}

var _ swim.Transport = &MemTransport{}
