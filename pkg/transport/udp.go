package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
)

var (
	// ErrClosed is returned when sending on a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrPacketTooLarge is returned when an encoded message exceeds the
	// maximum packet size.
	ErrPacketTooLarge = errors.New("packet too large")
)

// UDPTransport sends each message as a single UDP datagram.
type UDPTransport struct {
	conn *net.UDPConn

	// addr is the address advertised to other nodes.
	addr swim.Address

	codec         swim.Codec
	maxPacketSize int

	inbound chan swim.Envelope

	closed *atomic.Bool
	wg     sync.WaitGroup

	metrics *Metrics

	logger log.Logger
}

// ListenUDP binds a UDP socket to bindAddr and starts reading packets.
//
// If advertiseAddr is invalid, the bound address is advertised, which
// requires bindAddr to include an IP. If advertiseAddr has no port the bound
// port is used.
func ListenUDP(
	bindAddr string,
	advertiseAddr swim.Address,
	opts ...Option,
) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp: %s: %w", bindAddr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %s: %w", bindAddr, err)
	}

	boundAddr := swim.AddressFromUDP(conn.LocalAddr().(*net.UDPAddr))
	if !advertiseAddr.IsValid() {
		advertiseAddr = boundAddr
	} else if advertiseAddr.Port() == 0 {
		// Binding to port 0 selects a random port.
		advertiseAddr = netip.AddrPortFrom(advertiseAddr.Addr(), boundAddr.Port())
	}
	return NewUDPTransport(conn, advertiseAddr, opts...), nil
}

// NewUDPTransport creates a transport using the given bound connection and
// starts reading packets.
func NewUDPTransport(
	conn *net.UDPConn,
	advertiseAddr swim.Address,
	opts ...Option,
) *UDPTransport {
	options := defaultOptions()
	for _, o := range opts {
		o.apply(&options)
	}

	t := &UDPTransport{
		conn:          conn,
		addr:          advertiseAddr,
		codec:         options.codec,
		maxPacketSize: options.maxPacketSize,
		inbound:       make(chan swim.Envelope, options.inboundBuffer),
		closed:        atomic.NewBool(false),
		metrics:       options.metrics,
		logger: options.logger.WithSubsystem("swim.transport").With(
			zap.String("addr", advertiseAddr.String()),
		),
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.readLoop()
	}()

	return t
}

func (t *UDPTransport) Addr() swim.Address {
	return t.addr
}

// LocalAddr returns the bound address of the socket, which may differ from
// the advertised address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Inbound() <-chan swim.Envelope {
	return t.inbound
}

func (t *UDPTransport) Send(ctx context.Context, envelope swim.Envelope) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := t.codec.Encode(envelope.Message)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if len(b) > t.maxPacketSize {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(b))
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := t.conn.WriteToUDPAddrPort(b, envelope.To); err != nil {
		return fmt.Errorf("write packet: %s: %w", envelope.To, err)
	}

	t.metrics.PacketBytesOutbound.Add(float64(len(b)))

	return nil
}

// Close closes the socket and waits for the read loop to exit. The inbound
// channel is closed once the read loop exits.
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := t.conn.Close()
	t.wg.Wait()
	return err
}

func (t *UDPTransport) readLoop() {
	defer close(t.inbound)

	buf := make([]byte, t.maxPacketSize)
	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warn("failed to read packet", zap.Error(err))
			continue
		}

		t.metrics.PacketBytesInbound.Add(float64(n))

		// The codec doesn't retain the buffer so it can be reused.
		m, err := t.codec.Decode(buf[:n])
		if err != nil {
			t.metrics.DecodeErrors.Inc()
			t.logger.Warn(
				"failed to decode packet",
				zap.String("from", from.String()),
				zap.Error(err),
			)
			continue
		}

		envelope := swim.Envelope{
			From:    swim.NormalizeAddress(from),
			To:      t.addr,
			Message: m,
		}
		select {
		case t.inbound <- envelope:
		default:
			t.metrics.PacketsDropped.Inc()
			t.logger.Debug(
				"inbound queue full; dropping packet",
				zap.String("from", from.String()),
			)
		}
	}
}

var _ swim.Transport = &UDPTransport{}
