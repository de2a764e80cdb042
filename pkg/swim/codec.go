package swim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrMalformedMessage is returned when decoding a buffer that doesn't
	// contain a valid message, such as an unknown tag or a truncated buffer.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnsupportedMessage is returned when encoding a message that isn't a
	// Ping or Pong.
	ErrUnsupportedMessage = errors.New("unsupported message")
)

const (
	// minAddressSize is the encoded size of an address with an empty IP.
	minAddressSize = 8
)

// Codec encodes and decodes protocol messages.
type Codec interface {
	Encode(m Message) ([]byte, error)
	Decode(b []byte) (Message, error)
}

// WireCodec encodes messages using the binary wire format.
//
// Each datagram contains a single message so there is no length prefix. All
// integers are big-endian:
//
//	message  = tag:int32 seq:int64 [forward:route] backward:route gossip
//	route    = count:int32 address*
//	gossip   = count:int32 (address clock:int32)*
//	address  = len:int32 ip:byte[len] port:int32
//
// The forward route is only included in pings.
type WireCodec struct {
}

func NewWireCodec() *WireCodec {
	return &WireCodec{}
}

func (c *WireCodec) Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	switch m := m.(type) {
	case *Ping:
		writeInt32(&buf, int32(MessageTypePing))
		writeInt64(&buf, m.Seq)
		if err := writeRoute(&buf, m.ForwardRoute); err != nil {
			return nil, err
		}
		if err := writeRoute(&buf, m.BackwardRoute); err != nil {
			return nil, err
		}
		if err := writeGossip(&buf, m.Gossip); err != nil {
			return nil, err
		}
	case *Pong:
		writeInt32(&buf, int32(MessageTypePong))
		writeInt64(&buf, m.Seq)
		if err := writeRoute(&buf, m.BackwardRoute); err != nil {
			return nil, err
		}
		if err := writeGossip(&buf, m.Gossip); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedMessage, m)
	}
	return buf.Bytes(), nil
}

func (c *WireCodec) Decode(b []byte) (Message, error) {
	r := &reader{b: b}

	tag, err := r.Int32()
	if err != nil {
		return nil, err
	}

	var m Message
	switch MessageType(tag) {
	case MessageTypePing:
		m, err = decodePing(r)
	case MessageTypePong:
		m, err = decodePong(r)
	default:
		return nil, fmt.Errorf("%w: unknown tag: %d", ErrMalformedMessage, tag)
	}
	if err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedMessage, r.Len())
	}
	return m, nil
}

var _ Codec = &WireCodec{}

func decodePing(r *reader) (*Ping, error) {
	seq, err := r.Int64()
	if err != nil {
		return nil, err
	}
	forwardRoute, err := readRoute(r)
	if err != nil {
		return nil, fmt.Errorf("forward route: %w", err)
	}
	backwardRoute, err := readRoute(r)
	if err != nil {
		return nil, fmt.Errorf("backward route: %w", err)
	}
	gossip, err := readGossip(r)
	if err != nil {
		return nil, fmt.Errorf("gossip: %w", err)
	}
	return &Ping{
		Seq:           seq,
		ForwardRoute:  forwardRoute,
		BackwardRoute: backwardRoute,
		Gossip:        gossip,
	}, nil
}

func decodePong(r *reader) (*Pong, error) {
	seq, err := r.Int64()
	if err != nil {
		return nil, err
	}
	backwardRoute, err := readRoute(r)
	if err != nil {
		return nil, fmt.Errorf("backward route: %w", err)
	}
	gossip, err := readGossip(r)
	if err != nil {
		return nil, fmt.Errorf("gossip: %w", err)
	}
	return &Pong{
		Seq:           seq,
		BackwardRoute: backwardRoute,
		Gossip:        gossip,
	}, nil
}

func writeInt32(buf *bytes.Buffer, v int32) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

func writeInt64(buf *bytes.Buffer, v int64) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

func writeAddress(buf *bytes.Buffer, addr Address) error {
	if !addr.IsValid() {
		return fmt.Errorf("%w: invalid address", ErrUnsupportedMessage)
	}
	// The wire format has no field for an IPv6 zone.
	if addr.Addr().Zone() != "" {
		return fmt.Errorf("%w: address has zone: %s", ErrUnsupportedMessage, addr)
	}
	ip := addr.Addr().AsSlice()
	writeInt32(buf, int32(len(ip)))
	_, _ = buf.Write(ip)
	writeInt32(buf, int32(addr.Port()))
	return nil
}

func writeRoute(buf *bytes.Buffer, route []Address) error {
	writeInt32(buf, int32(len(route)))
	for _, addr := range route {
		if err := writeAddress(buf, addr); err != nil {
			return err
		}
	}
	return nil
}

func writeGossip(buf *bytes.Buffer, gossip []MemberUpdate) error {
	writeInt32(buf, int32(len(gossip)))
	for _, update := range gossip {
		if err := writeAddress(buf, update.Addr); err != nil {
			return err
		}
		writeInt32(buf, int32(update.Clock))
	}
	return nil
}

func readAddress(r *reader) (Address, error) {
	n, err := r.Int32()
	if err != nil {
		return Address{}, err
	}
	if n != 4 && n != 16 {
		return Address{}, fmt.Errorf("%w: invalid ip length: %d", ErrMalformedMessage, n)
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return Address{}, err
	}
	ip, _ := netip.AddrFromSlice(b)

	port, err := r.Int32()
	if err != nil {
		return Address{}, err
	}
	if port < 0 || port > 0xffff {
		return Address{}, fmt.Errorf("%w: invalid port: %d", ErrMalformedMessage, port)
	}
	return NormalizeAddress(netip.AddrPortFrom(ip, uint16(port))), nil
}

func readRoute(r *reader) ([]Address, error) {
	n, err := r.Count(minAddressSize)
	if err != nil {
		return nil, err
	}
	route := make([]Address, 0, n)
	for i := 0; i != n; i++ {
		addr, err := readAddress(r)
		if err != nil {
			return nil, err
		}
		route = append(route, addr)
	}
	return route, nil
}

func readGossip(r *reader) ([]MemberUpdate, error) {
	n, err := r.Count(minAddressSize + 4)
	if err != nil {
		return nil, err
	}
	gossip := make([]MemberUpdate, 0, n)
	for i := 0; i != n; i++ {
		addr, err := readAddress(r)
		if err != nil {
			return nil, err
		}
		clock, err := r.Int32()
		if err != nil {
			return nil, err
		}
		gossip = append(gossip, MemberUpdate{
			Addr:  addr,
			Clock: uint32(clock),
		})
	}
	return gossip, nil
}

// reader reads big-endian values from a buffer, returning
// ErrMalformedMessage if the buffer is truncated.
type reader struct {
	b []byte
}

func (r *reader) Len() int {
	return len(r.b)
}

func (r *reader) Bytes(n int) ([]byte, error) {
	if len(r.b) < n {
		return nil, fmt.Errorf(
			"%w: truncated: need %d bytes, have %d",
			ErrMalformedMessage, n, len(r.b),
		)
	}
	b := r.b[:n]
	r.b = r.b[n:]
	return b, nil
}

func (r *reader) Int32() (int32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *reader) Int64() (int64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Count reads a count of entries, where each entry is at least minSize
// bytes. Rejects counts that can't fit in the remaining buffer so a corrupt
// count can't trigger a large allocation.
func (r *reader) Count(minSize int) (int, error) {
	n, err := r.Int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative count: %d", ErrMalformedMessage, n)
	}
	if int(n) > r.Len()/minSize {
		return 0, fmt.Errorf("%w: count exceeds buffer: %d", ErrMalformedMessage, n)
	}
	return int(n), nil
}
