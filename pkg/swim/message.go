package swim

// MessageType is the discriminant of a protocol message. The value matches
// the tag written on the wire.
type MessageType int32

const (
	MessageTypePing MessageType = 0
	MessageTypePong MessageType = 1
)

func (t MessageType) String() string {
	switch t {
	case MessageTypePing:
		return "ping"
	case MessageTypePong:
		return "pong"
	default:
		return "unknown"
	}
}

// Message is a protocol message, either *Ping or *Pong.
type Message interface {
	Type() MessageType
}

// MemberUpdate is an entry in the gossip snippet piggybacked on each
// message.
type MemberUpdate struct {
	Addr  Address `json:"addr"`
	Clock uint32  `json:"clock"`
}

// Ping requests a Pong from the final hop of ForwardRoute, or from the
// receiver if ForwardRoute is empty.
type Ping struct {
	Seq int64

	// ForwardRoute contains the remaining hops the ping must traverse to
	// reach the probe target.
	ForwardRoute []Address

	// BackwardRoute contains the hops the pong must traverse to return to
	// the prober, with the nearest hop first.
	BackwardRoute []Address

	Gossip []MemberUpdate
}

func NewPing(seq int64, forwardRoute, backwardRoute []Address, gossip []MemberUpdate) *Ping {
	return &Ping{
		Seq:           seq,
		ForwardRoute:  copyRoute(forwardRoute),
		BackwardRoute: copyRoute(backwardRoute),
		Gossip:        copyGossip(gossip),
	}
}

func (p *Ping) Type() MessageType {
	return MessageTypePing
}

// Pong is the response to a Ping, routed back to the prober along
// BackwardRoute.
type Pong struct {
	Seq int64

	BackwardRoute []Address

	Gossip []MemberUpdate
}

func NewPong(seq int64, backwardRoute []Address, gossip []MemberUpdate) *Pong {
	return &Pong{
		Seq:           seq,
		BackwardRoute: copyRoute(backwardRoute),
		Gossip:        copyGossip(gossip),
	}
}

func (p *Pong) Type() MessageType {
	return MessageTypePong
}

var _ Message = &Ping{}
var _ Message = &Pong{}

func copyRoute(route []Address) []Address {
	c := make([]Address, len(route))
	copy(c, route)
	return c
}

func copyGossip(gossip []MemberUpdate) []MemberUpdate {
	c := make([]MemberUpdate, len(gossip))
	copy(c, gossip)
	return c
}
