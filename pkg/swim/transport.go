package swim

import "context"

// Transport sends and receives envelopes.
//
// Delivery is at most once. Envelopes may be dropped or reordered but the
// transport never duplicates them.
type Transport interface {
	// Addr returns the address other nodes use to reach this node.
	Addr() Address

	// Inbound returns the channel of received envelopes. The channel is
	// closed when the transport is closed.
	Inbound() <-chan Envelope

	// Send sends the envelope to envelope.To. A nil error doesn't mean the
	// envelope was delivered.
	Send(ctx context.Context, envelope Envelope) error

	Close() error
}
