package transport

import (
	"fmt"

	"github.com/spf13/pflag"
)

type Config struct {
	// BindAddr is the address to bind to listen for protocol packets.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other nodes.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// MaxPacketSize is the maximum size of any packet sent or received.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`

	// InboundBuffer is the number of decoded packets that can be queued
	// waiting for the node. Packets that arrive when the queue is full are
	// dropped.
	InboundBuffer int `json:"inbound_buffer" yaml:"inbound_buffer"`
}

func DefaultConfig() Config {
	return Config{
		BindAddr:      ":7946",
		MaxPacketSize: 65507,
		InboundBuffer: 1024,
	}
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("missing max packet size")
	}
	if c.InboundBuffer < 0 {
		return fmt.Errorf("inbound buffer must not be negative")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	prefix = prefix + "transport."

	fs.StringVar(
		&c.BindAddr,
		prefix+"bind-addr",
		c.BindAddr,
		`
The host/port to listen for protocol packets from other members.

If the host is unspecified it defaults to all listeners, such as
a bind address ':7946' will listen on '0.0.0.0:7946'`,
	)

	fs.StringVar(
		&c.AdvertiseAddr,
		prefix+"advertise-addr",
		c.AdvertiseAddr,
		`
Address to advertise to other members of the group. This is the address other
members will probe the node at, and is how the node is identified in the
membership table.

The advertise address must be an IP and port, such as '10.26.104.45:7946'.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':7946') the nodes
private IP will be used, such as a bind address of ':7946' may have an
advertise address of '10.26.104.14:7946'.`,
	)

	fs.IntVar(
		&c.MaxPacketSize,
		prefix+"max-packet-size",
		c.MaxPacketSize,
		`
The maximum size of any packet sent or received.

Messages that encode to more than the limit fail to send. Piggybacked gossip
grows with '--swim.gossip-fanout', so a lower limit may need a lower
fanout.`,
	)

	fs.IntVar(
		&c.InboundBuffer,
		prefix+"inbound-buffer",
		c.InboundBuffer,
		`
The number of received packets that can be queued for the node before
packets are dropped.`,
	)
}
