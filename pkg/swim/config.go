package swim

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// PingTimeout is the duration to wait for a pong before considering a
	// probe failed.
	PingTimeout time.Duration `json:"ping_timeout" yaml:"ping_timeout"`

	// ProbeInterval is the minimum interval between probes.
	ProbeInterval time.Duration `json:"probe_interval" yaml:"probe_interval"`

	// NIndirect is the number of relays to use for an indirect probe.
	NIndirect int `json:"n_indirect" yaml:"n_indirect"`

	// GossipFanout is the maximum number of members (excluding the local
	// node) included in each gossip snippet.
	GossipFanout int `json:"gossip_fanout" yaml:"gossip_fanout"`

	// FailureTimeout is the duration after which a member that hasn't been
	// heard from is no longer considered part of the group.
	FailureTimeout time.Duration `json:"failure_timeout" yaml:"failure_timeout"`
}

func DefaultConfig() Config {
	return Config{
		PingTimeout:    time.Second,
		ProbeInterval:  time.Millisecond * 200,
		NIndirect:      10,
		GossipFanout:   10,
		FailureTimeout: time.Second * 10,
	}
}

func (c *Config) Validate() error {
	if c.PingTimeout <= 0 {
		return fmt.Errorf("missing ping timeout")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("missing probe interval")
	}
	if c.NIndirect < 0 {
		return fmt.Errorf("negative n indirect")
	}
	if c.GossipFanout < 0 {
		return fmt.Errorf("negative gossip fanout")
	}
	if c.FailureTimeout <= 0 {
		return fmt.Errorf("missing failure timeout")
	}
	if c.FailureTimeout <= c.PingTimeout {
		return fmt.Errorf(
			"failure timeout must exceed ping timeout: %s <= %s",
			c.FailureTimeout, c.PingTimeout,
		)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	prefix = prefix + "swim."

	fs.DurationVar(
		&c.PingTimeout,
		prefix+"ping-timeout",
		c.PingTimeout,
		`
The duration to wait for a pong after pinging a member.

If the member doesn't respond within the timeout, the node asks other members
to probe the member on its behalf (an indirect probe), which uses the same
timeout.`,
	)

	fs.DurationVar(
		&c.ProbeInterval,
		prefix+"probe-interval",
		c.ProbeInterval,
		`
The minimum interval between probes.

Each probe selects the next member from a random permutation of the known
members, so every member is probed once per pass.`,
	)

	fs.IntVar(
		&c.NIndirect,
		prefix+"n-indirect",
		c.NIndirect,
		`
The number of relay members to use when a direct probe times out.

The probe succeeds if any relay gets a response from the target.`,
	)

	fs.IntVar(
		&c.GossipFanout,
		prefix+"gossip-fanout",
		c.GossipFanout,
		`
The maximum number of members to piggyback on each ping and pong.

The local node is always included in addition to the sampled members. Larger
values propagate membership faster though increase the packet size.`,
	)

	fs.DurationVar(
		&c.FailureTimeout,
		prefix+"failure-timeout",
		c.FailureTimeout,
		`
The duration after which a member that hasn't been heard from is no longer
considered part of the group.

Members are never forgotten, so if a member is heard from again it rejoins the
group.`,
	)
}
