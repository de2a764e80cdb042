package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
	"github.com/andydunstall/swim/pkg/transport"
)

type AdminConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP
	// connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *AdminConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

type ClusterConfig struct {
	// Join contains a list of addresses of members in the group to join.
	Join []string `json:"join" yaml:"join"`

	// JoinRetries is the number of times to retry joining before giving up.
	// Zero retries forever.
	JoinRetries int `json:"join_retries" yaml:"join_retries"`

	AbortIfJoinFails bool `json:"abort_if_join_fails" yaml:"abort_if_join_fails"`
}

func (c *ClusterConfig) Validate() error {
	if c.JoinRetries < 0 {
		return fmt.Errorf("join retries must not be negative")
	}
	return nil
}

type Config struct {
	Swim      swim.Config      `json:"swim" yaml:"swim"`
	Transport transport.Config `json:"transport" yaml:"transport"`
	Admin     AdminConfig      `json:"admin" yaml:"admin"`
	Cluster   ClusterConfig    `json:"cluster" yaml:"cluster"`
	Log       log.Config       `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the node. During
	// the grace period the node stops probing and the admin server waits
	// for active requests to complete.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

func Default() *Config {
	return &Config{
		Swim:      swim.DefaultConfig(),
		Transport: transport.DefaultConfig(),
		Admin: AdminConfig{
			BindAddr: ":7947",
		},
		Cluster: ClusterConfig{
			JoinRetries:      5,
			AbortIfJoinFails: true,
		},
		Log:         log.DefaultConfig(),
		GracePeriod: time.Second * 30,
	}
}

func (c *Config) Validate() error {
	if err := c.Swim.Validate(); err != nil {
		return fmt.Errorf("swim: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if c.GracePeriod == 0 {
		return fmt.Errorf("missing grace period")
	}

	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.Swim.RegisterFlags(fs, "")

	c.Transport.RegisterFlags(fs, "")

	fs.StringVar(
		&c.Admin.BindAddr,
		"admin.bind-addr",
		c.Admin.BindAddr,
		`
The host/port to listen for incoming admin connections.

The admin server exposes the nodes metrics, health and membership status.

If the host is unspecified it defaults to all listeners, such as
'--admin.bind-addr :7947' will listen on '0.0.0.0:7947'`,
	)

	fs.StringSliceVar(
		&c.Cluster.Join,
		"cluster.join",
		c.Cluster.Join,
		`
A list of addresses of members in the group to join.

This may be either addresses of specific nodes, such as
'--cluster.join 10.26.104.14,10.26.104.75', or a domain that resolves to
the addresses of the nodes in the group (e.g. a Kubernetes headless
service), such as '--cluster.join swim.prod-swim-ns'.

Each address must include the host, and may optionally include a port. If no
port is given, the transport port of this node is used.

Note each node propagates membership information to the other known nodes,
so the initial set of configured members only needs to be a subset of nodes.`,
	)
	fs.IntVar(
		&c.Cluster.JoinRetries,
		"cluster.join-retries",
		c.Cluster.JoinRetries,
		`
The number of times to retry joining the group if no member responds, with
exponential backoff between attempts. Zero retries forever.`,
	)
	fs.BoolVar(
		&c.Cluster.AbortIfJoinFails,
		"cluster.abort-if-join-fails",
		c.Cluster.AbortIfJoinFails,
		`
Whether the node should abort if it is configured with members to join
(excluding itself) but fails to join any members.`,
	)

	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		c.GracePeriod,
		`
Maximum duration after a shutdown signal is received (SIGTERM or
SIGINT) to gracefully shutdown the node before terminating.`,
	)
}
