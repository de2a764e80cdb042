package simulation

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/andydunstall/swim/pkg/swim"
)

const (
	TransportMemory = "memory"
	TransportUDP    = "udp"
)

type ChurnConfig struct {
	// Interval is the interval at which each agent decides whether to fail
	// or recover its node.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Probability is the probability in [0, 1] that an agent toggles its
	// node between failed and recovered each interval.
	Probability float64 `json:"probability" yaml:"probability"`
}

func (c *ChurnConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("missing interval")
	}
	if c.Probability < 0 || c.Probability > 1 {
		return fmt.Errorf("probability must be in [0, 1]: %v", c.Probability)
	}
	return nil
}

type Config struct {
	// Nodes is the number of nodes in the group.
	Nodes int `json:"nodes" yaml:"nodes"`

	// JoinPhase is the duration to wait after joining before starting the
	// agents.
	JoinPhase time.Duration `json:"join_phase" yaml:"join_phase"`

	// Duration is the duration to run the agents for.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// ReportInterval is the interval to write the state of each node.
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`

	// Transport is the transport connecting the nodes. Either 'memory' or
	// 'udp'.
	Transport string `json:"transport" yaml:"transport"`

	// DropRate is the probability any message is dropped. Only supported
	// by the memory transport.
	DropRate float64 `json:"drop_rate" yaml:"drop_rate"`

	Churn ChurnConfig `json:"churn" yaml:"churn"`

	Swim swim.Config `json:"swim" yaml:"swim"`
}

func Default() *Config {
	return &Config{
		Nodes:          100,
		JoinPhase:      time.Second * 5,
		Duration:       time.Minute * 5,
		ReportInterval: time.Second,
		Transport:      TransportMemory,
		Churn: ChurnConfig{
			Interval:    time.Second,
			Probability: 0.01,
		},
		Swim: swim.DefaultConfig(),
	}
}

func (c *Config) Validate() error {
	if c.Nodes <= 0 {
		return fmt.Errorf("nodes must be positive")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("missing duration")
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("missing report interval")
	}
	switch c.Transport {
	case TransportMemory:
	case TransportUDP:
		if c.DropRate != 0 {
			return fmt.Errorf("drop rate not supported by udp transport")
		}
	default:
		return fmt.Errorf("unsupported transport: %s", c.Transport)
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate must be in [0, 1]: %v", c.DropRate)
	}
	if err := c.Churn.Validate(); err != nil {
		return fmt.Errorf("churn: %w", err)
	}
	if err := c.Swim.Validate(); err != nil {
		return fmt.Errorf("swim: %w", err)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(
		&c.Nodes,
		"nodes",
		c.Nodes,
		`
The number of nodes in the group.

The first node is the seed that every other node joins.`,
	)
	fs.DurationVar(
		&c.JoinPhase,
		"join-phase",
		c.JoinPhase,
		`
The duration to wait after the nodes join before starting the churn agents,
giving membership time to propagate.`,
	)
	fs.DurationVar(
		&c.Duration,
		"duration",
		c.Duration,
		`
The duration to run the simulation for once the agents start.`,
	)
	fs.DurationVar(
		&c.ReportInterval,
		"report-interval",
		c.ReportInterval,
		`
The interval to output the state of each node.

Each report is a single line containing the report number followed by one
character per node. The character is the size of the nodes view of the group
modulo 10, 'F' if the node is failed or 'S' if the agent has stopped.`,
	)
	fs.StringVar(
		&c.Transport,
		"transport",
		c.Transport,
		`
The transport connecting the nodes. Either 'memory' or 'udp'.

The 'udp' transport binds a UDP socket on the loopback interface for each
node.`,
	)
	fs.Float64Var(
		&c.DropRate,
		"network.drop-rate",
		c.DropRate,
		`
The probability in [0, 1] that any message is dropped. Only supported by the
'memory' transport.`,
	)
	fs.DurationVar(
		&c.Churn.Interval,
		"churn.interval",
		c.Churn.Interval,
		`
The interval at which each agent decides whether to fail or recover its node.`,
	)
	fs.Float64Var(
		&c.Churn.Probability,
		"churn.probability",
		c.Churn.Probability,
		`
The probability in [0, 1] that an agent toggles its node between failed and
recovered each interval. Zero disables churn.`,
	)

	c.Swim.RegisterFlags(fs, "")
}
