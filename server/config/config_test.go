package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/swim/pkg/config"
	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
	"github.com/andydunstall/swim/pkg/transport"
)

// Tests the default configuration is valid.
func TestConfig_Default(t *testing.T) {
	conf := Default()
	assert.NoError(t, conf.Validate())
}

// Tests loading the server configuration from YAML.
func TestConfig_LoadYAML(t *testing.T) {
	yaml := `
swim:
  ping_timeout: 500ms
  probe_interval: 100ms
  n_indirect: 3
  gossip_fanout: 5
  failure_timeout: 5s

transport:
  bind_addr: 10.15.104.25:7946
  advertise_addr: 1.2.3.4:7946
  max_packet_size: 1400
  inbound_buffer: 512

admin:
  bind_addr: 10.15.104.25:7947

cluster:
  join:
    - 10.26.104.14
    - 10.26.104.75
  join_retries: 3
  abort_if_join_fails: false

log:
  level: info
  subsystems:
    - foo
    - bar
  format: console
  output: stdout

grace_period: 2m
`

	path := filepath.Join(t.TempDir(), "swim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	conf := Default()
	require.NoError(t, config.Load(conf, path, false))

	expectedConf := &Config{
		Swim: swim.Config{
			PingTimeout:    time.Millisecond * 500,
			ProbeInterval:  time.Millisecond * 100,
			NIndirect:      3,
			GossipFanout:   5,
			FailureTimeout: time.Second * 5,
		},
		Transport: transport.Config{
			BindAddr:      "10.15.104.25:7946",
			AdvertiseAddr: "1.2.3.4:7946",
			MaxPacketSize: 1400,
			InboundBuffer: 512,
		},
		Admin: AdminConfig{
			BindAddr: "10.15.104.25:7947",
		},
		Cluster: ClusterConfig{
			Join:             []string{"10.26.104.14", "10.26.104.75"},
			JoinRetries:      3,
			AbortIfJoinFails: false,
		},
		Log: log.Config{
			Level:      "info",
			Subsystems: []string{"foo", "bar"},
			Format:     "console",
			Output:     "stdout",
		},
		GracePeriod: time.Minute * 2,
	}
	assert.Equal(t, expectedConf, conf)
	assert.NoError(t, conf.Validate())
}

// Tests loading the server configuration from flags.
func TestConfig_LoadFlags(t *testing.T) {
	args := []string{
		"--swim.ping-timeout", "500ms",
		"--swim.probe-interval", "100ms",
		"--swim.n-indirect", "3",
		"--swim.gossip-fanout", "5",
		"--swim.failure-timeout", "5s",
		"--transport.bind-addr", "10.15.104.25:7946",
		"--transport.advertise-addr", "1.2.3.4:7946",
		"--transport.max-packet-size", "1400",
		"--transport.inbound-buffer", "512",
		"--admin.bind-addr", "10.15.104.25:7947",
		"--cluster.join", "10.26.104.14,10.26.104.75",
		"--cluster.join-retries", "3",
		"--cluster.abort-if-join-fails=false",
		"--log.level", "info",
		"--log.subsystems", "foo,bar",
		"--log.format", "console",
		"--log.output", "stdout",
		"--grace-period", "2m",
	}

	conf := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	conf.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))

	expectedConf := &Config{
		Swim: swim.Config{
			PingTimeout:    time.Millisecond * 500,
			ProbeInterval:  time.Millisecond * 100,
			NIndirect:      3,
			GossipFanout:   5,
			FailureTimeout: time.Second * 5,
		},
		Transport: transport.Config{
			BindAddr:      "10.15.104.25:7946",
			AdvertiseAddr: "1.2.3.4:7946",
			MaxPacketSize: 1400,
			InboundBuffer: 512,
		},
		Admin: AdminConfig{
			BindAddr: "10.15.104.25:7947",
		},
		Cluster: ClusterConfig{
			Join:             []string{"10.26.104.14", "10.26.104.75"},
			JoinRetries:      3,
			AbortIfJoinFails: false,
		},
		Log: log.Config{
			Level:      "info",
			Subsystems: []string{"foo", "bar"},
			Format:     "console",
			Output:     "stdout",
		},
		GracePeriod: time.Minute * 2,
	}
	assert.Equal(t, expectedConf, conf)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("invalid swim", func(t *testing.T) {
		conf := Default()
		conf.Swim.FailureTimeout = conf.Swim.PingTimeout
		assert.ErrorContains(t, conf.Validate(), "swim: failure timeout must exceed ping timeout")
	})

	t.Run("missing admin bind addr", func(t *testing.T) {
		conf := Default()
		conf.Admin.BindAddr = ""
		assert.EqualError(t, conf.Validate(), "admin: missing bind addr")
	})

	t.Run("missing grace period", func(t *testing.T) {
		conf := Default()
		conf.GracePeriod = 0
		assert.EqualError(t, conf.Validate(), "missing grace period")
	})
}
