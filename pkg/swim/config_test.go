package swim

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		update func(c *Config)
		errMsg string
	}{
		{
			name:   "ok",
			update: func(_ *Config) {},
		},
		{
			name:   "missing ping timeout",
			update: func(c *Config) { c.PingTimeout = 0 },
			errMsg: "missing ping timeout",
		},
		{
			name:   "missing probe interval",
			update: func(c *Config) { c.ProbeInterval = 0 },
			errMsg: "missing probe interval",
		},
		{
			name:   "negative n indirect",
			update: func(c *Config) { c.NIndirect = -1 },
			errMsg: "negative n indirect",
		},
		{
			name:   "negative gossip fanout",
			update: func(c *Config) { c.GossipFanout = -1 },
			errMsg: "negative gossip fanout",
		},
		{
			name:   "failure timeout less than ping timeout",
			update: func(c *Config) { c.FailureTimeout = time.Millisecond * 500 },
			errMsg: "failure timeout must exceed ping timeout: 500ms <= 1s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := DefaultConfig()
			tt.update(&conf)

			err := conf.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.errMsg)
			}
		})
	}
}

func TestConfig_RegisterFlags(t *testing.T) {
	conf := DefaultConfig()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	conf.RegisterFlags(fs, "")
	require.NoError(t, fs.Parse([]string{
		"--swim.ping-timeout", "100ms",
		"--swim.n-indirect", "3",
	}))

	assert.Equal(t, time.Millisecond*100, conf.PingTimeout)
	assert.Equal(t, 3, conf.NIndirect)
	// Unset flags keep their defaults.
	assert.Equal(t, 10, conf.GossipFanout)
}
