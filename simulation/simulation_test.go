package simulation

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
)

func testConfig() *Config {
	conf := Default()
	conf.Nodes = 5
	conf.JoinPhase = time.Millisecond * 500
	conf.Duration = time.Millisecond * 550
	conf.ReportInterval = time.Millisecond * 100
	conf.Churn.Probability = 0
	conf.Swim = swim.Config{
		PingTimeout:    time.Millisecond * 100,
		ProbeInterval:  time.Millisecond * 20,
		NIndirect:      1,
		GossipFanout:   10,
		FailureTimeout: time.Millisecond * 500,
	}
	return conf
}

func TestSimulation_Run(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		var out bytes.Buffer
		sim := New(testConfig(), &out, log.NewNopLogger())
		report, err := sim.Run(context.Background())
		require.NoError(t, err)

		lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
		require.GreaterOrEqual(t, len(lines), 4)
		assert.Equal(t, "   1:55555", lines[0])
		assert.Equal(t, "   2:55555", lines[1])

		assert.Equal(t, 5, report.Nodes)
		assert.Equal(t, 0, report.FailedNodes)
		assert.Equal(t, int64(0), report.Failures)
		assert.Equal(t, 5, report.MinGroupSize)
		assert.Equal(t, 5, report.MaxGroupSize)
	})

	t.Run("udp", func(t *testing.T) {
		conf := testConfig()
		conf.Transport = TransportUDP

		var out bytes.Buffer
		sim := New(conf, &out, log.NewNopLogger())
		report, err := sim.Run(context.Background())
		require.NoError(t, err)

		lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
		require.NotEmpty(t, lines)
		assert.Equal(t, "   1:55555", lines[0])
		assert.Equal(t, 5, report.MaxGroupSize)
	})

	t.Run("cancelled", func(t *testing.T) {
		conf := testConfig()
		conf.Duration = time.Minute

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(conf.JoinPhase + time.Millisecond*250)
			cancel()
		}()

		var out bytes.Buffer
		sim := New(conf, &out, log.NewNopLogger())
		report, err := sim.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, report.Nodes)

		// Every node has left the group.
		for _, node := range sim.Nodes() {
			assert.True(t, node.Failed())
		}
	})
}

func TestSimulation_StatusLine(t *testing.T) {
	conf := testConfig()
	conf.Nodes = 3

	sim := New(conf, &bytes.Buffer{}, log.NewNopLogger())
	require.NoError(t, sim.start())
	defer sim.close()

	// The report number is padded to four characters.
	assert.Equal(t, "   7:SSS", sim.statusLine(7))
	assert.Equal(t, "1234:SSS", sim.statusLine(1234))

	sim.agents[0].Start()
	sim.nodes[1].Fail()
	sim.agents[1].Start()
	assert.Equal(t, "   8:1FS", sim.statusLine(8))

	sim.stop()
}

func TestChurnAgent(t *testing.T) {
	conf := testConfig()
	conf.Nodes = 1

	sim := New(conf, &bytes.Buffer{}, log.NewNopLogger())
	require.NoError(t, sim.start())
	defer sim.close()

	agent := sim.agents[0]
	assert.Equal(t, 'S', agent.State())

	agent.Start()
	assert.Equal(t, '1', agent.State())

	sim.nodes[0].Fail()
	assert.Equal(t, 'F', agent.State())
	sim.nodes[0].Recover()
	assert.Equal(t, '1', agent.State())

	agent.Stop()
	assert.Equal(t, 'S', agent.State())
	assert.True(t, sim.nodes[0].Failed())
}

func TestChurnAgent_Churn(t *testing.T) {
	conf := testConfig()
	conf.Nodes = 1
	conf.Churn = ChurnConfig{
		Interval:    time.Millisecond,
		Probability: 1,
	}

	sim := New(conf, &bytes.Buffer{}, log.NewNopLogger())
	require.NoError(t, sim.start())
	defer sim.close()

	agent := sim.agents[0]
	agent.Start()

	// With probability 1 the node toggles every interval.
	assert.Eventually(t, func() bool {
		return agent.Failures() >= 2 && agent.Recoveries() >= 2
	}, time.Second, time.Millisecond)

	agent.Stop()
	failures := agent.Failures()
	time.Sleep(time.Millisecond * 10)
	assert.Equal(t, failures, agent.Failures())
}

func TestWriteReport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteReport(&out, Report{
		Nodes:        3,
		Failures:     2,
		Recoveries:   1,
		FailedNodes:  1,
		MinGroupSize: 2,
		MaxGroupSize: 2,
	}))
	assert.Contains(t, out.String(), "nodes: 3\n")
	assert.Contains(t, out.String(), "failures: 2\n")
	assert.Contains(t, out.String(), "failed_nodes: 1\n")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		update func(conf *Config)
		errMsg string
	}{
		{
			name:   "no nodes",
			update: func(conf *Config) { conf.Nodes = 0 },
			errMsg: "nodes must be positive",
		},
		{
			name:   "unsupported transport",
			update: func(conf *Config) { conf.Transport = "tcp" },
			errMsg: "unsupported transport: tcp",
		},
		{
			name: "udp drop rate",
			update: func(conf *Config) {
				conf.Transport = TransportUDP
				conf.DropRate = 0.1
			},
			errMsg: "drop rate not supported by udp transport",
		},
		{
			name:   "churn probability",
			update: func(conf *Config) { conf.Churn.Probability = 2 },
			errMsg: "churn: probability must be in [0, 1]: 2",
		},
		{
			name:   "swim",
			update: func(conf *Config) { conf.Swim.PingTimeout = 0 },
			errMsg: "swim: missing ping timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := Default()
			tt.update(conf)
			assert.EqualError(t, conf.Validate(), tt.errMsg)
		})
	}

	conf := Default()
	assert.NoError(t, conf.Validate())
}
