// Package simulation runs a group of nodes in a single process and reports
// how each nodes view of the group evolves as nodes fail and recover.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
	"github.com/andydunstall/swim/pkg/transport"
)

// Report summarises the simulation once it completes.
type Report struct {
	Nodes      int           `json:"nodes" yaml:"nodes"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Failures   int64         `json:"failures" yaml:"failures"`
	Recoveries int64         `json:"recoveries" yaml:"recoveries"`
	// FailedNodes is the number of nodes failed when the agents stopped.
	FailedNodes int `json:"failed_nodes" yaml:"failed_nodes"`
	// MinGroupSize and MaxGroupSize are the smallest and largest views of
	// the group among nodes that weren't failed when the agents stopped.
	MinGroupSize int `json:"min_group_size" yaml:"min_group_size"`
	MaxGroupSize int `json:"max_group_size" yaml:"max_group_size"`
}

// Simulation runs a group of nodes, each driven by a churn agent.
type Simulation struct {
	conf *Config

	network    *transport.MemNetwork
	transports []swim.Transport
	nodes      []*swim.Node
	agents     []*ChurnAgent

	out io.Writer

	logger log.Logger
}

// New creates a simulation that writes its state reports to out.
func New(conf *Config, out io.Writer, logger log.Logger) *Simulation {
	return &Simulation{
		conf:   conf,
		out:    out,
		logger: logger.WithSubsystem("simulation"),
	}
}

// Run runs the simulation until the configured duration expires or ctx is
// cancelled.
//
// Every node joins the first node, then after the join phase each nodes
// agent is started. Once per report interval a line is written containing
// the state of every agent. Finally the agents are stopped and the nodes
// closed.
func (s *Simulation) Run(ctx context.Context) (Report, error) {
	if err := s.start(); err != nil {
		s.close()
		return Report{}, err
	}
	defer s.close()

	if err := s.join(ctx); err != nil {
		return Report{}, err
	}

	s.logger.Info(
		"joined nodes; waiting for join phase",
		zap.Duration("join-phase", s.conf.JoinPhase),
	)
	if !sleep(ctx, s.conf.JoinPhase) {
		return Report{}, ctx.Err()
	}

	for _, agent := range s.agents {
		agent.Start()
	}

	s.logger.Info("started agents", zap.Int("agents", len(s.agents)))

	err := s.report(ctx)

	report := s.summary()

	s.stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return report, err
	}
	return report, nil
}

// WriteReport writes the report to w as YAML.
func WriteReport(w io.Writer, report Report) error {
	b, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Nodes returns the simulated nodes.
func (s *Simulation) Nodes() []*swim.Node {
	return s.nodes
}

func (s *Simulation) start() error {
	if s.conf.Transport == TransportMemory {
		s.network = transport.NewMemNetwork(
			transport.WithLogger(s.logger),
		)
		s.network.SetDropRate(s.conf.DropRate)
	}

	for i := 0; i != s.conf.Nodes; i++ {
		t, err := s.listen()
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		s.transports = append(s.transports, t)

		node := swim.NewNode(
			s.conf.Swim,
			t,
			swim.WithLogger(s.logger),
		)
		s.nodes = append(s.nodes, node)
		s.agents = append(s.agents, NewChurnAgent(node, s.conf.Churn, s.logger))
	}
	return nil
}

func (s *Simulation) listen() (swim.Transport, error) {
	if s.network != nil {
		return s.network.ListenNext(), nil
	}
	t, err := transport.ListenUDP(
		"127.0.0.1:0",
		swim.Address{},
		transport.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Simulation) join(ctx context.Context) error {
	seed := s.nodes[0].Addr()

	g, ctx := errgroup.WithContext(ctx)
	for _, node := range s.nodes[1:] {
		g.Go(func() error {
			if !node.Join(ctx, seed) {
				// The node may still be discovered through gossip.
				s.logger.Warn(
					"failed to join seed",
					zap.String("node", node.Addr().String()),
					zap.String("seed", seed.String()),
				)
			}
			return ctx.Err()
		})
	}
	return g.Wait()
}

func (s *Simulation) report(ctx context.Context) error {
	ticker := time.NewTicker(s.conf.ReportInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(s.conf.Duration)
	defer deadline.Stop()

	for t := 1; ; t++ {
		select {
		case <-ticker.C:
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

		if _, err := fmt.Fprintln(s.out, s.statusLine(t)); err != nil {
			return fmt.Errorf("write status: %w", err)
		}
	}
}

func (s *Simulation) statusLine(t int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%4d:", t)
	for _, agent := range s.agents {
		b.WriteRune(agent.State())
	}
	return b.String()
}

func (s *Simulation) summary() Report {
	report := Report{
		Nodes:    len(s.nodes),
		Duration: s.conf.Duration,
	}
	for i, agent := range s.agents {
		report.Failures += agent.Failures()
		report.Recoveries += agent.Recoveries()

		node := s.nodes[i]
		if node.Failed() {
			report.FailedNodes++
			continue
		}

		size := len(node.Group())
		if report.MinGroupSize == 0 || size < report.MinGroupSize {
			report.MinGroupSize = size
		}
		if size > report.MaxGroupSize {
			report.MaxGroupSize = size
		}
	}
	return report
}

func (s *Simulation) stop() {
	var g errgroup.Group
	for _, agent := range s.agents {
		g.Go(func() error {
			agent.Stop()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("stopped agents")
}

func (s *Simulation) close() {
	for _, node := range s.nodes {
		_ = node.Close()
	}
	for _, t := range s.transports {
		if err := t.Close(); err != nil {
			s.logger.Warn("failed to close transport", zap.Error(err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
