package simulation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
)

// Agent drives a node during the simulation.
type Agent interface {
	// Start starts driving the node.
	Start()

	// Stop stops driving the node and removes it from the group.
	Stop()

	// State returns a single character summarising the agent state.
	State() rune
}

// ChurnAgent randomly fails and recovers its node.
type ChurnAgent struct {
	node *swim.Node

	conf ChurnConfig

	running    *atomic.Bool
	failures   *atomic.Int64
	recoveries *atomic.Int64

	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	logger log.Logger
}

func NewChurnAgent(node *swim.Node, conf ChurnConfig, logger log.Logger) *ChurnAgent {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChurnAgent{
		node:       node,
		conf:       conf,
		running:    atomic.NewBool(false),
		failures:   atomic.NewInt64(0),
		recoveries: atomic.NewInt64(0),
		ctx:        ctx,
		cancel:     cancel,
		logger: logger.WithSubsystem("simulation").With(
			zap.String("node", node.Addr().String()),
		),
	}
}

func (a *ChurnAgent) Start() {
	if !a.running.CompareAndSwap(false, true) {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.churn()
	}()
}

func (a *ChurnAgent) Stop() {
	a.cancel()
	a.wg.Wait()

	a.node.Leave()
	a.running.Store(false)
}

// State returns the size of the nodes view of the group modulo 10, or 'F'
// if the node is failed or 'S' if the agent isn't running.
func (a *ChurnAgent) State() rune {
	if !a.running.Load() {
		return 'S'
	}
	if a.node.Failed() {
		return 'F'
	}
	return rune('0' + len(a.node.Group())%10)
}

// Failures returns the number of times the agent failed its node.
func (a *ChurnAgent) Failures() int64 {
	return a.failures.Load()
}

// Recoveries returns the number of times the agent recovered its node.
func (a *ChurnAgent) Recoveries() int64 {
	return a.recoveries.Load()
}

func (a *ChurnAgent) churn() {
	if a.conf.Probability == 0 {
		return
	}

	ticker := time.NewTicker(a.conf.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}

		if rand.Float64() >= a.conf.Probability {
			continue
		}

		if a.node.Failed() {
			a.node.Recover()
			a.recoveries.Inc()
			a.logger.Debug("recovered node")
		} else {
			a.node.Fail()
			a.failures.Inc()
			a.logger.Debug("failed node")
		}
	}
}

var _ Agent = &ChurnAgent{}
