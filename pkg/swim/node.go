package swim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/swim/pkg/log"
)

const (
	probeResultDirect   = "direct"
	probeResultIndirect = "indirect"
	probeResultFailed   = "failed"
)

// Node is a member of the group.
//
// The node runs two loops for its lifetime. The receiver loop handles
// inbound messages one at a time in arrival order, merging the piggybacked
// gossip, responding to and relaying pings, and relaying or delivering
// pongs. The prober loop repeatedly probes the next member in a random cycle
// of the known members.
type Node struct {
	config Config

	transport Transport

	table *membershipTable

	// cycle is only accessed by the prober loop.
	cycle *Cycle

	pongs *Correlator[int64, *Pong]

	// failed indicates the node is simulating a crash, so drops inbound
	// messages and doesn't probe.
	failed *atomic.Bool
	left   *atomic.Bool
	closed *atomic.Bool

	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	metrics *Metrics

	logger log.Logger
}

// NewNode creates a node using the given transport and starts the receiver
// and prober loops.
//
// The node initially only knows about itself. Use Join to discover the rest
// of the group.
func NewNode(config Config, transport Transport, opts ...Option) *Node {
	node := newNode(config, transport, opts...)
	node.start()
	return node
}

func newNode(config Config, transport Transport, opts ...Option) *Node {
	options := options{
		clock:   clock.New(),
		watcher: newNopWatcher(),
		metrics: NewMetrics(),
		logger:  log.NewNopLogger(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	logger := options.logger.WithSubsystem("swim").With(
		zap.String("addr", transport.Addr().String()),
	)

	table := newMembershipTable(
		transport.Addr(), options.clock, options.metrics, options.watcher,
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		config:    config,
		transport: transport,
		table:     table,
		cycle:     table.Cycle(),
		pongs:     NewCorrelator[int64, *Pong](),
		failed:    atomic.NewBool(false),
		left:      atomic.NewBool(false),
		closed:    atomic.NewBool(false),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   options.metrics,
		logger:    logger,
	}
}

// Addr returns the address of the local node.
func (n *Node) Addr() Address {
	return n.transport.Addr()
}

// Join attempts to join the group by probing the member at the given
// address.
//
// The ping carries the local node in its gossip, so the member discovers
// this node, and if the member responds its gossip is merged into the local
// membership table. Returns whether the member responded.
func (n *Node) Join(ctx context.Context, addr Address) bool {
	n.logger.Debug("join", zap.String("seed", addr.String()))
	return n.pingDirect(ctx, addr)
}

// Leave permanently stops the node from participating in the protocol.
//
// There is no leave message, so other members detect the node as failed
// once the failure timeout expires.
func (n *Node) Leave() {
	n.left.Store(true)
	n.failed.Store(true)

	n.logger.Info("left group")
}

// Fail simulates the node crashing. The node drops all inbound messages and
// stops probing until Recover is called.
func (n *Node) Fail() {
	if n.left.Load() {
		return
	}
	if n.failed.CompareAndSwap(false, true) {
		n.logger.Info("node failed")
	}
}

// Recover resumes a node stopped by Fail.
func (n *Node) Recover() {
	if n.left.Load() {
		return
	}
	if n.failed.CompareAndSwap(true, false) {
		n.logger.Info("node recovered")
	}
}

// Failed returns whether the node is failed or has left.
func (n *Node) Failed() bool {
	return n.failed.Load()
}

// Group returns the addresses of the members considered alive, sorted by
// address. The local node is always included.
func (n *Node) Group() []Address {
	return n.table.Live(n.config.FailureTimeout)
}

// Members returns the known state of each member, including members
// considered failed.
func (n *Node) Members() []Member {
	return n.table.Members()
}

// Member returns the known state of the member with the given address.
func (n *Node) Member(addr Address) (Member, bool) {
	return n.table.Member(addr)
}

// IsStale returns whether the member hasn't been heard from within the
// failure timeout.
func (n *Node) IsStale(m Member) bool {
	return n.table.IsStale(m, n.config.FailureTimeout)
}

func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// Close stops the receiver and prober loops and waits for them to exit.
// Probes in progress are abandoned.
//
// Close doesn't close the transport.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		// Already closed.
		return nil
	}

	n.cancel()
	n.wg.Wait()
	return nil
}

func (n *Node) start() {
	n.wg.Add(3)
	go func() {
		defer n.wg.Done()
		n.receiveLoop()
	}()
	go func() {
		defer n.wg.Done()
		n.probeLoop()
	}()
	go func() {
		defer n.wg.Done()
		n.livenessLoop()
	}()
}

func (n *Node) receiveLoop() {
	inbound := n.transport.Inbound()
	for {
		select {
		case envelope, ok := <-inbound:
			if !ok {
				return
			}
			if n.failed.Load() {
				continue
			}
			n.receive(n.ctx, envelope)
		case <-n.ctx.Done():
			return
		}
	}
}

// receive handles an inbound envelope. This includes sending any response,
// so the next envelope isn't handled until the response has been sent.
func (n *Node) receive(ctx context.Context, envelope Envelope) {
	n.table.Tick(n.Addr())

	switch m := envelope.Message.(type) {
	case *Ping:
		n.metrics.MessagesInbound.WithLabelValues(MessageTypePing.String()).Inc()
		n.table.MergeAll(m.Gossip)
		n.handlePing(ctx, envelope, m)
	case *Pong:
		n.metrics.MessagesInbound.WithLabelValues(MessageTypePong.String()).Inc()
		n.table.MergeAll(m.Gossip)
		n.handlePong(ctx, envelope, m)
	default:
		n.logger.Warn(
			"unsupported message",
			zap.String("from", envelope.From.String()),
			zap.String("type", fmt.Sprintf("%T", m)),
		)
	}
}

func (n *Node) handlePing(ctx context.Context, envelope Envelope, ping *Ping) {
	// If there are no more hops, we are the probe target so respond.
	if len(ping.ForwardRoute) == 0 {
		pong := envelope.RouteBack(ping.BackwardRoute, func(route []Address) Message {
			return NewPong(ping.Seq, route, n.table.Gossip(n.config.GossipFanout))
		})
		_ = n.send(ctx, pong)
		return
	}

	// Otherwise relay the ping to the next hop, adding ourselves to the
	// backward route so the pong is relayed back through us.
	self := n.table.Self()
	forward := envelope.RouteForward(ping.ForwardRoute, func(_ Address, route []Address) Message {
		backwardRoute := append([]Address{self.Addr}, ping.BackwardRoute...)
		gossip := append(copyGossip(ping.Gossip), self.Update())
		return NewPing(ping.Seq, route, backwardRoute, gossip)
	})

	n.logger.Debug(
		"relay ping",
		zap.Int64("seq", ping.Seq),
		zap.String("to", forward.To.String()),
	)
	n.metrics.MessagesRelayed.WithLabelValues(MessageTypePing.String()).Inc()

	_ = n.send(ctx, forward)
}

func (n *Node) handlePong(ctx context.Context, envelope Envelope, pong *Pong) {
	// If there are no more hops, we are the prober.
	if len(pong.BackwardRoute) == 0 {
		if !n.pongs.Offer(pong.Seq, pong) {
			// The probe has already timed out.
			n.logger.Debug(
				"discarding unexpected pong",
				zap.Int64("seq", pong.Seq),
				zap.String("from", envelope.From.String()),
			)
		}
		return
	}

	self := n.table.Self()
	backward := envelope.RouteBack(pong.BackwardRoute, func(route []Address) Message {
		gossip := append(copyGossip(pong.Gossip), self.Update())
		return NewPong(pong.Seq, route, gossip)
	})

	n.logger.Debug(
		"relay pong",
		zap.Int64("seq", pong.Seq),
		zap.String("to", backward.To.String()),
	)
	n.metrics.MessagesRelayed.WithLabelValues(MessageTypePong.String()).Inc()

	_ = n.send(ctx, backward)
}

func (n *Node) probeLoop() {
	ticker := time.NewTicker(n.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-n.ctx.Done():
			return
		}

		if n.failed.Load() {
			continue
		}

		target, ok := n.nextTarget()
		if !ok {
			continue
		}

		n.probe(n.ctx, target)
	}
}

// nextTarget returns the next member in the probe cycle other than the local
// node. Returns false if the local node is the only member.
func (n *Node) nextTarget() (Address, bool) {
	self := n.Addr()
	// Self is drawn at most twice in a row, at the end of one pass and the
	// start of the next.
	for i := 0; i != 3; i++ {
		member := n.cycle.Next()
		if member.Addr != self {
			return member.Addr, true
		}
	}
	return Address{}, false
}

// probe probes the member with the given address, first directly then
// indirectly via relays if the direct probe times out.
//
// A failed probe has no side effect. The member will eventually be
// considered failed if no other member hears from it either.
func (n *Node) probe(ctx context.Context, target Address) bool {
	if n.pingDirect(ctx, target) {
		n.metrics.Probes.WithLabelValues(probeResultDirect).Inc()
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	relays := n.selectRelays(target)
	if len(relays) > 0 && n.pingIndirect(ctx, target, relays) {
		n.metrics.Probes.WithLabelValues(probeResultIndirect).Inc()
		return true
	}

	n.logger.Debug(
		"probe failed",
		zap.String("target", target.String()),
		zap.Int("relays", len(relays)),
	)
	n.metrics.Probes.WithLabelValues(probeResultFailed).Inc()

	return false
}

// pingDirect sends a ping to the target and waits for a pong.
func (n *Node) pingDirect(ctx context.Context, target Address) bool {
	seq := nextSeq()

	// Register before sending so a fast pong isn't missed.
	pending := n.pongs.Expect(seq)

	ping := NewPing(seq, nil, nil, n.table.Gossip(n.config.GossipFanout))
	if err := n.send(ctx, Envelope{
		From:    n.Addr(),
		To:      target,
		Message: ping,
	}); err != nil {
		pending.Cancel()
		return false
	}

	_, ok := pending.Wait(ctx, n.config.PingTimeout)
	return ok
}

// pingIndirect asks each relay to ping the target. Returns true if any relay
// gets a pong from the target.
func (n *Node) pingIndirect(ctx context.Context, target Address, relays []Address) bool {
	// Cancel any outstanding relays once one succeeds.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	self := n.Addr()
	results := make(chan bool, len(relays))
	for _, relay := range relays {
		seq := nextSeq()
		pending := n.pongs.Expect(seq)

		// Add ourselves as the final hop on the backward route so the relay
		// returns the pong to us.
		ping := NewPing(
			seq,
			[]Address{target},
			[]Address{self},
			n.table.Gossip(n.config.GossipFanout),
		)
		if err := n.send(ctx, Envelope{
			From:    self,
			To:      relay,
			Message: ping,
		}); err != nil {
			pending.Cancel()
			results <- false
			continue
		}

		go func() {
			_, ok := pending.Wait(ctx, n.config.PingTimeout)
			results <- ok
		}()
	}

	for range relays {
		if <-results {
			return true
		}
	}
	return false
}

// selectRelays selects up to NIndirect members to use as relays to probe
// target, excluding the local node and target.
//
// Relays are taken from the probe cycle. At most two passes of the cycle are
// drawn, so a selection starting mid-pass still sees every member and a small
// group can't loop forever.
func (n *Node) selectRelays(target Address) []Address {
	if n.config.NIndirect == 0 {
		return nil
	}

	self := n.Addr()
	selected := make(map[Address]struct{})
	var relays []Address
	draws := n.cycle.Size() * 2
	for i := 0; i != draws && len(relays) < n.config.NIndirect; i++ {
		member := n.cycle.Next()
		if member.Addr == self || member.Addr == target {
			continue
		}
		if _, ok := selected[member.Addr]; ok {
			continue
		}
		selected[member.Addr] = struct{}{}
		relays = append(relays, member.Addr)
	}
	return relays
}

// livenessLoop periodically checks for members whose staleness has changed.
func (n *Node) livenessLoop() {
	ticker := time.NewTicker(n.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.table.UpdateLiveness(n.config.FailureTimeout)
			n.metrics.PendingProbes.Set(float64(n.pongs.Waiters()))
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) send(ctx context.Context, envelope Envelope) error {
	if err := n.transport.Send(ctx, envelope); err != nil {
		n.metrics.SendErrors.Inc()
		n.logger.Warn(
			"failed to send message",
			zap.String("to", envelope.To.String()),
			zap.String("type", envelope.Message.Type().String()),
			zap.Error(err),
		)
		return fmt.Errorf("send: %s: %w", envelope.To, err)
	}
	return nil
}

// nextSeq returns a random sequence number to correlate a ping with its
// pong.
func nextSeq() int64 {
	return int64(rand.Uint64())
}
