package swim

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Member contains the known state of a member.
type Member struct {
	Addr Address `json:"addr"`

	// Clock is a counter of the freshness of the members state. The higher
	// the clock the more recent the state.
	Clock uint32 `json:"clock"`

	// LastSeen is the time the members clock last advanced.
	LastSeen time.Time `json:"last_seen"`
}

// Update returns the gossip entry for the member.
func (m Member) Update() MemberUpdate {
	return MemberUpdate{
		Addr:  m.Addr,
		Clock: m.Clock,
	}
}

type memberState struct {
	Member

	// unreachable is the last staleness observed by UpdateLiveness.
	unreachable bool
}

// membershipTable contains the known state of each member in the group,
// including the local node.
//
// Members are never removed. Instead a member is considered to have failed
// if its clock hasn't advanced within the failure timeout.
type membershipTable struct {
	self    Address
	members map[Address]*memberState

	// mu protects the above fields. mu is never held while sending or
	// waiting.
	mu sync.Mutex

	clock clock.Clock

	metrics *Metrics

	watcher Watcher
}

// newMembershipTable creates the membership table with the local node.
func newMembershipTable(
	self Address,
	clock clock.Clock,
	metrics *Metrics,
	watcher Watcher,
) *membershipTable {
	members := make(map[Address]*memberState)
	members[self] = &memberState{
		Member: Member{
			Addr:     self,
			Clock:    0,
			LastSeen: clock.Now(),
		},
	}

	metrics.Members.Set(1)

	return &membershipTable{
		self:    self,
		members: members,
		clock:   clock,
		metrics: metrics,
		watcher: watcher,
	}
}

// Merge applies the given update. Updates with a clock no greater than the
// known clock are discarded.
func (t *membershipTable) Merge(update MemberUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mergeLocked(update)
}

// MergeAll applies each update in the gossip snippet.
func (t *membershipTable) MergeAll(gossip []MemberUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, update := range gossip {
		t.mergeLocked(update)
	}
}

// Tick advances the clock of the member with the given address.
func (t *membershipTable) Tick(addr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.members[addr]
	if !ok {
		return
	}
	state.Clock++
	state.LastSeen = t.clock.Now()
}

// Self returns the state of the local node.
func (t *membershipTable) Self() Member {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.members[t.self].Member
}

// Member returns the known state of the member with the given address.
func (t *membershipTable) Member(addr Address) (Member, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.members[addr]
	if !ok {
		return Member{}, false
	}
	return state.Member, true
}

// Members returns the known state of all members sorted by address.
func (t *membershipTable) Members() []Member {
	t.mu.Lock()
	defer t.mu.Unlock()

	members := t.snapshotLocked()
	sort.Slice(members, func(i, j int) bool {
		return members[i].Addr.Compare(members[j].Addr) < 0
	})
	return members
}

// Sample returns up to limit members selected at random.
//
// If excludeSelf is true, the local node is excluded from the random
// selection then always added as the last member, so the local nodes latest
// clock is included in every gossip snippet.
func (t *membershipTable) Sample(limit int, excludeSelf bool) []Member {
	t.mu.Lock()
	defer t.mu.Unlock()

	members := make([]Member, 0, len(t.members))
	for _, state := range t.members {
		if excludeSelf && state.Addr == t.self {
			continue
		}
		members = append(members, state.Member)
	}
	rand.Shuffle(len(members), func(i, j int) {
		members[i], members[j] = members[j], members[i]
	})
	if len(members) > limit {
		members = members[:limit]
	}

	if excludeSelf {
		members = append(members, t.members[t.self].Member)
	}
	return members
}

// Gossip returns a random gossip snippet containing up to limit members plus
// the local node.
func (t *membershipTable) Gossip(limit int) []MemberUpdate {
	sample := t.Sample(limit, true)
	gossip := make([]MemberUpdate, 0, len(sample))
	for _, m := range sample {
		gossip = append(gossip, m.Update())
	}
	return gossip
}

// IsStale returns whether the member hasn't been heard from within the
// failure timeout.
func (t *membershipTable) IsStale(m Member, failureTimeout time.Duration) bool {
	return t.clock.Since(m.LastSeen) > failureTimeout
}

// Live returns the addresses of the members that have been heard from
// within the failure timeout, sorted by address. The local node is always
// included.
func (t *membershipTable) Live(failureTimeout time.Duration) []Address {
	t.mu.Lock()
	defer t.mu.Unlock()

	var live []Address
	for _, state := range t.members {
		if state.Addr != t.self && t.IsStale(state.Member, failureTimeout) {
			continue
		}
		live = append(live, state.Addr)
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].Compare(live[j]) < 0
	})
	return live
}

// UpdateLiveness notifies the watcher of any members whose staleness has
// changed since the last update.
func (t *membershipTable) UpdateLiveness(failureTimeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := 0
	for _, state := range t.members {
		if state.Addr == t.self {
			live++
			continue
		}

		stale := t.IsStale(state.Member, failureTimeout)
		if stale && !state.unreachable {
			state.unreachable = true
			t.watcher.OnUnreachable(state.Addr)
		} else if !stale && state.unreachable {
			state.unreachable = false
			t.watcher.OnReachable(state.Addr)
		}
		if !stale {
			live++
		}
	}

	t.metrics.LiveMembers.Set(float64(live))
}

// Cycle returns an iterator that yields members in a random order.
func (t *membershipTable) Cycle() *Cycle {
	return &Cycle{
		table: t,
	}
}

func (t *membershipTable) mergeLocked(update MemberUpdate) {
	state, ok := t.members[update.Addr]
	if !ok {
		t.members[update.Addr] = &memberState{
			Member: Member{
				Addr:     update.Addr,
				Clock:    update.Clock,
				LastSeen: t.clock.Now(),
			},
		}

		t.metrics.Members.Set(float64(len(t.members)))
		t.watcher.OnJoin(update.Addr)
		return
	}

	// Discard stale updates.
	if update.Clock <= state.Clock {
		return
	}
	state.Clock = update.Clock
	state.LastSeen = t.clock.Now()
}

func (t *membershipTable) snapshotLocked() []Member {
	members := make([]Member, 0, len(t.members))
	for _, state := range t.members {
		members = append(members, state.Member)
	}
	return members
}
