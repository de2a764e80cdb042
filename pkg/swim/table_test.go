package swim

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddr(t *testing.T, port int) Address {
	t.Helper()

	addr, err := ParseAddress(fmt.Sprintf("10.26.104.56:%d", port))
	require.NoError(t, err)
	return addr
}

type fakeWatcher struct {
	joined      []Address
	reachable   []Address
	unreachable []Address

	mu sync.Mutex
}

func (w *fakeWatcher) OnJoin(addr Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.joined = append(w.joined, addr)
}

func (w *fakeWatcher) OnReachable(addr Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reachable = append(w.reachable, addr)
}

func (w *fakeWatcher) OnUnreachable(addr Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unreachable = append(w.unreachable, addr)
}

var _ Watcher = &fakeWatcher{}

func TestMembershipTable_Merge(t *testing.T) {
	t.Run("unknown member", func(t *testing.T) {
		mockClock := clock.NewMock()
		watcher := &fakeWatcher{}
		table := newMembershipTable(testAddr(t, 1), mockClock, NewMetrics(), watcher)

		mockClock.Add(time.Second)
		table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 5})

		m, ok := table.Member(testAddr(t, 2))
		require.True(t, ok)
		assert.Equal(t, uint32(5), m.Clock)
		assert.Equal(t, mockClock.Now(), m.LastSeen)

		assert.Equal(t, []Address{testAddr(t, 2)}, watcher.joined)
	})

	t.Run("newer clock", func(t *testing.T) {
		mockClock := clock.NewMock()
		table := newMembershipTable(testAddr(t, 1), mockClock, NewMetrics(), newNopWatcher())

		table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 5})
		mockClock.Add(time.Second)
		table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 6})

		m, ok := table.Member(testAddr(t, 2))
		require.True(t, ok)
		assert.Equal(t, uint32(6), m.Clock)
		assert.Equal(t, mockClock.Now(), m.LastSeen)
	})

	t.Run("idempotent", func(t *testing.T) {
		mockClock := clock.NewMock()
		table := newMembershipTable(testAddr(t, 1), mockClock, NewMetrics(), newNopWatcher())

		table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 5})
		once, _ := table.Member(testAddr(t, 2))

		mockClock.Add(time.Second)
		table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 5})
		twice, _ := table.Member(testAddr(t, 2))

		// Applying the same update doesn't refresh the member.
		assert.Equal(t, once, twice)
	})

	t.Run("older clock", func(t *testing.T) {
		mockClock := clock.NewMock()
		table := newMembershipTable(testAddr(t, 1), mockClock, NewMetrics(), newNopWatcher())

		table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 5})
		before, _ := table.Member(testAddr(t, 2))

		mockClock.Add(time.Second)
		table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 4})
		after, _ := table.Member(testAddr(t, 2))

		assert.Equal(t, before, after)
	})

	t.Run("self", func(t *testing.T) {
		table := newMembershipTable(testAddr(t, 1), clock.NewMock(), NewMetrics(), newNopWatcher())

		table.MergeAll([]MemberUpdate{
			{Addr: testAddr(t, 1), Clock: 3},
			{Addr: testAddr(t, 2), Clock: 2},
		})

		// The table only contains one entry for the local node.
		assert.Len(t, table.Members(), 2)
		assert.Equal(t, uint32(3), table.Self().Clock)
	})
}

func TestMembershipTable_Tick(t *testing.T) {
	mockClock := clock.NewMock()
	table := newMembershipTable(testAddr(t, 1), mockClock, NewMetrics(), newNopWatcher())

	mockClock.Add(time.Second)
	table.Tick(testAddr(t, 1))
	table.Tick(testAddr(t, 1))

	self := table.Self()
	assert.Equal(t, uint32(2), self.Clock)
	assert.Equal(t, mockClock.Now(), self.LastSeen)

	// Ticking an unknown member has no effect.
	table.Tick(testAddr(t, 2))
	_, ok := table.Member(testAddr(t, 2))
	assert.False(t, ok)
}

func TestMembershipTable_Sample(t *testing.T) {
	table := newMembershipTable(testAddr(t, 1), clock.NewMock(), NewMetrics(), newNopWatcher())
	for i := 2; i <= 10; i++ {
		table.Merge(MemberUpdate{Addr: testAddr(t, i), Clock: 1})
	}

	t.Run("exclude self", func(t *testing.T) {
		for i := 0; i != 20; i++ {
			sample := table.Sample(3, true)
			require.Len(t, sample, 4)

			// Self is always the last member.
			assert.Equal(t, testAddr(t, 1), sample[3].Addr)
			seen := make(map[Address]struct{})
			for _, m := range sample[:3] {
				assert.NotEqual(t, testAddr(t, 1), m.Addr)
				_, ok := seen[m.Addr]
				assert.False(t, ok, "duplicate member")
				seen[m.Addr] = struct{}{}
			}
		}
	})

	t.Run("include self", func(t *testing.T) {
		sample := table.Sample(20, false)
		assert.Len(t, sample, 10)
	})

	t.Run("limit exceeds members", func(t *testing.T) {
		sample := table.Sample(20, true)
		assert.Len(t, sample, 10)
		assert.Equal(t, testAddr(t, 1), sample[9].Addr)
	})

	t.Run("gossip", func(t *testing.T) {
		gossip := table.Gossip(0)
		assert.Equal(t, []MemberUpdate{{Addr: testAddr(t, 1), Clock: 0}}, gossip)
	})
}

func TestMembershipTable_Staleness(t *testing.T) {
	failureTimeout := time.Second * 10

	mockClock := clock.NewMock()
	table := newMembershipTable(testAddr(t, 1), mockClock, NewMetrics(), newNopWatcher())

	table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 1})
	mockClock.Add(time.Second * 2)
	table.Merge(MemberUpdate{Addr: testAddr(t, 3), Clock: 1})

	// Member 2 was last heard from failureTimeout + 1s ago and member 3
	// failureTimeout - 1s ago.
	mockClock.Add(failureTimeout - time.Second)

	m2, _ := table.Member(testAddr(t, 2))
	assert.True(t, table.IsStale(m2, failureTimeout))
	m3, _ := table.Member(testAddr(t, 3))
	assert.False(t, table.IsStale(m3, failureTimeout))

	// The local node is always live, even though it hasn't ticked.
	assert.Equal(t, []Address{testAddr(t, 1), testAddr(t, 3)}, table.Live(failureTimeout))

	t.Run("boundary", func(t *testing.T) {
		mockClock := clock.NewMock()
		table := newMembershipTable(testAddr(t, 1), mockClock, NewMetrics(), newNopWatcher())
		table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 1})
		m, _ := table.Member(testAddr(t, 2))

		mockClock.Add(failureTimeout)
		assert.False(t, table.IsStale(m, failureTimeout))

		mockClock.Add(time.Nanosecond)
		assert.True(t, table.IsStale(m, failureTimeout))
	})
}

func TestMembershipTable_UpdateLiveness(t *testing.T) {
	failureTimeout := time.Second * 10

	mockClock := clock.NewMock()
	watcher := &fakeWatcher{}
	table := newMembershipTable(testAddr(t, 1), mockClock, NewMetrics(), watcher)

	table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 1})

	table.UpdateLiveness(failureTimeout)
	assert.Empty(t, watcher.unreachable)

	mockClock.Add(failureTimeout + time.Second)
	table.UpdateLiveness(failureTimeout)
	assert.Equal(t, []Address{testAddr(t, 2)}, watcher.unreachable)

	// Only notifies once per transition.
	table.UpdateLiveness(failureTimeout)
	assert.Len(t, watcher.unreachable, 1)

	table.Merge(MemberUpdate{Addr: testAddr(t, 2), Clock: 2})
	table.UpdateLiveness(failureTimeout)
	assert.Equal(t, []Address{testAddr(t, 2)}, watcher.reachable)
}

func TestCycle(t *testing.T) {
	table := newMembershipTable(testAddr(t, 1), clock.NewMock(), NewMetrics(), newNopWatcher())
	for i := 2; i <= 5; i++ {
		table.Merge(MemberUpdate{Addr: testAddr(t, i), Clock: 1})
	}

	cycle := table.Cycle()
	assert.Equal(t, 5, cycle.Size())

	// Each pass yields every member once.
	for pass := 0; pass != 3; pass++ {
		seen := make(map[Address]int)
		for i := 0; i != 5; i++ {
			seen[cycle.Next().Addr]++
		}
		assert.Len(t, seen, 5)
	}

	// Members discovered mid-pass are included in the next pass.
	cycle.Next()
	table.Merge(MemberUpdate{Addr: testAddr(t, 6), Clock: 1})
	for i := 0; i != 4; i++ {
		cycle.Next()
	}
	seen := make(map[Address]int)
	for i := 0; i != 6; i++ {
		seen[cycle.Next().Addr]++
	}
	assert.Len(t, seen, 6)
}
