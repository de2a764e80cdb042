package swim

import (
	"math/rand"
)

// Cycle yields members of the membership table in a random order.
//
// Each pass takes a snapshot of the current members and shuffles it, so
// every member is yielded once per pass. When the pass is exhausted a new
// snapshot is taken, so members discovered during a pass are included in the
// next one.
//
// Cycle is not safe for concurrent use.
type Cycle struct {
	table *membershipTable

	members []Member
	index   int
}

// Next returns the next member. The table always contains the local node so
// there is always a next member.
func (c *Cycle) Next() Member {
	if c.index >= len(c.members) {
		c.reset()
	}

	m := c.members[c.index]
	c.index++
	return m
}

// Size returns the number of members in the current pass.
func (c *Cycle) Size() int {
	if c.members == nil {
		c.reset()
	}
	return len(c.members)
}

func (c *Cycle) reset() {
	c.table.mu.Lock()
	members := c.table.snapshotLocked()
	c.table.mu.Unlock()

	rand.Shuffle(len(members), func(i, j int) {
		members[i], members[j] = members[j], members[i]
	})
	c.members = members
	c.index = 0
}
