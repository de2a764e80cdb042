package swim

import (
	"context"
	"sync"
	"time"
)

// Correlator matches values tagged with a key to callers waiting for that
// key.
//
// It is used to match an incoming Pong to the probe waiting for it, keyed by
// sequence number. A key may have multiple waiters.
type Correlator[K comparable, V any] struct {
	waiters map[K][]*Pending[K, V]

	// mu protects the above fields.
	mu sync.Mutex
}

func NewCorrelator[K comparable, V any]() *Correlator[K, V] {
	return &Correlator[K, V]{
		waiters: make(map[K][]*Pending[K, V]),
	}
}

// Offer delivers value to all callers currently waiting for key. Returns
// whether any callers were waiting.
//
// If no callers are waiting the value is discarded.
func (c *Correlator[K, V]) Offer(key K, value V) bool {
	c.mu.Lock()
	waiters := c.waiters[key]
	delete(c.waiters, key)
	c.mu.Unlock()

	for _, p := range waiters {
		p.ch <- value
	}
	return len(waiters) > 0
}

// PickUp waits for a value to be offered with the given key.
//
// Returns false if the timeout expires or ctx is cancelled before a value is
// offered. In either case the caller is no longer registered when PickUp
// returns.
func (c *Correlator[K, V]) PickUp(ctx context.Context, key K, timeout time.Duration) (V, bool) {
	return c.Expect(key).Wait(ctx, timeout)
}

// Expect registers a waiter for key without blocking.
//
// This is used to register before sending a request, so a response that
// arrives before the caller starts waiting isn't lost. The caller must call
// either Wait or Cancel on the returned Pending.
func (c *Correlator[K, V]) Expect(key K) *Pending[K, V] {
	p := &Pending[K, V]{
		correlator: c,
		key:        key,
		ch:         make(chan V, 1),
	}

	c.mu.Lock()
	c.waiters[key] = append(c.waiters[key], p)
	c.mu.Unlock()

	return p
}

// Waiters returns the number of registered waiters.
func (c *Correlator[K, V]) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, waiters := range c.waiters {
		n += len(waiters)
	}
	return n
}

// remove deregisters the waiter. Returns false if the waiter has already
// been removed by Offer.
func (c *Correlator[K, V]) remove(p *Pending[K, V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiters := c.waiters[p.key]
	for i, existing := range waiters {
		if existing != p {
			continue
		}

		waiters = append(waiters[:i], waiters[i+1:]...)
		if len(waiters) == 0 {
			delete(c.waiters, p.key)
		} else {
			c.waiters[p.key] = waiters
		}
		return true
	}
	return false
}

// Pending is a single registered waiter.
type Pending[K comparable, V any] struct {
	correlator *Correlator[K, V]
	key        K

	// ch receives the offered value. It is buffered so Offer never blocks.
	ch chan V
}

// Wait blocks until a value is offered, the timeout expires or ctx is
// cancelled.
func (p *Pending[K, V]) Wait(ctx context.Context, timeout time.Duration) (V, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-p.ch:
		return v, true
	case <-timer.C:
	case <-ctx.Done():
	}

	if p.correlator.remove(p) {
		var zero V
		return zero, false
	}

	// Offer removed the waiter before we could, so the value is either
	// already buffered or about to be.
	return <-p.ch, true
}

// Cancel deregisters the waiter without waiting.
func (p *Pending[K, V]) Cancel() {
	p.correlator.remove(p)
}
