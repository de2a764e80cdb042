package swim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelator(t *testing.T) {
	t.Run("offer to waiter", func(t *testing.T) {
		c := NewCorrelator[int64, string]()

		pending := c.Expect(5)
		assert.True(t, c.Offer(5, "foo"))

		v, ok := pending.Wait(context.Background(), time.Second)
		assert.True(t, ok)
		assert.Equal(t, "foo", v)
		assert.Equal(t, 0, c.Waiters())
	})

	t.Run("offer to multiple waiters", func(t *testing.T) {
		c := NewCorrelator[int64, string]()

		var wg sync.WaitGroup
		results := make(chan string, 3)
		for i := 0; i != 3; i++ {
			pending := c.Expect(5)
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, ok := pending.Wait(context.Background(), time.Second)
				assert.True(t, ok)
				results <- v
			}()
		}

		assert.True(t, c.Offer(5, "foo"))
		wg.Wait()
		close(results)

		for v := range results {
			assert.Equal(t, "foo", v)
		}
		assert.Equal(t, 0, c.Waiters())
	})

	t.Run("offer other key", func(t *testing.T) {
		c := NewCorrelator[int64, string]()

		pending := c.Expect(5)
		assert.False(t, c.Offer(6, "foo"))

		_, ok := pending.Wait(context.Background(), time.Millisecond*10)
		assert.False(t, ok)
	})

	t.Run("offer without waiters", func(t *testing.T) {
		c := NewCorrelator[int64, string]()

		assert.False(t, c.Offer(5, "foo"))

		// The discarded offer doesn't satisfy a later pick up.
		_, ok := c.PickUp(context.Background(), 5, time.Millisecond*10)
		assert.False(t, ok)
	})

	t.Run("pick up timeout", func(t *testing.T) {
		c := NewCorrelator[int64, string]()

		start := time.Now()
		_, ok := c.PickUp(context.Background(), 5, time.Millisecond*50)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), time.Millisecond*50)

		// No residual waiter.
		assert.Equal(t, 0, c.Waiters())
		assert.False(t, c.Offer(5, "foo"))
	})

	t.Run("pick up cancelled", func(t *testing.T) {
		c := NewCorrelator[int64, string]()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(time.Millisecond * 10)
			cancel()
		}()

		_, ok := c.PickUp(ctx, 5, time.Minute)
		assert.False(t, ok)
		assert.Equal(t, 0, c.Waiters())
	})

	t.Run("concurrent offer", func(t *testing.T) {
		c := NewCorrelator[int64, string]()

		done := make(chan struct{})
		go func() {
			defer close(done)
			v, ok := c.PickUp(context.Background(), 5, time.Second)
			assert.True(t, ok)
			assert.Equal(t, "foo", v)
		}()

		// Wait for the waiter to register.
		require.Eventually(t, func() bool {
			return c.Waiters() == 1
		}, time.Second, time.Millisecond)

		assert.True(t, c.Offer(5, "foo"))
		<-done
	})

	t.Run("cancel", func(t *testing.T) {
		c := NewCorrelator[int64, string]()

		pending := c.Expect(5)
		assert.Equal(t, 1, c.Waiters())

		pending.Cancel()
		assert.Equal(t, 0, c.Waiters())
		assert.False(t, c.Offer(5, "foo"))
	})

	// Races timeouts against offers. Every waiter must either receive the
	// value or time out with no residual registration.
	t.Run("timeout race", func(t *testing.T) {
		c := NewCorrelator[int64, int]()

		var wg sync.WaitGroup
		for i := 0; i != 100; i++ {
			key := int64(i)
			pending := c.Expect(key)

			wg.Add(2)
			go func() {
				defer wg.Done()
				v, ok := pending.Wait(context.Background(), time.Millisecond)
				if ok {
					assert.Equal(t, i, v)
				}
			}()
			go func() {
				defer wg.Done()
				c.Offer(key, i)
			}()
		}
		wg.Wait()

		assert.Equal(t, 0, c.Waiters())
	})
}
