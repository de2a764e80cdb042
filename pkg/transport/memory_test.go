package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/swim/pkg/swim"
)

func receive(t *testing.T, tr swim.Transport) swim.Envelope {
	t.Helper()

	select {
	case envelope, ok := <-tr.Inbound():
		require.True(t, ok)
		return envelope
	case <-time.After(time.Second):
		t.Fatal("receive timeout")
		return swim.Envelope{}
	}
}

func assertNoReceive(t *testing.T, tr swim.Transport) {
	t.Helper()

	select {
	case envelope := <-tr.Inbound():
		t.Fatalf("unexpected envelope: %v", envelope)
	case <-time.After(time.Millisecond * 50):
	}
}

func TestMemNetwork(t *testing.T) {
	t.Run("send", func(t *testing.T) {
		network := NewMemNetwork()
		a := network.ListenNext()
		b := network.ListenNext()
		assert.NotEqual(t, a.Addr(), b.Addr())

		ping := swim.NewPing(
			5,
			nil,
			[]swim.Address{a.Addr()},
			[]swim.MemberUpdate{{Addr: a.Addr(), Clock: 3}},
		)
		require.NoError(t, a.Send(context.Background(), swim.Envelope{
			From:    a.Addr(),
			To:      b.Addr(),
			Message: ping,
		}))

		envelope := receive(t, b)
		assert.Equal(t, a.Addr(), envelope.From)
		assert.Equal(t, b.Addr(), envelope.To)
		assert.Equal(t, ping, envelope.Message)
		// The message is decoded from the wire so isn't shared.
		assert.NotSame(t, ping, envelope.Message)
	})

	t.Run("block", func(t *testing.T) {
		network := NewMemNetwork()
		a := network.ListenNext()
		b := network.ListenNext()

		network.Block(a.Addr(), b.Addr())

		require.NoError(t, a.Send(context.Background(), swim.Envelope{
			To:      b.Addr(),
			Message: swim.NewPong(1, nil, nil),
		}))
		assertNoReceive(t, b)

		// The reverse link is unaffected.
		require.NoError(t, b.Send(context.Background(), swim.Envelope{
			To:      a.Addr(),
			Message: swim.NewPong(2, nil, nil),
		}))
		assert.Equal(t, int64(2), receive(t, a).Message.(*swim.Pong).Seq)

		network.Unblock(a.Addr(), b.Addr())

		require.NoError(t, a.Send(context.Background(), swim.Envelope{
			To:      b.Addr(),
			Message: swim.NewPong(3, nil, nil),
		}))
		assert.Equal(t, int64(3), receive(t, b).Message.(*swim.Pong).Seq)
	})

	t.Run("drop rate", func(t *testing.T) {
		network := NewMemNetwork()
		a := network.ListenNext()
		b := network.ListenNext()

		network.SetDropRate(1)

		require.NoError(t, a.Send(context.Background(), swim.Envelope{
			To:      b.Addr(),
			Message: swim.NewPong(1, nil, nil),
		}))
		assertNoReceive(t, b)
	})

	t.Run("unknown destination", func(t *testing.T) {
		network := NewMemNetwork()
		a := network.ListenNext()

		addr, err := swim.ParseAddress("10.26.104.56:7946")
		require.NoError(t, err)

		assert.NoError(t, a.Send(context.Background(), swim.Envelope{
			To:      addr,
			Message: swim.NewPong(1, nil, nil),
		}))
	})

	t.Run("address in use", func(t *testing.T) {
		network := NewMemNetwork()
		a := network.ListenNext()

		_, err := network.Listen(a.Addr())
		assert.Error(t, err)
	})

	t.Run("close", func(t *testing.T) {
		network := NewMemNetwork()
		a := network.ListenNext()
		b := network.ListenNext()

		require.NoError(t, b.Close())

		_, ok := <-b.Inbound()
		assert.False(t, ok)

		// Sending to a closed transport drops the message.
		assert.NoError(t, a.Send(context.Background(), swim.Envelope{
			To:      b.Addr(),
			Message: swim.NewPong(1, nil, nil),
		}))
		// Sending from a closed transport fails.
		assert.ErrorIs(t, b.Send(context.Background(), swim.Envelope{
			To:      a.Addr(),
			Message: swim.NewPong(1, nil, nil),
		}), ErrClosed)

		// The address can be reused.
		_, err := network.Listen(b.Addr())
		assert.NoError(t, err)
	})

	t.Run("queue full", func(t *testing.T) {
		network := NewMemNetwork(WithInboundBuffer(1))
		a := network.ListenNext()
		b := network.ListenNext()

		for i := 0; i != 3; i++ {
			require.NoError(t, a.Send(context.Background(), swim.Envelope{
				To:      b.Addr(),
				Message: swim.NewPong(int64(i), nil, nil),
			}))
		}

		assert.Equal(t, int64(0), receive(t, b).Message.(*swim.Pong).Seq)
		assertNoReceive(t, b)
	})
}
