package rfb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_BroadcastFansOutToEverySubscriber(t *testing.T) {
	b := newBus()
	a := b.register()
	c := b.register()

	b.broadcast([]byte("hello"))

	select {
	case buf := <-a.outbox:
		assert.Equal(t, "hello", string(buf))
	default:
		t.Fatal("subscriber a did not receive broadcast")
	}
	select {
	case buf := <-c.outbox:
		assert.Equal(t, "hello", string(buf))
	default:
		t.Fatal("subscriber c did not receive broadcast")
	}
}

func TestBus_CloseAllExceptSparesTheSurvivor(t *testing.T) {
	b := newBus()
	a := b.register()
	c := b.register()

	b.closeAllExcept(a.id)

	select {
	case <-a.closeCh:
		t.Fatal("survivor's closeCh should not have fired")
	default:
	}
	select {
	case <-c.closeCh:
	default:
		t.Fatal("non-survivor's closeCh should have fired")
	}
}

func TestBus_RemoveDropsSubscriber(t *testing.T) {
	b := newBus()
	a := b.register()
	require.Equal(t, 1, b.count())

	b.remove(a.id)
	assert.Equal(t, 0, b.count())

	// broadcasting after removal must not panic or block.
	b.broadcast([]byte("x"))
}

func TestBus_BroadcastIsBestEffortWhenOutboxFull(t *testing.T) {
	b := newBus()
	a := b.register()

	for i := 0; i < cap(a.outbox)+5; i++ {
		b.broadcast([]byte{byte(i)})
	}
	// must not deadlock; outbox never exceeds its capacity.
	assert.LessOrEqual(t, len(a.outbox), cap(a.outbox))
}
