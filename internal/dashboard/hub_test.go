package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelB()
	assert.Equal(t, 2, h.Len())

	h.Publish(MsgClock, "tick")
	assert.Equal(t, "tick", (<-a).Data)
	assert.Equal(t, MsgClock, (<-b).Type)

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok, "cancelled channel is closed")
	assert.Equal(t, 1, h.Len())
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(MsgGrid, 1)
	h.Publish(MsgGrid, 2)
	assert.Equal(t, 1, (<-ch).Data)
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %v", msg)
	default:
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	h.Close()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	late, _ := h.Subscribe()
	_, ok = <-late
	require.False(t, ok, "subscribing after close yields a closed channel")
	assert.Zero(t, h.Len())
}
