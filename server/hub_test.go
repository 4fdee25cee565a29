package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastReachesSubscribers(t *testing.T) {
	h := newHub[int]()
	a := h.Subscribe(4)
	b := h.Subscribe(4)

	h.Broadcast(7)
	assert.Equal(t, 7, <-a.ch)
	assert.Equal(t, 7, <-b.ch)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := newHub[int]()
	sub := h.Subscribe(1)

	h.Broadcast(1)
	h.Broadcast(2) // buffer full, dropped

	assert.Equal(t, 1, <-sub.ch)
	select {
	case v := <-sub.ch:
		t.Fatalf("unexpected buffered value %d", v)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := newHub[string]()
	sub := h.Subscribe(1)
	h.Unsubscribe(sub)

	_, open := <-sub.ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Len())

	// Double unsubscribe must not panic.
	h.Unsubscribe(sub)
}

func TestHubCloseRejectsNewSubscribers(t *testing.T) {
	h := newHub[int]()
	sub := h.Subscribe(1)
	h.Close()

	_, open := <-sub.ch
	require.False(t, open)

	late := h.Subscribe(1)
	_, open = <-late.ch
	assert.False(t, open)
}
