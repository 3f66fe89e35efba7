package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBrokerDeliversToSubscriber(t *testing.T) {
	b := newEventBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(Event{Type: EventPeerAdded, PeerKey: "abc"})

	select {
	case ev := <-sub:
		assert.Equal(t, EventPeerAdded, ev.Type)
		assert.Equal(t, "abc", ev.PeerKey)
		assert.False(t, ev.Timestamp.IsZero(), "expected Publish to stamp a timestamp")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBrokerStoppedBrokerDropsPublish(t *testing.T) {
	b := newEventBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(Event{Type: EventPeerLost, PeerKey: "never-started"})

	select {
	case ev := <-sub:
		t.Fatalf("expected no event from a broker that was never started, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := newEventBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	_, ok := <-sub
	assert.False(t, ok, "expected channel to be closed after Unsubscribe")
}

func TestEventBrokerSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := newEventBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(Event{Type: EventEntryIngested, Message: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.Fail(t, "Publish blocked on a subscriber that never drains its channel")
	}
}
