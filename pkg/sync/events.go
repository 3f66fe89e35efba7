package sync

import (
	"sync"
	"time"

	"github.com/cuemby/warren-ledger/pkg/entry"
)

// EventType identifies the kind of change a Subscriber was notified
// about: an entry ingested, a peer added or its reachability changing,
// a tree newly tracked, or a delivery attempt that failed and was
// requeued.
type EventType string

const (
	EventEntryIngested  EventType = "entry.ingested"
	EventPeerAdded      EventType = "peer.added"
	EventPeerReachable  EventType = "peer.reachable"
	EventPeerLost       EventType = "peer.lost"
	EventTreeTracked    EventType = "tree.tracked"
	EventDeliveryFailed EventType = "delivery.failed"
)

// Event is one notification published by a Sync. Event-specific detail
// (peer public key, tree root) is carried as plain fields rather than a
// typed union per EventType.
type Event struct {
	Type      EventType
	Timestamp time.Time
	TreeRoot  entry.ID
	PeerKey   string
	Message   string
}

// Subscriber is a channel that receives Events.
type Subscriber chan Event

// eventBroker distributes Events to every live Subscriber without
// blocking the publisher: a buffered channel plus a broadcast
// goroutine, where a slow subscriber drops events rather than
// stalling the bus.
type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
	running     bool
}

func newEventBroker() *eventBroker {
	return &eventBroker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100),
	}
}

func (b *eventBroker) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.stopCh = make(chan struct{})
	b.running = true
	stopCh := b.stopCh
	b.mu.Unlock()

	go b.run(stopCh)
}

func (b *eventBroker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	close(b.stopCh)
	b.running = false
}

// Subscribe returns a new channel carrying every Event published from
// now on. Callers must Unsubscribe when done to release it.
func (b *eventBroker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

func (b *eventBroker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues ev for distribution. A stopped broker (Start never
// called, or Stop already called) silently drops the event: publishing
// is always best-effort instrumentation, never load-bearing for
// correctness.
func (b *eventBroker) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.RLock()
	running := b.running
	stopCh := b.stopCh
	b.mu.RUnlock()
	if !running {
		return
	}
	select {
	case b.eventCh <- ev:
	case <-stopCh:
	default:
	}
}

func (b *eventBroker) run(stopCh chan struct{}) {
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-stopCh:
			return
		}
	}
}

func (b *eventBroker) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of every lifecycle Event this Sync
// publishes from now on: entries ingested, peers added or tracked, and
// failed delivery attempts. The channel buffers up to 50 events; a slow
// reader misses events rather than stalling the sync core.
func (s *Sync) Subscribe() Subscriber {
	return s.events.Subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (s *Sync) Unsubscribe(sub Subscriber) {
	s.events.Unsubscribe(sub)
}
