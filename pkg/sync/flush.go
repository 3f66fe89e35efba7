package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/log"
)

// maxBackoff caps the flush worker's retry doubling for a peer that is
// repeatedly unreachable.
const maxBackoff = 5 * time.Minute

// flushItem is one queued delivery: an entry, the tree it belongs to,
// and the peer it's headed to.
type flushItem struct {
	peerPubKey    string
	transportName string
	peerAddr      Address
	entryID       entry.ID
	treeID        entry.ID
}

// flushWorker is the background delivery queue: a single goroutine
// draining queued (peer, entry, tree) items, grouping by peer, and
// issuing batched SendEntries.
type flushWorker struct {
	s     *Sync
	queue chan flushItem

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	backoff    map[string]time.Duration
	maxBackoff time.Duration
}

func newFlushWorker(s *Sync) *flushWorker {
	return &flushWorker{
		s:          s,
		queue:      make(chan flushItem, 256),
		backoff:    make(map[string]time.Duration),
		maxBackoff: maxBackoff,
	}
}

// SetMaxBackoff overrides the retry ceiling (config.SyncConfig.MaxBackoff
// in the on-disk config), replacing the package default.
func (w *flushWorker) SetMaxBackoff(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d > 0 {
		w.maxBackoff = d
	}
}

// Start begins the drain loop if it is not already running.
func (w *flushWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.stopCh = make(chan struct{})
	w.running = true
	go w.run(w.stopCh)
}

// Stop signals the drain loop to exit. Already-queued items are left
// in the channel; a subsequent Start resumes draining them.
func (w *flushWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.running = false
}

// enqueue adds item to the queue, never dropping it: a full queue
// retries the enqueue from a separate goroutine rather than discarding
// the item.
func (w *flushWorker) enqueue(item flushItem) {
	select {
	case w.queue <- item:
	default:
		go func() { w.queue <- item }()
	}
}

func (w *flushWorker) run(stopCh chan struct{}) {
	logger := log.WithComponent("sync-flush")
	for {
		select {
		case first := <-w.queue:
			batches := map[string][]flushItem{first.peerPubKey: {first}}
		drain:
			for {
				select {
				case item := <-w.queue:
					batches[item.peerPubKey] = append(batches[item.peerPubKey], item)
				default:
					break drain
				}
			}
			for peer, items := range batches {
				w.deliver(logger, peer, items)
			}
		case <-stopCh:
			return
		}
	}
}

func (w *flushWorker) deliver(logger zerolog.Logger, peerPubKey string, items []flushItem) {
	if len(items) == 0 {
		return
	}
	transportName := items[0].transportName
	addr := items[0].peerAddr
	ctx := context.Background()

	entries := make([]*entry.Entry, 0, len(items))
	for _, item := range items {
		e, err := w.s.backend.Get(ctx, item.entryID)
		if err != nil {
			logger.Warn().Err(err).Str("entry_id", string(item.entryID)).Msg("flush: entry no longer in backend, dropping from batch")
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return
	}

	if err := w.s.PushEntries(ctx, transportName, addr, entries); err != nil {
		w.retry(logger, peerPubKey, items, err)
		return
	}

	w.mu.Lock()
	delete(w.backoff, peerPubKey)
	w.mu.Unlock()
}

func (w *flushWorker) retry(logger zerolog.Logger, peerPubKey string, items []flushItem, cause error) {
	w.mu.Lock()
	ceiling := w.maxBackoff
	delay := w.backoff[peerPubKey]
	if delay == 0 {
		delay = time.Second
	} else {
		delay *= 2
		if delay > ceiling {
			delay = ceiling
		}
	}
	w.backoff[peerPubKey] = delay
	w.mu.Unlock()

	logger.Warn().Err(cause).Str("peer", peerPubKey).Dur("retry_in", delay).Msg("flush: delivery failed, requeueing with backoff")
	w.s.events.Publish(Event{Type: EventDeliveryFailed, PeerKey: peerPubKey, Message: cause.Error()})

	for _, item := range items {
		item := item
		time.AfterFunc(delay, func() { w.enqueue(item) })
	}
}
