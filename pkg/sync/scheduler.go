package sync

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/log"
)

// defaultReconcileInterval is how often the scheduler, once started,
// diffs each tracked (peer, tree) pair.
const defaultReconcileInterval = 30 * time.Second

// scheduler is the optional periodic per-tree diff loop: disabled by
// default (a Sync only gets one by construction, but it never runs
// until Start is called), it walks the peer registry and tree_sync
// map, pulls anything missing from each tracked peer, and ingests it —
// the same path RequestTree/ingestBatch already serve on demand, just
// run on a timer instead of triggered by a caller.
type scheduler struct {
	s *Sync

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	interval time.Duration
}

func newScheduler(s *Sync) *scheduler {
	return &scheduler{s: s, interval: defaultReconcileInterval}
}

// Start begins the reconciliation loop at the given interval, or the
// default if interval is zero. Calling Start while already running is a
// no-op.
func (sch *scheduler) Start(interval time.Duration) {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.running {
		return
	}
	if interval > 0 {
		sch.interval = interval
	}
	sch.stopCh = make(chan struct{})
	sch.running = true
	go sch.run(sch.stopCh, sch.interval)
}

// Stop halts the loop. Safe to call whether or not it was started.
func (sch *scheduler) Stop() {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if !sch.running {
		return
	}
	close(sch.stopCh)
	sch.running = false
}

func (sch *scheduler) run(stopCh chan struct{}, interval time.Duration) {
	logger := log.WithComponent("sync-scheduler")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sch.reconcile(context.Background()); err != nil {
				logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-stopCh:
			return
		}
	}
}

// reconcile diffs every tracked (peer, tree) pair this instance knows
// about, pulling and ingesting anything the peer has that this instance
// doesn't.
func (sch *scheduler) reconcile(ctx context.Context) error {
	peers, err := sch.s.Peers(ctx)
	if err != nil {
		return err
	}

	for peerPubKey, info := range peers {
		if len(info.Addresses) == 0 {
			continue
		}
		trees, err := sch.s.TrackedTrees(ctx, peerPubKey)
		if err != nil {
			return err
		}
		addr := info.Addresses[0]

		for _, treeRoot := range trees {
			known, err := sch.s.backend.GetTree(ctx, treeRoot)
			if err != nil {
				continue
			}
			knownTips := make([]entry.ID, 0, len(known))
			for _, e := range known {
				id, err := e.ID()
				if err != nil {
					continue
				}
				knownTips = append(knownTips, id)
			}

			entries, err := sch.s.RequestTree(ctx, addr.Transport, addr, peerPubKey, treeRoot, knownTips)
			if err != nil {
				continue
			}
			if len(entries) == 0 {
				continue
			}
			_ = sch.s.ingestBatch(ctx, entries)
		}
	}
	return nil
}
