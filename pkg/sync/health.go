package sync

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/warren-ledger/pkg/log"
)

const defaultHealthCheckInterval = 15 * time.Second

// peerHealthMonitor tracks reachability of every registered peer by
// sending a Hello over each peer's first known address on a fixed
// interval, so PeerStats can report a real connected/disconnected
// split instead of treating every registered peer as connected.
type peerHealthMonitor struct {
	s *Sync

	mu       sync.RWMutex
	healthy  map[string]bool
	stopCh   chan struct{}
	running  bool
	interval time.Duration
}

func newPeerHealthMonitor(s *Sync) *peerHealthMonitor {
	return &peerHealthMonitor{
		s:        s,
		healthy:  make(map[string]bool),
		interval: defaultHealthCheckInterval,
	}
}

// Start begins the periodic reachability sweep if it isn't already
// running. A zero interval keeps the package default.
func (hm *peerHealthMonitor) Start(interval time.Duration) {
	hm.mu.Lock()
	if hm.running {
		hm.mu.Unlock()
		return
	}
	if interval > 0 {
		hm.interval = interval
	}
	hm.stopCh = make(chan struct{})
	hm.running = true
	stopCh := hm.stopCh
	checkInterval := hm.interval
	hm.mu.Unlock()

	go hm.monitorLoop(stopCh, checkInterval)
}

// Stop halts the sweep. Previously observed statuses are kept around
// (stale, not cleared) until the next successful or failed check.
func (hm *peerHealthMonitor) Stop() {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if !hm.running {
		return
	}
	close(hm.stopCh)
	hm.running = false
}

func (hm *peerHealthMonitor) monitorLoop(stopCh chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hm.checkPeers(stopCh)
	for {
		select {
		case <-ticker.C:
			hm.checkPeers(stopCh)
		case <-stopCh:
			return
		}
	}
}

func (hm *peerHealthMonitor) checkPeers(stopCh chan struct{}) {
	logger := log.WithComponent("sync")

	ctx := context.Background()
	peers, err := hm.s.Peers(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("health check: list peers")
		return
	}

	for pubKey, info := range peers {
		if len(info.Addresses) == 0 {
			hm.setHealthy(pubKey, false)
			continue
		}
		select {
		case <-stopCh:
			return
		default:
		}
		hm.pingPeer(ctx, pubKey, info.Addresses[0])
	}
}

func (hm *peerHealthMonitor) pingPeer(ctx context.Context, pubKey string, addr Address) {
	t, err := hm.s.transport(addr.Transport)
	if err != nil {
		hm.setHealthy(pubKey, false)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := Encode(TypeHello, Hello{})
	if err != nil {
		hm.setHealthy(pubKey, false)
		return
	}
	resp, err := t.SendRequest(checkCtx, addr.Address, req)
	hm.setHealthy(pubKey, err == nil && resp.Type == TypeStatus)
}

func (hm *peerHealthMonitor) setHealthy(pubKey string, ok bool) {
	hm.mu.Lock()
	prev, known := hm.healthy[pubKey]
	hm.healthy[pubKey] = ok
	hm.mu.Unlock()

	if known && prev == ok {
		return
	}
	if ok {
		hm.s.events.Publish(Event{Type: EventPeerReachable, PeerKey: pubKey})
	} else {
		hm.s.events.Publish(Event{Type: EventPeerLost, PeerKey: pubKey})
	}
}

// counts returns how many known peers last answered Hello successfully
// versus not. A peer never yet checked counts as disconnected.
func (hm *peerHealthMonitor) counts(knownPeers map[string]PeerInfo) (connected int, disconnected int) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	for pubKey := range knownPeers {
		if hm.healthy[pubKey] {
			connected++
		} else {
			disconnected++
		}
	}
	return connected, disconnected
}
