package sync

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/warren-ledger/pkg/auth"
	"github.com/cuemby/warren-ledger/pkg/backend"
	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/dag"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/instance"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
	"github.com/cuemby/warren-ledger/pkg/log"
)

const (
	substorePeers    = "peers"
	substoreTreeSync = "tree_sync"
	signingKeyName   = "device"
)

// PeerInfo is one entry of the peer registry: a display name and the
// addresses this instance knows how to reach it at.
type PeerInfo struct {
	DisplayName string    `json:"display_name"`
	Addresses   []Address `json:"addresses"`
}

// Sync is the peer-to-peer sync core: peer registry and tree-tracking
// state persisted through the instance's sync database (dogfooding
// pkg/dag — the sync database IS a Database, mutated through ordinary
// transactions), a set of registered transports, and background
// workers (flush, scheduler, health monitor, event broker) owned as
// long-lived fields started and stopped together.
type Sync struct {
	db        *dag.Database
	backend   backend.Backend
	validator *auth.Validator
	deviceKey ed25519.PrivateKey
	devicePub ed25519.PublicKey

	mu         sync.RWMutex
	transports map[string]Transport

	flush     *flushWorker
	scheduler *scheduler
	health    *peerHealthMonitor
	events    *eventBroker
}

// New wraps inst's backend/validator/device key and sync database into
// a Sync core. inst.Sync must already be open (instance.Open guarantees
// this).
func New(inst *instance.Instance) *Sync {
	s := &Sync{
		db:         inst.Sync,
		backend:    inst.Backend,
		validator:  inst.Validator,
		deviceKey:  inst.DeviceKey,
		devicePub:  inst.DevicePub,
		transports: make(map[string]Transport),
	}
	s.flush = newFlushWorker(s)
	s.scheduler = newScheduler(s)
	s.health = newPeerHealthMonitor(s)
	s.events = newEventBroker()
	return s
}

// Configure applies config.SyncConfig.MaxBackoff as the flush worker's
// retry ceiling. The reconciliation interval is set through
// StartScheduler instead. Call before Serve.
func (s *Sync) Configure(maxBackoff time.Duration) {
	s.flush.SetMaxBackoff(maxBackoff)
}

// StartScheduler enables the optional periodic per-tree diff loop at
// the given interval (or the package default if interval is zero). A
// Sync never runs this unless a caller opts in.
func (s *Sync) StartScheduler(interval time.Duration) {
	s.scheduler.Start(interval)
}

// RegisterTransport makes t available under name ("grpc", "inmemory",
// ...) for Serve and for outbound requests whose Address.Transport
// names it.
func (s *Sync) RegisterTransport(name string, t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports[name] = t
}

func (s *Sync) transport(name string) (Transport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transports[name]
	if !ok {
		return nil, fmt.Errorf("%w: sync: no transport registered under %q", ledgererr.ErrSync, name)
	}
	return t, nil
}

// Serve starts listening for inbound sync requests on the named
// transport at addr, and starts the background flush worker if it
// isn't already running.
func (s *Sync) Serve(ctx context.Context, transportName, addr string) error {
	t, err := s.transport(transportName)
	if err != nil {
		return err
	}
	if err := t.StartServer(ctx, addr, s.handleRequest); err != nil {
		return fmt.Errorf("%w: sync: start server: %v", ledgererr.ErrSync, err)
	}
	s.flush.Start()
	s.health.Start(0)
	s.events.Start()
	return nil
}

// Stop gracefully stops every running transport server and the
// background flush worker.
func (s *Sync) Stop(ctx context.Context) error {
	s.flush.Stop()
	s.scheduler.Stop()
	s.health.Stop()
	s.events.Stop()

	s.mu.RLock()
	transports := make([]Transport, 0, len(s.transports))
	for _, t := range s.transports {
		transports = append(transports, t)
	}
	s.mu.RUnlock()

	var firstErr error
	for _, t := range transports {
		if !t.IsServerRunning() {
			continue
		}
		if err := t.StopServer(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BackendStats implements metrics.StatsProvider by delegating to the
// underlying backend (mirrors instance.Instance.BackendStats; Sync
// wraps an Instance precisely so a caller samples peer and backend
// stats through one StatsProvider).
func (s *Sync) BackendStats(ctx context.Context) (entries int, roots int, err error) {
	rootIDs, err := s.backend.AllRoots(ctx)
	if err != nil {
		return 0, 0, err
	}
	total := 0
	for _, root := range rootIDs {
		tree, err := s.backend.GetTree(ctx, root)
		if err != nil {
			return 0, 0, err
		}
		total += len(tree)
	}
	return total, len(rootIDs), nil
}

// PeerStats implements metrics.StatsProvider, reporting how many
// registered peers last answered a Hello probe successfully. The
// peerHealthMonitor only runs between Serve and Stop; before its first
// sweep (or when Serve was never called) every known peer counts as
// disconnected rather than guessed at.
func (s *Sync) PeerStats() (connected int, disconnected int) {
	peers, err := s.Peers(context.Background())
	if err != nil {
		return 0, 0
	}
	return s.health.counts(peers)
}

// handleRequest dispatches one inbound Envelope. Handlers never panic;
// every failure path is converted into a TypeError Envelope before
// returning (callers — both Transport implementations here — always
// get a valid Envelope back).
func (s *Sync) handleRequest(ctx context.Context, req Envelope) (Envelope, error) {
	logger := log.WithComponent("sync")

	switch req.Type {
	case TypeHello:
		return mustEncode(TypeStatus, Status{Message: "ok"})

	case TypeHandshake:
		var h Handshake
		if err := req.Decode(&h); err != nil {
			return errorEnvelope(err)
		}
		if h.ProtocolVersion != ProtocolVersion {
			mismatch := ProtocolMismatch{Expected: ProtocolVersion, Received: h.ProtocolVersion}
			return errorEnvelope(mismatch)
		}
		return mustEncode(TypeHandshakeAck, HandshakeAck{DevicePubKey: entry.EncodePublicKey(s.devicePub)})

	case TypeSyncTreeRequest:
		var r SyncTreeRequest
		if err := req.Decode(&r); err != nil {
			return errorEnvelope(err)
		}
		return s.handleSyncTreeRequest(ctx, r)

	case TypeSendEntries:
		var se SendEntries
		if err := req.Decode(&se); err != nil {
			return errorEnvelope(err)
		}
		if err := s.ingestBatch(ctx, se.Entries); err != nil {
			logger.Warn().Err(err).Msg("rejected inbound entry batch")
			return errorEnvelope(err)
		}
		return mustEncode(TypeAck, Ack{})

	default:
		return errorEnvelope(fmt.Errorf("sync: unknown message type %q", req.Type))
	}
}

func (s *Sync) handleSyncTreeRequest(ctx context.Context, r SyncTreeRequest) (Envelope, error) {
	if r.RequesterPubKey != "" {
		if err := s.trackTree(ctx, r.RequesterPubKey, r.TreeRoot); err != nil {
			return errorEnvelope(err)
		}
	}

	missing, err := s.missingEntries(ctx, r.TreeRoot, r.KnownTips)
	if err != nil {
		return errorEnvelope(err)
	}
	return mustEncode(TypeSyncTreeResponse, SyncTreeResponse{Entries: missing})
}

func (s *Sync) missingEntries(ctx context.Context, treeRoot entry.ID, knownTips []entry.ID) ([]*entry.Entry, error) {
	all, err := s.backend.GetTree(ctx, treeRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
	}
	known := make(map[entry.ID]bool, len(knownTips))
	for _, id := range knownTips {
		known[id] = true
	}
	if len(known) == 0 {
		return all, nil
	}
	parents := make(map[entry.ID][]entry.ID, len(all))
	for _, e := range all {
		id, _ := e.ID()
		parents[id] = e.Tree.Parents
	}
	for stack := append([]entry.ID(nil), knownTips...); len(stack) > 0; {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range parents[id] {
			if !known[p] {
				known[p] = true
				stack = append(stack, p)
			}
		}
	}

	out := make([]*entry.Entry, 0, len(all))
	for _, e := range all {
		id, err := e.ID()
		if err != nil {
			return nil, err
		}
		if !known[id] {
			out = append(out, e)
		}
	}
	return out, nil
}

// IngestEntries validates and stores entries pulled via RequestTree,
// exposed for callers (notably the CLI's "sync pull") that want to
// apply a pulled batch to their own backend rather than just inspect
// it.
func (s *Sync) IngestEntries(ctx context.Context, entries []*entry.Entry) error {
	return s.ingestBatch(ctx, entries)
}

// ingestBatch identifies each entry's tree, validates it against that
// tree's current settings, and rejects the whole batch (no partial
// apply) the moment one entry fails.
func (s *Sync) ingestBatch(ctx context.Context, entries []*entry.Entry) error {
	for _, e := range entries {
		if err := s.ingestEntry(ctx, e); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := s.backend.PutVerified(ctx, e); err != nil {
			return fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
		}
		id, err := e.ID()
		if err != nil {
			continue
		}
		root := e.Tree.Root
		if e.IsRoot() {
			root = id
		}
		if _, ok := e.Subtree(entry.SubtreeSettings); ok {
			s.validator.InvalidateCache(root)
		}
		s.events.Publish(Event{Type: EventEntryIngested, TreeRoot: root, Message: string(id)})
	}
	return nil
}

func (s *Sync) ingestEntry(ctx context.Context, e *entry.Entry) error {
	root := e.Tree.Root
	if e.IsRoot() {
		id, err := e.ID()
		if err != nil {
			return fmt.Errorf("%w: compute entry id: %v", ledgererr.ErrInvalidEntry, err)
		}
		root = id
	}

	// A brand-new root's own entry is never yet in the backend, so this
	// reads its _settings straight out of the candidate entry's ancestry
	// rather than through dag.SettingsLoader (which requires the root to
	// already exist — correct for delegation hops into other, already-
	// known trees, wrong here).
	state, err := dag.ReadSubstore(ctx, s.backend, root, entry.SubtreeSettings)
	if err != nil {
		return err
	}
	settings, err := auth.ParseSettings(state)
	if err != nil {
		return fmt.Errorf("%w: parse settings for tree %s: %v", ledgererr.ErrInvalidEntry, root, err)
	}

	ok, err := s.validator.Validate(ctx, root, e, settings)
	if err != nil {
		return fmt.Errorf("%w: %v", ledgererr.ErrAuthenticationFailed, err)
	}
	if !ok {
		id, _ := e.ID()
		return fmt.Errorf("%w: entry %s failed authentication", ledgererr.ErrAuthenticationFailed, id)
	}
	return nil
}

// AddPeer registers or updates a peer's reachability information,
// persisted into the sync database's peers substore.
func (s *Sync) AddPeer(ctx context.Context, peerPubKey string, displayName string, addresses []Address) error {
	raw, err := json.Marshal(addresses)
	if err != nil {
		return fmt.Errorf("sync: marshal peer addresses: %w", err)
	}

	tx, err := s.db.NewTransaction(ctx, s.deviceKey, entry.Direct(signingKeyName))
	if err != nil {
		return err
	}
	if err := tx.Set(ctx, substorePeers, peerPubKey+".display_name", crdt.Text(displayName)); err != nil {
		return err
	}
	if err := tx.Set(ctx, substorePeers, peerPubKey+".addresses", crdt.Text(string(raw))); err != nil {
		return err
	}
	_, err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	s.events.Publish(Event{Type: EventPeerAdded, PeerKey: peerPubKey, Message: displayName})
	return nil
}

// Peers returns every registered peer, keyed by its encoded device
// public key.
func (s *Sync) Peers(ctx context.Context) (map[string]PeerInfo, error) {
	doc, err := s.db.View(ctx, substorePeers)
	if err != nil {
		return nil, err
	}

	out := make(map[string]PeerInfo)
	for _, key := range doc.Keys() {
		v, ok := doc.Get(key)
		if !ok || v.Kind != crdt.KindMap {
			continue
		}
		info := PeerInfo{}
		if name, ok := v.Map.GetText("display_name"); ok {
			info.DisplayName = name
		}
		if raw, ok := v.Map.GetText("addresses"); ok {
			_ = json.Unmarshal([]byte(raw), &info.Addresses)
		}
		out[key] = info
	}
	return out, nil
}

// trackTree records that peerPubKey is tracking treeRoot: any time this
// instance observes intent (an inbound SyncTreeRequest, or a local
// decision to push to a peer) it persists the pairing without operator
// action, so tracking stays correct from both sides independently.
func (s *Sync) trackTree(ctx context.Context, peerPubKey string, treeRoot entry.ID) error {
	tx, err := s.db.NewTransaction(ctx, s.deviceKey, entry.Direct(signingKeyName))
	if err != nil {
		return err
	}
	if err := tx.Set(ctx, substoreTreeSync, peerPubKey+"."+string(treeRoot), crdt.Bool(true)); err != nil {
		return err
	}
	_, err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	s.events.Publish(Event{Type: EventTreeTracked, TreeRoot: treeRoot, PeerKey: peerPubKey})
	return nil
}

// TrackedTrees returns every tree root peerPubKey is known to be
// tracking.
func (s *Sync) TrackedTrees(ctx context.Context, peerPubKey string) ([]entry.ID, error) {
	doc, err := s.db.View(ctx, substoreTreeSync)
	if err != nil {
		return nil, err
	}
	v, ok := doc.Get(peerPubKey)
	if !ok || v.Kind != crdt.KindMap {
		return nil, nil
	}
	out := make([]entry.ID, 0, v.Map.Len())
	for _, key := range v.Map.Keys() {
		out = append(out, entry.ID(key))
	}
	return out, nil
}

// RequestTree dials peerAddr over the named transport, asking for every
// entry in treeRoot beyond knownTips, and records that this instance
// (identified by its own device key) is now tracking treeRoot with that
// peer — the client-side half of the bidirectional tracking contract.
func (s *Sync) RequestTree(ctx context.Context, transportName string, peerAddr Address, peerPubKey string, treeRoot entry.ID, knownTips []entry.ID) ([]*entry.Entry, error) {
	t, err := s.transport(transportName)
	if err != nil {
		return nil, err
	}

	req, err := Encode(TypeSyncTreeRequest, SyncTreeRequest{
		TreeRoot:        treeRoot,
		KnownTips:       knownTips,
		RequesterPubKey: entry.EncodePublicKey(s.devicePub),
	})
	if err != nil {
		return nil, err
	}
	resp, err := t.SendRequest(ctx, peerAddr.Address, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererr.ErrSync, err)
	}
	if resp.Type == TypeError {
		var e Error
		_ = resp.Decode(&e)
		return nil, fmt.Errorf("%w: %s", ledgererr.ErrSync, e.Message)
	}

	var out SyncTreeResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}

	if err := s.trackTree(ctx, peerPubKey, treeRoot); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// PushEntries sends entries to peerAddr over the named transport and
// applies the peer's response: Ack or an idempotent already-applied
// result are both success; Error propagates as a ledgererr.ErrSync.
func (s *Sync) PushEntries(ctx context.Context, transportName string, peerAddr Address, entries []*entry.Entry) error {
	t, err := s.transport(transportName)
	if err != nil {
		return err
	}

	req, err := Encode(TypeSendEntries, SendEntries{Entries: entries})
	if err != nil {
		return err
	}
	resp, err := t.SendRequest(ctx, peerAddr.Address, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ledgererr.ErrSync, err)
	}
	if resp.Type == TypeError {
		var e Error
		_ = resp.Decode(&e)
		return fmt.Errorf("%w: %s", ledgererr.ErrSync, e.Message)
	}
	return nil
}

// Enqueue adds an entry to the background flush queue for delivery to
// a peer tracking treeID.
func (s *Sync) Enqueue(peerPubKey string, transportName string, peerAddr Address, entryID entry.ID, treeID entry.ID) {
	s.flush.enqueue(flushItem{
		peerPubKey:    peerPubKey,
		transportName: transportName,
		peerAddr:      peerAddr,
		entryID:       entryID,
		treeID:        treeID,
	})
}

func mustEncode(t MessageType, payload interface{}) (Envelope, error) {
	return Encode(t, payload)
}

func errorEnvelope(err error) (Envelope, error) {
	env, encErr := Encode(TypeError, Error{Message: err.Error()})
	if encErr != nil {
		return Envelope{}, encErr
	}
	return env, nil
}
