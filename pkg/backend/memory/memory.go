// Package memory implements an in-process, non-persistent backend used
// by tests and by ephemeral sessions (e.g. the sync core's scheduler
// dry-runs). It mirrors the indexing rules pkg/backend/boltdb enforces
// against real storage.
package memory

import (
	"context"
	"sync"

	"github.com/cuemby/warren-ledger/pkg/backend"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
)

type idSet map[entry.ID]struct{}

// Backend is a mutex-guarded, map-backed implementation of
// backend.Backend. Reads take the read lock; writes take the write lock
// for the whole store, which is sufficient for tests and single-process
// use.
type Backend struct {
	mu sync.RWMutex

	entries  map[entry.ID]*entry.Entry
	verified map[entry.ID]bool

	treeEntries map[entry.ID]idSet
	treeTips    map[entry.ID]idSet

	subtreeEntries map[entry.ID]map[string]idSet
	subtreeTips    map[entry.ID]map[string]idSet

	privateKeys map[string][]byte
	meta        *backend.InstanceMetadata
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{
		entries:        make(map[entry.ID]*entry.Entry),
		verified:       make(map[entry.ID]bool),
		treeEntries:    make(map[entry.ID]idSet),
		treeTips:       make(map[entry.ID]idSet),
		subtreeEntries: make(map[entry.ID]map[string]idSet),
		subtreeTips:    make(map[entry.ID]map[string]idSet),
		privateKeys:    make(map[string][]byte),
	}
}

func (b *Backend) put(_ context.Context, e *entry.Entry, verified bool) error {
	id, err := e.ID()
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[id]; exists {
		return nil
	}

	root := e.Tree.Root
	if e.IsRoot() {
		root = id
	}

	if b.treeEntries[root] == nil {
		b.treeEntries[root] = make(idSet)
		b.treeTips[root] = make(idSet)
	}
	b.treeEntries[root][id] = struct{}{}
	for _, p := range e.Tree.Parents {
		delete(b.treeTips[root], p)
	}
	b.treeTips[root][id] = struct{}{}

	if b.subtreeEntries[root] == nil {
		b.subtreeEntries[root] = make(map[string]idSet)
		b.subtreeTips[root] = make(map[string]idSet)
	}
	for _, sub := range e.Subtrees {
		if b.subtreeEntries[root][sub.Name] == nil {
			b.subtreeEntries[root][sub.Name] = make(idSet)
			b.subtreeTips[root][sub.Name] = make(idSet)
		}
		b.subtreeEntries[root][sub.Name][id] = struct{}{}
		for _, p := range sub.Parents {
			delete(b.subtreeTips[root][sub.Name], p)
		}
		b.subtreeTips[root][sub.Name][id] = struct{}{}
	}

	b.entries[id] = e
	b.verified[id] = verified
	return nil
}

func (b *Backend) PutVerified(ctx context.Context, e *entry.Entry) error {
	return b.put(ctx, e, true)
}

func (b *Backend) PutUnverified(ctx context.Context, e *entry.Entry) error {
	return b.put(ctx, e, false)
}

func (b *Backend) Get(_ context.Context, id entry.ID) (*entry.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return nil, ledgererr.ErrNotFound
	}
	return e, nil
}

func (b *Backend) IsVerified(_ context.Context, id entry.ID) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.verified[id]
	if !ok {
		return false, ledgererr.ErrNotFound
	}
	return v, nil
}

func (b *Backend) GetTree(_ context.Context, root entry.ID) ([]*entry.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*entry.Entry, 0, len(b.treeEntries[root]))
	for id := range b.treeEntries[root] {
		out = append(out, b.entries[id])
	}
	return out, nil
}

func (b *Backend) GetSubtree(_ context.Context, root entry.ID, name string) ([]*entry.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*entry.Entry, 0, len(b.subtreeEntries[root][name]))
	for id := range b.subtreeEntries[root][name] {
		out = append(out, b.entries[id])
	}
	return out, nil
}

func (b *Backend) AllRoots(_ context.Context) ([]entry.ID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]entry.ID, 0, len(b.treeEntries))
	for root := range b.treeEntries {
		out = append(out, root)
	}
	return out, nil
}

func (b *Backend) GetTips(_ context.Context, root entry.ID) ([]entry.ID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]entry.ID, 0, len(b.treeTips[root]))
	for id := range b.treeTips[root] {
		out = append(out, id)
	}
	return out, nil
}

func (b *Backend) GetSubtreeTips(_ context.Context, root entry.ID, name string) ([]entry.ID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tips := b.subtreeTips[root][name]
	out := make([]entry.ID, 0, len(tips))
	for id := range tips {
		out = append(out, id)
	}
	return out, nil
}

func (b *Backend) StorePrivateKey(_ context.Context, name string, key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(key))
	copy(cp, key)
	b.privateKeys[name] = cp
	return nil
}

func (b *Backend) GetPrivateKey(_ context.Context, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	key, ok := b.privateKeys[name]
	if !ok {
		return nil, ledgererr.ErrNotFound
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	return cp, nil
}

func (b *Backend) GetInstanceMetadata(_ context.Context) (*backend.InstanceMetadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.meta == nil {
		return nil, ledgererr.ErrNotFound
	}
	cp := *b.meta
	return &cp, nil
}

func (b *Backend) SetInstanceMetadata(_ context.Context, meta *backend.InstanceMetadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *meta
	b.meta = &cp
	return nil
}

func (b *Backend) Close() error {
	return nil
}

var _ backend.Backend = (*Backend)(nil)
