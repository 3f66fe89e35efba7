// Package backend defines the storage contract every persistence layer
// implements: append-only entry storage plus the tip indices the
// transaction engine and sync core rely on. Heights are read from the
// stored entries; no separate height index is kept. pkg/backend/boltdb and
// pkg/backend/memory are the two concrete implementations.
package backend

import (
	"context"

	"github.com/cuemby/warren-ledger/pkg/entry"
)

// InstanceMetadata records which databases play the system roles an
// Instance needs to rediscover across restarts.
type InstanceMetadata struct {
	UsersDB     entry.ID `json:"users_db"`
	DatabasesDB entry.ID `json:"databases_db"`
	SyncDB      entry.ID `json:"sync_db,omitempty"`
}

// Backend is the storage contract: append-only entries plus tip
// indices, scoped per process lifetime. Implementations must update the
// tip indices atomically with the entry write in
// PutVerified/PutUnverified (spec section 4.1). Heights are carried in
// the entries themselves; backends keep no height index.
type Backend interface {
	// PutVerified stores entry as already authenticated (e.g. produced
	// locally by the transaction engine, or accepted by the sync core
	// after running the auth validator). Idempotent by ID.
	PutVerified(ctx context.Context, e *entry.Entry) error

	// PutUnverified stores entry without having run the auth validator
	// against it, for callers (bulk import, testing) that explicitly
	// accept the risk. Idempotent by ID.
	PutUnverified(ctx context.Context, e *entry.Entry) error

	// Get returns the stored entry by ID, or ledgererr.ErrNotFound.
	Get(ctx context.Context, id entry.ID) (*entry.Entry, error)

	// IsVerified reports the verification status an entry was stored
	// with.
	IsVerified(ctx context.Context, id entry.ID) (bool, error)

	// GetTree returns every entry belonging to the tree rooted at root.
	GetTree(ctx context.Context, root entry.ID) ([]*entry.Entry, error)

	// GetSubtree returns every entry in the tree rooted at root that
	// touches the named substore.
	GetSubtree(ctx context.Context, root entry.ID, name string) ([]*entry.Entry, error)

	// AllRoots returns the ID of every root entry stored.
	AllRoots(ctx context.Context) ([]entry.ID, error)

	// GetTips returns the main-tree tips of the tree rooted at root: the
	// IDs with no child in that tree. An unknown or empty tree yields an
	// empty set without error.
	GetTips(ctx context.Context, root entry.ID) ([]entry.ID, error)

	// GetSubtreeTips returns the tips of the named substore within the
	// tree rooted at root.
	GetSubtreeTips(ctx context.Context, root entry.ID, name string) ([]entry.ID, error)

	// StorePrivateKey persists local-only key material under name,
	// opaque to the DAG core.
	StorePrivateKey(ctx context.Context, name string, key []byte) error

	// GetPrivateKey retrieves key material stored under name.
	GetPrivateKey(ctx context.Context, name string) ([]byte, error)

	// GetInstanceMetadata returns the recorded system-database roots, or
	// ledgererr.ErrNotFound if none have been recorded yet.
	GetInstanceMetadata(ctx context.Context) (*InstanceMetadata, error)

	// SetInstanceMetadata records the system-database roots.
	SetInstanceMetadata(ctx context.Context, meta *InstanceMetadata) error

	// Close releases any underlying resources (file handles, etc.).
	Close() error
}
