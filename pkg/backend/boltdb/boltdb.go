// Package boltdb implements pkg/backend.Backend on top of go.etcd.io/bbolt:
// one bucket per logical collection, JSON-encoded values, db.Update/db.View
// closures per operation.
package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/warren-ledger/pkg/backend"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntries        = []byte("entries")
	bucketVerified       = []byte("verified")
	bucketTreeTips       = []byte("tree_tips")
	bucketTreeMembers    = []byte("tree_members")
	bucketSubtreeTips    = []byte("subtree_tips")
	bucketSubtreeMembers = []byte("subtree_members")
	bucketPrivateKeys    = []byte("private_keys")
	bucketInstanceMeta   = []byte("instance_meta")
)

const instanceMetaKey = "metadata"

// Backend is a BoltDB-backed implementation of backend.Backend.
type Backend struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a BoltDB file under dataDir and
// ensures every bucket this backend needs exists.
func Open(dataDir string) (*Backend, error) {
	path := filepath.Join(dataDir, "ledger.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open boltdb: %v", ledgererr.ErrBackend, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketEntries, bucketVerified, bucketTreeTips, bucketTreeMembers,
			bucketSubtreeTips, bucketSubtreeMembers, bucketPrivateKeys, bucketInstanceMeta,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
	}

	return &Backend{db: db}, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

// nestedBucket fetches or creates, under parent, a bucket keyed by root,
// used for the per-tree tip/membership buckets (tree_tips/<root>,
// tree_members/<root>, ...).
func nestedBucket(tx *bolt.Tx, parent []byte, root entry.ID, create bool) (*bolt.Bucket, error) {
	top := tx.Bucket(parent)
	if create {
		return top.CreateBucketIfNotExists([]byte(root))
	}
	return top.Bucket([]byte(root)), nil
}

// substoreBucket fetches or creates, under parent/root, a bucket keyed
// by substore name.
func substoreBucket(tx *bolt.Tx, parent []byte, root entry.ID, name string, create bool) (*bolt.Bucket, error) {
	rootBucket, err := nestedBucket(tx, parent, root, create)
	if err != nil {
		return nil, err
	}
	if rootBucket == nil {
		return nil, nil
	}
	if create {
		return rootBucket.CreateBucketIfNotExists([]byte(name))
	}
	return rootBucket.Bucket([]byte(name)), nil
}

func (b *Backend) put(_ context.Context, e *entry.Entry, verified bool) error {
	id, err := e.ID()
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		if entries.Get([]byte(id)) != nil {
			return nil
		}

		data, err := e.Marshal()
		if err != nil {
			return fmt.Errorf("%w: marshal entry: %v", ledgererr.ErrBackend, err)
		}
		if err := entries.Put([]byte(id), data); err != nil {
			return fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
		}

		verifiedBucket := tx.Bucket(bucketVerified)
		flag := []byte("0")
		if verified {
			flag = []byte("1")
		}
		if err := verifiedBucket.Put([]byte(id), flag); err != nil {
			return fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
		}

		root := e.Tree.Root
		if e.IsRoot() {
			root = id
		}

		members, err := nestedBucket(tx, bucketTreeMembers, root, true)
		if err != nil {
			return err
		}
		if err := members.Put([]byte(id), []byte{1}); err != nil {
			return err
		}

		tips, err := nestedBucket(tx, bucketTreeTips, root, true)
		if err != nil {
			return err
		}
		for _, p := range e.Tree.Parents {
			if err := tips.Delete([]byte(p)); err != nil {
				return err
			}
		}
		if err := tips.Put([]byte(id), []byte{1}); err != nil {
			return err
		}

		for _, sub := range e.Subtrees {
			subMembers, err := substoreBucket(tx, bucketSubtreeMembers, root, sub.Name, true)
			if err != nil {
				return err
			}
			if err := subMembers.Put([]byte(id), []byte{1}); err != nil {
				return err
			}

			subTips, err := substoreBucket(tx, bucketSubtreeTips, root, sub.Name, true)
			if err != nil {
				return err
			}
			for _, p := range sub.Parents {
				if err := subTips.Delete([]byte(p)); err != nil {
					return err
				}
			}
			if err := subTips.Put([]byte(id), []byte{1}); err != nil {
				return err
			}
		}

		return nil
	})
}

func (b *Backend) PutVerified(ctx context.Context, e *entry.Entry) error {
	return b.put(ctx, e, true)
}

func (b *Backend) PutUnverified(ctx context.Context, e *entry.Entry) error {
	return b.put(ctx, e, false)
}

func (b *Backend) Get(_ context.Context, id entry.ID) (*entry.Entry, error) {
	var out *entry.Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEntries).Get([]byte(id))
		if data == nil {
			return ledgererr.ErrNotFound
		}
		e, err := entry.Unmarshal(data)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (b *Backend) IsVerified(_ context.Context, id entry.ID) (bool, error) {
	var verified bool
	err := b.db.View(func(tx *bolt.Tx) error {
		flag := tx.Bucket(bucketVerified).Get([]byte(id))
		if flag == nil {
			return ledgererr.ErrNotFound
		}
		verified = string(flag) == "1"
		return nil
	})
	return verified, err
}

func (b *Backend) idsFromBucket(bucket *bolt.Bucket) []entry.ID {
	if bucket == nil {
		return nil
	}
	out := make([]entry.ID, 0)
	_ = bucket.ForEach(func(k, _ []byte) error {
		out = append(out, entry.ID(k))
		return nil
	})
	return out
}

func (b *Backend) GetTree(_ context.Context, root entry.ID) ([]*entry.Entry, error) {
	var out []*entry.Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		members, err := nestedBucket(tx, bucketTreeMembers, root, false)
		if err != nil {
			return err
		}
		entriesBucket := tx.Bucket(bucketEntries)
		for _, id := range b.idsFromBucket(members) {
			data := entriesBucket.Get([]byte(id))
			if data == nil {
				continue
			}
			e, err := entry.Unmarshal(data)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func (b *Backend) GetSubtree(_ context.Context, root entry.ID, name string) ([]*entry.Entry, error) {
	var out []*entry.Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		members, err := substoreBucket(tx, bucketSubtreeMembers, root, name, false)
		if err != nil {
			return err
		}
		entriesBucket := tx.Bucket(bucketEntries)
		for _, id := range b.idsFromBucket(members) {
			data := entriesBucket.Get([]byte(id))
			if data == nil {
				continue
			}
			e, err := entry.Unmarshal(data)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func (b *Backend) AllRoots(_ context.Context) ([]entry.ID, error) {
	var out []entry.ID
	err := b.db.View(func(tx *bolt.Tx) error {
		top := tx.Bucket(bucketTreeMembers)
		return top.ForEach(func(name, v []byte) error {
			if v == nil {
				out = append(out, entry.ID(name))
			}
			return nil
		})
	})
	return out, err
}

func (b *Backend) GetTips(_ context.Context, root entry.ID) ([]entry.ID, error) {
	var out []entry.ID
	err := b.db.View(func(tx *bolt.Tx) error {
		tips, err := nestedBucket(tx, bucketTreeTips, root, false)
		if err != nil {
			return err
		}
		out = b.idsFromBucket(tips)
		return nil
	})
	return out, err
}

func (b *Backend) GetSubtreeTips(_ context.Context, root entry.ID, name string) ([]entry.ID, error) {
	var out []entry.ID
	err := b.db.View(func(tx *bolt.Tx) error {
		tips, err := substoreBucket(tx, bucketSubtreeTips, root, name, false)
		if err != nil {
			return err
		}
		out = b.idsFromBucket(tips)
		return nil
	})
	return out, err
}

func (b *Backend) StorePrivateKey(_ context.Context, name string, key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrivateKeys).Put([]byte(name), key)
	})
}

func (b *Backend) GetPrivateKey(_ context.Context, name string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPrivateKeys).Get([]byte(name))
		if data == nil {
			return ledgererr.ErrNotFound
		}
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

func (b *Backend) GetInstanceMetadata(_ context.Context) (*backend.InstanceMetadata, error) {
	var meta backend.InstanceMetadata
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInstanceMeta).Get([]byte(instanceMetaKey))
		if data == nil {
			return ledgererr.ErrNotFound
		}
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (b *Backend) SetInstanceMetadata(_ context.Context, meta *backend.InstanceMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: marshal instance metadata: %v", ledgererr.ErrBackend, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstanceMeta).Put([]byte(instanceMetaKey), data)
	})
}

var _ backend.Backend = (*Backend)(nil)
