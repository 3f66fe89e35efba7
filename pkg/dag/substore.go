// Package dag implements the transaction engine and the Database
// handle: reading a substore's current merged state by folding its
// ancestor entries, staging mutations, and committing signed entries.
package dag

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/warren-ledger/pkg/backend"
	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
)

// ReadSubstore reconstructs the current CRDT state of substore name
// within the tree rooted at root: every ancestor entry touching that
// name, folded in ascending (subtree-height, entry-ID) order. An
// unknown root or a substore nothing has written yields an empty Doc,
// not an error.
func ReadSubstore(ctx context.Context, be backend.Backend, root entry.ID, name string) (*crdt.Doc, error) {
	entries, err := be.GetSubtree(ctx, root, name)
	if err != nil {
		return nil, fmt.Errorf("%w: read substore %q: %v", ledgererr.ErrBackend, name, err)
	}

	type deltaEntry struct {
		id     entry.ID
		height uint64
		data   []byte
	}
	deltas := make([]deltaEntry, 0, len(entries))
	for _, e := range entries {
		sub, ok := e.Subtree(name)
		if !ok {
			continue
		}
		id, err := e.ID()
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, deltaEntry{id: id, height: sub.Height, data: sub.Data})
	}

	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].height != deltas[j].height {
			return deltas[i].height < deltas[j].height
		}
		return deltas[i].id < deltas[j].id
	})

	state := crdt.NewDoc()
	for _, d := range deltas {
		delta := crdt.NewDoc()
		if len(d.data) > 0 {
			if err := delta.UnmarshalJSON(d.data); err != nil {
				return nil, fmt.Errorf("%w: decode substore delta: %v", ledgererr.ErrCRDT, err)
			}
		}
		crdt.Merge(state, delta, d.height, string(d.id))
	}
	return state, nil
}

// SubtreeHeight returns the subtree-height name would have if it were
// parented on the current subtree tips of root: 1+max(parent heights),
// or 0 with no parents. It also returns the parent IDs themselves,
// which the transaction engine uses directly as subtree.parents.
func SubtreeHeight(ctx context.Context, be backend.Backend, root entry.ID, name string) (uint64, []entry.ID, error) {
	tips, err := be.GetSubtreeTips(ctx, root, name)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
	}
	if len(tips) == 0 {
		return 0, nil, nil
	}
	heights := make([]uint64, 0, len(tips))
	for _, tip := range tips {
		e, err := be.Get(ctx, tip)
		if err != nil {
			return 0, nil, err
		}
		sub, ok := e.Subtree(name)
		if !ok {
			return 0, nil, fmt.Errorf("%w: tip %s does not carry substore %q", ledgererr.ErrInvalidEntry, tip, name)
		}
		heights = append(heights, sub.Height)
	}
	return entry.HeightOf(heights), tips, nil
}
