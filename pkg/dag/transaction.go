package dag

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/cuemby/warren-ledger/pkg/auth"
	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
)

// stagedSubtree tracks one substore's staging area within a
// Transaction: the state read from the backend (base), the operations
// this transaction performed in isolation (delta, which becomes the
// committed SubtreeRef.Data), and a working view combining the two for
// reads.
type stagedSubtree struct {
	base  *crdt.Doc
	delta *crdt.Doc
	view  *crdt.Doc
}

// Transaction stages substore mutations against a Database's current
// (or explicitly pinned) tips and commits them as one signed Entry.
// Dropping a Transaction before Commit discards all staged mutations;
// there is nothing to clean up since nothing outside the struct was
// touched.
type Transaction struct {
	db *Database

	mainParents []entry.ID
	signingKey  ed25519.PrivateKey
	sigKey      entry.SigKey

	staged map[string]*stagedSubtree

	committed bool
}

func newTransaction(db *Database, mainParents []entry.ID, signingKey ed25519.PrivateKey, sigKey entry.SigKey) *Transaction {
	return &Transaction{
		db:          db,
		mainParents: mainParents,
		signingKey:  signingKey,
		sigKey:      sigKey,
		staged:      make(map[string]*stagedSubtree),
	}
}

func isReservedSubstore(name string) bool {
	switch name {
	case entry.SubtreeSettings, entry.SubtreeRoot, entry.SubtreeIndex:
		return false
	default:
		return len(name) > 0 && name[0] == '_'
	}
}

func (tx *Transaction) stage(ctx context.Context, substore string) (*stagedSubtree, error) {
	if isReservedSubstore(substore) {
		return nil, fmt.Errorf("%w: substore name %q is reserved", ledgererr.ErrInvalidEntry, substore)
	}
	if s, ok := tx.staged[substore]; ok {
		return s, nil
	}
	base, err := ReadSubstore(ctx, tx.db.backend, tx.db.Root, substore)
	if err != nil {
		return nil, err
	}
	s := &stagedSubtree{
		base:  base,
		delta: crdt.NewDoc(),
		view:  cloneDoc(base),
	}
	tx.staged[substore] = s
	return s, nil
}

// cloneDoc returns a Doc whose public state matches d but is otherwise
// independent, achieved via a JSON round trip since Doc has no other
// exported copy constructor.
func cloneDoc(d *crdt.Doc) *crdt.Doc {
	data, err := d.MarshalJSON()
	if err != nil {
		return crdt.NewDoc()
	}
	out := crdt.NewDoc()
	_ = out.UnmarshalJSON(data)
	return out
}

// Set assigns val at the dot-separated path within substore.
func (tx *Transaction) Set(ctx context.Context, substore, path string, val crdt.Value) error {
	if tx.committed {
		return fmt.Errorf("%w: transaction already committed", ledgererr.ErrStore)
	}
	s, err := tx.stage(ctx, substore)
	if err != nil {
		return err
	}
	s.delta.SetPath(path, val, 0, "")
	s.view.SetPath(path, val, 0, "")
	return nil
}

// Delete tombstones path within substore.
func (tx *Transaction) Delete(ctx context.Context, substore, path string) error {
	if tx.committed {
		return fmt.Errorf("%w: transaction already committed", ledgererr.ErrStore)
	}
	s, err := tx.stage(ctx, substore)
	if err != nil {
		return err
	}
	s.delta.DeletePath(path, 0, "")
	s.view.DeletePath(path, 0, "")
	return nil
}

// Get reads path from substore's current view: base state overlaid
// with this transaction's own not-yet-committed writes.
func (tx *Transaction) Get(ctx context.Context, substore, path string) (crdt.Value, bool, error) {
	s, err := tx.stage(ctx, substore)
	if err != nil {
		return crdt.Value{}, false, err
	}
	v, ok := s.view.GetPath(path)
	return v, ok, nil
}

// requiredOperation reports which permission gate applies to this
// transaction's writes: writing _settings demands admin, any other
// touched substore demands write-or-admin, and a transaction touching
// nothing demands nothing beyond an active key.
func (tx *Transaction) requiredOperation() (op auth.Operation, any bool) {
	if s, ok := tx.staged[entry.SubtreeSettings]; ok && !s.delta.IsEmpty() {
		return auth.OpWriteSettings, true
	}
	for name, s := range tx.staged {
		if name == entry.SubtreeSettings {
			continue
		}
		if !s.delta.IsEmpty() {
			return auth.OpWriteData, true
		}
	}
	return 0, false
}

// Commit builds, authenticates, signs, and persists the staged
// mutations as one Entry.
func (tx *Transaction) Commit(ctx context.Context) (entry.ID, error) {
	if tx.committed {
		return "", fmt.Errorf("%w: transaction already committed", ledgererr.ErrStore)
	}

	mainHeight, err := tx.computeMainHeight(ctx)
	if err != nil {
		return "", err
	}

	var subtrees []entry.SubtreeRef
	names := make([]string, 0, len(tx.staged))
	for name, s := range tx.staged {
		if s.delta.IsEmpty() {
			continue
		}
		names = append(names, name)
	}
	for _, name := range names {
		s := tx.staged[name]
		height, parents, err := SubtreeHeight(ctx, tx.db.backend, tx.db.Root, name)
		if err != nil {
			return "", err
		}
		data, err := s.delta.MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("%w: marshal substore %q: %v", ledgererr.ErrCRDT, name, err)
		}
		subtrees = append(subtrees, entry.SubtreeRef{Name: name, Data: data, Parents: parents, Height: height})
	}

	root := tx.db.Root
	builder := entry.NewBuilder().
		WithTree(root, tx.mainParents).
		WithHeight(mainHeight).
		WithSigKey(tx.sigKey)
	if tx.sigKey.Kind == entryKindGlobal() {
		builder = builder.WithPubKey(tx.signingKey.Public().(ed25519.PublicKey))
	}
	for _, sub := range subtrees {
		builder = builder.AddSubtree(sub)
	}
	e := builder.Build()

	settingsForAuth, err := tx.settingsForAuth(ctx)
	if err != nil {
		return "", err
	}

	if !settingsForAuth.IsEmpty() {
		if err := tx.authorize(ctx, settingsForAuth); err != nil {
			return "", err
		}
	}

	if err := e.Sign(tx.signingKey); err != nil {
		return "", fmt.Errorf("%w: sign entry: %v", ledgererr.ErrInvalidEntry, err)
	}

	if err := tx.db.backend.PutVerified(ctx, &e); err != nil {
		return "", fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
	}

	if _, ok := tx.staged[entry.SubtreeSettings]; ok {
		tx.db.validator.InvalidateCache(root)
	}

	tx.committed = true
	return e.ID()
}

func (tx *Transaction) computeMainHeight(ctx context.Context) (uint64, error) {
	if len(tx.mainParents) == 0 {
		return 0, nil
	}
	heights := make([]uint64, 0, len(tx.mainParents))
	for _, p := range tx.mainParents {
		parent, err := tx.db.backend.Get(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("%w: main parent %s: %v", ledgererr.ErrInvalidEntry, p, err)
		}
		heights = append(heights, parent.Height)
	}
	return entry.HeightOf(heights), nil
}

// settingsForAuth returns the auth settings this commit is judged
// against: if the transaction itself edits _settings, the new
// (post-edit) view; otherwise the database's current settings.
func (tx *Transaction) settingsForAuth(ctx context.Context) (*auth.Settings, error) {
	if s, ok := tx.staged[entry.SubtreeSettings]; ok && !s.delta.IsEmpty() {
		return auth.ParseSettings(s.view)
	}
	return tx.db.LoadSettings(ctx)
}

func (tx *Transaction) authorize(ctx context.Context, settings *auth.Settings) error {
	var pubOverride []byte
	if tx.sigKey.Kind == entryKindGlobal() {
		pubOverride = tx.signingKey.Public().(ed25519.PublicKey)
	}
	resolved, err := auth.Resolve(ctx, tx.db.loader, settings, tx.sigKey, pubOverride)
	if err != nil {
		return err
	}
	if resolved.Status != entry.KeyStatusActive {
		return fmt.Errorf("%w: signing key is not active", ledgererr.ErrAuthenticationFailed)
	}
	op, any := tx.requiredOperation()
	if !any {
		return nil
	}
	if !auth.CheckPermission(resolved, op) {
		return fmt.Errorf("%w: insufficient permission for this commit", ledgererr.ErrAuthenticationFailed)
	}
	return nil
}

func entryKindGlobal() entry.SigKeyKind { return entry.SigKeyGlobal }
