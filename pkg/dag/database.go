package dag

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/cuemby/warren-ledger/pkg/auth"
	"github.com/cuemby/warren-ledger/pkg/backend"
	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
)

// Database is a handle onto one tree in a Backend: its root ID, plus the
// shared loader and validator used to authorize every commit against it.
type Database struct {
	Root entry.ID

	backend   backend.Backend
	loader    auth.SettingsLoader
	validator *auth.Validator
}

// Create builds and persists a new root entry whose _settings.auth
// registers signingKeyName as an Admin(0) key, then returns the Database
// handle for the tree it roots. initialSettings, if non-nil, seeds any
// additional _settings content (e.g. further auth entries); the bootstrap
// admin entry is added to its "auth" map (replacing any entry already
// named signingKeyName), and an "auth" value that is not a map is replaced.
func Create(ctx context.Context, be backend.Backend, validator *auth.Validator, signingKey ed25519.PrivateKey, signingKeyName string, initialSettings *crdt.Doc) (*Database, error) {
	settings := initialSettings
	if settings == nil {
		settings = crdt.NewDoc()
	}

	authDoc := crdt.NewDoc()
	if existing, ok := settings.Get("auth"); ok && existing.Kind == crdt.KindMap {
		authDoc = existing.Map
	}
	keyDoc := crdt.NewDoc()
	pub := signingKey.Public().(ed25519.PublicKey)
	keyDoc.Set("pubkey", crdt.Text(entry.EncodePublicKey(pub)), 0, "")
	keyDoc.Set("permission", crdt.Text(entry.Admin(0).String()), 0, "")
	keyDoc.Set("status", crdt.Text(entry.KeyStatusActive.String()), 0, "")
	authDoc.Set(signingKeyName, crdt.MapValue(keyDoc), 0, "")
	settings.Set("auth", crdt.MapValue(authDoc), 0, "")

	data, err := settings.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal root _settings: %v", ledgererr.ErrCRDT, err)
	}

	builder := entry.NewBuilder().
		WithTree("", nil).
		WithHeight(0).
		WithSigKey(entry.Direct(signingKeyName)).
		AddSubtree(entry.SubtreeRef{Name: entry.SubtreeSettings, Data: data, Parents: nil, Height: 0})
	e := builder.Build()

	if err := e.Sign(signingKey); err != nil {
		return nil, fmt.Errorf("%w: sign root entry: %v", ledgererr.ErrInvalidEntry, err)
	}

	root, err := e.ID()
	if err != nil {
		return nil, err
	}

	if err := be.PutVerified(ctx, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
	}

	return &Database{Root: root, backend: be, loader: NewSettingsLoader(be), validator: validator}, nil
}

// Open returns a handle onto the tree rooted at root, which must already
// exist in be.
func Open(ctx context.Context, be backend.Backend, validator *auth.Validator, root entry.ID) (*Database, error) {
	if _, err := be.Get(ctx, root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ledgererr.ErrNotFound, root, err)
	}
	return &Database{Root: root, backend: be, loader: NewSettingsLoader(be), validator: validator}, nil
}

// LoadSettings returns the database's current _settings.auth, reconstructed
// by folding every ancestor entry that touches it.
func (db *Database) LoadSettings(ctx context.Context) (*auth.Settings, error) {
	state, err := ReadSubstore(ctx, db.backend, db.Root, entry.SubtreeSettings)
	if err != nil {
		return nil, err
	}
	return auth.ParseSettings(state)
}

// View returns the current merged state of substore, read-only.
func (db *Database) View(ctx context.Context, substore string) (*crdt.Doc, error) {
	return ReadSubstore(ctx, db.backend, db.Root, substore)
}

// NewTransaction opens a Transaction parented on the database's current
// main-tree tips.
func (db *Database) NewTransaction(ctx context.Context, signingKey ed25519.PrivateKey, sigKey entry.SigKey) (*Transaction, error) {
	tips, err := db.backend.GetTips(ctx, db.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererr.ErrBackend, err)
	}
	return newTransaction(db, tips, signingKey, sigKey), nil
}

// NewTransactionAt opens a Transaction parented explicitly on customParents
// instead of the database's current tips, for callers deliberately
// building on an older point in history.
func (db *Database) NewTransactionAt(ctx context.Context, signingKey ed25519.PrivateKey, sigKey entry.SigKey, customParents []entry.ID) (*Transaction, error) {
	return newTransaction(db, customParents, signingKey, sigKey), nil
}

// FindSigKeys returns every SigKey registered in this database's current
// auth settings whose public key matches pub, best authority first.
func (db *Database) FindSigKeys(ctx context.Context, pub []byte) ([]auth.ResolvedSigKey, error) {
	settings, err := db.LoadSettings(ctx)
	if err != nil {
		return nil, err
	}
	return auth.FindSigKeys(settings, pub), nil
}
