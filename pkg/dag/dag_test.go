package dag

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren-ledger/pkg/auth"
	"github.com/cuemby/warren-ledger/pkg/backend/memory"
	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/entry"
)

func newTestDatabase(t *testing.T) (*Database, ed25519.PrivateKey) {
	t.Helper()
	be := memory.New()
	validator := auth.NewValidator(NewSettingsLoader(be))
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_ = pub
	db, err := Create(context.Background(), be, validator, priv, "root-admin", nil)
	require.NoError(t, err)
	return db, priv
}

func TestCreateThenCommitRoundTrip(t *testing.T) {
	db, priv := newTestDatabase(t)
	ctx := context.Background()

	tx, err := db.NewTransaction(ctx, priv, entry.Direct("root-admin"))
	require.NoError(t, err)
	require.NoError(t, tx.Set(ctx, "notes", "title", crdt.Text("hello")))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	state, err := db.View(ctx, "notes")
	require.NoError(t, err)
	got, ok := state.GetText("title")
	assert.True(t, ok)
	assert.Equal(t, "hello", got)
}

func TestSecondCommitBuildsOnFirst(t *testing.T) {
	db, priv := newTestDatabase(t)
	ctx := context.Background()

	tx1, _ := db.NewTransaction(ctx, priv, entry.Direct("root-admin"))
	tx1.Set(ctx, "notes", "a", crdt.Text("1"))
	_, err := tx1.Commit(ctx)
	require.NoError(t, err)

	tx2, _ := db.NewTransaction(ctx, priv, entry.Direct("root-admin"))
	tx2.Set(ctx, "notes", "b", crdt.Text("2"))
	_, err = tx2.Commit(ctx)
	require.NoError(t, err)

	state, err := db.View(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Len(), "expected both commits' keys to survive")
}

func TestWriteOnlyKeyCannotWriteSettings(t *testing.T) {
	db, adminPriv := newTestDatabase(t)
	ctx := context.Background()

	writerPub, writerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx, _ := db.NewTransaction(ctx, adminPriv, entry.Direct("root-admin"))
	settingsDoc := crdt.NewDoc()
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.pubkey", crdt.Text(entry.EncodePublicKey(writerPub)))
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.permission", crdt.Text(entry.Write(10).String()))
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.status", crdt.Text(entry.KeyStatusActive.String()))
	_ = settingsDoc
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	writerTx, _ := db.NewTransaction(ctx, writerPriv, entry.Direct("writer"))
	writerTx.Set(ctx, entry.SubtreeSettings, "auth.mallory.permission", crdt.Text(entry.Admin(0).String()))
	_, err = writerTx.Commit(ctx)
	assert.Error(t, err, "expected a write-only key to be rejected writing _settings")
}

func TestWriteOnlyKeyCanWriteOrdinaryData(t *testing.T) {
	db, adminPriv := newTestDatabase(t)
	ctx := context.Background()

	writerPub, writerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx, _ := db.NewTransaction(ctx, adminPriv, entry.Direct("root-admin"))
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.pubkey", crdt.Text(entry.EncodePublicKey(writerPub)))
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.permission", crdt.Text(entry.Write(10).String()))
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.status", crdt.Text(entry.KeyStatusActive.String()))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	writerTx, _ := db.NewTransaction(ctx, writerPriv, entry.Direct("writer"))
	writerTx.Set(ctx, "notes", "k", crdt.Text("v"))
	_, err = writerTx.Commit(ctx)
	assert.NoError(t, err, "expected a write key to commit ordinary data")
}

func TestRevokedKeyCannotCommit(t *testing.T) {
	db, adminPriv := newTestDatabase(t)
	ctx := context.Background()

	writerPub, writerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx, _ := db.NewTransaction(ctx, adminPriv, entry.Direct("root-admin"))
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.pubkey", crdt.Text(entry.EncodePublicKey(writerPub)))
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.permission", crdt.Text(entry.Write(10).String()))
	tx.Set(ctx, entry.SubtreeSettings, "auth.writer.status", crdt.Text(entry.KeyStatusRevoked.String()))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	writerTx, _ := db.NewTransaction(ctx, writerPriv, entry.Direct("writer"))
	writerTx.Set(ctx, "notes", "k", crdt.Text("v"))
	_, err = writerTx.Commit(ctx)
	assert.Error(t, err, "expected a revoked key to be rejected")
}

func TestReservedSubstoreNameRejected(t *testing.T) {
	db, priv := newTestDatabase(t)
	ctx := context.Background()

	tx, _ := db.NewTransaction(ctx, priv, entry.Direct("root-admin"))
	err := tx.Set(ctx, "_bogus", "k", crdt.Text("v"))
	assert.Error(t, err, "expected a reserved substore name to be rejected")
}

func TestOpenUnknownRootFails(t *testing.T) {
	be := memory.New()
	validator := auth.NewValidator(NewSettingsLoader(be))
	_, err := Open(context.Background(), be, validator, "no-such-root")
	assert.Error(t, err, "expected Open against an unknown root to fail")
}
