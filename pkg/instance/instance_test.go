package instance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren-ledger/pkg/backend/memory"
	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/entry"
)

func TestOpenBootstrapsSystemDatabases(t *testing.T) {
	be := memory.New()
	ctx := context.Background()

	inst, err := Open(ctx, be)
	require.NoError(t, err)
	require.NotNil(t, inst.Users)
	require.NotNil(t, inst.Databases)
	require.NotNil(t, inst.Sync)

	meta, err := be.GetInstanceMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, inst.Users.Root, meta.UsersDB, "persisted metadata does not match bootstrapped users db root")
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	be := memory.New()
	ctx := context.Background()

	first, err := Open(ctx, be)
	require.NoError(t, err)

	second, err := Open(ctx, be)
	require.NoError(t, err)
	assert.Equal(t, first.Users.Root, second.Users.Root, "expected reopening the same backend to reuse the same system databases")
	assert.Equal(t, string(first.DeviceKey), string(second.DeviceKey), "expected the device key to survive reopening")
}

func TestCreateAndOpenUserDatabase(t *testing.T) {
	be := memory.New()
	ctx := context.Background()

	inst, err := Open(ctx, be)
	require.NoError(t, err)

	db, err := inst.CreateDatabase(ctx, inst.DeviceKey, "device")
	require.NoError(t, err)

	reopened, err := inst.OpenDatabase(ctx, db.Root)
	require.NoError(t, err)
	assert.Equal(t, db.Root, reopened.Root, "expected OpenDatabase to resolve the same root")
}

func TestBackendStatsCountsEntries(t *testing.T) {
	be := memory.New()
	ctx := context.Background()

	inst, err := Open(ctx, be)
	require.NoError(t, err)

	entries, roots, err := inst.BackendStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, roots, "expected 3 bootstrapped system databases")
	assert.Equal(t, 3, entries, "expected 3 root entries before any commits")

	tx, err := inst.Users.NewTransaction(ctx, inst.DeviceKey, entry.Direct("device"))
	require.NoError(t, err)
	require.NoError(t, tx.Set(ctx, "profiles", "alice", crdt.Text("hello")))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	entries, _, err = inst.BackendStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, entries, "expected the commit to add one entry")
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	sess, err := store.Create("alice", time.Hour)
	require.NoError(t, err)

	got, err := store.Validate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserKey)

	store.Revoke(sess.Token)
	_, err = store.Validate(sess.Token)
	assert.Error(t, err, "expected a revoked token to fail validation")
}

func TestSessionStoreCleanupExpired(t *testing.T) {
	store := NewSessionStore()
	sess, err := store.Create("bob", -time.Minute)
	require.NoError(t, err)

	store.CleanupExpired()
	assert.Empty(t, store.List(), "expected the already-expired session to be cleaned up")

	_, err = store.Validate(sess.Token)
	assert.Error(t, err, "expected an expired session to fail validation")
}
