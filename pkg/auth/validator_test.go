package auth

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/entry"
)

type staticLoader map[entry.ID]*Settings

func (l staticLoader) LoadSettings(_ context.Context, root entry.ID) (*Settings, error) {
	s, ok := l[root]
	if !ok {
		return nil, errNotFoundForTest
	}
	return s, nil
}

var errNotFoundForTest = &testError{"settings not found"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func settingsDocWithKey(name, pub string, perm entry.Permission, status entry.KeyStatus) *crdt.Doc {
	doc := crdt.NewDoc()
	auth := crdt.NewDoc()
	keyDoc := crdt.NewDoc()
	keyDoc.Set("pubkey", crdt.Text(pub), 0, "")
	keyDoc.Set("permission", crdt.Text(perm.String()), 0, "")
	keyDoc.Set("status", crdt.Text(status.String()), 0, "")
	auth.Set(name, crdt.MapValue(keyDoc), 0, "")
	doc.Set("auth", crdt.MapValue(auth), 0, "")
	return doc
}

func signEntry(t *testing.T, priv ed25519.PrivateKey, keyName string) (*entry.Entry, ed25519.PublicKey) {
	t.Helper()
	e := entry.NewBuilder().
		WithTree("root1", []entry.ID{"p1"}).
		WithHeight(1).
		WithSigKey(entry.Direct(keyName)).
		Build()
	require.NoError(t, e.Sign(priv))
	return &e, priv.Public().(ed25519.PublicKey)
}

func TestValidateAcceptsUnsignedWhenNoKeysConfigured(t *testing.T) {
	v := NewValidator(staticLoader{})
	settings, err := ParseSettings(crdt.NewDoc())
	require.NoError(t, err)

	e := entry.NewBuilder().WithTree("", nil).WithHeight(0).WithSigKey(entry.Direct("")).Build()
	ok, err := v.Validate(context.Background(), "root1", &e, settings)
	require.NoError(t, err)
	assert.True(t, ok, "expected unsigned entry to be accepted when no keys are configured")
}

func TestValidateRejectsUnsignedOnceKeysConfigured(t *testing.T) {
	v := NewValidator(staticLoader{})
	pub, _, _ := ed25519.GenerateKey(nil)
	settingsDoc := settingsDocWithKey("alice", entry.EncodePublicKey(pub), entry.Admin(0), entry.KeyStatusActive)
	settings, err := ParseSettings(settingsDoc)
	require.NoError(t, err)

	e := entry.NewBuilder().WithTree("", nil).WithHeight(0).WithSigKey(entry.Direct("")).Build()
	ok, err := v.Validate(context.Background(), "root1", &e, settings)
	require.NoError(t, err)
	assert.False(t, ok, "once keys are configured, an unsigned entry must be rejected")
}

func TestValidateDirectKeyValidSignature(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	settingsDoc := settingsDocWithKey("alice", entry.EncodePublicKey(pub), entry.Write(0), entry.KeyStatusActive)
	settings, err := ParseSettings(settingsDoc)
	require.NoError(t, err)

	e, _ := signEntry(t, priv, "alice")
	v := NewValidator(staticLoader{})
	ok, err := v.Validate(context.Background(), "root1", e, settings)
	require.NoError(t, err)
	assert.True(t, ok, "expected a validly signed entry under a registered key to validate")
}

func TestValidateRejectsRevokedKey(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	settingsDoc := settingsDocWithKey("alice", entry.EncodePublicKey(pub), entry.Write(0), entry.KeyStatusRevoked)
	settings, err := ParseSettings(settingsDoc)
	require.NoError(t, err)

	e, _ := signEntry(t, priv, "alice")
	v := NewValidator(staticLoader{})
	ok, err := v.Validate(context.Background(), "root1", e, settings)
	require.NoError(t, err)
	assert.False(t, ok, "a revoked key must fail validation even with a valid signature")
}

func TestValidateRejectsTamperedSignature(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	settingsDoc := settingsDocWithKey("alice", entry.EncodePublicKey(pub), entry.Write(0), entry.KeyStatusActive)
	settings, err := ParseSettings(settingsDoc)
	require.NoError(t, err)

	e, _ := signEntry(t, priv, "alice")
	e.Height = 99 // tamper after signing

	v := NewValidator(staticLoader{})
	ok, err := v.Validate(context.Background(), "root1", e, settings)
	require.NoError(t, err)
	assert.False(t, ok, "expected tampered entry to fail signature verification")
}

func TestResolveDelegationClampsPermissionAndFollowsChain(t *testing.T) {
	leafPub, leafPriv, _ := ed25519.GenerateKey(nil)
	_ = leafPriv

	delegatedDoc := settingsDocWithKey("leaf-key", entry.EncodePublicKey(leafPub), entry.Admin(0), entry.KeyStatusActive)
	delegatedSettings, err := ParseSettings(delegatedDoc)
	require.NoError(t, err)

	ownerDoc := crdt.NewDoc()
	auth := crdt.NewDoc()
	delegation := crdt.NewDoc()
	delegation.Set("kind", crdt.Text("delegation"), 0, "")
	delegation.Set("root", crdt.Text("delegated-root"), 0, "")
	delegation.Set("max", crdt.Text(entry.Write(5).String()), 0, "")
	delegation.Set("permission", crdt.Text(entry.Write(5).String()), 0, "")
	delegation.Set("status", crdt.Text(entry.KeyStatusActive.String()), 0, "")
	auth.Set("delegated", crdt.MapValue(delegation), 0, "")
	ownerDoc.Set("auth", crdt.MapValue(auth), 0, "")

	ownerSettings, err := ParseSettings(ownerDoc)
	require.NoError(t, err)

	loader := staticLoader{"delegated-root": delegatedSettings}
	resolved, err := Resolve(context.Background(), loader, ownerSettings, entry.DelegationPath([]entry.DelegationStep{
		{Root: "delegated-root", Key: "delegated"},
		{Root: "", Key: "leaf-key"},
	}), nil)
	require.NoError(t, err)

	// The delegated tree's admin(0) key must be clamped down to the
	// owning database's write(5) bound.
	assert.Equal(t, 0, resolved.Permission.Compare(entry.Write(5)), "expected clamp to write(5), got %v", resolved.Permission)
}

func TestCheckPermissionGatesSettingsWrites(t *testing.T) {
	writer := ResolvedAuth{Permission: entry.Write(0), Status: entry.KeyStatusActive}
	admin := ResolvedAuth{Permission: entry.Admin(0), Status: entry.KeyStatusActive}

	assert.False(t, CheckPermission(writer, OpWriteSettings), "a write-only key must not be able to write _settings")
	assert.True(t, CheckPermission(admin, OpWriteSettings), "an admin key must be able to write _settings")
	assert.True(t, CheckPermission(writer, OpWriteData), "a write key must be able to write ordinary data")
}
