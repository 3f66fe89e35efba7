package entry

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityUnderReorder(t *testing.T) {
	a, b := ID("aaa"), ID("bbb")

	e1 := NewBuilder().
		WithTree("", []ID{a, b}).
		WithHeight(1).
		AddSubtree(SubtreeRef{Name: "notes", Data: []byte(`{"k":"v"}`), Parents: nil, Height: 0}).
		WithSigKey(Direct("alice")).
		Build()

	e2 := NewBuilder().
		WithTree("", []ID{b, a}).
		WithHeight(1).
		AddSubtree(SubtreeRef{Name: "notes", Data: []byte(`{"k":"v"}`), Parents: nil, Height: 0}).
		WithSigKey(Direct("alice")).
		Build()

	id1, err := e1.ID()
	require.NoError(t, err)
	id2, err := e2.ID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "expected equal IDs under parent reorder")
}

func TestIdentityUnderSubtreeReorder(t *testing.T) {
	base := func(order []string) Entry {
		b := NewBuilder().WithTree("root1", []ID{"p1"}).WithHeight(1).WithSigKey(Direct("alice"))
		for _, name := range order {
			b.AddSubtree(SubtreeRef{Name: name, Parents: []ID{"x"}, Height: 0})
		}
		return b.Build()
	}

	e1 := base([]string{"a", "b"})
	e2 := base([]string{"b", "a"})

	id1, _ := e1.ID()
	id2, _ := e2.ID()
	assert.Equal(t, id1, id2, "expected equal IDs under subtree reorder")
}

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	e := NewBuilder().
		WithTree("", nil).
		WithHeight(0).
		WithSigKey(Direct("alice")).
		Build()

	require.NoError(t, e.Sign(priv))

	ok, err := e.VerifySignature(pub)
	require.NoError(t, err)
	assert.True(t, ok, "expected signature to verify")

	// Tampering with height must invalidate the signature.
	e.Height = 5
	ok, err = e.VerifySignature(pub)
	require.NoError(t, err)
	assert.False(t, ok, "expected tampered entry to fail verification")
}

func TestUnmarshalRefusesUnknownVersion(t *testing.T) {
	_, err := Unmarshal([]byte(`{"_v":99,"tree":{"root":"","parents":[]},"subtrees":[],"height":0,"sig":{"key":{"kind":"direct"}}}`))
	assert.Error(t, err, "expected error decoding unknown version")
}

func TestPermissionOrdering(t *testing.T) {
	assert.True(t, Read().Compare(Write(5)) < 0, "read should have less authority than write")
	assert.True(t, Write(5).Compare(Admin(5)) < 0, "write should have less authority than admin")
	assert.True(t, Admin(0).Compare(Admin(10)) > 0, "admin(0) should outrank admin(10)")
}

func TestPermissionRoundTrip(t *testing.T) {
	for _, s := range []string{"read", "write:10", "admin:0"} {
		p, err := ParsePermission(s)
		require.NoError(t, err)
		assert.Equal(t, s, p.String(), "round trip mismatch")
	}
}

func TestPermissionBoundsClamp(t *testing.T) {
	min := Read()
	bounds := PermissionBounds{Max: Write(10), Min: &min}

	assert.Equal(t, 0, bounds.Clamp(Admin(0)).Compare(Write(10)), "expected clamp down to max")
	// Nothing below Read is possible in this model, so Min is a no-op here,
	// but Clamp must still return a value within bounds.
	assert.Equal(t, 0, bounds.Clamp(Write(20)).Compare(Write(20)), "expected value within bounds unchanged")
}
