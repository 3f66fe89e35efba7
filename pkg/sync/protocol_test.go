package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren-ledger/pkg/entry"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env, err := Encode(TypeSyncTreeRequest, SyncTreeRequest{
		TreeRoot:        entry.ID("root1"),
		KnownTips:       []entry.ID{"a", "b"},
		RequesterPubKey: "ed25519:abc",
	})
	require.NoError(t, err)
	assert.Equal(t, TypeSyncTreeRequest, env.Type)

	var got SyncTreeRequest
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, entry.ID("root1"), got.TreeRoot)
	assert.Len(t, got.KnownTips, 2)
	assert.Equal(t, "ed25519:abc", got.RequesterPubKey)
}

func TestEnvelopeDecodeEmptyDataIsNoop(t *testing.T) {
	env := Envelope{Type: TypeHello}
	var h Hello
	assert.NoError(t, env.Decode(&h), "expected decoding an empty-data envelope to succeed as a no-op")
}

func TestProtocolMismatchError(t *testing.T) {
	m := ProtocolMismatch{Expected: 1, Received: 2}
	assert.NotEmpty(t, m.Error(), "expected a non-empty error message")
}
