package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	inmemorytransport "github.com/cuemby/warren-ledger/pkg/sync/transport/inmemory"
)

// TestFlushWorkerDeliversEnqueuedEntry confirms the background worker
// drains an enqueued item and delivers it as a SendEntries batch to the
// named peer address.
func TestFlushWorkerDeliversEnqueuedEntry(t *testing.T) {
	ctx := context.Background()
	clientSync, clientInst := newTestSync(t, "flush-client")

	tree, err := clientInst.CreateDatabase(ctx, clientInst.DeviceKey, "device")
	require.NoError(t, err)

	received := make(chan SendEntries, 1)
	fakeServer := inmemorytransport.New("flush-server")
	require.NoError(t, fakeServer.StartServer(ctx, "flush-server", func(ctx context.Context, req Envelope) (Envelope, error) {
		if req.Type == TypeSendEntries {
			var se SendEntries
			if err := req.Decode(&se); err != nil {
				return Envelope{}, err
			}
			received <- se
		}
		return mustEncode(TypeAck, Ack{})
	}))
	defer fakeServer.StopServer(ctx)

	clientSync.flush.Start()
	defer clientSync.flush.Stop()

	clientSync.Enqueue("peer-x", "inmemory", Address{Transport: "inmemory", Address: "flush-server"}, tree.Root, tree.Root)

	select {
	case se := <-received:
		require.Len(t, se.Entries, 1, "expected exactly one delivered entry")
		gotID, err := se.Entries[0].ID()
		require.NoError(t, err)
		require.Equal(t, tree.Root, gotID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the flush worker to deliver the enqueued entry")
	}
}

// TestFlushWorkerEnqueueNeverBlocks confirms enqueue returns promptly
// even when called far more often than the buffered queue holds, with
// no worker draining it.
func TestFlushWorkerEnqueueNeverBlocks(t *testing.T) {
	clientSync, clientInst := newTestSync(t, "flush-client-2")
	ctx := context.Background()

	tree, err := clientInst.CreateDatabase(ctx, clientInst.DeviceKey, "device")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			clientSync.flush.enqueue(flushItem{
				peerPubKey:    "peer-y",
				transportName: "inmemory",
				peerAddr:      Address{Transport: "inmemory", Address: "nowhere"},
				entryID:       tree.Root,
				treeID:        tree.Root,
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("enqueue blocked instead of spilling to a goroutine once the buffered queue filled")
	}
}
