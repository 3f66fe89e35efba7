// Package inmemory is a process-local sync.Transport for tests:
// addresses are arbitrary strings keyed into a shared registry rather
// than real sockets, so tests exercise the real client/server pairing
// without standing up a network listener per test.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	syncpkg "github.com/cuemby/warren-ledger/pkg/sync"
)

// registry maps an address to the handler currently serving it, shared
// by every Transport in the process so two Transport values can reach
// each other without a real socket.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]syncpkg.RequestHandler)
)

// Transport is an in-process sync.Transport backed by the package-level
// registry.
type Transport struct {
	mu      sync.Mutex
	addr    string
	running bool
}

// New returns a Transport that will serve at addr once StartServer is
// called.
func New(addr string) *Transport {
	return &Transport{addr: addr}
}

func (t *Transport) StartServer(ctx context.Context, addr string, handler syncpkg.RequestHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("sync/inmemory: server already running at %s", t.addr)
	}
	if addr != "" {
		t.addr = addr
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[t.addr]; exists {
		return fmt.Errorf("sync/inmemory: address %s already in use", t.addr)
	}
	registry[t.addr] = handler
	t.running = true
	return nil
}

func (t *Transport) StopServer(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}

	registryMu.Lock()
	delete(registry, t.addr)
	registryMu.Unlock()
	t.running = false
	return nil
}

func (t *Transport) IsServerRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Transport) GetServerAddress() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}

func (t *Transport) SendRequest(ctx context.Context, addr string, req syncpkg.Envelope) (syncpkg.Envelope, error) {
	registryMu.RLock()
	handler, ok := registry[addr]
	registryMu.RUnlock()
	if !ok {
		return syncpkg.Envelope{}, fmt.Errorf("sync/inmemory: no server listening at %s", addr)
	}
	return handler(ctx, req)
}
