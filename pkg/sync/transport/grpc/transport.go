// Package grpc is the real-network sync.Transport: a gRPC server and
// client carrying JSON sync.Envelope payloads, over plaintext
// connections. Entry-level Ed25519 signing already carries this
// protocol's trust boundary, so the transport itself does not need to
// re-authenticate peers with mTLS.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	syncpkg "github.com/cuemby/warren-ledger/pkg/sync"
)

// Transport is a sync.Transport backed by a real gRPC server and
// per-request client dials.
type Transport struct {
	mu       sync.Mutex
	server   *grpclib.Server
	listener net.Listener
	handler  syncpkg.RequestHandler
	running  bool
}

// New returns an idle Transport. Call StartServer to begin listening.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) StartServer(ctx context.Context, addr string, handler syncpkg.RequestHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("sync/grpc: server already running")
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sync/grpc: listen on %s: %w", addr, err)
	}

	t.handler = handler
	grpcServer := grpclib.NewServer()
	grpcServer.RegisterService(&serviceDesc, t)

	t.server = grpcServer
	t.listener = lis
	t.running = true

	go func() {
		_ = grpcServer.Serve(lis)
	}()
	return nil
}

func (t *Transport) StopServer(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}

	done := make(chan struct{})
	go func() {
		t.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.server.Stop()
	}

	t.running = false
	t.server = nil
	t.listener = nil
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
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// exchange implements exchangeServer by delegating to the registered
// RequestHandler.
func (t *Transport) exchange(ctx context.Context, req syncpkg.Envelope) (syncpkg.Envelope, error) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return syncpkg.Envelope{}, fmt.Errorf("sync/grpc: no handler registered")
	}
	return handler(ctx, req)
}

func (t *Transport) SendRequest(ctx context.Context, addr string, req syncpkg.Envelope) (syncpkg.Envelope, error) {
	cc, err := grpclib.NewClient(addr, grpclib.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return syncpkg.Envelope{}, fmt.Errorf("sync/grpc: dial %s: %w", addr, err)
	}
	defer cc.Close()

	return invokeExchange(ctx, cc, req)
}
