package sync

import "context"

// Transport is the network abstraction the sync core runs over.
// Request/response bodies are Envelope values; the transport is
// agnostic to the protocol they carry. A second, in-process
// implementation backs tests without a socket.
type Transport interface {
	// StartServer begins listening on addr (transport-specific format;
	// empty lets the implementation pick). Handler is invoked for every
	// inbound request.
	StartServer(ctx context.Context, addr string, handler RequestHandler) error

	// StopServer gracefully shuts the server down, waiting for in-flight
	// requests to complete.
	StopServer(ctx context.Context) error

	// IsServerRunning reports whether StartServer has been called and
	// StopServer has not yet completed.
	IsServerRunning() bool

	// GetServerAddress returns the address the running server is
	// actually listening on (resolved, e.g. after an OS-assigned port).
	GetServerAddress() string

	// SendRequest delivers req to the peer at addr and returns its
	// response, or a network error if addr is unreachable or the
	// context is cancelled first.
	SendRequest(ctx context.Context, addr string, req Envelope) (Envelope, error)
}

// RequestHandler processes one inbound Envelope and produces the
// response Envelope to send back. Handlers must not panic; any
// failure should be converted to a TypeError Envelope by the caller
// (pkg/sync/core.go does this for every handler it registers).
type RequestHandler func(ctx context.Context, req Envelope) (Envelope, error)

// Address names one way to reach a peer: a transport kind (matching a
// Transport implementation's name) and an address string in that
// transport's own format.
type Address struct {
	Transport string `json:"transport"`
	Address   string `json:"address"`
}
