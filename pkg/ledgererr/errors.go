package ledgererr

import "errors"

// Sentinel errors. Call sites generally wrap them with
// fmt.Errorf("context: %w", Sentinel); the backends return ErrNotFound
// bare for a missing entry, private key or instance metadata record.
var (
	// ErrNotFound is returned when a requested entry, key, peer, or request
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned for duplicate users, peers, or bootstrap
	// requests.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidEntry is returned for malformed entries: wrong version,
	// missing parent references, or inconsistent heights.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrAuthenticationFailed is returned when a signature is invalid, a key
	// is revoked, permission is insufficient, or settings corruption is
	// detected during commit.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrCRDT is returned for type mismatches, merge invariant violations,
	// invalid list positions, or bad paths in the CRDT document.
	ErrCRDT = errors.New("crdt error")

	// ErrStore is returned for per-substore operation failures: key not
	// found, serialization, type mismatch, requires-transaction.
	ErrStore = errors.New("store error")

	// ErrSync is returned for transport-not-enabled, server-lifecycle
	// misuse, protocol mismatch, unexpected response, or network failure.
	ErrSync = errors.New("sync error")

	// ErrBackend is returned for backend I/O or serialization failures.
	ErrBackend = errors.New("backend error")
)

// ProtocolMismatch carries the version skew detail for a sync handshake
// that failed because peers run different protocol versions.
type ProtocolMismatch struct {
	Expected int
	Received int
}

func (e *ProtocolMismatch) Error() string {
	return "sync protocol mismatch"
}

func (e *ProtocolMismatch) Unwrap() error {
	return ErrSync
}
