// Package ledgererr defines the error taxonomy shared across the ledger
// packages: not-found, conflict, validation, authentication, CRDT, store,
// sync, and backend failures. Call sites wrap a sentinel with
// fmt.Errorf("...: %w", ledgererr.X) so callers can still errors.Is/errors.As
// through formatted context.
package ledgererr
