// Package entry defines the content-addressed entry type that forms the
// nodes of the Merkle-DAG: immutable records carrying main-tree and
// per-subtree parent links, a monotonic height, and an Ed25519 signature
// over the entry's canonical serialization.
package entry
