package entry

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CurrentVersion is the only entry version this package can decode.
// Unknown versions must refuse to deserialize rather than guess at a
// migration.
const CurrentVersion = 1

// Reserved substore names. No other substore name may start with "_".
const (
	SubtreeSettings = "_settings"
	SubtreeRoot     = "_root"
	SubtreeIndex    = "_index"
)

// TreeRef is the main-tree linkage of an entry: the owning tree's root ID
// (empty for the root entry itself) and the set of main-tree parent IDs.
type TreeRef struct {
	Root    ID   `json:"root"`
	Parents []ID `json:"parents"`
}

// SubtreeRef is one named partition touched by an entry: its own
// CRDT-layer payload, its per-subtree parent set, and its per-subtree
// height.
type SubtreeRef struct {
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data,omitempty"`
	Parents []ID            `json:"parents"`
	Height  uint64          `json:"height"`
}

// Entry is an immutable, content-addressed node of the Merkle-DAG.
type Entry struct {
	Version  int          `json:"_v"`
	Tree     TreeRef      `json:"tree"`
	Subtrees []SubtreeRef `json:"subtrees"`
	Height   uint64       `json:"height"`
	Sig      Sig          `json:"sig"`
}

// IsRoot reports whether this entry has no main-tree parents, i.e. it is
// the root of its own tree.
func (e *Entry) IsRoot() bool {
	return len(e.Tree.Parents) == 0
}

// Subtree returns the named subtree reference, if the entry touches it.
func (e *Entry) Subtree(name string) (SubtreeRef, bool) {
	for _, s := range e.Subtrees {
		if s.Name == name {
			return s, true
		}
	}
	return SubtreeRef{}, false
}

// canonicalEntry is the exact shape hashed and signed: sig.sig is always
// omitted, tree.parents / subtree parents are sorted, and subtrees are
// sorted by name. Field order is fixed so every node computes the same
// hash for the same logical entry.
type canonicalEntry struct {
	Version  int              `json:"_v"`
	Tree     canonicalTreeRef `json:"tree"`
	Subtrees []canonicalSub   `json:"subtrees"`
	Height   uint64           `json:"height"`
	Sig      canonicalSig     `json:"sig"`
}

type canonicalTreeRef struct {
	Root    ID   `json:"root"`
	Parents []ID `json:"parents"`
}

type canonicalSub struct {
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data,omitempty"`
	Parents []ID            `json:"parents"`
	Height  uint64          `json:"height"`
}

type canonicalSig struct {
	Key    SigKey `json:"key"`
	PubKey []byte `json:"pubkey,omitempty"`
}

func (e *Entry) canonical() canonicalEntry {
	subs := make([]canonicalSub, len(e.Subtrees))
	for i, s := range e.Subtrees {
		subs[i] = canonicalSub{
			Name:    s.Name,
			Data:    s.Data,
			Parents: sortedCopy(s.Parents),
			Height:  s.Height,
		}
	}
	sortSubsByName(subs)

	return canonicalEntry{
		Version: e.Version,
		Tree: canonicalTreeRef{
			Root:    e.Tree.Root,
			Parents: sortedCopy(e.Tree.Parents),
		},
		Subtrees: subs,
		Height:   e.Height,
		Sig: canonicalSig{
			Key:    e.Sig.Key,
			PubKey: e.Sig.PubKey,
		},
	}
}

func sortSubsByName(subs []canonicalSub) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
}

// CanonicalBytes returns the deterministic JSON serialization of the entry
// with sig.sig omitted: the exact bytes that are hashed for ID() and
// signed/verified.
func (e *Entry) CanonicalBytes() ([]byte, error) {
	b, err := json.Marshal(e.canonical())
	if err != nil {
		return nil, fmt.Errorf("entry: marshal canonical form: %w", err)
	}
	return b, nil
}

// ID computes the entry's content-addressed identifier:
// hex(SHA-256(canonical(entry without sig.sig))).
func (e *Entry) ID() (ID, error) {
	b, err := e.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return ID(hex.EncodeToString(sum[:])), nil
}

// Sign computes the canonical bytes and signs them with priv, filling
// e.Sig.Sig. It does not set e.Sig.Key or e.Sig.PubKey; callers set those
// before calling Sign.
func (e *Entry) Sign(priv ed25519.PrivateKey) error {
	b, err := e.CanonicalBytes()
	if err != nil {
		return err
	}
	e.Sig.Sig = ed25519.Sign(priv, b)
	return nil
}

// VerifySignature checks e.Sig.Sig against e.CanonicalBytes() under pub.
// It fails closed: any error or a nil signature is treated as invalid.
func (e *Entry) VerifySignature(pub ed25519.PublicKey) (bool, error) {
	if len(e.Sig.Sig) == 0 {
		return false, nil
	}
	b, err := e.CanonicalBytes()
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, b, e.Sig.Sig), nil
}

// Marshal encodes the full entry (including sig.sig) for storage/transport.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an entry, refusing unknown versions outright.
func Unmarshal(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("entry: unmarshal: %w", err)
	}
	if e.Version != CurrentVersion {
		return nil, fmt.Errorf("entry: unsupported version %d", e.Version)
	}
	return &e, nil
}
