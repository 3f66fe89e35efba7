package entry

import (
	"encoding/json"
	"fmt"
)

// SigKeyKind tags which resolution strategy a SigKey uses.
type SigKeyKind string

const (
	SigKeyDirect     SigKeyKind = "direct"
	SigKeyGlobal     SigKeyKind = "global"
	SigKeyDelegation SigKeyKind = "delegation"
)

// GlobalKeyName is the wildcard auth-key name matched by SigKeyGlobal.
const GlobalKeyName = "*"

// DelegationStep is one hop of a DelegationPath: the root of a delegated
// tree and the name of the key to resolve once inside that tree's
// _settings.auth.
type DelegationStep struct {
	Root ID     `json:"root"`
	Key  string `json:"key"`
}

// SigKey identifies which public key signed an entry: a name registered
// directly in the database's auth settings, the wildcard "*" entry (which
// requires the entry to carry its own pubkey), or a chain of delegated-tree
// hops.
type SigKey struct {
	Kind       SigKeyKind       `json:"kind"`
	Name       string           `json:"name,omitempty"`
	Delegation []DelegationStep `json:"delegation,omitempty"`
}

// Direct builds a SigKey naming a key registered in _settings.auth.
func Direct(name string) SigKey {
	return SigKey{Kind: SigKeyDirect, Name: name}
}

// Global builds the wildcard SigKey.
func Global() SigKey {
	return SigKey{Kind: SigKeyGlobal}
}

// DelegationPath builds a SigKey resolving through a chain of delegated
// trees.
func DelegationPath(steps []DelegationStep) SigKey {
	return SigKey{Kind: SigKeyDelegation, Delegation: steps}
}

// IsUnsignedPlaceholder reports whether k is the back-compat Direct("")
// marker that, combined with an absent signature, allows an entry through
// validation when the database has no configured keys.
func (k SigKey) IsUnsignedPlaceholder() bool {
	return k.Kind == SigKeyDirect && k.Name == ""
}

// Canonical returns a deterministic string identifying k, suitable as a
// cache key or for debugging. It is not part of the wire format.
func (k SigKey) Canonical() string {
	switch k.Kind {
	case SigKeyDirect:
		return "direct:" + k.Name
	case SigKeyGlobal:
		return "global"
	case SigKeyDelegation:
		b, _ := json.Marshal(k.Delegation)
		return "delegation:" + string(b)
	default:
		return fmt.Sprintf("unknown:%v", k)
	}
}

// Sig is the signature envelope attached to an Entry.
type Sig struct {
	Key    SigKey `json:"key"`
	Sig    []byte `json:"sig,omitempty"`
	PubKey []byte `json:"pubkey,omitempty"`
}
