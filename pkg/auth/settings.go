// Package auth resolves a SigKey to a public key and permission by
// reading a database's _settings.auth substore, verifies entry
// signatures, and checks permission against the operation being
// committed.
package auth

import (
	"fmt"

	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
)

// Entry is one record of a database's _settings.auth substore. It
// covers both a directly registered signing key and a delegated-tree
// reference: unifying the two means a Revoked status poisons a
// delegation chain at any hop, key or tree reference alike, without a
// separate status channel per kind.
type Entry struct {
	PubKey      string // "*" for the wildcard entry, raw-encoded key otherwise
	Permission  entry.Permission
	Status      entry.KeyStatus
	DisplayName string

	// Delegation fields, set only when this entry references another
	// tree's auth settings rather than naming a key directly.
	IsDelegation bool
	DelegateRoot entry.ID
	Bounds       entry.PermissionBounds
}

// Settings is the parsed view of a database's _settings.auth substore.
type Settings struct {
	entries map[string]Entry
}

// ParseSettings reads the auth map out of a _settings Doc. Absent
// "auth" key yields empty settings (no keys configured), which is what
// triggers the unsigned-entry back-compat path.
func ParseSettings(settingsDoc *crdt.Doc) (*Settings, error) {
	s := &Settings{entries: make(map[string]Entry)}
	if settingsDoc == nil {
		return s, nil
	}
	authVal, ok := settingsDoc.Get("auth")
	if !ok {
		return s, nil
	}
	if authVal.Kind != crdt.KindMap {
		return nil, fmt.Errorf("%w: _settings.auth is not a map", ledgererr.ErrAuthenticationFailed)
	}
	for _, name := range authVal.Map.Keys() {
		v, _ := authVal.Map.Get(name)
		if v.Kind != crdt.KindMap {
			return nil, fmt.Errorf("%w: auth entry %q is not a map", ledgererr.ErrAuthenticationFailed, name)
		}
		e, err := parseEntry(v.Map)
		if err != nil {
			return nil, fmt.Errorf("auth entry %q: %w", name, err)
		}
		s.entries[name] = e
	}
	return s, nil
}

func parseEntry(d *crdt.Doc) (Entry, error) {
	var e Entry

	if kind, ok := d.GetText("kind"); ok && kind == "delegation" {
		e.IsDelegation = true
		root, _ := d.GetText("root")
		e.DelegateRoot = entry.ID(root)

		maxStr, ok := d.GetText("max")
		if !ok {
			return e, fmt.Errorf("delegation entry missing bounds.max")
		}
		maxPerm, err := entry.ParsePermission(maxStr)
		if err != nil {
			return e, err
		}
		e.Bounds = entry.PermissionBounds{Max: maxPerm}
		if minStr, ok := d.GetText("min"); ok {
			minPerm, err := entry.ParsePermission(minStr)
			if err != nil {
				return e, err
			}
			e.Bounds.Min = &minPerm
		}
	} else {
		pub, ok := d.GetText("pubkey")
		if !ok {
			return e, fmt.Errorf("key entry missing pubkey")
		}
		e.PubKey = pub
	}

	permStr, ok := d.GetText("permission")
	if !ok {
		return e, fmt.Errorf("entry missing permission")
	}
	perm, err := entry.ParsePermission(permStr)
	if err != nil {
		return e, err
	}
	e.Permission = perm

	statusStr, ok := d.GetText("status")
	if !ok {
		statusStr = entry.KeyStatusActive.String()
	}
	status, err := entry.ParseKeyStatus(statusStr)
	if err != nil {
		return e, err
	}
	e.Status = status

	if name, ok := d.GetText("display-name"); ok {
		e.DisplayName = name
	}

	return e, nil
}

// Lookup returns the named auth entry.
func (s *Settings) Lookup(name string) (Entry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

// IsEmpty reports whether no keys or delegations are configured, which
// is exactly the condition under which unsigned entries are accepted.
func (s *Settings) IsEmpty() bool {
	return len(s.entries) == 0
}

// CandidatesForPubKey returns every (name, entry) pair whose PubKey
// matches pub, including the wildcard entry if pub is given and a
// wildcard is registered. Used by Database.find_sigkeys to help a
// caller pick a key when bootstrapping.
func (s *Settings) CandidatesForPubKey(pub string) map[string]Entry {
	out := make(map[string]Entry)
	for name, e := range s.entries {
		if e.IsDelegation {
			continue
		}
		if e.PubKey == pub || e.PubKey == entry.GlobalKeyName {
			out[name] = e
		}
	}
	return out
}
