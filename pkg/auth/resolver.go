package auth

import (
	"context"
	"fmt"

	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
)

// ResolvedAuth is the outcome of resolving a SigKey against a
// database's auth settings: the public key to verify against, the
// permission it carries, and whether it is still active.
type ResolvedAuth struct {
	PublicKey  []byte
	Permission entry.Permission
	Status     entry.KeyStatus
}

// SettingsLoader loads the parsed auth settings of the tree rooted at
// root, as of its current tips. The dag package supplies the real
// implementation (folding ancestor _settings entries); tests can supply
// a static map.
type SettingsLoader interface {
	LoadSettings(ctx context.Context, root entry.ID) (*Settings, error)
}

// Resolve determines the public key, permission and status for sigKey
// against settings, loading delegated trees through loader as needed.
// pubKeyOverride supplies entry.Sig.PubKey for the Global variant.
func Resolve(ctx context.Context, loader SettingsLoader, settings *Settings, sigKey entry.SigKey, pubKeyOverride []byte) (ResolvedAuth, error) {
	switch sigKey.Kind {
	case entry.SigKeyDirect:
		e, ok := settings.Lookup(sigKey.Name)
		if !ok || e.IsDelegation {
			return ResolvedAuth{}, fmt.Errorf("%w: no direct key named %q", ledgererr.ErrAuthenticationFailed, sigKey.Name)
		}
		pub, err := entry.DecodePublicKey(e.PubKey)
		if err != nil {
			return ResolvedAuth{}, fmt.Errorf("%w: %v", ledgererr.ErrAuthenticationFailed, err)
		}
		return ResolvedAuth{PublicKey: pub, Permission: e.Permission, Status: e.Status}, nil

	case entry.SigKeyGlobal:
		e, ok := settings.Lookup(entry.GlobalKeyName)
		if !ok || e.IsDelegation {
			return ResolvedAuth{}, fmt.Errorf("%w: no wildcard key configured", ledgererr.ErrAuthenticationFailed)
		}
		if e.Permission.CanAdmin() {
			return ResolvedAuth{}, fmt.Errorf("%w: wildcard key cannot hold admin permission", ledgererr.ErrAuthenticationFailed)
		}
		if len(pubKeyOverride) == 0 {
			return ResolvedAuth{}, fmt.Errorf("%w: global sig key requires an entry-carried pubkey", ledgererr.ErrAuthenticationFailed)
		}
		return ResolvedAuth{PublicKey: pubKeyOverride, Permission: e.Permission, Status: e.Status}, nil

	case entry.SigKeyDelegation:
		return resolveDelegation(ctx, loader, settings, sigKey.Delegation)

	default:
		return ResolvedAuth{}, fmt.Errorf("%w: unknown sig key kind %q", ledgererr.ErrAuthenticationFailed, sigKey.Kind)
	}
}

// resolveDelegation walks a DelegationPath hop by hop: at each step it
// looks up step.Key by name in the current settings, which must name a
// delegation entry for every step but the last, and the leaf key entry
// on the last step. Every PermissionBounds encountered is applied, in
// reverse hop order, to the leaf permission; a Revoked status anywhere
// in the chain poisons the whole resolution.
func resolveDelegation(ctx context.Context, loader SettingsLoader, settings *Settings, steps []entry.DelegationStep) (ResolvedAuth, error) {
	if len(steps) == 0 {
		return ResolvedAuth{}, fmt.Errorf("%w: empty delegation path", ledgererr.ErrAuthenticationFailed)
	}

	current := settings
	var boundsChain []entry.PermissionBounds
	var leaf Entry

	for i, step := range steps {
		e, ok := current.Lookup(step.Key)
		if !ok {
			return ResolvedAuth{}, fmt.Errorf("%w: delegation step %d: no entry named %q", ledgererr.ErrAuthenticationFailed, i, step.Key)
		}
		if e.Status == entry.KeyStatusRevoked {
			return ResolvedAuth{}, fmt.Errorf("%w: delegation step %d (%q) is revoked", ledgererr.ErrAuthenticationFailed, i, step.Key)
		}

		isLast := i == len(steps)-1
		if isLast {
			if e.IsDelegation {
				return ResolvedAuth{}, fmt.Errorf("%w: final delegation step %q must name a key, not another delegation", ledgererr.ErrAuthenticationFailed, step.Key)
			}
			leaf = e
			break
		}

		if !e.IsDelegation {
			return ResolvedAuth{}, fmt.Errorf("%w: delegation step %d (%q) must name a delegation, not a direct key", ledgererr.ErrAuthenticationFailed, i, step.Key)
		}
		if e.DelegateRoot != step.Root {
			return ResolvedAuth{}, fmt.Errorf("%w: delegation step %d root mismatch", ledgererr.ErrAuthenticationFailed, i)
		}
		boundsChain = append(boundsChain, e.Bounds)

		next, err := loader.LoadSettings(ctx, step.Root)
		if err != nil {
			return ResolvedAuth{}, fmt.Errorf("%w: loading delegated tree %s: %v", ledgererr.ErrAuthenticationFailed, step.Root, err)
		}
		current = next
	}

	pub, err := entry.DecodePublicKey(leaf.PubKey)
	if err != nil {
		return ResolvedAuth{}, fmt.Errorf("%w: %v", ledgererr.ErrAuthenticationFailed, err)
	}

	perm := leaf.Permission
	for i := len(boundsChain) - 1; i >= 0; i-- {
		perm = boundsChain[i].Clamp(perm)
	}

	return ResolvedAuth{PublicKey: pub, Permission: perm, Status: leaf.Status}, nil
}
