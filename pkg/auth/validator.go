package auth

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/cuemby/warren-ledger/pkg/entry"
)

// Operation names the kind of write a commit is performing, for
// permission gating.
type Operation int

const (
	OpWriteData Operation = iota
	OpWriteSettings
)

// Validator runs entry authentication: unsigned-entry back-compat,
// SigKey resolution, status and signature checks. A single Validator
// may be shared across databases; its cache is keyed by database root.
type Validator struct {
	loader SettingsLoader

	mu    sync.Mutex
	cache map[string]ResolvedAuth
}

// NewValidator returns a Validator that loads delegated trees through
// loader.
func NewValidator(loader SettingsLoader) *Validator {
	return &Validator{loader: loader, cache: make(map[string]ResolvedAuth)}
}

// InvalidateCache drops every cached resolution for dbRoot. Callers
// must invoke this whenever a commit changes dbRoot's _settings.auth;
// correctness never depends on the cache, only performance.
func (v *Validator) InvalidateCache(dbRoot entry.ID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	prefix := string(dbRoot) + "|"
	for k := range v.cache {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(v.cache, k)
		}
	}
}

func (v *Validator) cacheKey(dbRoot entry.ID, sigKey entry.SigKey) string {
	return string(dbRoot) + "|" + sigKey.Canonical()
}

// Validate reports whether e's signature authorizes it, evaluated
// against settings (the auth configuration of e's own database as of
// the tips it was built on). dbRoot is used only as the cache key.
func (v *Validator) Validate(ctx context.Context, dbRoot entry.ID, e *entry.Entry, settings *Settings) (bool, error) {
	if e.Sig.Key.IsUnsignedPlaceholder() && len(e.Sig.Sig) == 0 {
		return settings.IsEmpty(), nil
	}

	resolved, err := v.resolveCached(ctx, dbRoot, e.Sig.Key, settings, e.Sig.PubKey)
	if err != nil {
		return false, err
	}

	if resolved.Status != entry.KeyStatusActive {
		return false, nil
	}

	ok, err := e.VerifySignature(resolved.PublicKey)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (v *Validator) resolveCached(ctx context.Context, dbRoot entry.ID, sigKey entry.SigKey, settings *Settings, pubKeyOverride []byte) (ResolvedAuth, error) {
	key := v.cacheKey(dbRoot, sigKey)
	if len(pubKeyOverride) > 0 {
		key += "|" + hex.EncodeToString(pubKeyOverride)
	}

	v.mu.Lock()
	cached, ok := v.cache[key]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	resolved, err := Resolve(ctx, v.loader, settings, sigKey, pubKeyOverride)
	if err != nil {
		return ResolvedAuth{}, err
	}

	v.mu.Lock()
	v.cache[key] = resolved
	v.mu.Unlock()
	return resolved, nil
}

// CheckPermission reports whether resolved carries sufficient
// permission for operation: writing _settings requires admin; writing
// any other substore requires write or admin; reading requires only an
// Active status, which callers check separately.
func CheckPermission(resolved ResolvedAuth, operation Operation) bool {
	switch operation {
	case OpWriteSettings:
		return resolved.Permission.CanAdmin()
	case OpWriteData:
		return resolved.Permission.CanWrite() || resolved.Permission.CanAdmin()
	default:
		return false
	}
}

// FindSigKeys returns every SigKey/Permission pair in settings whose
// public key matches pub, ordered by descending authority, for helping
// a caller pick the best key when bootstrapping a write.
func FindSigKeys(settings *Settings, pub []byte) []ResolvedSigKey {
	encoded := entry.EncodePublicKey(pub)
	candidates := settings.CandidatesForPubKey(encoded)

	out := make([]ResolvedSigKey, 0, len(candidates))
	for name, e := range candidates {
		kind := entry.Direct(name)
		if e.PubKey == entry.GlobalKeyName {
			kind = entry.Global()
		}
		out = append(out, ResolvedSigKey{Key: kind, Permission: e.Permission})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Permission.Compare(out[j].Permission) > 0
	})
	return out
}

// ResolvedSigKey pairs a SigKey with the permission it would carry.
type ResolvedSigKey struct {
	Key        entry.SigKey
	Permission entry.Permission
}
