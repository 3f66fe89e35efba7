package dag

import (
	"context"
	"fmt"

	"github.com/cuemby/warren-ledger/pkg/auth"
	"github.com/cuemby/warren-ledger/pkg/backend"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/ledgererr"
)

// SettingsLoader reconstructs a tree's _settings.auth by folding its
// ancestor entries, for any root — not only the Database it was built
// from. The auth package depends on it as auth.SettingsLoader to walk
// DelegationPath hops into other trees.
type SettingsLoader struct {
	be backend.Backend
}

// NewSettingsLoader returns a loader backed by be.
func NewSettingsLoader(be backend.Backend) *SettingsLoader {
	return &SettingsLoader{be: be}
}

func (l *SettingsLoader) LoadSettings(ctx context.Context, root entry.ID) (*auth.Settings, error) {
	if _, err := l.be.Get(ctx, root); err != nil {
		return nil, fmt.Errorf("%w: delegated tree %s: %v", ledgererr.ErrNotFound, root, err)
	}
	state, err := ReadSubstore(ctx, l.be, root, entry.SubtreeSettings)
	if err != nil {
		return nil, err
	}
	return auth.ParseSettings(state)
}

var _ auth.SettingsLoader = (*SettingsLoader)(nil)
