// Package instance ties a single process's Backend, device identity, and
// system databases together: the handle every CLI command and the sync
// core operate through. There is no cluster-coordination layer above
// it; each peer is independent.
package instance

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/cuemby/warren-ledger/pkg/auth"
	"github.com/cuemby/warren-ledger/pkg/backend"
	"github.com/cuemby/warren-ledger/pkg/dag"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/log"
)

// deviceKeySlot is the backend.StorePrivateKey name this instance's own
// signing key is kept under.
const deviceKeySlot = "_device"

// Instance is one process's view onto a Backend: its device identity,
// the validator shared by every Database opened through it, and its
// three system databases (users, databases, sync).
type Instance struct {
	Backend   backend.Backend
	Validator *auth.Validator
	DeviceKey ed25519.PrivateKey
	DevicePub ed25519.PublicKey

	Sessions *SessionStore

	Users     *dag.Database
	Databases *dag.Database
	Sync      *dag.Database
}

// Open loads or bootstraps an Instance against be: the device key is
// loaded from the backend or generated and persisted on first run, and
// the three system databases are discovered via
// backend.GetInstanceMetadata or created fresh.
func Open(ctx context.Context, be backend.Backend) (*Instance, error) {
	logger := log.WithComponent("instance")

	deviceKey, devicePub, err := loadOrCreateDeviceKey(ctx, be)
	if err != nil {
		return nil, err
	}

	validator := auth.NewValidator(dag.NewSettingsLoader(be))

	inst := &Instance{
		Backend:   be,
		Validator: validator,
		DeviceKey: deviceKey,
		DevicePub: devicePub,
		Sessions:  NewSessionStore(),
	}

	meta, err := be.GetInstanceMetadata(ctx)
	if err != nil {
		logger.Info().Msg("no instance metadata found, bootstrapping system databases")
		meta, err = inst.bootstrap(ctx)
		if err != nil {
			return nil, err
		}
	}

	users, err := dag.Open(ctx, be, validator, meta.UsersDB)
	if err != nil {
		return nil, fmt.Errorf("instance: open users db: %w", err)
	}
	databases, err := dag.Open(ctx, be, validator, meta.DatabasesDB)
	if err != nil {
		return nil, fmt.Errorf("instance: open databases db: %w", err)
	}
	inst.Users = users
	inst.Databases = databases

	if meta.SyncDB != "" {
		syncDB, err := dag.Open(ctx, be, validator, meta.SyncDB)
		if err != nil {
			return nil, fmt.Errorf("instance: open sync db: %w", err)
		}
		inst.Sync = syncDB
	}

	return inst, nil
}

func (inst *Instance) bootstrap(ctx context.Context) (*backend.InstanceMetadata, error) {
	users, err := dag.Create(ctx, inst.Backend, inst.Validator, inst.DeviceKey, "device", nil)
	if err != nil {
		return nil, fmt.Errorf("instance: bootstrap users db: %w", err)
	}
	databases, err := dag.Create(ctx, inst.Backend, inst.Validator, inst.DeviceKey, "device", nil)
	if err != nil {
		return nil, fmt.Errorf("instance: bootstrap databases db: %w", err)
	}
	syncDB, err := dag.Create(ctx, inst.Backend, inst.Validator, inst.DeviceKey, "device", nil)
	if err != nil {
		return nil, fmt.Errorf("instance: bootstrap sync db: %w", err)
	}

	meta := &backend.InstanceMetadata{
		UsersDB:     users.Root,
		DatabasesDB: databases.Root,
		SyncDB:      syncDB.Root,
	}
	if err := inst.Backend.SetInstanceMetadata(ctx, meta); err != nil {
		return nil, fmt.Errorf("instance: persist metadata: %w", err)
	}
	return meta, nil
}

func loadOrCreateDeviceKey(ctx context.Context, be backend.Backend) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	raw, err := be.GetPrivateKey(ctx, deviceKeySlot)
	if err == nil {
		priv := ed25519.PrivateKey(raw)
		return priv, priv.Public().(ed25519.PublicKey), nil
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("instance: generate device key: %w", err)
	}
	if err := be.StorePrivateKey(ctx, deviceKeySlot, priv); err != nil {
		return nil, nil, fmt.Errorf("instance: store device key: %w", err)
	}
	return priv, pub, nil
}

// OpenDatabase resolves root through the instance's validator, returning
// a Database handle callers can run transactions against.
func (inst *Instance) OpenDatabase(ctx context.Context, root entry.ID) (*dag.Database, error) {
	return dag.Open(ctx, inst.Backend, inst.Validator, root)
}

// CreateDatabase bootstraps a new tree owned by signingKeyName, signed by
// signingKey (normally the instance's own DeviceKey).
func (inst *Instance) CreateDatabase(ctx context.Context, signingKey ed25519.PrivateKey, signingKeyName string) (*dag.Database, error) {
	return dag.Create(ctx, inst.Backend, inst.Validator, signingKey, signingKeyName, nil)
}

// BackendStats implements metrics.StatsProvider.
func (inst *Instance) BackendStats(ctx context.Context) (entries int, roots int, err error) {
	rootIDs, err := inst.Backend.AllRoots(ctx)
	if err != nil {
		return 0, 0, err
	}
	total := 0
	for _, root := range rootIDs {
		tree, err := inst.Backend.GetTree(ctx, root)
		if err != nil {
			return 0, 0, err
		}
		total += len(tree)
	}
	return total, len(rootIDs), nil
}

// PeerStats implements metrics.StatsProvider. A bare Instance tracks no
// peers of its own, so this always reports zero; pkg/sync.Sync
// implements its own PeerStats from its peer health monitor.
func (inst *Instance) PeerStats() (connected int, disconnected int) {
	return 0, 0
}
