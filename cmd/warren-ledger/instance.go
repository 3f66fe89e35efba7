package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren-ledger/pkg/backend"
	"github.com/cuemby/warren-ledger/pkg/backend/boltdb"
	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/instance"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage this process's ledger instance",
}

var instanceInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap (or open) this instance's backend and device identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, be, err := openInstance()
		if err != nil {
			return err
		}
		defer closeBackend(be)

		fmt.Printf("Data directory: %s\n", cfg.DataDir)
		fmt.Printf("Device public key: %s\n", entry.EncodePublicKey(inst.DevicePub))
		fmt.Printf("Users DB root:     %s\n", inst.Users.Root)
		fmt.Printf("Databases DB root: %s\n", inst.Databases.Root)
		fmt.Printf("Sync DB root:      %s\n", inst.Sync.Root)
		return nil
	},
}

func init() {
	instanceCmd.AddCommand(instanceInitCmd)
}

// openInstance opens the configured BoltDB backend and bootstraps (or
// resumes) the instance on top of it.
func openInstance() (*instance.Instance, backend.Backend, error) {
	be, err := boltdb.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open backend: %w", err)
	}
	inst, err := instance.Open(context.Background(), be)
	if err != nil {
		return nil, nil, fmt.Errorf("open instance: %w", err)
	}
	return inst, be, nil
}

func closeBackend(be backend.Backend) {
	if closer, ok := be.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
