package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren-ledger/pkg/crdt"
	"github.com/cuemby/warren-ledger/pkg/entry"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Create, open, and mutate ledger trees",
}

var dbCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new tree, admin-owned by this instance's device key",
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, be, err := openInstance()
		if err != nil {
			return err
		}
		defer closeBackend(be)

		db, err := inst.CreateDatabase(context.Background(), inst.DeviceKey, cfg.DeviceKeyPath)
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		fmt.Println(db.Root)
		return nil
	},
}

var dbSetCmd = &cobra.Command{
	Use:   "set <root> <substore> <path> <value>",
	Short: "Commit a text value at a dot-separated path within a substore",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, be, err := openInstance()
		if err != nil {
			return err
		}
		defer closeBackend(be)

		ctx := context.Background()
		root, substore, path, value := entry.ID(args[0]), args[1], args[2], args[3]

		db, err := inst.OpenDatabase(ctx, root)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		tx, err := db.NewTransaction(ctx, inst.DeviceKey, entry.Direct(cfg.DeviceKeyPath))
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, substore, path, crdt.Text(value)); err != nil {
			return err
		}
		id, err := tx.Commit(ctx)
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		fmt.Println(id)
		return nil
	},
}

var dbGetCmd = &cobra.Command{
	Use:   "get <root> <substore> <path>",
	Short: "Read the current merged value at a dot-separated path",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, be, err := openInstance()
		if err != nil {
			return err
		}
		defer closeBackend(be)

		ctx := context.Background()
		root, substore, path := entry.ID(args[0]), args[1], args[2]

		db, err := inst.OpenDatabase(ctx, root)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		doc, err := db.View(ctx, substore)
		if err != nil {
			return err
		}
		v, ok := doc.GetPath(path)
		if !ok {
			return fmt.Errorf("no value at %q", path)
		}
		switch v.Kind {
		case crdt.KindText:
			fmt.Println(v.Text)
		default:
			data, err := v.MarshalJSON()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		}
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbCreateCmd)
	dbCmd.AddCommand(dbSetCmd)
	dbCmd.AddCommand(dbGetCmd)
}
