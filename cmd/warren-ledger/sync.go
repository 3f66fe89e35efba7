package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren-ledger/pkg/entry"
	"github.com/cuemby/warren-ledger/pkg/metrics"
	syncpkg "github.com/cuemby/warren-ledger/pkg/sync"
	grpctransport "github.com/cuemby/warren-ledger/pkg/sync/transport/grpc"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run and drive the peer-to-peer sync core",
}

func newSync() (*syncpkg.Sync, func(), error) {
	inst, be, err := openInstance()
	if err != nil {
		metrics.RegisterComponent("backend", false, err.Error())
		return nil, nil, err
	}
	metrics.RegisterComponent("backend", true, "")
	s := syncpkg.New(inst)
	s.RegisterTransport("grpc", grpctransport.New())
	s.Configure(cfg.Sync.MaxBackoff)
	return s, func() { closeBackend(be) }, nil
}

var syncServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for inbound sync requests until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Sync.ListenAddr
		if override, _ := cmd.Flags().GetString("addr"); override != "" {
			addr = override
		}
		if addr == "" {
			return fmt.Errorf("no listen address configured (set sync.listen_addr or pass --addr)")
		}

		s, cleanup, err := newSync()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		if err := s.Serve(ctx, "grpc", addr); err != nil {
			metrics.RegisterComponent("sync", false, err.Error())
			return fmt.Errorf("serve: %w", err)
		}
		metrics.RegisterComponent("sync", true, "")
		startMetricsServer(cfg.MetricsAddr)

		collector := metrics.NewCollector(s)
		collector.Start(10 * time.Second)
		defer collector.Stop()

		fmt.Printf("listening on %s\n", addr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		return s.Stop(ctx)
	},
}

var syncPeerAddCmd = &cobra.Command{
	Use:   "peer-add <pubkey> <display-name> <addr>",
	Short: "Register a peer's gRPC address under the given display name",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cleanup, err := newSync()
		if err != nil {
			return err
		}
		defer cleanup()

		pubkey, name, addr := args[0], args[1], args[2]
		return s.AddPeer(context.Background(), pubkey, name, []syncpkg.Address{
			{Transport: "grpc", Address: addr},
		})
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull <peer-pubkey> <peer-addr> <tree-root>",
	Short: "Pull every entry of tree-root this instance is missing from a peer",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cleanup, err := newSync()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		peerPub, peerAddr, root := args[0], args[1], entry.ID(args[2])
		entries, err := s.RequestTree(ctx, "grpc", syncpkg.Address{Transport: "grpc", Address: peerAddr}, peerPub, root, nil)
		if err != nil {
			return err
		}
		if err := s.IngestEntries(ctx, entries); err != nil {
			return fmt.Errorf("ingest pulled entries: %w", err)
		}
		fmt.Printf("pulled and stored %d entries\n", len(entries))
		return nil
	},
}

// syncWatchCmd runs the same serve loop as syncServeCmd but also prints
// every lifecycle event (entry ingested, peer tracked, peer lost) as it
// happens. The event broker only runs between Serve and Stop, so
// watching only makes sense attached to a live server, not as a
// separate read-only observer process.
var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Serve inbound sync requests, printing lifecycle events as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Sync.ListenAddr
		if override, _ := cmd.Flags().GetString("addr"); override != "" {
			addr = override
		}
		if addr == "" {
			return fmt.Errorf("no listen address configured (set sync.listen_addr or pass --addr)")
		}

		s, cleanup, err := newSync()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		if err := s.Serve(ctx, "grpc", addr); err != nil {
			metrics.RegisterComponent("sync", false, err.Error())
			return fmt.Errorf("serve: %w", err)
		}
		metrics.RegisterComponent("sync", true, "")
		startMetricsServer(cfg.MetricsAddr)

		collector := metrics.NewCollector(s)
		collector.Start(10 * time.Second)
		defer collector.Stop()

		fmt.Printf("listening on %s\n", addr)

		sub := s.Subscribe()
		defer s.Unsubscribe(sub)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case ev := <-sub:
				fmt.Printf("[%s] %s peer=%s tree=%s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.PeerKey, ev.TreeRoot, ev.Message)
			case <-sigCh:
				return s.Stop(ctx)
			}
		}
	},
}

func init() {
	syncServeCmd.Flags().String("addr", "", "override sync.listen_addr from the config file")
	syncWatchCmd.Flags().String("addr", "", "override sync.listen_addr from the config file")
	syncCmd.AddCommand(syncServeCmd)
	syncCmd.AddCommand(syncPeerAddCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncWatchCmd)
}
