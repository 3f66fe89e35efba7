package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren-ledger/pkg/config"
	"github.com/cuemby/warren-ledger/pkg/metrics"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfgFile string
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warren-ledger",
	Short: "warren-ledger - a decentralized, content-addressed ledger",
	Long: `warren-ledger is a peer-to-peer Merkle-DAG database: every write is a
signed, content-addressed entry, every document a CRDT that merges
without coordination, and every peer syncs bilaterally with any other
it chooses to trust.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"warren-ledger version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (defaults to built-in defaults)")
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(instanceCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(syncCmd)
}

// startMetricsServer exposes /metrics, /health, /ready and /live on
// addr in the background. A failure to bind is logged, not fatal: the
// sync core runs fine without an observability sidecar.
func startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	fmt.Printf("metrics endpoint:  http://%s/metrics\n", addr)
	fmt.Printf("health endpoints:  http://%s/health, /ready, /live\n", addr)
}

func initConfig() {
	if cfgFile == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.InitLogging()
	metrics.SetVersion(Version)
}
