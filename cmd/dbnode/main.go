package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/gossipdb/pkg/log"
	"github.com/cuemby/gossipdb/pkg/node"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbnode",
	Short: "gossipdb node: a peer-to-peer, signed-operation replicated key-value store",
	RunE:  runNode,
}

func init() {
	rootCmd.Flags().String("bind-addr", "0.0.0.0:7946", "address the peer wire server listens on")
	rootCmd.Flags().String("data-dir", "./data", "directory for the durable store")
	rootCmd.Flags().String("region", "", "region label advertised in this node's peer announcements")
	rootCmd.Flags().StringSlice("bootstrap-peer", nil, "known peer to dial on startup, formatted node_id@host:port (repeatable)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func runNode(cmd *cobra.Command, args []string) error {
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	region, _ := cmd.Flags().GetString("region")
	bootstrapPeers, _ := cmd.Flags().GetStringSlice("bootstrap-peer")

	n, err := node.New(node.Config{
		DataDir:        dataDir,
		BindAddr:       bindAddr,
		Region:         region,
		BootstrapPeers: bootstrapPeers,
	})
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	log.WithComponent("dbnode").Info().
		Str("node_id", n.NodeID()).
		Str("addr", n.Addr()).
		Msg("node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.WithComponent("dbnode").Info().Msg("shutting down")
	cancel()
	return n.Shutdown()
}
