// Command filenode runs one peer of the overlay: positional arguments
// select its node id and consistency mode.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/meshnode/filemesh/internal/config"
	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/metrics"
	"github.com/meshnode/filemesh/internal/node"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	nodeID, mode, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load("config", nodeID)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	self := cfg.Self(nodeID)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", self.Port))
	if err != nil {
		logger.Error("could not bind socket, please wait a short while before restarting", "error", err)
		os.Exit(1)
	}
	logger.Info("listening", "port", self.Port)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go serveMetrics(reg, logger)

	n := node.New(cfg, nodeID, mode, ".", logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n.ConnectToConfiguredNeighbors(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Run(ctx, listener)
	})
	g.Go(func() error {
		defer cancel()
		return runInputTask(n)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("filenode exited with error", "error", err)
	}
}

// parseArgs parses the CLI: positional nodeId (default 0) and mode ∈
// {push, pull} (default push).
func parseArgs(args []string) (nodeID uint32, mode fileindex.Mode, err error) {
	mode = fileindex.Push
	if len(args) >= 1 {
		v, convErr := strconv.ParseUint(args[0], 10, 32)
		if convErr != nil {
			return 0, 0, fmt.Errorf("invalid nodeId %q: %w", args[0], convErr)
		}
		nodeID = uint32(v)
	}
	if len(args) >= 2 {
		switch args[1] {
		case "push":
			mode = fileindex.Push
		case "pull":
			mode = fileindex.Pull
		default:
			return 0, 0, fmt.Errorf("invalid mode %q: must be push or pull", args[1])
		}
	}
	return nodeID, mode, nil
}

// runInputTask is the input task: read commands from stdin until exit
// or EOF.
func runInputTask(n *node.Node) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if n.HandleCommand(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

func serveMetrics(reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe("localhost:9090", mux); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}
