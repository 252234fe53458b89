// Command gkfsd runs one daemon of the distributed scratch filesystem.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"gkfs/internal/chunkstore"
	"gkfs/internal/config"
	"gkfs/internal/daemon"
	"gkfs/internal/layout"
	"gkfs/internal/logging"
	"gkfs/internal/metakv"
	"gkfs/internal/rpc"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug, // allow all levels; filtering done by ComponentFilterHandler
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{Use: "gkfsd", Short: "Distributed scratch filesystem daemon"}

	var listenAddr, rootDir, hostsFile string
	var chunkSize uint64
	var ioPoolSize int

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the daemon and serve RPCs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return run(ctx, logger, runOpts{
				listenAddr: listenAddr,
				rootDir:    rootDir,
				hostsFile:  hostsFile,
				chunkSize:  chunkSize,
				ioPoolSize: ioPoolSize,
			})
		},
	}
	runCmd.Flags().StringVar(&listenAddr, "listen", ":2001", "gRPC listen address (host:port)")
	runCmd.Flags().StringVar(&rootDir, "root", "", "root directory for metadata + chunk storage (required)")
	runCmd.Flags().StringVar(&hostsFile, "hosts-file", "", "path to the cluster hosts file, overrides GKFS_HOSTS_FILE")
	runCmd.Flags().Uint64Var(&chunkSize, "chunk-size", 0, "chunk size in bytes, overrides GKFS_CHUNKSIZE")
	runCmd.Flags().IntVar(&ioPoolSize, "io-pool-size", 0, "bounded concurrency of the chunk I/O pool (0: component default)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   func(cmd *cobra.Command, args []string) { fmt.Println(version) },
	}

	rootCmd.AddCommand(runCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type runOpts struct {
	listenAddr string
	rootDir    string
	hostsFile  string
	chunkSize  uint64
	ioPoolSize int
}

func run(ctx context.Context, logger *slog.Logger, opts runOpts) error {
	envCfg, err := config.DaemonConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load daemon config: %w", err)
	}
	cfg := mergeDaemonConfig(envCfg, opts)

	if opts.rootDir == "" {
		return fmt.Errorf("gkfsd: --root is required")
	}

	lay := layout.New(cfg.RootDir)
	if err := lay.EnsureExists(); err != nil {
		return fmt.Errorf("prepare root directory: %w", err)
	}
	logger.Info("root directory ready", "path", lay.Root())

	meta, err := metakv.Open(lay.MetaPath())
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer func() { _ = meta.Close() }()

	chunks := chunkstore.New(lay.DataDir(), cfg.ChunkSize, logger.With("component", "chunkstore"))
	pool := daemon.NewIOPool(cfg.ioPoolSize(opts.ioPoolSize))

	srv := daemon.NewServer(meta, chunks, pool, daemonCfg(cfg), logger.With("component", "daemon"))

	gs := grpc.NewServer()
	rpc.RegisterServer(gs, rpc.NewServer(rpc.Bind(srv)))

	lis, err := net.Listen("tcp", opts.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.listenAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("daemon listening", "addr", opts.listenAddr, "root", lay.Root())
		errCh <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		gs.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// mergedConfig is config.DaemonConfig plus the I/O pool size, which has no
// GKFS_* environment variable counterpart in spec.md §6.
type mergedConfig struct {
	config.DaemonConfig
	ioPool int
}

func (m mergedConfig) ioPoolSize(flagOverride int) int {
	if flagOverride > 0 {
		return flagOverride
	}
	return m.ioPool
}

func mergeDaemonConfig(envCfg config.DaemonConfig, opts runOpts) mergedConfig {
	cfg := mergedConfig{DaemonConfig: envCfg}
	if opts.rootDir != "" {
		cfg.RootDir = opts.rootDir
	}
	if opts.chunkSize > 0 {
		cfg.ChunkSize = opts.chunkSize
	}
	if opts.hostsFile != "" {
		cfg.HostsFile = opts.hostsFile
	}
	return cfg
}

func daemonCfg(cfg mergedConfig) daemon.Config {
	return daemon.Config{
		MountDir:   cfg.MountDir,
		RootDir:    cfg.RootDir,
		ChunkSize:  cfg.ChunkSize,
		TrackATime: cfg.TrackATime,
		TrackMTime: cfg.TrackMTime,
		TrackCTime: cfg.TrackCTime,
		UID:        cfg.UID,
		GID:        cfg.GID,
	}
}
