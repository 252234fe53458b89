// Command gkfsc is a thin client exerciser for the distributed scratch
// filesystem: it builds the same client.Dispatcher a syscall-interception
// shim would, and exposes its operations as subcommands. It is not the
// shim itself (that's out of scope, per spec.md §1 Non-goals) — it's a
// tool for driving the client stack end-to-end against a running cluster.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"gkfs/internal/client"
	"gkfs/internal/config"
	"gkfs/internal/distributor"
	"gkfs/internal/rpc"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var hostsFile string
	var chunkSize uint64

	rootCmd := &cobra.Command{Use: "gkfsc", Short: "Distributed scratch filesystem client exerciser"}
	rootCmd.PersistentFlags().StringVar(&hostsFile, "hosts-file", "", "path to the cluster hosts file, overrides LIBGKFS_HOSTS_FILE")
	rootCmd.PersistentFlags().Uint64Var(&chunkSize, "chunk-size", 0, "chunk size in bytes, overrides the mount-time handshake value")

	newDispatch := func() (*client.Dispatcher, *rpc.ConnCache, error) {
		return buildDispatcher(hostsFile, chunkSize)
	}

	rootCmd.AddCommand(
		createCmd(newDispatch),
		statCmd(newDispatch),
		writeCmd(newDispatch),
		readCmd(newDispatch),
		rmCmd(newDispatch),
		lsCmd(newDispatch),
		truncateCmd(newDispatch),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type dispatcherFactory func() (*client.Dispatcher, *rpc.ConnCache, error)

// buildDispatcher reads the hosts file and constructs a Dispatcher backed
// by real gRPC connections, one per daemon (spec.md §6's mount sequence,
// minus the syscall-interception shim itself).
func buildDispatcher(hostsFileFlag string, chunkSizeFlag uint64) (*client.Dispatcher, *rpc.ConnCache, error) {
	cfg, err := config.ClientConfigFromEnv()
	if err != nil && hostsFileFlag == "" {
		return nil, nil, fmt.Errorf("load client config: %w", err)
	}
	hostsPath := cfg.HostsFile
	if hostsFileFlag != "" {
		hostsPath = hostsFileFlag
	}

	hosts, err := config.LoadHostsFile(hostsPath)
	if err != nil {
		return nil, nil, err
	}

	cache := rpc.NewConnCache()
	transports := make([]rpc.Transport, len(hosts))
	for i, h := range hosts {
		cc, err := cache.Conn(h.Name, h.Address)
		if err != nil {
			cache.Close()
			return nil, nil, err
		}
		transports[i] = rpc.NewGrpcClient(cc)
	}

	dist := distributor.NewHash(0, uint32(len(hosts)))
	lookup := func(h distributor.HostID) rpc.Transport { return transports[h] }

	chunkSize := chunkSizeFlag
	if chunkSize == 0 {
		resp, status, err := transports[dist.LocateFileMetadata("/")].GetFsConfig(context.Background(), rpc.GetFsConfigRequest{})
		if err != nil || status != rpc.OK {
			cache.Close()
			return nil, nil, fmt.Errorf("mount handshake: get_fs_config: status=%s err=%v", status, err)
		}
		chunkSize = resp.ChunkSize
	}

	return client.NewDispatcher(dist, lookup, chunkSize), cache, nil
}

func createCmd(newDispatch dispatcherFactory) *cobra.Command {
	var mode uint32
	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Create a regular file's metadata entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, cache, err := newDispatch()
			if err != nil {
				return err
			}
			defer cache.Close()
			return d.Create(cmd.Context(), args[0], mode)
		},
	}
	cmd.Flags().Uint32Var(&mode, "mode", 0o644, "file mode")
	return cmd
}

func statCmd(newDispatch dispatcherFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Print a path's raw serialized metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, cache, err := newDispatch()
			if err != nil {
				return err
			}
			defer cache.Close()
			meta, err := d.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(meta)
			return nil
		},
	}
}

func writeCmd(newDispatch dispatcherFactory) *cobra.Command {
	var offset int64
	var appendMode bool
	cmd := &cobra.Command{
		Use:   "write <path>",
		Short: "Write stdin to path at --offset (or append with --append)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := readAllStdin()
			if err != nil {
				return err
			}
			d, cache, err := newDispatch()
			if err != nil {
				return err
			}
			defer cache.Close()
			n, pos, err := d.Write(cmd.Context(), args[0], buf, offset, appendMode)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes at offset %d\n", n, pos)
			return nil
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "write offset")
	cmd.Flags().BoolVar(&appendMode, "append", false, "append at the file's current size instead of --offset")
	return cmd
}

func readCmd(newDispatch dispatcherFactory) *cobra.Command {
	var offset, length int64
	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Read --length bytes from path at --offset and print to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, cache, err := newDispatch()
			if err != nil {
				return err
			}
			defer cache.Close()
			buf := make([]byte, length)
			n, err := d.Read(cmd.Context(), args[0], buf, offset)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(buf[:n])
			return err
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "read offset")
	cmd.Flags().Int64Var(&length, "length", 0, "bytes to read")
	return cmd
}

func rmCmd(newDispatch dispatcherFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a path's chunks and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, cache, err := newDispatch()
			if err != nil {
				return err
			}
			defer cache.Close()
			return d.Remove(cmd.Context(), args[0])
		},
	}
}

func lsCmd(newDispatch dispatcherFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "List a directory's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, cache, err := newDispatch()
			if err != nil {
				return err
			}
			defer cache.Close()
			entries, err := d.GetDirents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, e := range entries {
				suffix := ""
				if e.IsDir {
					suffix = "/"
				}
				fmt.Println(e.Name + suffix)
			}
			return nil
		},
	}
}

func truncateCmd(newDispatch dispatcherFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "truncate <path> <size>",
		Short: "Truncate path to size bytes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var size int64
			if _, err := fmt.Sscanf(args[1], "%d", &size); err != nil {
				return fmt.Errorf("parse size: %w", err)
			}
			d, cache, err := newDispatch()
			if err != nil {
				return err
			}
			defer cache.Close()
			return d.Truncate(cmd.Context(), args[0], size)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   func(cmd *cobra.Command, args []string) { fmt.Println(version) },
	}
}

func readAllStdin() ([]byte, error) {
	return io.ReadAll(os.Stdin)
}
