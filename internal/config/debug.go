//go:build gkfs_debug

package config

import "os"

// DebugClientConfig holds the debug-build-only LIBGKFS_* variables
// (spec.md §6). Reading and acting on these outside a gkfs_debug build is a
// build-time error rather than a silently-ignored no-op.
type DebugClientConfig struct {
	LogDebugVerbosity string
	LogSyscallFilter  string
}

// DebugClientConfigFromEnv reads the debug-only LIBGKFS_* variables.
func DebugClientConfigFromEnv() DebugClientConfig {
	return DebugClientConfig{
		LogDebugVerbosity: os.Getenv("LIBGKFS_LOG_DEBUG_VERBOSITY"),
		LogSyscallFilter:  os.Getenv("LIBGKFS_LOG_SYSCALL_FILTER"),
	}
}
