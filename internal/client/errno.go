package client

import (
	"fmt"
	"syscall"

	"gkfs/internal/rpc"
)

// StatusError is the client-side view of a failed RPC: the operation and
// path it was issued for, plus either the daemon-reported rpc.Status or
// (when Err is set) the underlying transport error that prevented a status
// from being obtained at all.
type StatusError struct {
	Op     string
	Path   string
	Status rpc.Status
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("client: %s %s: %s", e.Op, e.Path, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Errno maps err to the syscall.Errno a real syscall-interception shim would
// return to the caller, per spec.md §7's status table. A nil err maps to 0.
// An err that isn't a *StatusError (a bug, not an expected failure mode) maps
// to EIO, the table's catch-all.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	se, ok := err.(*StatusError)
	if !ok {
		return syscall.EIO
	}
	switch se.Status {
	case rpc.OK:
		return 0
	case rpc.NotFound:
		return syscall.ENOENT
	case rpc.AlreadyExists:
		return syscall.EEXIST
	case rpc.NotSupported:
		return syscall.ENOTSUP
	case rpc.InvalidArgument:
		return syscall.EINVAL
	case rpc.StorageFault, rpc.TransportFault:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}
