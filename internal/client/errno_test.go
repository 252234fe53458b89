package client

import (
	"errors"
	"syscall"
	"testing"

	"gkfs/internal/rpc"
)

func TestErrnoMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status rpc.Status
		want   syscall.Errno
	}{
		{rpc.NotFound, syscall.ENOENT},
		{rpc.AlreadyExists, syscall.EEXIST},
		{rpc.NotSupported, syscall.ENOTSUP},
		{rpc.InvalidArgument, syscall.EINVAL},
		{rpc.StorageFault, syscall.EIO},
		{rpc.TransportFault, syscall.EIO},
	}
	for _, tc := range cases {
		err := &StatusError{Op: "stat", Path: "/a", Status: tc.status}
		if got := Errno(err); got != tc.want {
			t.Errorf("Errno(%v) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestErrnoNilIsZero(t *testing.T) {
	if got := Errno(nil); got != 0 {
		t.Errorf("Errno(nil) = %v, want 0", got)
	}
}

func TestErrnoNonStatusErrorIsEIO(t *testing.T) {
	if got := Errno(errors.New("boom")); got != syscall.EIO {
		t.Errorf("Errno(plain error) = %v, want EIO", got)
	}
}

func TestStatusErrorUnwrap(t *testing.T) {
	inner := errors.New("dial failed")
	se := &StatusError{Op: "write", Path: "/f", Status: rpc.TransportFault, Err: inner}
	if !errors.Is(se, inner) {
		t.Fatal("expected errors.Is to see through StatusError.Unwrap")
	}
}
