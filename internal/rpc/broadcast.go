package rpc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Broadcast issues fn against every transport in targets concurrently and
// waits for all to finish, propagating the first error encountered.
// Grounded on the teacher's subscriber-fan-out pattern
// (internal/cluster/broadcast.go), generalized from a fixed subscriber
// registry to an explicit target list supplied per call — used for
// client.remove's metadentry_only broadcast to every data daemon that may
// hold chunks for a path (spec.md §4.8).
func Broadcast(ctx context.Context, targets []Transport, fn func(ctx context.Context, t Transport) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error { return fn(ctx, t) })
	}
	return g.Wait()
}
