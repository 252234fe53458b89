// Package daemon implements the per-node daemon: RPC handlers bound to a
// metadata KV engine and a chunk store (spec.md §4.6, C6), and the I/O
// scheduler pool they submit chunk work to (spec.md §4.7, C7).
package daemon

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// defaultIOPoolSize matches spec.md §4.7's "8 streams for chunk I/O".
const defaultIOPoolSize = 8

// IOPool bounds the concurrency of the chunk I/O that one RPC handler
// submits in a single Run call. The bound is per Run call: Run calls from
// concurrent handlers are not bounded against each other.
//
// The original schedules chunk I/O onto a fixed number of cooperative
// Argobots streams multiplexed onto a bounded pool of OS threads; Go's
// runtime already multiplexes goroutines onto OS threads the same way, so
// IOPool only bounds how many chunk operations run at once, rather than
// reimplementing cooperative scheduling. Grounded on the pack's own
// errgroup.WithContext fan-out (internal/index/build.go), generalized with
// SetLimit for the bounded-concurrency contract spec.md §4.7 requires.
type IOPool struct {
	limit int
}

// NewIOPool constructs a pool that runs at most limit chunk operations
// concurrently per Run call. limit <= 0 falls back to defaultIOPoolSize.
func NewIOPool(limit int) *IOPool {
	if limit <= 0 {
		limit = defaultIOPoolSize
	}
	return &IOPool{limit: limit}
}

// Run submits every task to the pool and blocks until all have completed,
// returning the first error encountered (if any). Tasks do not observe ctx:
// cancelling it neither stops running tasks nor skips unsubmitted ones.
// Remaining tasks still run to completion — spec.md §4.8 aggregates partial
// success at the client, not here.
func (p *IOPool) Run(ctx context.Context, tasks []func() error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for _, task := range tasks {
		g.Go(task)
	}
	return g.Wait()
}
