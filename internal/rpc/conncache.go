package rpc

import (
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ConnCache caches one *grpc.ClientConn per daemon host id, redialing only
// when the target address actually changes. Grounded on the teacher's
// cluster.Forwarder.leaderConn (internal/cluster/forwarder.go), which
// caches a single connection and redials only on address change; this
// generalizes that to one cached connection per daemon instead of one
// leader connection.
type ConnCache struct {
	mu    sync.Mutex
	addrs map[string]string
	conns map[string]*grpc.ClientConn
}

// NewConnCache constructs an empty cache.
func NewConnCache() *ConnCache {
	return &ConnCache{
		addrs: make(map[string]string),
		conns: make(map[string]*grpc.ClientConn),
	}
}

// Conn returns a connection to addr for hostID, reusing a cached one if
// addr hasn't changed since it was dialed.
func (c *ConnCache) Conn(hostID, addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cc, ok := c.conns[hostID]; ok {
		if c.addrs[hostID] == addr {
			return cc, nil
		}
		cc.Close()
		delete(c.conns, hostID)
	}

	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(msgpackCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	c.addrs[hostID] = addr
	c.conns[hostID] = cc
	return cc, nil
}

// Close closes every cached connection.
func (c *ConnCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, cc := range c.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.conns = make(map[string]*grpc.ClientConn)
	c.addrs = make(map[string]string)
	return firstErr
}
