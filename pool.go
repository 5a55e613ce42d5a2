package riakpb

import (
	"context"
	"errors"
	"time"
)

// ErrPoolClosed is returned by Acquire after the pool was closed.
var ErrPoolClosed = errors.New("riakpb: pool closed")

// ConnectFunc creates a ready-to-use connection.
type ConnectFunc func(ctx context.Context) (*Connection, error)

// PoolFactory builds a Pool around a connection constructor.
type PoolFactory func(constructor ConnectFunc, maxSize int32) (Pool, error)

// Pool holds the connections to one node.
type Pool interface {
	// Acquire returns an idle connection or creates one while the pool is
	// below its maximum size; otherwise it waits for a release or ctx.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle takes every idle connection out of the pool, for
	// health checks.
	AcquireAllIdle() []Resource

	Close()

	Stats() PoolStats
}

// Resource is a connection checked out of a Pool. Exactly one of Release,
// ReleaseUnused or Destroy must be called.
type Resource interface {
	Value() *Connection

	// Release returns the connection to the pool after use.
	Release()

	// ReleaseUnused returns the connection without touching its last-use
	// time.
	ReleaseUnused()

	// Destroy closes the connection and frees its slot.
	Destroy()

	CreationTime() time.Time
	IdleDuration() time.Duration
}
