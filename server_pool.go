package riakpb

import (
	"context"
	"errors"

	"github.com/riakpb/riakpb/wire"
	"github.com/sony/gobreaker/v2"
)

// NewServerPool creates the pool of connections to one node. connect dials
// and identifies a new connection.
func NewServerPool(addr string, config Config, connect ConnectFunc) (*ServerPool, error) {
	newPool := config.NewPool
	if newPool == nil {
		newPool = NewChannelPool
	}

	pool, err := newPool(connect, config.MaxSize)
	if err != nil {
		return nil, err
	}

	sp := &ServerPool{
		addr: addr,
		pool: pool,
	}
	if config.NewCircuitBreaker != nil {
		sp.circuitBreaker = config.NewCircuitBreaker(addr)
	}
	return sp, nil
}

// ServerPool wraps a pool, a circuit breaker with its server address.
type ServerPool struct {
	addr           string
	pool           Pool
	circuitBreaker *gobreaker.CircuitBreaker[*Response]
}

func (sp *ServerPool) Address() string {
	return sp.addr
}

// ServerPoolStats contains stats for a single server pool
type ServerPoolStats struct {
	Addr                 string
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

func (sp *ServerPool) Stats() ServerPoolStats {
	stats := ServerPoolStats{
		Addr:      sp.addr,
		PoolStats: sp.pool.Stats(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
		stats.CircuitBreakerCounts = sp.circuitBreaker.Counts()
	}
	return stats
}

// Execute runs one exchange on a pooled connection. The connection is
// released after success or a server refusal and destroyed after any error
// that leaves the stream unusable. The exchange is wrapped with the
// server's circuit breaker.
func (sp *ServerPool) Execute(ctx context.Context, code wire.Code, payload []byte) (*Response, error) {
	if sp.circuitBreaker == nil {
		return sp.execDirect(ctx, code, payload)
	}

	return sp.circuitBreaker.Execute(func() (*Response, error) {
		return sp.execDirect(ctx, code, payload)
	})
}

func (sp *ServerPool) execDirect(ctx context.Context, code wire.Code, payload []byte) (*Response, error) {
	resource, err := sp.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	conn := resource.Value()

	resp, err := conn.Exchange(ctx, code, payload)
	if conn.Failed() || closesConnection(err) {
		resource.Destroy()
	} else {
		resource.Release()
	}
	return resp, err
}

// closesConnection reports whether err says the stream is unusable. Errors
// raised before any I/O, like an already cancelled context, leave a Ready
// connection reusable.
func closesConnection(err error) bool {
	var stateErr wire.ErrorWithConnectionState
	return errors.As(err, &stateErr) && stateErr.ShouldCloseConnection()
}

// isNodeFailure reports whether err says something about the node's health.
// A caller cancelling its own context does not.
func isNodeFailure(err error) bool {
	var reqErr *wire.RequestError
	if errors.As(err, &reqErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
