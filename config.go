package riakpb

import (
	"context"
	"net"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// DefaultMaxSize is the pool size used when Config.MaxSize is zero.
const DefaultMaxSize = 4

// Config holds configuration for the client and its connection pools.
type Config struct {
	// MaxSize is the maximum number of connections per node.
	// Zero means DefaultMaxSize.
	MaxSize int32

	// MaxConnLifetime is the maximum duration a connection can be reused.
	// Zero means no limit.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum duration a connection can be idle before being closed.
	// Zero means no limit.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle connections are pinged and
	// checked against the lifetime limits. Zero disables health checks.
	HealthCheckInterval time.Duration

	// Dialer is the net.Dialer used to create new connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// Timeout bounds every exchange (write plus complete response),
	// including the handshake of a new connection. A context deadline that
	// is earlier wins. Zero means only the context bounds the exchange.
	Timeout time.Duration

	// NewPool is the connection pool factory.
	// If nil, NewChannelPool is used. NewPuddlePool is the alternative.
	NewPool PoolFactory

	// NewCircuitBreaker creates a circuit breaker for a node.
	// Called once per node address when the client is created.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(serverAddr string) *gobreaker.CircuitBreaker[*Response]

	// SelectServer picks which node handles a routing key.
	// If nil, DefaultServerSelector is used.
	SelectServer ServerSelector

	// ClientID is the client identity sent on every new connection. When
	// empty the identity is requested from the first node contacted and
	// replayed on every later connection. See ClientIDFromInt.
	ClientID string

	// DefaultQuorum is applied to every call that leaves a quorum
	// parameter at zero. Zero here leaves the choice to the server.
	DefaultQuorum Quorum

	// Logger receives structured events. If nil, nothing is logged.
	Logger *zap.Logger

	// only used by tests: replaces the Dialer
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// Quorum holds the replica counts of a request. Zero means unset.
type Quorum struct {
	R  uint32 // replicas that must answer a read
	W  uint32 // replicas that must acknowledge a write
	DW uint32 // replicas that must durably store a write
	RW uint32 // replicas that must acknowledge a delete
}

// quorumValue returns the request's value, else the default, else nil so
// the field is omitted on the wire.
func quorumValue(v, def uint32) *uint32 {
	if v == 0 {
		v = def
	}
	if v == 0 {
		return nil
	}
	return &v
}

func (c Config) withDefaults() Config {
	if c.MaxSize == 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.NewPool == nil {
		c.NewPool = NewChannelPool
	}
	if c.SelectServer == nil {
		c.SelectServer = DefaultServerSelector
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
