package riakpb

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/riakpb/riakpb/pb"
	"github.com/riakpb/riakpb/wire"
	"go.uber.org/zap"
)

// ServerInfo describes the node that answered GET_SERVER_INFO.
type ServerInfo struct {
	Node          string
	ServerVersion string
}

// MapReduceResult is one frame of a map-reduce response: the phase that
// produced it and the raw response body (JSON for JSON jobs).
type MapReduceResult struct {
	Phase    uint32
	Response []byte
}

// Client talks to one or more nodes, keeping a connection pool and an
// optional circuit breaker per node.
//
// Creating a client performs no I/O. The client identity is established on
// the first connection: it is requested with GET_CLIENT_ID unless
// Config.ClientID is set, then replayed with SET_CLIENT_ID on every new
// connection. All methods are safe for concurrent use.
type Client struct {
	servers      Servers
	selectServer ServerSelector
	pools        []*ServerPool

	config Config
	logger *zap.Logger

	identityMu sync.Mutex
	identity   []byte

	buckets *xsync.MapOf[string, *Bucket]

	stopHealthCheck chan struct{}
	closed          atomic.Bool

	stats *clientStatsCollector
}

// NewClient creates a client for the given servers.
// For a single node, use: NewClient(NewStaticServers("host:port"), config)
// A nil servers connects to DefaultAddress.
func NewClient(servers Servers, config Config) (*Client, error) {
	if servers == nil {
		servers = NewStaticServers()
	}

	addrs := servers.List()
	if len(addrs) == 0 {
		return nil, ErrNoServers
	}
	for _, addr := range addrs {
		if err := ValidateAddress(addr); err != nil {
			return nil, err
		}
	}
	if config.MaxSize < 0 {
		return nil, &ValidationError{Field: "pool size", Message: "must not be negative"}
	}

	config = config.withDefaults()

	client := &Client{
		servers:         servers,
		selectServer:    config.SelectServer,
		config:          config,
		logger:          config.Logger,
		buckets:         xsync.NewMapOf[string, *Bucket](),
		stopHealthCheck: make(chan struct{}),
		stats:           newClientStatsCollector(),
	}

	if config.ClientID != "" {
		client.identity = []byte(config.ClientID)
	}

	for _, addr := range addrs {
		sp, err := NewServerPool(addr, config, client.connect(addr))
		if err != nil {
			client.closePools()
			return nil, err
		}
		client.pools = append(client.pools, sp)
	}

	if config.HealthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Close closes the client and destroys all connections in all pools.
// Calls after the first are no-ops.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopHealthCheck)
	c.closePools()
}

func (c *Client) closePools() {
	for _, sp := range c.pools {
		sp.pool.Close()
	}
}

// Stats returns a snapshot of the client operation counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// AllPoolStats returns stats for every node, in server list order.
func (c *Client) AllPoolStats() []ServerPoolStats {
	stats := make([]ServerPoolStats, len(c.pools))
	for i, sp := range c.pools {
		stats[i] = sp.Stats()
	}
	return stats
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// connect returns the pool constructor for a node: dial, then identify.
func (c *Client) connect(addr string) ConnectFunc {
	return func(ctx context.Context) (*Connection, error) {
		var netConn net.Conn
		var err error
		if c.config.dial != nil {
			netConn, err = c.config.dial(ctx, addr)
		} else {
			netConn, err = c.config.Dialer.DialContext(ctx, "tcp", addr)
		}
		if err != nil {
			return nil, &wire.ConnectionError{Op: "dial", Err: err}
		}

		conn := NewConnection(netConn, c.config.Timeout)
		if err := c.identify(ctx, conn, addr); err != nil {
			_ = conn.Close()
			c.logger.Warn("connection handshake failed", zap.String("server", addr), zap.Error(err))
			return nil, &HandshakeError{Addr: addr, Err: err}
		}
		return conn, nil
	}
}

// identify establishes the client identity on a new connection. The first
// connection ever made asks the server for an identity, every later one
// replays it.
func (c *Client) identify(ctx context.Context, conn *Connection, addr string) error {
	c.identityMu.Lock()
	id := c.identity
	if id != nil {
		c.identityMu.Unlock()
		return conn.Handshake(ctx, pb.Marshal(&pb.SetClientIDReq{ClientID: id}))
	}
	defer c.identityMu.Unlock()

	resp, err := conn.Exchange(ctx, wire.CodeGetClientIDReq, nil)
	if err != nil {
		return err
	}
	var msg pb.GetClientIDResp
	if err := msg.Unmarshal(resp.Payload()); err != nil {
		return &wire.DecodeError{Message: "client id response", Err: err}
	}
	if msg.ClientID == nil {
		msg.ClientID = []byte{}
	}
	c.identity = msg.ClientID
	c.logger.Info("client id assigned", zap.String("server", addr), zap.ByteString("client_id", msg.ClientID))
	return nil
}

// ClientID returns the client identity, connecting to a node first when it
// is not known yet.
func (c *Client) ClientID(ctx context.Context) (string, error) {
	if id, ok := c.knownClientID(); ok {
		return id, nil
	}
	if err := c.Ping(ctx); err != nil {
		return "", err
	}
	id, _ := c.knownClientID()
	return id, nil
}

func (c *Client) knownClientID() (string, bool) {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()
	return string(c.identity), c.identity != nil
}

// exec routes one exchange to the node selected for routingKey.
func (c *Client) exec(ctx context.Context, routingKey string, code wire.Code, msg pb.Message) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	idx := c.selectServer(routingKey, len(c.pools))
	if idx < 0 || idx >= len(c.pools) {
		idx = 0
	}
	sp := c.pools[idx]

	var payload []byte
	if msg != nil {
		payload = msg.AppendTo(nil)
	}

	resp, err := sp.Execute(ctx, code, payload)
	if err != nil {
		c.stats.recordError()
		if wire.ShouldCloseConnection(err) {
			c.logger.Debug("exchange failed",
				zap.String("server", sp.Address()),
				zap.Stringer("request", code),
				zap.Error(err))
		}
		return nil, err
	}
	return resp, nil
}

func decodeResponse(resp *Response, msg pb.Message) error {
	if err := msg.Unmarshal(resp.Payload()); err != nil {
		return &wire.DecodeError{Message: resp.Request.String() + " response", Err: err}
	}
	return nil
}

// Ping checks that a node answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.exec(ctx, "", wire.CodePingReq, nil)
	return err
}

// ServerInfo returns the node name and server version.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	resp, err := c.exec(ctx, "", wire.CodeGetServerInfoReq, nil)
	if err != nil {
		return ServerInfo{}, err
	}
	var msg pb.GetServerInfoResp
	if err := decodeResponse(resp, &msg); err != nil {
		return ServerInfo{}, err
	}
	return ServerInfo{Node: string(msg.Node), ServerVersion: string(msg.ServerVersion)}, nil
}

// Bucket returns the memoized bucket for name without any request.
func (c *Client) Bucket(name string) (*Bucket, error) {
	if err := validateBucketName(name); err != nil {
		return nil, err
	}
	b, _ := c.buckets.LoadOrCompute(name, func() *Bucket {
		return newBucket(c, name)
	})
	return b, nil
}

// LoadBucket returns the bucket for name with its properties fetched.
func (c *Client) LoadBucket(ctx context.Context, name string) (*Bucket, error) {
	b, err := c.Bucket(name)
	if err != nil {
		return nil, err
	}
	if err := b.Reload(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Get fetches bucket/key. A missing key is not an error: the returned key's
// State is NotFound.
func (c *Client) Get(ctx context.Context, bucket, key string, opts GetOptions) (*Key, error) {
	b, err := c.Bucket(bucket)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, key, opts)
}

// Put stores content under bucket/key and returns the key reloaded from the
// server's reply.
func (c *Client) Put(ctx context.Context, bucket, key string, content *Content, opts SaveOptions) (*Key, error) {
	b, err := c.Bucket(bucket)
	if err != nil {
		return nil, err
	}
	return b.Put(ctx, key, content, opts)
}

// Delete removes bucket/key.
func (c *Client) Delete(ctx context.Context, bucket, key string, opts DeleteOptions) error {
	b, err := c.Bucket(bucket)
	if err != nil {
		return err
	}
	return b.Delete(ctx, key, opts)
}

// ListBuckets lists every bucket of the cluster. The response is streamed
// by the server and collected in memory.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	resp, err := c.exec(ctx, "", wire.CodeListBucketsReq, &pb.ListBucketsReq{Stream: pb.Bool(true)})
	if err != nil {
		return nil, err
	}
	c.stats.recordList()

	var msg pb.ListBucketsResp
	if err := decodeResponse(resp, &msg); err != nil {
		return nil, err
	}
	return byteStrings(msg.Buckets), nil
}

// ListKeys lists every key of a bucket, in the order the pages arrived.
func (c *Client) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	if err := validateBucketName(bucket); err != nil {
		return nil, err
	}
	resp, err := c.exec(ctx, bucket, wire.CodeListKeysReq, &pb.ListKeysReq{Bucket: []byte(bucket)})
	if err != nil {
		return nil, err
	}
	c.stats.recordList()

	var msg pb.ListKeysResp
	if err := decodeResponse(resp, &msg); err != nil {
		return nil, err
	}
	return byteStrings(msg.Keys), nil
}

// GetBucketProps fetches the properties of a bucket.
func (c *Client) GetBucketProps(ctx context.Context, bucket string) (BucketProps, error) {
	b, err := c.LoadBucket(ctx, bucket)
	if err != nil {
		return BucketProps{}, err
	}
	return b.Props(), nil
}

// SetBucketProps writes the non-nil properties of a bucket.
func (c *Client) SetBucketProps(ctx context.Context, bucket string, props BucketProps) error {
	b, err := c.Bucket(bucket)
	if err != nil {
		return err
	}
	return b.SetProps(ctx, props)
}

// MapReduce submits a job body with its content type (usually
// application/json) and returns one result per response frame. Frames
// that carry only the done marker are omitted.
func (c *Client) MapReduce(ctx context.Context, request []byte, contentType string) ([]MapReduceResult, error) {
	if len(bytes.TrimSpace(request)) == 0 {
		return nil, &ValidationError{Field: "map-reduce request", Message: "must not be empty"}
	}
	if contentType == "" {
		return nil, &ValidationError{Field: "content type", Message: "required for map-reduce"}
	}

	resp, err := c.exec(ctx, "", wire.CodeMapRedReq, &pb.MapRedReq{Request: request, ContentType: []byte(contentType)})
	if err != nil {
		return nil, err
	}
	c.stats.recordMapReduce()

	results := make([]MapReduceResult, 0, len(resp.Frames))
	for _, f := range resp.Frames {
		var msg pb.MapRedResp
		if err := msg.Unmarshal(f.Payload); err != nil {
			return nil, &wire.DecodeError{Message: "map-reduce response", Err: err}
		}
		if msg.Phase == nil && msg.Response == nil {
			continue
		}
		r := MapReduceResult{Response: msg.Response}
		if msg.Phase != nil {
			r.Phase = *msg.Phase
		}
		results = append(results, r)
	}
	return results, nil
}

func (c *Client) get(ctx context.Context, bucket, key string, r uint32) (*pb.GetResp, error) {
	resp, err := c.exec(ctx, objectRoutingKey(bucket, key), wire.CodeGetReq, &pb.GetReq{
		Bucket: []byte(bucket),
		Key:    []byte(key),
		R:      quorumValue(r, c.config.DefaultQuorum.R),
	})
	if err != nil {
		return nil, err
	}

	var msg pb.GetResp
	if err := decodeResponse(resp, &msg); err != nil {
		return nil, err
	}
	c.stats.recordGet(len(msg.Content))
	return &msg, nil
}

func (c *Client) put(ctx context.Context, req *pb.PutReq) (*pb.PutResp, error) {
	resp, err := c.exec(ctx, objectRoutingKey(string(req.Bucket), string(req.Key)), wire.CodePutReq, req)
	if err != nil {
		return nil, err
	}

	var msg pb.PutResp
	if err := decodeResponse(resp, &msg); err != nil {
		return nil, err
	}
	c.stats.recordPut()
	return &msg, nil
}

func (c *Client) del(ctx context.Context, bucket, key string, rw uint32) error {
	_, err := c.exec(ctx, objectRoutingKey(bucket, key), wire.CodeDelReq, &pb.DelReq{
		Bucket: []byte(bucket),
		Key:    []byte(key),
		RW:     quorumValue(rw, c.config.DefaultQuorum.RW),
	})
	if err != nil {
		return err
	}
	c.stats.recordDelete()
	return nil
}

func (c *Client) getBucket(ctx context.Context, bucket string) (*pb.GetBucketResp, error) {
	resp, err := c.exec(ctx, bucket, wire.CodeGetBucketReq, &pb.GetBucketReq{Bucket: []byte(bucket)})
	if err != nil {
		return nil, err
	}
	var msg pb.GetBucketResp
	if err := decodeResponse(resp, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) setBucket(ctx context.Context, bucket string, props *pb.BucketProps) error {
	_, err := c.exec(ctx, bucket, wire.CodeSetBucketReq, &pb.SetBucketReq{Bucket: []byte(bucket), Props: props})
	return err
}

// healthCheckLoop periodically checks idle connections for health and lifecycle limits.
func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			for _, sp := range c.pools {
				c.checkPoolConnections(sp)
			}
		}
	}
}

// checkPoolConnections destroys idle connections that are too old, idle for
// too long, or do not answer a PING.
func (c *Client) checkPoolConnections(sp *ServerPool) {
	now := time.Now()

	for _, res := range sp.pool.AcquireAllIdle() {
		if c.config.MaxConnLifetime > 0 && now.Sub(res.CreationTime()) > c.config.MaxConnLifetime {
			res.Destroy()
			continue
		}

		if c.config.MaxConnIdleTime > 0 && res.IdleDuration() > c.config.MaxConnIdleTime {
			res.Destroy()
			continue
		}

		if err := c.healthCheck(res.Value()); err != nil {
			c.logger.Info("destroying unhealthy connection", zap.String("server", sp.Address()), zap.Error(err))
			res.Destroy()
			continue
		}

		res.ReleaseUnused()
	}
}

func (c *Client) healthCheck(conn *Connection) error {
	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := conn.Exchange(ctx, wire.CodePingReq, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func byteStrings(in [][]byte) []string {
	out := make([]string, len(in))
	for i, b := range in {
		out[i] = string(b)
	}
	return out
}
