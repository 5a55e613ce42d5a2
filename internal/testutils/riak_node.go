package testutils

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"testing"

	"github.com/riakpb/riakpb/pb"
	"github.com/riakpb/riakpb/wire"
)

// Request is one frame received by a RiakNode.
type Request struct {
	Conn    int
	Code    wire.Code
	Payload []byte
}

// HandlerFunc overrides the node's answer to a request. Returning ok=false
// falls back to the default behavior.
type HandlerFunc func(req Request) (frames []wire.Frame, ok bool)

// RiakNode is an in-memory Riak node speaking the protocol-buffers
// interface over TCP. It keeps objects per bucket, creates siblings when
// allow_mult is set and a write does not descend from the stored vector
// clock, and streams key listings in pages of PageSize keys.
type RiakNode struct {
	ln net.Listener

	// PageSize is the number of keys per LIST_KEYS frame. Zero means 1.
	PageSize int

	// ClientID is returned by GET_CLIENT_ID.
	ClientID string

	// Handler, when set, is consulted before the default behavior.
	Handler HandlerFunc

	mu       sync.Mutex
	requests []Request
	buckets  map[string]*nodeBucket
	conns    map[int]net.Conn
	connIDs  map[int][]byte
	nextConn int
	nextTag  int

	wg sync.WaitGroup
}

type nodeBucket struct {
	nVal      uint32
	allowMult bool
	objects   map[string]*nodeObject
}

type nodeObject struct {
	vclock   []byte
	version  int
	contents []*pb.Content
}

// NewRiakNode starts a node on a random local port. It is stopped when the
// test finishes.
func NewRiakNode(t testing.TB) *RiakNode {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	n := &RiakNode{
		ln:       ln,
		PageSize: 1,
		ClientID: "AAAAAQ==",
		buckets:  make(map[string]*nodeBucket),
		conns:    make(map[int]net.Conn),
		connIDs:  make(map[int][]byte),
	}

	n.wg.Add(1)
	go n.acceptLoop()
	t.Cleanup(n.Close)
	return n
}

// Addr returns the host:port the node listens on.
func (n *RiakNode) Addr() string {
	return n.ln.Addr().String()
}

// Close stops the node and drops every connection.
func (n *RiakNode) Close() {
	_ = n.ln.Close()
	n.mu.Lock()
	for _, c := range n.conns {
		_ = c.Close()
	}
	n.mu.Unlock()
	n.wg.Wait()
}

// DropConnections closes every open client connection, keeping the listener.
func (n *RiakNode) DropConnections() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.conns {
		_ = c.Close()
	}
}

// Requests returns every request received so far.
func (n *RiakNode) Requests() []Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.requests)
}

// RequestsWithCode returns the received requests carrying code.
func (n *RiakNode) RequestsWithCode(code wire.Code) []Request {
	var out []Request
	for _, r := range n.Requests() {
		if r.Code == code {
			out = append(out, r)
		}
	}
	return out
}

// ConnClientID returns the identity a connection set with SET_CLIENT_ID.
func (n *RiakNode) ConnClientID(conn int) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connIDs[conn]
}

// SetBucket configures a bucket directly.
func (n *RiakNode) SetBucket(name string, nVal uint32, allowMult bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b := n.bucket(name)
	b.nVal = nVal
	b.allowMult = allowMult
}

// Store writes an object directly, as another client would. On a bucket
// with allow_mult the contents are added as siblings, otherwise they
// replace the stored ones.
func (n *RiakNode) Store(bucket, key string, contents ...*pb.Content) {
	n.mu.Lock()
	defer n.mu.Unlock()
	o := n.object(bucket, key)
	if !n.bucket(bucket).allowMult {
		o.contents = nil
	}
	for _, c := range contents {
		o.contents = append(o.contents, n.stamp(c))
	}
	n.advance(o)
}

func (n *RiakNode) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			return
		}

		n.mu.Lock()
		id := n.nextConn
		n.nextConn++
		n.conns[id] = conn
		n.mu.Unlock()

		n.wg.Add(1)
		go n.serve(id, conn)
	}
}

func (n *RiakNode) serve(id int, conn net.Conn) {
	defer n.wg.Done()
	defer func() {
		_ = conn.Close()
		n.mu.Lock()
		delete(n.conns, id)
		n.mu.Unlock()
	}()

	var pending []byte
	buf := make([]byte, 4096)
	for {
		for {
			f, rest, ok, err := wire.SplitFrame(pending)
			if err != nil {
				return
			}
			if !ok {
				break
			}
			req := Request{Conn: id, Code: f.Code, Payload: bytes.Clone(f.Payload)}
			pending = append(pending[:0], rest...)

			var out []byte
			for _, rf := range n.handle(req) {
				out = wire.AppendFrame(out, rf.Code, rf.Payload)
			}
			if _, err := conn.Write(out); err != nil {
				return
			}
		}

		m, err := conn.Read(buf)
		if m > 0 {
			pending = append(pending, buf[:m]...)
		}
		if err != nil {
			return
		}
	}
}

func (n *RiakNode) handle(req Request) []wire.Frame {
	n.mu.Lock()
	n.requests = append(n.requests, req)
	handler := n.Handler
	n.mu.Unlock()

	if handler != nil {
		if frames, ok := handler(req); ok {
			return frames
		}
	}

	frames, err := n.dispatch(req)
	if err != nil {
		return []wire.Frame{ErrorFrame(err.Error(), 1)}
	}
	return frames
}

func (n *RiakNode) dispatch(req Request) ([]wire.Frame, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Code {
	case wire.CodePingReq:
		return ack(wire.CodePingResp), nil

	case wire.CodeGetClientIDReq:
		return one(wire.CodeGetClientIDResp, &pb.GetClientIDResp{ClientID: []byte(n.ClientID)}), nil

	case wire.CodeSetClientIDReq:
		var m pb.SetClientIDReq
		if err := m.Unmarshal(req.Payload); err != nil {
			return nil, err
		}
		n.connIDs[req.Conn] = m.ClientID
		return ack(wire.CodeSetClientIDResp), nil

	case wire.CodeGetServerInfoReq:
		return one(wire.CodeGetServerInfoResp, &pb.GetServerInfoResp{
			Node:          []byte("riak@127.0.0.1"),
			ServerVersion: []byte("0.10.1"),
		}), nil

	case wire.CodeGetReq:
		var m pb.GetReq
		if err := m.Unmarshal(req.Payload); err != nil {
			return nil, err
		}
		o := n.lookup(string(m.Bucket), string(m.Key))
		if o == nil {
			return ack(wire.CodeGetResp), nil
		}
		return one(wire.CodeGetResp, &pb.GetResp{Content: o.contents, Vclock: o.vclock}), nil

	case wire.CodePutReq:
		return n.put(req.Payload)

	case wire.CodeDelReq:
		var m pb.DelReq
		if err := m.Unmarshal(req.Payload); err != nil {
			return nil, err
		}
		if b, ok := n.buckets[string(m.Bucket)]; ok {
			delete(b.objects, string(m.Key))
		}
		return ack(wire.CodeDelResp), nil

	case wire.CodeListBucketsReq:
		var names [][]byte
		for _, name := range n.sortedBuckets() {
			if len(n.buckets[name].objects) > 0 {
				names = append(names, []byte(name))
			}
		}
		return one(wire.CodeListBucketsResp, &pb.ListBucketsResp{Buckets: names, Done: pb.Bool(true)}), nil

	case wire.CodeListKeysReq:
		var m pb.ListKeysReq
		if err := m.Unmarshal(req.Payload); err != nil {
			return nil, err
		}
		return n.listKeys(string(m.Bucket)), nil

	case wire.CodeGetBucketReq:
		var m pb.GetBucketReq
		if err := m.Unmarshal(req.Payload); err != nil {
			return nil, err
		}
		b := n.bucket(string(m.Bucket))
		return one(wire.CodeGetBucketResp, &pb.GetBucketResp{Props: &pb.BucketProps{
			NVal:      pb.Uint32(b.nVal),
			AllowMult: pb.Bool(b.allowMult),
		}}), nil

	case wire.CodeSetBucketReq:
		var m pb.SetBucketReq
		if err := m.Unmarshal(req.Payload); err != nil {
			return nil, err
		}
		b := n.bucket(string(m.Bucket))
		if m.Props != nil && m.Props.NVal != nil {
			b.nVal = *m.Props.NVal
		}
		if m.Props != nil && m.Props.AllowMult != nil {
			b.allowMult = *m.Props.AllowMult
		}
		return ack(wire.CodeSetBucketResp), nil

	case wire.CodeMapRedReq:
		var m pb.MapRedReq
		if err := m.Unmarshal(req.Payload); err != nil {
			return nil, err
		}
		return []wire.Frame{
			{Code: wire.CodeMapRedResp, Payload: pb.Marshal(&pb.MapRedResp{Phase: pb.Uint32(0), Response: m.Request})},
			{Code: wire.CodeMapRedResp, Payload: pb.Marshal(&pb.MapRedResp{Done: pb.Bool(true)})},
		}, nil
	}

	return nil, fmt.Errorf("unknown message code %d", req.Code)
}

func (n *RiakNode) put(payload []byte) ([]wire.Frame, error) {
	var m pb.PutReq
	if err := m.Unmarshal(payload); err != nil {
		return nil, err
	}
	if m.Content == nil {
		return nil, errors.New("missing content")
	}

	b := n.bucket(string(m.Bucket))
	o := n.object(string(m.Bucket), string(m.Key))
	c := n.stamp(m.Content)

	if b.allowMult && len(o.contents) > 0 && !bytes.Equal(m.Vclock, o.vclock) {
		o.contents = append(o.contents, c)
	} else {
		o.contents = []*pb.Content{c}
	}
	n.advance(o)

	if m.ReturnBody == nil || !*m.ReturnBody {
		return ack(wire.CodePutResp), nil
	}
	return one(wire.CodePutResp, &pb.PutResp{Contents: o.contents, Vclock: o.vclock}), nil
}

func (n *RiakNode) listKeys(bucket string) []wire.Frame {
	var keys []string
	if b, ok := n.buckets[bucket]; ok {
		for k := range b.objects {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	size := n.PageSize
	if size <= 0 {
		size = 1
	}

	var frames []wire.Frame
	for page := range slices.Chunk(keys, size) {
		m := &pb.ListKeysResp{}
		for _, k := range page {
			m.Keys = append(m.Keys, []byte(k))
		}
		frames = append(frames, wire.Frame{Code: wire.CodeListKeysResp, Payload: pb.Marshal(m)})
	}
	return append(frames, wire.Frame{Code: wire.CodeListKeysResp, Payload: pb.Marshal(&pb.ListKeysResp{Done: pb.Bool(true)})})
}

func (n *RiakNode) bucket(name string) *nodeBucket {
	b, ok := n.buckets[name]
	if !ok {
		b = &nodeBucket{nVal: 3, objects: make(map[string]*nodeObject)}
		n.buckets[name] = b
	}
	return b
}

func (n *RiakNode) object(bucket, key string) *nodeObject {
	b := n.bucket(bucket)
	o, ok := b.objects[key]
	if !ok {
		o = &nodeObject{}
		b.objects[key] = o
	}
	return o
}

func (n *RiakNode) lookup(bucket, key string) *nodeObject {
	b, ok := n.buckets[bucket]
	if !ok {
		return nil
	}
	return b.objects[key]
}

func (n *RiakNode) sortedBuckets() []string {
	names := make([]string, 0, len(n.buckets))
	for name := range n.buckets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// stamp copies c and assigns a fresh vtag and modification time.
func (n *RiakNode) stamp(c *pb.Content) *pb.Content {
	n.nextTag++
	out := *c
	out.Vtag = []byte(fmt.Sprintf("vtag-%d", n.nextTag))
	out.LastMod = pb.Uint32(1271030400)
	out.LastModUsecs = pb.Uint32(uint32(n.nextTag))
	return &out
}

func (n *RiakNode) advance(o *nodeObject) {
	o.version++
	o.vclock = []byte(fmt.Sprintf("vclock-%d", o.version))
}

// ErrorFrame builds an error response frame.
func ErrorFrame(msg string, code uint32) wire.Frame {
	return wire.Frame{
		Code:    wire.CodeErrorResp,
		Payload: pb.Marshal(&pb.ErrorResp{Errmsg: []byte(msg), Errcode: pb.Uint32(code)}),
	}
}

func ack(code wire.Code) []wire.Frame {
	return []wire.Frame{{Code: code}}
}

func one(code wire.Code, m pb.Message) []wire.Frame {
	return []wire.Frame{{Code: code, Payload: pb.Marshal(m)}}
}
