package riakpb

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riakpb/riakpb/internal"
	"github.com/riakpb/riakpb/wire"
)

const readBufferSize = 64 * 1024

var framePool = internal.NewBufferPool(4096, 1<<20)

// ConnState is the lifecycle state of a Connection.
type ConnState int32

const (
	// StateIdle is a fresh socket that has not identified itself yet.
	StateIdle ConnState = iota
	// StateHandshakePending is waiting for the SET_CLIENT_ID acknowledgement.
	StateHandshakePending
	// StateReady can carry a new exchange.
	StateReady
	// StateSending is writing a request frame.
	StateSending
	// StateAwaitingResponse is reading response frames.
	StateAwaitingResponse
	// StateFailed is terminal: the connection must be destroyed.
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshakePending:
		return "handshake-pending"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Response holds the frames of one completed exchange.
type Response struct {
	// Request is the code that was sent.
	Request wire.Code

	// Frames are the response frames in arrival order. Streaming exchanges
	// have one frame per page, the last one carrying the done marker.
	Frames []wire.Frame
}

// Payload returns the concatenation of every frame payload. Package pb
// messages merge on Unmarshal, so the concatenation of a streamed response
// decodes as one message.
func (r *Response) Payload() []byte {
	if len(r.Frames) == 1 {
		return r.Frames[0].Payload
	}
	var n int
	for _, f := range r.Frames {
		n += len(f.Payload)
	}
	b := make([]byte, 0, n)
	for _, f := range r.Frames {
		b = append(b, f.Payload...)
	}
	return b
}

// Connection is one socket to a node. It runs at most one exchange at a
// time: the request frame is written, then response frames are read until
// the exchange completes. Bytes read past the end of a response are kept
// and prefixed onto the next read.
type Connection struct {
	conn    net.Conn
	timeout time.Duration

	mu      sync.Mutex
	state   atomic.Int32
	pending []byte
	readBuf []byte
}

// NewConnection wraps a connected socket. timeout bounds each exchange in
// addition to any context deadline; zero means no extra bound.
func NewConnection(conn net.Conn, timeout time.Duration) *Connection {
	return &Connection{
		conn:    conn,
		timeout: timeout,
		readBuf: make([]byte, readBufferSize),
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Failed reports whether the connection must be destroyed.
func (c *Connection) Failed() bool {
	return c.State() == StateFailed
}

func (c *Connection) setState(s ConnState) {
	c.state.Store(int32(s))
}

// RemoteAddr returns the node address of the socket.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the socket and marks the connection failed.
func (c *Connection) Close() error {
	c.setState(StateFailed)
	return c.conn.Close()
}

// Handshake sends SET_CLIENT_ID with the given identifier payload and waits
// for the acknowledgement. The connection becomes Ready on success and
// Failed otherwise.
func (c *Connection) Handshake(ctx context.Context, setClientIDPayload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateIdle {
		return &wire.ConnectionError{Op: "handshake", Err: errors.New("connection is " + c.State().String())}
	}

	c.setState(StateHandshakePending)
	_, err := c.exchange(ctx, wire.CodeSetClientIDReq, setClientIDPayload)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	return nil
}

// Exchange sends one request and reads its complete response.
//
// An error frame returns a *wire.RequestError and leaves the connection
// Ready. Any other failure (I/O, timeout, protocol skew, malformed frame)
// marks the connection Failed.
func (c *Connection) Exchange(ctx context.Context, code wire.Code, payload []byte) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch s := c.State(); s {
	case StateIdle, StateReady:
	case StateFailed:
		return nil, &wire.ConnectionError{Op: "exchange", Err: ErrConnectionFailed}
	default:
		return nil, &wire.ConnectionError{Op: "exchange", Err: errors.New("connection is " + s.String())}
	}

	return c.exchange(ctx, code, payload)
}

func (c *Connection) exchange(ctx context.Context, code wire.Code, payload []byte) (*Response, error) {
	entry, ok := wire.Lookup(code)
	if !ok {
		return nil, &ValidationError{Field: "request code", Message: code.String() + " is not a request"}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.setDeadline(ctx); err != nil {
		c.setState(StateFailed)
		return nil, &wire.ConnectionError{Op: "set deadline", Err: err}
	}

	c.setState(StateSending)
	if err := c.writeFrame(code, payload); err != nil {
		c.setState(StateFailed)
		return nil, err
	}

	c.setState(StateAwaitingResponse)
	resp := &Response{Request: code}
	var codes []wire.Code
	for {
		frame, err := c.readFrame()
		if err != nil {
			c.setState(StateFailed)
			return nil, err
		}
		codes = append(codes, frame.Code)

		if frame.Code == wire.CodeErrorResp {
			c.finish()
			return nil, wire.NewRequestError(entry.Response, codes, frame.Payload)
		}
		if frame.Code != entry.Response {
			c.setState(StateFailed)
			return nil, &wire.ProtocolSkewError{Expected: entry.Response, Codes: codes}
		}

		resp.Frames = append(resp.Frames, frame)

		done, err := entry.Done(frame.Payload)
		if err != nil {
			c.setState(StateFailed)
			return nil, err
		}
		if done {
			c.finish()
			return resp, nil
		}
	}
}

// finish ends an exchange. Unread bytes after a complete response mean the
// peer sent frames nobody asked for, so the stream position is unknown.
func (c *Connection) finish() {
	if len(c.pending) > 0 {
		c.setState(StateFailed)
		return
	}
	c.setState(StateReady)
}

func (c *Connection) setDeadline(ctx context.Context) error {
	deadline, _ := ctx.Deadline()
	if c.timeout > 0 {
		if t := time.Now().Add(c.timeout); deadline.IsZero() || t.Before(deadline) {
			deadline = t
		}
	}
	return c.conn.SetDeadline(deadline)
}

func (c *Connection) writeFrame(code wire.Code, payload []byte) error {
	buf := framePool.Get()
	defer framePool.Put(buf)

	*buf = wire.AppendFrame(*buf, code, payload)
	if _, err := c.conn.Write(*buf); err != nil {
		return &wire.ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// readFrame returns the next complete frame, reading from the socket until
// one is buffered. The returned payload does not alias the read buffer.
func (c *Connection) readFrame() (wire.Frame, error) {
	for {
		frame, rest, ok, err := wire.SplitFrame(c.pending)
		if err != nil {
			return wire.Frame{}, err
		}
		if ok {
			frame.Payload = append([]byte(nil), frame.Payload...)
			if len(rest) == 0 {
				c.pending = c.pending[:0]
			} else {
				c.pending = append(c.pending[:0], rest...)
			}
			return frame, nil
		}

		n, err := c.conn.Read(c.readBuf)
		if n > 0 {
			c.pending = append(c.pending, c.readBuf[:n]...)
			continue
		}
		if err != nil {
			return wire.Frame{}, &wire.ConnectionError{Op: "read", Err: err}
		}
	}
}
