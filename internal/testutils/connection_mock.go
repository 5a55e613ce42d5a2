package testutils

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	"github.com/riakpb/riakpb/wire"
)

// ConnectionMock is a mock implementation of net.Conn for testing.
// Reads are served from the scripted response bytes, optionally in chunks
// of ChunkSize to exercise partial frames. Writes are recorded.
type ConnectionMock struct {
	mu       sync.Mutex
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	closed   bool

	// ChunkSize limits the bytes returned by one Read. Zero means no limit.
	ChunkSize int

	// ReadErr is returned once the scripted responses are exhausted.
	// Defaults to io.EOF.
	ReadErr error

	// WriteErr, when set, fails every Write.
	WriteErr error

	deadlines []time.Time
}

// NewConnectionMock creates a new mock connection with pre-configured response data.
func NewConnectionMock(responseData ...[]byte) *ConnectionMock {
	return &ConnectionMock{
		readBuf:  bytes.NewBuffer(bytes.Join(responseData, nil)),
		writeBuf: &bytes.Buffer{},
	}
}

// NewFrameMock creates a mock connection answering with the given frames.
func NewFrameMock(frames ...wire.Frame) *ConnectionMock {
	var data []byte
	for _, f := range frames {
		data = wire.AppendFrame(data, f.Code, f.Payload)
	}
	return NewConnectionMock(data)
}

// AddResponse appends more scripted bytes.
func (m *ConnectionMock) AddResponse(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Write(data)
}

func (m *ConnectionMock) Read(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	if m.readBuf.Len() == 0 {
		if m.ReadErr != nil {
			return 0, m.ReadErr
		}
		return 0, io.EOF
	}
	if m.ChunkSize > 0 && len(b) > m.ChunkSize {
		b = b[:m.ChunkSize]
	}
	return m.readBuf.Read(b)
}

func (m *ConnectionMock) Write(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *ConnectionMock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8087}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadlines = append(m.deadlines, t)
	return nil
}

func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return m.SetDeadline(t) }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return m.SetDeadline(t) }

// Deadlines returns every deadline set so far.
func (m *ConnectionMock) Deadlines() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.deadlines...)
}

// Written returns the raw request bytes written to the mock connection.
func (m *ConnectionMock) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.writeBuf.Bytes())
}

// WrittenFrames decodes the written bytes into frames.
func (m *ConnectionMock) WrittenFrames() ([]wire.Frame, error) {
	buf := m.Written()
	var frames []wire.Frame
	for len(buf) > 0 {
		f, rest, ok, err := wire.SplitFrame(buf)
		if err != nil {
			return frames, err
		}
		if !ok {
			return frames, io.ErrUnexpectedEOF
		}
		frames = append(frames, f)
		buf = rest
	}
	return frames, nil
}
