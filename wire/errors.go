package wire

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Error types for the protocol buffers exchange.
// These errors tell callers whether the connection that produced them can be
// reused or must be discarded.

// RequestError reports that the server answered with an error frame (code 0).
// The server understood the exchange and refused it; the framing is intact.
//
// Common causes:
//   - Invalid bucket or key
//   - Quorum could not be met
//   - Map-reduce job failed
//
// Connection handling: Connection can be REUSED
type RequestError struct {
	// Expected is the response code the client was waiting for.
	Expected Code

	// Codes are the frame codes observed for this exchange, including the
	// error frame itself.
	Codes []Code

	// Message is the server's error text.
	Message string

	// ServerCode is the errcode field of the server's error message, zero
	// when the server did not send a structured error.
	ServerCode uint32

	// Payload is the raw error frame payload.
	Payload []byte
}

// NewRequestError builds a RequestError from an error frame payload.
//
// The payload is parsed as an error message (errmsg=1, errcode=2). When it is
// not a valid message it is used verbatim as the error text.
func NewRequestError(expected Code, codes []Code, payload []byte) *RequestError {
	e := &RequestError{
		Expected: expected,
		Codes:    codes,
		Payload:  payload,
	}
	if msg, code, ok := parseErrorResp(payload); ok {
		e.Message = msg
		e.ServerCode = code
	} else {
		e.Message = strings.ToValidUTF8(string(payload), "�")
	}
	return e
}

func (e *RequestError) Error() string {
	if e.ServerCode != 0 {
		return fmt.Sprintf("riak error (code %d): %s", e.ServerCode, e.Message)
	}
	return "riak error: " + e.Message
}

// ShouldCloseConnection returns false - the framing is still in sync
func (e *RequestError) ShouldCloseConnection() bool {
	return false
}

// ProtocolSkewError reports a response code that does not match the request.
// The client and server disagree about which exchange is in flight.
//
// Connection handling: CLOSE connection immediately
type ProtocolSkewError struct {
	Expected Code
	Codes    []Code
}

func (e *ProtocolSkewError) Error() string {
	got := make([]string, len(e.Codes))
	for i, c := range e.Codes {
		got[i] = c.String()
	}
	return fmt.Sprintf("protocol skew: expected %s, got [%s]", e.Expected, strings.Join(got, " "))
}

// ShouldCloseConnection returns true - the stream position is unknown
func (e *ProtocolSkewError) ShouldCloseConnection() bool {
	return true
}

// DecodeError reports bytes that cannot be a frame or a message.
//
// Common causes:
//   - Length prefix of zero
//   - Length prefix above MaxFrameLength
//   - Malformed protobuf payload
//
// Connection handling: CLOSE connection
type DecodeError struct {
	Message string
	Length  uint32
	Err     error
}

func (e *DecodeError) Error() string {
	msg := "decode error: " + e.Message
	if e.Length != 0 {
		msg += fmt.Sprintf(" (length %d)", e.Length)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - decode errors leave the stream unusable
func (e *DecodeError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps I/O errors from the socket.
//
// Connection handling: Connection is already broken, CLOSE and RECONNECT
type ConnectionError struct {
	Op  string // Operation that failed (dial, read, write, handshake)
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by every protocol error type.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires discarding the
// connection it came from.
//
// Returns false for nil and for errors that say so explicitly (RequestError).
// Unknown error types are treated as fatal to the connection.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}

func parseErrorResp(b []byte) (msg string, code uint32, ok bool) {
	var sawMsg bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", 0, false
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || !utf8.Valid(v) {
				return "", 0, false
			}
			msg, sawMsg = string(v), true
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return "", 0, false
			}
			code = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", 0, false
			}
			b = b[n:]
		}
	}
	return msg, code, sawMsg
}
