package wire

import (
	"encoding/binary"
	"io"
	"strconv"
)

const (
	// HeaderLength is the size of the big-endian length prefix.
	HeaderLength = 4

	// MaxFrameLength bounds the length prefix (code byte plus payload).
	// A prefix above this value can never be satisfied and is a DecodeError.
	MaxFrameLength = 1 << 30
)

// Frame is one length-prefixed, code-tagged protocol unit.
type Frame struct {
	Code    Code
	Payload []byte
}

// Len returns the encoded size of the frame including the length prefix.
func (f Frame) Len() int {
	return HeaderLength + 1 + len(f.Payload)
}

// Encode builds the wire representation of one frame:
//
//	[4 bytes length, big-endian][1 byte code][length-1 bytes payload]
func Encode(code Code, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, HeaderLength+1+len(payload)), code, payload)
}

// AppendFrame appends the wire representation of one frame to dst.
func AppendFrame(dst []byte, code Code, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(1+len(payload)))
	dst = append(dst, byte(code))
	return append(dst, payload...)
}

// WriteFrame encodes a frame and writes it to w in a single call.
func WriteFrame(w io.Writer, code Code, payload []byte) error {
	_, err := w.Write(Encode(code, payload))
	return err
}

// SplitFrame extracts the first complete frame from buf.
//
// When buf holds less than a full frame, ok is false and rest is buf itself:
// the caller must append more bytes and try again. The returned payload
// aliases buf.
//
// A length prefix of zero (no room for the code byte) or above
// MaxFrameLength returns a DecodeError.
func SplitFrame(buf []byte) (f Frame, rest []byte, ok bool, err error) {
	if len(buf) < HeaderLength {
		return Frame{}, buf, false, nil
	}

	length := binary.BigEndian.Uint32(buf)
	if length == 0 {
		return Frame{}, buf, false, &DecodeError{Message: "frame length is zero", Length: length}
	}
	if length > MaxFrameLength {
		return Frame{}, buf, false, &DecodeError{
			Message: "frame length exceeds maximum of " + strconv.Itoa(MaxFrameLength),
			Length:  length,
		}
	}

	end := HeaderLength + int(length)
	if len(buf) < end {
		return Frame{}, buf, false, nil
	}

	f = Frame{
		Code:    Code(buf[HeaderLength]),
		Payload: buf[HeaderLength+1 : end],
	}
	return f, buf[end:], true, nil
}

// Decode consumes every complete frame in buf.
//
// It returns the concatenated payloads, the codes in the order seen, and
// the undecoded remainder (a partial frame, to be prefixed onto the next
// socket read). Feeding a frame split across reads as leftover+next yields
// the same result as decoding the whole buffer at once.
func Decode(buf []byte) (payload []byte, codes []Code, leftover []byte, err error) {
	for len(buf) > 0 {
		f, rest, ok, err := SplitFrame(buf)
		if err != nil {
			return payload, codes, buf, err
		}
		if !ok {
			break
		}
		codes = append(codes, f.Code)
		payload = append(payload, f.Payload...)
		buf = rest
	}
	return payload, codes, buf, nil
}
