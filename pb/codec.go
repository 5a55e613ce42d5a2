// Package pb holds the Riak protocol buffers messages exchanged inside wire
// frames.
//
// Messages are encoded by hand with protowire rather than generated code.
// Optional scalars are pointers: a nil field is omitted on the wire, which
// is how a request leaves the read or write quorum to the server default.
//
// Unmarshal merges into the receiver the way protobuf does: repeated fields
// append and scalars overwrite. Concatenated frames of a streaming response
// therefore decode as one message.
package pb

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every message type of this package.
type Message interface {
	AppendTo(b []byte) []byte
	Unmarshal(b []byte) error
}

// Marshal encodes m. A nil message encodes as an empty payload.
func Marshal(m Message) []byte {
	if m == nil {
		return nil
	}
	return m.AppendTo(nil)
}

// Uint32 returns a pointer to v, for optional fields.
func Uint32(v uint32) *uint32 { return &v }

// Bool returns a pointer to v, for optional fields.
func Bool(v bool) *bool { return &v }

// ParseError reports a malformed message payload.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return "pb: cannot parse " + e.Message + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// skip is returned by a field callback that does not handle the field.
// No field value encodes in zero bytes, so it never collides with a length.
const skip = 0

// unmarshalFields walks every field of b. field returns the number of bytes
// it consumed, skip to let the walker skip an unknown field, or a negative
// protowire error code.
func unmarshalFields(name string, b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &ParseError{Message: name, Err: protowire.ParseError(n)}
		}
		b = b[n:]

		n = field(num, typ, b)
		if n == skip {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return &ParseError{Message: name, Err: protowire.ParseError(n)}
		}
		b = b[n:]
	}
	return nil
}

// errNested flags a nested message that failed to parse. It is outside the
// range of protowire error codes, so ParseError reports a generic parse error.
const errNested = -100

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return skip
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	*dst = append([]byte{}, v...)
	return n
}

func consumeRepeatedBytes(typ protowire.Type, b []byte, dst *[][]byte) int {
	var v []byte
	n := consumeBytes(typ, b, &v)
	if n > 0 {
		*dst = append(*dst, v)
	}
	return n
}

func consumeUint32(typ protowire.Type, b []byte, dst **uint32) int {
	if typ != protowire.VarintType {
		return skip
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return n
	}
	u := uint32(v)
	*dst = &u
	return n
}

func consumeBool(typ protowire.Type, b []byte, dst **bool) int {
	if typ != protowire.VarintType {
		return skip
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return n
	}
	x := protowire.DecodeBool(v)
	*dst = &x
	return n
}

func consumeMessage(typ protowire.Type, b []byte, m Message) int {
	var raw []byte
	n := consumeBytes(typ, b, &raw)
	if n <= 0 {
		return n
	}
	if err := m.Unmarshal(raw); err != nil {
		return errNested
	}
	return n
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendOptionalBytes(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	return appendBytes(b, num, v)
}

func appendUint32(b []byte, num protowire.Number, v *uint32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*v))
}

func appendBool(b []byte, num protowire.Number, v *bool) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(*v))
}

func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.AppendTo(nil))
}
