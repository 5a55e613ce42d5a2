package wire

import "google.golang.org/protobuf/encoding/protowire"

// Done reports whether a response frame of a streaming exchange carries the
// completion marker. Single-frame exchanges are always done.
//
// Only the marker field is inspected; the rest of the payload is skipped.
// When the field repeats, the last occurrence wins.
func (e Entry) Done(payload []byte) (bool, error) {
	if !e.Streaming() {
		return true, nil
	}

	done := false
	b := payload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return false, &DecodeError{Message: e.Name + " response", Err: protowire.ParseError(n)}
		}
		b = b[n:]

		if int32(num) == e.DoneField && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return false, &DecodeError{Message: e.Name + " response", Err: protowire.ParseError(n)}
			}
			done = protowire.DecodeBool(v)
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return false, &DecodeError{Message: e.Name + " response", Err: protowire.ParseError(n)}
		}
		b = b[n:]
	}
	return done, nil
}
