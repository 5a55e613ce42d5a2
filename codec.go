package riakpb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	ContentTypeJSON        = "application/json"
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeText        = "text/plain"
)

// mediaType strips parameters ("; charset=...") and normalizes case.
func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsJSONContentType reports whether values of this type are structured
// JSON: application/json, text/json and any "+json" suffix type.
func IsJSONContentType(contentType string) bool {
	switch mt := mediaType(contentType); {
	case mt == ContentTypeJSON, mt == "text/json":
		return true
	default:
		return strings.HasSuffix(mt, "+json")
	}
}

// IsBinaryContentType reports whether values of this type are opaque binary.
func IsBinaryContentType(contentType string) bool {
	return mediaType(contentType) == ContentTypeOctetStream
}

// encodeValue turns a Go value into stored bytes for contentType.
//
//   - JSON types: json.RawMessage and []byte are taken as an encoded
//     document and must be valid JSON; anything else is json.Marshal-ed.
//   - application/octet-stream: []byte passes through; anything else is
//     CBOR-encoded.
//   - other types: string and []byte are stored verbatim.
func encodeValue(contentType string, v any) ([]byte, error) {
	if v == nil {
		return []byte{}, nil
	}

	switch {
	case IsJSONContentType(contentType):
		switch raw := v.(type) {
		case json.RawMessage:
			return validJSON(raw)
		case []byte:
			return validJSON(raw)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, &ValidationError{Field: "value", Message: err.Error()}
		}
		return b, nil

	case IsBinaryContentType(contentType):
		if raw, ok := v.([]byte); ok {
			return raw, nil
		}
		b, err := cbor.Marshal(v)
		if err != nil {
			return nil, &ValidationError{Field: "value", Message: err.Error()}
		}
		return b, nil

	default:
		switch raw := v.(type) {
		case []byte:
			return raw, nil
		case string:
			return []byte(raw), nil
		case fmt.Stringer:
			return []byte(raw.String()), nil
		}
		return nil, &ValidationError{
			Field:   "value",
			Message: fmt.Sprintf("%T cannot be stored as %q, use []byte or string", v, contentType),
		}
	}
}

func validJSON(raw []byte) ([]byte, error) {
	if !json.Valid(raw) {
		return nil, &ValidationError{Field: "value", Message: "not a valid JSON document"}
	}
	return raw, nil
}

// decodeValue turns stored bytes into the Go value exposed by Content.Value.
// JSON documents decode into any (maps, slices, json.Number, string, bool);
// numbers keep their literal so integers beyond 2^53 survive a save.
// Every other type yields a copy of the bytes.
func decodeValue(contentType string, raw []byte) (any, error) {
	if IsJSONContentType(contentType) {
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("decode %s value: not a valid JSON document", contentType)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s value: %w", contentType, err)
		}
		return v, nil
	}
	return bytes.Clone(raw), nil
}

// unmarshalValue decodes stored bytes into dst. An empty JSON body leaves
// dst untouched.
func unmarshalValue(contentType string, raw []byte, dst any) error {
	switch {
	case IsJSONContentType(contentType):
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		return json.Unmarshal(raw, dst)
	case IsBinaryContentType(contentType):
		if p, ok := dst.(*[]byte); ok {
			*p = bytes.Clone(raw)
			return nil
		}
		return cbor.Unmarshal(raw, dst)
	}

	switch p := dst.(type) {
	case *[]byte:
		*p = bytes.Clone(raw)
	case *string:
		*p = string(raw)
	default:
		return &ValidationError{
			Field:   "destination",
			Message: fmt.Sprintf("%q values decode into *[]byte or *string, not %T", contentType, dst),
		}
	}
	return nil
}
