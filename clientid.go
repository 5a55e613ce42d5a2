package riakpb

import (
	"encoding/base64"
	"encoding/binary"
	"strconv"
)

// MaxClientID is the exclusive upper bound of integer client identifiers.
const MaxClientID = 1 << 32

// ClientIDFromInt converts an integer identifier into the wire form used by
// the server: its 4-byte big-endian representation, base64 encoded.
//
//	ClientIDFromInt(1) // "AAAAAQ=="
func ClientIDFromInt(id uint64) (string, error) {
	if id >= MaxClientID {
		return "", &ValidationError{Field: "client id", Message: strconv.FormatUint(id, 10) + " is not below 2^32"}
	}
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], uint32(id))
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}
