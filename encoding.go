package riakpb

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Content encodings understood by Content. Any other value is stored and
// returned as is, without decoding.
const (
	EncodingIdentity = ""
	EncodingGzip     = "gzip"
	EncodingDeflate  = "deflate"
	EncodingZstd     = "zstd"
	EncodingLZ4      = "lz4"
)

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

func normalizeEncoding(encoding string) string {
	return strings.ToLower(strings.TrimSpace(encoding))
}

// knownEncoding reports whether encoding is applied and removed by the client.
func knownEncoding(encoding string) bool {
	switch normalizeEncoding(encoding) {
	case EncodingIdentity, "identity", EncodingGzip, EncodingDeflate, EncodingZstd, EncodingLZ4:
		return true
	}
	return false
}

// encodeBody compresses b with encoding. Unknown encodings return b.
func encodeBody(encoding string, b []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser

	switch normalizeEncoding(encoding) {
	case EncodingGzip:
		w = gzip.NewWriter(&buf)
	case EncodingDeflate:
		w = zlib.NewWriter(&buf)
	case EncodingLZ4:
		w = lz4.NewWriter(&buf)
	case EncodingZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(b, nil), nil
	default:
		return b, nil
	}

	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("encode %s body: %w", encoding, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encode %s body: %w", encoding, err)
	}
	return buf.Bytes(), nil
}

// decodeBody decompresses b. Unknown encodings return b.
func decodeBody(encoding string, b []byte) ([]byte, error) {
	var r io.Reader

	switch normalizeEncoding(encoding) {
	case EncodingGzip:
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("decode gzip body: %w", err)
		}
		defer zr.Close()
		r = zr
	case EncodingDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("decode deflate body: %w", err)
		}
		defer zr.Close()
		r = zr
	case EncodingLZ4:
		r = lz4.NewReader(bytes.NewReader(b))
	case EncodingZstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, err
		}
		out, err := dec.DecodeAll(b, nil)
		if err != nil {
			return nil, fmt.Errorf("decode zstd body: %w", err)
		}
		return out, nil
	default:
		return b, nil
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	return out, nil
}
