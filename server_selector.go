package riakpb

import (
	"github.com/riakpb/riakpb/internal"
	"github.com/zeebo/xxh3"
)

// ServerSelector picks which server handles a routing key.
// It returns an index into the server list. Object operations route on
// "bucket/key", bucket operations on the bucket name, node operations
// (ping, server info, list buckets, map-reduce) on the empty key.
type ServerSelector func(key string, serverCount int) int

// DefaultServerSelector uses Jump Hash over xxh3 for consistent selection.
func DefaultServerSelector(key string, serverCount int) int {
	return internal.JumpHash(xxh3.HashString(key), serverCount)
}

// staticSelector is used in tests to always select a specific server.
func staticSelector(index int) ServerSelector {
	return func(key string, serverCount int) int {
		return index % serverCount
	}
}

func objectRoutingKey(bucket, key string) string {
	return bucket + "/" + key
}
