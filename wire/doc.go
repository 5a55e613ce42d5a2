// Package wire implements the framing layer of the Riak protocol buffers
// interface.
//
// Every message travels in a frame:
//
//	[4 bytes length, big-endian][1 byte code][length-1 bytes payload]
//
// The length counts the code byte plus the payload, so an empty payload has
// length 1. Payloads are protocol buffers messages (see package pb); the
// code alone identifies which message type follows.
//
// The catalog pairs each request code with the single response code the
// server may answer with. Any frame may instead be an error frame (code 0).
// Three operations stream their response over several frames and finish
// with a frame whose done field is set:
//
//	LIST_BUCKETS  done = field 2
//	LIST_KEYS     done = field 2
//	MAP_REDUCE    done = field 3
//
// Decoding is incremental: Decode and SplitFrame never consume a partial
// frame, they return it as leftover to be prefixed onto the next read.
//
// Every error type implements ErrorWithConnectionState so callers can tell a
// refused request (connection still usable) from a broken stream.
package wire
