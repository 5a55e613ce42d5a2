package riakpb

import (
	"errors"
	"fmt"
)

var (
	// ErrClientClosed is returned by every operation after Close.
	ErrClientClosed = errors.New("riakpb: client closed")

	// ErrNoServers is returned when the server list is empty.
	ErrNoServers = errors.New("riakpb: no servers available")

	// ErrEmptyContent is returned by Key.Save when the key has no content to
	// store and none was given.
	ErrEmptyContent = errors.New("riakpb: key has no content to save")

	// ErrConnectionFailed is returned when a connection previously marked
	// failed is used again.
	ErrConnectionFailed = errors.New("riakpb: connection failed")
)

// ValidationError reports invalid input rejected before any network I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("riakpb: invalid %s: %s", e.Field, e.Message)
}

// ShouldCloseConnection returns false - nothing was sent
func (e *ValidationError) ShouldCloseConnection() bool {
	return false
}

// SiblingError reports an operation that needs a single content on a key
// holding several sibling versions. Resolve it by saving one chosen content,
// e.g. key.Save(ctx, SaveOptions{Content: key.Siblings()[0]}).
type SiblingError struct {
	Bucket   string
	Key      string
	Siblings int
}

func (e *SiblingError) Error() string {
	return fmt.Sprintf("riakpb: %s/%s has %d siblings, pick one content to resolve the conflict", e.Bucket, e.Key, e.Siblings)
}

// ShouldCloseConnection returns false - siblings are a data state, not a protocol fault
func (e *SiblingError) ShouldCloseConnection() bool {
	return false
}

// HandshakeError reports a failure to establish the client identity on a
// fresh connection.
type HandshakeError struct {
	Addr string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("riakpb: handshake with %s failed: %v", e.Addr, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the connection never became usable
func (e *HandshakeError) ShouldCloseConnection() bool {
	return true
}
