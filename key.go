package riakpb

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/riakpb/riakpb/pb"
	"go.uber.org/zap"
)

// KeyState tells how many versions a key holds.
type KeyState int

const (
	// NotFound: the key holds no content.
	NotFound KeyState = iota
	// Resolved: the key holds exactly one content.
	Resolved
	// Conflicted: the key holds several sibling contents.
	Conflicted
)

func (s KeyState) String() string {
	switch s {
	case NotFound:
		return "not-found"
	case Resolved:
		return "resolved"
	case Conflicted:
		return "conflicted"
	}
	return "unknown"
}

// GetOptions are the options of a fetch.
type GetOptions struct {
	// R is the read quorum. Zero uses Config.DefaultQuorum.R.
	R uint32

	// Cached returns the bucket's cached key without a request when it
	// already holds content.
	Cached bool
}

// SaveOptions are the options of a store.
type SaveOptions struct {
	// Content is stored instead of the key's current content. It is
	// required while the key holds siblings, and resolves them.
	Content *Content

	// W and DW are the write and durable-write quorums. Zero uses
	// Config.DefaultQuorum.
	W  uint32
	DW uint32
}

// DeleteOptions are the options of a delete.
type DeleteOptions struct {
	// RW is the delete quorum. Zero uses Config.DefaultQuorum.RW.
	RW uint32
}

// Key is a named object inside a bucket: its vector clock and its contents.
//
// Bucket.Key returns the same *Key for a name, so a Key is shared by every
// goroutine using that name. Its methods are safe for concurrent use; the
// *Content values it hands out are not, and callers that modify one while
// others read the key synchronize themselves.
type Key struct {
	bucket *Bucket
	name   string

	mu       sync.RWMutex
	vclock   []byte
	contents []*Content
}

func newKey(b *Bucket, name string) *Key {
	return &Key{bucket: b, name: name}
}

func (k *Key) Bucket() *Bucket { return k.bucket }

func (k *Key) Name() string { return k.name }

// VClock returns the opaque vector clock from the last load, nil when the
// key was never loaded.
func (k *Key) VClock() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return bytes.Clone(k.vclock)
}

func (k *Key) State() KeyState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	switch len(k.contents) {
	case 0:
		return NotFound
	case 1:
		return Resolved
	}
	return Conflicted
}

// Found reports whether the key holds at least one content.
func (k *Key) Found() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.contents) > 0
}

// Content returns the single content of a resolved key. It returns nil for
// a key that was not found and a *SiblingError for a conflicted key.
func (k *Key) Content() (*Content, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	switch len(k.contents) {
	case 0:
		return nil, nil
	case 1:
		return k.contents[0], nil
	}
	return nil, k.siblingError()
}

// Siblings returns every content in load order.
func (k *Key) Siblings() []*Content {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return slices.Clone(k.contents)
}

// Load replaces the key's contents with those of a GET response. Contents
// are unique by vtag; a repeated vtag keeps the first position and the
// last data. The vector clock is replaced when the response carries one.
func (k *Key) Load(resp *pb.GetResp) error {
	if resp == nil {
		return &ValidationError{Field: "response", Message: "must not be nil"}
	}
	return k.load(resp.Content, resp.Vclock)
}

func (k *Key) load(contents []*pb.Content, vclock []byte) error {
	loaded := make([]*Content, 0, len(contents))
	byVtag := make(map[string]int, len(contents))

	for _, m := range contents {
		c := &Content{}
		if err := c.load(m); err != nil {
			return err
		}
		if c.Vtag != "" {
			if i, ok := byVtag[c.Vtag]; ok {
				loaded[i] = c
				continue
			}
			byVtag[c.Vtag] = len(loaded)
		}
		loaded = append(loaded, c)
	}

	if len(loaded) > 1 && k.bucket.allowMultKnownFalse() {
		k.bucket.logger().Debug("siblings returned for a bucket without allow_mult",
			zap.String("bucket", k.bucket.name),
			zap.String("key", k.name),
			zap.Int("siblings", len(loaded)))
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.contents = loaded
	if vclock != nil {
		k.vclock = bytes.Clone(vclock)
	}
	return nil
}

// SetContent makes c the key's only content. It refuses with a
// *SiblingError while the key holds siblings; use ReplaceContent or
// Save with SaveOptions.Content to resolve them.
func (k *Key) SetContent(c *Content) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.contents) > 1 {
		return k.siblingError()
	}
	k.contents = []*Content{c}
	return nil
}

// ReplaceContent makes c the key's only content, discarding siblings.
func (k *Key) ReplaceContent(c *Content) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.contents) > 1 {
		k.bucket.logger().Warn("discarding siblings",
			zap.String("bucket", k.bucket.name),
			zap.String("key", k.name),
			zap.Int("siblings", len(k.contents)))
	}
	k.contents = []*Content{c}
}

// Save stores the key and reloads it from the server's reply.
//
// Without SaveOptions.Content the key's single content is stored: a key with
// no content returns ErrEmptyContent and a conflicted key a *SiblingError.
// The key's vector clock is sent so the write descends from the last load.
// After Save the key may still be Conflicted if another client wrote
// concurrently.
func (k *Key) Save(ctx context.Context, opts SaveOptions) error {
	k.mu.RLock()
	content := opts.Content
	if content == nil {
		switch len(k.contents) {
		case 0:
			k.mu.RUnlock()
			return ErrEmptyContent
		case 1:
			content = k.contents[0]
		default:
			err := k.siblingError()
			k.mu.RUnlock()
			return err
		}
	}
	vclock := k.vclock
	k.mu.RUnlock()

	m, err := content.toPB()
	if err != nil {
		return err
	}

	resp, err := k.bucket.client.put(ctx, &pb.PutReq{
		Bucket:     []byte(k.bucket.name),
		Key:        []byte(k.name),
		Vclock:     vclock,
		Content:    m,
		W:          quorumValue(opts.W, k.bucket.client.config.DefaultQuorum.W),
		DW:         quorumValue(opts.DW, k.bucket.client.config.DefaultQuorum.DW),
		ReturnBody: pb.Bool(true),
	})
	if err != nil {
		return err
	}

	if len(resp.Contents) == 0 {
		k.mu.Lock()
		defer k.mu.Unlock()
		k.contents = []*Content{content}
		if resp.Vclock != nil {
			k.vclock = bytes.Clone(resp.Vclock)
		}
		return nil
	}
	return k.load(resp.Contents, resp.Vclock)
}

// Reload fetches the key again.
func (k *Key) Reload(ctx context.Context, opts GetOptions) error {
	resp, err := k.bucket.client.get(ctx, k.bucket.name, k.name, opts.R)
	if err != nil {
		return err
	}
	return k.Load(resp)
}

// Delete removes the key from its bucket.
func (k *Key) Delete(ctx context.Context, opts DeleteOptions) error {
	return k.bucket.Delete(ctx, k.name, opts)
}

// Link returns a link to this key, labeled with tag.
func (k *Key) Link(tag string) Link {
	return Link{Bucket: k.bucket.name, Key: k.name, Tag: tag}
}

// Linked fetches every key the resolved content links to with tag. An empty
// tag follows every link.
func (k *Key) Linked(ctx context.Context, tag string, opts GetOptions) ([]*Key, error) {
	c, err := k.Content()
	if err != nil || c == nil {
		return nil, err
	}

	links := c.links
	if tag != "" {
		links = c.LinksTagged(tag)
	}

	keys := make([]*Key, 0, len(links))
	for _, l := range links {
		linked, err := k.bucket.GetLinked(ctx, l, opts)
		if err != nil {
			return keys, err
		}
		keys = append(keys, linked)
	}
	return keys, nil
}

// siblingError must be called with k.mu held.
func (k *Key) siblingError() *SiblingError {
	return &SiblingError{Bucket: k.bucket.name, Key: k.name, Siblings: len(k.contents)}
}
