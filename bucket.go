package riakpb

import (
	"context"
	"errors"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/riakpb/riakpb/pb"
	"go.uber.org/zap"
)

// BucketProps are the bucket properties. A nil field is unknown on read
// and left unchanged on write.
type BucketProps struct {
	NVal      *uint32
	AllowMult *bool
}

func (p BucketProps) toPB() *pb.BucketProps {
	return &pb.BucketProps{NVal: p.NVal, AllowMult: p.AllowMult}
}

// Bucket is a namespace of keys with its replication properties.
//
// Keys are created on first use and memoized by name: Key returns the same
// *Key for the same name until the key is deleted through the bucket.
type Bucket struct {
	client *Client
	name   string

	mu    sync.RWMutex
	props BucketProps

	keys *xsync.MapOf[string, *Key]
}

func newBucket(c *Client, name string) *Bucket {
	return &Bucket{
		client: c,
		name:   name,
		keys:   xsync.NewMapOf[string, *Key](),
	}
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) Client() *Client { return b.client }

// Props returns the properties from the last load.
func (b *Bucket) Props() BucketProps {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BucketProps{NVal: copyPtr(b.props.NVal), AllowMult: copyPtr(b.props.AllowMult)}
}

// NVal returns the replica count and whether it is known.
func (b *Bucket) NVal() (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.props.NVal == nil {
		return 0, false
	}
	return *b.props.NVal, true
}

// AllowMult returns whether siblings are kept and whether it is known.
func (b *Bucket) AllowMult() (bool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.props.AllowMult == nil {
		return false, false
	}
	return *b.props.AllowMult, true
}

func (b *Bucket) allowMultKnownFalse() bool {
	v, ok := b.AllowMult()
	return ok && !v
}

// Load applies a GET_BUCKET response. Fields missing from the response keep
// their current value, so loading the same response twice is a no-op.
func (b *Bucket) Load(resp *pb.GetBucketResp) error {
	if resp == nil || resp.Props == nil {
		return &ValidationError{Field: "response", Message: "bucket response carries no props"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if resp.Props.NVal != nil {
		b.props.NVal = copyPtr(resp.Props.NVal)
	}
	if resp.Props.AllowMult != nil {
		b.props.AllowMult = copyPtr(resp.Props.AllowMult)
	}
	return nil
}

// Reload fetches the bucket properties.
func (b *Bucket) Reload(ctx context.Context) error {
	resp, err := b.client.getBucket(ctx, b.name)
	if err != nil {
		return err
	}
	return b.Load(resp)
}

// SetProps writes the non-nil properties, then reloads them from the server.
func (b *Bucket) SetProps(ctx context.Context, props BucketProps) error {
	if props.NVal == nil && props.AllowMult == nil {
		return &ValidationError{Field: "bucket props", Message: "nothing to set"}
	}
	if props.NVal != nil && *props.NVal == 0 {
		return &ValidationError{Field: "n_val", Message: "must be greater than zero"}
	}
	if err := b.client.setBucket(ctx, b.name, props.toPB()); err != nil {
		return err
	}
	return b.Reload(ctx)
}

// SetNVal sets the number of replicas. Changing it once the bucket holds
// objects may have unpredictable results.
func (b *Bucket) SetNVal(ctx context.Context, n uint32) error {
	return b.SetProps(ctx, BucketProps{NVal: &n})
}

// SetAllowMult sets whether concurrent writes are kept as siblings.
func (b *Bucket) SetAllowMult(ctx context.Context, allow bool) error {
	return b.SetProps(ctx, BucketProps{AllowMult: &allow})
}

// Key returns the memoized key for name without any request.
func (b *Bucket) Key(name string) (*Key, error) {
	if err := validateKeyName(name); err != nil {
		return nil, err
	}
	k, _ := b.keys.LoadOrCompute(name, func() *Key {
		return newKey(b, name)
	})
	return k, nil
}

// Get fetches a key. A missing key is not an error: the returned key's
// State is NotFound.
func (b *Bucket) Get(ctx context.Context, name string, opts GetOptions) (*Key, error) {
	k, err := b.Key(name)
	if err != nil {
		return nil, err
	}
	if opts.Cached && k.Found() {
		return k, nil
	}
	if err := k.Reload(ctx, opts); err != nil {
		return nil, err
	}
	return k, nil
}

// GetLinked fetches the target of a link.
func (b *Bucket) GetLinked(ctx context.Context, l Link, opts GetOptions) (*Key, error) {
	target, err := b.client.Bucket(l.Bucket)
	if err != nil {
		return nil, err
	}
	return target.Get(ctx, l.Key, opts)
}

// Put stores content under name, superseding what the last load of that
// key returned.
func (b *Bucket) Put(ctx context.Context, name string, content *Content, opts SaveOptions) (*Key, error) {
	if content == nil {
		return nil, &ValidationError{Field: "content", Message: "must not be nil"}
	}
	k, err := b.Key(name)
	if err != nil {
		return nil, err
	}
	opts.Content = content
	if err := k.Save(ctx, opts); err != nil {
		return nil, err
	}
	return k, nil
}

// Delete removes a key and drops it from the key cache.
func (b *Bucket) Delete(ctx context.Context, name string, opts DeleteOptions) error {
	if err := validateKeyName(name); err != nil {
		return err
	}
	if err := b.client.del(ctx, b.name, name, opts.RW); err != nil {
		return err
	}
	b.keys.Delete(name)
	return nil
}

// Keys lists the bucket's keys. The server walks every key of the cluster
// to answer, and the whole list is held in memory.
func (b *Bucket) Keys(ctx context.Context) ([]string, error) {
	return b.client.ListKeys(ctx, b.name)
}

// CachedKeys returns the names of the keys memoized by this bucket.
func (b *Bucket) CachedKeys() []string {
	names := make([]string, 0, b.keys.Size())
	b.keys.Range(func(name string, _ *Key) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Destroy deletes every key listed in the bucket. It keeps going after a
// failed delete and returns the joined errors.
func (b *Bucket) Destroy(ctx context.Context, opts DeleteOptions) error {
	names, err := b.Keys(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := b.Delete(ctx, name, opts); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		b.logger().Warn("bucket destroy incomplete",
			zap.String("bucket", b.name),
			zap.Int("keys", len(names)),
			zap.Int("failed", len(errs)))
	}
	return errors.Join(errs...)
}

func (b *Bucket) logger() *zap.Logger {
	return b.client.logger
}

func validateBucketName(name string) error {
	if name == "" {
		return &ValidationError{Field: "bucket name", Message: "must not be empty"}
	}
	return nil
}

func validateKeyName(name string) error {
	if name == "" {
		return &ValidationError{Field: "key name", Message: "must not be empty"}
	}
	return nil
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
