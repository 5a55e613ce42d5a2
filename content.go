package riakpb

import (
	"bytes"
	"slices"
	"sort"
	"time"

	"github.com/riakpb/riakpb/pb"
)

// Link points to another object, optionally labeled with a tag.
type Link struct {
	Bucket string
	Key    string
	Tag    string
}

// Content is one version of a key's value together with its metadata.
// A key holds one Content, or several siblings after concurrent writes.
type Content struct {
	// Value is the decoded value. JSON content types hold the decoded
	// document with numbers as json.Number, every other type holds the
	// stored bytes. See Unmarshal.
	Value any

	// ContentType is required to save.
	ContentType string

	Charset string

	// ContentEncoding names a compression applied to the stored bytes.
	// gzip, deflate, zstd and lz4 are applied on save and removed on load.
	ContentEncoding string

	// Vtag identifies this version among siblings. Set by the server.
	Vtag string

	// LastModified is set by the server.
	LastModified time.Time

	// UserMeta is arbitrary metadata stored with the value.
	UserMeta map[string]string

	links []Link
}

// NewContent returns a content holding value.
func NewContent(contentType string, value any) *Content {
	return &Content{ContentType: contentType, Value: value}
}

// Links returns the content's links in insertion order.
func (c *Content) Links() []Link {
	return slices.Clone(c.links)
}

// AddLink adds l unless an identical link is present. It reports whether
// the link was added.
func (c *Content) AddLink(l Link) bool {
	if c.HasLink(l) {
		return false
	}
	c.links = append(c.links, l)
	return true
}

// RemoveLink removes l and reports whether it was present.
func (c *Content) RemoveLink(l Link) bool {
	i := slices.Index(c.links, l)
	if i < 0 {
		return false
	}
	c.links = slices.Delete(c.links, i, i+1)
	return true
}

func (c *Content) HasLink(l Link) bool {
	return slices.Contains(c.links, l)
}

// LinksTagged returns the links carrying tag.
func (c *Content) LinksTagged(tag string) []Link {
	var out []Link
	for _, l := range c.links {
		if l.Tag == tag {
			out = append(out, l)
		}
	}
	return out
}

// Bytes returns the stored representation of Value, before content
// encoding is applied.
func (c *Content) Bytes() ([]byte, error) {
	return encodeValue(c.ContentType, c.Value)
}

// Unmarshal decodes the stored value into dst: JSON for JSON content types,
// CBOR (or raw bytes into *[]byte) for application/octet-stream, and
// *[]byte or *string for everything else. It reads the current Value, so
// edits made since the load are seen. A JSON content without a body leaves
// dst unchanged.
func (c *Content) Unmarshal(dst any) error {
	raw, err := c.Bytes()
	if err != nil {
		return err
	}
	return unmarshalValue(c.ContentType, raw, dst)
}

// Clone returns a deep copy suitable for saving under another key.
func (c *Content) Clone() *Content {
	out := *c
	out.links = slices.Clone(c.links)
	if c.UserMeta != nil {
		out.UserMeta = make(map[string]string, len(c.UserMeta))
		for k, v := range c.UserMeta {
			out.UserMeta[k] = v
		}
	}
	return &out
}

func (c *Content) load(m *pb.Content) error {
	encoding := string(m.ContentEncoding)
	raw, err := decodeBody(encoding, m.Value)
	if err != nil {
		return err
	}

	contentType := string(m.ContentType)
	var value any
	if knownEncoding(encoding) {
		value, err = decodeValue(contentType, raw)
		if err != nil {
			return err
		}
	} else {
		value = bytes.Clone(raw)
	}

	*c = Content{
		Value:           value,
		ContentType:     contentType,
		Charset:         string(m.Charset),
		ContentEncoding: encoding,
		Vtag:            string(m.Vtag),
	}

	if m.LastMod != nil {
		var usecs int64
		if m.LastModUsecs != nil {
			usecs = int64(*m.LastModUsecs)
		}
		c.LastModified = time.Unix(int64(*m.LastMod), usecs*int64(time.Microsecond))
	}

	for _, l := range m.Links {
		c.AddLink(Link{Bucket: string(l.Bucket), Key: string(l.Key), Tag: string(l.Tag)})
	}

	if len(m.Usermeta) > 0 {
		c.UserMeta = make(map[string]string, len(m.Usermeta))
		for _, p := range m.Usermeta {
			c.UserMeta[string(p.Key)] = string(p.Value)
		}
	}
	return nil
}

func (c *Content) toPB() (*pb.Content, error) {
	if c.ContentType == "" {
		return nil, &ValidationError{Field: "content type", Message: "required to save a content"}
	}

	var body []byte
	if knownEncoding(c.ContentEncoding) {
		raw, err := c.Bytes()
		if err != nil {
			return nil, err
		}
		body, err = encodeBody(c.ContentEncoding, raw)
		if err != nil {
			return nil, err
		}
	} else {
		raw, ok := c.Value.([]byte)
		if !ok {
			return nil, &ValidationError{
				Field:   "value",
				Message: "content encoding " + c.ContentEncoding + " is not supported, store it pre-encoded as []byte",
			}
		}
		body = raw
	}

	m := &pb.Content{
		Value:       body,
		ContentType: []byte(c.ContentType),
	}
	if c.Charset != "" {
		m.Charset = []byte(c.Charset)
	}
	if c.ContentEncoding != "" {
		m.ContentEncoding = []byte(c.ContentEncoding)
	}
	for _, l := range c.links {
		m.Links = append(m.Links, &pb.Link{Bucket: []byte(l.Bucket), Key: []byte(l.Key), Tag: []byte(l.Tag)})
	}

	keys := make([]string, 0, len(c.UserMeta))
	for k := range c.UserMeta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Usermeta = append(m.Usermeta, &pb.Pair{Key: []byte(k), Value: []byte(c.UserMeta[k])})
	}
	return m, nil
}
