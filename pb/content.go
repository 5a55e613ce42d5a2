package pb

import "google.golang.org/protobuf/encoding/protowire"

// Content is one version of a stored value (RpbContent).
type Content struct {
	Value           []byte
	ContentType     []byte
	Charset         []byte
	ContentEncoding []byte
	Vtag            []byte
	Links           []*Link
	LastMod         *uint32
	LastModUsecs    *uint32
	Usermeta        []*Pair
}

func (m *Content) AppendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Value)
	b = appendOptionalBytes(b, 2, m.ContentType)
	b = appendOptionalBytes(b, 3, m.Charset)
	b = appendOptionalBytes(b, 4, m.ContentEncoding)
	b = appendOptionalBytes(b, 5, m.Vtag)
	for _, l := range m.Links {
		b = appendMessage(b, 6, l)
	}
	b = appendUint32(b, 7, m.LastMod)
	b = appendUint32(b, 8, m.LastModUsecs)
	for _, p := range m.Usermeta {
		b = appendMessage(b, 9, p)
	}
	return b
}

func (m *Content) Unmarshal(b []byte) error {
	return unmarshalFields("RpbContent", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Value)
		case 2:
			return consumeBytes(typ, b, &m.ContentType)
		case 3:
			return consumeBytes(typ, b, &m.Charset)
		case 4:
			return consumeBytes(typ, b, &m.ContentEncoding)
		case 5:
			return consumeBytes(typ, b, &m.Vtag)
		case 6:
			l := &Link{}
			n := consumeMessage(typ, b, l)
			if n > 0 {
				m.Links = append(m.Links, l)
			}
			return n
		case 7:
			return consumeUint32(typ, b, &m.LastMod)
		case 8:
			return consumeUint32(typ, b, &m.LastModUsecs)
		case 9:
			p := &Pair{}
			n := consumeMessage(typ, b, p)
			if n > 0 {
				m.Usermeta = append(m.Usermeta, p)
			}
			return n
		}
		return skip
	})
}

// Link points from one object to another (RpbLink).
type Link struct {
	Bucket []byte
	Key    []byte
	Tag    []byte
}

func (m *Link) AppendTo(b []byte) []byte {
	b = appendOptionalBytes(b, 1, m.Bucket)
	b = appendOptionalBytes(b, 2, m.Key)
	return appendOptionalBytes(b, 3, m.Tag)
}

func (m *Link) Unmarshal(b []byte) error {
	return unmarshalFields("RpbLink", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Bucket)
		case 2:
			return consumeBytes(typ, b, &m.Key)
		case 3:
			return consumeBytes(typ, b, &m.Tag)
		}
		return skip
	})
}

// Pair is a user metadata entry (RpbPair).
type Pair struct {
	Key   []byte
	Value []byte
}

func (m *Pair) AppendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Key)
	return appendOptionalBytes(b, 2, m.Value)
}

func (m *Pair) Unmarshal(b []byte) error {
	return unmarshalFields("RpbPair", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Key)
		case 2:
			return consumeBytes(typ, b, &m.Value)
		}
		return skip
	})
}

// BucketProps are the bucket properties (RpbBucketProps).
type BucketProps struct {
	NVal      *uint32
	AllowMult *bool
}

func (m *BucketProps) AppendTo(b []byte) []byte {
	b = appendUint32(b, 1, m.NVal)
	return appendBool(b, 2, m.AllowMult)
}

func (m *BucketProps) Unmarshal(b []byte) error {
	return unmarshalFields("RpbBucketProps", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeUint32(typ, b, &m.NVal)
		case 2:
			return consumeBool(typ, b, &m.AllowMult)
		}
		return skip
	})
}
