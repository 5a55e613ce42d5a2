package pb

import "google.golang.org/protobuf/encoding/protowire"

// ErrorResp is the payload of an error frame.
type ErrorResp struct {
	Errmsg  []byte
	Errcode *uint32
}

func (m *ErrorResp) AppendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Errmsg)
	return appendUint32(b, 2, m.Errcode)
}

func (m *ErrorResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbErrorResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Errmsg)
		case 2:
			return consumeUint32(typ, b, &m.Errcode)
		}
		return skip
	})
}

type GetClientIDResp struct {
	ClientID []byte
}

func (m *GetClientIDResp) AppendTo(b []byte) []byte {
	return appendBytes(b, 1, m.ClientID)
}

func (m *GetClientIDResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbGetClientIdResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeBytes(typ, b, &m.ClientID)
		}
		return skip
	})
}

type SetClientIDReq struct {
	ClientID []byte
}

func (m *SetClientIDReq) AppendTo(b []byte) []byte {
	return appendBytes(b, 1, m.ClientID)
}

func (m *SetClientIDReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbSetClientIdReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeBytes(typ, b, &m.ClientID)
		}
		return skip
	})
}

type GetServerInfoResp struct {
	Node          []byte
	ServerVersion []byte
}

func (m *GetServerInfoResp) AppendTo(b []byte) []byte {
	b = appendOptionalBytes(b, 1, m.Node)
	return appendOptionalBytes(b, 2, m.ServerVersion)
}

func (m *GetServerInfoResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbGetServerInfoResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Node)
		case 2:
			return consumeBytes(typ, b, &m.ServerVersion)
		}
		return skip
	})
}

type GetReq struct {
	Bucket []byte
	Key    []byte
	R      *uint32
}

func (m *GetReq) AppendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Bucket)
	b = appendBytes(b, 2, m.Key)
	return appendUint32(b, 3, m.R)
}

func (m *GetReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbGetReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Bucket)
		case 2:
			return consumeBytes(typ, b, &m.Key)
		case 3:
			return consumeUint32(typ, b, &m.R)
		}
		return skip
	})
}

// GetResp has no content when the key was not found.
type GetResp struct {
	Content []*Content
	Vclock  []byte
}

func (m *GetResp) AppendTo(b []byte) []byte {
	for _, c := range m.Content {
		b = appendMessage(b, 1, c)
	}
	return appendOptionalBytes(b, 2, m.Vclock)
}

func (m *GetResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbGetResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeContent(typ, b, &m.Content)
		case 2:
			return consumeBytes(typ, b, &m.Vclock)
		}
		return skip
	})
}

type PutReq struct {
	Bucket     []byte
	Key        []byte
	Vclock     []byte
	Content    *Content
	W          *uint32
	DW         *uint32
	ReturnBody *bool
}

func (m *PutReq) AppendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Bucket)
	b = appendBytes(b, 2, m.Key)
	b = appendOptionalBytes(b, 3, m.Vclock)
	if m.Content != nil {
		b = appendMessage(b, 4, m.Content)
	}
	b = appendUint32(b, 5, m.W)
	b = appendUint32(b, 6, m.DW)
	return appendBool(b, 7, m.ReturnBody)
}

func (m *PutReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbPutReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Bucket)
		case 2:
			return consumeBytes(typ, b, &m.Key)
		case 3:
			return consumeBytes(typ, b, &m.Vclock)
		case 4:
			if m.Content == nil {
				m.Content = &Content{}
			}
			return consumeMessage(typ, b, m.Content)
		case 5:
			return consumeUint32(typ, b, &m.W)
		case 6:
			return consumeUint32(typ, b, &m.DW)
		case 7:
			return consumeBool(typ, b, &m.ReturnBody)
		}
		return skip
	})
}

type PutResp struct {
	Contents []*Content
	Vclock   []byte
}

func (m *PutResp) AppendTo(b []byte) []byte {
	for _, c := range m.Contents {
		b = appendMessage(b, 1, c)
	}
	return appendOptionalBytes(b, 2, m.Vclock)
}

func (m *PutResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbPutResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeContent(typ, b, &m.Contents)
		case 2:
			return consumeBytes(typ, b, &m.Vclock)
		}
		return skip
	})
}

type DelReq struct {
	Bucket []byte
	Key    []byte
	RW     *uint32
}

func (m *DelReq) AppendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Bucket)
	b = appendBytes(b, 2, m.Key)
	return appendUint32(b, 3, m.RW)
}

func (m *DelReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbDelReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Bucket)
		case 2:
			return consumeBytes(typ, b, &m.Key)
		case 3:
			return consumeUint32(typ, b, &m.RW)
		}
		return skip
	})
}

// ListBucketsReq asks for the bucket list to be streamed in pages when
// Stream is set.
type ListBucketsReq struct {
	Timeout *uint32
	Stream  *bool
}

func (m *ListBucketsReq) AppendTo(b []byte) []byte {
	b = appendUint32(b, 1, m.Timeout)
	return appendBool(b, 2, m.Stream)
}

func (m *ListBucketsReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbListBucketsReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeUint32(typ, b, &m.Timeout)
		case 2:
			return consumeBool(typ, b, &m.Stream)
		}
		return skip
	})
}

type ListBucketsResp struct {
	Buckets [][]byte
	Done    *bool
}

func (m *ListBucketsResp) AppendTo(b []byte) []byte {
	for _, bucket := range m.Buckets {
		b = appendBytes(b, 1, bucket)
	}
	return appendBool(b, 2, m.Done)
}

func (m *ListBucketsResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbListBucketsResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeRepeatedBytes(typ, b, &m.Buckets)
		case 2:
			return consumeBool(typ, b, &m.Done)
		}
		return skip
	})
}

type ListKeysReq struct {
	Bucket []byte
}

func (m *ListKeysReq) AppendTo(b []byte) []byte {
	return appendBytes(b, 1, m.Bucket)
}

func (m *ListKeysReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbListKeysReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeBytes(typ, b, &m.Bucket)
		}
		return skip
	})
}

type ListKeysResp struct {
	Keys [][]byte
	Done *bool
}

func (m *ListKeysResp) AppendTo(b []byte) []byte {
	for _, k := range m.Keys {
		b = appendBytes(b, 1, k)
	}
	return appendBool(b, 2, m.Done)
}

func (m *ListKeysResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbListKeysResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeRepeatedBytes(typ, b, &m.Keys)
		case 2:
			return consumeBool(typ, b, &m.Done)
		}
		return skip
	})
}

type GetBucketReq struct {
	Bucket []byte
}

func (m *GetBucketReq) AppendTo(b []byte) []byte {
	return appendBytes(b, 1, m.Bucket)
}

func (m *GetBucketReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbGetBucketReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeBytes(typ, b, &m.Bucket)
		}
		return skip
	})
}

type GetBucketResp struct {
	Props *BucketProps
}

func (m *GetBucketResp) AppendTo(b []byte) []byte {
	if m.Props == nil {
		return b
	}
	return appendMessage(b, 1, m.Props)
}

func (m *GetBucketResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbGetBucketResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			if m.Props == nil {
				m.Props = &BucketProps{}
			}
			return consumeMessage(typ, b, m.Props)
		}
		return skip
	})
}

type SetBucketReq struct {
	Bucket []byte
	Props  *BucketProps
}

func (m *SetBucketReq) AppendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Bucket)
	props := m.Props
	if props == nil {
		props = &BucketProps{}
	}
	return appendMessage(b, 2, props)
}

func (m *SetBucketReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbSetBucketReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Bucket)
		case 2:
			if m.Props == nil {
				m.Props = &BucketProps{}
			}
			return consumeMessage(typ, b, m.Props)
		}
		return skip
	})
}

type MapRedReq struct {
	Request     []byte
	ContentType []byte
}

func (m *MapRedReq) AppendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Request)
	return appendBytes(b, 2, m.ContentType)
}

func (m *MapRedReq) Unmarshal(b []byte) error {
	return unmarshalFields("RpbMapRedReq", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Request)
		case 2:
			return consumeBytes(typ, b, &m.ContentType)
		}
		return skip
	})
}

// MapRedResp is one frame of a map-reduce result stream. Decode each frame
// on its own to keep phase and response paired.
type MapRedResp struct {
	Phase    *uint32
	Response []byte
	Done     *bool
}

func (m *MapRedResp) AppendTo(b []byte) []byte {
	b = appendUint32(b, 1, m.Phase)
	b = appendOptionalBytes(b, 2, m.Response)
	return appendBool(b, 3, m.Done)
}

func (m *MapRedResp) Unmarshal(b []byte) error {
	return unmarshalFields("RpbMapRedResp", b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeUint32(typ, b, &m.Phase)
		case 2:
			return consumeBytes(typ, b, &m.Response)
		case 3:
			return consumeBool(typ, b, &m.Done)
		}
		return skip
	})
}

func consumeContent(typ protowire.Type, b []byte, dst *[]*Content) int {
	c := &Content{}
	n := consumeMessage(typ, b, c)
	if n > 0 {
		*dst = append(*dst, c)
	}
	return n
}
