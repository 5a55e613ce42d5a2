package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func fieldNumbers(t *testing.T, b []byte) []protowire.Number {
	t.Helper()
	var nums []protowire.Number
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.Positive(t, n)
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		require.Positive(t, n)
		b = b[n:]
		nums = append(nums, num)
	}
	return nums
}

func TestGetReqQuorumIsOptional(t *testing.T) {
	withR := Marshal(&GetReq{Bucket: []byte("goog"), Key: []byte("2010-04-12"), R: Uint32(2)})
	assert.Equal(t, []protowire.Number{1, 2, 3}, fieldNumbers(t, withR))

	var decoded GetReq
	require.NoError(t, decoded.Unmarshal(withR))
	assert.Equal(t, "goog", string(decoded.Bucket))
	assert.Equal(t, "2010-04-12", string(decoded.Key))
	require.NotNil(t, decoded.R)
	assert.Equal(t, uint32(2), *decoded.R)

	withoutR := Marshal(&GetReq{Bucket: []byte("goog"), Key: []byte("2010-04-12")})
	assert.Equal(t, []protowire.Number{1, 2}, fieldNumbers(t, withoutR))

	decoded = GetReq{}
	require.NoError(t, decoded.Unmarshal(withoutR))
	assert.Nil(t, decoded.R)
}

func TestListKeysRespMergesStreamedFrames(t *testing.T) {
	pages := [][]byte{
		Marshal(&ListKeysResp{Keys: [][]byte{[]byte("a"), []byte("b")}}),
		Marshal(&ListKeysResp{Keys: [][]byte{[]byte("c")}}),
		Marshal(&ListKeysResp{Done: Bool(true)}),
	}

	var joined []byte
	for _, p := range pages {
		joined = append(joined, p...)
	}

	var resp ListKeysResp
	require.NoError(t, resp.Unmarshal(joined))
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, resp.Keys)
	require.NotNil(t, resp.Done)
	assert.True(t, *resp.Done)
}

func TestPutReqWithContent(t *testing.T) {
	req := &PutReq{
		Bucket: []byte("goog"),
		Key:    []byte("2010-04-12"),
		Vclock: []byte("vc"),
		Content: &Content{
			Value:       []byte(`{"a":1}`),
			ContentType: []byte("application/json"),
			Links:       []*Link{{Bucket: []byte("b"), Key: []byte("k"), Tag: []byte("t")}},
			Usermeta:    []*Pair{{Key: []byte("m"), Value: []byte("v")}},
		},
		W:          Uint32(3),
		ReturnBody: Bool(true),
	}

	var decoded PutReq
	require.NoError(t, decoded.Unmarshal(Marshal(req)))
	assert.Equal(t, req, &decoded)
}

func TestGetRespNotFound(t *testing.T) {
	var resp GetResp
	require.NoError(t, resp.Unmarshal(nil))
	assert.Empty(t, resp.Content)
	assert.Nil(t, resp.Vclock)
}

func TestGetRespSiblings(t *testing.T) {
	payload := Marshal(&GetResp{
		Content: []*Content{
			{Value: []byte("one"), Vtag: []byte("v1"), LastMod: Uint32(1274645855), LastModUsecs: Uint32(968694)},
			{Value: []byte("two"), Vtag: []byte("v2")},
		},
		Vclock: []byte("clock"),
	})

	var resp GetResp
	require.NoError(t, resp.Unmarshal(payload))
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "one", string(resp.Content[0].Value))
	assert.Equal(t, uint32(968694), *resp.Content[0].LastModUsecs)
	assert.Equal(t, "v2", string(resp.Content[1].Vtag))
	assert.Equal(t, "clock", string(resp.Vclock))
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("riak@127.0.0.1"))
	b = protowire.AppendTag(b, 15, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("0.14.0"))

	var info GetServerInfoResp
	require.NoError(t, info.Unmarshal(b))
	assert.Equal(t, "riak@127.0.0.1", string(info.Node))
	assert.Equal(t, "0.14.0", string(info.ServerVersion))
}

func TestUnmarshalTruncated(t *testing.T) {
	full := Marshal(&GetReq{Bucket: []byte("bucket"), Key: []byte("key")})

	var req GetReq
	err := req.Unmarshal(full[:len(full)-1])

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "RpbGetReq", parseErr.Message)
}

func TestUnmarshalNestedFailure(t *testing.T) {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{0x0a, 0x09}) // content claims 9 bytes, has 0

	var resp GetResp
	assert.Error(t, resp.Unmarshal(b))
}

func TestBucketPropsPartial(t *testing.T) {
	payload := Marshal(&GetBucketResp{Props: &BucketProps{AllowMult: Bool(true)}})

	var resp GetBucketResp
	require.NoError(t, resp.Unmarshal(payload))
	require.NotNil(t, resp.Props)
	assert.Nil(t, resp.Props.NVal)
	require.NotNil(t, resp.Props.AllowMult)
	assert.True(t, *resp.Props.AllowMult)
}

func TestMapRedRespFrame(t *testing.T) {
	payload := Marshal(&MapRedResp{Phase: Uint32(1), Response: []byte(`[["a",1]]`)})

	var resp MapRedResp
	require.NoError(t, resp.Unmarshal(payload))
	assert.Equal(t, uint32(1), *resp.Phase)
	assert.Equal(t, `[["a",1]]`, string(resp.Response))
	assert.Nil(t, resp.Done)
}

func TestErrorResp(t *testing.T) {
	payload := Marshal(&ErrorResp{Errmsg: []byte("boom"), Errcode: Uint32(1)})

	var resp ErrorResp
	require.NoError(t, resp.Unmarshal(payload))
	assert.Equal(t, "boom", string(resp.Errmsg))
	assert.Equal(t, uint32(1), *resp.Errcode)
}
