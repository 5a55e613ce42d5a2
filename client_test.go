package riakpb

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/riakpb/riakpb/internal/testutils"
	"github.com/riakpb/riakpb/pb"
	"github.com/riakpb/riakpb/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, node *testutils.RiakNode, config Config) *Client {
	t.Helper()
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}
	client, err := NewClient(NewStaticServers(node.Addr()), config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func putRequests(t *testing.T, node *testutils.RiakNode) []*pb.PutReq {
	t.Helper()
	var out []*pb.PutReq
	for _, r := range node.RequestsWithCode(wire.CodePutReq) {
		m := &pb.PutReq{}
		require.NoError(t, m.Unmarshal(r.Payload))
		out = append(out, m)
	}
	return out
}

func getRequests(t *testing.T, node *testutils.RiakNode) []*pb.GetReq {
	t.Helper()
	var out []*pb.GetReq
	for _, r := range node.RequestsWithCode(wire.CodeGetReq) {
		m := &pb.GetReq{}
		require.NoError(t, m.Unmarshal(r.Payload))
		out = append(out, m)
	}
	return out
}

// =============================================================================
// Construction
// =============================================================================

func TestNewClient_DoesNotDial(t *testing.T) {
	client, err := NewClient(NewStaticServers("10.255.255.1:8087"), Config{})
	require.NoError(t, err)
	defer client.Close()

	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.Equal(t, "10.255.255.1:8087", stats[0].Addr)
	assert.Zero(t, stats[0].PoolStats.CreatedConns)
}

func TestNewClient_DefaultAddress(t *testing.T) {
	client, err := NewClient(nil, Config{})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "127.0.0.1:8087", client.AllPoolStats()[0].Addr)
}

func TestNewClient_InvalidAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"trailing hyphen label", "riak.basho-.com:8087"},
		{"port out of range", "localhost:65536"},
		{"missing port", "localhost"},
		{"non numeric port", "localhost:riak"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(NewStaticServers(tt.addr), Config{})
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}
}

func TestNewClient_NoServers(t *testing.T) {
	_, err := NewClient(emptyServers{}, Config{})
	assert.ErrorIs(t, err, ErrNoServers)
}

type emptyServers struct{}

func (emptyServers) List() []string { return nil }

func TestClient_Closed(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})

	client.Close()
	client.Close()

	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.Empty(t, node.Requests())
}

// =============================================================================
// Identity
// =============================================================================

func TestClient_RequestsClientIDOnFirstConnection(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	reqs := node.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, wire.CodeGetClientIDReq, reqs[0].Code)
	assert.Equal(t, wire.CodePingReq, reqs[1].Code)

	id, err := client.ClientID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAQ==", id)
}

func TestClient_ClientIDConnects(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.ClientID = "AAAAKg=="
	client := newTestClient(t, node, Config{})

	id, err := client.ClientID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AAAAKg==", id)
}

func TestClient_ReplaysClientIDOnNewConnections(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	node.DropConnections()
	_ = client.Ping(ctx) // fails on the dropped socket, which is destroyed
	require.NoError(t, client.Ping(ctx))

	handshakes := node.RequestsWithCode(wire.CodeSetClientIDReq)
	require.Len(t, handshakes, 1)

	var req pb.SetClientIDReq
	require.NoError(t, req.Unmarshal(handshakes[0].Payload))
	assert.Equal(t, "AAAAAQ==", string(req.ClientID))
	assert.Equal(t, []byte("AAAAAQ=="), node.ConnClientID(handshakes[0].Conn))

	assert.Len(t, node.RequestsWithCode(wire.CodeGetClientIDReq), 1)
}

func TestClient_ConfiguredClientID(t *testing.T) {
	node := testutils.NewRiakNode(t)
	id, err := ClientIDFromInt(7)
	require.NoError(t, err)
	client := newTestClient(t, node, Config{ClientID: id})

	require.NoError(t, client.Ping(context.Background()))

	reqs := node.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, wire.CodeSetClientIDReq, reqs[0].Code)
	assert.Equal(t, []byte(id), node.ConnClientID(reqs[0].Conn))
	assert.Empty(t, node.RequestsWithCode(wire.CodeGetClientIDReq))
}

func TestClient_HandshakeFailure(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.Handler = func(req testutils.Request) ([]wire.Frame, bool) {
		if req.Code == wire.CodeSetClientIDReq {
			return []wire.Frame{testutils.ErrorFrame("client id rejected", 1)}, true
		}
		return nil, false
	}
	client := newTestClient(t, node, Config{ClientID: "AAAAAQ=="})

	err := client.Ping(context.Background())

	var handshake *HandshakeError
	require.ErrorAs(t, err, &handshake)
	assert.Equal(t, node.Addr(), handshake.Addr)
	var reqErr *wire.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "client id rejected", reqErr.Message)

	assert.Empty(t, node.RequestsWithCode(wire.CodePingReq))
	assert.Equal(t, uint64(1), client.Stats().Errors)
}

// =============================================================================
// Objects
// =============================================================================

func TestClient_PutGet(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	stored, err := client.Put(ctx, "goog", "2010-04-12", NewContent(ContentTypeJSON, map[string]any{"a": 1}), SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, Resolved, stored.State())
	assert.NotEmpty(t, stored.VClock())

	puts := putRequests(t, node)
	require.Len(t, puts, 1)
	assert.Equal(t, "goog", string(puts[0].Bucket))
	assert.Equal(t, "2010-04-12", string(puts[0].Key))
	assert.Equal(t, `{"a":1}`, string(puts[0].Content.Value))
	assert.Equal(t, ContentTypeJSON, string(puts[0].Content.ContentType))
	require.NotNil(t, puts[0].ReturnBody)
	assert.True(t, *puts[0].ReturnBody)
	assert.Nil(t, puts[0].Vclock)

	key, err := client.Get(ctx, "goog", "2010-04-12", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, Resolved, key.State())

	content, err := key.Content()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": json.Number("1")}, content.Value)
	assert.NotEmpty(t, content.Vtag)
	assert.False(t, content.LastModified.IsZero())

	var doc struct{ A int }
	require.NoError(t, content.Unmarshal(&doc))
	assert.Equal(t, 1, doc.A)

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.Puts)
	assert.Equal(t, uint64(1), stats.Gets)
	assert.Equal(t, uint64(1), stats.GetHits)
	assert.Zero(t, stats.Errors)
}

func TestClient_SaveSendsVClock(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	key, err := client.Put(ctx, "b", "k", NewContent(ContentTypeText, "v1"), SaveOptions{})
	require.NoError(t, err)
	vclock := key.VClock()

	content, err := key.Content()
	require.NoError(t, err)
	content.Value = "v2"
	require.NoError(t, key.Save(ctx, SaveOptions{}))

	puts := putRequests(t, node)
	require.Len(t, puts, 2)
	assert.Equal(t, vclock, puts[1].Vclock)
	assert.Equal(t, "v2", string(puts[1].Content.Value))
	assert.NotEqual(t, vclock, key.VClock())
}

func TestClient_GetNotFound(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})

	key, err := client.Get(context.Background(), "goog", "missing", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, NotFound, key.State())
	assert.False(t, key.Found())
	assert.Nil(t, key.VClock())

	content, err := key.Content()
	require.NoError(t, err)
	assert.Nil(t, content)

	assert.ErrorIs(t, key.Save(context.Background(), SaveOptions{}), ErrEmptyContent)
	assert.Equal(t, uint64(0), client.Stats().GetHits)
}

func TestClient_Siblings(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.SetBucket("b", 3, true)
	node.Store("b", "k",
		&pb.Content{Value: []byte("one"), ContentType: []byte(ContentTypeText)},
		&pb.Content{Value: []byte("two"), ContentType: []byte(ContentTypeText)},
	)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	key, err := client.Get(ctx, "b", "k", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, Conflicted, key.State())

	siblings := key.Siblings()
	require.Len(t, siblings, 2)
	assert.Equal(t, []byte("one"), siblings[0].Value)
	assert.Equal(t, []byte("two"), siblings[1].Value)
	assert.NotEqual(t, siblings[0].Vtag, siblings[1].Vtag)

	_, err = key.Content()
	var sibErr *SiblingError
	require.ErrorAs(t, err, &sibErr)
	assert.Equal(t, 2, sibErr.Siblings)

	err = key.Save(ctx, SaveOptions{})
	require.ErrorAs(t, err, &sibErr)
	assert.Empty(t, putRequests(t, node))

	require.NoError(t, key.Save(ctx, SaveOptions{Content: siblings[1]}))
	assert.Equal(t, Resolved, key.State())

	content, err := key.Content()
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), content.Value)

	assert.Equal(t, uint64(1), client.Stats().Conflicts)
}

func TestClient_ConcurrentWriteCreatesSibling(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.SetBucket("b", 3, true)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	key, err := client.Put(ctx, "b", "k", NewContent(ContentTypeText, "mine"), SaveOptions{})
	require.NoError(t, err)

	node.Store("b", "k", &pb.Content{Value: []byte("theirs"), ContentType: []byte(ContentTypeText)})

	// The stored vclock moved on, so this write does not descend from it.
	content, err := key.Content()
	require.NoError(t, err)
	content.Value = "mine again"
	require.NoError(t, key.Save(ctx, SaveOptions{}))

	assert.Equal(t, Conflicted, key.State())
	assert.Len(t, key.Siblings(), 3)
}

func TestClient_ConcurrentAccessToSharedKey(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.Store("b", "k", textContent("v", ""))
	client := newTestClient(t, node, Config{MaxSize: 4})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if g%2 == 0 {
					_, err := client.Put(ctx, "b", "k", NewContent(ContentTypeText, "v"), SaveOptions{})
					assert.NoError(t, err)
					continue
				}
				key, err := client.Get(ctx, "b", "k", GetOptions{})
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, Resolved, key.State())
				_ = key.VClock()
				_ = key.Siblings()
			}
		}(g)
	}
	wg.Wait()

	key, err := client.Get(ctx, "b", "k", GetOptions{Cached: true})
	require.NoError(t, err)
	assert.Same(t, key, mustKey(t, client, "b", "k"), "every caller shares the cached key")
}

func mustKey(t *testing.T, client *Client, bucket, name string) *Key {
	t.Helper()
	b, err := client.Bucket(bucket)
	require.NoError(t, err)
	k, err := b.Key(name)
	require.NoError(t, err)
	return k
}

func TestClient_Quorum(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	_, err := client.Get(ctx, "goog", "k", GetOptions{R: 2})
	require.NoError(t, err)
	_, err = client.Get(ctx, "goog", "k", GetOptions{})
	require.NoError(t, err)

	gets := getRequests(t, node)
	require.Len(t, gets, 2)
	require.NotNil(t, gets[0].R)
	assert.Equal(t, uint32(2), *gets[0].R)
	assert.Nil(t, gets[1].R)

	want := pb.Marshal(&pb.GetReq{Bucket: []byte("goog"), Key: []byte("k"), R: pb.Uint32(2)})
	assert.Equal(t, want, node.RequestsWithCode(wire.CodeGetReq)[0].Payload)
}

func TestClient_DefaultQuorum(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{DefaultQuorum: Quorum{R: 3, W: 2, DW: 1, RW: 2}})
	ctx := context.Background()

	_, err := client.Put(ctx, "b", "k", NewContent(ContentTypeText, "v"), SaveOptions{W: 3})
	require.NoError(t, err)
	_, err = client.Get(ctx, "b", "k", GetOptions{})
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, "b", "k", DeleteOptions{}))

	puts := putRequests(t, node)
	require.Len(t, puts, 1)
	assert.Equal(t, uint32(3), *puts[0].W)
	assert.Equal(t, uint32(1), *puts[0].DW)

	gets := getRequests(t, node)
	require.Len(t, gets, 1)
	assert.Equal(t, uint32(3), *gets[0].R)

	var del pb.DelReq
	dels := node.RequestsWithCode(wire.CodeDelReq)
	require.Len(t, dels, 1)
	require.NoError(t, del.Unmarshal(dels[0].Payload))
	assert.Equal(t, uint32(2), *del.RW)
}

func TestClient_Delete(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	_, err := client.Put(ctx, "b", "k", NewContent(ContentTypeText, "v"), SaveOptions{})
	require.NoError(t, err)

	bucket, err := client.Bucket("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, bucket.CachedKeys())

	require.NoError(t, client.Delete(ctx, "b", "k", DeleteOptions{}))
	assert.Empty(t, bucket.CachedKeys())

	key, err := client.Get(ctx, "b", "k", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, NotFound, key.State())
	assert.Equal(t, uint64(1), client.Stats().Deletes)
}

func TestClient_ServerErrorKeepsConnection(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.Handler = func(req testutils.Request) ([]wire.Frame, bool) {
		if req.Code == wire.CodeGetReq {
			return []wire.Frame{testutils.ErrorFrame("r_val_unsatisfied", 2)}, true
		}
		return nil, false
	}
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	_, err := client.Get(ctx, "b", "k", GetOptions{R: 5})

	var reqErr *wire.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "r_val_unsatisfied", reqErr.Message)
	assert.Equal(t, uint32(2), reqErr.ServerCode)

	require.NoError(t, client.Ping(ctx))

	stats := client.AllPoolStats()[0].PoolStats
	assert.Equal(t, uint64(1), stats.CreatedConns)
	assert.Zero(t, stats.DestroyedConns)
}

func TestClient_CanceledContextKeepsConnection(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{MaxSize: 1})
	require.NoError(t, client.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.Ping(ctx), context.Canceled)

	require.NoError(t, client.Ping(context.Background()))

	stats := client.AllPoolStats()[0].PoolStats
	assert.Equal(t, uint64(1), stats.CreatedConns)
	assert.Zero(t, stats.DestroyedConns)
	assert.Len(t, node.RequestsWithCode(wire.CodePingReq), 2)
}

func TestClient_ProtocolSkewDestroysConnection(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.Handler = func(req testutils.Request) ([]wire.Frame, bool) {
		if req.Code == wire.CodeGetServerInfoReq {
			return []wire.Frame{{Code: wire.CodePingResp}}, true
		}
		return nil, false
	}
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	_, err := client.ServerInfo(ctx)
	var skew *wire.ProtocolSkewError
	require.ErrorAs(t, err, &skew)

	require.NoError(t, client.Ping(ctx))

	stats := client.AllPoolStats()[0].PoolStats
	assert.Equal(t, uint64(2), stats.CreatedConns)
	assert.Equal(t, uint64(1), stats.DestroyedConns)
}

// =============================================================================
// Listing, buckets, node operations
// =============================================================================

func TestClient_ListKeysPaged(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.PageSize = 1
	for _, k := range []string{"2010-04-12", "2010-04-13", "2010-04-14"} {
		node.Store("goog", k, &pb.Content{Value: []byte("{}"), ContentType: []byte(ContentTypeJSON)})
	}
	client := newTestClient(t, node, Config{})

	keys, err := client.ListKeys(context.Background(), "goog")
	require.NoError(t, err)
	assert.Equal(t, []string{"2010-04-12", "2010-04-13", "2010-04-14"}, keys)

	assert.Len(t, node.RequestsWithCode(wire.CodeListKeysReq), 1)
	assert.Equal(t, uint64(1), client.Stats().Lists)
}

func TestClient_ListKeysEmptyBucket(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})

	keys, err := client.ListKeys(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestClient_ListBuckets(t *testing.T) {
	node := testutils.NewRiakNode(t)
	node.Store("goog", "k", &pb.Content{Value: []byte("v")})
	node.Store("aapl", "k", &pb.Content{Value: []byte("v")})
	client := newTestClient(t, node, Config{})

	buckets, err := client.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aapl", "goog"}, buckets)

	var req pb.ListBucketsReq
	reqs := node.RequestsWithCode(wire.CodeListBucketsReq)
	require.Len(t, reqs, 1)
	require.NoError(t, req.Unmarshal(reqs[0].Payload))
	require.NotNil(t, req.Stream)
	assert.True(t, *req.Stream)
}

func TestClient_BucketProps(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	props, err := client.GetBucketProps(ctx, "goog")
	require.NoError(t, err)
	require.NotNil(t, props.NVal)
	assert.Equal(t, uint32(3), *props.NVal)
	require.NotNil(t, props.AllowMult)
	assert.False(t, *props.AllowMult)

	allow := true
	require.NoError(t, client.SetBucketProps(ctx, "goog", BucketProps{AllowMult: &allow}))

	bucket, err := client.Bucket("goog")
	require.NoError(t, err)
	allowMult, known := bucket.AllowMult()
	assert.True(t, known)
	assert.True(t, allowMult)

	var codes []wire.Code
	for _, r := range node.Requests() {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []wire.Code{
		wire.CodeGetClientIDReq,
		wire.CodeGetBucketReq,
		wire.CodeSetBucketReq,
		wire.CodeGetBucketReq,
	}, codes)
}

func TestClient_SetBucketPropsValidation(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})

	var validation *ValidationError
	err := client.SetBucketProps(context.Background(), "goog", BucketProps{})
	require.ErrorAs(t, err, &validation)

	zero := uint32(0)
	err = client.SetBucketProps(context.Background(), "goog", BucketProps{NVal: &zero})
	require.ErrorAs(t, err, &validation)

	assert.Empty(t, node.Requests())
}

func TestClient_ServerInfo(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})

	info, err := client.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ServerInfo{Node: "riak@127.0.0.1", ServerVersion: "0.10.1"}, info)
}

func TestClient_MapReduce(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})

	body := []byte(`{"inputs":"goog","query":[]}`)
	results, err := client.MapReduce(context.Background(), body, ContentTypeJSON)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(0), results[0].Phase)
	assert.Equal(t, body, results[0].Response)

	var req pb.MapRedReq
	reqs := node.RequestsWithCode(wire.CodeMapRedReq)
	require.Len(t, reqs, 1)
	require.NoError(t, req.Unmarshal(reqs[0].Payload))
	assert.Equal(t, ContentTypeJSON, string(req.ContentType))
	assert.Equal(t, uint64(1), client.Stats().MapReduces)
}

func TestClient_MapReduceValidation(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})

	var validation *ValidationError
	_, err := client.MapReduce(context.Background(), nil, ContentTypeJSON)
	require.ErrorAs(t, err, &validation)
	_, err = client.MapReduce(context.Background(), []byte("{}"), "")
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, node.Requests())
}

func TestClient_LocalValidation(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{})
	ctx := context.Background()

	var validation *ValidationError
	_, err := client.Get(ctx, "", "k", GetOptions{})
	require.ErrorAs(t, err, &validation)
	_, err = client.Get(ctx, "b", "", GetOptions{})
	require.ErrorAs(t, err, &validation)
	_, err = client.Put(ctx, "b", "k", &Content{Value: "no type"}, SaveOptions{})
	require.ErrorAs(t, err, &validation)
	_, err = client.ListKeys(ctx, "")
	require.ErrorAs(t, err, &validation)

	assert.Empty(t, node.Requests())
}

// =============================================================================
// Routing and pooling
// =============================================================================

func TestClient_SelectServer(t *testing.T) {
	first := testutils.NewRiakNode(t)
	second := testutils.NewRiakNode(t)

	client, err := NewClient(NewStaticServers(first.Addr(), second.Addr()), Config{
		SelectServer: staticSelector(1),
		Timeout:      2 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))

	assert.Empty(t, first.Requests())
	assert.Len(t, second.RequestsWithCode(wire.CodePingReq), 1)
}

func TestClient_IdentitySharedAcrossNodes(t *testing.T) {
	first := testutils.NewRiakNode(t)
	second := testutils.NewRiakNode(t)
	second.ClientID = "ignored"

	client, err := NewClient(NewStaticServers(first.Addr(), second.Addr()), Config{Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.pools[0].Execute(ctx, wire.CodePingReq, nil)
	require.NoError(t, err)
	_, err = client.pools[1].Execute(ctx, wire.CodePingReq, nil)
	require.NoError(t, err)

	handshakes := second.RequestsWithCode(wire.CodeSetClientIDReq)
	require.Len(t, handshakes, 1)
	assert.Equal(t, []byte("AAAAAQ=="), second.ConnClientID(handshakes[0].Conn))
	assert.Empty(t, second.RequestsWithCode(wire.CodeGetClientIDReq))
}

func TestClient_PuddlePool(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{NewPool: NewPuddlePool, MaxSize: 2})
	ctx := context.Background()

	_, err := client.Put(ctx, "b", "k", NewContent(ContentTypeText, "v"), SaveOptions{})
	require.NoError(t, err)
	key, err := client.Get(ctx, "b", "k", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, Resolved, key.State())

	stats := client.AllPoolStats()[0].PoolStats
	assert.Equal(t, uint64(1), stats.CreatedConns)
	assert.Equal(t, int32(1), stats.IdleConns)
}

func TestClient_HealthCheckDestroysOldConnections(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{
		HealthCheckInterval: 10 * time.Millisecond,
		MaxConnLifetime:     time.Nanosecond,
	})

	require.NoError(t, client.Ping(context.Background()))

	assert.Eventually(t, func() bool {
		return client.AllPoolStats()[0].PoolStats.DestroyedConns >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_HealthCheckPingsIdleConnections(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client := newTestClient(t, node, Config{HealthCheckInterval: 10 * time.Millisecond})

	_, err := client.ServerInfo(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(node.RequestsWithCode(wire.CodePingReq)) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, client.AllPoolStats()[0].PoolStats.DestroyedConns)
}
