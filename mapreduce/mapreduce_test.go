package mapreduce

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riakpb/riakpb"
	"github.com/riakpb/riakpb/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	body        []byte
	contentType string
	results     []riakpb.MapReduceResult
	err         error
}

func (f *fakeRunner) MapReduce(_ context.Context, request []byte, contentType string) ([]riakpb.MapReduceResult, error) {
	f.body = request
	f.contentType = contentType
	return f.results, f.err
}

func marshal(t *testing.T, j *Job) string {
	t.Helper()
	out, err := j.MarshalJSON()
	require.NoError(t, err)
	return string(out)
}

// =============================================================================
// Inputs
// =============================================================================

func TestJob_Inputs(t *testing.T) {
	j := New().Add("goog", "2010-04-12").AddWithData("goog", "2010-04-13", 1000).Map(JS("Riak.mapValues"))
	assert.JSONEq(t, `{"inputs":[["goog","2010-04-12"],["goog","2010-04-13",1000]],"query":[{"map":{"language":"javascript","keep":false,"name":"Riak.mapValues"}}]}`, marshal(t, j))
}

func TestJob_BucketInputReplacesKeys(t *testing.T) {
	j := New().Add("goog", "2010-04-12").AddBucket("docs").Map(JS("Riak.mapValues"))
	assert.Contains(t, marshal(t, j), `"inputs":"docs"`)

	j.Add("goog", "2010-04-12")
	assert.Contains(t, marshal(t, j), `"inputs":[["goog","2010-04-12"]]`)
}

func TestJob_AddKey(t *testing.T) {
	client, err := riakpb.NewClient(riakpb.NewStaticServers("127.0.0.1:1"), riakpb.Config{})
	require.NoError(t, err)
	defer client.Close()

	bucket, err := client.Bucket("goog")
	require.NoError(t, err)
	key, err := bucket.Key("2010-04-12")
	require.NoError(t, err)

	assert.Contains(t, marshal(t, New().AddKey(key)), `"inputs":[["goog","2010-04-12"]]`)
}

// =============================================================================
// Phases
// =============================================================================

func TestJS(t *testing.T) {
	assert.Equal(t, Function{language: LanguageJavaScript, source: "function(v){ return [v]; }"}, JS("function(v){ return [v]; }"))
	assert.Equal(t, Function{language: LanguageJavaScript, source: "  function (v) {}"}, JS("  function (v) {}"))
	assert.Equal(t, Function{language: LanguageJavaScript, name: "Riak.reduceSum"}, JS("Riak.reduceSum"))
	assert.Equal(t, LanguageErlang, Erlang("riak_mapreduce", "map_object_value").Language())
	assert.Equal(t, LanguageJavaScript, Stored("funs", "awesome_map").Language())
}

func TestPhase_Encode(t *testing.T) {
	tests := []struct {
		name string
		job  *Job
		want string
	}{
		{
			name: "source",
			job:  New().Map(JS("function(v){ return [v]; }")),
			want: `{"map":{"language":"javascript","keep":false,"source":"function(v){ return [v]; }"}}`,
		},
		{
			name: "named with keep",
			job:  New().Reduce(JS("Riak.reduceSum"), Keep()),
			want: `{"reduce":{"language":"javascript","keep":true,"name":"Riak.reduceSum"}}`,
		},
		{
			name: "stored",
			job:  New().Map(Stored("design", "wordcount_map")),
			want: `{"map":{"language":"javascript","keep":false,"bucket":"design","key":"wordcount_map"}}`,
		},
		{
			name: "erlang with arg",
			job:  New().Map(Erlang("riak_mapreduce", "mapreduce_fun"), Arg([]int{1000})),
			want: `{"map":{"language":"erlang","keep":false,"module":"riak_mapreduce","function":"mapreduce_fun","arg":[1000]}}`,
		},
		{
			name: "empty link",
			job:  New().Link(WalkSpec{}),
			want: `{"link":{"keep":false}}`,
		},
		{
			name: "link bucket",
			job:  New().Link(WalkSpec{Bucket: "foo"}),
			want: `{"link":{"bucket":"foo","keep":false}}`,
		},
		{
			name: "link tag keep",
			job:  New().Link(WalkSpec{Tag: "parent", Keep: true}),
			want: `{"link":{"tag":"parent","keep":true}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := tt.job.Query()
			require.Len(t, query, 1)

			out, err := json.Marshal(query[0].encode())
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestJob_QueryOrder(t *testing.T) {
	j := New().Add("people", "john").
		Link(WalkSpec{Tag: "friend"}).
		Map(JS("Riak.mapValuesJson")).
		Reduce(JS("Riak.reduceSort"), Keep())

	query := j.Query()
	require.Len(t, query, 3)
	assert.Equal(t, []PhaseType{PhaseLink, PhaseMap, PhaseReduce}, []PhaseType{query[0].Type, query[1].Type, query[2].Type})
	assert.Contains(t, marshal(t, j), `"query":[{"link":{"tag":"friend","keep":false}},{"map":`)
}

func TestJob_Timeout(t *testing.T) {
	j := New().AddBucket("goog").Map(JS("Riak.mapValues"))
	assert.NotContains(t, marshal(t, j), "timeout")

	j.Timeout(50 * time.Second)
	assert.Contains(t, marshal(t, j), `"timeout":50000`)
}

func TestJob_Validate(t *testing.T) {
	assert.ErrorIs(t, New().Map(JS("Riak.mapValues")).Validate(), ErrNoInputs)
	assert.ErrorIs(t, New().AddBucket("goog").Validate(), ErrNoQuery)
	assert.Error(t, New().AddBucket("goog").Map(Function{}).Validate())
	assert.Error(t, New().AddBucket("goog").Map(Erlang("riak", "")).Validate())
	assert.Error(t, New().AddBucket("goog").Map(Stored("design", "")).Validate())
	assert.Error(t, New().AddBucket("goog").Map(JS("")).Validate())
	assert.NoError(t, New().AddBucket("goog").Link(WalkSpec{}).Validate())
}

// =============================================================================
// Run
// =============================================================================

func TestJob_Run(t *testing.T) {
	runner := &fakeRunner{results: []riakpb.MapReduceResult{
		{Phase: 1, Response: []byte(`[3]`)},
		{Phase: 0, Response: []byte(`["a","b"]`)},
		{Phase: 0, Response: []byte(`["c"]`)},
		{Phase: 1, Response: nil},
	}}

	j := New().AddBucket("goog").Map(JS("Riak.mapValuesJson"), Keep()).Reduce(JS("Riak.reduceSum"), Keep())
	results, err := j.Run(context.Background(), runner)
	require.NoError(t, err)

	assert.Equal(t, ContentType, runner.contentType)
	assert.JSONEq(t, marshal(t, j), string(runner.body))

	require.Len(t, results, 2)
	assert.Equal(t, uint32(0), results[0].Phase)
	letters, err := Decode[string](results[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, letters)

	sums, err := Decode[int](results[1])
	require.NoError(t, err)
	assert.Equal(t, []int{3}, sums)
}

func TestJob_RunInvalidDoesNotSubmit(t *testing.T) {
	runner := &fakeRunner{}
	_, err := New().Run(context.Background(), runner)
	assert.ErrorIs(t, err, ErrNoInputs)
	assert.Nil(t, runner.body)
}

func TestRunJSON_Errors(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := RunJSON(context.Background(), &fakeRunner{err: wantErr}, []byte(`{}`))
	assert.ErrorIs(t, err, wantErr)

	_, err = RunJSON(context.Background(), &fakeRunner{results: []riakpb.MapReduceResult{{Response: []byte("{not json")}}}, []byte(`{}`))
	assert.Error(t, err)
}

func TestRunJSON_ScalarResponse(t *testing.T) {
	runner := &fakeRunner{results: []riakpb.MapReduceResult{{Phase: 0, Response: []byte(`{"count":2}`)}}}

	results, err := RunJSON(context.Background(), runner, []byte(`{}`))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 1)
	assert.JSONEq(t, `{"count":2}`, string(results[0].Values[0]))
}

func TestDecode_TypeMismatch(t *testing.T) {
	_, err := Decode[int](Result{Phase: 2, Values: []json.RawMessage{json.RawMessage(`"x"`)}})
	assert.ErrorContains(t, err, "phase 2")
}

func TestJob_RunAgainstNode(t *testing.T) {
	node := testutils.NewRiakNode(t)
	client, err := riakpb.NewClient(riakpb.NewStaticServers(node.Addr()), riakpb.Config{Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	j := New().Add("goog", "2010-04-12").Map(JS("Riak.mapValuesJson"), Keep())
	results, err := j.Run(context.Background(), client)
	require.NoError(t, err)

	// the stub node echoes the job back as the result of phase 0
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 1)
	assert.JSONEq(t, marshal(t, j), string(results[0].Values[0]))
}

// =============================================================================
// JSONC job files
// =============================================================================

func TestParseJSONC(t *testing.T) {
	body, err := ParseJSONC([]byte(`{
		// every trading day
		"inputs": "goog",
		"query": [
			{"map": {"language": "javascript", "name": "Riak.mapValuesJson", "keep": true}},
		],
	}`))
	require.NoError(t, err)
	assert.True(t, json.Valid(body))

	_, err = ParseJSONC([]byte(`{"query":[{"map":{}}]}`))
	assert.ErrorIs(t, err, ErrNoInputs)

	_, err = ParseJSONC([]byte(`{"inputs":"goog","query":[]}`))
	assert.ErrorIs(t, err, ErrNoQuery)

	_, err = ParseJSONC([]byte(`[`))
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"inputs":[["goog","2010-04-12"]], /* one day */ "query":[{"reduce":{"name":"Riak.reduceSum"}}]}`), 0o600))

	body, err := ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"inputs":[["goog","2010-04-12"]],"query":[{"reduce":{"name":"Riak.reduceSum"}}]}`, string(body))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.jsonc"))
	assert.Error(t, err)
}
