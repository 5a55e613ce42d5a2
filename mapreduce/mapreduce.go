// Package mapreduce builds Riak map-reduce jobs and submits them through a
// riakpb client.
//
// A job has inputs (a whole bucket, or a list of bucket/key pairs with
// optional key data) and a query made of map, reduce and link phases.
// The job is encoded as the JSON document Riak expects on the
// application/json map-reduce interface:
//
//	{"inputs":[["goog","2010-04-12"]],
//	 "query":[{"map":{"language":"javascript","keep":true,"source":"function(v){...}"}}],
//	 "timeout":60000}
package mapreduce

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/riakpb/riakpb"
	"github.com/tidwall/jsonc"
)

// ContentType is the content type jobs are submitted with.
const ContentType = "application/json"

const (
	LanguageJavaScript = "javascript"
	LanguageErlang     = "erlang"
)

var (
	ErrNoInputs = errors.New("mapreduce: job has no inputs")
	ErrNoQuery  = errors.New("mapreduce: job has no phases")
)

// Runner submits an encoded job. *riakpb.Client satisfies it.
type Runner interface {
	MapReduce(ctx context.Context, request []byte, contentType string) ([]riakpb.MapReduceResult, error)
}

var sourcePattern = regexp.MustCompile(`^\s*function\b`)

// Function is the code a map or reduce phase runs.
type Function struct {
	language string
	source   string
	name     string
	bucket   string
	key      string
	module   string
	function string
}

// JS returns a JavaScript function. Strings that start with the function
// keyword are sent as source, anything else as the name of a built-in
// such as "Riak.mapValuesJson".
func JS(s string) Function {
	if sourcePattern.MatchString(s) {
		return Function{language: LanguageJavaScript, source: s}
	}
	return Function{language: LanguageJavaScript, name: s}
}

// Stored refers to a JavaScript function stored as an object in Riak.
func Stored(bucket, key string) Function {
	return Function{language: LanguageJavaScript, bucket: bucket, key: key}
}

// Erlang refers to an exported Erlang module:function pair.
func Erlang(module, function string) Function {
	return Function{language: LanguageErlang, module: module, function: function}
}

func (f Function) Language() string { return f.language }

func (f Function) validate() error {
	switch {
	case f.language == LanguageErlang && (f.module == "" || f.function == ""):
		return fmt.Errorf("mapreduce: erlang phase needs a module and a function")
	case f.bucket != "" && f.key == "", f.bucket == "" && f.key != "":
		return fmt.Errorf("mapreduce: stored function needs a bucket and a key")
	case f.language == LanguageJavaScript && f.source == "" && f.name == "" && f.bucket == "":
		return fmt.Errorf("mapreduce: javascript phase needs source, a name or a stored function")
	case f.language == "":
		return fmt.Errorf("mapreduce: phase has no function")
	}
	return nil
}

// PhaseType is one of map, reduce or link.
type PhaseType string

const (
	PhaseMap    PhaseType = "map"
	PhaseReduce PhaseType = "reduce"
	PhaseLink   PhaseType = "link"
)

// Phase is one step of a query.
type Phase struct {
	Type     PhaseType
	Function Function
	Walk     WalkSpec
	Keep     bool
	Arg      any
}

// WalkSpec selects the links a link phase follows. Empty fields match
// any bucket or tag.
type WalkSpec struct {
	Bucket string
	Tag    string
	Keep   bool
}

// PhaseOption customizes a map or reduce phase.
type PhaseOption func(*Phase)

// Keep returns the phase's results to the caller.
func Keep() PhaseOption {
	return func(p *Phase) { p.Keep = true }
}

// Arg passes a static argument to every invocation of the phase.
func Arg(v any) PhaseOption {
	return func(p *Phase) { p.Arg = v }
}

type input struct {
	bucket  string
	key     string
	keyData any
	hasData bool
}

// Job is a map-reduce job under construction. It is not safe for
// concurrent use.
type Job struct {
	bucket  string
	inputs  []input
	query   []Phase
	timeout time.Duration
}

func New() *Job {
	return &Job{}
}

// AddBucket runs the job over every key of the bucket and replaces any
// inputs added before.
func (j *Job) AddBucket(name string) *Job {
	j.bucket = name
	j.inputs = nil
	return j
}

// Add appends a bucket/key pair. A job that was running over a whole
// bucket goes back to a key list.
func (j *Job) Add(bucket, key string) *Job {
	j.bucket = ""
	j.inputs = append(j.inputs, input{bucket: bucket, key: key})
	return j
}

// AddWithData appends a bucket/key pair with key data handed to the first
// phase alongside the object.
func (j *Job) AddWithData(bucket, key string, keyData any) *Job {
	j.bucket = ""
	j.inputs = append(j.inputs, input{bucket: bucket, key: key, keyData: keyData, hasData: true})
	return j
}

// AddKey appends the bucket/key pair of a loaded key.
func (j *Job) AddKey(k *riakpb.Key) *Job {
	return j.Add(k.Bucket().Name(), k.Name())
}

func (j *Job) Map(fn Function, opts ...PhaseOption) *Job {
	return j.addPhase(PhaseMap, fn, opts)
}

func (j *Job) Reduce(fn Function, opts ...PhaseOption) *Job {
	return j.addPhase(PhaseReduce, fn, opts)
}

// Link adds a phase that follows the links of each input object.
func (j *Job) Link(spec WalkSpec) *Job {
	j.query = append(j.query, Phase{Type: PhaseLink, Walk: spec, Keep: spec.Keep})
	return j
}

func (j *Job) addPhase(t PhaseType, fn Function, opts []PhaseOption) *Job {
	p := Phase{Type: t, Function: fn}
	for _, opt := range opts {
		opt(&p)
	}
	j.query = append(j.query, p)
	return j
}

// Timeout sets the job timeout. It is sent in milliseconds.
func (j *Job) Timeout(d time.Duration) *Job {
	j.timeout = d
	return j
}

// Query returns a copy of the phases added so far.
func (j *Job) Query() []Phase {
	return slices.Clone(j.query)
}

func (j *Job) Validate() error {
	if j.bucket == "" && len(j.inputs) == 0 {
		return ErrNoInputs
	}
	if len(j.query) == 0 {
		return ErrNoQuery
	}
	for i, p := range j.query {
		switch p.Type {
		case PhaseMap, PhaseReduce:
			if err := p.Function.validate(); err != nil {
				return fmt.Errorf("phase %d: %w", i, err)
			}
		case PhaseLink:
		default:
			return fmt.Errorf("mapreduce: phase %d has invalid type %q", i, p.Type)
		}
	}
	return nil
}

type functionJSON struct {
	Language string `json:"language"`
	Keep     bool   `json:"keep"`
	Source   string `json:"source,omitempty"`
	Name     string `json:"name,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Key      string `json:"key,omitempty"`
	Module   string `json:"module,omitempty"`
	Function string `json:"function,omitempty"`
	Arg      any    `json:"arg,omitempty"`
}

type linkJSON struct {
	Bucket string `json:"bucket,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Keep   bool   `json:"keep"`
}

type jobJSON struct {
	Inputs  any              `json:"inputs"`
	Query   []map[string]any `json:"query"`
	Timeout int64            `json:"timeout,omitempty"`
}

func (p Phase) encode() map[string]any {
	if p.Type == PhaseLink {
		return map[string]any{string(PhaseLink): linkJSON{Bucket: p.Walk.Bucket, Tag: p.Walk.Tag, Keep: p.Keep}}
	}
	f := p.Function
	return map[string]any{string(p.Type): functionJSON{
		Language: f.language,
		Keep:     p.Keep,
		Source:   f.source,
		Name:     f.name,
		Bucket:   f.bucket,
		Key:      f.key,
		Module:   f.module,
		Function: f.function,
		Arg:      p.Arg,
	}}
}

// MarshalJSON encodes the job body. It does not validate the job.
func (j *Job) MarshalJSON() ([]byte, error) {
	doc := jobJSON{Query: make([]map[string]any, 0, len(j.query))}

	if j.bucket != "" {
		doc.Inputs = j.bucket
	} else {
		inputs := make([][]any, 0, len(j.inputs))
		for _, in := range j.inputs {
			if in.hasData {
				inputs = append(inputs, []any{in.bucket, in.key, in.keyData})
			} else {
				inputs = append(inputs, []any{in.bucket, in.key})
			}
		}
		doc.Inputs = inputs
	}

	for _, p := range j.query {
		doc.Query = append(doc.Query, p.encode())
	}
	if j.timeout > 0 {
		doc.Timeout = j.timeout.Milliseconds()
	}
	return json.Marshal(doc)
}

// Result holds the values one phase produced.
type Result struct {
	Phase  uint32
	Values []json.RawMessage
}

// Decode unmarshals every value of the phase into a slice of T.
func Decode[T any](r Result) ([]T, error) {
	out := make([]T, 0, len(r.Values))
	for _, raw := range r.Values {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("mapreduce: phase %d: %w", r.Phase, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Run validates and submits the job.
func (j *Job) Run(ctx context.Context, r Runner) ([]Result, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	body, err := j.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return RunJSON(ctx, r, body)
}

// RunJSON submits an already encoded job and groups the streamed
// results by phase, in phase order. Each response chunk is a JSON array
// whose elements are appended to the phase's values.
func RunJSON(ctx context.Context, r Runner, body []byte) ([]Result, error) {
	results, err := r.MapReduce(ctx, body, ContentType)
	if err != nil {
		return nil, err
	}

	byPhase := make(map[uint32]*Result)
	for _, res := range results {
		if len(bytes.TrimSpace(res.Response)) == 0 {
			continue
		}
		acc, ok := byPhase[res.Phase]
		if !ok {
			acc = &Result{Phase: res.Phase}
			byPhase[res.Phase] = acc
		}

		var values []json.RawMessage
		if err := json.Unmarshal(res.Response, &values); err != nil {
			if !json.Valid(res.Response) {
				return nil, fmt.Errorf("mapreduce: phase %d returned invalid JSON: %w", res.Phase, err)
			}
			values = []json.RawMessage{slices.Clone(res.Response)}
		}
		acc.Values = append(acc.Values, values...)
	}

	out := make([]Result, 0, len(byPhase))
	for _, acc := range byPhase {
		out = append(out, *acc)
	}
	slices.SortFunc(out, func(a, b Result) int { return cmp.Compare(a.Phase, b.Phase) })
	return out, nil
}

// ParseJSONC strips comments and trailing commas from a job written by
// hand and checks that it has inputs and a query.
func ParseJSONC(data []byte) ([]byte, error) {
	stripped := jsonc.ToJSON(data)

	var doc struct {
		Inputs json.RawMessage   `json:"inputs"`
		Query  []json.RawMessage `json:"query"`
	}
	if err := json.Unmarshal(stripped, &doc); err != nil {
		return nil, fmt.Errorf("parsing job: %w", err)
	}
	if len(doc.Inputs) == 0 || string(doc.Inputs) == "null" {
		return nil, ErrNoInputs
	}
	if len(doc.Query) == 0 {
		return nil, ErrNoQuery
	}
	return stripped, nil
}

// ReadFile reads a JSONC job file from disk.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	body, err := ParseJSONC(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return body, nil
}
