package wire

import "strconv"

// Code is the one-byte message code that tags every frame.
type Code byte

// Message codes. Requests are odd, their responses are the next even code.
// Code 0 is reserved for error frames sent by the server in place of any
// response.
const (
	CodeErrorResp Code = 0

	CodePingReq  Code = 1
	CodePingResp Code = 2

	CodeGetClientIDReq  Code = 3
	CodeGetClientIDResp Code = 4

	CodeSetClientIDReq  Code = 5
	CodeSetClientIDResp Code = 6

	CodeGetServerInfoReq  Code = 7
	CodeGetServerInfoResp Code = 8

	CodeGetReq  Code = 9
	CodeGetResp Code = 10

	CodePutReq  Code = 11
	CodePutResp Code = 12

	CodeDelReq  Code = 13
	CodeDelResp Code = 14

	CodeListBucketsReq  Code = 15
	CodeListBucketsResp Code = 16

	CodeListKeysReq  Code = 17
	CodeListKeysResp Code = 18

	CodeGetBucketReq  Code = 19
	CodeGetBucketResp Code = 20

	CodeSetBucketReq  Code = 21
	CodeSetBucketResp Code = 22

	CodeMapRedReq  Code = 23
	CodeMapRedResp Code = 24
)

// Entry describes one request/response pairing of the catalog.
type Entry struct {
	// Name is the operation name, e.g. "GET" or "LIST_KEYS".
	Name string

	// Request is the code sent by the client.
	Request Code

	// Response is the only code, besides CodeErrorResp, the server may answer with.
	Response Code

	// HasPayload reports whether the response carries a message body.
	// Ack-only operations (PING, SET_CLIENT_ID, DEL, SET_BUCKET) answer with
	// an empty frame.
	HasPayload bool

	// DoneField is the protobuf field number of the response's completion
	// marker. Zero means the response is a single frame.
	DoneField int32
}

// Streaming reports whether the response may span several frames and ends
// with a frame whose completion marker is set.
func (e Entry) Streaming() bool {
	return e.DoneField != 0
}

// catalog is indexed by request code. It is never mutated.
var catalog = [...]Entry{
	CodePingReq:          {Name: "PING", Request: CodePingReq, Response: CodePingResp},
	CodeGetClientIDReq:   {Name: "GET_CLIENT_ID", Request: CodeGetClientIDReq, Response: CodeGetClientIDResp, HasPayload: true},
	CodeSetClientIDReq:   {Name: "SET_CLIENT_ID", Request: CodeSetClientIDReq, Response: CodeSetClientIDResp},
	CodeGetServerInfoReq: {Name: "GET_SERVER_INFO", Request: CodeGetServerInfoReq, Response: CodeGetServerInfoResp, HasPayload: true},
	CodeGetReq:           {Name: "GET", Request: CodeGetReq, Response: CodeGetResp, HasPayload: true},
	CodePutReq:           {Name: "PUT", Request: CodePutReq, Response: CodePutResp, HasPayload: true},
	CodeDelReq:           {Name: "DEL", Request: CodeDelReq, Response: CodeDelResp},
	CodeListBucketsReq:   {Name: "LIST_BUCKETS", Request: CodeListBucketsReq, Response: CodeListBucketsResp, HasPayload: true, DoneField: 2},
	CodeListKeysReq:      {Name: "LIST_KEYS", Request: CodeListKeysReq, Response: CodeListKeysResp, HasPayload: true, DoneField: 2},
	CodeGetBucketReq:     {Name: "GET_BUCKET", Request: CodeGetBucketReq, Response: CodeGetBucketResp, HasPayload: true},
	CodeSetBucketReq:     {Name: "SET_BUCKET", Request: CodeSetBucketReq, Response: CodeSetBucketResp},
	CodeMapRedReq:        {Name: "MAP_REDUCE", Request: CodeMapRedReq, Response: CodeMapRedResp, HasPayload: true, DoneField: 3},
}

// Lookup returns the catalog entry for a request code.
func Lookup(request Code) (Entry, bool) {
	if int(request) >= len(catalog) {
		return Entry{}, false
	}
	e := catalog[request]
	if e.Name == "" {
		return Entry{}, false
	}
	return e, true
}

// ExpectedResponse returns the response code paired with a request code.
func ExpectedResponse(request Code) (Code, bool) {
	e, ok := Lookup(request)
	return e.Response, ok
}

// Entries returns a copy of every catalog entry in request code order.
func Entries() []Entry {
	entries := make([]Entry, 0, len(catalog)/2)
	for _, e := range catalog {
		if e.Name != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

// IsRequest reports whether c is a request code known to the catalog.
func (c Code) IsRequest() bool {
	_, ok := Lookup(c)
	return ok
}

func (c Code) String() string {
	if c == CodeErrorResp {
		return "ERROR_RESP"
	}
	if e, ok := Lookup(c); ok {
		return e.Name + "_REQ"
	}
	if c > 0 && c%2 == 0 {
		if e, ok := Lookup(c - 1); ok {
			return e.Name + "_RESP"
		}
	}
	return "CODE_" + strconv.Itoa(int(c))
}
