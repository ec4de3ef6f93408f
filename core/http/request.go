package http

// CheckState is the position of the request machine within one request
type CheckState int

const (
	StateRequestLine CheckState = iota
	StateHeader
	StateContent
)

func (s CheckState) String() string {
	switch s {
	case StateRequestLine:
		return "request-line"
	case StateHeader:
		return "header"
	case StateContent:
		return "content"
	}
	return "unknown"
}

// LineStatus is the outcome of scanning for one CRLF-terminated line
type LineStatus int

const (
	LineOK LineStatus = iota
	LineBad
	LineOpen
)

// Code is the result of parsing and resolving a request
type Code int

const (
	// NoRequest: the request is incomplete, more bytes are needed
	NoRequest Code = iota
	// GetRequest: a complete request was parsed
	GetRequest
	BadRequest
	NoResource
	ForbiddenRequest
	// FileRequest: the target file is ready to be sent
	FileRequest
	InternalError
)

func (c Code) String() string {
	switch c {
	case NoRequest:
		return "no-request"
	case GetRequest:
		return "get-request"
	case BadRequest:
		return "bad-request"
	case NoResource:
		return "no-resource"
	case ForbiddenRequest:
		return "forbidden"
	case FileRequest:
		return "file-request"
	case InternalError:
		return "internal-error"
	}
	return "unknown"
}

// Request holds the fields the parser extracts from one request
type Request struct {
	Method        string
	URL           string
	Version       string
	Host          string
	Connection    string
	ContentLength int64
	// Linger is set when the client asked for keep-alive
	Linger bool
	Body   []byte
}

// Reset clears the request for the next cycle
func (r *Request) Reset() {
	*r = Request{}
}
