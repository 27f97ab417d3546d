package http

import (
	"strconv"
	"strings"
)

// Method is the closed set of request methods the engine accepts.
type Method uint8

const (
	MethodGET Method = iota + 1
	MethodPOST
	MethodOPTIONS
)

// ParseMethod maps a request-line token onto a Method.
func ParseMethod(token string) (Method, bool) {
	switch token {
	case "GET":
		return MethodGET, true
	case "POST":
		return MethodPOST, true
	case "OPTIONS":
		return MethodOPTIONS, true
	default:
		return 0, false
	}
}

func (m Method) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodPOST:
		return "POST"
	case MethodOPTIONS:
		return "OPTIONS"
	default:
		return "UNKNOWN"
	}
}

// HasBody reports whether requests with this method carry a body.
func (m Method) HasBody() bool {
	return m == MethodPOST
}

// Request is a parsed HTTP request
type Request struct {
	Method  Method
	Path    string
	Query   string
	Headers Headers
	Body    []byte
}

// NewRequest splits rawURL on the first '?' into path and query string.
func NewRequest(method Method, rawURL string) *Request {
	path, query, _ := strings.Cut(rawURL, "?")
	return &Request{
		Method: method,
		Path:   path,
		Query:  query,
	}
}

// ContentLength returns the declared body length when it parses as an
// unsigned integer.
func (r *Request) ContentLength() (int, bool) {
	raw, ok := r.Headers.Lookup("content-length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, strconv.IntSize-1)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// QueryValues parses the query string into key/value pairs. Keys without '='
// map to an empty value. Values are not percent-decoded.
func (r *Request) QueryValues() map[string]string {
	if r.Query == "" {
		return nil
	}

	values := make(map[string]string)
	for _, pair := range strings.Split(r.Query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		values[key] = value
	}
	return values
}
