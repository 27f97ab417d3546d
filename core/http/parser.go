package http

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"golang.org/x/net/http/httpguts"
)

const (
	versionPrefix = "HTTP/1."
	bodyChunkSize = 1024
)

var (
	// ErrBodyTooLarge is reported when a body exceeds the configured cap.
	ErrBodyTooLarge = errors.New("request body too large")

	errToken = errors.New("token not terminated")
)

// parseRequest reads one HTTP/1.x request, failing fast on the first mismatch.
// It returns the version-minor character alongside the result.
func parseRequest(r *bufio.Reader, maxBody int) (ParseResult, byte) {
	token, err := readToken(r, ' ')
	if err != nil {
		return Invalid(), 0
	}

	method, ok := ParseMethod(token)
	if !ok {
		return Failed(StatusMethodNotAllowed), 0
	}

	rawURL, err := readToken(r, ' ')
	if err != nil {
		return Failed(StatusRequestEntityTooLarge), 0
	}

	if !expect(r, versionPrefix) {
		return Invalid(), 0
	}
	minor, err := r.ReadByte()
	if err != nil || !expect(r, "\r") {
		return Invalid(), 0
	}

	req := NewRequest(method, rawURL)
	for {
		if !expect(r, "\n") {
			return Invalid(), minor
		}

		next, err := r.Peek(2)
		if err != nil {
			return Invalid(), minor
		}
		if next[0] == '\r' && next[1] == '\n' {
			r.Discard(2)
			break
		}

		name, err := readToken(r, ':')
		if err != nil || !httpguts.ValidHeaderFieldName(name) {
			return Failed(StatusRequestHeaderFieldsTooLarge), minor
		}
		value, err := readToken(r, '\r')
		if err != nil || !httpguts.ValidHeaderFieldValue(value) {
			return Failed(StatusRequestHeaderFieldsTooLarge), minor
		}

		req.Headers.SetNormal(name, value)
	}

	if req.Method.HasBody() {
		if err := readBody(r, req, maxBody); err != nil {
			if errors.Is(err, ErrBodyTooLarge) {
				return Failed(StatusRequestEntityTooLarge), minor
			}
			return Invalid(), minor
		}
	}

	return Complete(req), minor
}

// readBody reads exactly Content-Length bytes when declared, otherwise keeps
// reading fixed-size chunks until a short read.
func readBody(r *bufio.Reader, req *Request, maxBody int) error {
	if length, ok := req.ContentLength(); ok {
		if maxBody > 0 && length > maxBody {
			return ErrBodyTooLarge
		}
		req.Body = make([]byte, length)
		_, err := io.ReadFull(r, req.Body)
		return err
	}

	var chunk [bodyChunkSize]byte
	for {
		n, err := r.Read(chunk[:])
		if n == 0 {
			if err != nil && err != io.EOF {
				return err
			}
			return nil
		}

		req.Body = append(req.Body, chunk[:n]...)
		if maxBody > 0 && len(req.Body) > maxBody {
			return ErrBodyTooLarge
		}
		if n < len(chunk) {
			return nil
		}
	}
}

// readToken returns the bytes before delim and consumes delim. Tokens longer
// than the reader's buffer are rejected.
func readToken(r *bufio.Reader, delim byte) (string, error) {
	line, err := r.ReadSlice(delim)
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", errToken
		}
		return "", err
	}
	return string(line[:len(line)-1]), nil
}

func expect(r *bufio.Reader, literal string) bool {
	got, err := r.Peek(len(literal))
	if err != nil || !bytes.Equal(got, []byte(literal)) {
		return false
	}
	r.Discard(len(literal))
	return true
}
