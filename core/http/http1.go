package http

import (
	"bufio"
	"net"

	"github.com/DimaCrafter/photonyx/core/pools"
)

const (
	readBufferSize  = 8192
	writeBufferSize = 4096
)

// HTTP1 is the HTTP/1.x protocol engine.
type HTTP1 struct {
	// MaxBodySize caps request bodies in bytes. Zero disables the cap.
	MaxBodySize int
}

// Accept wraps a socket into an HTTP/1.x connection.
func (e HTTP1) Accept(conn net.Conn) Connection {
	return NewHTTP1Conn(conn, e.MaxBodySize)
}

// HTTP1Conn is a blocking HTTP/1.x connection.
type HTTP1Conn struct {
	conn    net.Conn
	rw      *bufio.ReadWriter
	ip      net.IP
	minor   byte
	maxBody int
}

// NewHTTP1Conn wraps conn with buffered reading and writing.
func NewHTTP1Conn(conn net.Conn, maxBody int) *HTTP1Conn {
	return &HTTP1Conn{
		conn: conn,
		rw: bufio.NewReadWriter(
			bufio.NewReaderSize(conn, readBufferSize),
			bufio.NewWriterSize(conn, writeBufferSize),
		),
		ip:      remoteIP(conn.RemoteAddr()),
		maxBody: maxBody,
	}
}

func (c *HTTP1Conn) Parse() ParseResult {
	result, minor := parseRequest(c.rw.Reader, c.maxBody)
	if minor != 0 {
		c.minor = minor
	}
	return result
}

func (c *HTTP1Conn) Respond(res *Response) error {
	if res.IsDrop() {
		return nil
	}

	buf := pools.GetBuffer(256 + len(res.Body))
	defer pools.PutBuffer(buf)
	*buf = AppendResponse(*buf, c.versionMinor(), res)

	if _, err := c.rw.Write(*buf); err != nil {
		return err
	}
	return c.rw.Flush()
}

func (c *HTTP1Conn) Disconnect() error {
	flushErr := c.rw.Flush()
	if err := shutdown(c.conn); err != nil {
		c.conn.Close()
		return err
	}
	if err := c.conn.Close(); err != nil {
		return err
	}
	return flushErr
}

func (c *HTTP1Conn) RemoteIP() net.IP {
	return c.ip
}

func (c *HTTP1Conn) Hijack() (net.Conn, *bufio.ReadWriter) {
	return c.conn, c.rw
}

// versionMinor falls back to '1' when the request line never got that far.
func (c *HTTP1Conn) versionMinor() byte {
	if c.minor == 0 {
		return '1'
	}
	return c.minor
}

// AppendResponse serializes res as an HTTP/1.<minor> response. Drop
// responses append nothing.
func AppendResponse(b []byte, minor byte, res *Response) []byte {
	if res.IsDrop() {
		return b
	}

	b = append(b, versionPrefix...)
	b = append(b, minor, ' ')
	b = append(b, res.Status.Code()...)
	b = append(b, ' ')
	b = append(b, res.Status.Reason()...)

	for _, header := range res.Headers.All() {
		b = append(b, "\r\n"...)
		b = append(b, header.Name...)
		b = append(b, ": "...)
		b = append(b, header.Value...)
	}

	b = append(b, "\r\n\r\n"...)
	if res.Kind == PayloadBytes {
		b = append(b, res.Body...)
	}
	return b
}
