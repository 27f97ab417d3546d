package http

import (
	"bufio"
	"net"
)

// ParseOutcome classifies what a Connection made of the bytes it read.
type ParseOutcome uint8

const (
	// ParseComplete carries a full Request.
	ParseComplete ParseOutcome = iota
	// ParsePartial means more bytes are needed. Blocking engines never
	// report it; it exists for non-blocking engines.
	ParsePartial
	// ParseError is a malformed but classifiable request; answer with Status.
	ParseError
	// ParseInvalid is unrecoverable; drop the connection without a reply.
	ParseInvalid
)

func (o ParseOutcome) String() string {
	switch o {
	case ParseComplete:
		return "complete"
	case ParsePartial:
		return "partial"
	case ParseError:
		return "error"
	default:
		return "invalid"
	}
}

// ParseResult is the outcome of Connection.Parse
type ParseResult struct {
	Outcome ParseOutcome
	Request *Request
	Status  Status
}

// Complete wraps a parsed request.
func Complete(req *Request) ParseResult {
	return ParseResult{Outcome: ParseComplete, Request: req}
}

// Failed classifies a malformed request with the status to answer.
func Failed(status Status) ParseResult {
	return ParseResult{Outcome: ParseError, Status: status}
}

// Invalid reports an unrecoverable request.
func Invalid() ParseResult {
	return ParseResult{Outcome: ParseInvalid}
}

// Connection is one accepted client as seen by a protocol engine.
type Connection interface {
	// Parse reads one request from the stream.
	Parse() ParseResult
	// Respond serializes res onto the stream. Drop responses write nothing.
	Respond(res *Response) error
	// Disconnect shuts down both directions and releases the socket.
	Disconnect() error
	// RemoteIP is the peer address.
	RemoteIP() net.IP
	// Hijack hands the raw stream, including buffered bytes, to another
	// protocol. The Connection must not be used afterwards.
	Hijack() (net.Conn, *bufio.ReadWriter)
}

// Engine wraps accepted sockets into protocol connections.
type Engine interface {
	Accept(conn net.Conn) Connection
}

func remoteIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case nil:
		return nil
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return net.ParseIP(addr.String())
	}
	return net.ParseIP(host)
}
