package http

import "strconv"

// Status is an HTTP status code. The zero value means no response has been
// produced yet.
type Status int

const (
	StatusNotSent Status = 0

	StatusSwitchingProtocols Status = 101

	StatusOK        Status = 200
	StatusCreated   Status = 201
	StatusNoContent Status = 204

	StatusMovedPermanently  Status = 301
	StatusFound             Status = 302
	StatusTemporaryRedirect Status = 307

	StatusBadRequest                  Status = 400
	StatusUnauthorized                Status = 401
	StatusForbidden                   Status = 403
	StatusNotFound                    Status = 404
	StatusMethodNotAllowed            Status = 405
	StatusRequestEntityTooLarge       Status = 413
	StatusTooManyRequests             Status = 429
	StatusRequestHeaderFieldsTooLarge Status = 431

	StatusInternalServerError Status = 500
	StatusNotImplemented      Status = 501
	StatusServiceUnavailable  Status = 503
	StatusGatewayTimeout      Status = 504
)

// Reason returns the reason phrase written on the status line.
func (s Status) Reason() string {
	switch s {
	case StatusSwitchingProtocols:
		return "Switching Protocols"
	case StatusNotSent, StatusOK:
		return "OK"
	case StatusCreated:
		return "Created"
	case StatusNoContent:
		return "No Content"
	case StatusMovedPermanently:
		return "Moved Permanently"
	case StatusFound:
		return "Found"
	case StatusTemporaryRedirect:
		return "Temporary Redirect"
	case StatusBadRequest:
		return "Bad Request"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	case StatusRequestEntityTooLarge:
		return "Request Entity Too Large"
	case StatusTooManyRequests:
		return "Too Many Requests"
	case StatusRequestHeaderFieldsTooLarge:
		return "Request Header Fields Too Large"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusNotImplemented:
		return "Not Implemented"
	case StatusServiceUnavailable:
		return "Service Unavailable"
	case StatusGatewayTimeout:
		return "Gateway Timeout"
	default:
		return "Unknown"
	}
}

// Code returns the three-digit code as written on the wire. A response that
// was never filled in goes out as 200.
func (s Status) Code() string {
	if s == StatusNotSent {
		return "200"
	}
	return strconv.Itoa(int(s))
}

func (s Status) String() string {
	return s.Code() + " " + s.Reason()
}
