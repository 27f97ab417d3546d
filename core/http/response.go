package http

// PayloadKind tells the engine what, if anything, follows the header block.
type PayloadKind uint8

const (
	// PayloadNone writes the status line and headers only.
	PayloadNone PayloadKind = iota
	// PayloadBytes writes Body after the header block.
	PayloadBytes
	// PayloadUpgrade marks a protocol switch; nothing follows the headers.
	PayloadUpgrade
	// PayloadDrop writes nothing at all.
	PayloadDrop
)

// Response is a response under construction or ready to be written
type Response struct {
	Status  Status
	Headers Headers
	Kind    PayloadKind
	Body    []byte
}

// EmptyResponse returns the "not sent" response every Context starts with.
func EmptyResponse() *Response {
	return &Response{Status: StatusNotSent}
}

// FromStatus returns a response with a status and no content.
func FromStatus(status Status) *Response {
	return &Response{Status: status}
}

// FromText returns a text/plain response.
func FromText(status Status, message string) *Response {
	return &Response{
		Status:  status,
		Headers: HeadersWithType("text/plain"),
		Kind:    PayloadBytes,
		Body:    []byte(message),
	}
}

// Drop returns a response that suppresses any reply on the wire.
func Drop() *Response {
	return &Response{Status: StatusGatewayTimeout, Kind: PayloadDrop}
}

// SetPayload replaces the body and marks it for writing.
func (r *Response) SetPayload(body []byte) {
	r.Kind = PayloadBytes
	r.Body = body
}

// IsDrop reports whether the response must not be written.
func (r *Response) IsDrop() bool {
	return r.Kind == PayloadDrop
}
