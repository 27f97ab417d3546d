// Package cors computes cross-origin response headers and classifies
// protocol upgrade requests.
package cors

import "github.com/DimaCrafter/photonyx/core/http"

const (
	HeaderAllowOrigin   = "Access-Control-Allow-Origin"
	HeaderAllowMethods  = "Access-Control-Allow-Methods"
	HeaderAllowHeaders  = "Access-Control-Allow-Headers"
	HeaderExposeHeaders = "Access-Control-Expose-Headers"
	HeaderMaxAge        = "Access-Control-Max-Age"
)

// Policy is the configured CORS behaviour. List values are already joined
// with commas.
type Policy struct {
	// Origin is used when the request carries an empty Origin header.
	Origin  string
	Methods string
	Headers string
	MaxAge  string
}

// ApplyPreflight adds the headers answering an OPTIONS request.
func (p Policy) ApplyPreflight(req *http.Request, res *http.Response) {
	res.Headers.Set(HeaderAllowMethods, p.Methods)
	res.Headers.Set(HeaderAllowHeaders, p.Headers)
	res.Headers.Set(HeaderMaxAge, p.MaxAge)
	p.applyOrigin(req, res)
}

// ApplyNormal adds the headers every non-preflight response carries.
func (p Policy) ApplyNormal(req *http.Request, res *http.Response) {
	res.Headers.Set(HeaderExposeHeaders, p.Headers)
	p.applyOrigin(req, res)
}

// applyOrigin echoes the request origin, "*" when there is none.
func (p Policy) applyOrigin(req *http.Request, res *http.Response) {
	origin, ok := req.Headers.Lookup("origin")
	if !ok {
		origin = "*"
	}
	if origin == "" {
		origin = p.Origin
	}
	res.Headers.Set(HeaderAllowOrigin, origin)
}

// IsConnectionUpgrade reports a "Connection: Upgrade" request. The match is
// exact.
func IsConnectionUpgrade(req *http.Request) bool {
	value, ok := req.Headers.Lookup("connection")
	return ok && value == "Upgrade"
}

// IsWebSocketUpgrade reports an "Upgrade: websocket" request.
func IsWebSocketUpgrade(req *http.Request) bool {
	value, ok := req.Headers.Lookup("upgrade")
	return ok && value == "websocket"
}
