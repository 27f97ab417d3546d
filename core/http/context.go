package http

import (
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/DimaCrafter/photonyx/core/db"
	"github.com/DimaCrafter/photonyx/core/validate"
)

// Context is the per-request state a route handler works with.
type Context struct {
	Request  *Request
	Response *Response
	Params   map[string]string

	addr      net.IP
	databases *db.Registry
	query     map[string]string
}

var contextPool = sync.Pool{
	New: func() any {
		return &Context{}
	},
}

// AcquireContext takes a Context from the pool with a fresh "not sent"
// response attached.
func AcquireContext(conn Connection, req *Request, params map[string]string, databases *db.Registry) *Context {
	ctx := contextPool.Get().(*Context)
	ctx.Request = req
	ctx.Response = EmptyResponse()
	ctx.Params = params
	ctx.addr = conn.RemoteIP()
	ctx.databases = databases
	ctx.query = nil
	return ctx
}

// ReleaseContext returns ctx to the pool. It must not be used afterwards.
func ReleaseContext(ctx *Context) {
	*ctx = Context{}
	contextPool.Put(ctx)
}

// Addr is the peer address.
func (c *Context) Addr() net.IP {
	return c.addr
}

// Header returns a request header. Names are stored lower-case.
func (c *Context) Header(name string) (string, bool) {
	return c.Request.Headers.Lookup(name)
}

// HeaderDefault returns a request header or def when it is absent.
func (c *Context) HeaderDefault(name, def string) string {
	if value, ok := c.Request.Headers.Lookup(name); ok {
		return value
	}
	return def
}

// SetHeader sets a response header.
func (c *Context) SetHeader(name, value string) {
	c.Response.Headers.Set(name, value)
}

// Param returns a path variable.
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// Query returns the raw query string.
func (c *Context) Query() string {
	return c.Request.Query
}

// QueryValue returns one query-string value.
func (c *Context) QueryValue(key string) string {
	if c.query == nil {
		c.query = c.Request.QueryValues()
	}
	return c.query[key]
}

// Database returns the connection registered under key, or nil.
func (c *Context) Database(key string) *db.Handle {
	if c.databases == nil {
		return nil
	}
	return c.databases.Handle(key)
}

// Model returns the metadata a module registered for name.
func (c *Context) Model(name string) (*db.Model, bool) {
	if c.databases == nil {
		return nil, false
	}
	return c.databases.Model(name)
}

// JSON responds 200 with v encoded as JSON.
func (c *Context) JSON(v any) Outcome {
	return JSONStatus[Done](c, v, StatusOK)
}

// Text responds 200 with a plain-text message.
func (c *Context) Text(message string) Outcome {
	return c.TextStatus(message, StatusOK)
}

// TextStatus responds with a plain-text message and status.
func (c *Context) TextStatus(message string, status Status) Outcome {
	c.Response.Status = status
	c.Response.Headers.SetDefault("content-type", "text/plain")
	c.Response.SetPayload([]byte(message))
	return Continue[Done]()
}

// Redirect responds 307 with a location header and no body.
func (c *Context) Redirect(target string) Outcome {
	c.Response.Status = StatusTemporaryRedirect
	c.Response.Headers.Set("location", target)
	c.Response.Kind = PayloadNone
	c.Response.Body = nil
	return Continue[Done]()
}

// Drop suppresses the reply entirely.
func (c *Context) Drop() Outcome {
	return Replace[Done](Drop())
}

// JSONStatus encodes v onto the Context response and stops the handler with
// Continue. Values that cannot be encoded produce a 500.
func JSONStatus[T any](c *Context, v any, status Status) Result[T] {
	body, err := json.Marshal(v)
	if err != nil {
		return Replace[T](FromText(StatusInternalServerError, "failed to encode response"))
	}

	c.Response.Status = status
	c.Response.Headers.SetDefault("content-type", "application/json")
	c.Response.SetPayload(body)
	return Continue[T]()
}

// ValidateJSON decodes and validates the request body as a T. Failures
// replace the response with a 400 describing the rejected field.
func ValidateJSON[T any](c *Context) Result[T] {
	payload, err := validate.JSON[T](c.Request.Body)
	if err != nil {
		var verr *validate.ValidationError
		if !errors.As(err, &verr) {
			verr = &validate.ValidationError{Message: err.Error(), Path: []string{}}
		}

		res := &Response{
			Status:  StatusBadRequest,
			Headers: HeadersWithType("application/json"),
		}
		body, _ := json.Marshal(verr.Body())
		res.SetPayload(body)
		return Replace[T](res)
	}
	return Value(payload)
}
