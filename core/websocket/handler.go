package websocket

import "encoding/json"

// Event is the envelope every text message carries in both directions.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventHandler serves one event received on an endpoint.
type EventHandler func(ctx *Context)

// Endpoint is a WebSocket path with its event handlers.
type Endpoint struct {
	Path     string
	handlers map[string]EventHandler
}

// Handler returns the handler bound to event.
func (e *Endpoint) Handler(event string) (EventHandler, bool) {
	h, ok := e.handlers[event]
	return h, ok
}

// Events returns the number of bound events.
func (e *Endpoint) Events() int {
	return len(e.handlers)
}

// Endpoints is the table of WebSocket paths. Like the HTTP router it is
// filled at startup and read-only afterwards.
type Endpoints struct {
	list  []*Endpoint
	index map[string]int
}

func NewEndpoints() *Endpoints {
	return &Endpoints{index: make(map[string]int)}
}

// Register binds handler to event on path. A path keeps the index of its
// first registration; registering an event twice replaces the handler.
func (e *Endpoints) Register(path, event string, handler EventHandler) {
	i, ok := e.index[path]
	if !ok {
		i = len(e.list)
		e.index[path] = i
		e.list = append(e.list, &Endpoint{Path: path, handlers: make(map[string]EventHandler)})
	}
	e.list[i].handlers[event] = handler
}

// Lookup returns the index of the endpoint serving path.
func (e *Endpoints) Lookup(path string) (int, bool) {
	i, ok := e.index[path]
	return i, ok
}

// Endpoint returns the endpoint at index i.
func (e *Endpoints) Endpoint(i int) *Endpoint {
	return e.list[i]
}

func (e *Endpoints) Len() int {
	return len(e.list)
}
