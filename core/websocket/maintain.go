package websocket

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DimaCrafter/photonyx/core/http"
)

// Context is what an event handler receives.
type Context struct {
	// Event is the name of the received event.
	Event string
	// Data is the raw JSON payload of the event.
	Data    json.RawMessage
	Request *http.Request

	client *Client
	hub    *Hub
}

// ID identifies the socket for its lifetime.
func (c *Context) ID() string {
	return c.client.ID
}

// Bind decodes the event payload into v.
func (c *Context) Bind(v any) error {
	if len(c.Data) == 0 {
		return errors.New("websocket: event has no data")
	}
	return json.Unmarshal(c.Data, v)
}

// JSON sends an event back to this socket.
func (c *Context) JSON(event string, data any) error {
	payload, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	return c.client.Conn.WriteMessage(OpText, payload)
}

// Text sends an event carrying a string back to this socket.
func (c *Context) Text(event, message string) error {
	return c.JSON(event, message)
}

// Broadcast sends an event to every other socket on the same endpoint.
func (c *Context) Broadcast(event string, data any) (int, error) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		return 0, err
	}
	return c.hub.Broadcast(c.client.Endpoint, payload, c.client.ID), nil
}

// Close ends the connection.
func (c *Context) Close() error {
	return c.client.Conn.Close()
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Name: event, Data: raw})
}

// Maintainer runs established WebSocket connections.
type Maintainer struct {
	endpoints      *Endpoints
	hub            *Hub
	logger         *zap.Logger
	maxMessageSize int64
}

func NewMaintainer(endpoints *Endpoints, hub *Hub, logger *zap.Logger) *Maintainer {
	return &Maintainer{
		endpoints:      endpoints,
		hub:            hub,
		logger:         logger.Named("websocket"),
		maxMessageSize: defaultMaxMessageSize,
	}
}

// SetMaxMessageSize caps the size of a reassembled message.
func (m *Maintainer) SetMaxMessageSize(size int64) {
	m.maxMessageSize = size
}

// Hub returns the client registry.
func (m *Maintainer) Hub() *Hub {
	return m.hub
}

// Maintain serves a connection after a successful handshake until the peer
// closes it or a protocol error occurs. It blocks and always closes conn.
func (m *Maintainer) Maintain(conn net.Conn, rw *bufio.ReadWriter, req *http.Request, index int) {
	endpoint := m.endpoints.Endpoint(index)
	ws := NewConn(conn, rw)
	ws.SetMaxMessageSize(m.maxMessageSize)

	client := &Client{ID: uuid.NewString(), Endpoint: endpoint.Path, Conn: ws}
	logger := m.logger.With(zap.String("socket", client.ID), zap.String("endpoint", endpoint.Path))

	m.hub.Register(client)
	defer func() {
		m.hub.Unregister(client)
		ws.Close()
		logger.Debug("socket closed")
	}()
	logger.Debug("socket opened")

	for {
		msg, err := ws.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("socket read failed", zap.Error(err))
			}
			return
		}

		if msg.OpCode != OpText {
			logger.Debug("binary message ignored", zap.Int("size", len(msg.Payload)))
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Payload, &event); err != nil || event.Name == "" {
			logger.Debug("malformed event", zap.Error(err))
			continue
		}

		handler, ok := endpoint.Handler(event.Name)
		if !ok {
			logger.Debug("unknown event", zap.String("event", event.Name))
			continue
		}

		handler(&Context{
			Event:   event.Name,
			Data:    event.Data,
			Request: req,
			client:  client,
			hub:     m.hub,
		})
	}
}
