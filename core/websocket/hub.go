package websocket

import (
	"sync"
	"sync/atomic"
)

// Client is one live socket on an endpoint.
type Client struct {
	ID       string
	Endpoint string
	Conn     *Conn
}

// Hub tracks live clients grouped by endpoint so handlers can reach every
// socket on the same path.
type Hub struct {
	rooms sync.Map // endpoint path -> *room

	totalClients atomic.Int64
	messageCount atomic.Int64
}

type room struct {
	clients sync.Map // client id -> *Client
	size    atomic.Int64
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	TotalClients   int64
	CurrentClients int64
	MessagesSent   int64
	Rooms          int
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) room(endpoint string) *room {
	r, _ := h.rooms.LoadOrStore(endpoint, &room{})
	return r.(*room)
}

func (h *Hub) Register(client *Client) {
	r := h.room(client.Endpoint)
	if _, loaded := r.clients.LoadOrStore(client.ID, client); !loaded {
		r.size.Add(1)
		h.totalClients.Add(1)
	}
}

func (h *Hub) Unregister(client *Client) {
	r := h.room(client.Endpoint)
	if _, loaded := r.clients.LoadAndDelete(client.ID); loaded {
		r.size.Add(-1)
	}
}

// Broadcast writes one text frame to every client on endpoint except skip.
// It returns the number of clients written to.
func (h *Hub) Broadcast(endpoint string, payload []byte, skip string) int {
	sent := 0
	h.room(endpoint).clients.Range(func(key, value any) bool {
		client := value.(*Client)
		if client.ID == skip {
			return true
		}
		if err := client.Conn.WriteMessage(OpText, payload); err == nil {
			sent++
		}
		return true
	})
	h.messageCount.Add(int64(sent))
	return sent
}

// ClientCount returns the number of live clients on endpoint.
func (h *Hub) ClientCount(endpoint string) int {
	return int(h.room(endpoint).size.Load())
}

func (h *Hub) Stats() Stats {
	stats := Stats{
		TotalClients: h.totalClients.Load(),
		MessagesSent: h.messageCount.Load(),
	}
	h.rooms.Range(func(_, value any) bool {
		stats.Rooms++
		stats.CurrentClients += value.(*room).size.Load()
		return true
	})
	return stats
}

// CloseAll sends a close frame to every live client and returns how many
// were closed. Their maintenance loops end on the next read.
func (h *Hub) CloseAll() int {
	closed := 0
	h.rooms.Range(func(_, value any) bool {
		value.(*room).clients.Range(func(_, c any) bool {
			if err := c.(*Client).Conn.Close(); err == nil {
				closed++
			}
			return true
		})
		return true
	})
	return closed
}
