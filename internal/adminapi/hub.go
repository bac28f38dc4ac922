package adminapi

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	MsgServerList = "server_list"
	MsgEvent      = "event"

	clientBuffer = 64
)

// Message is one item of the /events stream.
type Message struct {
	Type    string   `json:"type"`
	Servers []string `json:"servers,omitempty"`
	Name    string   `json:"name,omitempty"`
	Args    []string `json:"args,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub is the application sink. It remembers the latest server list and
// fans every notification out to websocket subscribers. Slow subscribers
// are disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	servers []string
	log     zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		log:     logger,
	}
}

// ServerListChanged implements discovery.ListSink.
func (h *Hub) ServerListChanged(names []string) {
	h.mu.Lock()
	h.servers = append([]string(nil), names...)
	h.mu.Unlock()
	h.log.Info().Strs("servers", names).Msg("adminapi.Hub server list")
	h.broadcast(Message{Type: MsgServerList, Servers: names})
}

// Event implements session.EventSink.
func (h *Hub) Event(name string, args []string) {
	h.log.Info().Str("event", name).Strs("args", args).Msg("adminapi.Hub event")
	h.broadcast(Message{Type: MsgEvent, Name: name, Args: args})
}

// Servers returns the last list delivered to the hub.
func (h *Hub) Servers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.servers...)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add registers conn and queues the current server list as its first
// message.
func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	h.register(c)
	go c.writePump()
	h.log.Debug().Str("client", c.id).Msg("adminapi.Hub client connected")
	return c
}

// register inserts c and queues the snapshot under the same lock that
// guards closing c.send.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	snapshot := Message{Type: MsgServerList, Servers: append([]string{}, h.servers...)}
	if data, err := json.Marshal(snapshot); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked closes c.send once; h.mu must be held for writing.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.log.Debug().Str("client", c.id).Msg("adminapi.Hub client removed")
	}
}

// broadcast sends while holding the write lock, so no send can race with
// remove closing the channel. Sends never block.
func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn().Err(err).Msg("adminapi.Hub.broadcast marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("client", c.id).Msg("adminapi.Hub.broadcast client too slow, disconnecting")
			h.dropLocked(c)
		}
	}
}
