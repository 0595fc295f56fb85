package hub

import (
	"encoding/json"
	"sync"

	"github.com/weiawesome/trailchat/pkg/log"
)

// Hub tracks the live sockets of this instance, indexed by socket, user and
// room group.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // socketID -> client
	users   map[string]map[string]*Client // userID -> socketID -> client
	rooms   map[string]map[string]*Client // roomID -> socketID -> client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Register adds client and returns how many sockets its user now holds.
func (h *Hub) Register(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	add(h.users, client.UserID, client)

	l := log.L()
	l.Debug().Str(log.FieldSocketID, client.ID).Str(log.FieldUserID, client.UserID).Msg("client registered")
	return len(h.users[client.UserID])
}

// Unregister removes client from every index, closes its send queue and
// returns how many sockets its user still holds.
func (h *Hub) Unregister(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		for roomID := range h.rooms {
			remove(h.rooms, roomID, client.ID)
		}
		remove(h.users, client.UserID, client.ID)
		delete(h.clients, client.ID)
		close(client.Send)

		l := log.L()
		l.Debug().Str(log.FieldSocketID, client.ID).Str(log.FieldUserID, client.UserID).Msg("client unregistered")
	}
	return len(h.users[client.UserID])
}

// JoinRoom subscribes client to the room group. Callers authorize first.
func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	add(h.rooms, roomID, client)
}

// LeaveRoom unsubscribes client from the room group.
func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	remove(h.rooms, roomID, client.ID)
}

// SendTo queues v for one client. Frames for clients that are gone or too
// slow to keep up are dropped.
func (h *Hub) SendTo(client *Client, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; ok {
		enqueue(client, data)
	}
	return nil
}

// PushToUser queues data on every socket of userID.
func (h *Hub) PushToUser(userID string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, c := range h.users[userID] {
		if enqueue(c, data) {
			sent++
		}
	}
	return sent
}

// PushToRoom queues data on the sockets subscribed to roomID whose user is
// in members. A subscription alone never receives room traffic.
func (h *Hub) PushToRoom(roomID string, members []string, data []byte) int {
	allowed := make(map[string]struct{}, len(members))
	for _, id := range members {
		allowed[id] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, c := range h.rooms[roomID] {
		if _, ok := allowed[c.UserID]; !ok {
			continue
		}
		if enqueue(c, data) {
			sent++
		}
	}
	return sent
}

// UserConnections returns how many sockets userID holds here.
func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// RoomClientCount returns how many sockets are subscribed to roomID.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ClientCount returns the number of live sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every client's send queue, which makes the write pumps send
// a close frame and hang up.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.Send)
		delete(h.clients, id)
	}
	h.users = make(map[string]map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
}

func enqueue(c *Client, data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		l := log.L()
		l.Warn().Str(log.FieldSocketID, c.ID).Msg("send queue full, dropping frame")
		return false
	}
}

func add(index map[string]map[string]*Client, key string, c *Client) {
	group, ok := index[key]
	if !ok {
		group = make(map[string]*Client)
		index[key] = group
	}
	group[c.ID] = c
}

func remove(index map[string]map[string]*Client, key, clientID string) {
	if group, ok := index[key]; ok {
		delete(group, clientID)
		if len(group) == 0 {
			delete(index, key)
		}
	}
}
