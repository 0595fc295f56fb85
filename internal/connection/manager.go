package connection

import (
	"context"
	"slices"
	"sync"

	"github.com/weiawesome/trailchat/internal/audit"
	"github.com/weiawesome/trailchat/internal/dispatcher"
	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/internal/hub"
	"github.com/weiawesome/trailchat/pkg/log"
)

// Presence is the part of the presence tracker the manager drives.
type Presence interface {
	SetOnline(ctx context.Context, userID string)
	SetOffline(ctx context.Context, userID string)
}

// Rooms answers room membership.
type Rooms interface {
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
}

// Sender accepts messages for delivery.
type Sender interface {
	Send(ctx context.Context, req dispatcher.SendRequest) (*domain.Message, error)
}

// Manager binds authenticated sockets to users and routes their events.
type Manager struct {
	hub      *hub.Hub
	presence Presence
	rooms    Rooms
	sender   Sender
	router   *Router

	mu     sync.Mutex
	states map[string]State
}

func NewManager(h *hub.Hub, presence Presence, rooms Rooms, sender Sender) *Manager {
	m := &Manager{
		hub:      h,
		presence: presence,
		rooms:    rooms,
		sender:   sender,
		states:   make(map[string]State),
	}

	r := NewRouter()
	r.Handle(domain.EventJoinRoom, m.handleJoinRoom)
	r.Handle(domain.EventLeaveRoom, m.handleLeaveRoom)
	r.Handle(domain.EventSendMessage, m.handleSendMessage)
	r.Handle(domain.EventPing, m.handlePing)
	m.router = r
	return m
}

// Connect binds an already authenticated client, acknowledges it and marks
// its user online, which replays the user's pending backlog.
func (m *Manager) Connect(ctx context.Context, c *hub.Client) {
	m.hub.Register(c)

	m.mu.Lock()
	m.states[c.ID] = State{SocketID: c.ID, UserID: c.UserID, Username: c.Username}
	m.mu.Unlock()

	m.send(ctx, c, &domain.ConnectedEvent{Type: domain.EventConnected, UserID: c.UserID})
	audit.Log(ctx, audit.ActionConnect, c.UserID, "websocket connected")

	m.presence.SetOnline(ctx, c.UserID)
}

// HandleFrame runs one inbound frame and applies the resulting room
// subscriptions to the hub.
func (m *Manager) HandleFrame(ctx context.Context, c *hub.Client, frame []byte) {
	m.mu.Lock()
	st, ok := m.states[c.ID]
	m.mu.Unlock()
	if !ok {
		return
	}

	next, out := m.router.Dispatch(ctx, st, frame)

	for _, roomID := range next.Rooms {
		if !st.InRoom(roomID) {
			m.hub.JoinRoom(c, roomID)
		}
	}
	for _, roomID := range st.Rooms {
		if !next.InRoom(roomID) {
			m.hub.LeaveRoom(c, roomID)
		}
	}

	m.mu.Lock()
	if _, ok := m.states[c.ID]; ok {
		m.states[c.ID] = next
	}
	m.mu.Unlock()

	for _, ev := range out {
		m.send(ctx, c, ev)
	}
}

// Disconnect unbinds the client. The user goes offline when this was their
// last socket on this instance.
func (m *Manager) Disconnect(ctx context.Context, c *hub.Client) {
	remaining := m.hub.Unregister(c)

	m.mu.Lock()
	delete(m.states, c.ID)
	m.mu.Unlock()

	audit.Log(ctx, audit.ActionDisconnect, c.UserID, "websocket disconnected")

	if remaining > 0 {
		return
	}
	m.presence.SetOffline(ctx, c.UserID)

	// A socket for the same user may have registered while going offline.
	if m.hub.UserConnections(c.UserID) > 0 {
		m.presence.SetOnline(ctx, c.UserID)
	}
}

// State returns a copy of the socket's state.
func (m *Manager) State(socketID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[socketID]
	st.Rooms = slices.Clone(st.Rooms)
	return st, ok
}

func (m *Manager) send(ctx context.Context, c *hub.Client, v any) {
	if err := m.hub.SendTo(c, v); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldSocketID, c.ID).Msg("failed to encode outbound event")
	}
}
