package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/weiawesome/trailchat/internal/audit"
	"github.com/weiawesome/trailchat/internal/dispatcher"
	"github.com/weiawesome/trailchat/internal/domain"
)

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: malformed payload", domain.ErrValidation)
	}
	return nil
}

func (m *Manager) handleJoinRoom(ctx context.Context, st State, payload json.RawMessage) (State, []any, error) {
	var p domain.RoomPayload
	if err := decode(payload, &p); err != nil {
		return st, nil, err
	}
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		return st, nil, fmt.Errorf("%w: roomId is required", domain.ErrValidation)
	}

	ok, err := m.rooms.IsParticipant(ctx, roomID, st.UserID)
	if err != nil {
		return st, nil, err
	}
	if !ok {
		return st, nil, fmt.Errorf("%w: not a participant of room %s", domain.ErrAuthorizationDenied, roomID)
	}

	if !st.InRoom(roomID) {
		st.Rooms = append(slices.Clone(st.Rooms), roomID)
	}
	audit.LogTarget(ctx, audit.ActionJoinRoom, st.UserID, roomID, "socket joined room")
	return st, []any{&domain.RoomEvent{Type: domain.EventJoinedRoom, RoomID: roomID}}, nil
}

func (m *Manager) handleLeaveRoom(ctx context.Context, st State, payload json.RawMessage) (State, []any, error) {
	var p domain.RoomPayload
	if err := decode(payload, &p); err != nil {
		return st, nil, err
	}
	if p.RoomID == "" {
		return st, nil, fmt.Errorf("%w: roomId is required", domain.ErrValidation)
	}

	st.Rooms = slices.DeleteFunc(slices.Clone(st.Rooms), func(id string) bool { return id == p.RoomID })
	return st, []any{&domain.RoomEvent{Type: domain.EventLeftRoom, RoomID: p.RoomID}}, nil
}

func (m *Manager) handleSendMessage(ctx context.Context, st State, payload json.RawMessage) (State, []any, error) {
	var p domain.SendMessagePayload
	if err := decode(payload, &p); err != nil {
		return st, nil, err
	}

	msg, err := m.sender.Send(ctx, dispatcher.SendRequest{
		SenderID:       st.UserID,
		SenderUsername: st.Username,
		RecipientID:    p.RecipientID,
		RoomID:         p.RoomID,
		Content:        p.Content,
		Type:           p.MessageType,
	})
	if err != nil {
		return st, nil, err
	}
	return st, []any{&domain.MessageSentEvent{Type: domain.EventMessageSent, MessageID: msg.ID}}, nil
}

func (m *Manager) handlePing(_ context.Context, st State, _ json.RawMessage) (State, []any, error) {
	return st, []any{&domain.BaseEvent{Type: domain.EventPong}}, nil
}
