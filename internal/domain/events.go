package domain

import "time"

// Websocket events from client.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventPing        = "ping"
)

// Websocket events to client.
const (
	EventConnected   = "connected"
	EventJoinedRoom  = "joined_room"
	EventLeftRoom    = "left_room"
	EventNewMessage  = "new_message"
	EventMessageSent = "message_sent"
	EventPong        = "pong"
	EventError       = "error"
)

// BaseEvent is decoded first to find the handler for a frame.
type BaseEvent struct {
	Type string `json:"type"`
}

// Client -> Server

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID      string      `json:"roomId,omitempty"`
	RecipientID string      `json:"recipientId,omitempty"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType,omitempty"`
}

// Server -> Client

type ConnectedEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type RoomEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type NewMessageEvent struct {
	Type           string      `json:"type"`
	ID             string      `json:"id"`
	SenderID       string      `json:"senderId"`
	SenderUsername string      `json:"senderUsername"`
	RecipientID    string      `json:"recipientId,omitempty"`
	RoomID         string      `json:"roomId,omitempty"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"messageType"`
	SentAt         time.Time   `json:"sentAt"`
}

type MessageSentEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{Type: EventError, Code: code, Message: message}
}

// NewMessageEventFrom builds the new_message event pushed to recipients.
func NewMessageEventFrom(m *Message) *NewMessageEvent {
	return &NewMessageEvent{
		Type:           EventNewMessage,
		ID:             m.ID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		RecipientID:    m.RecipientID,
		RoomID:         m.RoomID,
		Content:        m.Content,
		MessageType:    m.Type,
		SentAt:         m.SentAt,
	}
}
