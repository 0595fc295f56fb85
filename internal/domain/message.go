package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength is the maximum message length in characters.
const MaxContentLength = 1000

// DefaultRetention is how long a message lives regardless of status.
const DefaultRetention = 7 * 24 * time.Hour

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// MessageStatus is the delivery state. It only moves forward:
// pending → delivered → read.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank orders statuses so transitions can be checked for monotonicity.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusPending:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	}
	return 0
}

// Message is a persisted chat message.
type Message struct {
	ID             string        `json:"id"`
	SenderID       string        `json:"senderId"`
	SenderUsername string        `json:"senderUsername,omitempty"`
	RecipientID    string        `json:"recipientId,omitempty"`
	RoomID         string        `json:"roomId,omitempty"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"messageType"`
	Status         MessageStatus `json:"status"`
	SentAt         time.Time     `json:"sentAt"`
	DeliveredAt    *time.Time    `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time    `json:"readAt,omitempty"`
	ExpiresAt      time.Time     `json:"expiresAt"`
}

// IsDirect reports whether the message targets a single user.
func (m *Message) IsDirect() bool {
	return m.RecipientID != ""
}

// NewMessage is the input to MessageStore.Create.
type NewMessage struct {
	SenderID       string
	SenderUsername string
	RecipientID    string
	RoomID         string
	Content        string
	Type           MessageType
}

// Normalize trims content, defaults the type and validates the target.
func (n *NewMessage) Normalize() error {
	if n.SenderID == "" {
		return fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if (n.RecipientID == "") == (n.RoomID == "") {
		return fmt.Errorf("%w: exactly one of recipientId or roomId is required", ErrValidation)
	}
	if n.RecipientID != "" && n.RecipientID == n.SenderID {
		return fmt.Errorf("%w: cannot send a direct message to yourself", ErrValidation)
	}
	content, err := ValidateContent(n.Content)
	if err != nil {
		return err
	}
	n.Content = content
	if n.Type == "" {
		n.Type = MessageTypeText
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, n.Type)
	}
	return nil
}

// ValidateContent trims content and checks it is 1..MaxContentLength characters.
func ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	return content, nil
}
