package pubsub

import (
	"encoding/json"
	"time"
)

// Channels shared by every chat instance.
const (
	ChannelPresence = "chat:presence"
	ChannelDelivery = "chat:delivery"
)

// Presence events.
const (
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
)

// Delivery intents.
const (
	EventDeliverDirect = "deliver_direct"
	EventDeliverRoom   = "deliver_room"
)

// PresencePayload is published on ChannelPresence.
type PresencePayload struct {
	UserID     string    `json:"user_id"`
	Online     bool      `json:"online"`
	InstanceID string    `json:"instance_id"`
	At         time.Time `json:"at"`
}

// DeliveryPayload is published on ChannelDelivery. Message carries the
// client-facing new_message body so the receiving instance can push it
// without a store round-trip.
type DeliveryPayload struct {
	MessageID   string          `json:"message_id"`
	RecipientID string          `json:"recipient_id,omitempty"`
	RoomID      string          `json:"room_id,omitempty"`
	SenderID    string          `json:"sender_id"`
	Message     json.RawMessage `json:"message"`
}
