package domain

import (
	"time"

	"github.com/weiawesome/trailchat/pkg/database"
)

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID             string     `gorm:"type:varchar(36);primaryKey"`
	SenderID       string     `gorm:"type:varchar(64);not null"`
	SenderUsername string     `gorm:"type:varchar(64)"`
	RecipientID    *string    `gorm:"type:varchar(64);index:idx_messages_pending,priority:1"`
	RoomID         *string    `gorm:"type:varchar(36);index"`
	Content        string     `gorm:"type:text;not null"`
	Type           string     `gorm:"type:varchar(10);not null;default:'text'"`
	Status         string     `gorm:"type:varchar(10);not null;default:'pending';index:idx_messages_pending,priority:2"`
	SentAt         time.Time  `gorm:"not null;index:idx_messages_pending,priority:3"`
	DeliveredAt    *time.Time
	ReadAt         *time.Time
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:             m.ID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		RecipientID:    deref(m.RecipientID),
		RoomID:         deref(m.RoomID),
		Content:        m.Content,
		Type:           MessageType(m.Type),
		Status:         MessageStatus(m.Status),
		SentAt:         m.SentAt.UTC(),
		DeliveredAt:    utcPtr(m.DeliveredAt),
		ReadAt:         utcPtr(m.ReadAt),
		ExpiresAt:      m.ExpiresAt.UTC(),
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(m *Message) *MessageModel {
	return &MessageModel{
		ID:             m.ID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		RecipientID:    ref(m.RecipientID),
		RoomID:         ref(m.RoomID),
		Content:        m.Content,
		Type:           string(m.Type),
		Status:         string(m.Status),
		SentAt:         m.SentAt,
		DeliveredAt:    m.DeliveredAt,
		ReadAt:         m.ReadAt,
		ExpiresAt:      m.ExpiresAt,
	}
}

// RoomModel is the GORM model for the chat_rooms table.
type RoomModel struct {
	ID              string               `gorm:"type:varchar(36);primaryKey"`
	Name            string               `gorm:"type:varchar(100);not null"`
	Type            string               `gorm:"type:varchar(10);not null"`
	Participants    database.StringArray `gorm:"type:text"`
	Admins          database.StringArray `gorm:"type:text"`
	CreatedBy       string               `gorm:"type:varchar(64);not null"`
	IsActive        bool                 `gorm:"not null;index"`
	MaxParticipants int                  `gorm:"not null"`
	AllowInvites    bool                 `gorm:"not null"`
	LastActivity    time.Time
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	Version         int64     `gorm:"not null;default:1"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts RoomModel to domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:           m.ID,
		Name:         m.Name,
		Type:         RoomType(m.Type),
		Participants: nonNil(m.Participants),
		Admins:       nonNil(m.Admins),
		CreatedBy:    m.CreatedBy,
		IsActive:     m.IsActive,
		Settings: RoomSettings{
			MaxParticipants: m.MaxParticipants,
			AllowInvites:    m.AllowInvites,
		},
		LastActivity: m.LastActivity.UTC(),
		CreatedAt:    m.CreatedAt.UTC(),
		Version:      m.Version,
	}
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:              r.ID,
		Name:            r.Name,
		Type:            string(r.Type),
		Participants:    database.StringArray(r.Participants),
		Admins:          database.StringArray(r.Admins),
		CreatedBy:       r.CreatedBy,
		IsActive:        r.IsActive,
		MaxParticipants: r.Settings.MaxParticipants,
		AllowInvites:    r.Settings.AllowInvites,
		LastActivity:    r.LastActivity,
		CreatedAt:       r.CreatedAt,
		Version:         r.Version,
	}
}

func nonNil(a database.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
