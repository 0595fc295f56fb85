package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxRoomNameLength      = 100
	DefaultMaxParticipants = 100
)

// RoomType is the visibility of a room.
type RoomType string

const (
	RoomTypePrivate RoomType = "private"
	RoomTypeGroup   RoomType = "group"
	RoomTypePublic  RoomType = "public"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypePrivate, RoomTypeGroup, RoomTypePublic:
		return true
	}
	return false
}

// RoomSettings are per-room limits.
type RoomSettings struct {
	MaxParticipants int  `json:"maxParticipants"`
	AllowInvites    bool `json:"allowInvites"`
}

// DefaultRoomSettings returns the settings applied when none are given.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{MaxParticipants: DefaultMaxParticipants, AllowInvites: true}
}

// Room is a membership-bounded group channel. A room whose participant list
// becomes empty is inactive forever.
type Room struct {
	ID           string       `json:"roomId"`
	Name         string       `json:"name"`
	Type         RoomType     `json:"type"`
	Participants []string     `json:"participants"`
	Admins       []string     `json:"admins"`
	CreatedBy    string       `json:"createdBy"`
	IsActive     bool         `json:"isActive"`
	Settings     RoomSettings `json:"settings"`
	LastActivity time.Time    `json:"lastActivity"`
	CreatedAt    time.Time    `json:"createdAt"`
	Version      int64        `json:"version"`
}

// HasParticipant reports whether userID is a participant.
func (r *Room) HasParticipant(userID string) bool {
	return slices.Contains(r.Participants, userID)
}

// IsAdmin reports whether userID is an admin.
func (r *Room) IsAdmin(userID string) bool {
	return slices.Contains(r.Admins, userID)
}

// IsFull reports whether the participant limit has been reached.
func (r *Room) IsFull() bool {
	return r.Settings.MaxParticipants > 0 && len(r.Participants) >= r.Settings.MaxParticipants
}

// RemoveMember drops userID from participants and admins and deactivates
// the room when nobody is left. It reports whether userID was a participant.
func (r *Room) RemoveMember(userID string) bool {
	if !r.HasParticipant(userID) {
		return false
	}
	r.Participants = slices.DeleteFunc(r.Participants, func(id string) bool { return id == userID })
	r.Admins = slices.DeleteFunc(r.Admins, func(id string) bool { return id == userID })
	if len(r.Participants) == 0 {
		r.IsActive = false
	}
	return true
}

// CreateRoomInput is the input to RoomService.CreateRoom.
type CreateRoomInput struct {
	CreatorID    string
	Name         string
	Type         RoomType
	Participants []string
	Settings     *RoomSettings
}

// ValidateRoomName trims name and checks it is 1..MaxRoomNameLength characters.
func ValidateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: room name is required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return "", fmt.Errorf("%w: room name exceeds %d characters", ErrValidation, MaxRoomNameLength)
	}
	return name, nil
}
