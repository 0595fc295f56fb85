package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      NewMessage
		wantErr bool
	}{
		{"direct", NewMessage{SenderID: "u1", RecipientID: "u2", Content: " hi "}, false},
		{"room", NewMessage{SenderID: "u1", RoomID: "r1", Content: "hi", Type: MessageTypeImage}, false},
		{"empty content", NewMessage{SenderID: "u1", RecipientID: "u2", Content: "   "}, true},
		{"too long", NewMessage{SenderID: "u1", RecipientID: "u2", Content: strings.Repeat("a", MaxContentLength+1)}, true},
		{"no target", NewMessage{SenderID: "u1", Content: "hi"}, true},
		{"both targets", NewMessage{SenderID: "u1", RecipientID: "u2", RoomID: "r1", Content: "hi"}, true},
		{"self", NewMessage{SenderID: "u1", RecipientID: "u1", Content: "hi"}, true},
		{"bad type", NewMessage{SenderID: "u1", RecipientID: "u2", Content: "hi", Type: "video"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			err := in.Normalize()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(tt.in.Content), in.Content)
			assert.True(t, in.Type.Valid())
		})
	}
}

func TestValidateContent_MaxLengthCountsRunes(t *testing.T) {
	_, err := ValidateContent(strings.Repeat("é", MaxContentLength))
	assert.NoError(t, err)
}

func TestValidateRoomName(t *testing.T) {
	name, err := ValidateRoomName("  Trailheads ")
	require.NoError(t, err)
	assert.Equal(t, "Trailheads", name)

	_, err = ValidateRoomName("  ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ValidateRoomName(strings.Repeat("x", MaxRoomNameLength+1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRoom_RemoveMember(t *testing.T) {
	r := &Room{Participants: []string{"u1", "u2"}, Admins: []string{"u1"}, IsActive: true}

	assert.False(t, r.RemoveMember("u3"))
	assert.True(t, r.RemoveMember("u1"))
	assert.Equal(t, []string{"u2"}, r.Participants)
	assert.Empty(t, r.Admins)
	assert.True(t, r.IsActive)

	assert.True(t, r.RemoveMember("u2"))
	assert.Empty(t, r.Participants)
	assert.False(t, r.IsActive)
}

func TestMessageStatus_Rank(t *testing.T) {
	assert.Less(t, MessageStatusPending.Rank(), MessageStatusDelivered.Rank())
	assert.Less(t, MessageStatusDelivered.Rank(), MessageStatusRead.Rank())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, ErrorCode(fmt.Errorf("%w: room", ErrNotFound)))
	assert.Equal(t, ErrCodeConflict, ErrorCode(ErrConflict))
	assert.Equal(t, ErrCodeInternal, ErrorCode(errors.New("boom")))
}
