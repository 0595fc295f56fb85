package domain

// SendMessageRequest is the body of POST /messages/send.
type SendMessageRequest struct {
	RecipientID string      `json:"recipientId"`
	RoomID      string      `json:"roomId"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
}

// CreateRoomRequest is the body of POST /rooms/create.
type CreateRoomRequest struct {
	Name         string        `json:"name"`
	Type         RoomType      `json:"type"`
	Participants []string      `json:"participants"`
	Settings     *RoomSettings `json:"settings"`
}

// ParticipantRequest is the body of POST /rooms/:id/participants.
type ParticipantRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// ListPendingRequest holds the query of GET /messages/pending.
type ListPendingRequest struct {
	Limit int `form:"limit"`
}
