package models

import (
	"time"

	"github.com/google/uuid"
)

// Case message kinds. Every chat event a case produces or consumes is
// tracked under one of these so cleanup can redact them all.
const (
	MessageKindRoom1Origin        = "room1_origin"
	MessageKindBotWidget          = "bot_widget"
	MessageKindBotAck             = "bot_ack"
	MessageKindRoom2ReplyFeedback = "room2_reply_feedback"
	MessageKindRoom3Request       = "room3_request"
	MessageKindRoom3Ack           = "room3_ack"
	MessageKindRoom3ReplyFeedback = "room3_reply_feedback"
	MessageKindRoom1Final         = "room1_final"
)

// CaseMessage maps one chat event to the case it belongs to.
type CaseMessage struct {
	ID           int64     `json:"id"`
	CaseID       uuid.UUID `json:"case_id"`
	RoomID       string    `json:"room_id"`
	EventID      string    `json:"event_id"`
	Kind         string    `json:"kind"`
	SenderUserID *string   `json:"sender_user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AddCaseMessageRequest contains fields for inserting a case message mapping.
type AddCaseMessageRequest struct {
	CaseID       uuid.UUID `json:"case_id"`
	RoomID       string    `json:"room_id"`
	EventID      string    `json:"event_id"`
	Kind         string    `json:"kind"`
	SenderUserID *string   `json:"sender_user_id,omitempty"`
}
