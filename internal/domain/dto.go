package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Inbound socket events.
const (
	EventUserConnected = "user_connected"
	EventGetUserStatus = "get_user_status"
	EventSendMessage   = "send_message"
	EventMessageRead   = "message_read"
	EventTypingStart   = "typing_start"
	EventTypingStop    = "typing_stop"
	EventAddReaction   = "add_reaction"
	EventPing          = "ping"
)

// Outbound socket events.
const (
	EventUserStatus          = "user_status"
	EventReceiveMessage      = "receive_message"
	EventMessageStatusUpdate = "message_status_update"
	EventMessageDelete       = "message_delete"
	EventUserTyping          = "user_typing"
	EventReactionUpdate      = "reaction_update"
	EventNewStatus           = "new_status"
	EventStatusViewed        = "status_viewed"
	EventStatusDeleted       = "status_deleted"
	EventMessageError        = "message_error"
	EventAck                 = "ack"
	EventPong                = "pong"
)

// WebSocketMessage is the envelope of every client frame.
type WebSocketMessage struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId,omitempty"`
}

// WebSocketResponse is the envelope of every server frame.
type WebSocketResponse struct {
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	AckID   string      `json:"ackId,omitempty"`
}

// UserRef accepts either a bare JSON string or an object carrying userId.
type UserRef struct {
	UserID string `json:"userId"`
}

func (u *UserRef) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		u.UserID = strings.TrimSpace(id)
		return nil
	}
	type plain UserRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	u.UserID = strings.TrimSpace(p.UserID)
	return nil
}

// SendMessageRequest references a persisted message. The client may forward the
// whole message document, so both "_id" and "messageId" are accepted.
type SendMessageRequest struct {
	ID        string `json:"_id"`
	MessageID string `json:"messageId"`
}

func (r SendMessageRequest) Ref() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	return r.ID
}

type MessageReadRequest struct {
	MessageIDs []string `json:"messageIds"`
	SenderID   string   `json:"senderId"`
}

type TypingRequest struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

type ReactionRequest struct {
	MessageID      string `json:"messageId"`
	Emoji          string `json:"emoji"`
	ReactionUserID string `json:"reactionUserId"`
}

type UserStatusPayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type TypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type MessageStatusPayload struct {
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"messageStatus"`
}

type MessageDeletePayload struct {
	MessageID string `json:"messageId"`
}

type ReactionPayload struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

type StatusViewedPayload struct {
	StatusID     string        `json:"statusId"`
	ViewerID     string        `json:"viewerId"`
	TotalViewers int           `json:"totalViewers"`
	Viewers      []UserSummary `json:"viewers"`
}

// UserSummary is the public part of a profile attached to pushed records.
// Only ID is set when the profile could not be loaded.
type UserSummary struct {
	ID             string `json:"_id"`
	UserName       string `json:"username,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// MessageView is a message with sender and receiver resolved, as pushed to clients.
type MessageView struct {
	Message
	Sender   UserSummary `json:"sender"`
	Receiver UserSummary `json:"receiver"`
}

// StatusView is a status with its owner and viewers resolved.
type StatusView struct {
	Status
	User    UserSummary   `json:"user"`
	Viewers []UserSummary `json:"viewers"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// REST request bodies.

type SendMessageBody struct {
	ReceiverID      string      `json:"receiverId"`
	Content         string      `json:"content"`
	ContentType     ContentType `json:"contentType"`
	ImageOrVideoURL string      `json:"imageOrVideoUrl"`
}

type MarkReadBody struct {
	MessageIDs []string `json:"messageIds"`
}

type CreateStatusBody struct {
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
}

// Event bus records. Inbound records are produced by REST writers running as
// separate processes; outbound records describe realtime state changes.

type MessageCreatedEvent struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

type MessagesReadEvent struct {
	ReaderID   string    `json:"reader_id"`
	MessageIDs []string  `json:"message_ids"`
	Timestamp  time.Time `json:"timestamp"`
}

type PresenceEvent struct {
	Type      string     `json:"type"`
	UserID    string     `json:"user_id"`
	IsOnline  bool       `json:"is_online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type DeliveryEvent struct {
	Type      string        `json:"type"`
	MessageID string        `json:"message_id"`
	SenderID  string        `json:"sender_id"`
	Status    MessageStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

type ReactionEvent struct {
	Type      string     `json:"type"`
	MessageID string     `json:"message_id"`
	UserID    string     `json:"user_id"`
	Reactions []Reaction `json:"reactions"`
	Timestamp time.Time  `json:"timestamp"`
}

type StatusEvent struct {
	Type      string    `json:"type"`
	StatusID  string    `json:"status_id"`
	OwnerID   string    `json:"owner_id"`
	ViewerID  string    `json:"viewer_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
