package domain

import (
	"sort"
	"time"
)

type ContentType string

const (
	ContentText  ContentType = "TEXT"
	ContentImage ContentType = "IMAGE"
	ContentVideo ContentType = "VIDEO"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentImage, ContentVideo:
		return true
	}
	return false
}

// MessageStatus is the delivery lifecycle stage of a message.
// Statuses only ever move forward: SEND -> DELIVERED -> READ.
type MessageStatus string

const (
	StatusSend      MessageStatus = "SEND"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSend:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Precedes reports whether moving from s to next is a forward transition.
func (s MessageStatus) Precedes(next MessageStatus) bool {
	return next.rank() > 0 && s.rank() < next.rank()
}

// Before returns the statuses a message may hold for a transition to s to be allowed.
func (s MessageStatus) Before() []MessageStatus {
	var out []MessageStatus
	for _, st := range []MessageStatus{StatusSend, StatusDelivered, StatusRead} {
		if st.rank() < s.rank() {
			out = append(out, st)
		}
	}
	return out
}

type User struct {
	ID             string     `json:"_id" bson:"_id"`
	UserName       string     `json:"username,omitempty" bson:"userName,omitempty"`
	PhoneNumber    string     `json:"phoneNumber,omitempty" bson:"phoneNumber,omitempty"`
	Email          string     `json:"email,omitempty" bson:"email,omitempty"`
	ProfilePicture string     `json:"profilePicture,omitempty" bson:"profilePicture,omitempty"`
	About          string     `json:"about,omitempty" bson:"about,omitempty"`
	IsOnline       bool       `json:"isOnline" bson:"isOnline"`
	LastSeen       *time.Time `json:"lastSeen,omitempty" bson:"lastSeen,omitempty"`
}

type Reaction struct {
	UserID string `json:"user" bson:"user"`
	Emoji  string `json:"emoji" bson:"emoji"`
}

type Message struct {
	ID              string        `json:"_id" bson:"_id"`
	ConversationID  string        `json:"conversation" bson:"conversation"`
	SenderID        string        `json:"sender" bson:"sender"`
	ReceiverID      string        `json:"receiver" bson:"receiver"`
	Content         string        `json:"content,omitempty" bson:"content,omitempty"`
	ImageOrVideoURL string        `json:"imageOrVideoUrl,omitempty" bson:"imageOrVideoUrl,omitempty"`
	ContentType     ContentType   `json:"contentType" bson:"contentType"`
	Reactions       []Reaction    `json:"reactions" bson:"reactions"`
	Status          MessageStatus `json:"messageStatus" bson:"messageStatus"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// Participants returns the sender and the receiver of the message.
func (m *Message) Participants() []string {
	return []string{m.SenderID, m.ReceiverID}
}

// HasParticipant reports whether userID sent or received the message.
func (m *Message) HasParticipant(userID string) bool {
	return userID != "" && (m.SenderID == userID || m.ReceiverID == userID)
}

// ApplyReaction applies the one-reaction-per-user rule and returns the new reaction list.
// An existing reaction with the same emoji is removed, a different emoji replaces it,
// and a user without a reaction gets one appended.
func ApplyReaction(reactions []Reaction, userID, emoji string) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.UserID != userID {
			out = append(out, r)
			continue
		}
		if found {
			// collapse stray duplicates left by older writers
			continue
		}
		found = true
		if r.Emoji != emoji {
			out = append(out, Reaction{UserID: userID, Emoji: emoji})
		}
	}
	if !found {
		out = append(out, Reaction{UserID: userID, Emoji: emoji})
	}
	return out
}

type Conversation struct {
	ID           string    `json:"_id" bson:"_id"`
	Participants []string  `json:"participants" bson:"participants"`
	LastMessage  string    `json:"lastMessage,omitempty" bson:"lastMessage,omitempty"`
	UnreadCount  int       `json:"unreadCount" bson:"unreadCount"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// CanonicalPair sorts a two-user pair so that a given pair always maps to one conversation.
func CanonicalPair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// Status is an ephemeral post visible until ExpiresAt.
type Status struct {
	ID          string      `json:"_id" bson:"_id"`
	UserID      string      `json:"user" bson:"user"`
	Content     string      `json:"content" bson:"content"`
	ContentType ContentType `json:"contentType" bson:"contentType"`
	Viewers     []string    `json:"viewers" bson:"viewers"`
	ExpiresAt   time.Time   `json:"expiresAt" bson:"expiresAt"`
	CreatedAt   time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// HasViewer reports whether userID already viewed the status.
func (s *Status) HasViewer(userID string) bool {
	for _, v := range s.Viewers {
		if v == userID {
			return true
		}
	}
	return false
}

// PresenceStatus answers a peer's on-demand presence check.
type PresenceStatus struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}
