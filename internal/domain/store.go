package domain

import (
	"context"
	"time"
)

// UserDirectory is the persisted user profile collaborator.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	SetOnline(ctx context.Context, id string, at time.Time) error
	SetOffline(ctx context.Context, id string, at time.Time) error
}

// MessageStore persists messages. Status updates are conditional: a store never
// moves a message backwards and reports whether a transition happened.
type MessageStore interface {
	Create(ctx context.Context, msg *Message) error
	FindByID(ctx context.Context, id string) (*Message, error)
	UpdateStatus(ctx context.Context, id string, status MessageStatus) (bool, error)
	UpdateReactions(ctx context.Context, id string, reactions []Reaction) error
	// BulkUpdateStatus advances the given messages received by receiverID and
	// returns only the messages that actually transitioned.
	BulkUpdateStatus(ctx context.Context, ids []string, receiverID string, status MessageStatus) ([]Message, error)
	Delete(ctx context.Context, id string) error
}

type ConversationStore interface {
	// FindOrCreate returns the conversation of the canonical pair, creating it on first use.
	FindOrCreate(ctx context.Context, participants []string) (*Conversation, error)
	RecordMessage(ctx context.Context, conversationID, messageID string) error
}

type StatusStore interface {
	Create(ctx context.Context, status *Status) error
	FindByID(ctx context.Context, id string) (*Status, error)
	// AddViewer records viewerID once. added is false when the viewer was already present.
	AddViewer(ctx context.Context, id, viewerID string) (status *Status, added bool, err error)
	Delete(ctx context.Context, id string) error
	FindActive(ctx context.Context, now time.Time) ([]Status, error)
}
