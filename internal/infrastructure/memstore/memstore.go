// Package memstore keeps users, messages, conversations and statuses in
// process memory. It backs the tests and the MONGO_URI=memory mode.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wachat-ws/internal/domain"
)

type Users struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewUsers() *Users {
	return &Users{users: make(map[string]*domain.User)}
}

// Put inserts or replaces a profile.
func (s *Users) Put(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *Users) FindByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	cp := *u
	if u.LastSeen != nil {
		ls := *u.LastSeen
		cp.LastSeen = &ls
	}
	return &cp, nil
}

// SetOnline upserts so that users unknown to this store still get a presence record.
func (s *Users) SetOnline(ctx context.Context, id string, at time.Time) error {
	return s.setPresence(id, true, at)
}

func (s *Users) SetOffline(ctx context.Context, id string, at time.Time) error {
	return s.setPresence(id, false, at)
}

func (s *Users) setPresence(id string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &domain.User{ID: id}
		s.users[id] = u
	}
	u.IsOnline = online
	u.LastSeen = &at
	return nil
}

type Messages struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message
}

func NewMessages() *Messages {
	return &Messages{messages: make(map[string]*domain.Message)}
}

func (s *Messages) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("message %s already exists: %w", msg.ID, domain.ErrInvalidInput)
	}
	s.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (s *Messages) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return copyMessage(m), nil
}

func (s *Messages) UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return false, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if !m.Status.Precedes(status) {
		return false, nil
	}
	m.Status = status
	m.UpdatedAt = time.Now()
	return true, nil
}

func (s *Messages) UpdateReactions(ctx context.Context, id string, reactions []domain.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	m.Reactions = append([]domain.Reaction{}, reactions...)
	m.UpdatedAt = time.Now()
	return nil
}

func (s *Messages) BulkUpdateStatus(ctx context.Context, ids []string, receiverID string, status domain.MessageStatus) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	now := time.Now()
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.ReceiverID != receiverID || !m.Status.Precedes(status) {
			continue
		}
		m.Status = status
		m.UpdatedAt = now
		out = append(out, *copyMessage(m))
	}
	return out, nil
}

func (s *Messages) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	delete(s.messages, id)
	return nil
}

func copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Reactions = append([]domain.Reaction{}, m.Reactions...)
	return &cp
}

type Conversations struct {
	mu     sync.Mutex
	byID   map[string]*domain.Conversation
	byPair map[string]string
}

func NewConversations() *Conversations {
	return &Conversations{
		byID:   make(map[string]*domain.Conversation),
		byPair: make(map[string]string),
	}
}

func (s *Conversations) FindOrCreate(ctx context.Context, participants []string) (*domain.Conversation, error) {
	if len(participants) != 2 {
		return nil, fmt.Errorf("conversation needs two participants: %w", domain.ErrInvalidInput)
	}
	pair := append([]string{}, participants...)
	sort.Strings(pair)
	key := strings.Join(pair, ":")

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[key]; ok {
		cp := *s.byID[id]
		return &cp, nil
	}
	now := time.Now()
	c := &domain.Conversation{
		ID:           uuid.NewString(),
		Participants: pair,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[c.ID] = c
	s.byPair[key] = c.ID
	cp := *c
	return &cp, nil
}

func (s *Conversations) RecordMessage(ctx context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	c.LastMessage = messageID
	c.UnreadCount++
	c.UpdatedAt = time.Now()
	return nil
}

// Get returns a copy of a conversation.
func (s *Conversations) Get(id string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return *c, true
}

type Statuses struct {
	mu       sync.RWMutex
	statuses map[string]*domain.Status
}

func NewStatuses() *Statuses {
	return &Statuses{statuses: make(map[string]*domain.Status)}
}

func (s *Statuses) Create(ctx context.Context, status *domain.Status) error {
	if status.ID == "" {
		status.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.ID] = copyStatus(status)
	return nil
}

func (s *Statuses) FindByID(ctx context.Context, id string) (*domain.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[id]
	if !ok {
		return nil, fmt.Errorf("status %s: %w", id, domain.ErrNotFound)
	}
	return copyStatus(st), nil
}

func (s *Statuses) AddViewer(ctx context.Context, id, viewerID string) (*domain.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok {
		return nil, false, fmt.Errorf("status %s: %w", id, domain.ErrNotFound)
	}
	if st.HasViewer(viewerID) {
		return copyStatus(st), false, nil
	}
	st.Viewers = append(st.Viewers, viewerID)
	st.UpdatedAt = time.Now()
	return copyStatus(st), true, nil
}

func (s *Statuses) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statuses[id]; !ok {
		return fmt.Errorf("status %s: %w", id, domain.ErrNotFound)
	}
	delete(s.statuses, id)
	return nil
}

func (s *Statuses) FindActive(ctx context.Context, now time.Time) ([]domain.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Status, 0, len(s.statuses))
	for _, st := range s.statuses {
		if st.ExpiresAt.After(now) {
			out = append(out, *copyStatus(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func copyStatus(st *domain.Status) *domain.Status {
	cp := *st
	cp.Viewers = append([]string{}, st.Viewers...)
	return &cp
}
