package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wachat-ws/internal/domain"
	"wachat-ws/internal/metrics"
)

// DefaultTypingTimeout is how long a typing indicator lives without a refresh.
const DefaultTypingTimeout = 3 * time.Second

// typingTimer is the auto-stop task of one (user, conversation) pair. An entry
// exists exactly while the pair is typing.
type typingTimer struct {
	timer      *time.Timer
	receiverID string
}

// Typing tracks who is typing in which conversation and stops stale indicators.
type Typing struct {
	mu     sync.Mutex
	states map[string]map[string]*typingTimer // user -> conversation -> timer

	// pairs serializes state changes and their pushes per (user, conversation)
	// so the receiver sees them in the order they were applied.
	pairs *keyLock

	timeout time.Duration
	peers   Locator
	mirror  TypingMirror
	log     zerolog.Logger
}

// NewTyping builds a coordinator. mirror may be nil.
func NewTyping(peers Locator, mirror TypingMirror, timeout time.Duration, log zerolog.Logger) *Typing {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typing{
		states:  make(map[string]map[string]*typingTimer),
		pairs:   newKeyLock(),
		timeout: timeout,
		peers:   peers,
		mirror:  mirror,
		log:     log.With().Str("component", "typing").Logger(),
	}
}

// Start marks userID as typing in conversationID, tells the receiver and
// (re)arms the auto-stop timer. Events missing any field are ignored.
func (t *Typing) Start(ctx context.Context, userID, conversationID, receiverID string) bool {
	if userID == "" || conversationID == "" || receiverID == "" {
		return false
	}

	entry := &typingTimer{receiverID: receiverID}

	unlock := t.pairs.Lock(pairKey(userID, conversationID))
	defer unlock()

	t.mu.Lock()
	convs, ok := t.states[userID]
	if !ok {
		convs = make(map[string]*typingTimer)
		t.states[userID] = convs
	}
	if old, ok := convs[conversationID]; ok {
		old.timer.Stop()
		metrics.RecordTypingTimer("replaced")
	}
	convs[conversationID] = entry
	entry.timer = time.AfterFunc(t.timeout, func() {
		t.expire(userID, conversationID, entry)
	})
	t.mu.Unlock()
	metrics.RecordTypingTimer("armed")

	t.mirrorState(ctx, conversationID, userID, true)
	pushTo(t.log, t.peers, receiverID, domain.EventUserTyping, domain.TypingPayload{
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       true,
	})
	return true
}

// Stop ends the typing indicator immediately and cancels its timer.
func (t *Typing) Stop(ctx context.Context, userID, conversationID, receiverID string) bool {
	if userID == "" || conversationID == "" || receiverID == "" {
		return false
	}

	unlock := t.pairs.Lock(pairKey(userID, conversationID))
	defer unlock()

	t.mu.Lock()
	if convs, ok := t.states[userID]; ok {
		if entry, ok := convs[conversationID]; ok {
			entry.timer.Stop()
			delete(convs, conversationID)
			metrics.RecordTypingTimer("stopped")
		}
		if len(convs) == 0 {
			delete(t.states, userID)
		}
	}
	t.mu.Unlock()

	t.mirrorState(ctx, conversationID, userID, false)
	pushTo(t.log, t.peers, receiverID, domain.EventUserTyping, domain.TypingPayload{
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       false,
	})
	return true
}

// Clear cancels every pending timer of userID and drops its state without
// notifying anyone. It returns how many indicators were dropped.
func (t *Typing) Clear(ctx context.Context, userID string) int {
	t.mu.Lock()
	convs := t.states[userID]
	delete(t.states, userID)
	for _, entry := range convs {
		entry.timer.Stop()
	}
	t.mu.Unlock()

	for conversationID := range convs {
		t.mirrorState(ctx, conversationID, userID, false)
	}
	if len(convs) > 0 {
		metrics.TypingTimers.WithLabelValues("cleared").Add(float64(len(convs)))
	}
	return len(convs)
}

// IsTyping reports whether userID has a live indicator in conversationID.
func (t *Typing) IsTyping(userID, conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.states[userID][conversationID]
	return ok
}

// PendingTimers returns how many auto-stop timers userID owns.
func (t *Typing) PendingTimers(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states[userID])
}

// expire runs on the timer goroutine. A timer that was replaced, stopped or
// cleared after it started firing finds a different entry and does nothing.
func (t *Typing) expire(userID, conversationID string, entry *typingTimer) {
	unlock := t.pairs.Lock(pairKey(userID, conversationID))
	defer unlock()

	t.mu.Lock()
	convs, ok := t.states[userID]
	if !ok || convs[conversationID] != entry {
		t.mu.Unlock()
		return
	}
	delete(convs, conversationID)
	if len(convs) == 0 {
		delete(t.states, userID)
	}
	t.mu.Unlock()
	metrics.RecordTypingTimer("expired")

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	t.mirrorState(ctx, conversationID, userID, false)
	pushTo(t.log, t.peers, entry.receiverID, domain.EventUserTyping, domain.TypingPayload{
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       false,
	})
}

func pairKey(userID, conversationID string) string {
	return userID + "\x00" + conversationID
}

func (t *Typing) mirrorState(ctx context.Context, conversationID, userID string, isTyping bool) {
	if t.mirror == nil {
		return
	}
	if err := t.mirror.SetUserTyping(ctx, conversationID, userID, isTyping); err != nil {
		t.log.Warn().Err(err).Str("user_id", userID).Str("conversation_id", conversationID).Msg("failed to mirror typing state")
	}
}
