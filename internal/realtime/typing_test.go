package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachat-ws/internal/domain"
)

type typingCall struct {
	conversationID string
	userID         string
	isTyping       bool
}

type recordingTypingMirror struct {
	mu    sync.Mutex
	calls []typingCall
}

func (m *recordingTypingMirror) SetUserTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, typingCall{conversationID, userID, isTyping})
	return nil
}

func (m *recordingTypingMirror) last() typingCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func typingFlags(c *fakeConn) []bool {
	var out []bool
	for _, e := range c.events(domain.EventUserTyping) {
		out = append(out, e.Payload.(domain.TypingPayload).IsTyping)
	}
	return out
}

func TestTypingStartArmsSingleTimer(t *testing.T) {
	r, _ := newTestRegistry()
	conns := connectAll(t, r, "bob")
	typing := NewTyping(r, nil, time.Hour, testLogger())
	ctx := context.Background()

	require.True(t, typing.Start(ctx, "alice", "conv1", "bob"))
	require.True(t, typing.Start(ctx, "alice", "conv1", "bob"))

	assert.Equal(t, 1, typing.PendingTimers("alice"))
	assert.True(t, typing.IsTyping("alice", "conv1"))
	assert.Equal(t, []bool{true, true}, typingFlags(conns["bob"]))

	assert.Equal(t, 1, typing.Clear(ctx, "alice"))
}

func TestTypingAutoStop(t *testing.T) {
	r, _ := newTestRegistry()
	conns := connectAll(t, r, "bob")
	mirror := &recordingTypingMirror{}
	typing := NewTyping(r, mirror, 30*time.Millisecond, testLogger())

	require.True(t, typing.Start(context.Background(), "alice", "conv1", "bob"))

	assert.Eventually(t, func() bool {
		return len(conns["bob"].events(domain.EventUserTyping)) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []bool{true, false}, typingFlags(conns["bob"]))
	assert.False(t, typing.IsTyping("alice", "conv1"))
	assert.Equal(t, typingCall{"conv1", "alice", false}, mirror.last())
}

func TestTypingRefreshExtendsTimer(t *testing.T) {
	r, _ := newTestRegistry()
	conns := connectAll(t, r, "bob")
	typing := NewTyping(r, nil, 200*time.Millisecond, testLogger())
	ctx := context.Background()

	require.True(t, typing.Start(ctx, "alice", "conv1", "bob"))
	time.Sleep(120 * time.Millisecond)
	require.True(t, typing.Start(ctx, "alice", "conv1", "bob"))
	time.Sleep(120 * time.Millisecond)

	// The first timer would have fired by now.
	assert.Equal(t, []bool{true, true}, typingFlags(conns["bob"]))

	assert.Eventually(t, func() bool {
		return len(conns["bob"].events(domain.EventUserTyping)) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestTypingStopCancelsTimer(t *testing.T) {
	r, _ := newTestRegistry()
	conns := connectAll(t, r, "bob")
	typing := NewTyping(r, nil, 30*time.Millisecond, testLogger())
	ctx := context.Background()

	require.True(t, typing.Start(ctx, "alice", "conv1", "bob"))
	require.True(t, typing.Stop(ctx, "alice", "conv1", "bob"))
	assert.Equal(t, 0, typing.PendingTimers("alice"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, typingFlags(conns["bob"]))
}

func TestTypingStopWithoutStartStillPushes(t *testing.T) {
	r, _ := newTestRegistry()
	conns := connectAll(t, r, "bob")
	typing := NewTyping(r, nil, time.Second, testLogger())

	require.True(t, typing.Stop(context.Background(), "alice", "conv1", "bob"))
	assert.Equal(t, []bool{false}, typingFlags(conns["bob"]))
}

func TestTypingClearSuppressesPendingFire(t *testing.T) {
	r, _ := newTestRegistry()
	conns := connectAll(t, r, "bob", "carol")
	typing := NewTyping(r, nil, 30*time.Millisecond, testLogger())
	ctx := context.Background()

	require.True(t, typing.Start(ctx, "alice", "conv1", "bob"))
	require.True(t, typing.Start(ctx, "alice", "conv2", "carol"))
	assert.Equal(t, 2, typing.Clear(ctx, "alice"))
	assert.Equal(t, 0, typing.PendingTimers("alice"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []bool{true}, typingFlags(conns["bob"]))
	assert.Equal(t, []bool{true}, typingFlags(conns["carol"]))
}

func TestTypingIgnoresIncompleteEvents(t *testing.T) {
	r, _ := newTestRegistry()
	conns := connectAll(t, r, "bob")
	typing := NewTyping(r, nil, time.Second, testLogger())
	ctx := context.Background()

	assert.False(t, typing.Start(ctx, "alice", "", "bob"))
	assert.False(t, typing.Start(ctx, "alice", "conv1", ""))
	assert.False(t, typing.Stop(ctx, "", "conv1", "bob"))
	assert.Empty(t, conns["bob"].events(domain.EventUserTyping))
	assert.Equal(t, 0, typing.PendingTimers("alice"))
}

func TestTypingReceiverOffline(t *testing.T) {
	r, _ := newTestRegistry()
	typing := NewTyping(r, nil, 20*time.Millisecond, testLogger())

	require.True(t, typing.Start(context.Background(), "alice", "conv1", "nobody"))
	assert.Eventually(t, func() bool {
		return !typing.IsTyping("alice", "conv1")
	}, time.Second, 5*time.Millisecond)
}

func TestTypingExpiryNeverOverridesNewerStart(t *testing.T) {
	r, _ := newTestRegistry()
	conns := connectAll(t, r, "bob")
	typing := NewTyping(r, nil, time.Millisecond, testLogger())
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		typing.Start(ctx, "alice", "conv1", "bob")
		if i%3 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	require.Eventually(t, func() bool {
		flags := typingFlags(conns["bob"])
		return !typing.IsTyping("alice", "conv1") && len(flags) > 0 && !flags[len(flags)-1]
	}, time.Second, 5*time.Millisecond)

	// Each false comes from the expiry of the indicator the previous true armed,
	// so two falses in a row mean a stale timer fired over a fresh start.
	flags := typingFlags(conns["bob"])
	require.NotEmpty(t, flags)
	assert.True(t, flags[0])
	for i := 1; i < len(flags); i++ {
		assert.False(t, !flags[i-1] && !flags[i], "consecutive stops at %d", i)
	}
}
