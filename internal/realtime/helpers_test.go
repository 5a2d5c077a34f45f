package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"wachat-ws/internal/infrastructure/memstore"
)

type sentEvent struct {
	Event   string
	Payload interface{}
}

type fakeConn struct {
	id   string
	mu   sync.Mutex
	sent []sentEvent
	fail bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, sentEvent{Event: event, Payload: payload})
	return nil
}

func (c *fakeConn) setFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

func (c *fakeConn) events(name string) []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentEvent
	for _, e := range c.sent {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []interface{}
}

func (p *recordingPublisher) SendMessage(ctx context.Context, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, message)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// slowPublisher stands in for a bus that takes delay to accept each record.
type slowPublisher struct {
	delay time.Duration
	recordingPublisher
}

func (p *slowPublisher) SendMessage(ctx context.Context, message interface{}) error {
	time.Sleep(p.delay)
	return p.recordingPublisher.SendMessage(ctx, message)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// connectAll binds one fake connection per user id.
func connectAll(t *testing.T, r *Registry, userIDs ...string) map[string]*fakeConn {
	t.Helper()
	conns := make(map[string]*fakeConn, len(userIDs))
	for _, id := range userIDs {
		c := newFakeConn("conn-" + id)
		require.NoError(t, r.Connect(context.Background(), id, c))
		conns[id] = c
	}
	for _, c := range conns {
		c.reset()
	}
	return conns
}

func newTestRegistry() (*Registry, *memstore.Users) {
	users := memstore.NewUsers()
	return NewRegistry(users, nil, nil, testLogger()), users
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
