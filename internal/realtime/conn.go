// Package realtime holds the presence, typing, delivery, reaction and status
// coordinators that sit behind the socket gateway.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wachat-ws/internal/metrics"
)

// Conn is a live socket connection the coordinators can push events to.
type Conn interface {
	ID() string
	Send(event string, payload interface{}) error
}

// Locator resolves the connection currently bound to a user.
type Locator interface {
	Lookup(userID string) (Conn, bool)
}

// Peers is a Locator that can also fan an event out to every bound connection.
type Peers interface {
	Locator
	Broadcast(event string, payload interface{}, exceptUserID string) int
}

// EventPublisher forwards realtime state changes to other services.
type EventPublisher interface {
	SendMessage(ctx context.Context, message interface{}) error
}

// PresenceMirror keeps a shared copy of who is online for other services.
type PresenceMirror interface {
	SetUserOnline(ctx context.Context, userID string, at time.Time) error
	SetUserOffline(ctx context.Context, userID string, at time.Time) error
}

// TypingMirror keeps a shared, expiring copy of typing state.
type TypingMirror interface {
	SetUserTyping(ctx context.Context, conversationID, userID string, isTyping bool) error
}

// push delivers one event to one connection. Failures are logged and counted,
// never returned to the caller's write path.
func push(log zerolog.Logger, conn Conn, event string, payload interface{}) error {
	err := conn.Send(event, payload)
	metrics.RecordPush(event, err)
	if err != nil {
		log.Warn().Err(err).Str("conn_id", conn.ID()).Str("event", event).Msg("push failed")
	}
	return err
}

// pushTo resolves userID and pushes to it when present.
func pushTo(log zerolog.Logger, peers Locator, userID, event string, payload interface{}) bool {
	if userID == "" {
		return false
	}
	conn, ok := peers.Lookup(userID)
	if !ok {
		return false
	}
	return push(log, conn, event, payload) == nil
}

// fanOut pushes to every connection concurrently and returns how many succeeded.
func fanOut(log zerolog.Logger, conns []Conn, event string, payload interface{}) int {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, c := range conns {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("conn_id", c.ID()).Msg("recovered while broadcasting")
				}
			}()
			if push(log, c, event, payload) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return ok
}

func publish(ctx context.Context, log zerolog.Logger, events EventPublisher, record interface{}) {
	if events == nil {
		return
	}
	if err := events.SendMessage(ctx, record); err != nil {
		log.Warn().Err(err).Msg("failed to publish realtime event")
	}
}

// keyLock serializes work per key without blocking other keys.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

// Lock blocks until key is free and returns its release func.
func (k *keyLock) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyLockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
