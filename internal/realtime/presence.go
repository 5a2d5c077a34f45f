package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wachat-ws/internal/domain"
	"wachat-ws/internal/metrics"
)

// Registry maps each online user to the connection bound last. It is the only
// source of truth for "who is online" in this process.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn

	users  domain.UserDirectory
	mirror PresenceMirror
	events EventPublisher
	locks  *keyLock
	now    func() time.Time
	log    zerolog.Logger
}

// NewRegistry builds an empty registry. mirror and events may be nil.
func NewRegistry(users domain.UserDirectory, mirror PresenceMirror, events EventPublisher, log zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		users:  users,
		mirror: mirror,
		events: events,
		locks:  newKeyLock(),
		now:    time.Now,
		log:    log.With().Str("component", "presence").Logger(),
	}
}

// Connect binds conn to userID, replacing any earlier binding, marks the
// profile online and tells every connected peer. A persistence failure is
// returned after the in-memory binding and the broadcast have happened.
func (r *Registry) Connect(ctx context.Context, userID string, conn Conn) error {
	if userID == "" || conn == nil {
		return fmt.Errorf("connect: %w", domain.ErrInvalidInput)
	}

	unlock := r.locks.Lock(userID)
	now, err := r.bind(ctx, userID, conn)
	unlock()

	publish(ctx, r.log, r.events, domain.PresenceEvent{
		Type:      "user_online",
		UserID:    userID,
		IsOnline:  true,
		Timestamp: now,
	})
	return err
}

// bind runs under the user's lock.
func (r *Registry) bind(ctx context.Context, userID string, conn Conn) (time.Time, error) {
	r.mu.Lock()
	prev, had := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if !had {
		metrics.OnlineUsers.Inc()
	} else if prev.ID() != conn.ID() {
		r.log.Info().Str("user_id", userID).Str("old_conn", prev.ID()).Str("conn_id", conn.ID()).Msg("presence rebound to newer connection")
	}

	now := r.now()
	var errs []error
	if err := r.users.SetOnline(ctx, userID, now); err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("failed to mark user online")
		errs = append(errs, err)
	}
	if r.mirror != nil {
		if err := r.mirror.SetUserOnline(ctx, userID, now); err != nil {
			r.log.Warn().Err(err).Str("user_id", userID).Msg("failed to mirror presence")
		}
	}

	n := r.Broadcast(domain.EventUserStatus, domain.UserStatusPayload{UserID: userID, IsOnline: true}, "")
	r.log.Info().Str("user_id", userID).Int("notified", n).Msg("user online")
	return now, errors.Join(errs...)
}

// Disconnect removes the binding of userID if conn is still the bound
// connection, marks the profile offline and tells every remaining peer.
// It reports whether a binding was removed. Calling it for an unknown user or
// a superseded connection is a no-op.
func (r *Registry) Disconnect(ctx context.Context, userID string, conn Conn) bool {
	return r.Release(ctx, userID, conn, nil)
}

// Release is Disconnect with a hook. before runs under the user's lock once
// conn is known to still own the binding, so a reconnect of the same user
// cannot slip in between the hook and the unbinding.
func (r *Registry) Release(ctx context.Context, userID string, conn Conn, before func()) bool {
	if userID == "" {
		return false
	}

	unlock := r.locks.Lock(userID)
	r.mu.RLock()
	cur, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok || (conn != nil && cur.ID() != conn.ID()) {
		unlock()
		return false
	}
	if before != nil {
		before()
	}
	now := r.unbind(ctx, userID)
	unlock()

	publish(ctx, r.log, r.events, domain.PresenceEvent{
		Type:      "user_offline",
		UserID:    userID,
		IsOnline:  false,
		LastSeen:  &now,
		Timestamp: now,
	})
	return true
}

// unbind runs under the user's lock.
func (r *Registry) unbind(ctx context.Context, userID string) time.Time {
	r.mu.Lock()
	delete(r.conns, userID)
	r.mu.Unlock()
	metrics.OnlineUsers.Dec()

	now := r.now()
	if err := r.users.SetOffline(ctx, userID, now); err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("failed to mark user offline")
	}
	if r.mirror != nil {
		if err := r.mirror.SetUserOffline(ctx, userID, now); err != nil {
			r.log.Warn().Err(err).Str("user_id", userID).Msg("failed to mirror presence")
		}
	}

	n := r.Broadcast(domain.EventUserStatus, domain.UserStatusPayload{UserID: userID, IsOnline: false, LastSeen: &now}, "")
	r.log.Info().Str("user_id", userID).Int("notified", n).Msg("user offline")
	return now
}

// Lookup returns the connection bound to userID.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Owns reports whether conn is the connection currently bound to userID.
func (r *Registry) Owns(userID string, conn Conn) bool {
	c, ok := r.Lookup(userID)
	return ok && conn != nil && c.ID() == conn.ID()
}

// Snapshot returns the connections bound at call time, minus exceptUserID.
func (r *Registry) Snapshot(exceptUserID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for userID, c := range r.conns {
		if userID == exceptUserID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Broadcast pushes to a snapshot of bound connections minus exceptUserID.
// Users connecting afterwards never see the event.
func (r *Registry) Broadcast(event string, payload interface{}, exceptUserID string) int {
	conns := r.Snapshot(exceptUserID)
	if len(conns) == 0 {
		return 0
	}
	return fanOut(r.log, conns, event, payload)
}

// OnlineUsers returns the ids of every bound user.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// QueryStatus answers a peer's presence check. Offline users report the
// last-seen time stored in their profile, if any.
func (r *Registry) QueryStatus(ctx context.Context, userID string) (domain.PresenceStatus, error) {
	status := domain.PresenceStatus{UserID: userID}
	if userID == "" {
		return status, fmt.Errorf("query status: %w", domain.ErrInvalidInput)
	}
	if _, ok := r.Lookup(userID); ok {
		now := r.now()
		status.IsOnline = true
		status.LastSeen = &now
		return status, nil
	}

	user, err := r.users.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.LastSeen = user.LastSeen
	return status, nil
}
