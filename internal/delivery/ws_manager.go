package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"wachat-ws/internal/auth"
	"wachat-ws/internal/domain"
	"wachat-ws/internal/metrics"
	"wachat-ws/internal/realtime"
)

const eventTimeout = 10 * time.Second

// socket is what a session needs from its connection.
type socket interface {
	realtime.Conn
	Ack(ackID string, payload interface{}) error
	SendError(msg string) error
	Close() error
}

// Coordinators groups the realtime components the gateway routes events to.
type Coordinators struct {
	Registry  *realtime.Registry
	Typing    *realtime.Typing
	Delivery  *realtime.DeliveryTracker
	Reactions *realtime.ReactionSynchronizer
	Statuses  *realtime.StatusBroadcaster
}

type WSOptions struct {
	PongWait        time.Duration
	PingPeriod      time.Duration
	WriteWait       time.Duration
	EventsPerSecond float64
	EventBurst      int
}

// WSManager owns every socket session and routes inbound events to the
// coordinators. It also runs the realtime side of records consumed from Kafka.
type WSManager struct {
	Coordinators
	opts WSOptions
	log  zerolog.Logger
}

func NewWSManager(c Coordinators, opts WSOptions, log zerolog.Logger) *WSManager {
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = 20
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = 40
	}
	return &WSManager{
		Coordinators: c,
		opts:         opts,
		log:          log.With().Str("component", "gateway").Logger(),
	}
}

// session is the per-connection state machine: Unbound until user_connected
// succeeds, Bound afterwards, Closed once close has run.
type session struct {
	m          *WSManager
	conn       socket
	authUserID string
	limiter    *rate.Limiter

	mu     sync.Mutex
	userID string

	closeOnce sync.Once
	log       zerolog.Logger
}

func (w *WSManager) newSession(conn socket, authUserID string) *session {
	return &session{
		m:          w,
		conn:       conn,
		authUserID: authUserID,
		limiter:    rate.NewLimiter(rate.Limit(w.opts.EventsPerSecond), w.opts.EventBurst),
		log:        w.log.With().Str("conn_id", conn.ID()).Logger(),
	}
}

func (w *WSManager) HandleConnection(c *websocket.Conn) {
	conn := newWSConnection(c, w.opts.WriteWait)
	authUserID, _ := c.Locals(auth.LocalsUserKey).(string)
	s := w.newSession(conn, authUserID)

	metrics.RecordConnectionOpened()
	defer metrics.RecordConnectionClosed()
	defer s.close()

	_ = c.SetReadDeadline(time.Now().Add(w.opts.PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(w.opts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go w.pingLoop(conn, done)

	s.log.Info().Str("auth_user_id", authUserID).Msg("websocket client connected")

	for {
		var msg domain.WebSocketMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("websocket read error")
			}
			break
		}
		s.handle(&msg)
	}

	s.log.Info().Str("user_id", s.boundUser()).Msg("websocket client disconnected")
}

func (w *WSManager) pingLoop(conn *WSConnection, done <-chan struct{}) {
	ticker := time.NewTicker(w.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				w.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("ping failed")
				return
			}
		}
	}
}

func (s *session) boundUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// handle runs one inbound event. A panic or error in one event never ends
// the session.
func (s *session) handle(msg *domain.WebSocketMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("event", msg.Type).Msg("recovered from panic in event handler")
			metrics.RecordInbound(inboundLabel(msg.Type), "panic")
			s.sendError("Internal error")
		}
	}()

	if !s.limiter.Allow() {
		metrics.RecordInbound(inboundLabel(msg.Type), "rate_limited")
		s.sendError("Too many events")
		return
	}

	outcome, err := s.dispatch(ctx, msg)
	if err != nil {
		s.log.Warn().Err(err).Str("event", msg.Type).Str("user_id", s.boundUser()).Msg("event failed")
	}
	metrics.RecordInbound(inboundLabel(msg.Type), outcome)
}

// inboundLabel keeps the metric label set closed; event names come from clients.
func inboundLabel(event string) string {
	switch event {
	case domain.EventUserConnected, domain.EventGetUserStatus, domain.EventPing,
		domain.EventSendMessage, domain.EventMessageRead, domain.EventTypingStart,
		domain.EventTypingStop, domain.EventAddReaction:
		return event
	}
	return "unknown"
}

// dispatch maps one event name to one coordinator call.
func (s *session) dispatch(ctx context.Context, msg *domain.WebSocketMessage) (string, error) {
	switch msg.Type {
	case domain.EventUserConnected:
		return s.onUserConnected(ctx, msg.Data)
	case domain.EventGetUserStatus:
		return s.onGetUserStatus(ctx, msg)
	case domain.EventPing:
		return s.reply(s.conn.Send(domain.EventPong, map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		}))
	}

	userID := s.boundUser()
	switch msg.Type {
	case domain.EventSendMessage, domain.EventMessageRead, domain.EventTypingStart,
		domain.EventTypingStop, domain.EventAddReaction:
		if userID == "" {
			s.sendError("Not connected")
			return "unbound", fmt.Errorf("%s before user_connected: %w", msg.Type, domain.ErrInvalidInput)
		}
		if !s.m.Registry.Owns(userID, s.conn) {
			s.sendError("Connection replaced")
			return "superseded", fmt.Errorf("%s on a replaced connection of %s: %w", msg.Type, userID, domain.ErrForbidden)
		}
	default:
		s.sendError("Unknown event: " + msg.Type)
		return "unknown", nil
	}

	switch msg.Type {
	case domain.EventSendMessage:
		var req domain.SendMessageRequest
		if err := decode(msg.Data, &req); err != nil {
			return s.fail(err, "Failed to send message")
		}
		if req.Ref() == "" {
			return s.fail(fmt.Errorf("send_message without id: %w", domain.ErrInvalidInput), "Failed to send message")
		}
		if _, err := s.m.Delivery.Deliver(ctx, req.Ref(), userID); err != nil {
			return s.fail(err, "Failed to send message")
		}

	case domain.EventMessageRead:
		var req domain.MessageReadRequest
		if err := decode(msg.Data, &req); err != nil {
			return s.fail(err, "Failed to mark messages as read")
		}
		if _, err := s.m.Delivery.MarkRead(ctx, userID, req.MessageIDs, domain.EventMessageStatusUpdate); err != nil {
			return s.fail(err, "Failed to mark messages as read")
		}

	case domain.EventTypingStart, domain.EventTypingStop:
		var req domain.TypingRequest
		if err := decode(msg.Data, &req); err != nil {
			return "ignored", nil
		}
		var ok bool
		if msg.Type == domain.EventTypingStart {
			ok = s.m.Typing.Start(ctx, userID, req.ConversationID, req.ReceiverID)
		} else {
			ok = s.m.Typing.Stop(ctx, userID, req.ConversationID, req.ReceiverID)
		}
		if !ok {
			return "ignored", nil
		}

	case domain.EventAddReaction:
		var req domain.ReactionRequest
		if err := decode(msg.Data, &req); err != nil {
			return s.fail(err, "Failed to add reaction")
		}
		if req.ReactionUserID != "" && req.ReactionUserID != userID {
			return s.fail(fmt.Errorf("reaction on behalf of %s: %w", req.ReactionUserID, domain.ErrForbidden), "Failed to add reaction")
		}
		if _, err := s.m.Reactions.React(ctx, req.MessageID, req.Emoji, userID); err != nil {
			return s.fail(err, "Failed to add reaction")
		}
	}
	return "ok", nil
}

func (s *session) onUserConnected(ctx context.Context, data json.RawMessage) (string, error) {
	var ref domain.UserRef
	if err := decode(data, &ref); err != nil || ref.UserID == "" {
		return s.fail(fmt.Errorf("user_connected without user id: %w", domain.ErrInvalidInput), "Failed to connect")
	}
	if s.authUserID != "" && ref.UserID != s.authUserID {
		return s.fail(fmt.Errorf("user_connected as %s: %w", ref.UserID, domain.ErrForbidden), "Failed to connect")
	}

	s.mu.Lock()
	current := s.userID
	if current != "" && current != ref.UserID {
		s.mu.Unlock()
		return s.fail(fmt.Errorf("connection already bound to %s: %w", current, domain.ErrInvalidInput), "Failed to connect")
	}
	s.userID = ref.UserID
	s.mu.Unlock()

	// The binding and the broadcast stand even when the profile write fails.
	if err := s.m.Registry.Connect(ctx, ref.UserID, s.conn); err != nil {
		s.sendError("Failed to connect")
		return "error", err
	}
	return "ok", nil
}

func (s *session) onGetUserStatus(ctx context.Context, msg *domain.WebSocketMessage) (string, error) {
	var ref domain.UserRef
	if err := decode(msg.Data, &ref); err != nil || ref.UserID == "" {
		return s.fail(fmt.Errorf("get_user_status without user id: %w", domain.ErrInvalidInput), "Failed to get user status")
	}
	status, err := s.m.Registry.QueryStatus(ctx, ref.UserID)
	if err != nil {
		return s.fail(err, "Failed to get user status")
	}
	return s.reply(s.conn.Ack(msg.AckID, status))
}

func (s *session) reply(err error) (string, error) {
	if err != nil {
		return "error", err
	}
	return "ok", nil
}

// fail reports err to the client as message_error and leaves state alone.
func (s *session) fail(err error, fallback string) (string, error) {
	s.sendError(clientError(err, fallback))
	return "error", err
}

func (s *session) sendError(msg string) {
	if err := s.conn.SendError(msg); err != nil {
		s.log.Debug().Err(err).Msg("failed to send message_error")
	}
}

// close tears the session down exactly once: typing state first, then
// presence, then the socket itself. A superseded connection only releases its
// own handle since the user's state now belongs to the newer connection.
func (s *session) close() {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		if userID := s.boundUser(); userID != "" {
			s.m.Registry.Release(ctx, userID, s.conn, func() {
				if n := s.m.Typing.Clear(ctx, userID); n > 0 {
					s.log.Debug().Str("user_id", userID).Int("cleared", n).Msg("typing state cleared")
				}
			})
		}
		if err := s.conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close connection")
		}
	})
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload: %w", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

func clientError(err error, fallback string) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "Not found"
	case errors.Is(err, domain.ErrForbidden):
		return "Not allowed"
	case errors.Is(err, domain.ErrInvalidInput):
		return "Invalid request"
	default:
		return fallback
	}
}

// HandleMessageCreated runs the send path for a message persisted by a REST writer.
func (w *WSManager) HandleMessageCreated(ctx context.Context, evt domain.MessageCreatedEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("recovered from panic in HandleMessageCreated")
		}
	}()

	if _, err := w.Delivery.Deliver(ctx, evt.MessageID, evt.SenderID); err != nil {
		w.log.Warn().Err(err).Str("message_id", evt.MessageID).Msg("failed to deliver message from bus")
	}
}

// HandleMessagesRead runs the read path for receipts recorded by a REST writer.
func (w *WSManager) HandleMessagesRead(ctx context.Context, evt domain.MessagesReadEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("recovered from panic in HandleMessagesRead")
		}
	}()

	updated, err := w.Delivery.MarkRead(ctx, evt.ReaderID, evt.MessageIDs, domain.EventMessageRead)
	if err != nil {
		w.log.Warn().Err(err).Str("reader_id", evt.ReaderID).Msg("failed to apply read receipts from bus")
		return
	}
	w.log.Debug().Str("reader_id", evt.ReaderID).Int("updated", len(updated)).Msg("read receipts applied")
}

// GetActiveConnections returns how many users are bound, for monitoring.
func (w *WSManager) GetActiveConnections() int {
	return len(w.Registry.OnlineUsers())
}
