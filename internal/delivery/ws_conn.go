package delivery

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"wachat-ws/internal/domain"
)

// WSConnection is one physical socket. Writes come from the read loop, the
// ping loop and any coordinator pushing to this user, so they are serialized.
type WSConnection struct {
	id        string
	Conn      *websocket.Conn
	writeWait time.Duration
	writeMux  sync.Mutex
}

func newWSConnection(c *websocket.Conn, writeWait time.Duration) *WSConnection {
	return &WSConnection{
		id:        uuid.NewString(),
		Conn:      c,
		writeWait: writeWait,
	}
}

func (conn *WSConnection) ID() string { return conn.id }

// Send pushes a named event.
func (conn *WSConnection) Send(event string, payload interface{}) error {
	return conn.safeWriteJSON(domain.WebSocketResponse{
		Type:    event,
		Success: true,
		Data:    payload,
	})
}

// Ack answers a request that carried ackID.
func (conn *WSConnection) Ack(ackID string, payload interface{}) error {
	return conn.safeWriteJSON(domain.WebSocketResponse{
		Type:    domain.EventAck,
		Success: true,
		Data:    payload,
		AckID:   ackID,
	})
}

// SendError pushes message_error to this connection only.
func (conn *WSConnection) SendError(msg string) error {
	return conn.safeWriteJSON(domain.WebSocketResponse{
		Type:    domain.EventMessageError,
		Success: false,
		Data:    domain.ErrorPayload{Error: msg},
		Error:   msg,
	})
}

func (conn *WSConnection) ping() error {
	conn.writeMux.Lock()
	defer conn.writeMux.Unlock()
	return conn.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(conn.writeWait))
}

func (conn *WSConnection) Close() error {
	conn.writeMux.Lock()
	defer conn.writeMux.Unlock()
	return conn.Conn.Close()
}

// safeWriteJSON writes JSON to WebSocket connection with mutex protection and panic recovery
func (conn *WSConnection) safeWriteJSON(message interface{}) (err error) {
	conn.writeMux.Lock()
	defer conn.writeMux.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write to connection %s panicked: %v", conn.id, r)
		}
	}()

	if err := conn.Conn.SetWriteDeadline(time.Now().Add(conn.writeWait)); err != nil {
		return err
	}
	return conn.Conn.WriteJSON(message)
}
