package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wachat-ws/internal/domain"
	"wachat-ws/internal/metrics"
)

const (
	DefaultOutboxSize    = 1024
	defaultOutboxTimeout = 5 * time.Second
)

var (
	errOutboxFull   = fmt.Errorf("event outbox full: %w", domain.ErrTransientIO)
	errOutboxClosed = fmt.Errorf("event outbox closed: %w", domain.ErrTransientIO)
)

// Outbox queues realtime events and hands them to the next publisher from a
// single goroutine, so coordinators never wait on the bus. Events that do not
// fit in the queue are dropped and counted.
type Outbox struct {
	next    EventPublisher
	queue   chan interface{}
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewOutbox(next EventPublisher, size int, log zerolog.Logger) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	o := &Outbox{
		next:    next,
		queue:   make(chan interface{}, size),
		timeout: defaultOutboxTimeout,
		log:     log.With().Str("component", "outbox").Logger(),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

// SendMessage enqueues message without blocking. The caller's context is not
// carried over since the event outlives the request that produced it.
func (o *Outbox) SendMessage(_ context.Context, message interface{}) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		metrics.RecordBusEventDropped("closed")
		return errOutboxClosed
	}
	select {
	case o.queue <- message:
		return nil
	default:
		metrics.RecordBusEventDropped("full")
		return errOutboxFull
	}
}

func (o *Outbox) run() {
	defer close(o.done)
	for message := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		if err := o.next.SendMessage(ctx, message); err != nil {
			o.log.Warn().Err(err).Msg("failed to forward realtime event")
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queued ones are forwarded.
func (o *Outbox) Close() error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	<-o.done
	return nil
}
