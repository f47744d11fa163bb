package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rl1809/gamepass-store/internal/core/domain"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// EventQueue buffers order events for the publisher workers.
type EventQueue struct {
	mu     sync.RWMutex
	closed bool
	events chan domain.OrderEvent
}

func NewEventQueue(size int) *EventQueue {
	return &EventQueue{events: make(chan domain.OrderEvent, size)}
}

// Publish never blocks: a full queue drops the event.
func (q *EventQueue) Publish(ctx context.Context, event domain.OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *EventQueue) Events() <-chan domain.OrderEvent {
	return q.events
}

func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.events)
}
