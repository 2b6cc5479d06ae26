// Package bus is an in-process message bus with request/reply commands
// (exactly one handler, one reply) and fan-out events (fire-and-forget,
// every subscriber gets its own delivery queue).
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Named is implemented by every message routed through the bus.
type Named interface {
	MessageName() string
}

// CommandHandler consumes a command and produces its single reply.
type CommandHandler func(ctx context.Context, cmd any) (any, error)

// EventHandler consumes one event delivery.
type EventHandler func(ctx context.Context, event any)

var (
	// ErrNoHandler signals a command with no registered handler.
	ErrNoHandler = errors.New("no handler registered for command")
	// ErrUnnamed signals a message that does not implement Named.
	ErrUnnamed = errors.New("message does not carry a name")
	// ErrClosed signals use of a closed bus.
	ErrClosed = errors.New("bus is closed")
)

type subscription struct {
	names   map[string]struct{}
	queue   chan delivery
	handler EventHandler
}

type delivery struct {
	ctx   context.Context
	event any
}

// Bus routes commands to their single handler and events to subscriber
// queues. Each subscriber drains its queue on a dedicated goroutine, so one
// slow consumer does not block the others and deliveries to one subscriber
// stay in publish order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]CommandHandler
	subs     []*subscription
	closed   bool
	wg       sync.WaitGroup
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string]CommandHandler)}
}

// Handle registers the single handler for the named command. Registering a
// second handler for the same name replaces the first.
func (b *Bus) Handle(name string, handler CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = handler
}

// Send issues a command and waits for the handler's reply.
func (b *Bus) Send(ctx context.Context, cmd any) (any, error) {
	named, ok := cmd.(Named)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnnamed, cmd)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	handler, ok := b.handlers[named.MessageName()]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, named.MessageName())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return handler(ctx, cmd)
}

// Subscribe registers a handler for the named events. All names share one
// queue, so events for one subscriber are delivered in publish order across
// names.
func (b *Bus) Subscribe(handler EventHandler, names ...string) {
	sub := &subscription{
		names:   make(map[string]struct{}, len(names)),
		queue:   make(chan delivery, 256),
		handler: handler,
	}
	for _, name := range names {
		sub.names[name] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for item := range sub.queue {
			handler(item.ctx, item.event)
		}
	}()
}

// Publish enqueues the event for every matching subscriber and returns
// without waiting for handlers.
func (b *Bus) Publish(ctx context.Context, event any) error {
	named, ok := event.(Named)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnnamed, event)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, sub := range b.subs {
		if _, want := sub.names[named.MessageName()]; !want {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: ctx, event: event}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting messages and waits for queued deliveries to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.queue)
	}
	b.wg.Wait()
}
