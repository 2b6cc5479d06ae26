package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CommandGateway issues a command and waits for its single reply.
type CommandGateway interface {
	Send(ctx context.Context, cmd any) (any, error)
}

// EventGateway publishes an event to all subscribed handlers. Publishing is
// fire-and-forget; delivery is at-least-once.
type EventGateway interface {
	Publish(ctx context.Context, event any) error
}

// AssociationGateway persists a correlation pair. The saga writes a new key
// through before publishing any event routed by it, so a subscriber
// dispatching that event always finds the instance. Store satisfies it.
type AssociationGateway interface {
	Associate(ctx context.Context, orderID uuid.UUID, key, value string) error
}

// ErrUnexpectedReply signals a command reply of the wrong type, which means
// the wrong handler answered the command.
var ErrUnexpectedReply = errors.New("unexpected command reply type")

func replyAs[T any](reply any, cmd string) (T, error) {
	val, ok := reply.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w (%T)", cmd, ErrUnexpectedReply, reply)
	}
	return val, nil
}
