package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// Broadcaster pushes messages to connected clients.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// HubBroadcaster adapts Hub's broadcast channel to the Broadcaster interface.
type HubBroadcaster struct {
	hub *Hub
}

// NewHubBroadcaster constructs a Broadcaster over the hub.
func NewHubBroadcaster(hub *Hub) *HubBroadcaster {
	return &HubBroadcaster{hub: hub}
}

// Broadcast forwards the message to the hub without blocking; the progress
// feed is best-effort and slow clients must not stall event delivery.
func (b *HubBroadcaster) Broadcast(msg []byte) {
	select {
	case b.hub.Broadcast <- msg:
	default:
	}
}

// ProgressPublisher turns domain events into JSON envelopes on the progress
// feed. It subscribes to the bus like any other event consumer.
type ProgressPublisher struct {
	broadcaster Broadcaster
	logf        func(format string, args ...any)
	now         func() time.Time
}

// NewProgressPublisher constructs a progress publisher.
func NewProgressPublisher(broadcaster Broadcaster, logf func(format string, args ...any)) *ProgressPublisher {
	return &ProgressPublisher{
		broadcaster: broadcaster,
		logf:        logf,
		now:         time.Now,
	}
}

// Handle is the bus-facing event handler; it envelopes the event and
// broadcasts it.
func (p *ProgressPublisher) Handle(ctx context.Context, event any) {
	name := "unknown"
	if named, ok := event.(interface{ MessageName() string }); ok {
		name = named.MessageName()
	}

	envelope := struct {
		Type      string    `json:"type"`
		Event     any       `json:"event"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Type:      name,
		Event:     event,
		Timestamp: p.now().UTC(),
	}

	msg, err := json.Marshal(envelope)
	if err != nil {
		p.logf("progress envelope: %v", err)
		return
	}
	p.broadcaster.Broadcast(msg)
}
