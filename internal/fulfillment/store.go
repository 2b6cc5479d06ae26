package fulfillment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrInstanceNotFound signals that no instance carries the association.
var ErrInstanceNotFound = errors.New("saga instance not found")

// Store persists saga instances and their correlation associations. The store
// is the sole authority for concurrent-access serialization; implementations
// must make CreateIfAbsent idempotent per order id.
type Store interface {
	// CreateIfAbsent creates a fresh instance for the order id, or returns
	// the existing one. The second result reports whether a new instance was
	// created by this call.
	CreateIfAbsent(ctx context.Context, orderID uuid.UUID) (*Instance, bool, error)

	// Load returns the instance registered under the correlation pair, or
	// ErrInstanceNotFound.
	Load(ctx context.Context, key, value string) (*Instance, error)

	// Save persists the full instance state.
	Save(ctx context.Context, inst *Instance) error

	// Associate registers an additional correlation pair for the instance.
	Associate(ctx context.Context, orderID uuid.UUID, key, value string) error

	// MarkTerminal records the terminal status. Terminal instances stay
	// loadable for inspection until the store archives them.
	MarkTerminal(ctx context.Context, orderID uuid.UUID, status Status) error
}
