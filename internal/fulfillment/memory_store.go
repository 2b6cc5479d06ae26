package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Journal persists store mutations for recovery across restarts.
type Journal interface {
	Append(ctx context.Context, data []byte) error
}

// MemoryStore keeps saga instances in memory with an optional write-ahead
// journal. Association lookup and idempotent creation share one lock, so a
// redelivered OrderPlaced can never create a second instance.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*Instance
	byAssoc   map[Association]uuid.UUID
	journal   Journal
}

type journalEntry struct {
	Instance *Instance `json:"instance"`
}

// NewMemoryStore constructs an empty store. The journal may be nil.
func NewMemoryStore(journal Journal) *MemoryStore {
	return &MemoryStore{
		instances: make(map[uuid.UUID]*Instance),
		byAssoc:   make(map[Association]uuid.UUID),
		journal:   journal,
	}
}

// Replayer replays journal entries written by a previous run.
type Replayer interface {
	Replay(fn func(data []byte) error) error
}

// NewMemoryStoreWithRecovery constructs a store and replays the journal into
// memory. Later entries for an order supersede earlier ones.
func NewMemoryStoreWithRecovery(journal interface {
	Journal
	Replayer
}) (*MemoryStore, error) {
	s := NewMemoryStore(journal)
	err := journal.Replay(func(data []byte) error {
		var entry journalEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("journal entry: %w", err)
		}
		if entry.Instance == nil {
			return fmt.Errorf("journal entry without instance")
		}
		s.index(entry.Instance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateIfAbsent creates a fresh instance for the order id, or returns the
// existing one.
func (s *MemoryStore) CreateIfAbsent(ctx context.Context, orderID uuid.UUID) (*Instance, bool, error) {
	s.mu.Lock()
	if existing, ok := s.instances[orderID]; ok {
		inst := existing.Clone()
		s.mu.Unlock()
		return inst, false, nil
	}
	inst := NewInstance(orderID)
	s.index(inst)
	s.mu.Unlock()

	if err := s.record(ctx, inst); err != nil {
		return nil, false, err
	}
	return inst.Clone(), true, nil
}

// Load returns the instance registered under the correlation pair.
func (s *MemoryStore) Load(ctx context.Context, key, value string) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orderID, ok := s.byAssoc[Association{Key: key, Value: value}]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	inst, ok := s.instances[orderID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

// Save persists the full instance state and indexes any new associations.
func (s *MemoryStore) Save(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	s.index(inst)
	s.mu.Unlock()
	return s.record(ctx, inst)
}

// Associate registers an additional correlation pair for the instance.
func (s *MemoryStore) Associate(ctx context.Context, orderID uuid.UUID, key, value string) error {
	s.mu.Lock()
	inst, ok := s.instances[orderID]
	if !ok {
		s.mu.Unlock()
		return ErrInstanceNotFound
	}
	inst.Associate(key, value)
	s.byAssoc[Association{Key: key, Value: value}] = orderID
	snapshot := inst.Clone()
	s.mu.Unlock()
	return s.record(ctx, snapshot)
}

// MarkTerminal records the terminal status.
func (s *MemoryStore) MarkTerminal(ctx context.Context, orderID uuid.UUID, status Status) error {
	s.mu.Lock()
	inst, ok := s.instances[orderID]
	if !ok {
		s.mu.Unlock()
		return ErrInstanceNotFound
	}
	inst.Status = status
	snapshot := inst.Clone()
	s.mu.Unlock()
	return s.record(ctx, snapshot)
}

// index stores a snapshot and registers its associations. Caller holds the lock.
func (s *MemoryStore) index(inst *Instance) {
	snapshot := inst.Clone()
	s.instances[snapshot.OrderID] = snapshot
	for _, a := range snapshot.Associations {
		s.byAssoc[a] = snapshot.OrderID
	}
}

func (s *MemoryStore) record(ctx context.Context, inst *Instance) error {
	if s.journal == nil {
		return nil
	}
	data, err := json.Marshal(journalEntry{Instance: inst})
	if err != nil {
		return err
	}
	return s.journal.Append(ctx, data)
}
