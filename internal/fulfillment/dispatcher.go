package fulfillment

import (
	"context"
	"errors"
	"log"
	"sync"

	"lockstep/internal/sharding"

	"github.com/google/uuid"
)

// Hooks receive dispatch outcomes for observability. Nil funcs are skipped.
type Hooks struct {
	// OnOutcome fires when an instance reaches a terminal status.
	OnOutcome func(status Status)
	// OnDropped fires when an event cannot be routed to an instance.
	OnDropped func(event string)
}

type queuedEvent struct {
	ctx   context.Context
	event any
}

// Dispatcher routes incoming events to saga instances by association lookup,
// serializes handler execution per instance, and persists state around each
// handler invocation.
type Dispatcher struct {
	store Store
	saga  *Saga
	logf  func(format string, args ...any)
	hooks Hooks

	queues []chan queuedEvent
	wg     sync.WaitGroup

	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
}

// NewDispatcher constructs a Dispatcher over the given store and saga.
func NewDispatcher(store Store, saga *Saga, hooks Hooks, logf func(format string, args ...any)) *Dispatcher {
	if logf == nil {
		logf = log.Printf
	}
	return &Dispatcher{
		store: store,
		saga:  saga,
		logf:  logf,
		hooks: hooks,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// Start launches n shard workers. Events with the same correlation value are
// handled by the same worker in arrival order; per-instance locking covers
// events reaching one instance through different correlation keys.
func (d *Dispatcher) Start(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	d.queues = make([]chan queuedEvent, n)
	for i := range d.queues {
		queue := make(chan queuedEvent, 64)
		d.queues[i] = queue
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item := <-queue:
					d.process(item.ctx, item.event)
				}
			}
		}()
	}
}

// Wait blocks until all shard workers have stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle is the bus-facing entry point. With workers running it enqueues onto
// the shard owning the event's correlation value; without workers it
// dispatches inline.
func (d *Dispatcher) Handle(ctx context.Context, event any) {
	if len(d.queues) == 0 {
		d.process(ctx, event)
		return
	}
	_, value, ok := correlate(event)
	if !ok {
		d.drop(event)
		return
	}
	shard := sharding.ShardForKey(value, len(d.queues))
	select {
	case d.queues[shard] <- queuedEvent{ctx: ctx, event: event}:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) process(ctx context.Context, event any) {
	key, value, ok := correlate(event)
	if !ok {
		d.drop(event)
		return
	}

	var orderID uuid.UUID
	if placed, isPlacement := event.(OrderPlaced); isPlacement {
		orderID = placed.OrderID
		if _, _, err := d.store.CreateIfAbsent(ctx, orderID); err != nil {
			d.logf("dispatch %s: create instance: %v", key, err)
			return
		}
	} else {
		inst, err := d.store.Load(ctx, key, value)
		if err != nil {
			if errors.Is(err, ErrInstanceNotFound) {
				d.drop(event)
				return
			}
			d.logf("dispatch %s=%s: load: %v", key, value, err)
			return
		}
		orderID = inst.OrderID
	}

	lock := d.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the instance lock so sibling handlers observe each
	// other's writes.
	inst, err := d.store.Load(ctx, AssocOrderID, orderID.String())
	if err != nil {
		d.logf("dispatch %s=%s: reload: %v", key, value, err)
		return
	}
	if inst.Status != StatusActive {
		return
	}

	if handleErr := d.invoke(ctx, inst, event); handleErr != nil {
		if errors.Is(handleErr, context.Canceled) {
			// Shutdown, not a business failure. The event is redelivered
			// on the next run.
			d.logf("order %s: %s handler interrupted: %v", inst.OrderID, eventName(event), handleErr)
			return
		}
		d.logf("order %s: %s handler failed: %v", inst.OrderID, eventName(event), handleErr)
		inst.Status = StatusFailed
	}

	if err := d.store.Save(ctx, inst); err != nil {
		d.logf("dispatch %s=%s: save: %v", key, value, err)
		return
	}
	if inst.Status.Terminal() {
		if err := d.store.MarkTerminal(ctx, inst.OrderID, inst.Status); err != nil {
			d.logf("dispatch %s=%s: mark terminal: %v", key, value, err)
			return
		}
		d.releaseLock(inst.OrderID)
		if d.hooks.OnOutcome != nil {
			d.hooks.OnOutcome(inst.Status)
		}
	}
}

func (d *Dispatcher) invoke(ctx context.Context, inst *Instance, event any) error {
	switch ev := event.(type) {
	case OrderPlaced:
		return d.saga.HandleOrderPlaced(ctx, inst, ev)
	case CreditReserved:
		return d.saga.HandleCreditReserved(ctx, inst, ev)
	case InvoiceRequested:
		return d.saga.HandleInvoiceRequested(ctx, inst, ev)
	case InvoicePaid:
		return d.saga.HandleInvoicePaid(ctx, inst, ev)
	case ShipmentDelivered:
		return d.saga.HandleShipmentDelivered(ctx, inst, ev)
	default:
		d.drop(event)
		return nil
	}
}

func (d *Dispatcher) drop(event any) {
	name := eventName(event)
	d.logf("dropped unroutable event %s", name)
	if d.hooks.OnDropped != nil {
		d.hooks.OnDropped(name)
	}
}

func (d *Dispatcher) lockFor(orderID uuid.UUID) *sync.Mutex {
	d.lockMu.Lock()
	defer d.lockMu.Unlock()
	lock, ok := d.locks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[orderID] = lock
	}
	return lock
}

// releaseLock forgets a terminal instance's lock. Late events for the order
// only read the terminal status, so a fresh mutex is harmless.
func (d *Dispatcher) releaseLock(orderID uuid.UUID) {
	d.lockMu.Lock()
	delete(d.locks, orderID)
	d.lockMu.Unlock()
}

// correlate extracts the association pair that routes the event.
func correlate(event any) (key, value string, ok bool) {
	switch ev := event.(type) {
	case OrderPlaced:
		return AssocOrderID, ev.OrderID.String(), true
	case CreditReserved:
		return AssocOrderID, ev.OrderID.String(), true
	case InvoiceRequested:
		return AssocInvoiceID, ev.InvoiceID.String(), true
	case InvoicePaid:
		return AssocInvoiceID, ev.InvoiceID.String(), true
	case ShipmentDelivered:
		return AssocShipmentID, ev.ShipmentID.String(), true
	default:
		return "", "", false
	}
}

func eventName(event any) string {
	if named, ok := event.(interface{ MessageName() string }); ok {
		return named.MessageName()
	}
	return "unknown"
}
