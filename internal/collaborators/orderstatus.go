package collaborators

import (
	"context"
	"fmt"
	"sync"

	"lockstep/internal/fulfillment"

	"github.com/google/uuid"
)

// OrderOutcome records what the saga decided for an order.
type OrderOutcome struct {
	Denied     bool
	DenyReason string
	Completed  bool
	InvoiceID  uuid.UUID
	ShipmentID uuid.UUID
}

// OrderStatusService receives the saga's terminal commands on behalf of the
// order service.
type OrderStatusService struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]OrderOutcome
}

// NewOrderStatusService constructs an empty order status service.
func NewOrderStatusService() *OrderStatusService {
	return &OrderStatusService{outcomes: make(map[uuid.UUID]OrderOutcome)}
}

// Register installs the DenyOrder and MarkOrderComplete handlers.
func (s *OrderStatusService) Register(reg CommandRegistry) {
	reg.Handle(fulfillment.CommandDenyOrder, func(ctx context.Context, cmd any) (any, error) {
		deny, ok := cmd.(fulfillment.DenyOrder)
		if !ok {
			return nil, fmt.Errorf("order status service: unexpected command %T", cmd)
		}
		s.deny(deny)
		return nil, nil
	})
	reg.Handle(fulfillment.CommandMarkOrderComplete, func(ctx context.Context, cmd any) (any, error) {
		complete, ok := cmd.(fulfillment.MarkOrderComplete)
		if !ok {
			return nil, fmt.Errorf("order status service: unexpected command %T", cmd)
		}
		s.complete(complete)
		return nil, nil
	})
}

func (s *OrderStatusService) deny(cmd fulfillment.DenyOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome := s.outcomes[cmd.OrderID]
	outcome.Denied = true
	outcome.DenyReason = cmd.Reason
	s.outcomes[cmd.OrderID] = outcome
}

func (s *OrderStatusService) complete(cmd fulfillment.MarkOrderComplete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome := s.outcomes[cmd.OrderID]
	outcome.Completed = true
	outcome.InvoiceID = cmd.InvoiceID
	outcome.ShipmentID = cmd.ShipmentID
	s.outcomes[cmd.OrderID] = outcome
}

// Outcome returns the recorded outcome for an order, if any.
func (s *OrderStatusService) Outcome(orderID uuid.UUID) (OrderOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.outcomes[orderID]
	return outcome, ok
}
