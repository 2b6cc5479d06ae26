// Package collaborators holds in-memory stand-ins for the services the saga
// coordinates: credit, invoicing, shipping, and order status. They register
// as command handlers on the bus and emit the domain events the real
// services would.
package collaborators

import (
	"context"
	"fmt"
	"sync"

	"lockstep/internal/bus"
	"lockstep/internal/fulfillment"

	"github.com/shopspring/decimal"
)

// CommandRegistry registers command handlers; *bus.Bus satisfies it.
type CommandRegistry interface {
	Handle(name string, handler bus.CommandHandler)
}

// EventPublisher publishes domain events; *bus.Bus satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// CreditService grants reservations against a single shared credit line.
type CreditService struct {
	mu        sync.Mutex
	available decimal.Decimal
	reserved  decimal.Decimal
}

// NewCreditService constructs a credit service with the given credit line.
func NewCreditService(available decimal.Decimal) *CreditService {
	return &CreditService{available: available}
}

// Register installs the ReserveCredit handler.
func (s *CreditService) Register(reg CommandRegistry) {
	reg.Handle(fulfillment.CommandReserveCredit, func(ctx context.Context, cmd any) (any, error) {
		reserve, ok := cmd.(fulfillment.ReserveCredit)
		if !ok {
			return nil, fmt.Errorf("credit service: unexpected command %T", cmd)
		}
		return s.Reserve(reserve.Amount), nil
	})
}

// Reserve attempts to reserve the amount, reporting whether it was granted.
func (s *CreditService) Reserve(amount decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount.GreaterThan(s.available) {
		return false
	}
	s.available = s.available.Sub(amount)
	s.reserved = s.reserved.Add(amount)
	return true
}

// Available returns the remaining credit line.
func (s *CreditService) Available() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Reserved returns the total reserved amount.
func (s *CreditService) Reserved() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved
}
