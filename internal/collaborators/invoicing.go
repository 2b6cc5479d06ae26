package collaborators

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lockstep/internal/fulfillment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnknownInvoice signals payment of an invoice this service never issued.
var ErrUnknownInvoice = errors.New("unknown invoice")

// Invoice is one issued invoice.
type Invoice struct {
	InvoiceID    uuid.UUID
	OrderID      uuid.UUID
	ProductItems map[uuid.UUID]int64
	TotalPrice   decimal.Decimal
	Paid         bool
}

// InvoicingService issues invoices and publishes InvoicePaid when a customer
// settles one.
type InvoicingService struct {
	mu       sync.Mutex
	events   EventPublisher
	invoices map[uuid.UUID]*Invoice
	newID    func() uuid.UUID
}

// NewInvoicingService constructs an invoicing service publishing to events.
func NewInvoicingService(events EventPublisher) *InvoicingService {
	return &InvoicingService{
		events:   events,
		invoices: make(map[uuid.UUID]*Invoice),
		newID:    uuid.New,
	}
}

// Register installs the SendInvoice handler.
func (s *InvoicingService) Register(reg CommandRegistry) {
	reg.Handle(fulfillment.CommandSendInvoice, func(ctx context.Context, cmd any) (any, error) {
		send, ok := cmd.(fulfillment.SendInvoice)
		if !ok {
			return nil, fmt.Errorf("invoicing service: unexpected command %T", cmd)
		}
		return s.Issue(send), nil
	})
}

// Issue records the invoice and returns its id.
func (s *InvoicingService) Issue(cmd fulfillment.SendInvoice) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.invoices[id] = &Invoice{
		InvoiceID:    id,
		OrderID:      cmd.OrderID,
		ProductItems: cmd.ProductItems,
		TotalPrice:   cmd.TotalPrice,
	}
	return id
}

// MarkPaid settles the invoice and publishes InvoicePaid.
func (s *InvoicingService) MarkPaid(ctx context.Context, invoiceID uuid.UUID) error {
	s.mu.Lock()
	invoice, ok := s.invoices[invoiceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownInvoice, invoiceID)
	}
	invoice.Paid = true
	s.mu.Unlock()

	return s.events.Publish(ctx, fulfillment.InvoicePaid{InvoiceID: invoiceID})
}

// Lookup returns the invoice, if issued.
func (s *InvoicingService) Lookup(invoiceID uuid.UUID) (Invoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.invoices[invoiceID]
	if !ok {
		return Invoice{}, false
	}
	return *invoice, true
}
