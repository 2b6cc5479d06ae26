package fulfillment

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// DenyReasonInsufficientCredits is the compensation reason for a failed
// credit reservation.
const DenyReasonInsufficientCredits = "insufficient credits"

// Saga holds the order-fulfillment business rules. Handlers mutate the given
// instance; the caller (the dispatcher) owns locking and full-state
// persistence and guarantees handlers for one instance never run
// concurrently. New correlation keys are the one exception: the saga writes
// them through assoc itself, before publishing the event they route.
type Saga struct {
	commands CommandGateway
	events   EventGateway
	assoc    AssociationGateway
	logf     func(format string, args ...any)
}

// NewSaga constructs a Saga using the given gateways.
func NewSaga(commands CommandGateway, events EventGateway, assoc AssociationGateway, logf func(format string, args ...any)) *Saga {
	if logf == nil {
		logf = log.Printf
	}
	return &Saga{
		commands: commands,
		events:   events,
		assoc:    assoc,
		logf:     logf,
	}
}

// HandleOrderPlaced records the order payload and reserves credit. A granted
// reservation publishes CreditReserved; a denied one compensates with
// DenyOrder and terminates the saga.
func (s *Saga) HandleOrderPlaced(ctx context.Context, inst *Instance, event OrderPlaced) error {
	if inst.placed() {
		// Redelivery of the placement event; the first delivery won.
		return nil
	}

	inst.ProductItems = event.ProductItems
	inst.TotalPrice = event.TotalPrice

	reply, err := s.commands.Send(ctx, ReserveCredit{Amount: event.TotalPrice})
	if err != nil {
		return err
	}
	granted, err := replyAs[bool](reply, CommandReserveCredit)
	if err != nil {
		return err
	}

	if !granted {
		if _, err := s.commands.Send(ctx, DenyOrder{
			OrderID: event.OrderID,
			Reason:  DenyReasonInsufficientCredits,
		}); err != nil {
			return err
		}
		inst.Status = StatusDenied
		s.logf("order %s denied: %s", event.OrderID, DenyReasonInsufficientCredits)
		return nil
	}

	return s.events.Publish(ctx, CreditReserved{
		OrderID: event.OrderID,
		Amount:  event.TotalPrice,
	})
}

// HandleCreditReserved requests an invoice, registers the invoice id as a
// correlation key, and announces the request.
func (s *Saga) HandleCreditReserved(ctx context.Context, inst *Instance, event CreditReserved) error {
	if !inst.placed() {
		return ErrIncompleteInstance
	}
	if inst.InvoiceID != nil {
		return nil
	}

	reply, err := s.commands.Send(ctx, SendInvoice{
		OrderID:      event.OrderID,
		ProductItems: inst.ProductItems,
		TotalPrice:   inst.TotalPrice,
	})
	if err != nil {
		return err
	}
	invoiceID, err := replyAs[uuid.UUID](reply, CommandSendInvoice)
	if err != nil {
		return err
	}

	inst.InvoiceID = &invoiceID
	inst.Associate(AssocInvoiceID, invoiceID.String())
	// The published event is routed by the invoice id, so the pair must be
	// durable before anyone can observe the event.
	if err := s.assoc.Associate(ctx, inst.OrderID, AssocInvoiceID, invoiceID.String()); err != nil {
		return err
	}

	return s.events.Publish(ctx, InvoiceRequested{InvoiceID: invoiceID})
}

// HandleInvoiceRequested schedules the shipment, registers the shipment id as
// a correlation key, and announces the request.
func (s *Saga) HandleInvoiceRequested(ctx context.Context, inst *Instance, event InvoiceRequested) error {
	if !inst.placed() {
		return ErrIncompleteInstance
	}
	if inst.ShipmentID != nil {
		return nil
	}

	reply, err := s.commands.Send(ctx, ShipItems{ProductItems: inst.ProductItems})
	if err != nil {
		return err
	}
	shipmentID, err := replyAs[uuid.UUID](reply, CommandShipItems)
	if err != nil {
		return err
	}

	inst.ShipmentID = &shipmentID
	inst.Associate(AssocShipmentID, shipmentID.String())
	if err := s.assoc.Associate(ctx, inst.OrderID, AssocShipmentID, shipmentID.String()); err != nil {
		return err
	}

	return s.events.Publish(ctx, ShipmentRequested{ShipmentID: shipmentID})
}

// HandleInvoicePaid marks the invoice as settled and evaluates the
// completion gate.
func (s *Saga) HandleInvoicePaid(ctx context.Context, inst *Instance, event InvoicePaid) error {
	if inst.Paid {
		return nil
	}
	inst.Paid = true
	if inst.InvoiceID == nil {
		id := event.InvoiceID
		inst.InvoiceID = &id
	}
	return s.finishIfNecessary(ctx, inst)
}

// HandleShipmentDelivered marks the shipment as delivered and evaluates the
// completion gate.
func (s *Saga) HandleShipmentDelivered(ctx context.Context, inst *Instance, event ShipmentDelivered) error {
	if inst.Delivered {
		return nil
	}
	inst.Delivered = true
	if inst.ShipmentID == nil {
		id := event.ShipmentID
		inst.ShipmentID = &id
	}
	return s.finishIfNecessary(ctx, inst)
}

// finishIfNecessary issues MarkOrderComplete exactly once when both the paid
// and delivered conditions hold. InvoicePaid and ShipmentDelivered may arrive
// in either order; whichever closes the gate triggers completion.
func (s *Saga) finishIfNecessary(ctx context.Context, inst *Instance) error {
	if !inst.completionReady() || inst.Status != StatusActive {
		return nil
	}
	if inst.InvoiceID == nil || inst.ShipmentID == nil {
		return ErrIncompleteInstance
	}

	if _, err := s.commands.Send(ctx, MarkOrderComplete{
		OrderID:    inst.OrderID,
		InvoiceID:  *inst.InvoiceID,
		ShipmentID: *inst.ShipmentID,
	}); err != nil {
		return err
	}

	inst.Status = StatusCompleted
	s.logf("order %s completed", inst.OrderID)
	return nil
}
