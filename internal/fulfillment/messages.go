package fulfillment

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Message names used for bus registration and routing.
const (
	EventOrderPlaced       = "OrderPlaced"
	EventCreditReserved    = "CreditReserved"
	EventInvoiceRequested  = "InvoiceRequested"
	EventShipmentRequested = "ShipmentRequested"
	EventInvoicePaid       = "InvoicePaid"
	EventShipmentDelivered = "ShipmentDelivered"

	CommandReserveCredit     = "ReserveCredit"
	CommandDenyOrder         = "DenyOrder"
	CommandSendInvoice       = "SendInvoice"
	CommandShipItems         = "ShipItems"
	CommandMarkOrderComplete = "MarkOrderComplete"
)

// OrderPlaced starts a fulfillment saga for a new order.
type OrderPlaced struct {
	OrderID      uuid.UUID           `json:"order_id"`
	ProductItems map[uuid.UUID]int64 `json:"product_items"`
	TotalPrice   decimal.Decimal     `json:"total_price"`
}

func (OrderPlaced) MessageName() string { return EventOrderPlaced }

// CreditReserved announces a successful credit reservation for an order.
type CreditReserved struct {
	OrderID uuid.UUID       `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func (CreditReserved) MessageName() string { return EventCreditReserved }

// InvoiceRequested announces that an invoice was issued for an order.
type InvoiceRequested struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

func (InvoiceRequested) MessageName() string { return EventInvoiceRequested }

// ShipmentRequested announces that a shipment was scheduled.
type ShipmentRequested struct {
	ShipmentID uuid.UUID `json:"shipment_id"`
}

func (ShipmentRequested) MessageName() string { return EventShipmentRequested }

// InvoicePaid announces that the customer settled an invoice.
type InvoicePaid struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

func (InvoicePaid) MessageName() string { return EventInvoicePaid }

// ShipmentDelivered announces that a shipment reached the customer.
type ShipmentDelivered struct {
	ShipmentID uuid.UUID `json:"shipment_id"`
}

func (ShipmentDelivered) MessageName() string { return EventShipmentDelivered }

// ReserveCredit asks the credit service to reserve the order amount.
// Reply: bool (granted/denied).
type ReserveCredit struct {
	Amount decimal.Decimal `json:"amount"`
}

func (ReserveCredit) MessageName() string { return CommandReserveCredit }

// DenyOrder asks the order service to reject the order.
type DenyOrder struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

func (DenyOrder) MessageName() string { return CommandDenyOrder }

// SendInvoice asks the invoicing service to issue an invoice.
// Reply: uuid.UUID (the invoice id).
type SendInvoice struct {
	OrderID      uuid.UUID           `json:"order_id"`
	ProductItems map[uuid.UUID]int64 `json:"product_items"`
	TotalPrice   decimal.Decimal     `json:"total_price"`
}

func (SendInvoice) MessageName() string { return CommandSendInvoice }

// ShipItems asks the shipping service to schedule a shipment.
// Reply: uuid.UUID (the shipment id).
type ShipItems struct {
	ProductItems map[uuid.UUID]int64 `json:"product_items"`
}

func (ShipItems) MessageName() string { return CommandShipItems }

// MarkOrderComplete asks the order service to finalize the order.
type MarkOrderComplete struct {
	OrderID    uuid.UUID `json:"order_id"`
	InvoiceID  uuid.UUID `json:"invoice_id"`
	ShipmentID uuid.UUID `json:"shipment_id"`
}

func (MarkOrderComplete) MessageName() string { return CommandMarkOrderComplete }
